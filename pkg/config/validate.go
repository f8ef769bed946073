package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against its struct tags plus the
// cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				return fmt.Errorf("invalid value for %s: failed %q constraint", fe.Namespace(), fe.Tag())
			}
		}
		return err
	}

	if enabled(cfg.DiscCache.Enabled) && cfg.DiscCache.Path == "" {
		return fmt.Errorf("disc_cache.path is required when the disc cache is enabled")
	}
	if (cfg.DiscCache.MaxWidth > 0) != (cfg.DiscCache.MaxHeight > 0) {
		return fmt.Errorf("disc_cache.max_width and max_height must be set together")
	}
	return nil
}

func enabled(b *bool) bool {
	return b != nil && *b
}
