package commands

import (
	"context"
	"fmt"

	"github.com/pixload/pixload/internal/logger"
	"github.com/pixload/pixload/pkg/cache/disc"
	"github.com/pixload/pixload/pkg/cache/memory"
	"github.com/pixload/pixload/pkg/config"
	"github.com/pixload/pixload/pkg/engine"
	"github.com/pixload/pixload/pkg/fetch"
	"github.com/pixload/pixload/pkg/imaging"
	"github.com/pixload/pixload/pkg/metrics"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}

// buildEngine assembles the load engine from configuration: the fetcher with
// its per-scheme strategies, the cache tiers and the pipeline itself.
func buildEngine(ctx context.Context, cfg *config.Config) (*engine.Engine, error) {
	fetcher := fetch.NewBaseFetcher()
	fetcher.HTTP = fetch.NewHTTPFetcher(fetch.HTTPConfig{
		Timeout:   cfg.Network.HTTPTimeout,
		UserAgent: cfg.Network.UserAgent,
	})
	if cfg.Network.S3.Enabled {
		s3Fetcher, err := fetch.NewS3Fetcher(ctx, fetch.S3Config{
			Region:          cfg.Network.S3.Region,
			Endpoint:        cfg.Network.S3.Endpoint,
			AccessKeyID:     cfg.Network.S3.AccessKeyID,
			SecretAccessKey: cfg.Network.S3.SecretAccessKey,
			ForcePathStyle:  cfg.Network.S3.ForcePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure S3 fetching: %w", err)
		}
		fetcher.S3 = s3Fetcher
		logger.Info("S3 fetching enabled", "region", cfg.Network.S3.Region, "endpoint", cfg.Network.S3.Endpoint)
	}

	var memCache *memory.Cache
	if cfg.MemoryCache.Enabled == nil || *cfg.MemoryCache.Enabled {
		memCache = memory.New(int64(cfg.MemoryCache.Size), metrics.NewMemoryCacheMetrics())
		logger.Info("memory cache enabled", "size", cfg.MemoryCache.Size.String())
	} else {
		logger.Info("memory cache disabled")
	}

	var discCache *disc.Cache
	if cfg.DiscCache.Enabled == nil || *cfg.DiscCache.Enabled {
		discCache = disc.New(cfg.DiscCache.Path, cfg.DiscCache.ReservePath)
		logger.Info("disc cache enabled", "path", cfg.DiscCache.Path)
	} else {
		logger.Info("disc cache disabled")
	}

	scale, ok := imaging.ParseScaleMode(cfg.Engine.Scale)
	if !ok {
		return nil, fmt.Errorf("invalid scale mode: %s", cfg.Engine.Scale)
	}

	defaults := engine.Options{
		DelayBeforeLoading: cfg.Engine.DelayBeforeLoading,
		CacheInMemory:      cfg.Engine.CacheInMemory == nil || *cfg.Engine.CacheInMemory,
		CacheOnDisc:        cfg.Engine.CacheOnDisc == nil || *cfg.Engine.CacheOnDisc,
	}

	eng := engine.New(engine.Config{
		Workers:           cfg.Engine.Workers,
		QueueSize:         cfg.Engine.QueueSize,
		DefaultOptions:    &defaults,
		DefaultScale:      scale,
		DiscCacheWidth:    cfg.DiscCache.MaxWidth,
		DiscCacheHeight:   cfg.DiscCache.MaxHeight,
		DiscCacheQuality:  cfg.DiscCache.Quality,
		DegradedChunkSize: int(cfg.Network.DegradedChunkSize),
		DegradedPause:     cfg.Network.DegradedPause,
	}, engine.Deps{
		MemoryCache: memCache,
		DiscCache:   discCache,
		Fetcher:     fetcher,
		Decoder:     &imaging.StdDecoder{MaxPixels: cfg.Engine.MaxPixels},
		Metrics:     metrics.NewLoaderMetrics(),
	})

	if mode, ok := engine.ParseNetworkMode(cfg.Network.Mode); ok && mode != engine.NetworkNormal {
		eng.SetNetworkMode(mode)
		logger.Warn("starting with restricted network mode", "mode", mode.String())
	}

	return eng, nil
}
