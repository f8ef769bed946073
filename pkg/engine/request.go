package engine

import (
	"errors"
	"fmt"

	"github.com/pixload/pixload/pkg/imaging"
)

// Request describes one image load aimed at one target.
type Request struct {
	// URI locates the image (http, https, file or s3 scheme).
	URI string

	// Key overrides the derived cache key. Leave empty to derive it from
	// the URI and target size.
	Key string

	// TargetSize overrides the target's own size for decode sizing.
	// Zero values defer to Target.Size().
	TargetSize imaging.TargetSize

	// Target receives the result. Required.
	Target TargetRef

	// Options tunes the pipeline for this request; nil uses the engine
	// default.
	Options *Options

	// Listener observes the request lifecycle; nil means no callbacks.
	Listener Listener
}

var errNoURI = errors.New("engine: request has no URI")
var errNoTarget = errors.New("engine: request has no target")

func (r *Request) validate() error {
	if r == nil || r.URI == "" {
		return errNoURI
	}
	if r.Target == nil {
		return errNoTarget
	}
	return nil
}

// CacheKey derives the memory cache key for a URI sized for a target.
// Distinct sizes cache separately.
func CacheKey(uri string, size imaging.TargetSize) string {
	return fmt.Sprintf("%s_%dx%d", uri, size.Width, size.Height)
}
