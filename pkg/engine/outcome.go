package engine

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/pixload/pixload/pkg/fetch"
	"github.com/pixload/pixload/pkg/imaging"
)

// SourceTier identifies which layer supplied a delivered buffer.
type SourceTier int

const (
	TierNetwork SourceTier = iota
	TierDiscCache
	TierMemoryCache
)

func (t SourceTier) String() string {
	switch t {
	case TierMemoryCache:
		return "memory"
	case TierDiscCache:
		return "disc"
	case TierNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// FailKind classifies a terminal load failure.
type FailKind int

const (
	// FailUnknown covers any unexpected failure.
	FailUnknown FailKind = iota

	// FailDecoding means decode produced no usable image after a real
	// fetch attempt.
	FailDecoding

	// FailIO means a transport or filesystem failure during fetch or
	// cache write.
	FailIO

	// FailNetworkDenied means the network mode forbade the attempt.
	FailNetworkDenied

	// FailOutOfMemory means the decode was refused or failed on resource
	// exhaustion.
	FailOutOfMemory
)

func (k FailKind) String() string {
	switch k {
	case FailDecoding:
		return "decoding_error"
	case FailIO:
		return "io_error"
	case FailNetworkDenied:
		return "network_denied"
	case FailOutOfMemory:
		return "out_of_memory"
	default:
		return "unknown"
	}
}

// FailReason carries the failure kind and, where available, the underlying
// cause to the listener.
type FailReason struct {
	Kind  FailKind
	Cause error
}

func (r FailReason) Error() string {
	if r.Cause != nil {
		return fmt.Sprintf("load failed (%s): %v", r.Kind, r.Cause)
	}
	return fmt.Sprintf("load failed (%s)", r.Kind)
}

// Unwrap exposes the cause to errors.Is/As.
func (r FailReason) Unwrap() error { return r.Cause }

// ErrLoadCancelled is returned by the synchronous Load helper when the
// request ended as cancelled.
var ErrLoadCancelled = errors.New("engine: load cancelled")

// ErrQueueFull is returned by Submit when the worker queue cannot take
// another task.
var ErrQueueFull = errors.New("engine: task queue is full")

// ErrStopped is returned by Submit after the engine has been stopped.
var ErrStopped = errors.New("engine: stopped")

// ClassifyError maps an error from any pipeline stage to exactly one
// FailKind. Classification happens once, at the point the task turns the
// error into a terminal failure.
func ClassifyError(err error) FailKind {
	switch {
	case err == nil:
		return FailUnknown
	case errors.Is(err, fetch.ErrNetworkDenied):
		return FailNetworkDenied
	case errors.Is(err, imaging.ErrTooLarge):
		return FailOutOfMemory
	case errors.Is(err, imaging.ErrUnusable):
		return FailDecoding
	}

	var statusErr *fetch.StatusError
	if errors.As(err, &statusErr) {
		return FailIO
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailIO
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return FailIO
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
		return FailIO
	}
	if errors.Is(err, fetch.ErrUnsupportedScheme) {
		return FailIO
	}

	return FailUnknown
}
