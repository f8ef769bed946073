package engine

// Listener observes the lifecycle of a single request. All callbacks run on
// the dispatch goroutine, so implementations see them serialized. The target
// argument is nil when the target was collected before the event fired.
type Listener interface {
	// OnStarted fires once when the request enters the pipeline.
	OnStarted(uri string, target Target)

	// OnCancelled fires when the load ends without delivery: the target
	// was reused for a newer request or collected. It does not fire when
	// the caller's context was cancelled.
	OnCancelled(uri string, target Target)

	// OnFailed fires on a terminal failure with the classified reason.
	OnFailed(uri string, target Target, reason FailReason)
}

// ProgressListener additionally observes fetch progress while bytes are
// copied into the disc cache. current counts bytes copied so far; total is
// -1 when the source size is unknown.
type ProgressListener interface {
	Listener
	OnProgress(uri string, target Target, current, total int64)
}

// NopListener ignores every event. Requests without a listener use it.
type NopListener struct{}

func (NopListener) OnStarted(string, Target)            {}
func (NopListener) OnCancelled(string, Target)          {}
func (NopListener) OnFailed(string, Target, FailReason) {}
