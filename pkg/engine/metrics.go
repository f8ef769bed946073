package engine

import "time"

// Metrics receives engine observations. A nil Metrics disables collection.
type Metrics interface {
	// ObserveLoad records a delivered load with the tier that served it
	// and the time from submission to dispatch.
	ObserveLoad(tier SourceTier, d time.Duration)

	// ObserveFailure records a terminal failure by kind.
	ObserveFailure(kind FailKind)

	// ObserveCancellation records a cancelled load. cause is "reused" or
	// "collected".
	ObserveCancellation(cause string)

	// ObserveFetchedBytes counts bytes copied from remote sources.
	ObserveFetchedBytes(n int64)

	// SetInFlight tracks the number of tasks between submit and terminal
	// outcome.
	SetInFlight(n int64)
}
