package ledger

// Buffer and batch limits for event recording.
const (
	// BatchFlushThreshold is the number of events that triggers an immediate
	// flush. When the batch reaches this size, it's written to storage
	// without waiting for the timer.
	BatchFlushThreshold = 100
)
