package pipeline

import "time"

// Outcome labels reported to an Observer.
const (
	OutcomeOK        = "ok"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"

	DedupKept     = "kept"
	DedupReplaced = "replaced"
	DedupRejected = "rejected"
)

// Observer receives pipeline measurements.
type Observer interface {
	TileProcessed(outcome string, took time.Duration)
	DetectionsFound(n int)
	DedupDecision(outcome string)
	RunFinished(mode, outcome string, took time.Duration)
}

type nopObserver struct{}

func (nopObserver) TileProcessed(string, time.Duration)       {}
func (nopObserver) DetectionsFound(int)                       {}
func (nopObserver) DedupDecision(string)                      {}
func (nopObserver) RunFinished(string, string, time.Duration) {}
