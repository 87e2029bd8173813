package orchestrator

import (
	"sync"
	"time"

	"shiptrack/internal/tracking/models"
)

// Stage names where an entry failed.
const (
	StageDispatch  = "dispatch"
	StageRateLimit = "rate_limit"
	StageFetch     = "fetch"
	StageReconcile = "reconcile"
)

type EntryOutcome string

const (
	OutcomeUpdated   EntryOutcome = "updated"
	OutcomeStale     EntryOutcome = "stale"
	OutcomeFailed    EntryOutcome = "failed"
	OutcomeDeferred  EntryOutcome = "deferred"
	OutcomeAbandoned EntryOutcome = "abandoned"
)

// EntryFailure records one entry that could not be processed.
type EntryFailure struct {
	OrderID        string         `json:"order_id"`
	TrackingNumber string         `json:"tracking_number"`
	Carrier        models.Carrier `json:"carrier"`
	Stage          string         `json:"stage"`
	Error          string         `json:"error"`
}

// CycleReport summarizes one RunCycle. Total counts drained entries;
// every drained entry lands in exactly one of the outcome counters.
type CycleReport struct {
	CycleID    string         `json:"cycle_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Total      int            `json:"total"`
	Updated    int            `json:"updated"`
	Stale      int            `json:"stale"`
	Failed     int            `json:"failed"`
	Deferred   int            `json:"deferred"`
	Abandoned  int            `json:"abandoned"`
	Failures   []EntryFailure `json:"failures,omitempty"`
}

// Duration is the wall time of the cycle.
func (r CycleReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// reportBuilder is shared by the per-carrier workers of one cycle.
type reportBuilder struct {
	mu     sync.Mutex
	report CycleReport
}

func (b *reportBuilder) record(outcome EntryOutcome, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch outcome {
	case OutcomeUpdated:
		b.report.Updated += n
	case OutcomeStale:
		b.report.Stale += n
	case OutcomeDeferred:
		b.report.Deferred += n
	case OutcomeAbandoned:
		b.report.Abandoned += n
	}
}

func (b *reportBuilder) fail(f EntryFailure) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.report.Failed++
	b.report.Failures = append(b.report.Failures, f)
}

func (b *reportBuilder) snapshot() CycleReport {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.report
	r.Failures = append([]EntryFailure(nil), b.report.Failures...)
	return r
}
