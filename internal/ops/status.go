package ops

import (
	"sync"
	"time"

	"github.com/dylanlee/wncat/internal/catalog"
)

// RunStatus describes one finished sync run.
type RunStatus struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Buckets    int       `json:"buckets"`
	Created    int       `json:"created"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

// Status is the body of /status.
type Status struct {
	Running     bool       `json:"running"`
	RunningFrom *time.Time `json:"running_since,omitempty"`
	Runs        int        `json:"runs"`
	LastRun     *RunStatus `json:"last_run,omitempty"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
}

// Tracker records sync runs for the status endpoint. It is safe for
// concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	status Status
}

// NewTracker creates a tracker with no runs.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Begin marks a run as started at t.
func (t *Tracker) Begin(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Running = true
	t.status.RunningFrom = &at
}

// Finish records the outcome of the run started by the last Begin.
func (t *Tracker) Finish(summary *catalog.Summary, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Running = false
	t.status.RunningFrom = nil
	t.status.Runs++

	run := &RunStatus{}
	if summary != nil {
		run.RunID = summary.RunID
		run.StartedAt = summary.StartedAt
		run.FinishedAt = summary.FinishedAt
		run.Buckets = len(summary.Buckets)
		run.Created = summary.Created()
		run.Skipped = summary.Skipped()
		run.Failed = summary.Failed()
	}
	if err != nil {
		run.Error = err.Error()
	} else {
		finished := run.FinishedAt
		t.status.LastSuccess = &finished
	}
	t.status.LastRun = run
}

// Snapshot returns a copy of the current status.
func (t *Tracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.status
	if s.LastRun != nil {
		run := *s.LastRun
		s.LastRun = &run
	}
	return s
}
