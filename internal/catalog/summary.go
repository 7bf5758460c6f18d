package catalog

import (
	"log/slog"
	"time"
)

// Outcome is what happened to one source asset.
type Outcome string

const (
	OutcomeCreated       Outcome = "created"
	OutcomeSkipped       Outcome = "skipped"
	OutcomeOutsideRegion Outcome = "outside_region"
	OutcomeFailed        Outcome = "failed"
)

// AssetResult records the processing of one source asset.
type AssetResult struct {
	Source  string
	ItemID  string
	Outcome Outcome
	Err     error
	// Degraded lists derived assets left out of a published item.
	Degraded []string
}

// BucketResult summarizes one collection day.
type BucketResult struct {
	Collection string
	Day        time.Time
	// State is the bucket's state once reconciliation finished.
	State   BucketState
	Assets  []AssetResult
	Elapsed time.Duration
	// Err is set when the day could not be reconciled at all.
	Err error
}

func (b *BucketResult) count(o Outcome) int {
	n := 0
	for _, a := range b.Assets {
		if a.Outcome == o {
			n++
		}
	}
	return n
}

func (b *BucketResult) Created() int       { return b.count(OutcomeCreated) }
func (b *BucketResult) Skipped() int       { return b.count(OutcomeSkipped) }
func (b *BucketResult) Failed() int        { return b.count(OutcomeFailed) }
func (b *BucketResult) OutsideRegion() int { return b.count(OutcomeOutsideRegion) }

// LogValue implements slog.LogValuer so a bucket can be logged as one group.
func (b *BucketResult) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("collection", b.Collection),
		slog.String("bucket", b.Day.Format(time.DateOnly)),
		slog.String("state", b.State.String()),
		slog.Int("created", b.Created()),
		slog.Int("skipped", b.Skipped()),
		slog.Int("outside_region", b.OutsideRegion()),
		slog.Int("failed", b.Failed()),
		slog.Duration("elapsed", b.Elapsed),
	)
}

// Summary is the result of a Run.
type Summary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Buckets    []*BucketResult
}

func (s *Summary) total(o Outcome) int {
	n := 0
	for _, b := range s.Buckets {
		n += b.count(o)
	}
	return n
}

func (s *Summary) Created() int { return s.total(OutcomeCreated) }
func (s *Summary) Skipped() int { return s.total(OutcomeSkipped) }
func (s *Summary) Failed() int  { return s.total(OutcomeFailed) }

// BucketErrors returns the buckets that could not be reconciled.
func (s *Summary) BucketErrors() []*BucketResult {
	var failed []*BucketResult
	for _, b := range s.Buckets {
		if b.Err != nil {
			failed = append(failed, b)
		}
	}
	return failed
}

// Failures returns every failed asset across all buckets.
func (s *Summary) Failures() []AssetResult {
	var failed []AssetResult
	for _, b := range s.Buckets {
		for _, a := range b.Assets {
			if a.Outcome == OutcomeFailed {
				failed = append(failed, a)
			}
		}
	}
	return failed
}
