package observability

import (
	"sync/atomic"
	"time"
)

// JobStats keeps cheap in-process counters for the worker. Prometheus
// covers dashboards; this feeds the worker's own stats endpoint.
type JobStats struct {
	claimed atomic.Uint64
	done    atomic.Uint64
	retried atomic.Uint64
	failed  atomic.Uint64

	durationCount atomic.Uint64
	durationTotal atomic.Int64
	durationMax   atomic.Int64
}

func NewJobStats() *JobStats {
	return &JobStats{}
}

func (s *JobStats) IncClaimed() { s.claimed.Add(1) }
func (s *JobStats) IncDone()    { s.done.Add(1) }
func (s *JobStats) IncRetried() { s.retried.Add(1) }
func (s *JobStats) IncFailed()  { s.failed.Add(1) }

func (s *JobStats) ObserveDuration(d time.Duration) {
	ns := d.Nanoseconds()
	s.durationCount.Add(1)
	s.durationTotal.Add(ns)

	for {
		curr := s.durationMax.Load()

		if ns <= curr {
			return
		}

		if s.durationMax.CompareAndSwap(curr, ns) {
			return
		}
	}
}

type JobStatsSnapshot struct {
	Claimed         uint64        `json:"claimed"`
	Done            uint64        `json:"done"`
	Retried         uint64        `json:"retried"`
	Failed          uint64        `json:"failed"`
	DurationCount   uint64        `json:"durationCount"`
	AverageDuration time.Duration `json:"averageDurationNs"`
	MaxDuration     time.Duration `json:"maxDurationNs"`
}

func (s *JobStats) Snapshot() JobStatsSnapshot {
	count := s.durationCount.Load()
	total := s.durationTotal.Load()

	var avg time.Duration

	if count > 0 {
		avg = time.Duration(total / int64(count))
	}

	return JobStatsSnapshot{
		Claimed:         s.claimed.Load(),
		Done:            s.done.Load(),
		Retried:         s.retried.Load(),
		Failed:          s.failed.Load(),
		DurationCount:   count,
		AverageDuration: avg,
		MaxDuration:     time.Duration(s.durationMax.Load()),
	}
}
