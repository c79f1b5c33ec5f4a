package stats

import (
	"sync/atomic"
	"time"
)

// Collector tracks completed transfer work using lock-free atomic counters.
// The monitor is its only writer; anyone may take a Snapshot.
type Collector struct {
	buckets     atomic.Int64
	entries     atomic.Uint64
	bytes       atomic.Uint64
	errors      atomic.Int64
	workersDone atomic.Int64
	runtime     atomic.Int64 // cumulative worker runtime in nanoseconds
	startTime   time.Time
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// AddBucket records one successfully transferred bucket.
func (c *Collector) AddBucket(entries uint32, bytes uint64, elapsed time.Duration) {
	c.buckets.Add(1)
	c.entries.Add(uint64(entries))
	c.bytes.Add(bytes)
	c.runtime.Add(int64(elapsed))
}

func (c *Collector) AddError()      { c.errors.Add(1) }
func (c *Collector) AddWorkerDone() { c.workersDone.Add(1) }

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	Buckets       int64
	Entries       uint64
	Bytes         uint64
	Errors        int64
	WorkersDone   int64
	WorkerRuntime time.Duration
	Elapsed       time.Duration
}

// Snapshot returns a point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		Buckets:       c.buckets.Load(),
		Entries:       c.entries.Load(),
		Bytes:         c.bytes.Load(),
		Errors:        c.errors.Load(),
		WorkersDone:   c.workersDone.Load(),
		WorkerRuntime: time.Duration(c.runtime.Load()),
		Elapsed:       c.Elapsed(),
	}
}

// Rates returns bytes and entries per second over the snapshot's elapsed
// time. Both are zero when no time has elapsed.
func (s Snapshot) Rates() (bytesPerSec, entriesPerSec float64) {
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		return 0, 0
	}
	return float64(s.Bytes) / secs, float64(s.Entries) / secs
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}
