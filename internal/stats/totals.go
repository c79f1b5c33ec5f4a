package stats

import (
	"sync/atomic"
	"time"
)

// Totals holds the planned size of a run. The orchestrator is the single
// writer: it adds each bucket as it is enqueued and records the crawl and
// total durations. The monitor and the report only read.
type Totals struct {
	bytes     atomic.Uint64
	entries   atomic.Uint64
	crawlTime atomic.Int64
	totalTime atomic.Int64
}

// AddPlanned adds one enqueued bucket to the planned totals.
func (t *Totals) AddPlanned(entries uint32, bytes uint64) {
	t.entries.Add(uint64(entries))
	t.bytes.Add(bytes)
}

// Planned returns the planned entry and byte counts.
func (t *Totals) Planned() (entries, bytes uint64) {
	return t.entries.Load(), t.bytes.Load()
}

func (t *Totals) SetCrawlTime(d time.Duration) { t.crawlTime.Store(int64(d)) }
func (t *Totals) CrawlTime() time.Duration     { return time.Duration(t.crawlTime.Load()) }
func (t *Totals) SetTotalTime(d time.Duration) { t.totalTime.Store(int64(d)) }
func (t *Totals) TotalTime() time.Duration     { return time.Duration(t.totalTime.Load()) }
