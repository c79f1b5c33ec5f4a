package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/prsync/prsync/internal/event"
	"github.com/prsync/prsync/internal/stats"
	"golang.org/x/time/rate"
)

// DefaultProgressInterval is the minimum time between two progress lines.
const DefaultProgressInterval = 200 * time.Millisecond

// FailureMessage is emitted once at shutdown when any bucket failed.
const FailureMessage = "prsync error: some files/attr were not transferred (see previous errors)"

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	Queue    *MonitorQueue
	Totals   *stats.Totals // planned totals, written by the orchestrator
	Messages *event.Emitter
	Workers  int
	Progress bool
	// ProgressInterval throttles progress lines. Zero means the default;
	// negative disables throttling.
	ProgressInterval time.Duration
}

// Monitor aggregates worker results into run statistics and reports
// progress and failures to the message sink.
type Monitor struct {
	cfg       MonitorConfig
	collector *stats.Collector
	progress  rate.Sometimes
	pending   string // last progress line not yet emitted
}

// NewMonitor creates a monitor.
func NewMonitor(cfg MonitorConfig) *Monitor {
	m := &Monitor{cfg: cfg}
	switch {
	case cfg.ProgressInterval == 0:
		m.progress = rate.Sometimes{First: 1, Interval: DefaultProgressInterval}
	case cfg.ProgressInterval < 0:
		m.progress = rate.Sometimes{Every: 1}
	default:
		m.progress = rate.Sometimes{First: 1, Interval: cfg.ProgressInterval}
	}
	return m
}

// Run consumes the monitor queue until MonitorShutdown (or until ctx is
// done) and returns the aggregated statistics. Throughput is measured from
// the moment Run starts.
func (m *Monitor) Run(ctx context.Context) stats.RunStats {
	m.collector = stats.NewCollector()
	var bytesPerSec, entriesPerSec float64

loop:
	for {
		msg, err := m.cfg.Queue.Get(ctx)
		if err != nil {
			break
		}

		switch msg.Kind {
		case MonitorWorkerDone:
			m.collector.AddWorkerDone()
		case MonitorShutdown:
			break loop
		case MonitorResult:
			res := msg.Result
			if !res.OK() {
				m.collector.AddError()
				m.reportFailure(res)
				continue
			}
			m.collector.AddBucket(res.Job.Files, res.Job.Size, res.Elapsed)
			snap := m.collector.Snapshot()
			bytesPerSec, entriesPerSec = snap.Rates()
			if m.cfg.Progress {
				m.reportProgress(snap, bytesPerSec, entriesPerSec, res.QueueLen)
			}
		}
	}

	if m.pending != "" {
		m.cfg.Messages.Progress(m.pending)
		m.pending = ""
	}

	snap := m.collector.Snapshot()
	if snap.Errors > 0 {
		m.cfg.Messages.Errorf("%s", FailureMessage)
	}

	plannedEntries, plannedBytes := m.cfg.Totals.Planned()
	return stats.RunStats{
		Errors:           snap.Errors,
		TotalSize:        plannedBytes,
		TotalEntries:     plannedEntries,
		Buckets:          snap.Buckets,
		BytesPerSecond:   bytesPerSec,
		EntriesPerSecond: entriesPerSec,
		Workers:          m.cfg.Workers,
		WorkersDone:      snap.WorkersDone,
		WorkerRuntime:    snap.WorkerRuntime,
		CrawlTime:        m.cfg.Totals.CrawlTime(),
		TotalTime:        m.cfg.Totals.TotalTime(),
	}
}

func (m *Monitor) reportProgress(snap stats.Snapshot, bytesPerSec, entriesPerSec float64, jobQueueLen int) {
	plannedEntries, plannedBytes := m.cfg.Totals.Planned()
	m.pending = fmt.Sprintf("[%d/%d entries] [%s/%s transferred] [%d entries/s] [%s/s bw] [monq %d] [jq %d]",
		snap.Entries, plannedEntries,
		stats.FormatSize(float64(snap.Bytes)), stats.FormatSize(float64(plannedBytes)),
		uint64(entriesPerSec), stats.FormatSize(bytesPerSec),
		m.cfg.Queue.Len(), jobQueueLen)
	m.progress.Do(func() {
		m.cfg.Messages.Progress(m.pending)
		m.pending = ""
	})
}

func (m *Monitor) reportFailure(res JobResult) {
	format := "errors during rsync command (see '%s' rsync log file): %s\n%s"
	if res.Kind == TransferTimedOut {
		format = "rsync command took too long and has been killed (see '%s' rsync log file): %s\n%s"
	}
	m.cfg.Messages.Errorf(format, res.LogFile, res.Msg, res.Cmdline)
}
