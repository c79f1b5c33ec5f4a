package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prsync/prsync/internal/engine"
	"github.com/prsync/prsync/internal/event"
	"github.com/prsync/prsync/internal/queue"
	"github.com/prsync/prsync/internal/stats"
)

func drainEvents(t *testing.T, q *event.Queue) []event.Event {
	t.Helper()
	var out []event.Event
	for q.Len() > 0 {
		ev, err := q.Get(context.Background())
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func okResult(files uint32, size uint64) engine.MonitorMsg {
	return engine.MonitorMsg{Kind: engine.MonitorResult, Result: engine.JobResult{
		Job:     engine.Job{Files: files, Size: size},
		Elapsed: time.Second,
	}}
}

func TestMonitorAggregates(t *testing.T) {
	t.Parallel()
	monq := queue.New[engine.MonitorMsg]()
	evq := event.NewQueue()
	totals := &stats.Totals{}
	totals.AddPlanned(30, 3000)
	totals.SetCrawlTime(time.Second)
	totals.SetTotalTime(4 * time.Second)

	monq.Put(okResult(10, 1000))
	monq.Put(engine.MonitorMsg{Kind: engine.MonitorResult, Result: engine.JobResult{
		Job:      engine.Job{Files: 10, Size: 1000},
		Kind:     engine.TransferFailed,
		ExitCode: 23,
		LogFile:  "/b/bucket-1.log",
		Msg:      "partial transfer",
		Cmdline:  "rsync -a --files-from=/b/bucket-1 /src /dst",
	}})
	monq.Put(okResult(10, 1000))
	monq.Put(engine.MonitorMsg{Kind: engine.MonitorWorkerDone, Worker: 0})
	monq.Put(engine.MonitorMsg{Kind: engine.MonitorWorkerDone, Worker: 1})
	monq.Put(engine.MonitorMsg{Kind: engine.MonitorShutdown})

	got := engine.NewMonitor(engine.MonitorConfig{
		Queue:    monq,
		Totals:   totals,
		Messages: event.NewEmitter(evq),
		Workers:  2,
	}).Run(context.Background())

	assert.Equal(t, int64(1), got.Errors)
	assert.Equal(t, int64(2), got.Buckets)
	assert.Equal(t, int64(2), got.WorkersDone)
	assert.Equal(t, 2, got.Workers)
	assert.Equal(t, uint64(30), got.TotalEntries)
	assert.Equal(t, uint64(3000), got.TotalSize)
	assert.Equal(t, 2*time.Second, got.WorkerRuntime)
	assert.Equal(t, time.Second, got.CrawlTime)
	assert.Equal(t, 4*time.Second, got.TotalTime)
	assert.Greater(t, got.BytesPerSecond, 0.0)

	evs := drainEvents(t, evq)
	require.Len(t, evs, 2, "progress is off")
	assert.Equal(t, event.Error, evs[0].Type)
	assert.Equal(t, "errors during rsync command (see '/b/bucket-1.log' rsync log file): partial transfer\n"+
		"rsync -a --files-from=/b/bucket-1 /src /dst", evs[0].Text)
	assert.Equal(t, event.Error, evs[1].Type)
	assert.Equal(t, engine.FailureMessage, evs[1].Text)
}

func TestMonitorTimeoutMessage(t *testing.T) {
	t.Parallel()
	monq := queue.New[engine.MonitorMsg]()
	evq := event.NewQueue()
	monq.Put(engine.MonitorMsg{Kind: engine.MonitorResult, Result: engine.JobResult{
		Kind: engine.TransferTimedOut, TimedOut: true, ExitCode: -1,
		LogFile: "x.log", Cmdline: "rsync x",
	}})
	monq.Put(engine.MonitorMsg{Kind: engine.MonitorShutdown})

	engine.NewMonitor(engine.MonitorConfig{Queue: monq, Totals: &stats.Totals{}, Messages: event.NewEmitter(evq)}).
		Run(context.Background())

	evs := drainEvents(t, evq)
	require.NotEmpty(t, evs)
	assert.Equal(t, "rsync command took too long and has been killed (see 'x.log' rsync log file): \nrsync x", evs[0].Text)
}

func TestMonitorProgress(t *testing.T) {
	t.Parallel()
	monq := queue.New[engine.MonitorMsg]()
	evq := event.NewQueue()
	totals := &stats.Totals{}
	totals.AddPlanned(2, 2048)

	first := okResult(1, 1024)
	first.Result.QueueLen = 7
	monq.Put(first)
	monq.Put(okResult(1, 1024))
	monq.Put(engine.MonitorMsg{Kind: engine.MonitorShutdown})

	engine.NewMonitor(engine.MonitorConfig{
		Queue: monq, Totals: totals, Messages: event.NewEmitter(evq),
		Progress: true, ProgressInterval: -1,
	}).Run(context.Background())

	evs := drainEvents(t, evq)
	require.Len(t, evs, 2)
	for _, ev := range evs {
		assert.Equal(t, event.Progress, ev.Type)
	}
	assert.Regexp(t, `^\[1/2 entries\] \[1\.0 K/2\.0 K transferred\] \[\d+ entries/s\] \[.+/s bw\] \[monq 2\] \[jq 7\]$`, evs[0].Text)
	assert.Regexp(t, `^\[2/2 entries\] \[2\.0 K/2\.0 K transferred\]`, evs[1].Text)
}

func TestMonitorProgressThrottledButFlushed(t *testing.T) {
	t.Parallel()
	monq := queue.New[engine.MonitorMsg]()
	evq := event.NewQueue()
	totals := &stats.Totals{}
	totals.AddPlanned(3, 3)
	for i := 0; i < 3; i++ {
		monq.Put(okResult(1, 1))
	}
	monq.Put(engine.MonitorMsg{Kind: engine.MonitorShutdown})

	engine.NewMonitor(engine.MonitorConfig{
		Queue: monq, Totals: totals, Messages: event.NewEmitter(evq),
		Progress: true, ProgressInterval: time.Hour,
	}).Run(context.Background())

	evs := drainEvents(t, evq)
	require.Len(t, evs, 2, "first line, then the final counters")
	assert.Contains(t, evs[0].Text, "[1/3 entries]")
	assert.Contains(t, evs[1].Text, "[3/3 entries]")
}

func TestMonitorOnlyShutdownStops(t *testing.T) {
	t.Parallel()
	monq := queue.New[engine.MonitorMsg]()
	done := make(chan stats.RunStats, 1)
	go func() {
		done <- engine.NewMonitor(engine.MonitorConfig{Queue: monq, Totals: &stats.Totals{}}).Run(context.Background())
	}()

	monq.Put(engine.MonitorMsg{Kind: engine.MonitorWorkerDone})
	monq.Put(engine.MonitorMsg{Kind: engine.MonitorWorkerDone})
	select {
	case <-done:
		t.Fatal("monitor stopped before shutdown")
	case <-time.After(50 * time.Millisecond):
	}

	monq.Put(engine.MonitorMsg{Kind: engine.MonitorShutdown})
	got := <-done
	assert.Equal(t, int64(2), got.WorkersDone)
	assert.Zero(t, got.Errors)
}
