package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/prsync/prsync/internal/transfer"
	"golang.org/x/sync/errgroup"
)

// Transferer runs one bucket transfer. *transfer.Runner is the production
// implementation.
type Transferer interface {
	Transfer(ctx context.Context, inv transfer.Invocation) transfer.Result
}

// WorkerConfig controls worker behavior.
type WorkerConfig struct {
	Jobs       *JobQueue
	Monitor    *MonitorQueue
	Transfer   Transferer
	Dst        string
	NumWorkers int
	DryRun     bool
}

// WorkerPool runs a fixed number of transfer workers over the job queue.
type WorkerPool struct {
	cfg WorkerConfig
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(cfg WorkerConfig) *WorkerPool {
	if cfg.NumWorkers < 1 {
		cfg.NumWorkers = 1
	}
	return &WorkerPool{cfg: cfg}
}

// Run starts the workers and blocks until all of them have exited. A worker
// exits when it dequeues the stop item, which it puts back for the others,
// or when ctx is cancelled. Every worker reports MonitorWorkerDone exactly
// once on its way out.
func (wp *WorkerPool) Run(ctx context.Context) {
	var g errgroup.Group
	for id := 0; id < wp.cfg.NumWorkers; id++ {
		id := id
		g.Go(func() error {
			wp.work(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
}

func (wp *WorkerPool) work(ctx context.Context, id int) {
	defer wp.cfg.Monitor.Put(MonitorMsg{Kind: MonitorWorkerDone, Worker: id})

	for {
		item, err := wp.cfg.Jobs.Get(ctx)
		if err != nil {
			return
		}
		if item.Kind == WorkStop {
			wp.cfg.Jobs.Put(item)
			return
		}

		res, ok := wp.process(ctx, id, item.Job)
		if !ok {
			return
		}
		wp.cfg.Monitor.Put(MonitorMsg{Kind: MonitorResult, Result: res, Worker: id})
	}
}

// process transfers one job. ok is false when the transfer was cut short by
// cancellation; such jobs are not reported.
func (wp *WorkerPool) process(ctx context.Context, id int, job Job) (JobResult, bool) {
	res := JobResult{Job: job, Worker: id}
	if wp.cfg.DryRun {
		res.QueueLen = wp.cfg.Jobs.Len()
		return res, true
	}

	slog.Debug("transferring bucket", "worker", id, "bucket", job.Index,
		"files", job.Files, "size", job.Size, "digest", job.Digest)

	out := wp.cfg.Transfer.Transfer(ctx, transfer.Invocation{
		FilesFrom: job.BucketFile,
		Src:       job.SrcBase,
		Dst:       wp.cfg.Dst,
	})
	if out.Interrupted {
		return res, false
	}

	res.Cmdline = out.Cmdline
	res.LogFile = out.LogFile
	res.ExitCode = out.ExitCode
	res.Elapsed = out.Elapsed
	res.TimedOut = out.TimedOut
	res.QueueLen = wp.cfg.Jobs.Len()

	switch {
	case out.TimedOut:
		res.Kind = TransferTimedOut
	case out.Err != nil:
		res.Kind = TransferFailed
		res.Msg = out.Err.Error()
	case out.ExitCode != 0:
		res.Kind = TransferFailed
		res.Msg = lastLine(out.Stderr)
	}
	if res.Kind != NoError {
		slog.Debug("bucket failed", "worker", id, "bucket", job.Index,
			"exit", res.ExitCode, "kind", res.Kind.String())
	}
	return res, true
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
