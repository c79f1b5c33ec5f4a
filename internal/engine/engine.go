package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prsync/prsync/internal/event"
	"github.com/prsync/prsync/internal/queue"
	"github.com/prsync/prsync/internal/stats"
)

// MessageSink renders operator messages until it receives event.Stop.
type MessageSink interface {
	Run(q *event.Queue) error
}

// Config describes a parallel rsync run.
type Config struct {
	Transfer   Transferer // unused in dry-run mode
	Sink       MessageSink
	Dst        string
	BucketsDir string // existing directory the buckets are written to
	RunID      string
	Sources    []string
	Limits     Limits
	Workers    int
	// ProgressInterval throttles progress lines, see MonitorConfig.
	ProgressInterval time.Duration
	Keep             bool // keep BucketsDir after the run
	Compress         bool
	Progress         bool
	DryRun           bool
}

// Result is the outcome of a run.
type Result struct {
	Err         error
	BucketsDir  string
	Stats       stats.RunStats
	Buckets     int // buckets persisted and queued
	Interrupted bool
}

// Run crawls every source, persists buckets, and hands them to the worker
// pool, blocking until every bucket is transferred or ctx is cancelled.
// Per-bucket failures are counted in Result.Stats.Errors; Result.Err is only
// set when the run could not start.
func Run(ctx context.Context, cfg Config) Result {
	start := time.Now()
	log := slog.With("run", cfg.RunID)

	store, err := NewStore(StoreConfig{Root: cfg.BucketsDir, Compress: cfg.Compress})
	if err != nil {
		return Result{Err: fmt.Errorf("bucket store: %w", err), BucketsDir: cfg.BucketsDir}
	}
	defer func() {
		if cfg.Keep {
			if err := store.Close(); err != nil {
				log.Warn("closing bucket manifest", "error", err)
			}
			return
		}
		if err := store.Remove(); err != nil {
			log.Warn("removing buckets dir", "dir", cfg.BucketsDir, "error", err)
		}
	}()

	jobs := queue.New[WorkItem]()
	monq := queue.New[MonitorMsg]()
	msgq := event.NewQueue()
	messages := event.NewEmitter(msgq)
	totals := &stats.Totals{}

	sink := cfg.Sink
	if sink == nil {
		sink = discardSink{}
	}
	sinkDone := make(chan error, 1)
	go func() { sinkDone <- sink.Run(msgq) }()

	monitor := NewMonitor(MonitorConfig{
		Queue:            monq,
		Totals:           totals,
		Messages:         messages,
		Workers:          cfg.Workers,
		Progress:         cfg.Progress,
		ProgressInterval: cfg.ProgressInterval,
	})
	monDone := make(chan stats.RunStats, 1)
	// only MonitorShutdown stops the monitor, so results already queued by
	// workers are still counted after an interrupt
	go func() { monDone <- monitor.Run(context.WithoutCancel(ctx)) }()

	pool := NewWorkerPool(WorkerConfig{
		Jobs:       jobs,
		Monitor:    monq,
		Transfer:   cfg.Transfer,
		Dst:        cfg.Dst,
		NumWorkers: cfg.Workers,
		DryRun:     cfg.DryRun,
	})
	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		pool.Run(ctx)
	}()

	p := &producer{store: store, jobs: jobs, totals: totals, messages: messages, limits: cfg.Limits}
	if cwd, err := os.Getwd(); err == nil {
		p.cwd = cwd
	}
	for _, src := range cfg.Sources {
		if ctx.Err() != nil {
			break
		}
		p.crawl(ctx, src)
	}
	totals.SetCrawlTime(time.Since(start))
	log.Debug("crawl finished", "buckets", p.index, "elapsed", totals.CrawlTime())

	jobs.Put(WorkItem{Kind: WorkStop})
	<-poolDone
	totals.SetTotalTime(time.Since(start))

	monq.Put(MonitorMsg{Kind: MonitorShutdown})
	runStats := <-monDone

	messages.Close()
	if err := <-sinkDone; err != nil {
		log.Warn("message sink", "error", err)
	}

	return Result{
		BucketsDir:  cfg.BucketsDir,
		Stats:       runStats,
		Buckets:     p.index,
		Interrupted: ctx.Err() != nil,
	}
}

// producer turns crawled sources into queued jobs. It is the only writer of
// the planned totals.
type producer struct {
	store    *Store
	jobs     *JobQueue
	totals   *stats.Totals
	messages *event.Emitter
	cwd      string
	limits   Limits
	index    int
}

func (p *producer) crawl(ctx context.Context, src string) {
	srcBase := SourceBase(src, p.cwd)
	crawler := NewCrawler(CrawlerConfig{Root: src, Relative: true, Messages: p.messages})
	buckets := Split(ctx, src, crawler.Crawl(ctx), p.limits)

	for b := range buckets {
		bf, err := p.store.Persist(p.index, b)
		if err != nil {
			p.messages.Errorf("prsync crawl: cannot create bucket file: %v", err)
			continue
		}
		p.totals.AddPlanned(b.Files, b.Size)
		p.jobs.Put(WorkItem{Kind: WorkJob, Job: Job{
			SrcBase:    srcBase,
			BucketFile: bf.Path,
			Digest:     bf.Digest,
			Size:       b.Size,
			Index:      p.index,
			Files:      b.Files,
		}})
		p.index++
	}
}

type discardSink struct{}

func (discardSink) Run(q *event.Queue) error {
	for {
		ev, err := q.Get(context.Background())
		if err != nil {
			return err
		}
		if ev.Type == event.Stop {
			return nil
		}
	}
}
