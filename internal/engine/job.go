package engine

import (
	"time"

	"github.com/prsync/prsync/internal/queue"
)

// Entry is one crawled path: a file, a symlink, or an empty directory.
type Entry struct {
	Path     string // relative to the crawl root (or absolute, see CrawlerConfig.Relative)
	Size     uint64 // lstat size
	EmptyDir bool
}

// Bucket is a group of paths handed to one rsync invocation.
type Bucket struct {
	Paths []string
	Size  uint64
	Files uint32
}

// Limits bound a bucket. A bucket is closed as soon as either is reached.
type Limits struct {
	Size  uint64
	Files uint32
}

// Job is one persisted bucket waiting for a worker.
type Job struct {
	SrcBase    string // directory the bucket's paths are relative to
	BucketFile string
	Digest     string // BLAKE3 of the bucket file
	Size       uint64
	Index      int
	Files      uint32
}

// WorkKind distinguishes jobs from the end-of-queue sentinel.
type WorkKind int

const (
	WorkJob WorkKind = iota + 1
	WorkStop
)

// WorkItem is the element type of the job queue.
type WorkItem struct {
	Job  Job
	Kind WorkKind
}

// JobQueue carries work from the orchestrator to the workers.
type JobQueue = queue.Queue[WorkItem]

// ErrorKind classifies a failed job.
type ErrorKind int

const (
	NoError ErrorKind = iota
	TransferFailed
	TransferTimedOut
)

func (k ErrorKind) String() string {
	switch k {
	case NoError:
		return "none"
	case TransferFailed:
		return "transfer failed"
	case TransferTimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}

// JobResult is a worker's report on one job.
type JobResult struct {
	Job      Job
	Cmdline  string
	LogFile  string
	Msg      string
	ExitCode int
	Elapsed  time.Duration
	QueueLen int // job queue length when the result was produced
	Worker   int
	TimedOut bool
	Kind     ErrorKind
}

// OK reports whether the job transferred successfully.
func (r JobResult) OK() bool {
	return r.Kind == NoError
}

// MonitorKind distinguishes the messages the monitor consumes.
type MonitorKind int

const (
	// MonitorResult carries a JobResult.
	MonitorResult MonitorKind = iota + 1
	// MonitorWorkerDone is sent once by every worker as it exits.
	MonitorWorkerDone
	// MonitorShutdown is sent once by the orchestrator after all workers
	// have exited. It is the only message that stops the monitor.
	MonitorShutdown
)

// MonitorMsg is the element type of the monitor queue.
type MonitorMsg struct {
	Result JobResult
	Kind   MonitorKind
	Worker int
}

// MonitorQueue carries worker results and control messages to the monitor.
type MonitorQueue = queue.Queue[MonitorMsg]
