package stats

import (
	"fmt"
	"io"
	"time"
)

// RunStats is the final aggregate of a run, assembled once by the monitor.
type RunStats struct {
	Errors           int64
	TotalSize        uint64
	TotalEntries     uint64
	Buckets          int64
	BytesPerSecond   float64
	EntriesPerSecond float64
	Workers          int
	WorkersDone      int64
	WorkerRuntime    time.Duration
	CrawlTime        time.Duration
	TotalTime        time.Duration
}

// ReportInfo carries the run context printed alongside the statistics.
type ReportInfo struct {
	WorkDir string
	Cmdline string
}

// WriteReport prints the human-readable end-of-run statistics.
func WriteReport(w io.Writer, s RunStats, info ReportInfo) {
	status := "SUCCESS"
	if s.Errors > 0 {
		status = fmt.Sprintf("FAILURE, %d rsync process(es) had errors", s.Errors)
	}

	fmt.Fprintln(w, "Status:", status)
	fmt.Fprintln(w, "Working directory:", info.WorkDir)
	fmt.Fprintln(w, "Command line:", info.Cmdline)
	fmt.Fprintf(w, "Total size: %s\n", FormatSize(float64(s.TotalSize)))
	fmt.Fprintf(w, "Total entries: %d\n", s.TotalEntries)
	fmt.Fprintf(w, "Buckets number: %d\n", s.Buckets)
	if s.Buckets > 0 {
		fmt.Fprintf(w, "Mean entries per bucket: %d\n", s.TotalEntries/uint64(s.Buckets))
		fmt.Fprintf(w, "Mean size per bucket: %s\n", FormatSize(float64(s.TotalSize)/float64(s.Buckets)))
	}
	fmt.Fprintf(w, "Entries per second: %d\n", int64(s.EntriesPerSecond))
	fmt.Fprintf(w, "Speed: %s/s\n", FormatSize(s.BytesPerSecond))
	fmt.Fprintf(w, "Rsync workers: %d\n", s.Workers)
	fmt.Fprintf(w, "Total rsync's processes (%d) cumulative runtime: %.1fs\n", s.Buckets, s.WorkerRuntime.Seconds())

	var crawlPct float64
	if s.TotalTime > 0 {
		crawlPct = 100 * s.CrawlTime.Seconds() / s.TotalTime.Seconds()
	}
	fmt.Fprintf(w, "Crawl time: %.1fs (%.1f%% of total runtime)\n", s.CrawlTime.Seconds(), crawlPct)
	fmt.Fprintf(w, "Total time: %.1fs\n", s.TotalTime.Seconds())
}
