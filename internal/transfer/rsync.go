// Package transfer invokes the external rsync binary for one bucket file.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

const (
	// DefaultOptions are the rsync options used when the operator gives none.
	DefaultOptions = "-aS --numeric-ids"
	// DefaultTimeout bounds one bucket transfer.
	DefaultTimeout = 7 * 24 * time.Hour
	// CheckTimeout bounds the options pre-flight run.
	CheckTimeout = 60 * time.Second

	waitDelay   = 5 * time.Second
	stderrLimit = 4096
)

var (
	// ErrDeleteOption is returned for operator options that delete at the destination.
	ErrDeleteOption = errors.New("delete options cannot be used with partitioned transfers")
	// ErrOptionsCheck is returned when the pre-flight run of the options fails.
	ErrOptionsCheck = errors.New("rsync options check failed")
)

// ParseOptions splits an options string with shell quoting rules.
func ParseOptions(s string) ([]string, error) {
	opts, err := shellquote.Split(s)
	if err != nil {
		return nil, fmt.Errorf("parse rsync options %q: %w", s, err)
	}
	return opts, nil
}

// ValidateOptions rejects any delete-type flag. Deleting at the destination
// while buckets land independently and out of order would remove files that
// another bucket has yet to deliver.
func ValidateOptions(opts []string) error {
	for _, o := range opts {
		if strings.HasPrefix(o, "--delete") || o == "--del" {
			return fmt.Errorf("%w: %s", ErrDeleteOption, o)
		}
	}
	return nil
}

// FixedFlags returns the flags appended to every bucket transfer after the
// operator's options.
func FixedFlags(filesFrom string) []string {
	return []string{
		"--quiet",
		"--verbose",
		"--stats",
		"--from0",
		"--files-from=" + filesFrom,
		"--log-file=" + LogFile(filesFrom),
	}
}

// LogFile returns the per-bucket rsync log path.
func LogFile(filesFrom string) string {
	return filesFrom + ".log"
}

// Invocation is one bucket transfer.
type Invocation struct {
	FilesFrom string // null-delimited list of paths relative to Src
	Src       string
	Dst       string
}

// Result is the outcome of one rsync run.
type Result struct {
	Err         error // set when rsync could not be started
	Cmdline     string
	LogFile     string
	Stderr      string
	ExitCode    int
	Elapsed     time.Duration
	TimedOut    bool
	Interrupted bool
}

// OK reports whether rsync ran to completion with exit status 0.
func (r Result) OK() bool {
	return r.ExitCode == 0 && !r.TimedOut && !r.Interrupted && r.Err == nil
}

// Runner runs rsync with a fixed set of operator options.
type Runner struct {
	Exe     string
	Options []string
	Timeout time.Duration
}

// NewRunner locates rsync (exe may be a bare name resolved through PATH).
func NewRunner(exe string, options []string, timeout time.Duration) (*Runner, error) {
	path, err := exec.LookPath(exe)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", exe, err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{Exe: path, Options: options, Timeout: timeout}, nil
}

// Args returns the rsync argument vector for inv.
func (r *Runner) Args(inv Invocation) []string {
	args := make([]string, 0, len(r.Options)+8)
	args = append(args, r.Options...)
	args = append(args, FixedFlags(inv.FilesFrom)...)
	return append(args, inv.Src, inv.Dst)
}

// Transfer runs rsync for one bucket and waits for it, killing it when the
// runner's timeout expires or ctx is cancelled.
func (r *Runner) Transfer(ctx context.Context, inv Invocation) Result {
	res := r.run(ctx, r.Args(inv), r.Timeout)
	res.LogFile = LogFile(inv.FilesFrom)
	return res
}

// Check runs the operator's options once between two empty scratch
// directories, so a bad option fails the whole run before any bucket is made.
func (r *Runner) Check(ctx context.Context) error {
	scratch, err := os.MkdirTemp("", "prsync-check-")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOptionsCheck, err)
	}
	defer os.RemoveAll(scratch)

	src := filepath.Join(scratch, "src")
	dst := filepath.Join(scratch, "dst")
	for _, d := range []string{src, dst} {
		if err := os.Mkdir(d, 0o700); err != nil {
			return fmt.Errorf("%w: %w", ErrOptionsCheck, err)
		}
	}

	args := make([]string, 0, len(r.Options)+7)
	args = append(args, r.Options...)
	args = append(args, "--quiet", "--stats", "--verbose", "--from0",
		"--log-file="+filepath.Join(scratch, "check.log"),
		src+string(os.PathSeparator), dst)

	res := r.run(ctx, args, CheckTimeout)
	switch {
	case res.Interrupted:
		return ctx.Err()
	case res.TimedOut:
		return fmt.Errorf("%w: %q took more than %s", ErrOptionsCheck, res.Cmdline, CheckTimeout)
	case res.Err != nil:
		return fmt.Errorf("%w: %q: %w", ErrOptionsCheck, res.Cmdline, res.Err)
	case res.ExitCode != 0:
		return fmt.Errorf("%w: %q exited %d: %s", ErrOptionsCheck, res.Cmdline, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

func (r *Runner) run(ctx context.Context, args []string, timeout time.Duration) Result {
	res := Result{Cmdline: shellquote.Join(append([]string{r.Exe}, args...)...)}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stderr := &tailBuffer{limit: stderrLimit}
	cmd := exec.CommandContext(runCtx, r.Exe, args...)
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	start := time.Now()
	err := cmd.Run()
	res.Elapsed = time.Since(start)
	res.Stderr = stderr.String()

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() != nil:
		res.Interrupted = true
		res.ExitCode = -1
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
		res.ExitCode = -1
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
		res.Err = fmt.Errorf("launch %s: %w", r.Exe, err)
	}
	return res
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	buf   []byte
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.buf) }
