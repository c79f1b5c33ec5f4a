package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// bucketer accumulates entries into one working bucket.
type bucketer struct {
	prefix  string
	pending Bucket
	limits  Limits
}

func newBucketer(root string, limits Limits) *bucketer {
	return &bucketer{prefix: bucketPrefix(root), limits: limits}
}

// add appends an entry and reports whether the bucket is now full. Limits
// are only checked after adding, so one large file may overshoot the size
// limit; entries are never split.
func (b *bucketer) add(e Entry) bool {
	b.pending.Paths = append(b.pending.Paths, filepath.Join(b.prefix, e.Path))
	b.pending.Files++
	b.pending.Size += e.Size
	return b.pending.Size >= b.limits.Size || b.pending.Files >= b.limits.Files
}

// flush returns the pending bucket and resets the bucketer. ok is false if
// nothing was pending.
func (b *bucketer) flush() (Bucket, bool) {
	if b.pending.Files == 0 {
		return Bucket{}, false
	}
	bucket := b.pending
	b.pending = Bucket{}
	return bucket, true
}

// Split groups the entries crawled under root into buckets. Every bucket but
// the last one has reached at least one of the limits. Entry paths must be
// relative to root.
func Split(ctx context.Context, root string, entries <-chan Entry, limits Limits) <-chan Bucket {
	out := make(chan Bucket, 4)
	go func() {
		defer close(out)
		b := newBucketer(root, limits)
		send := func(bucket Bucket) bool {
			select {
			case out <- bucket:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for e := range entries {
			if !b.add(e) {
				continue
			}
			bucket, _ := b.flush()
			if !send(bucket) {
				return
			}
		}
		if bucket, ok := b.flush(); ok {
			send(bucket)
		}
	}()
	return out
}

// bucketPrefix is the path element placed in front of every crawled path.
// A trailing separator on root means "the contents of root", so no prefix;
// otherwise the root's own name is kept, as rsync does.
func bucketPrefix(root string) string {
	if strings.HasSuffix(root, string(os.PathSeparator)) {
		return ""
	}
	return filepath.Base(root)
}

// SourceBase returns the directory that bucket paths for root are relative
// to, which becomes the rsync source argument. A root without a directory
// part is relative to cwd.
func SourceBase(root, cwd string) string {
	i := strings.LastIndexByte(root, os.PathSeparator)
	if i < 0 {
		return cwd
	}
	head := root[:i+1]
	if trimmed := strings.TrimRight(head, string(os.PathSeparator)); trimmed != "" {
		head = trimmed
	}
	return head
}
