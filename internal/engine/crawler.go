package engine

import (
	"context"
	"os"
	"path/filepath"

	"github.com/prsync/prsync/internal/event"
)

// CrawlerConfig controls crawler behavior.
type CrawlerConfig struct {
	Messages *event.Emitter
	Root     string
	Relative bool // emit paths relative to Root instead of full paths
}

// Crawler walks one source tree and emits an Entry for every file, every
// symlink, and every empty directory. Non-empty directories are implied by
// the paths below them and are not emitted. Symlinks are never followed.
type Crawler struct {
	cfg     CrawlerConfig
	entries chan Entry
}

// NewCrawler creates a crawler with the given config.
func NewCrawler(cfg CrawlerConfig) *Crawler {
	return &Crawler{
		cfg:     cfg,
		entries: make(chan Entry, 256),
	}
}

// Crawl starts the walk and returns the entry channel, which is closed when
// the walk finishes or ctx is done. A Crawler can be crawled only once.
//
// Entries come in a stable order: within a directory, non-directories in
// name order, then each subdirectory depth-first in name order. Entries
// that vanish or cannot be read are reported to Messages and skipped.
func (c *Crawler) Crawl(ctx context.Context) <-chan Entry {
	go func() {
		defer close(c.entries)
		c.walkDir(ctx, c.cfg.Root)
	}()
	return c.entries
}

func (c *Crawler) walkDir(ctx context.Context, dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		c.cfg.Messages.Errorf("prsync crawl: %v", err)
		return true
	}

	// rsync only recreates directories named in the file list, so an empty
	// one has to be listed explicitly. The root is never listed.
	if len(entries) == 0 && dir != c.cfg.Root {
		info, err := os.Lstat(dir)
		if err != nil {
			c.cfg.Messages.Errorf("prsync crawl: %v", err)
			return true
		}
		return c.send(ctx, Entry{Path: c.path(dir), Size: uint64(info.Size()), EmptyDir: true})
	}

	var subdirs []string
	for _, de := range entries {
		full := filepath.Join(dir, de.Name())
		if de.IsDir() {
			subdirs = append(subdirs, full)
			continue
		}

		info, err := de.Info()
		if err != nil {
			c.cfg.Messages.Errorf("prsync crawl: %v", err)
			continue
		}
		if !c.send(ctx, Entry{Path: c.path(full), Size: uint64(info.Size())}) {
			return false
		}
	}

	for _, sub := range subdirs {
		if !c.walkDir(ctx, sub) {
			return false
		}
	}
	return true
}

func (c *Crawler) path(full string) string {
	if !c.cfg.Relative {
		return full
	}
	rel, err := filepath.Rel(c.cfg.Root, full)
	if err != nil {
		return full
	}
	return rel
}

func (c *Crawler) send(ctx context.Context, e Entry) bool {
	select {
	case c.entries <- e:
		return true
	case <-ctx.Done():
		return false
	}
}
