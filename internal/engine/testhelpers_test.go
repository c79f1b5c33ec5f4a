package engine_test

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prsync/prsync/internal/event"
	"github.com/prsync/prsync/internal/transfer"
)

// createTestTree populates root with a standard test tree:
//
//	root.txt          (17 bytes)
//	big.bin           (320KB)
//	sub/mid.txt       (19 bytes)
//	sub/deep/leaf.txt (17 bytes)
//	empty/            (empty directory)
//	link.txt          → root.txt (symlink)
func createTestTree(t *testing.T, root string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "deep"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	require.NoError(t, os.WriteFile(
		filepath.Join(root, "root.txt"),
		[]byte("root file content"),
		0o644,
	))

	bigData := bytes.Repeat([]byte("ABCDEFGHIJKLMNOP"), 20000) // 320KB
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "big.bin"),
		bigData,
		0o644,
	))

	require.NoError(t, os.WriteFile(
		filepath.Join(root, "sub", "mid.txt"),
		[]byte("middle file content"),
		0o644,
	))

	require.NoError(t, os.WriteFile(
		filepath.Join(root, "sub", "deep", "leaf.txt"),
		[]byte("leaf file content"),
		0o644,
	))

	require.NoError(t, os.Symlink("root.txt", filepath.Join(root, "link.txt")))
}

// createWideTree writes n small files spread over a few directories.
func createWideTree(t *testing.T, root string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		dir := filepath.Join(root, "d"+string(rune('a'+i%5)))
		require.NoError(t, os.MkdirAll(dir, 0o755))
		name := filepath.Join(dir, "f"+string(rune('a'+i%26))+string(rune('a'+i/26%26)))
		require.NoError(t, os.WriteFile(name, bytes.Repeat([]byte{'x'}, i+1), 0o644))
	}
}

// treeEntry describes one path for tree comparisons.
type treeEntry struct {
	Mode   fs.FileMode
	Data   string
	Target string
}

// listTree maps every path below root to its type and content, so two trees
// can be compared with cmp.Diff.
func listTree(t *testing.T, root string) map[string]treeEntry {
	t.Helper()
	out := make(map[string]treeEntry)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return err
		}
		e := treeEntry{Mode: d.Type()}
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			e.Target, err = os.Readlink(path)
		case d.Type().IsRegular():
			var data []byte
			data, err = os.ReadFile(path)
			e.Data = string(data)
		}
		out[rel] = e
		return err
	})
	require.NoError(t, err)
	return out
}

// readBucket returns the null-delimited paths of an uncompressed bucket file.
func readBucket(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var paths []string
	for _, p := range bytes.Split(data, []byte{0}) {
		if len(p) > 0 {
			paths = append(paths, string(p))
		}
	}
	return paths
}

// fakeTransfer records invocations and answers with result, or with a
// successful Result when result is nil.
type fakeTransfer struct {
	mu     sync.Mutex
	calls  []transfer.Invocation
	paths  map[string][]string // bucket file -> paths, read at call time
	result func(ctx context.Context, inv transfer.Invocation) transfer.Result
}

func (f *fakeTransfer) Transfer(ctx context.Context, inv transfer.Invocation) transfer.Result {
	var paths []string
	if data, err := os.ReadFile(inv.FilesFrom); err == nil {
		for _, p := range bytes.Split(data, []byte{0}) {
			if len(p) > 0 {
				paths = append(paths, string(p))
			}
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, inv)
	if f.paths == nil {
		f.paths = make(map[string][]string)
	}
	f.paths[inv.FilesFrom] = paths
	f.mu.Unlock()

	if f.result != nil {
		return f.result(ctx, inv)
	}
	return transfer.Result{
		Cmdline: "rsync --files-from=" + inv.FilesFrom,
		LogFile: transfer.LogFile(inv.FilesFrom),
		Elapsed: time.Millisecond,
	}
}

func (f *fakeTransfer) invocations() []transfer.Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transfer.Invocation(nil), f.calls...)
}

// recordingSink collects every message until Stop.
type recordingSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *recordingSink) Run(q *event.Queue) error {
	for {
		ev, err := q.Get(context.Background())
		if err != nil {
			return err
		}
		if ev.Type == event.Stop {
			return nil
		}
		s.mu.Lock()
		s.events = append(s.events, ev)
		s.mu.Unlock()
	}
}

func (s *recordingSink) texts(typ event.Type) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, ev := range s.events {
		if ev.Type == typ {
			out = append(out, ev.Text)
		}
	}
	return out
}
