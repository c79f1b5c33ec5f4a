package engine_test

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prsync/prsync/internal/engine"
)

func TestShardDir(t *testing.T) {
	t.Parallel()
	tests := []struct {
		index  int
		hi, lo string
	}{
		{0, "0000", "0000"},
		{12, "0000", "0000"},
		{1023, "0000", "0000"},
		{1024, "0000", "0001"},
		{11264, "0000", "0011"},
		{148472185, "0014", "4992"},
	}
	for _, tt := range tests {
		hi, lo := engine.ShardDir(tt.index)
		assert.Equal(t, tt.hi, hi, "index %d", tt.index)
		assert.Equal(t, tt.lo, lo, "index %d", tt.index)
	}
}

func TestStorePersist(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	store, err := engine.NewStore(engine.StoreConfig{Root: root})
	require.NoError(t, err)

	b := engine.Bucket{Paths: []string{"src/b", "src/a", "src/c/d"}, Files: 3, Size: 42}
	bf, err := store.Persist(11264, b)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "0000", "0011"), filepath.Dir(bf.Path))
	assert.Equal(t, []string{"src/a", "src/b", "src/c/d"}, readBucket(t, bf.Path))

	data, err := os.ReadFile(bf.Path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "\x00"))

	digest, err := engine.HashFile(bf.Path)
	require.NoError(t, err)
	assert.Equal(t, digest, bf.Digest)

	// caller's slice is left alone
	assert.Equal(t, "src/b", b.Paths[0])
	require.NoError(t, store.Close())
}

func TestStorePersistCompressed(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	store, err := engine.NewStore(engine.StoreConfig{Root: root, Compress: true})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	bf, err := store.Persist(0, engine.Bucket{Paths: []string{"y", "x"}, Files: 2})
	require.NoError(t, err)

	f, err := os.Open(bf.Path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "x\x00y\x00", string(raw))

	digest, err := engine.HashFile(bf.Path)
	require.NoError(t, err)
	assert.Equal(t, digest, bf.Digest, "digest covers the compressed bytes")
}

func TestStoreManifest(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	store, err := engine.NewStore(engine.StoreConfig{Root: root})
	require.NoError(t, err)

	bf0, err := store.Persist(0, engine.Bucket{Paths: []string{"a"}, Files: 1, Size: 5})
	require.NoError(t, err)
	bf1, err := store.Persist(1, engine.Bucket{Paths: []string{"b", "c"}, Files: 2, Size: 9})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	f, err := os.Open(filepath.Join(root, engine.ManifestName))
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []string{
		"0\t" + bf0.Digest + "\t1\t5\t" + bf0.Path,
		"1\t" + bf1.Digest + "\t2\t9\t" + bf1.Path,
	}, lines)
}

func TestStorePersistError(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	store, err := engine.NewStore(engine.StoreConfig{Root: root})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	// a plain file where the shard directory should be
	require.NoError(t, os.WriteFile(filepath.Join(root, "0000"), nil, 0o644))

	_, err = store.Persist(3, engine.Bucket{Paths: []string{"a"}, Files: 1})
	require.Error(t, err)

	var perr *engine.BucketPersistError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 3, perr.Index)
	assert.Equal(t, "mkdir", perr.Op)
	assert.NotNil(t, errors.Unwrap(err))
}

func TestStoreRemove(t *testing.T) {
	t.Parallel()
	root := filepath.Join(t.TempDir(), "buckets")
	require.NoError(t, os.Mkdir(root, 0o755))
	store, err := engine.NewStore(engine.StoreConfig{Root: root})
	require.NoError(t, err)
	_, err = store.Persist(0, engine.Bucket{Paths: []string{"a"}, Files: 1})
	require.NoError(t, err)

	require.NoError(t, store.Remove())
	assert.NoDirExists(t, root)
}

func TestCreateBucketsDir(t *testing.T) {
	t.Parallel()
	parent := t.TempDir()
	dir, err := engine.CreateBucketsDir(parent, "abc")
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.Equal(t, parent, filepath.Dir(dir))
	assert.True(t, strings.HasPrefix(filepath.Base(dir), "prsync-abc-"))

	_, err = engine.CreateBucketsDir(filepath.Join(parent, "missing"), "")
	assert.Error(t, err)
}
