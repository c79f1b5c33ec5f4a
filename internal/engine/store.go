package engine

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// ManifestName is the file, inside a store's root, listing every persisted
// bucket as tab-separated index, digest, files, size and path.
const ManifestName = "manifest.tsv"

// StoreConfig configures a bucket Store.
type StoreConfig struct {
	Root     string
	Compress bool
}

// BucketFile describes a persisted bucket.
type BucketFile struct {
	Path   string
	Digest string
}

// BucketPersistError is returned by Persist. The bucket is lost but the run
// can continue with the next one.
type BucketPersistError struct {
	Err   error
	Op    string
	Path  string
	Index int
}

func (e *BucketPersistError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("bucket %d: %s: %v", e.Index, e.Op, e.Err)
	}
	return fmt.Sprintf("bucket %d: %s %s: %v", e.Index, e.Op, e.Path, e.Err)
}

func (e *BucketPersistError) Unwrap() error {
	return e.Err
}

// Store writes buckets as null-delimited path lists below its root, two
// directory levels deep so no directory holds more than 1024 bucket files.
type Store struct {
	cfg      StoreConfig
	mu       sync.Mutex
	manifest *os.File
}

// NewStore creates a store rooted at an existing directory.
func NewStore(cfg StoreConfig) (*Store, error) {
	f, err := os.OpenFile(filepath.Join(cfg.Root, ManifestName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	return &Store{cfg: cfg, manifest: f}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.cfg.Root
}

// ShardDir returns the two directory levels a bucket index is stored under.
func ShardDir(index int) (hi, lo string) {
	name := fmt.Sprintf("%08d", index/1024)
	return name[:4], name[4:]
}

// Persist sorts the bucket's paths and writes them to a new file. The
// returned digest covers the bytes on disk, compressed or not.
func (s *Store) Persist(index int, b Bucket) (BucketFile, error) {
	hi, lo := ShardDir(index)
	dir := filepath.Join(s.cfg.Root, hi, lo)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return BucketFile{}, &BucketPersistError{Index: index, Op: "mkdir", Path: dir, Err: err}
	}

	f, err := os.CreateTemp(dir, "bucket-*")
	if err != nil {
		return BucketFile{}, &BucketPersistError{Index: index, Op: "create", Path: dir, Err: err}
	}
	path := f.Name()

	// sorted input lets rsync avoid rescanning shared parent directories
	paths := slices.Clone(b.Paths)
	slices.Sort(paths)

	h := newDigest()
	if err := writeBucket(f, h, paths, s.cfg.Compress); err != nil {
		f.Close()
		os.Remove(path)
		return BucketFile{}, &BucketPersistError{Index: index, Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return BucketFile{}, &BucketPersistError{Index: index, Op: "close", Path: path, Err: err}
	}

	bf := BucketFile{Path: path, Digest: digestHex(h)}
	if err := s.record(index, b, bf); err != nil {
		os.Remove(path)
		return BucketFile{}, &BucketPersistError{Index: index, Op: "manifest", Err: err}
	}
	return bf, nil
}

func writeBucket(f *os.File, h io.Writer, paths []string, compress bool) error {
	var w io.Writer = io.MultiWriter(f, h)
	var zw *gzip.Writer
	if compress {
		zw = gzip.NewWriter(w)
		w = zw
	}

	bw := bufio.NewWriter(w)
	for _, p := range paths {
		if _, err := bw.WriteString(p); err != nil {
			return err
		}
		if err := bw.WriteByte(0); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if zw != nil {
		return zw.Close()
	}
	return nil
}

func (s *Store) record(index int, b Bucket, bf BucketFile) error {
	line := strconv.Itoa(index) + "\t" + bf.Digest + "\t" +
		strconv.FormatUint(uint64(b.Files), 10) + "\t" +
		strconv.FormatUint(b.Size, 10) + "\t" + bf.Path + "\n"

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.manifest == nil {
		return os.ErrClosed
	}
	_, err := io.WriteString(s.manifest, line)
	return err
}

// Close flushes and closes the manifest.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.manifest == nil {
		return nil
	}
	err := s.manifest.Sync()
	if cerr := s.manifest.Close(); err == nil {
		err = cerr
	}
	s.manifest = nil
	return err
}

// Remove closes the store and deletes its whole tree.
func (s *Store) Remove() error {
	if err := s.Close(); err != nil {
		return err
	}
	return os.RemoveAll(s.cfg.Root)
}

// CreateBucketsDir makes a fresh, uniquely named buckets directory inside
// parent, or inside the system temp directory when parent is empty.
func CreateBucketsDir(parent, runID string) (string, error) {
	pattern := "prsync-"
	if runID != "" {
		pattern += runID + "-"
	}
	dir, err := os.MkdirTemp(parent, pattern)
	if err != nil {
		return "", fmt.Errorf("buckets dir: %w", err)
	}
	return dir, nil
}
