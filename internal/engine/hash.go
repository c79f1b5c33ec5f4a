package engine

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// HashFile computes the BLAKE3 hash of the file at path, returning the hex-encoded digest.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := newDigest()
	if _, err := io.CopyBuffer(h, f, make([]byte, 32*1024)); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return digestHex(h), nil
}

func newDigest() hash.Hash {
	return blake3.New()
}

func digestHex(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
