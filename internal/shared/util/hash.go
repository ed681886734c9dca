package util

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// HashScopeKey returns a filesystem-safe identifier for an organization or client ID.
func HashScopeKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ChecksumReader wraps a reader and accumulates a SHA-256 checksum of
// everything read through it.
type ChecksumReader struct {
	r io.Reader
	h hash.Hash
	n int64
}

// NewChecksumReader constructs a ChecksumReader over r.
func NewChecksumReader(r io.Reader) *ChecksumReader {
	return &ChecksumReader{r: r, h: sha256.New()}
}

func (c *ChecksumReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.h.Write(p[:n])
		c.n += int64(n)
	}
	return n, err
}

// Sum returns the hex checksum of the bytes read so far.
func (c *ChecksumReader) Sum() string {
	return hex.EncodeToString(c.h.Sum(nil))
}

// BytesRead returns the number of bytes read so far.
func (c *ChecksumReader) BytesRead() int64 {
	return c.n
}
