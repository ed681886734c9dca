package local

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"clientdocs-backend/internal/shared/storage/object"
	"clientdocs-backend/internal/shared/util"
)

// Store implements BlobStore using the local filesystem. URLs it issues
// are application-relative download paths with an expiry marker; they
// exist so dev and test flows exercise the same contract as S3.
type Store struct {
	baseDir string
}

// New creates a new local blob store rooted at baseDir.
func New(baseDir string) object.BlobStore {
	return &Store{baseDir: baseDir}
}

// Put writes the reader to disk under the organization's namespace with a
// random prefix, computing the SHA-256 checksum while writing.
func (s *Store) Put(ctx context.Context, orgID string, fileName string, r io.Reader) (object.PutResult, error) {
	sanitizedName, err := util.SanitizeFileName(fileName)
	if err != nil {
		return object.PutResult{}, fmt.Errorf("sanitize file name: %w", err)
	}

	scopeKey := util.HashScopeKey(orgID)

	if err := ctx.Err(); err != nil {
		return object.PutResult{}, err
	}

	finalName := fmt.Sprintf("%s_%s", randomID(), sanitizedName)

	dirPath := filepath.Join(s.baseDir, scopeKey)
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return object.PutResult{}, fmt.Errorf("mkdir: %w", err)
	}

	fullPath := filepath.Join(dirPath, finalName)
	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return object.PutResult{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	var sniff [512]byte
	n, readErr := io.ReadFull(r, sniff[:])
	if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
		return object.PutResult{}, fmt.Errorf("read sniff: %w", readErr)
	}

	mimeType := http.DetectContentType(sniff[:n])

	checksum := util.NewChecksumReader(io.MultiReader(strings.NewReader(string(sniff[:n])), r))
	if _, err := io.Copy(f, checksum); err != nil {
		return object.PutResult{}, fmt.Errorf("write body: %w", err)
	}

	return object.PutResult{
		Key:       filepath.ToSlash(filepath.Join(scopeKey, finalName)),
		Checksum:  checksum.Sum(),
		SizeBytes: checksum.BytesRead(),
		MimeType:  mimeType,
	}, nil
}

// PutDerived writes a derived artifact to disk at a specific storage key.
func (s *Store) PutDerived(ctx context.Context, storageKey string, contentType string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	_ = contentType

	clean, err := s.cleanKey(storageKey)
	if err != nil {
		return 0, err
	}

	fullPath := filepath.Join(s.baseDir, clean)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return 0, fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	written, err := io.Copy(f, r)
	if err != nil {
		return 0, fmt.Errorf("write body: %w", err)
	}
	return written, nil
}

// Open opens a stored object for reading.
func (s *Store) Open(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean, err := s.cleanKey(storageKey)
	if err != nil {
		return nil, err
	}
	return os.Open(filepath.Join(s.baseDir, clean))
}

// GetURL returns a relative download URL with an expiry marker. TTL is
// capped at 30 minutes to keep parity with the S3 store.
func (s *Store) GetURL(ctx context.Context, storageKey string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if ttl <= 0 || ttl > 30*time.Minute {
		ttl = 30 * time.Minute
	}
	expires := time.Now().UTC().Add(ttl).Unix()
	return "/blobs/" + url.PathEscape(storageKey) + "?expires=" + strconv.FormatInt(expires, 10), nil
}

func (s *Store) cleanKey(storageKey string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(storageKey))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key")
	}
	return clean, nil
}

func randomID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

var _ object.BlobStore = (*Store)(nil)
