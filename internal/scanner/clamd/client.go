package clamd

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"clientdocs-backend/internal/scanner"
	"clientdocs-backend/internal/shared/storage/object"
)

const chunkSize = 2048

// Client scans stored blobs by streaming them to a clamd daemon over its
// INSTREAM protocol.
type Client struct {
	addr  string
	store object.BlobStore

	// dial is overridable in tests.
	dial func(ctx context.Context, addr string) (net.Conn, error)
}

// New constructs a clamd-backed scanner reading blobs from the given store.
func New(addr string, store object.BlobStore) (*Client, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("clamd address is required")
	}
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	return &Client{
		addr:  addr,
		store: store,
		dial: func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", addr)
		},
	}, nil
}

// Scan streams the blob to clamd and parses the verdict line.
func (c *Client) Scan(ctx context.Context, storageKey string) (scanner.Result, error) {
	body, err := c.store.Open(ctx, storageKey)
	if err != nil {
		return scanner.Result{}, fmt.Errorf("open blob key=%s: %w", storageKey, err)
	}
	defer body.Close()

	conn, err := c.dial(ctx, c.addr)
	if err != nil {
		return scanner.Result{}, fmt.Errorf("dial clamd %s: %w", c.addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write([]byte("zINSTREAM\x00")); err != nil {
		return scanner.Result{}, fmt.Errorf("clamd instream: %w", err)
	}

	buf := make([]byte, chunkSize)
	var size [4]byte
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			binary.BigEndian.PutUint32(size[:], uint32(n))
			if _, err := conn.Write(size[:]); err != nil {
				return scanner.Result{}, fmt.Errorf("clamd chunk size: %w", err)
			}
			if _, err := conn.Write(buf[:n]); err != nil {
				return scanner.Result{}, fmt.Errorf("clamd chunk: %w", err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return scanner.Result{}, fmt.Errorf("read blob key=%s: %w", storageKey, readErr)
		}
	}

	// Zero-length chunk terminates the stream.
	binary.BigEndian.PutUint32(size[:], 0)
	if _, err := conn.Write(size[:]); err != nil {
		return scanner.Result{}, fmt.Errorf("clamd terminate: %w", err)
	}

	verdict, err := io.ReadAll(conn)
	if err != nil {
		return scanner.Result{}, fmt.Errorf("clamd verdict: %w", err)
	}
	return parseVerdict(string(verdict))
}

func parseVerdict(raw string) (scanner.Result, error) {
	line := strings.TrimRight(raw, "\x00\n ")
	switch {
	case strings.HasSuffix(line, "OK"):
		return scanner.Result{Clean: true, ScannedAt: time.Now().UTC()}, nil
	case strings.HasSuffix(line, "FOUND"):
		sig := strings.TrimSuffix(line, " FOUND")
		if idx := strings.LastIndex(sig, ": "); idx >= 0 {
			sig = sig[idx+2:]
		}
		return scanner.Result{Clean: false, Signature: sig, ScannedAt: time.Now().UTC()}, nil
	default:
		return scanner.Result{}, fmt.Errorf("clamd unexpected response: %q", line)
	}
}

var _ scanner.Scanner = (*Client)(nil)
