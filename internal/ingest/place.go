package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const maxCollisionSuffix = 99

// reservations tracks destination paths claimed during one Apply so that
// concurrent placements never pick the same free name.
type reservations struct {
	mu    sync.Mutex
	owner map[string]int
}

func newReservations(ops []*FileOperation) *reservations {
	r := &reservations{owner: make(map[string]int)}
	for i, op := range ops {
		for _, p := range []string{op.DestPath, op.RawBackupPath} {
			if p != "" {
				r.owner[p] = i
			}
		}
	}
	return r
}

// claim reserves path for op unless another operation holds it.
func (r *reservations) claim(path string, op int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.owner[path]; ok && owner != op {
		return false
	}
	r.owner[path] = op
	return true
}

type placed struct {
	path    string
	created bool
	hash    string
	size    int64
}

// placeFile copies src to target, or to a free _NN variant of it when
// target holds different content. An existing file whose hash equals the
// source's is adopted without copying.
func (e *Executor) placeFile(ctx context.Context, src ScannedFile, target, expected string, res *reservations, idx int) (*placed, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, &ExecutionError{Path: filepath.Dir(target), Op: "create directory", Err: err}
	}

	for n := 0; n <= maxCollisionSuffix; n++ {
		candidate := target
		if n > 0 {
			candidate = withSuffix(target, n)
		}
		if !res.claim(candidate, idx) {
			continue
		}

		if _, err := os.Lstat(candidate); err == nil {
			if expected == "" {
				h, err := e.hasher.ExactHash(ctx, src.Path)
				if err != nil {
					return nil, err
				}
				e.metrics.HashComputed("exact")
				expected = h
			}
			existing, err := e.hasher.ExactHash(ctx, candidate)
			if err != nil {
				return nil, err
			}
			e.metrics.HashComputed("exact")
			if existing == expected {
				e.logger.Info("adopting existing destination", "source", src.Path, "dest", candidate)
				return &placed{path: candidate, hash: expected}, nil
			}
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, &ExecutionError{Path: candidate, Op: "stat", Err: err}
		}

		hash, size, err := copyFile(ctx, src.Path, candidate, src.ModTime)
		if err != nil {
			return nil, err
		}
		if expected != "" && hash != expected {
			os.Remove(candidate)
			return nil, &IntegrityVerificationError{Path: src.Path, Expected: expected, Actual: hash}
		}
		return &placed{path: candidate, created: true, hash: hash, size: size}, nil
	}
	return nil, &ExecutionError{Path: target, Op: "place", Err: fmt.Errorf("no free name after %d attempts", maxCollisionSuffix)}
}

// copyFile writes src to dst through a temp file in dst's directory while
// hashing the bytes read. The temp file is synced, given src's mtime and
// renamed into place.
func copyFile(ctx context.Context, src, dst string, modTime time.Time) (string, int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", 0, &ExecutionError{Path: src, Op: "open", Err: err}
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".ingest-*")
	if err != nil {
		return "", 0, &ExecutionError{Path: dst, Op: "create temp file", Err: err}
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	h := sha256.New()
	written, err := io.Copy(tmp, io.TeeReader(&ctxReader{ctx: ctx, r: in}, h))
	if err != nil {
		tmp.Close()
		return "", 0, &ExecutionError{Path: dst, Op: "copy", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", 0, &ExecutionError{Path: dst, Op: "sync", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return "", 0, &ExecutionError{Path: dst, Op: "close", Err: err}
	}
	if !modTime.IsZero() {
		if err := os.Chtimes(tmpPath, modTime, modTime); err != nil {
			return "", 0, &ExecutionError{Path: dst, Op: "set mtime", Err: err}
		}
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return "", 0, &ExecutionError{Path: dst, Op: "rename", Err: err}
	}

	success = true
	return hex.EncodeToString(h.Sum(nil)), written, nil
}

// ctxReader stops a copy once ctx is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
