// Package hashing computes exact and perceptual content fingerprints.
package hashing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"photo-ingest/internal/ingest"
)

const (
	// DefaultBufferSize is the read buffer for ordinary files.
	DefaultBufferSize = 64 * 1024
	// LargeBufferSize is used for files at or above LargeFileThreshold.
	LargeBufferSize = 1024 * 1024
	// LargeFileThreshold switches to the larger read buffer.
	LargeFileThreshold = 100 * 1024 * 1024
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true,
}

// IsImage reports whether path has an extension the perceptual hasher decodes.
func IsImage(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// Calculator implements ingest.Hasher.
type Calculator struct{}

func NewCalculator() *Calculator {
	return &Calculator{}
}

// ExactHash streams the file through SHA-256. Cancellation is checked
// between reads.
func (c *Calculator) ExactHash(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &ingest.HashComputationError{Path: path, Err: err}
	}
	defer f.Close()

	bufSize := DefaultBufferSize
	if info, err := f.Stat(); err == nil && info.Size() >= LargeFileThreshold {
		bufSize = LargeBufferSize
	}

	h := sha256.New()
	buf := make([]byte, bufSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", &ingest.HashComputationError{Path: path, Err: err}
		}
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", &ingest.HashComputationError{Path: path, Err: err}
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// PerceptualHash returns the 64-bit average hash as 16 hex characters.
// Unsupported or undecodable files yield ok=false and no error.
func (c *Calculator) PerceptualHash(ctx context.Context, path string) (string, bool, error) {
	if !IsImage(path) {
		return "", false, nil
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", false, nil
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", false, nil
	}
	ah, err := goimagehash.AverageHash(img)
	if err != nil {
		return "", false, nil
	}
	return Format(ah.GetHash()), true, nil
}

func (c *Calculator) Distance(a, b string) (int, error) {
	return Distance(a, b)
}

// Format renders a 64-bit hash as fixed-width lowercase hex.
func Format(v uint64) string {
	return fmt.Sprintf("%016x", v)
}

// Distance is the Hamming distance between two hex perceptual hashes.
func Distance(a, b string) (int, error) {
	ha, err := parse(a)
	if err != nil {
		return 0, err
	}
	hb, err := parse(b)
	if err != nil {
		return 0, err
	}
	return ha.Distance(hb)
}

func parse(s string) (*goimagehash.ImageHash, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 16, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid perceptual hash %q: %w", s, err)
	}
	return goimagehash.NewImageHash(v, goimagehash.AHash), nil
}
