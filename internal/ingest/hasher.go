package ingest

import "context"

// Hasher computes content fingerprints.
type Hasher interface {
	// ExactHash returns the lowercase hex SHA-256 of the file contents.
	ExactHash(ctx context.Context, path string) (string, error)

	// PerceptualHash returns ok=false for files that are not decodable images.
	PerceptualHash(ctx context.Context, path string) (hash string, ok bool, err error)

	// Distance is the Hamming distance between two perceptual hashes.
	Distance(a, b string) (int, error)
}
