package archive

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Digesting wraps a Lister and stamps each successful Listing with the
// BLAKE3 digest of the archive. A digest failure fails the whole listing.
type Digesting struct {
	Lister Lister
}

func (d Digesting) List(ctx context.Context, path string) (Listing, error) {
	l, err := d.Lister.List(ctx, path)
	if err != nil {
		return Listing{}, err
	}
	sum, err := ComputeBlake3Hash(path)
	if err != nil {
		return Listing{}, &ListError{Path: path, Detail: err.Error(), Err: err}
	}
	l.Digest = sum
	return l, nil
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
