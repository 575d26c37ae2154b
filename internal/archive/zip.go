package archive

import (
	"context"

	"github.com/klauspost/compress/zip"
)

// ZipLister reads the central directory of a zip-format archive (jar, war,
// ear) in-process.
type ZipLister struct {
	// Suffixes filters entries; empty keeps every file entry.
	Suffixes []string
}

func (z ZipLister) List(ctx context.Context, path string) (Listing, error) {
	if path == "" {
		return Listing{}, ErrEmptyPath
	}

	r, err := zip.OpenReader(path)
	if err != nil {
		return Listing{}, &ListError{Path: path, Detail: err.Error(), Err: err}
	}
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return Listing{}, &ListError{Path: path, Detail: "listing cancelled", Err: err}
		}
		if f.FileInfo().IsDir() {
			continue
		}
		names = append(names, f.Name)
	}

	return Listing{Path: path, Entries: filterEntries(names, z.Suffixes)}, nil
}
