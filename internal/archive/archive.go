// Package archive lists the class entries of Java archives.
//
// A Lister is all-or-nothing: when it returns a non-nil error the Listing
// must be ignored, even if the underlying tool produced partial output.
package archive

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

//go:generate mockgen -destination=mocks/mock_lister.go -package=mocks github.com/mattjoyce/jarscout/internal/archive Lister

// ErrEmptyPath is returned when a lister is asked to open "".
var ErrEmptyPath = errors.New("archive path is empty")

// Lister lists the entries of one archive.
type Lister interface {
	List(ctx context.Context, path string) (Listing, error)
}

// ListerFunc adapts a function to Lister.
type ListerFunc func(ctx context.Context, path string) (Listing, error)

func (f ListerFunc) List(ctx context.Context, path string) (Listing, error) { return f(ctx, path) }

// Listing is the successful outcome of listing one archive.
type Listing struct {
	Path    string
	Entries []string
	Digest  string // hex BLAKE3 of the archive bytes, when computed
}

func (l Listing) String() string {
	return fmt.Sprintf("%s: %d classes", l.Path, len(l.Entries))
}

// Classes returns a descriptor for every entry.
func (l Listing) Classes() []Class {
	out := make([]Class, 0, len(l.Entries))
	for _, e := range l.Entries {
		out = append(out, NewClass(e))
	}
	return out
}

// Class describes one class file, inside an archive or stand-alone.
type Class struct {
	File string
	Name string
}

// NewClass builds a Class whose Name is the base name of file.
func NewClass(file string) Class {
	return Class{File: file, Name: filepath.Base(file)}
}

func (c Class) String() string { return c.File + ": " + c.Name }

// ListError reports that an archive could not be listed. Detail carries the
// lister's own description, e.g. the stderr of an external tool.
type ListError struct {
	Path   string
	Detail string
	Err    error
}

func (e *ListError) Error() string {
	return fmt.Sprintf("failed when parsing file %q: %s", e.Path, e.Detail)
}

func (e *ListError) Unwrap() error { return e.Err }

// MatchesSuffix reports whether name ends with one of suffixes, ignoring
// case. An empty suffix list matches everything.
func MatchesSuffix(name string, suffixes []string) bool {
	if len(suffixes) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if s != "" && strings.HasSuffix(lower, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// filterEntries trims each line and keeps the non-empty ones matching suffixes.
func filterEntries(lines []string, suffixes []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasSuffix(l, "/") {
			continue
		}
		if MatchesSuffix(l, suffixes) {
			out = append(out, l)
		}
	}
	return out
}
