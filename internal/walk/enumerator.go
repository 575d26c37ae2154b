package walk

import (
	"errors"
	"io/fs"
	"iter"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// Enumerator lazily yields the regular files below a root. Errors are
// yielded alongside an empty or partial path and do not end the sequence.
type Enumerator interface {
	Enumerate(root string) iter.Seq2[string, error]
}

// FSEnumerator walks a billy filesystem. Symbolic links are reported by
// Lstat and never followed, so linked directories are not descended into
// and linked files are not yielded.
type FSEnumerator struct {
	FS billy.Filesystem

	// Absolute resolves relative roots against the working directory.
	Absolute bool
}

// NewOSEnumerator walks the host filesystem and yields absolute paths.
func NewOSEnumerator() FSEnumerator {
	return FSEnumerator{FS: osfs.New("/"), Absolute: true}
}

var errStopWalk = errors.New("stop walk")

func (e FSEnumerator) Enumerate(root string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if e.Absolute {
			abs, err := filepath.Abs(root)
			if err != nil {
				yield(root, err)
				return
			}
			root = abs
		}

		err := util.Walk(e.FS, root, func(path string, info fs.FileInfo, err error) error {
			if err != nil {
				if !yield(path, err) {
					return errStopWalk
				}
				return nil
			}
			if !info.Mode().IsRegular() {
				return nil
			}
			if !yield(path, nil) {
				return errStopWalk
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopWalk) {
			yield(root, err)
		}
	}
}
