package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var networkFilesystems = map[string]struct{}{
	"afpfs":  {},
	"cifs":   {},
	"nfs":    {},
	"smbfs":  {},
	"smb2":   {},
	"webdav": {},
}

// errDetectUnsupported is returned by detectFilesystemType on platforms
// where the check is skipped.
var errDetectUnsupported = errors.New("filesystem detection is unsupported on this platform")

// NetworkFSError reports a catalog path that lives on a network filesystem,
// where SQLite locking is unreliable.
type NetworkFSError struct {
	Path   string
	FSType string
}

func (e *NetworkFSError) Error() string {
	return fmt.Sprintf("catalog path %q is on network filesystem %q; SQLite needs a local disk for reliable locking (set catalog.path or --catalog)",
		e.Path, e.FSType)
}

// CheckLocal returns a *NetworkFSError when path, or its closest existing
// ancestor, is on a network filesystem. Platforms without detection pass.
func CheckLocal(path string) error {
	return checkLocal(path, detectFilesystemType)
}

func checkLocal(path string, detect func(string) (string, error)) error {
	if path == "" {
		return fmt.Errorf("sqlite path is empty")
	}

	existing, err := closestExisting(path)
	if err != nil {
		return fmt.Errorf("resolve catalog path %q: %w", path, err)
	}

	fsType, err := detect(existing)
	switch {
	case errors.Is(err, errDetectUnsupported):
		return nil
	case err != nil:
		return fmt.Errorf("detect filesystem for %q: %w", existing, err)
	case isNetworkFilesystem(fsType):
		return &NetworkFSError{Path: path, FSType: fsType}
	}
	return nil
}

// closestExisting walks up from path until something exists.
func closestExisting(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		_, err := os.Stat(p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no existing ancestor of %q", path)
		}
		p = parent
	}
}

func isNetworkFilesystem(fsType string) bool {
	_, ok := networkFilesystems[strings.ToLower(strings.TrimSpace(fsType))]
	return ok
}
