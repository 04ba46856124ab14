package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Shared and parallel filesystems common on clusters. SQLite and flock both
// need local locking semantics.
var sharedFilesystems = map[string]struct{}{
	"afpfs":  {},
	"cifs":   {},
	"gpfs":   {},
	"lustre": {},
	"nfs":    {},
	"smb2":   {},
	"smbfs":  {},
	"webdav": {},
}

// CheckLocalFilesystem fails when path, or its nearest existing parent, is
// on a shared filesystem.
func CheckLocalFilesystem(path string) error {
	return checkLocalFilesystem(path, detectFilesystemType)
}

func validateSQLiteFilesystem(path string) error {
	if err := CheckLocalFilesystem(path); err != nil {
		return fmt.Errorf("job database: %w; set state.path to a node-local directory", err)
	}
	return nil
}

func checkLocalFilesystem(path string, detect func(string) (string, error)) error {
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	existing, err := nearestExistingPath(path)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", path, err)
	}
	fsType, err := detect(existing)
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", existing, err)
	}
	if isSharedFilesystem(fsType) {
		return fmt.Errorf("%q is on shared filesystem %q, which lacks reliable locking", path, fsType)
	}
	return nil
}

func nearestExistingPath(path string) (string, error) {
	candidate, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}
	for {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", path)
		}
		candidate = parent
	}
}

func isSharedFilesystem(fsType string) bool {
	_, found := sharedFilesystems[strings.ToLower(strings.TrimSpace(fsType))]
	return found
}
