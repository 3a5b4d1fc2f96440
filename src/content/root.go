// Package content provides the roots from which a host serves the binary
// assets referenced by its graph.
package content

import (
	"errors"
	"path"
	"strings"
)

// ErrNotExist is returned when a file or directory does not exist in a Root.
var ErrNotExist = errors.New("file does not exist")

// Root is a read-only tree of files addressed by slash-separated paths
// relative to the root.
type Root interface {
	// ReadFile returns the full content of the file at p.
	ReadFile(p string) ([]byte, error)

	// ReadDir returns the names of the entries of the directory at p, sorted
	// by name. The empty path and "." designate the root itself.
	ReadDir(p string) ([]string, error)
}

// cleanPath turns p into a relative slash path without leading "./" or "/".
// The root itself is the empty string.
func cleanPath(p string) string {
	p = path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "/")
}
