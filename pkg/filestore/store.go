// Package filestore abstracts the container/name-addressed object store the
// generation pipeline reads identity documents from and writes registrar
// archives to.
package filestore

import "context"

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Name     string
	Size     int64
	Checksum string
}

// Store is the blob-store surface the engines consume.
type Store interface {
	// Download fetches container/name to a file inside destDir and returns
	// the local path.
	Download(ctx context.Context, container, name, destDir string) (string, error)

	// Upload stores the local file at container/name and returns the stored
	// object's info (checksum populated).
	Upload(ctx context.Context, container, name, localPath string) (ObjectInfo, error)

	// Stat returns the stored object's name and size.
	Stat(ctx context.Context, container, name string) (ObjectInfo, error)
}
