// Package archive assembles registrar submission ZIPs. Entries are
// compressed as they are added and streamed straight to the destination
// file, so a run's archive never has to fit in memory.
package archive

import (
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/klauspost/compress/zip"
)

// Builder writes a ZIP archive to a local file. Entries can be added flat at
// the archive root or grouped under named subfolders, per registrar layout.
type Builder struct {
	file      *os.File
	zw        *zip.Writer
	path      string
	closed    bool
	finalized bool
}

// NewBuilder creates the destination file and an empty archive.
func NewBuilder(destPath string) (*Builder, error) {
	f, err := os.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("archive: create %s: %w", destPath, err)
	}
	return &Builder{
		file: f,
		zw:   zip.NewWriter(f),
		path: destPath,
	}, nil
}

// Path returns the destination file path.
func (b *Builder) Path() string {
	return b.path
}

// Add streams one entry into the archive root.
func (b *Builder) Add(name string, r io.Reader) error {
	return b.add(name, r)
}

// AddInFolder streams one entry under the named subfolder.
func (b *Builder) AddInFolder(folder, name string, r io.Reader) error {
	return b.add(path.Join(folder, name), r)
}

// AddLocalFile streams a file from disk into the archive root under the
// given entry name.
func (b *Builder) AddLocalFile(name, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", localPath, err)
	}
	defer f.Close()
	return b.add(name, f)
}

// AddLocalFileInFolder streams a file from disk under the named subfolder.
func (b *Builder) AddLocalFileInFolder(folder, name, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", localPath, err)
	}
	defer f.Close()
	return b.add(path.Join(folder, name), f)
}

func (b *Builder) add(entryName string, r io.Reader) error {
	if b.closed {
		return fmt.Errorf("archive: add to closed archive")
	}

	w, err := b.zw.CreateHeader(&zip.FileHeader{
		Name:     entryName,
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("archive: create entry %s: %w", entryName, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("archive: write entry %s: %w", entryName, err)
	}
	return nil
}

// Close finalizes the central directory and syncs the file to disk.
func (b *Builder) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true

	if err := b.zw.Close(); err != nil {
		b.file.Close()
		return fmt.Errorf("archive: finalize: %w", err)
	}
	if err := b.file.Sync(); err != nil {
		b.file.Close()
		return fmt.Errorf("archive: sync: %w", err)
	}
	if err := b.file.Close(); err != nil {
		return err
	}
	b.finalized = true
	return nil
}

// Abort discards a partially written archive, removing the destination
// file. Aborting a successfully closed archive is a no-op.
func (b *Builder) Abort() {
	if b.finalized {
		return
	}
	if !b.closed {
		b.closed = true
		b.zw.Close()
		b.file.Close()
	}
	os.Remove(b.path)
}
