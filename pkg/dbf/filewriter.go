package dbf

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"
)

// FileWriter creates a DBF file up front and appends records to it. The
// record count in the header is back-filled on Close, so an unclosed file is
// not a valid artifact.
type FileWriter struct {
	schema Schema
	file   *os.File
	count  uint32
	closed bool
}

// NewFileWriter creates path (truncating any previous file) and writes the
// header for the schema.
func NewFileWriter(path string, schema Schema) (*FileWriter, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("dbf: create %s: %w", path, err)
	}

	if _, err := f.Write(encodeHeader(schema, 0, time.Now())); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("dbf: write header: %w", err)
	}

	return &FileWriter{
		schema: schema,
		file:   f,
	}, nil
}

// Append encodes and writes one record.
func (w *FileWriter) Append(values ...string) error {
	if w.closed {
		return fmt.Errorf("dbf: append to closed file")
	}
	rec, err := encodeRecord(w.schema, values)
	if err != nil {
		return err
	}
	if _, err := w.file.Write(rec); err != nil {
		return fmt.Errorf("dbf: write record: %w", err)
	}
	w.count++
	return nil
}

// Close writes the EOF marker, back-fills the record count and closes the
// file.
func (w *FileWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if _, err := w.file.Write([]byte{eofMarker}); err != nil {
		w.file.Close()
		return fmt.Errorf("dbf: write eof: %w", err)
	}

	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], w.count)
	if _, err := w.file.WriteAt(countBuf[:], 4); err != nil {
		w.file.Close()
		return fmt.Errorf("dbf: backfill record count: %w", err)
	}

	return w.file.Close()
}
