package dbf

import (
	"fmt"
	"time"
)

// Builder accumulates records in memory and renders the complete file with
// Bytes. Used for per-run batch manifests where every row must land in a
// single file written once.
type Builder struct {
	schema  Schema
	records [][]byte
	closed  bool
	now     func() time.Time
}

// NewBuilder creates an in-memory DBF builder for the schema.
func NewBuilder(schema Schema) (*Builder, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return &Builder{
		schema: schema,
		now:    time.Now,
	}, nil
}

// Append encodes and buffers one record.
func (b *Builder) Append(values ...string) error {
	if b.closed {
		return fmt.Errorf("dbf: append to closed builder")
	}
	rec, err := encodeRecord(b.schema, values)
	if err != nil {
		return err
	}
	b.records = append(b.records, rec)
	return nil
}

// Len returns the number of buffered records.
func (b *Builder) Len() int {
	return len(b.records)
}

// Close marks the builder complete.
func (b *Builder) Close() error {
	b.closed = true
	return nil
}

// Bytes renders the full file: header, records, EOF marker.
func (b *Builder) Bytes() []byte {
	out := encodeHeader(b.schema, uint32(len(b.records)), b.now())
	for _, rec := range b.records {
		out = append(out, rec...)
	}
	return append(out, eofMarker)
}
