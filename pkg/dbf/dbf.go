// Package dbf writes dBase III flat files. RTAs consume these as the
// machine-readable manifest accompanying scanned document images, so the
// byte layout (header, 32-byte field descriptors, fixed-width records) is
// mandated and must not drift.
//
// Two backends share the Writer interface: Builder accumulates records in
// memory for batch files written once per run, and FileWriter creates a file
// up front and appends records incrementally.
package dbf

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// FieldType is a dBase III field type code.
type FieldType byte

const (
	Character FieldType = 'C'
	Numeric   FieldType = 'N'
	Date      FieldType = 'D'
)

const (
	fileVersion      = 0x03 // dBase III without memo
	headerTerminator = 0x0D
	recordDeleted    = '*'
	recordActive     = ' '
	eofMarker        = 0x1A

	descriptorSize = 32
	maxNameLen     = 10
)

// Field describes one column of the fixed-width record.
type Field struct {
	Name     string
	Type     FieldType
	Length   int
	Decimals int
}

// Schema is an ordered set of fields.
type Schema []Field

// Validate checks registrar schemas at construction time rather than on
// every append.
func (s Schema) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("dbf: schema has no fields")
	}
	for _, f := range s {
		if f.Name == "" || len(f.Name) > maxNameLen {
			return fmt.Errorf("dbf: field name %q must be 1-%d characters", f.Name, maxNameLen)
		}
		switch f.Type {
		case Character:
			if f.Length < 1 || f.Length > 254 {
				return fmt.Errorf("dbf: field %s: character length %d out of range", f.Name, f.Length)
			}
		case Numeric:
			if f.Length < 1 || f.Length > 18 {
				return fmt.Errorf("dbf: field %s: numeric length %d out of range", f.Name, f.Length)
			}
		case Date:
			if f.Length != 8 {
				return fmt.Errorf("dbf: field %s: date fields are 8 bytes, got %d", f.Name, f.Length)
			}
		default:
			return fmt.Errorf("dbf: field %s: unsupported type %q", f.Name, f.Type)
		}
	}
	return nil
}

// RecordSize is the encoded record width including the deletion flag.
func (s Schema) RecordSize() int {
	size := 1
	for _, f := range s {
		size += f.Length
	}
	return size
}

// HeaderSize is the encoded header width including the terminator byte.
func (s Schema) HeaderSize() int {
	return descriptorSize + descriptorSize*len(s) + 1
}

// Writer appends fixed-width records to a DBF artifact.
type Writer interface {
	// Append encodes one record. Values must match the schema's field count
	// and order.
	Append(values ...string) error

	// Close finalizes the artifact (record count back-fill and EOF marker).
	Close() error
}

// encodeHeader writes the 32-byte file header plus field descriptors.
func encodeHeader(s Schema, recordCount uint32, now time.Time) []byte {
	buf := make([]byte, s.HeaderSize())
	buf[0] = fileVersion
	buf[1] = byte(now.Year() - 1900)
	buf[2] = byte(now.Month())
	buf[3] = byte(now.Day())
	binary.LittleEndian.PutUint32(buf[4:8], recordCount)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(s.HeaderSize()))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(s.RecordSize()))

	for i, f := range s {
		off := descriptorSize + i*descriptorSize
		copy(buf[off:off+maxNameLen+1], f.Name) // NUL padded by make
		buf[off+11] = byte(f.Type)
		buf[off+16] = byte(f.Length)
		buf[off+17] = byte(f.Decimals)
	}

	buf[len(buf)-1] = headerTerminator
	return buf
}

// encodeRecord encodes one record: deletion flag then each field padded to
// its fixed width. Character values are left-justified and space padded;
// numeric values are right-justified; dates pass through as YYYYMMDD.
func encodeRecord(s Schema, values []string) ([]byte, error) {
	if len(values) != len(s) {
		return nil, fmt.Errorf("dbf: got %d values for %d fields", len(values), len(s))
	}

	buf := make([]byte, 0, s.RecordSize())
	buf = append(buf, recordActive)
	for i, f := range s {
		v := values[i]
		if len(v) > f.Length {
			return nil, fmt.Errorf("dbf: field %s: value %q exceeds width %d", f.Name, v, f.Length)
		}
		pad := strings.Repeat(" ", f.Length-len(v))
		switch f.Type {
		case Numeric:
			buf = append(buf, pad...)
			buf = append(buf, v...)
		default:
			buf = append(buf, v...)
			buf = append(buf, pad...)
		}
	}
	return buf, nil
}
