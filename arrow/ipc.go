// Package arrow provides Arrow IPC serialization for cache snapshots.
package arrow

import (
	"bytes"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// IPCCodec writes and reads Arrow record batches as an IPC stream.
type IPCCodec struct {
	allocator memory.Allocator
}

// NewIPCCodec creates a new IPCCodec.
func NewIPCCodec() *IPCCodec {
	return &IPCCodec{
		allocator: memory.DefaultAllocator,
	}
}

// Encode writes records to w as a single IPC stream. All records must share
// the schema of the first one.
func (c *IPCCodec) Encode(w io.Writer, records ...arrow.Record) error {
	if len(records) == 0 {
		return fmt.Errorf("no records to serialize")
	}

	writer := ipc.NewWriter(w, ipc.WithSchema(records[0].Schema()), ipc.WithAllocator(c.allocator))
	defer writer.Close()

	for i, record := range records {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	return nil
}

// Marshal serializes records to IPC bytes.
func (c *IPCCodec) Marshal(records ...arrow.Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf, records...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads every record from an IPC stream. The caller must Release
// each returned record.
func (c *IPCCodec) Decode(r io.Reader) ([]arrow.Record, error) {
	reader, err := ipc.NewReader(r, ipc.WithAllocator(c.allocator))
	if err != nil {
		return nil, fmt.Errorf("failed to create reader: %w", err)
	}
	defer reader.Release()

	var records []arrow.Record
	for reader.Next() {
		record := reader.Record()
		record.Retain()
		records = append(records, record)
	}

	if reader.Err() != nil {
		// Release any records we've already retained
		for _, r := range records {
			r.Release()
		}
		return nil, reader.Err()
	}

	return records, nil
}

// Unmarshal deserializes IPC bytes.
func (c *IPCCodec) Unmarshal(data []byte) ([]arrow.Record, error) {
	return c.Decode(bytes.NewReader(data))
}
