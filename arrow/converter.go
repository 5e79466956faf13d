package arrow

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/VanDung-dev/AgriDx-Engine/cache"
)

// Row is a cache entry together with its key.
type Row struct {
	Key   string
	Entry cache.Entry
}

// Converter maps cache rows to Arrow records and back.
type Converter struct {
	allocator memory.Allocator
	schema    *arrow.Schema
}

// NewConverter creates a new Converter with the default memory allocator.
func NewConverter() *Converter {
	return &Converter{
		allocator: memory.DefaultAllocator,
		schema:    CacheEntrySchema(),
	}
}

// Schema returns the schema records are built with.
func (c *Converter) Schema() *arrow.Schema {
	return c.schema
}

// RowsToRecord builds a record holding rows. The caller must Release it.
func (c *Converter) RowsToRecord(rows []Row) arrow.Record {
	builder := array.NewRecordBuilder(c.allocator, c.schema)
	defer builder.Release()

	keyBuilder := builder.Field(colKey).(*array.StringBuilder)
	methodBuilder := builder.Field(colMethod).(*array.StringBuilder)
	urlBuilder := builder.Field(colURL).(*array.StringBuilder)
	paramsBuilder := builder.Field(colParams).(*array.StringBuilder)
	tsBuilder := builder.Field(colTimestamp).(*array.TimestampBuilder)
	dataBuilder := builder.Field(colData).(*array.BinaryBuilder)

	for _, row := range rows {
		keyBuilder.Append(row.Key)
		methodBuilder.Append(row.Entry.Method)
		urlBuilder.Append(row.Entry.URL)
		paramsBuilder.Append(row.Entry.Params)
		tsBuilder.Append(arrow.Timestamp(row.Entry.Timestamp))

		if row.Entry.Data != nil {
			dataBuilder.Append(row.Entry.Data)
		} else {
			dataBuilder.AppendNull()
		}
	}

	return builder.NewRecord()
}

// RecordToRows copies every row out of record.
func (c *Converter) RecordToRows(record arrow.Record) ([]Row, error) {
	if record == nil || record.NumRows() == 0 {
		return nil, nil
	}

	// Validate column count to prevent index out of bounds
	if record.NumCols() != numCols {
		return nil, fmt.Errorf("invalid record: expected %d columns, got %d", numCols, record.NumCols())
	}

	keyCol, ok1 := record.Column(colKey).(*array.String)
	methodCol, ok2 := record.Column(colMethod).(*array.String)
	urlCol, ok3 := record.Column(colURL).(*array.String)
	paramsCol, ok4 := record.Column(colParams).(*array.String)
	tsCol, ok5 := record.Column(colTimestamp).(*array.Timestamp)
	dataCol, ok6 := record.Column(colData).(*array.Binary)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 {
		return nil, fmt.Errorf("invalid record: column types do not match cache entry schema")
	}

	rows := make([]Row, record.NumRows())
	for i := range rows {
		var data []byte
		if !dataCol.IsNull(i) {
			data = append([]byte{}, dataCol.Value(i)...)
		}
		rows[i] = Row{
			Key: keyCol.Value(i),
			Entry: cache.Entry{
				Method:    methodCol.Value(i),
				URL:       urlCol.Value(i),
				Params:    paramsCol.Value(i),
				Timestamp: int64(tsCol.Value(i)),
				Data:      data,
			},
		}
	}
	return rows, nil
}
