package arrow

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// Column positions in CacheEntrySchema.
const (
	colKey = iota
	colMethod
	colURL
	colParams
	colTimestamp
	colData
	numCols
)

// CacheEntrySchema returns the Arrow schema for a persisted cache entry.
//
// Fields:
//   - key: string - derived cache key
//   - method: string - upper-cased HTTP method
//   - url: string - request URL
//   - params: string - canonical JSON of the request parameters
//   - timestamp: timestamp[ms] - time the entry was stored
//   - data: binary (nullable) - response payload
func CacheEntrySchema() *arrow.Schema {
	return arrow.NewSchema(
		[]arrow.Field{
			{Name: "key", Type: arrow.BinaryTypes.String},
			{Name: "method", Type: arrow.BinaryTypes.String},
			{Name: "url", Type: arrow.BinaryTypes.String},
			{Name: "params", Type: arrow.BinaryTypes.String},
			{Name: "timestamp", Type: arrow.FixedWidthTypes.Timestamp_ms},
			{Name: "data", Type: arrow.BinaryTypes.Binary, Nullable: true},
		},
		nil,
	)
}
