package workers

import (
	"context"
	"crypto/md5"
	"encoding/hex"
)

// HashRequest carries the file content to checksum.
type HashRequest struct {
	Name string `json:"name,omitempty"`
	Data []byte `json:"data"`
}

// HashResponse is the MD5 checksum of HashRequest.Data.
type HashResponse struct {
	Name string `json:"name,omitempty"`
	MD5  string `json:"md5"`
	Size int    `json:"size"`
}

// Hash computes the MD5 checksum used for upload de-duplication.
func Hash(_ context.Context, req HashRequest) (HashResponse, error) {
	return HashResponse{Name: req.Name, MD5: MD5Hex(req.Data), Size: len(req.Data)}, nil
}

// MD5Hex returns the lowercase hex MD5 digest of data.
func MD5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
