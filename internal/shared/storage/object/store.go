package object

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrInvalidKey is returned for keys that escape the store root.
var ErrInvalidKey = errors.New("invalid storage key")

// ObjectStore saves and retrieves blobs by key.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// RawOutputKey is where the raw provider text for a job is archived.
func RawOutputKey(jobID string) string {
	return path.Join("analyses", jobID, "raw.txt")
}

// UploadKey is where an uploaded source file is kept. callerKey should already
// be a hashed, filesystem-safe identifier.
func UploadKey(callerKey, uploadID, fileName string) string {
	return path.Join("uploads", callerKey, uploadID+"_"+fileName)
}

// CleanKey normalizes a key and rejects traversal.
func CleanKey(key string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(key))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." || strings.Contains(key, "..") {
		return "", ErrInvalidKey
	}
	return clean, nil
}
