package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidKey = errors.New("invalid blob key")

// MountPath is the URL path blobs are served under.
const MountPath = "/assets"

// BlobStore holds submission attachments. Keys are slash-separated and
// relative; URL maps a key to the path the gateway serves it under.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	URL(key string) string
}

// SubmissionAssetKey places an upload under the instance and learner it
// belongs to. Only the extension of the client's filename is kept.
func SubmissionAssetKey(instanceID, learnerID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	return path.Join("submissions", instanceID, learnerID, uuid.NewString()+ext)
}

// ParseSubmissionAsset takes a submission asset key, or the URL it is served
// under, and returns the cleaned key with the instance and learner it was
// filed under.
func ParseSubmissionAsset(ref string) (key, instanceID, learnerID string, err error) {
	key, err = CleanKey(strings.TrimPrefix(ref, MountPath+"/"))
	if err != nil {
		return "", "", "", err
	}
	parts := strings.Split(key, "/")
	if len(parts) != 4 || parts[0] != "submissions" {
		return "", "", "", ErrInvalidKey
	}
	return key, parts[1], parts[2], nil
}

// CleanKey rejects empty, absolute and parent-escaping keys.
func CleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return "", ErrInvalidKey
	}
	c := path.Clean(key)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", ErrInvalidKey
	}
	return c, nil
}
