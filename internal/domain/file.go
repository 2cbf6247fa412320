package domain

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var videoExtensions = map[string]bool{".mp4": true, ".mov": true, ".avi": true}

// FileRef points at a blob the user picked for upload. Either Path (a local
// file) or Data (bytes already in memory, e.g. downloaded from a chat app) is set.
type FileRef struct {
	Name string
	Path string
	Data []byte
}

// IsVideo reports whether the file is shown as a video entry.
func (f FileRef) IsVideo() bool {
	return videoExtensions[strings.ToLower(filepath.Ext(f.Name))]
}

// IsZero reports whether nothing was picked.
func (f FileRef) IsZero() bool {
	return strings.TrimSpace(f.Name) == "" && f.Path == "" && len(f.Data) == 0
}

// Reference is the opaque handle stored in the timeline for this blob.
func (f FileRef) Reference() string {
	if f.Path != "" {
		return "file://" + f.Path
	}
	return "mem://" + f.Name
}

// Open returns a reader over the blob contents.
func (f FileRef) Open() (io.ReadCloser, error) {
	if f.Data != nil {
		return io.NopCloser(bytes.NewReader(f.Data)), nil
	}
	if f.Path == "" {
		return nil, fmt.Errorf("file %q has no content", f.Name)
	}
	return os.Open(f.Path)
}
