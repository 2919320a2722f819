// Package filestore persists uploaded attachment content on the local
// filesystem and hands back stable path references. Adapters read the bytes
// back through the same store when building provider payloads.
package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Descriptor references one stored file. The byte content is owned by the
// store; everything else references it by StoragePath only.
type Descriptor struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
	StoredName  string `json:"storedName"`
	StoragePath string `json:"storagePath"`
}

// AccessError is returned when stored content cannot be read back.
// Adapter code recovers from it locally (placeholder text) instead of failing
// the whole send.
type AccessError struct {
	Path string
	Err  error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("filestore: cannot access %q: %v", e.Path, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }

// Local stores files under a single root directory.
type Local struct {
	root string
}

// NewLocal creates the root directory if needed and returns the store.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: create root %q: %w", root, err)
	}
	return &Local{root: root}, nil
}

// Save writes data under a collision-resistant generated name
// (millisecond timestamp + random suffix + sanitized declared name) and
// returns the descriptor for it.
func (s *Local) Save(data []byte, name, contentType string) (Descriptor, error) {
	stored := generateStoredName(name)
	path := filepath.Join(s.root, stored)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Descriptor{}, fmt.Errorf("filestore: write %q: %w", path, err)
	}
	return Descriptor{
		Filename:    name,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		StoredName:  stored,
		StoragePath: path,
	}, nil
}

// Read returns the stored content for path. Fails with *AccessError when the
// file is missing or unreadable.
func (s *Local) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &AccessError{Path: path, Err: err}
	}
	return data, nil
}

// generateStoredName builds "<unix-ms>-<8 hex chars>-<sanitized name>".
// The random suffix keeps two uploads of the same file in the same
// millisecond from colliding.
func generateStoredName(name string) string {
	suffix := uuid.New().String()[:8]
	return fmt.Sprintf("%d-%s-%s", time.Now().UnixMilli(), suffix, sanitizeName(name))
}

// sanitizeName strips path separators and characters that are unsafe in a
// filename, keeping the declared name recognizable.
func sanitizeName(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == '.', c == '-', c == '_':
			b.WriteRune(c)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}
