// Package storage archives uploaded settlement files so that a saved deposit
// can be traced back to the exact file it was computed from.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("file not found")

// FileInfo contains metadata about a stored file
type FileInfo struct {
	ID          uuid.UUID `json:"id"`
	Namespace   string    `json:"namespace"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType"`
	SHA256      string    `json:"sha256"`
	Path        string    `json:"-"` // relative to the namespace directory
	CreatedAt   time.Time `json:"createdAt"`
}

// Storage defines the interface for file storage operations. Files are
// grouped by namespace, usually a payment method id.
type Storage interface {
	// Save stores a file and returns its metadata
	Save(ctx context.Context, namespace, filename, contentType string, r io.Reader) (*FileInfo, error)

	// Open returns a reader for a stored file and its metadata
	Open(ctx context.Context, namespace string, id uuid.UUID) (io.ReadCloser, *FileInfo, error)

	// GetInfo returns metadata for a file without opening it
	GetInfo(ctx context.Context, namespace string, id uuid.UUID) (*FileInfo, error)

	// List returns the files of a namespace, oldest first
	List(ctx context.Context, namespace string) ([]*FileInfo, error)

	// Delete removes a file
	Delete(ctx context.Context, namespace string, id uuid.UUID) error

	// Prune deletes every file created before the cutoff and reports how
	// many were removed
	Prune(ctx context.Context, before time.Time) (int, error)
}

// StorageType identifies the storage backend
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
)

// Config holds storage configuration
type Config struct {
	Type      StorageType
	LocalPath string
}

// New creates a new Storage implementation based on configuration
func New(cfg *Config) (Storage, error) {
	switch cfg.Type {
	case StorageTypeLocal, "":
		return NewLocalStorage(cfg.LocalPath)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
}
