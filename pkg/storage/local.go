package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	metaDir          = ".meta"
	defaultNamespace = "unassigned"
)

// LocalStorage implements Storage using the local filesystem
type LocalStorage struct {
	basePath string
	now      func() time.Time
}

// NewLocalStorage creates a new local filesystem storage
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if basePath == "" {
		return nil, errors.New("storage path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{basePath: basePath, now: time.Now}, nil
}

// Save stores a file and returns its metadata
func (s *LocalStorage) Save(ctx context.Context, namespace, filename, contentType string, r io.Reader) (*FileInfo, error) {
	namespace = sanitizeNamespace(namespace)
	fileID := uuid.New()

	dir := filepath.Join(s.basePath, namespace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create namespace directory: %w", err)
	}

	storedFilename := fmt.Sprintf("%s_%s", fileID.String()[:8], sanitizeFilename(filename))
	filePath := filepath.Join(dir, storedFilename)

	f, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, h), r)
	if err != nil {
		os.Remove(filePath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	info := &FileInfo{
		ID:          fileID,
		Namespace:   namespace,
		Name:        filename,
		Size:        size,
		ContentType: contentType,
		SHA256:      hex.EncodeToString(h.Sum(nil)),
		Path:        storedFilename,
		CreatedAt:   s.now().UTC(),
	}

	if err := s.saveMetadata(info); err != nil {
		os.Remove(filePath)
		return nil, err
	}

	return info, nil
}

// Open returns a reader for a stored file and its metadata
func (s *LocalStorage) Open(ctx context.Context, namespace string, id uuid.UUID) (io.ReadCloser, *FileInfo, error) {
	info, err := s.GetInfo(ctx, namespace, id)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(filepath.Join(s.basePath, info.Namespace, info.Path))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}

	return f, info, nil
}

// GetInfo returns metadata for a file without opening it
func (s *LocalStorage) GetInfo(ctx context.Context, namespace string, id uuid.UUID) (*FileInfo, error) {
	namespace = sanitizeNamespace(namespace)
	data, err := os.ReadFile(s.metaPath(namespace, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var info FileInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	return &info, nil
}

// List returns the files of a namespace, oldest first
func (s *LocalStorage) List(ctx context.Context, namespace string) ([]*FileInfo, error) {
	namespace = sanitizeNamespace(namespace)
	entries, err := os.ReadDir(filepath.Join(s.basePath, namespace, metaDir))
	if errors.Is(err, fs.ErrNotExist) {
		return []*FileInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}

	files := make([]*FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		id, err := uuid.Parse(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}

		info, err := s.GetInfo(ctx, namespace, id)
		if err != nil {
			continue
		}
		files = append(files, info)
	}

	slices.SortFunc(files, func(a, b *FileInfo) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return files, nil
}

// Delete removes a file
func (s *LocalStorage) Delete(ctx context.Context, namespace string, id uuid.UUID) error {
	info, err := s.GetInfo(ctx, namespace, id)
	if err != nil {
		return err
	}

	filePath := filepath.Join(s.basePath, info.Namespace, info.Path)
	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	if err := os.Remove(s.metaPath(info.Namespace, id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}
	return nil
}

// Prune deletes every file created before the cutoff
func (s *LocalStorage) Prune(ctx context.Context, before time.Time) (int, error) {
	namespaces, err := os.ReadDir(s.basePath)
	if err != nil {
		return 0, fmt.Errorf("failed to list namespaces: %w", err)
	}

	removed := 0
	for _, ns := range namespaces {
		if !ns.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		files, err := s.List(ctx, ns.Name())
		if err != nil {
			return removed, err
		}
		for _, info := range files {
			if !info.CreatedAt.Before(before) {
				break
			}
			if err := s.Delete(ctx, info.Namespace, info.ID); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

func (s *LocalStorage) metaPath(namespace string, id uuid.UUID) string {
	return filepath.Join(s.basePath, namespace, metaDir, id.String()+".json")
}

func (s *LocalStorage) saveMetadata(info *FileInfo) error {
	dir := filepath.Join(s.basePath, info.Namespace, metaDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(s.metaPath(info.Namespace, info.ID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}

var unsafeChars = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	"..", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
)

// sanitizeFilename removes unsafe characters from filenames
func sanitizeFilename(name string) string {
	return unsafeChars.Replace(name)
}

func sanitizeNamespace(namespace string) string {
	namespace = strings.TrimSpace(sanitizeFilename(namespace))
	if namespace == "" || namespace == metaDir || strings.HasPrefix(namespace, ".") {
		return defaultNamespace
	}
	return namespace
}
