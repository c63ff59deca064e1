package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"rental-service/internal/models"
	"rental-service/internal/objectstore"
	"rental-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store keeps objects as files under a base directory
type Store struct {
	basePath string
}

func New(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

// Put writes r to <prefix>/<uuid><ext> and returns that key
func (s *Store) Put(ctx context.Context, prefix, mimeType string, r io.Reader) (string, error) {
	ext, ok := objectstore.ImageExtensions[mimeType]
	if !ok {
		return "", fmt.Errorf("unsupported content type %q: %w", mimeType, models.ErrInvalidInput)
	}

	key := uuid.New().String() + ext
	if prefix != "" {
		key = prefix + "/" + key
	}
	filePath, err := s.safeJoin(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		if cerr := f.Close(); cerr != nil {
			util.GetLogger().Error("Failed to close file after write error", zap.Error(cerr))
		}
		if rerr := os.Remove(filePath); rerr != nil {
			util.GetLogger().Error("Failed to remove file after write error", zap.Error(rerr))
		}
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		if rerr := os.Remove(filePath); rerr != nil {
			util.GetLogger().Error("Failed to remove file after close error", zap.Error(rerr))
		}
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	return key, nil
}

// Open returns the object and its MIME type
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	filePath, err := s.safeJoin(key)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("object %s: %w", key, models.ErrNotFound)
		}
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}
	return f, objectstore.MimeTypeForExt(strings.ToLower(filepath.Ext(filePath))), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	filePath, err := s.safeJoin(key)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("object %s: %w", key, models.ErrNotFound)
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// safeJoin resolves key relative to basePath and rejects directory traversal
func (s *Store) safeJoin(key string) (string, error) {
	absBase, err := filepath.Abs(s.basePath)
	if err != nil {
		return "", fmt.Errorf("invalid base path: %w", err)
	}

	absPath, err := filepath.Abs(filepath.Join(s.basePath, filepath.FromSlash(key)))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal in key %q: %w", key, models.ErrInvalidInput)
	}
	return absPath, nil
}
