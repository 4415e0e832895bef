package printing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/invoice"
)

// FileSystemArtifactStoreConfig contains configuration for file system storage
type FileSystemArtifactStoreConfig struct {
	// BasePath is the directory invoices are written to
	// Default: ./invoices
	BasePath string
	// Logger for operations
	Logger *zap.Logger
}

// FileSystemArtifactStore stores invoice documents in a single directory
type FileSystemArtifactStore struct {
	config *FileSystemArtifactStoreConfig
	logger *zap.Logger
}

// NewFileSystemArtifactStore creates the base directory if needed and returns the store
func NewFileSystemArtifactStore(config *FileSystemArtifactStoreConfig) (*FileSystemArtifactStore, error) {
	if config == nil {
		config = &FileSystemArtifactStoreConfig{}
	}
	if config.BasePath == "" {
		config.BasePath = "./invoices"
	}

	if err := os.MkdirAll(config.BasePath, 0o755); err != nil {
		return nil, NewRenderError(ErrCodeStorageFailed,
			fmt.Sprintf("failed to create storage directory: %s", config.BasePath), err)
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FileSystemArtifactStore{
		config: config,
		logger: logger,
	}, nil
}

// Write runs fn against a temporary file in the base directory and renames it
// to name once fn and the final sync succeed. On failure the temporary file is
// removed and an existing artifact of the same name is left as it was.
func (s *FileSystemArtifactStore) Write(ctx context.Context, name string, fn func(w io.Writer) error) (*invoice.ArtifactInfo, error) {
	select {
	case <-ctx.Done():
		return nil, NewRenderError(ErrCodeStorageFailed, "operation cancelled", ctx.Err())
	default:
	}

	fullPath, err := s.resolve(name)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(s.config.BasePath, ".tmp-"+filepath.Base(fullPath)+"-*")
	if err != nil {
		return nil, NewRenderError(ErrCodeStorageFailed, "failed to create temporary file", err)
	}
	tmpPath := tmp.Name()
	published := false
	defer func() {
		if !published {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := fn(tmp); err != nil {
		return nil, err
	}
	if err := tmp.Sync(); err != nil {
		return nil, &invoice.SinkWriteError{Op: "sync", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return nil, &invoice.SinkWriteError{Op: "close", Err: err}
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		return nil, NewRenderError(ErrCodeStorageFailed, "failed to publish invoice file", err)
	}
	published = true

	stat, err := os.Stat(fullPath)
	if err != nil {
		return nil, NewRenderError(ErrCodeStorageFailed, "failed to stat invoice file", err)
	}

	s.logger.Info("invoice stored",
		zap.String("path", fullPath),
		zap.Int64("size", stat.Size()))

	return &invoice.ArtifactInfo{
		Name:       name,
		Size:       stat.Size(),
		ModifiedAt: stat.ModTime(),
	}, nil
}

// Open returns the stored document or invoice.ErrArtifactNotFound
func (s *FileSystemArtifactStore) Open(ctx context.Context, name string) (io.ReadCloser, *invoice.ArtifactInfo, error) {
	select {
	case <-ctx.Done():
		return nil, nil, NewRenderError(ErrCodeStorageFailed, "operation cancelled", ctx.Err())
	default:
	}

	fullPath, err := s.resolve(name)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, invoice.ErrArtifactNotFound
		}
		return nil, nil, NewRenderError(ErrCodeStorageFailed, "failed to open invoice file", err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, nil, NewRenderError(ErrCodeStorageFailed, "failed to stat invoice file", err)
	}

	return file, &invoice.ArtifactInfo{
		Name:       name,
		Size:       stat.Size(),
		ModifiedAt: stat.ModTime(),
	}, nil
}

// Delete removes a stored document
func (s *FileSystemArtifactStore) Delete(ctx context.Context, name string) error {
	select {
	case <-ctx.Done():
		return NewRenderError(ErrCodeStorageFailed, "operation cancelled", ctx.Err())
	default:
	}

	fullPath, err := s.resolve(name)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil // Already deleted, not an error
		}
		return NewRenderError(ErrCodeStorageFailed, "failed to delete invoice file", err)
	}

	s.logger.Info("invoice deleted", zap.String("name", name))
	return nil
}

// CleanupOlderThan removes documents and stale temporary files older than age
func (s *FileSystemArtifactStore) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age)
	deletedCount := 0

	entries, err := os.ReadDir(s.config.BasePath)
	if err != nil {
		return 0, NewRenderError(ErrCodeStorageFailed, "failed to list storage directory", err)
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return deletedCount, nil
		default:
		}

		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) != ".pdf" && !strings.HasPrefix(entry.Name(), ".tmp-") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.config.BasePath, entry.Name())); err == nil {
				deletedCount++
				s.logger.Debug("deleted old invoice", zap.String("name", entry.Name()))
			}
		}
	}

	s.logger.Info("cleanup completed",
		zap.Int("deleted", deletedCount),
		zap.Duration("age", age))

	return deletedCount, nil
}

// resolve maps an artifact name to a path inside the base directory
func (s *FileSystemArtifactStore) resolve(name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || containsDotDot(name) || strings.ContainsAny(name, `/\`) {
		s.logger.Warn("blocked invalid artifact name", zap.String("name", name))
		return "", NewRenderError(ErrCodeStorageFailed, "invalid artifact name", nil)
	}

	fullPath := filepath.Join(s.config.BasePath, name)

	absBase, err := filepath.Abs(s.config.BasePath)
	if err != nil {
		return "", NewRenderError(ErrCodeStorageFailed, "failed to resolve base path", err)
	}
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", NewRenderError(ErrCodeStorageFailed, "failed to resolve file path", err)
	}
	if filepath.Dir(absPath) != absBase {
		s.logger.Warn("path escape attempt blocked",
			zap.String("name", name),
			zap.String("absPath", absPath),
			zap.String("absBase", absBase))
		return "", NewRenderError(ErrCodeStorageFailed, "invalid artifact name", nil)
	}
	return fullPath, nil
}

// containsDotDot checks if a path contains ".." components
func containsDotDot(path string) bool {
	parts := strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\'
	})
	return slices.Contains(parts, "..")
}

var _ invoice.ArtifactStore = (*FileSystemArtifactStore)(nil)
