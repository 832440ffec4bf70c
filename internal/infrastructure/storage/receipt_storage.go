package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/garyjia/ers-reimbursement/internal/application/port"
	"github.com/garyjia/ers-reimbursement/internal/domain/entity"
	"go.uber.org/zap"
)

// ErrPathEscapesRoot is returned for references resolving outside the base directory
var ErrPathEscapesRoot = errors.New("path escapes base directory")

// LocalReceiptStorage implements port.ReceiptStorage on the local filesystem
type LocalReceiptStorage struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalReceiptStorage creates a receipt store rooted at baseDir
func NewLocalReceiptStorage(baseDir string, logger *zap.Logger) port.ReceiptStorage {
	return &LocalReceiptStorage{
		baseDir: baseDir,
		logger:  logger,
	}
}

// Save streams content to ref, replacing any existing file.
// The file is written to a temp name first and renamed into place.
func (s *LocalReceiptStorage) Save(ctx context.Context, ref string, content io.Reader) (int64, error) {
	fullPath, err := s.resolve(ref)
	if err != nil {
		return 0, err
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.logger.Error("Failed to create receipt directory", zap.String("path", dir), zap.Error(err))
		return 0, fmt.Errorf("failed to create directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := io.Copy(tmp, content)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		s.logger.Error("Failed to write receipt", zap.String("ref", ref), zap.Error(err))
		return 0, fmt.Errorf("failed to write receipt: %w", err)
	}

	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return 0, fmt.Errorf("failed to move receipt into place: %w", err)
	}

	s.logger.Debug("Receipt saved", zap.String("ref", ref), zap.Int64("size", n))
	return n, nil
}

// Read returns the receipt bytes; a missing file is entity.ErrNotFound
func (s *LocalReceiptStorage) Read(ctx context.Context, ref string) ([]byte, error) {
	fullPath, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("receipt %s: %w", ref, entity.ErrNotFound)
	}
	if err != nil {
		s.logger.Error("Failed to read receipt", zap.String("ref", ref), zap.Error(err))
		return nil, fmt.Errorf("failed to read receipt: %w", err)
	}
	return content, nil
}

// Exists reports whether a regular file is stored at ref
func (s *LocalReceiptStorage) Exists(ctx context.Context, ref string) bool {
	fullPath, err := s.resolve(ref)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && info.Mode().IsRegular()
}

// Delete removes the receipt; deleting a missing file succeeds
func (s *LocalReceiptStorage) Delete(ctx context.Context, ref string) error {
	fullPath, err := s.resolve(ref)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Error("Failed to delete receipt", zap.String("ref", ref), zap.Error(err))
		return fmt.Errorf("failed to delete receipt: %w", err)
	}

	s.logger.Debug("Receipt deleted", zap.String("ref", ref))
	return nil
}

// resolve maps a slash-separated ref to an absolute path inside baseDir
func (s *LocalReceiptStorage) resolve(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("%w: empty receipt reference", entity.ErrValidation)
	}

	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	absPath, err := filepath.Abs(filepath.Join(absBase, filepath.FromSlash(ref)))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapesRoot, ref)
	}
	return absPath, nil
}

// Verify interface compliance
var _ port.ReceiptStorage = (*LocalReceiptStorage)(nil)
