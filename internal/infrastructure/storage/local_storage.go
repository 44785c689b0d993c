package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"fitloop-server/services/chat-api/internal/config"
)

var errLocalStorageDisabled = errors.New("local storage is not configured; set CHAT_LOCAL_STORAGE_PATH to enable")

// LocalStorage writes attachment blobs to the local filesystem. Development
// fallback for environments without S3.
type LocalStorage struct {
	basePath string
	baseURL  string
	log      zerolog.Logger
	disabled bool
}

// NewLocalStorage creates a new local filesystem storage backend.
func NewLocalStorage(cfg *config.Config, log zerolog.Logger) (*LocalStorage, error) {
	logger := log.With().Str("component", "local-storage").Logger()

	basePath := strings.TrimSpace(cfg.LocalStoragePath)
	if basePath == "" {
		logger.Warn().Msg("CHAT_LOCAL_STORAGE_PATH is not set; local storage will be disabled")
		return &LocalStorage{
			log:      logger,
			disabled: true,
		}, nil
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create local storage directory: %w", err)
	}

	storage := &LocalStorage{
		basePath: basePath,
		baseURL:  strings.TrimSuffix(strings.TrimSpace(cfg.LocalStorageBaseURL), "/"),
		log:      logger,
	}

	logger.Info().
		Str("path", basePath).
		Str("base_url", storage.baseURL).
		Msg("local storage initialized")

	return storage, nil
}

// Upload stores a file to the local filesystem and returns its serving URL.
func (l *LocalStorage) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if l.disabled {
		return "", errLocalStorageDisabled
	}

	fullPath := filepath.Join(l.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	written, err := io.Copy(file, body)
	if err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	l.log.Debug().
		Str("key", key).
		Int64("bytes", written).
		Msg("attachment stored locally")

	if l.baseURL != "" {
		return l.baseURL + "/" + key, nil
	}
	return fullPath, nil
}
