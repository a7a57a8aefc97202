package batch

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage defines where export files are written
type Storage interface {
	// Save saves a file and returns its full path
	Save(filename string, data []byte) (string, error)

	// Path returns the full path a file with this name would be saved to
	Path(filename string) string
}

// LocalStorage implements the Storage interface using local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// Save saves a file to local storage
func (l *LocalStorage) Save(filename string, data []byte) (string, error) {
	path := l.Path(filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return path, nil
}

// Path returns the location of filename inside the storage directory
func (l *LocalStorage) Path(filename string) string {
	return filepath.Join(l.basePath, filepath.Base(filename))
}
