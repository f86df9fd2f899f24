package docload

import (
	"context"
	"os"
	"sync"

	"golang.org/x/sync/singleflight"
)

// DiskLoader reads source files from the local filesystem with caching.
// Concurrent requests for the same path collapse into one read.
type DiskLoader struct {
	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewDiskLoader creates a filesystem-backed file loader.
func NewDiskLoader() *DiskLoader {
	return &DiskLoader{
		cache: make(map[string][]byte),
	}
}

// GetFileBytes reads the file content from the filesystem. Results are
// cached per path.
func (l *DiskLoader) GetFileBytes(ctx context.Context, file SourceFile) ([]byte, error) {
	key := file.Path

	l.cacheMu.RLock()
	if cached, ok := l.cache[key]; ok {
		l.cacheMu.RUnlock()
		return cached, nil
	}
	l.cacheMu.RUnlock()

	result, err, _ := l.group.Do(key, func() (any, error) {
		l.cacheMu.RLock()
		if cached, ok := l.cache[key]; ok {
			l.cacheMu.RUnlock()
			return cached, nil
		}
		l.cacheMu.RUnlock()

		data, err := os.ReadFile(file.Path)
		if err != nil {
			return nil, err
		}

		l.cacheMu.Lock()
		l.cache[key] = data
		l.cacheMu.Unlock()

		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}
