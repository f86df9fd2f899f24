package storage

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/singleflight"

	"github.com/drivetrace/backend/pkg/docload"
)

// S3Loader implements docload.FileLoader over an S3 bucket. Concurrent
// requests for the same key collapse into one download and the result is
// cached for the loader's lifetime, which is one ingestion job.
type S3Loader struct {
	client *s3.Client
	bucket string

	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewS3Loader creates a bucket-scoped file loader.
func NewS3Loader(client *s3.Client, bucket string) *S3Loader {
	return &S3Loader{
		client: client,
		bucket: bucket,
		cache:  make(map[string][]byte),
	}
}

// GetFileBytes downloads the object named by the file's path.
func (l *S3Loader) GetFileBytes(ctx context.Context, file docload.SourceFile) ([]byte, error) {
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

		data, err := GetFile(ctx, l.client, l.bucket, key)
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
