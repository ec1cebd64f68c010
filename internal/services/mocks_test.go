package services

import (
	"context"
	"io"

	"github.com/damacus/iron-archivos/internal/storage"
	"github.com/stretchr/testify/mock"
)

// MockStorageClient implements storage.Client for testing
type MockStorageClient struct {
	mock.Mock
}

func (m *MockStorageClient) ListFiles(ctx context.Context, bucket, prefix string) ([]storage.File, error) {
	args := m.Called(ctx, bucket, prefix)
	files, _ := args.Get(0).([]storage.File)
	return files, args.Error(1)
}

func (m *MockStorageClient) UploadFile(ctx context.Context, bucket, objectPrefix, fileName string, content io.Reader) (storage.File, error) {
	args := m.Called(ctx, bucket, objectPrefix, fileName, content)
	return args.Get(0).(storage.File), args.Error(1)
}

func (m *MockStorageClient) DeleteFile(ctx context.Context, bucket, objectName string) error {
	args := m.Called(ctx, bucket, objectName)
	return args.Error(0)
}

func (m *MockStorageClient) DownloadURL(ctx context.Context, bucket, objectName string) (string, error) {
	args := m.Called(ctx, bucket, objectName)
	return args.String(0), args.Error(1)
}

func (m *MockStorageClient) CreateBucket(ctx context.Context, bucket string) (string, error) {
	args := m.Called(ctx, bucket)
	return args.String(0), args.Error(1)
}
