package services

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/madmin-go/v3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultPageSize is the default number of objects to return per page
const DefaultPageSize = 100

// Credentials are the static keys the storage API uses against MinIO.
type Credentials struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	SessionToken string
	Region       string
	// Secure overrides the TLS choice derived from the endpoint.
	Secure *bool
}

func (c Credentials) useSSL() bool {
	if c.Secure != nil {
		return *c.Secure
	}
	return shouldUseSSL(c.Endpoint)
}

// ListObjectsOptions extends minio.ListObjectsOptions with pagination
type ListObjectsOptions struct {
	Prefix            string
	Recursive         bool
	MaxKeys           int
	ContinuationToken string
}

// ListObjectsResult contains paginated results from ListObjectsPaginated
type ListObjectsResult struct {
	Objects               []minio.ObjectInfo
	IsTruncated           bool
	NextContinuationToken string
}

// MinioAdminClient is an interface for the madmin methods we use
type MinioAdminClient interface {
	ServerInfo(ctx context.Context, opts ...func(*madmin.ServerInfoOpts)) (madmin.InfoMessage, error)
	SetBucketQuota(ctx context.Context, bucket string, quota *madmin.BucketQuota) error
}

// MinioClient is an interface for the standard S3 methods we use
type MinioClient interface {
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	BucketExists(ctx context.Context, bucketName string) (bool, error)

	// Object Operations
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) ([]minio.ObjectInfo, error)
	ListObjectsPaginated(ctx context.Context, bucketName string, opts ListObjectsOptions) (ListObjectsResult, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error

	// Presigned URLs
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// MinioClientFactory creates authenticated clients
type MinioClientFactory interface {
	NewAdminClient(creds Credentials) (MinioAdminClient, error)
	NewClient(creds Credentials) (MinioClient, error)
}

// WrappedMinioClient wraps minio.Client to implement our interface
type WrappedMinioClient struct {
	client *minio.Client
}

func (c *WrappedMinioClient) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return c.client.MakeBucket(ctx, bucketName, opts)
}

func (c *WrappedMinioClient) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return c.client.BucketExists(ctx, bucketName)
}

func (c *WrappedMinioClient) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) ([]minio.ObjectInfo, error) {
	// Convert channel to slice
	var objects []minio.ObjectInfo
	for obj := range c.client.ListObjects(ctx, bucketName, opts) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

func (c *WrappedMinioClient) ListObjectsPaginated(ctx context.Context, bucketName string, opts ListObjectsOptions) (ListObjectsResult, error) {
	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultPageSize
	}

	// Cancel the listing goroutine when we stop reading early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	minioOpts := minio.ListObjectsOptions{
		Prefix:    opts.Prefix,
		Recursive: opts.Recursive,
		MaxKeys:   maxKeys,
	}

	// Use StartAfter for continuation (MinIO uses marker-based pagination)
	if opts.ContinuationToken != "" {
		minioOpts.StartAfter = opts.ContinuationToken
	}

	var objects []minio.ObjectInfo
	var lastKey string

	for obj := range c.client.ListObjects(ctx, bucketName, minioOpts) {
		if obj.Err != nil {
			return ListObjectsResult{}, obj.Err
		}

		objects = append(objects, obj)
		lastKey = obj.Key

		if len(objects) >= maxKeys {
			break
		}
	}

	return paginate(objects, maxKeys, lastKey), nil
}

func paginate(objects []minio.ObjectInfo, maxKeys int, lastKey string) ListObjectsResult {
	result := ListObjectsResult{
		Objects:     objects,
		IsTruncated: len(objects) >= maxKeys,
	}
	if result.IsTruncated {
		result.NextContinuationToken = lastKey
	}
	return result
}

func (c *WrappedMinioClient) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return c.client.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
}

func (c *WrappedMinioClient) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return c.client.StatObject(ctx, bucketName, objectName, opts)
}

func (c *WrappedMinioClient) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return c.client.RemoveObject(ctx, bucketName, objectName, opts)
}

func (c *WrappedMinioClient) PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error) {
	return c.client.PresignedGetObject(ctx, bucketName, objectName, expires, reqParams)
}

// RealMinioFactory is the production implementation
type RealMinioFactory struct{}

// shouldUseSSL determines if SSL should be used based on the endpoint.
// Returns false for localhost, 127.0.0.1, and docker service names.
func shouldUseSSL(endpoint string) bool {
	if endpoint == "localhost:9000" || endpoint == "127.0.0.1:9000" {
		return false
	}
	// Docker service names (minio:9000, minio1:9000, ...) but not domain names.
	host := strings.Split(endpoint, ":")[0]
	if strings.HasPrefix(endpoint, "minio") && !strings.Contains(host, ".") && strings.Contains(endpoint, ":9000") {
		return false
	}
	return true
}

func (f *RealMinioFactory) NewAdminClient(creds Credentials) (MinioAdminClient, error) {
	return madmin.NewWithOptions(creds.Endpoint, &madmin.Options{
		Creds:  credentials.NewStaticV4(creds.AccessKey, creds.SecretKey, ""),
		Secure: creds.useSSL(),
	})
}

func (f *RealMinioFactory) NewClient(creds Credentials) (MinioClient, error) {
	client, err := minio.New(creds.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(creds.AccessKey, creds.SecretKey, creds.SessionToken),
		Secure: creds.useSSL(),
		Region: creds.Region,
	})
	if err != nil {
		return nil, err
	}
	return &WrappedMinioClient{client: client}, nil
}
