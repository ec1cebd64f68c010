// Package storage is the client side of the object-storage HTTP service that
// backs every process bucket.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNoBucket is returned when an operation is attempted without a bucket.
var ErrNoBucket = errors.New("storage: no bucket configured")

// File is one stored object as reported by the storage service.
type File struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	Updated     time.Time `json:"updated"`
	ContentType string    `json:"content_type"`
}

// Wire payloads shared with the storage API server.
type (
	ListResponse struct {
		Files []File `json:"files"`
	}
	UploadResponse struct {
		FileDetails File `json:"file_details"`
	}
	DownloadResponse struct {
		DownloadURL string `json:"download_url"`
	}
	CreateBucketRequest struct {
		BucketName string `json:"bucket_name"`
	}
	BucketDetails struct {
		Name string `json:"name"`
	}
	CreateBucketResponse struct {
		BucketDetails BucketDetails `json:"bucket_details"`
	}
	ErrorResponse struct {
		Error string `json:"error"`
	}
)

// APIError is a non-2xx answer from the storage service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("storage api: %d %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError carrying the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// Client is the set of storage operations the file browser and the process
// provisioner depend on.
type Client interface {
	ListFiles(ctx context.Context, bucket, prefix string) ([]File, error)
	UploadFile(ctx context.Context, bucket, objectPrefix, fileName string, content io.Reader) (File, error)
	DeleteFile(ctx context.Context, bucket, objectName string) error
	DownloadURL(ctx context.Context, bucket, objectName string) (string, error)
	CreateBucket(ctx context.Context, bucket string) (string, error)
}

// HTTPClient talks to the storage service over its REST contract.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// NewHTTPClient creates a client rooted at baseURL. timeout bounds listing,
// deletion, link and bucket requests; uploads stream for as long as they
// need. A zero timeout leaves the transport defaults in place.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    timeout,
	}
}

func (c *HTTPClient) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *HTTPClient) ListFiles(ctx context.Context, bucket, prefix string) ([]File, error) {
	if bucket == "" {
		return nil, ErrNoBucket
	}
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	endpoint := c.filesURL(bucket) + "?prefix=" + url.QueryEscape(prefix)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var out ListResponse
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("list files %q: %w", prefix, err)
	}
	return out.Files, nil
}

func (c *HTTPClient) UploadFile(ctx context.Context, bucket, objectPrefix, fileName string, content io.Reader) (File, error) {
	if bucket == "" {
		return File{}, ErrNoBucket
	}

	// Stream the multipart body so large uploads are not buffered in memory.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeUploadForm(mw, objectPrefix, fileName, content)
		_ = pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.filesURL(bucket), pr)
	if err != nil {
		_ = pr.Close()
		return File{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out UploadResponse
	if err := c.do(req, &out); err != nil {
		_ = pr.Close()
		return File{}, fmt.Errorf("upload %q: %w", objectPrefix+fileName, err)
	}
	return out.FileDetails, nil
}

func writeUploadForm(mw *multipart.Writer, objectPrefix, fileName string, content io.Reader) error {
	if err := mw.WriteField("object_prefix", objectPrefix); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return err
	}
	return mw.Close()
}

func (c *HTTPClient) DeleteFile(ctx context.Context, bucket, objectName string) error {
	if bucket == "" {
		return ErrNoBucket
	}
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.objectURL(bucket, objectName), nil)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("delete %q: %w", objectName, err)
	}
	return nil
}

func (c *HTTPClient) DownloadURL(ctx context.Context, bucket, objectName string) (string, error) {
	if bucket == "" {
		return "", ErrNoBucket
	}
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.objectURL(bucket, objectName), nil)
	if err != nil {
		return "", err
	}

	var out DownloadResponse
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("download url %q: %w", objectName, err)
	}
	if out.DownloadURL == "" {
		return "", fmt.Errorf("download url %q: empty response", objectName)
	}
	return out.DownloadURL, nil
}

func (c *HTTPClient) CreateBucket(ctx context.Context, bucket string) (string, error) {
	if bucket == "" {
		return "", ErrNoBucket
	}
	body, err := json.Marshal(CreateBucketRequest{BucketName: bucket})
	if err != nil {
		return "", err
	}
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/buckets", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var out CreateBucketResponse
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("create bucket %q: %w", bucket, err)
	}
	if out.BucketDetails.Name == "" {
		return bucket, nil
	}
	return out.BucketDetails.Name, nil
}

func (c *HTTPClient) filesURL(bucket string) string {
	return c.baseURL + "/buckets/" + url.PathEscape(bucket) + "/files"
}

func (c *HTTPClient) objectURL(bucket, objectName string) string {
	return c.filesURL(bucket) + "/" + EscapeObjectName(objectName)
}

// EscapeObjectName escapes every path segment of an object key while keeping
// the separators, so nested keys stay readable in request paths.
func EscapeObjectName(name string) string {
	segments := strings.Split(name, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func (c *HTTPClient) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil || len(data) == 0 {
		return apiErr
	}

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		switch {
		case body.Error != "":
			apiErr.Message = body.Error
		case body.Message != "":
			apiErr.Message = body.Message
		}
	}
	return apiErr
}
