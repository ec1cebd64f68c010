// Package storageapi serves the object-storage REST contract consumed by the
// file browser, backed by MinIO.
package storageapi

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/damacus/iron-archivos/internal/services"
	"github.com/damacus/iron-archivos/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/minio/madmin-go/v3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/s3utils"
)

const (
	sentinelName      = ".keep"
	defaultPresignTTL = 15 * time.Minute
	maxPresignTTL     = 7 * 24 * time.Hour
)

var errNotEmpty = errors.New("folder is not empty")

type Options struct {
	// PresignTTL is the lifetime of download links.
	PresignTTL time.Duration
	// QuotaBytes is applied as a hard quota to new buckets when non-zero and
	// an admin client is available.
	QuotaBytes uint64
	Region     string
}

type Handler struct {
	client services.MinioClient
	admin  services.MinioAdminClient
	opts   Options
}

// NewHandler creates the storage API. admin may be nil, which disables
// quotas and the backend readiness probe.
func NewHandler(client services.MinioClient, admin services.MinioAdminClient, opts Options) *Handler {
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = defaultPresignTTL
	}
	if opts.PresignTTL > maxPresignTTL {
		opts.PresignTTL = maxPresignTTL
	}
	return &Handler{client: client, admin: admin, opts: opts}
}

// Register mounts every route on e.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/ready", h.Ready)
	e.POST("/buckets", h.CreateBucket)
	e.GET("/buckets/:bucket/files", h.ListFiles)
	e.POST("/buckets/:bucket/files", h.UploadFile)
	e.GET("/buckets/:bucket/files/*", h.DownloadURL)
	e.DELETE("/buckets/:bucket/files/*", h.DeleteFile)
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// Ready checks that the MinIO backend answers admin requests.
func (h *Handler) Ready(c echo.Context) error {
	if h.admin == nil {
		return c.String(http.StatusOK, "OK")
	}
	if _, err := h.admin.ServerInfo(c.Request().Context()); err != nil {
		slog.Warn("backend not ready", "error", err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Storage backend unavailable")
	}
	return c.String(http.StatusOK, "OK")
}

// ListFiles returns every object below prefix, recursively.
func (h *Handler) ListFiles(c echo.Context) error {
	bucket, err := bucketParam(c)
	if err != nil {
		return err
	}
	prefix := c.QueryParam("prefix")

	objects, err := h.client.ListObjects(c.Request().Context(), bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	if err != nil {
		return backendError(err, "Failed to list files")
	}

	files := make([]storage.File, 0, len(objects))
	for _, obj := range objects {
		files = append(files, storage.File{
			Name:        obj.Key,
			Size:        obj.Size,
			Updated:     obj.LastModified,
			ContentType: obj.ContentType,
		})
	}
	return c.JSON(http.StatusOK, storage.ListResponse{Files: files})
}

// UploadFile stores the multipart "file" at object_prefix + file name.
func (h *Handler) UploadFile(c echo.Context) error {
	bucket, err := bucketParam(c)
	if err != nil {
		return err
	}

	prefix := c.FormValue("object_prefix")
	if err := validatePrefix(prefix); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "No file uploaded")
	}
	name := file.Filename
	if name == "" || strings.Contains(name, "/") || name == "." || name == ".." {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid file name")
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	contentType := file.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(path.Ext(name)); byExt != "" {
			contentType = byExt
		}
	}

	objectKey := prefix + name
	info, err := h.client.PutObject(c.Request().Context(), bucket, objectKey, src, file.Size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return backendError(err, "Failed to upload file")
	}

	updated := info.LastModified
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	return c.JSON(http.StatusCreated, storage.UploadResponse{FileDetails: storage.File{
		Name:        objectKey,
		Size:        file.Size,
		Updated:     updated,
		ContentType: contentType,
	}})
}

// DeleteFile removes one object. A folder sentinel is only removed once it is
// the last object under its folder.
func (h *Handler) DeleteFile(c echo.Context) error {
	bucket, objectName, err := objectParams(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	if _, err := h.client.StatObject(ctx, bucket, objectName, minio.StatObjectOptions{}); err != nil {
		return backendError(err, "Failed to delete file")
	}

	if path.Base(objectName) == sentinelName {
		if err := h.ensureFolderEmpty(c, bucket, objectName); err != nil {
			return err
		}
	}

	if err := h.client.RemoveObject(ctx, bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return backendError(err, "Failed to delete file")
	}
	slog.Info("object deleted", "bucket", bucket, "object", objectName)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ensureFolderEmpty(c echo.Context, bucket, sentinelKey string) error {
	folder := strings.TrimSuffix(sentinelKey, sentinelName)
	page, err := h.client.ListObjectsPaginated(c.Request().Context(), bucket, services.ListObjectsOptions{
		Prefix:    folder,
		Recursive: true,
		MaxKeys:   2,
	})
	if err != nil {
		return backendError(err, "Failed to inspect folder")
	}
	for _, obj := range page.Objects {
		if obj.Key != sentinelKey {
			return echo.NewHTTPError(http.StatusConflict, errNotEmpty.Error())
		}
	}
	return nil
}

// DownloadURL answers a presigned GET link for an existing object.
func (h *Handler) DownloadURL(c echo.Context) error {
	bucket, objectName, err := objectParams(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	if _, err := h.client.StatObject(ctx, bucket, objectName, minio.StatObjectOptions{}); err != nil {
		return backendError(err, "Failed to resolve download link")
	}

	var params url.Values
	if c.QueryParam("attachment") == "true" {
		params = url.Values{}
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", path.Base(objectName)))
	}

	u, err := h.client.PresignedGetObject(ctx, bucket, objectName, h.opts.PresignTTL, params)
	if err != nil {
		return backendError(err, "Failed to resolve download link")
	}
	return c.JSON(http.StatusOK, storage.DownloadResponse{DownloadURL: u.String()})
}

// CreateBucket creates a bucket and applies the configured quota.
func (h *Handler) CreateBucket(c echo.Context) error {
	var req storage.CreateBucketRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	name := strings.TrimSpace(req.BucketName)
	if err := s3utils.CheckValidBucketNameStrict(name); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid bucket name: "+err.Error())
	}

	ctx := c.Request().Context()
	exists, err := h.client.BucketExists(ctx, name)
	if err != nil {
		return backendError(err, "Failed to create bucket")
	}
	if exists {
		return echo.NewHTTPError(http.StatusConflict, "Bucket already exists")
	}

	if err := h.client.MakeBucket(ctx, name, minio.MakeBucketOptions{Region: h.opts.Region}); err != nil {
		return backendError(err, "Failed to create bucket")
	}

	if h.admin != nil && h.opts.QuotaBytes > 0 {
		quota := &madmin.BucketQuota{Quota: h.opts.QuotaBytes, Size: h.opts.QuotaBytes, Type: madmin.HardQuota}
		if err := h.admin.SetBucketQuota(ctx, name, quota); err != nil {
			slog.Warn("bucket quota not applied", "bucket", name, "error", err)
		}
	}

	slog.Info("bucket created", "bucket", name)
	return c.JSON(http.StatusCreated, storage.CreateBucketResponse{
		BucketDetails: storage.BucketDetails{Name: name},
	})
}

// pathParam returns a decoded path parameter. Echo routes on the raw path when
// the request carries one, leaving its parameters escaped.
func pathParam(c echo.Context, name string) (string, error) {
	v := c.Param(name)
	if c.Request().URL.RawPath == "" {
		return v, nil
	}
	return url.PathUnescape(v)
}

func bucketParam(c echo.Context) (string, error) {
	bucket, err := pathParam(c, "bucket")
	if err != nil || bucket == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "Invalid bucket")
	}
	return bucket, nil
}

func objectParams(c echo.Context) (string, string, error) {
	bucket, err := bucketParam(c)
	if err != nil {
		return "", "", err
	}
	objectName, err := pathParam(c, "*")
	if err != nil || objectName == "" {
		return "", "", echo.NewHTTPError(http.StatusBadRequest, "Invalid object name")
	}
	return bucket, objectName, nil
}

func validatePrefix(prefix string) error {
	if prefix == "" {
		return nil
	}
	if strings.HasPrefix(prefix, "/") || !strings.HasSuffix(prefix, "/") {
		return errors.New("object_prefix must be relative and end with '/'")
	}
	for _, seg := range strings.Split(strings.TrimSuffix(prefix, "/"), "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("object_prefix has an invalid segment %q", seg)
		}
	}
	return nil
}

// backendError maps a MinIO error onto an HTTP error.
func backendError(err error, msg string) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchBucket":
		return echo.NewHTTPError(http.StatusNotFound, "Bucket not found")
	case "NoSuchKey", "NoSuchObject":
		return echo.NewHTTPError(http.StatusNotFound, "File not found")
	case "AccessDenied":
		return echo.NewHTTPError(http.StatusForbidden, "Access denied")
	case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
		return echo.NewHTTPError(http.StatusConflict, "Bucket already exists")
	}
	slog.Error(msg, "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, msg).SetInternal(err)
}

// ErrorHandler answers every error as JSON {"error": message}.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	} else {
		slog.Error("unhandled storage api error", "error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, storage.ErrorResponse{Error: msg})
	}
	if err != nil {
		slog.Error("write error response", "error", err)
	}
}
