package browser

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/damacus/iron-archivos/internal/storage"
)

// fakeStorage is an in-memory storage.Client that applies the same folder
// sentinel rule as the storage API.
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string]storage.File
	calls   []string

	listErr     error
	uploadErrs  map[string]error
	downloadErr map[string]error
	// gates block DownloadURL for a key until the channel is closed.
	gates map[string]chan struct{}
	// uploadGates block UploadFile for a file name until the channel is closed.
	uploadGates map[string]chan struct{}
	blocked     map[string]bool
}

func newFakeStorage(keys ...string) *fakeStorage {
	f := &fakeStorage{
		objects:     make(map[string]storage.File),
		uploadErrs:  make(map[string]error),
		downloadErr: make(map[string]error),
		gates:       make(map[string]chan struct{}),
		uploadGates: make(map[string]chan struct{}),
		blocked:     make(map[string]bool),
	}
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, k := range keys {
		f.objects[k] = storage.File{Name: k, Size: int64(len(k)), Updated: t.Add(time.Duration(i) * time.Minute)}
	}
	return f
}

func (f *fakeStorage) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeStorage) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeStorage) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

// uploading reports whether an upload of name is waiting on its gate.
func (f *fakeStorage) uploading(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocked[name]
}

func (f *fakeStorage) ListFiles(ctx context.Context, bucket, prefix string) ([]storage.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("list " + prefix)
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []storage.File
	for k, o := range f.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStorage) UploadFile(ctx context.Context, bucket, objectPrefix, fileName string, content io.Reader) (storage.File, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return storage.File{}, err
	}

	f.mu.Lock()
	gate := f.uploadGates[fileName]
	if gate != nil {
		f.blocked[fileName] = true
	}
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blocked, fileName)
	key := objectPrefix + fileName
	f.record("upload " + key)
	if err := f.uploadErrs[fileName]; err != nil {
		return storage.File{}, err
	}
	file := storage.File{Name: key, Size: int64(len(data)), Updated: time.Now()}
	f.objects[key] = file
	return file, nil
}

func (f *fakeStorage) DeleteFile(ctx context.Context, bucket, objectName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete " + objectName)
	if _, ok := f.objects[objectName]; !ok {
		return &storage.APIError{StatusCode: 404, Message: "not found"}
	}
	if strings.HasSuffix(objectName, "/"+SentinelName) {
		folder := strings.TrimSuffix(objectName, SentinelName)
		for k := range f.objects {
			if k != objectName && strings.HasPrefix(k, folder) {
				return &storage.APIError{StatusCode: 409, Message: "folder is not empty"}
			}
		}
	}
	delete(f.objects, objectName)
	return nil
}

func (f *fakeStorage) DownloadURL(ctx context.Context, bucket, objectName string) (string, error) {
	f.mu.Lock()
	gate := f.gates[objectName]
	err := f.downloadErr[objectName]
	f.record("download " + objectName)
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			// A cancelled request still answers late, like a slow network.
			<-gate
		}
	}
	if err != nil {
		return "", err
	}
	return "https://signed.example/" + objectName, nil
}

func (f *fakeStorage) CreateBucket(ctx context.Context, bucket string) (string, error) {
	return bucket, nil
}

var errBoom = errors.New("boom")
