package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/damacus/iron-archivos/internal/storage"
	"golang.org/x/sync/errgroup"
)

// DefaultUploadConcurrency bounds parallel uploads of one batch.
const DefaultUploadConcurrency = 4

var errInvalidFolderName = errors.New("folder name must be non-empty, must not contain '/' and must not be '.' or '..'")

// Navigator owns the browsing state of one bucket: the current prefix, the
// last successful listing, pending notices and the file preview.
type Navigator struct {
	client            storage.Client
	bucket            string
	uploadConcurrency int
	preview           *Previewer

	// op serializes actions. mu guards the fields below and is never held
	// across a storage call, so readers do not wait for a running upload.
	// prefix, entries and loaded are only written by the holder of op.
	op      sync.Mutex
	mu      sync.Mutex
	prefix  string
	entries []Entry
	loaded  bool
	notices []Notice
}

// NewNavigator creates a navigator positioned at the bucket root. An empty
// bucket makes every listing a no-op.
func NewNavigator(client storage.Client, bucket string, uploadConcurrency int) *Navigator {
	if uploadConcurrency <= 0 {
		uploadConcurrency = DefaultUploadConcurrency
	}
	return &Navigator{
		client:            client,
		bucket:            bucket,
		uploadConcurrency: uploadConcurrency,
		preview:           NewPreviewer(client, bucket),
	}
}

// Snapshot is a consistent copy of the navigator state for rendering.
type Snapshot struct {
	Bucket      string
	Prefix      string
	Entries     []Entry
	Breadcrumbs []Breadcrumb
	Loaded      bool
}

func (n *Navigator) Bucket() string {
	return n.bucket
}

func (n *Navigator) Prefix() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.prefix
}

// Snapshot returns the current state.
func (n *Navigator) Snapshot() Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	entries := make([]Entry, len(n.entries))
	copy(entries, n.entries)
	return Snapshot{
		Bucket:      n.bucket,
		Prefix:      n.prefix,
		Entries:     entries,
		Breadcrumbs: Breadcrumbs(n.prefix),
		Loaded:      n.loaded,
	}
}

// Preview returns the preview coordinator bound to this navigator.
func (n *Navigator) Preview() *Previewer {
	return n.preview
}

// TakeNotices drains pending notices, including those raised by the preview.
func (n *Navigator) TakeNotices() []Notice {
	n.mu.Lock()
	notices := n.notices
	n.notices = nil
	n.mu.Unlock()
	return append(notices, n.preview.takeNotices()...)
}

// Lookup resolves entry ids against the current listing. Ids that are not
// listed are inferred from their shape: a trailing separator marks a folder.
func (n *Navigator) Lookup(ids []string) []Entry {
	n.mu.Lock()
	defer n.mu.Unlock()

	byID := make(map[string]Entry, len(n.entries))
	for _, e := range n.entries {
		byID[e.ID] = e
	}

	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, e)
			continue
		}
		out = append(out, entryFromID(id))
	}
	return out
}

func entryFromID(id string) Entry {
	switch id {
	case ParentID:
		return Entry{ID: ParentID, Name: ParentID, IsDir: true}
	case RootID:
		return Entry{ID: RootID, Name: RootName, IsDir: true}
	}
	isDir := strings.HasSuffix(id, separator)
	name := strings.TrimSuffix(id, separator)
	if i := strings.LastIndex(name, separator); i >= 0 {
		name = name[i+1:]
	}
	return Entry{ID: id, Name: name, IsDir: isDir}
}

// Close stops any in-flight preview resolution.
func (n *Navigator) Close() {
	n.preview.Close()
}

// Dispatch runs one action to completion. Storage failures never abort the
// navigator; they are reported as notices and per-item errors in the result.
func (n *Navigator) Dispatch(ctx context.Context, a Action) (Result, error) {
	n.op.Lock()
	defer n.op.Unlock()
	return n.run(ctx, a)
}

func (n *Navigator) run(ctx context.Context, a Action) (Result, error) {
	switch a := a.(type) {
	case At:
		if _, nested := a.Action.(At); nested || a.Action == nil {
			return Result{}, fmt.Errorf("browser: invalid action %T in At", a.Action)
		}
		if target := NormalizePrefix(a.Prefix); target != n.prefix && !n.anchor(ctx, target) {
			return Result{}, nil
		}
		return n.run(ctx, a.Action)
	case OpenDirectory:
		n.openDirectory(ctx, a.Entry)
		return Result{}, nil
	case OpenFile:
		n.preview.Select(a.Entry)
		return Result{}, nil
	case CreateFolder:
		return n.createFolder(ctx, a.Name), nil
	case UploadFiles:
		return n.uploadFiles(ctx, a.Files), nil
	case DeleteEntries:
		return n.deleteEntries(ctx, a.Entries), nil
	case DownloadEntries:
		return n.downloadEntries(ctx, a.Entries), nil
	case Refresh:
		n.refresh(ctx, n.prefix)
		return Result{}, nil
	default:
		return Result{}, fmt.Errorf("browser: unknown action %T", a)
	}
}

func (n *Navigator) openDirectory(ctx context.Context, e Entry) {
	var target string
	switch e.ID {
	case ParentID:
		target = ParentPrefix(n.prefix)
	case RootID:
		target = ""
	default:
		target = NormalizePrefix(e.ID)
	}

	if n.bucket == "" {
		n.commitPrefix(target)
		n.preview.Clear()
		return
	}
	if n.refresh(ctx, target) {
		n.preview.Clear()
	}
}

// anchor moves to target without touching the preview.
func (n *Navigator) anchor(ctx context.Context, target string) bool {
	if n.bucket == "" {
		n.commitPrefix(target)
		return true
	}
	return n.refresh(ctx, target)
}

func (n *Navigator) commitPrefix(prefix string) {
	n.mu.Lock()
	n.prefix = prefix
	n.mu.Unlock()
}

// refresh lists target and commits it as the current prefix. On failure the
// previous prefix and entries stay in place.
func (n *Navigator) refresh(ctx context.Context, target string) bool {
	if n.bucket == "" {
		return false
	}

	files, err := n.client.ListFiles(ctx, n.bucket, target)
	if err != nil {
		slog.Error("list files failed", "bucket", n.bucket, "prefix", target, "error", err)
		n.notify(LevelError, "Error al cargar los archivos")
		return false
	}

	entries := Synthesize(target, files)
	n.mu.Lock()
	n.prefix = target
	n.entries = entries
	n.loaded = true
	n.mu.Unlock()
	return true
}

func (n *Navigator) createFolder(ctx context.Context, name string) Result {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.Contains(name, separator) {
		n.notify(LevelError, "Nombre de carpeta inválido")
		return Result{Failed: []ItemError{{Name: name, Err: errInvalidFolderName}}}
	}

	folder := n.prefix + name + separator
	if _, err := n.client.UploadFile(ctx, n.bucket, folder, SentinelName, bytes.NewReader(nil)); err != nil {
		slog.Error("create folder failed", "bucket", n.bucket, "folder", folder, "error", err)
		n.notify(LevelError, "Error al crear la carpeta")
		return Result{Failed: []ItemError{{Name: name, Err: err}}}
	}

	n.notify(LevelSuccess, "Carpeta creada correctamente")
	n.refresh(ctx, n.prefix)
	return Result{Succeeded: []string{folder}}
}

func (n *Navigator) uploadFiles(ctx context.Context, files []Upload) Result {
	prefix := n.prefix
	errs := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.uploadConcurrency)
	for i, f := range files {
		g.Go(func() error {
			// Siblings keep going when one upload fails.
			errs[i] = n.uploadOne(gctx, prefix, f)
			return nil
		})
	}
	_ = g.Wait()

	var res Result
	for i, f := range files {
		if errs[i] != nil {
			slog.Error("upload failed", "bucket", n.bucket, "file", prefix+f.Name, "error", errs[i])
			n.notify(LevelError, fmt.Sprintf("Error al subir el archivo %s", f.Name))
			res.Failed = append(res.Failed, ItemError{Name: f.Name, Err: errs[i]})
			continue
		}
		res.Succeeded = append(res.Succeeded, prefix+f.Name)
	}
	if len(res.Succeeded) > 0 {
		n.notify(LevelSuccess, fmt.Sprintf("%d archivo(s) subido(s) correctamente", len(res.Succeeded)))
	}

	n.refresh(ctx, n.prefix)
	return res
}

func (n *Navigator) uploadOne(ctx context.Context, prefix string, f Upload) error {
	if f.Name == "" || f.Open == nil {
		return errors.New("empty upload")
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	_, err = n.client.UploadFile(ctx, n.bucket, prefix, f.Name, rc)
	return err
}

func (n *Navigator) deleteEntries(ctx context.Context, entries []Entry) Result {
	var res Result
	previewed := n.preview.Snapshot().Entry

	for _, e := range entries {
		if e.IsParent() || e.ID == RootID {
			continue
		}

		target := e.ID
		if e.IsDir {
			target = SentinelKey(e.ID)
		}

		if err := n.client.DeleteFile(ctx, n.bucket, target); err != nil {
			slog.Warn("delete failed", "bucket", n.bucket, "object", target, "error", err)
			if e.IsDir {
				n.notify(LevelError, fmt.Sprintf("No se pudo eliminar la carpeta %q. Asegúrate de que esté vacía.", e.Name))
			} else {
				n.notify(LevelError, fmt.Sprintf("Error al eliminar %q", e.Name))
			}
			res.Failed = append(res.Failed, ItemError{Name: e.Name, Err: err})
			continue
		}

		n.notify(LevelSuccess, fmt.Sprintf("%q eliminado correctamente.", e.Name))
		res.Succeeded = append(res.Succeeded, e.ID)
		if previewed != nil && previewed.ID == e.ID {
			n.preview.Clear()
		}
	}

	n.refresh(ctx, n.prefix)
	return res
}

func (n *Navigator) downloadEntries(ctx context.Context, entries []Entry) Result {
	var res Result
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		url, err := n.client.DownloadURL(ctx, n.bucket, e.ID)
		if err != nil {
			slog.Error("resolve download url failed", "bucket", n.bucket, "object", e.ID, "error", err)
			n.notify(LevelError, fmt.Sprintf("Error al descargar %q", e.Name))
			res.Failed = append(res.Failed, ItemError{Name: e.Name, Err: err})
			continue
		}
		res.Downloads = append(res.Downloads, Download{Entry: e, URL: url})
		res.Succeeded = append(res.Succeeded, e.ID)
	}
	return res
}

func (n *Navigator) notify(level Level, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, Notice{Level: level, Message: msg, At: time.Now()})
}
