package browser

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// PreviewState is the lifecycle of the preview pane.
type PreviewState string

const (
	PreviewNone        PreviewState = "none"
	PreviewUnknown     PreviewState = "unknown"
	PreviewUnsupported PreviewState = "unsupported"
	PreviewLoading     PreviewState = "loading"
	PreviewReady       PreviewState = "ready"
	PreviewError       PreviewState = "error"
)

// ViewerKind selects how a ready preview is rendered.
type ViewerKind string

const (
	ViewerImage  ViewerKind = "image"
	ViewerVideo  ViewerKind = "video"
	ViewerText   ViewerKind = "text"
	ViewerPDF    ViewerKind = "pdf"
	ViewerOffice ViewerKind = "office"
)

var previewKinds = map[string]ViewerKind{
	"pdf":  ViewerPDF,
	"doc":  ViewerOffice,
	"docx": ViewerOffice,
	"xls":  ViewerOffice,
	"xlsx": ViewerOffice,
	"ppt":  ViewerOffice,
	"pptx": ViewerOffice,
	"odt":  ViewerOffice,
	"png":  ViewerImage,
	"jpg":  ViewerImage,
	"jpeg": ViewerImage,
	"gif":  ViewerImage,
	"bmp":  ViewerImage,
	"webp": ViewerImage,
	"tiff": ViewerImage,
	"mp4":  ViewerVideo,
	"txt":  ViewerText,
	"csv":  ViewerText,
	"html": ViewerText,
	"htm":  ViewerText,
}

// ViewerFor reports the viewer for an extension and whether it can be
// previewed at all.
func ViewerFor(ext string) (ViewerKind, bool) {
	k, ok := previewKinds[ext]
	return k, ok
}

// URLResolver issues signed download links.
type URLResolver interface {
	DownloadURL(ctx context.Context, bucket, objectName string) (string, error)
}

// PreviewSnapshot is the preview pane state at one point in time.
type PreviewSnapshot struct {
	Entry *Entry
	State PreviewState
	Kind  ViewerKind
	URL   string
	Err   error
}

// Previewer resolves previews for the selected file. Only the latest
// selection may change the state: every Select or Clear bumps a generation
// counter and cancels the previous resolution, and late answers carrying an
// older generation are dropped.
type Previewer struct {
	resolver URLResolver
	bucket   string

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	current    PreviewSnapshot
	notices    []Notice
}

// NewPreviewer creates an idle previewer.
func NewPreviewer(resolver URLResolver, bucket string) *Previewer {
	base, stop := context.WithCancel(context.Background())
	return &Previewer{
		resolver: resolver,
		bucket:   bucket,
		base:     base,
		stop:     stop,
		current:  PreviewSnapshot{State: PreviewNone},
	}
}

// Select makes e the previewed file and starts resolving its link when the
// extension is previewable. It returns the generation of this selection.
func (p *Previewer) Select(e Entry) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	gen := p.bump()
	entry := e
	p.current = PreviewSnapshot{Entry: &entry, State: PreviewNone}

	if p.bucket == "" || p.resolver == nil {
		return gen
	}

	ext := Extension(e.Name)
	if ext == "" {
		p.current.State = PreviewUnknown
		return gen
	}
	kind, ok := ViewerFor(ext)
	if !ok {
		p.current.State = PreviewUnsupported
		return gen
	}

	p.current.State = PreviewLoading
	p.current.Kind = kind

	ctx, cancel := context.WithCancel(p.base)
	p.cancel = cancel
	p.wg.Add(1)
	go p.resolve(ctx, cancel, gen, entry)
	return gen
}

// Clear drops the selection and invalidates any in-flight resolution.
func (p *Previewer) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bump()
	p.current = PreviewSnapshot{State: PreviewNone}
}

// bump must be called with p.mu held.
func (p *Previewer) bump() uint64 {
	p.generation++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	return p.generation
}

func (p *Previewer) resolve(ctx context.Context, cancel context.CancelFunc, gen uint64, e Entry) {
	defer p.wg.Done()
	defer cancel()

	url, err := p.resolver.DownloadURL(ctx, p.bucket, e.ID)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		slog.Debug("dropping stale preview", "object", e.ID)
		return
	}
	p.cancel = nil
	if err != nil {
		slog.Error("preview resolution failed", "bucket", p.bucket, "object", e.ID, "error", err)
		p.current.State = PreviewError
		p.current.Err = err
		p.notices = append(p.notices, Notice{
			Level:   LevelError,
			Message: "Error al cargar la vista previa del archivo.",
			At:      time.Now(),
		})
		return
	}
	p.current.State = PreviewReady
	p.current.URL = url
}

// Snapshot returns the current preview state.
func (p *Previewer) Snapshot() PreviewSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.current
	if s.Entry != nil {
		e := *s.Entry
		s.Entry = &e
	}
	return s
}

// Generation returns the generation of the latest Select or Clear.
func (p *Previewer) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

// Wait blocks until every started resolution has returned.
func (p *Previewer) Wait() {
	p.wg.Wait()
}

// Close cancels in-flight resolutions and waits for them.
func (p *Previewer) Close() {
	p.stop()
	p.wg.Wait()
}

func (p *Previewer) takeNotices() []Notice {
	p.mu.Lock()
	defer p.mu.Unlock()
	notices := p.notices
	p.notices = nil
	return notices
}
