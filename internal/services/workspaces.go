package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/damacus/iron-archivos/internal/browser"
	"github.com/damacus/iron-archivos/internal/storage"
)

type workspaceKey struct {
	session string
	process string
}

type workspace struct {
	nav      *browser.Navigator
	lastUsed time.Time
}

// Workspaces holds one navigator per browser session and process. Tabs of the
// same session share it; their requests name the folder they show.
type Workspaces struct {
	client            storage.Client
	uploadConcurrency int
	idleTimeout       time.Duration
	now               func() time.Time

	mu    sync.Mutex
	items map[workspaceKey]*workspace
}

func NewWorkspaces(client storage.Client, uploadConcurrency int, idleTimeout time.Duration) *Workspaces {
	return &Workspaces{
		client:            client,
		uploadConcurrency: uploadConcurrency,
		idleTimeout:       idleTimeout,
		now:               time.Now,
		items:             make(map[workspaceKey]*workspace),
	}
}

// Get returns the navigator for the session and process, creating it at the
// bucket root on first use. A changed bucket replaces the navigator.
func (w *Workspaces) Get(sessionID, processID, bucket string) *browser.Navigator {
	key := workspaceKey{session: sessionID, process: processID}

	w.mu.Lock()
	defer w.mu.Unlock()

	if ws, ok := w.items[key]; ok {
		if ws.nav.Bucket() == bucket {
			ws.lastUsed = w.now()
			return ws.nav
		}
		go ws.nav.Close()
	}

	ws := &workspace{
		nav:      browser.NewNavigator(w.client, bucket, w.uploadConcurrency),
		lastUsed: w.now(),
	}
	w.items[key] = ws
	return ws.nav
}

// Drop closes every navigator of a process, e.g. after it was deleted.
func (w *Workspaces) Drop(processID string) {
	w.mu.Lock()
	var closing []*browser.Navigator
	for key, ws := range w.items {
		if key.process == processID {
			closing = append(closing, ws.nav)
			delete(w.items, key)
		}
	}
	w.mu.Unlock()

	for _, nav := range closing {
		nav.Close()
	}
}

// Sweep evicts workspaces idle for longer than the idle timeout and returns
// how many were evicted.
func (w *Workspaces) Sweep() int {
	cutoff := w.now().Add(-w.idleTimeout)

	w.mu.Lock()
	var closing []*browser.Navigator
	for key, ws := range w.items {
		if ws.lastUsed.Before(cutoff) {
			closing = append(closing, ws.nav)
			delete(w.items, key)
		}
	}
	w.mu.Unlock()

	for _, nav := range closing {
		nav.Close()
	}
	return len(closing)
}

func (w *Workspaces) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}

// Run sweeps on every tick until ctx is done, then closes all workspaces.
func (w *Workspaces) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.closeAll()
			return
		case <-ticker.C:
			if n := w.Sweep(); n > 0 {
				slog.Debug("evicted idle workspaces", "count", n)
			}
		}
	}
}

func (w *Workspaces) closeAll() {
	w.mu.Lock()
	items := w.items
	w.items = make(map[workspaceKey]*workspace)
	w.mu.Unlock()

	for _, ws := range items {
		ws.nav.Close()
	}
}
