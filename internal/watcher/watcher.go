// Package watcher ingests documents as they appear in a directory tree.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"askdocs/internal/domain"
	"askdocs/internal/loader"
	"askdocs/internal/logging"
)

// IngestFunc receives the path and content of a changed document and
// returns the id it was stored under.
type IngestFunc func(ctx context.Context, path, text string) (string, error)

type ingested struct {
	hash uint64
	id   string
}

// Watcher debounces filesystem events per path and hands supported files
// to an IngestFunc one at a time.
type Watcher struct {
	dir      string
	debounce time.Duration
	ingest   IngestFunc
	log      logrus.FieldLogger

	mu      sync.Mutex
	pending map[string]*time.Timer
	ready   chan string
	done    chan struct{}

	// seen is only touched from the Run goroutine.
	seen map[string]ingested
}

// New returns a watcher for dir. log may be nil.
func New(dir string, debounce time.Duration, ingest IngestFunc, log logrus.FieldLogger) (*Watcher, error) {
	if ingest == nil {
		return nil, fmt.Errorf("%w: ingest func is required", domain.ErrInvalidConfig)
	}
	if debounce < 0 {
		return nil, fmt.Errorf("%w: debounce must not be negative", domain.ErrInvalidConfig)
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		ingest:   ingest,
		log:      log.WithField("dir", dir),
		pending:  make(map[string]*time.Timer),
		ready:    make(chan string, 64),
		done:     make(chan struct{}),
		seen:     make(map[string]ingested),
	}, nil
}

// Run watches until ctx is canceled. Ingest failures are logged and do not
// stop the watcher. Run must be called at most once.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.dir); err != nil {
		return err
	}
	w.log.Info("watching for documents")

	defer close(w.done)
	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(fw, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("watch error")
		case path := <-w.ready:
			w.process(ctx, path)
		}
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) handle(fw *fsnotify.Watcher, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(fw, ev.Name); err != nil {
				w.log.WithError(err).Warn("failed to watch new directory")
			}
			return
		}
	}
	if !loader.IsSupported(ev.Name) {
		return
	}
	w.schedule(ev.Name)
}

// schedule (re)starts the debounce timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		select {
		case w.ready <- path:
		case <-w.done:
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for p, t := range w.pending {
		t.Stop()
		delete(w.pending, p)
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	entry := w.log.WithField("path", path)
	text, err := loader.Load(path)
	if err != nil {
		entry.WithError(err).Warn("skipping document")
		return
	}
	hash := xxhash.Sum64String(text)
	prev, known := w.seen[path]
	if known && prev.hash == hash {
		entry.Debug("content unchanged, skipping")
		return
	}
	id, err := w.ingest(ctx, path, text)
	if err != nil {
		entry.WithError(err).Error("ingest failed")
		return
	}
	w.seen[path] = ingested{hash: hash, id: id}
	entry = entry.WithField("document_id", id)
	if known {
		// The index is append-only; the old passages stay searchable.
		entry.WithField("superseded_document_id", prev.id).Warn("document changed, ingested as a new version")
		return
	}
	entry.Info("document ingested from watch")
}
