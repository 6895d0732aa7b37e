// Package watch feeds vault file-system changes into the note service so the
// graph and search index follow edits made outside the application.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/graphnotes/internal/models"
	"github.com/starford/graphnotes/internal/storage"
)

// DefaultReconcileDelay debounces the reconciliation pass after renames.
const DefaultReconcileDelay = 200 * time.Millisecond

// Handler applies file changes. Implemented by noteservice.Service.
type Handler interface {
	ApplyFile(ctx context.Context, path string, data []byte) (models.ChangeKind, error)
	RemoveFile(ctx context.Context, path string) error
	Reconcile(ctx context.Context) error
}

// Watcher watches a vault directory tree.
type Watcher struct {
	root     string
	store    storage.Provider
	h        Handler
	logger   *slog.Logger
	debounce time.Duration
}

// New returns a watcher for the vault at root. Paths handed to h are
// vault-relative and slash-separated.
func New(root string, store storage.Provider, h Handler, logger *slog.Logger) *Watcher {
	return &Watcher{
		root:     root,
		store:    store,
		h:        h,
		logger:   logger,
		debounce: DefaultReconcileDelay,
	}
}

// Run processes file change events until ctx is cancelled.
//
// New directories created at runtime are added to the watch list and their
// notes applied, as one batch when there are several. fsnotify reports a rename on the old path only, so the old
// path is removed at once and a debounced Reconcile picks up the new one.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := addDirsRecursive(fw, w.root); err != nil {
		return err
	}
	w.logger.Info("watcher: started", slog.String("root", w.root))

	var (
		reconcileTimer *time.Timer
		reconcileCh    <-chan time.Time
	)
	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(w.debounce)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(w.debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			w.logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			if err := w.h.Reconcile(ctx); err != nil {
				w.logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, fw, ev, scheduleReconcile)

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, fw *fsnotify.Watcher, ev fsnotify.Event, scheduleReconcile func()) {
	abs := ev.Name
	if storage.IsHidden(filepath.Base(abs)) {
		return
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			if err := addDirsRecursive(fw, abs); err != nil {
				w.logger.Warn("watcher: add new dir failed", slog.String("path", abs), slog.String("error", err.Error()))
			} else {
				w.logger.Debug("watcher: watching new dir", slog.String("path", abs))
			}
			w.applyDir(ctx, abs)
			return
		}
	}

	if !storage.IsNoteFile(abs) {
		return
	}
	rel, err := w.rel(abs)
	if err != nil {
		return
	}

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.apply(ctx, rel)

	case ev.Op&fsnotify.Remove != 0:
		if err := w.h.RemoveFile(ctx, rel); err != nil {
			w.logger.Warn("watcher: remove failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		w.logger.Debug("watcher: removed", slog.String("path", rel))

	case ev.Op&fsnotify.Rename != 0:
		if err := w.h.RemoveFile(ctx, rel); err != nil {
			w.logger.Warn("watcher: rename remove failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
		scheduleReconcile()
	}
}

func (w *Watcher) apply(ctx context.Context, rel string) {
	data, err := w.store.Read(rel)
	if err != nil {
		w.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	kind, err := w.h.ApplyFile(ctx, rel, data)
	if err != nil {
		w.logger.Warn("watcher: apply failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("watcher: applied", slog.String("path", rel), slog.String("op", string(kind)))
}

// applyDir picks up notes already present in a newly created directory,
// typically one moved into the vault. A single note is applied directly;
// several are handed to Reconcile as one batch so links between them
// resolve.
func (w *Watcher) applyDir(ctx context.Context, dir string) {
	var notes []string
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if p != dir && storage.IsHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !storage.IsNoteFile(p) {
			return nil
		}
		if rel, err := w.rel(p); err == nil {
			notes = append(notes, rel)
		}
		return nil
	})

	switch len(notes) {
	case 0:
	case 1:
		w.apply(ctx, notes[0])
	default:
		w.logger.Debug("watcher: new dir with notes", slog.String("path", dir), slog.Int("notes", len(notes)))
		if err := w.h.Reconcile(ctx); err != nil {
			w.logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) rel(abs string) (string, error) {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// addDirsRecursive adds root and all its non-hidden subdirectories.
func addDirsRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && storage.IsHidden(d.Name()) {
			return filepath.SkipDir
		}
		return fw.Add(p)
	})
}
