package storage

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"eduscale/internal/event"
	"eduscale/internal/logging"
)

// UploadsPrefix is the object prefix externally finalized uploads land under.
const UploadsPrefix = "uploads/"

// Watcher observes the uploads prefix of a bucket and synthesizes a
// storage-finalize notification for every object that appears there. Stage
// artifacts written through Store.Put on other prefixes emit their
// notifications directly and are not watched, so each finalize produces one
// notification source.
type Watcher struct {
	store   *Store
	bucket  string
	handler func(event.Notification)
	logger  *slog.Logger

	fsw    *fsnotify.Watcher
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewWatcher builds a watcher delivering notifications to handler.
func NewWatcher(store *Store, bucket string, handler func(event.Notification), logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{
		store:   store,
		bucket:  bucket,
		handler: handler,
		logger:  logger.With(logging.String(logging.FieldComponent, "storage-watcher")),
	}, nil
}

// Start begins watching. The uploads directory tree is created if missing and
// watched recursively; directories created later are added as they appear.
func (w *Watcher) Start(ctx context.Context) error {
	uploadsDir := filepath.Join(w.store.BucketDir(w.bucket), "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw

	if err := w.addTree(uploadsDir); err != nil {
		_ = fsw.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.run(runCtx)

	w.logger.Info("watching uploads", logging.String("dir", uploadsDir))
	return nil
}

// Close stops the watcher and waits for the event loop to drain.
func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	var err error
	if w.fsw != nil {
		err = w.fsw.Close()
	}
	w.wg.Wait()
	return err
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case watchErr, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", logging.Error(watchErr))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) {
		return
	}
	if IsTempPath(ev.Name) {
		return
	}

	info, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if err := w.addTree(ev.Name); err != nil {
			w.logger.Warn("watch new directory", logging.String("dir", ev.Name), logging.Error(err))
		}
		return
	}

	objectPath, err := w.objectPathFor(ev.Name)
	if err != nil {
		w.logger.Warn("object outside bucket", logging.String("path", ev.Name), logging.Error(err))
		return
	}

	n := event.New(w.bucket, objectPath, ContentTypeFor(objectPath), info.Size())
	w.logger.Debug("object finalized",
		logging.String(logging.FieldEventID, n.ID),
		logging.String("object_path", objectPath),
		logging.Int64("size_bytes", n.SizeBytes),
	)
	w.handler(n)
}

// addTree registers watches for dir and its subdirectories, then emits
// notifications for files that were finalized before the watch existed.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return w.fsw.Add(path)
		}
		if IsTempPath(path) {
			return nil
		}
		objectPath, pathErr := w.objectPathFor(path)
		if pathErr != nil {
			return nil
		}
		info, statErr := entry.Info()
		if statErr != nil {
			return nil
		}
		w.handler(event.New(w.bucket, objectPath, ContentTypeFor(objectPath), info.Size()))
		return nil
	})
}

func (w *Watcher) objectPathFor(fsPath string) (string, error) {
	rel, err := filepath.Rel(w.store.BucketDir(w.bucket), fsPath)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(filepath.ToSlash(rel), "//", "/"), nil
}
