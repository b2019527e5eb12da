package library

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher keeps the catalog in step with filesystem changes under the
// library root. New audio files are ingested, removed ones deleted, and the
// registered invalidation hook is told which directory changed so the browse
// cache can refresh it.
type Watcher struct {
	ing        *Ingestor
	watcher    *fsnotify.Watcher
	logger     *logrus.Logger
	invalidate func(dir string)
}

// NewWatcher starts watching root recursively. invalidate may be nil.
func NewWatcher(ing *Ingestor, root string, invalidate func(dir string), logger *logrus.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logrus.New()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{ing: ing, watcher: fsw, logger: logger, invalidate: invalidate}
	go w.loop()

	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}

	logger.WithField("root", root).Info("Library watcher started")
	return w, nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("Library watcher error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// Ignore temporary and hidden files
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".tmp") {
		return
	}

	isAudio := IsAudioFile(event.Name)

	switch {
	case event.Has(fsnotify.Create) && isAudio:
		go func(name string) {
			time.Sleep(500 * time.Millisecond) // let the writer finish
			if _, err := w.ing.IngestFile(name); err != nil {
				w.logger.WithError(err).WithField("path", name).Error("Failed to ingest new file")
				return
			}
			w.logger.WithField("path", name).Info("Ingested new file")
			w.invalidateDir(filepath.Dir(name))
		}(event.Name)

	case (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) && isAudio:
		go func(name string) {
			if err := w.ing.RemoveFile(name); err != nil {
				w.logger.WithError(err).WithField("path", name).Debug("Removed file was not in catalog")
			}
			w.invalidateDir(filepath.Dir(name))
		}(event.Name)

	case event.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.watcher.Add(event.Name)
			w.invalidateDir(filepath.Dir(event.Name))
			w.logger.WithField("directory", event.Name).Info("Watching new directory")
		}
	}
}

func (w *Watcher) invalidateDir(dir string) {
	if w.invalidate != nil {
		w.invalidate(dir)
	}
}

// Close stops the watcher (idempotent).
func (w *Watcher) Close() {
	if w.watcher != nil {
		w.watcher.Close()
	}
}
