// Package watch commits local edits of bound files to the server as they are saved.
package watch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"coedit/internal/commit"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const DefaultDebounce = 750 * time.Millisecond

// Committer is the part of the API client the watcher needs.
type Committer interface {
	SaveCommit(ctx context.Context, fileID, content string) (*commit.Commit, error)
}

// Binding ties a local path to a server file id.
type Binding struct {
	Path   string
	FileID string
}

type Watcher struct {
	committer Committer
	watcher   *fsnotify.Watcher
	files     map[string]string
	debounce  time.Duration
	logger    *zap.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	hashes map[string]string

	// saves are serialized so a slow request cannot race a newer one
	saveMu sync.Mutex
	wg     sync.WaitGroup
}

func New(committer Committer, bindings []Binding, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	if len(bindings) == 0 {
		return nil, fmt.Errorf("no files to watch")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		committer: committer,
		watcher:   watcher,
		files:     make(map[string]string, len(bindings)),
		debounce:  debounce,
		logger:    logger,
		timers:    make(map[string]*time.Timer),
		hashes:    make(map[string]string),
	}

	dirs := make(map[string]bool)
	for _, b := range bindings {
		abs, err := filepath.Abs(b.Path)
		if err != nil {
			watcher.Close()
			return nil, fmt.Errorf("resolving %s: %w", b.Path, err)
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			watcher.Close()
			return nil, fmt.Errorf("reading %s: %w", b.Path, err)
		}
		w.files[abs] = b.FileID
		w.hashes[abs] = hashContent(data)

		// Editors often save by renaming over the file, so watch the directory.
		dir := filepath.Dir(abs)
		if !dirs[dir] {
			if err := watcher.Add(dir); err != nil {
				watcher.Close()
				return nil, fmt.Errorf("adding directory to watcher: %w", err)
			}
			dirs[dir] = true
		}
	}

	return w, nil
}

// Run processes filesystem events until ctx is done, then waits for pending
// saves and closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleFSEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleFSEvent(ctx context.Context, event fsnotify.Event) {
	fileID, ok := w.files[filepath.Clean(event.Name)]
	if !ok {
		return
	}
	if event.Op&fsnotify.Write != fsnotify.Write && event.Op&fsnotify.Create != fsnotify.Create {
		return
	}

	path := filepath.Clean(event.Name)
	w.mu.Lock()
	defer w.mu.Unlock()

	if prev, ok := w.timers[path]; ok && prev.Stop() {
		// A stopped timer never runs its func, so release its slot here.
		w.wg.Done()
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.timers[path] == t {
			delete(w.timers, path)
		}
		w.mu.Unlock()
		w.flush(ctx, path, fileID)
	})
	w.timers[path] = t
}

func (w *Watcher) flush(ctx context.Context, path, fileID string) {
	w.saveMu.Lock()
	defer w.saveMu.Unlock()

	if ctx.Err() != nil {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("reading changed file", zap.String("path", path), zap.Error(err))
		return
	}
	if len(data) == 0 {
		w.logger.Debug("skipping empty file", zap.String("path", path))
		return
	}

	hash := hashContent(data)
	w.mu.Lock()
	unchanged := w.hashes[path] == hash
	w.mu.Unlock()
	if unchanged {
		return
	}

	c, err := w.committer.SaveCommit(ctx, fileID, string(data))
	if err != nil {
		w.logger.Error("saving commit",
			zap.String("path", path),
			zap.String("file", fileID),
			zap.Error(err))
		return
	}

	w.mu.Lock()
	w.hashes[path] = hash
	w.mu.Unlock()
	w.logger.Info("committed",
		zap.String("path", path),
		zap.String("file", fileID),
		zap.String("commit", c.ID))
}

func (w *Watcher) close() {
	w.mu.Lock()
	for path, t := range w.timers {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
	w.mu.Unlock()

	w.wg.Wait()
	w.watcher.Close()
}

func hashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
