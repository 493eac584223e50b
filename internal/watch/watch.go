// Package watch notices when a git notes ref moves underneath a running
// process, for example after `git fetch origin 'refs/notes/*:refs/notes/*'`,
// so the index can be re-synced without a restart.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/gitmem/pkg/git"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// DefaultDebounce coalesces the burst of writes a single ref update makes.
const DefaultDebounce = 500 * time.Millisecond

// Config configures a NotesWatcher.
type Config struct {
	// RepoPath is any path inside the repository.
	RepoPath string

	// Ref is the notes ref to follow, e.g. refs/notes/memories.
	Ref string

	// Debounce is the quiet period before the ref is re-read.
	Debounce time.Duration

	Logger *zap.Logger
}

// NotesWatcher emits the new notes commit each time Ref moves.
type NotesWatcher struct {
	repo     *git.Repository
	ref      string
	gitDir   string
	refDirs  []string
	debounce time.Duration
	logger   *zap.Logger

	watcher  *fsnotify.Watcher
	events   chan plumbing.Hash
	stop     chan struct{}
	stopOnce sync.Once
	last     plumbing.Hash
}

// New opens the repository and prepares a watcher. Call Start to begin.
func New(cfg Config) (*NotesWatcher, error) {
	if !strings.HasPrefix(cfg.Ref, "refs/notes/") {
		return nil, fmt.Errorf("notes ref must be under refs/notes/, got %q", cfg.Ref)
	}
	repo, err := git.Open(cfg.RepoPath)
	if err != nil {
		return nil, err
	}
	gitDir, err := repo.GitDir()
	if err != nil {
		return nil, err
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	// refs, refs/notes, ... down to the directory holding the ref file.
	var refDirs []string
	dir := gitDir
	for _, part := range strings.Split(filepath.Dir(filepath.FromSlash(cfg.Ref)), string(filepath.Separator)) {
		dir = filepath.Join(dir, part)
		refDirs = append(refDirs, dir)
	}

	return &NotesWatcher{
		repo:     repo,
		ref:      cfg.Ref,
		gitDir:   gitDir,
		refDirs:  refDirs,
		debounce: cfg.Debounce,
		logger:   cfg.Logger.With(zap.String("ref", cfg.Ref)),
		watcher:  fsw,
		events:   make(chan plumbing.Hash, 1),
		stop:     make(chan struct{}),
	}, nil
}

// Start records the current ref position and watches for changes in a
// background goroutine until ctx is done or Stop is called.
func (w *NotesWatcher) Start(ctx context.Context) error {
	last, err := w.repo.NotesHead(w.ref)
	if err != nil {
		return err
	}
	w.last = last

	// packed-refs lives directly in the git dir.
	if err := w.watcher.Add(w.gitDir); err != nil {
		return fmt.Errorf("watching %s: %w", w.gitDir, err)
	}
	w.addRefDirs()

	go w.processEvents(ctx)
	w.logger.Debug("watching notes ref", zap.String("git_dir", w.gitDir), zap.Stringer("notes_commit", last))
	return nil
}

// Stop stops the watcher. It is safe to call more than once.
func (w *NotesWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		_ = w.watcher.Close()
	})
}

// Events delivers the notes commit after each move. Moves that happen while
// a value is pending are coalesced.
func (w *NotesWatcher) Events() <-chan plumbing.Hash {
	return w.events
}

// addRefDirs watches every ref directory that exists so far.
func (w *NotesWatcher) addRefDirs() {
	for _, dir := range w.refDirs {
		if _, err := os.Stat(dir); err != nil {
			return
		}
		if err := w.watcher.Add(dir); err != nil {
			w.logger.Warn("watching ref directory failed", zap.String("dir", dir), zap.Error(err))
			return
		}
	}
}

func (w *NotesWatcher) processEvents(ctx context.Context) {
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				w.addRefDirs()
			}
			timer.Reset(w.debounce)
		case <-timer.C:
			w.check()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watcher error", zap.Error(err))
		}
	}
}

// relevant reports whether path can hold the position of a ref.
func (w *NotesWatcher) relevant(path string) bool {
	if path == filepath.Join(w.gitDir, "packed-refs") {
		return true
	}
	return strings.HasPrefix(path, filepath.Join(w.gitDir, "refs")+string(filepath.Separator))
}

func (w *NotesWatcher) check() {
	head, err := w.repo.NotesHead(w.ref)
	if err != nil {
		w.logger.Warn("reading notes ref failed", zap.Error(err))
		return
	}
	if head == w.last {
		return
	}
	w.last = head
	select {
	case w.events <- head:
	default:
	}
}

// SyncOnChange calls reconcile after every notes movement until ctx is done
// or events is closed. Failures are logged and the loop keeps going.
func SyncOnChange(ctx context.Context, events <-chan plumbing.Hash, reconcile func(context.Context) (int, error), logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case head, ok := <-events:
			if !ok {
				return
			}
			n, err := reconcile(ctx)
			if err != nil {
				logger.Warn("notes sync failed", zap.Stringer("notes_commit", head), zap.Error(err))
				continue
			}
			logger.Info("notes synced", zap.Stringer("notes_commit", head), zap.Int("synced", n))
		}
	}
}
