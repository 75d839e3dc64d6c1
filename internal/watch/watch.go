// Package watch notices changes to LM Studio server logs so the index can be
// rebuilt without polling.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

var (
	reMonthDir = regexp.MustCompile(`^\d{4}-\d{2}$`)
	reLogFile  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}.*\.log$`)
)

const DefaultDebounce = 2 * time.Second

// Watcher watches the log root and its month directories. A burst of log
// writes produces a single signal on Changes once the burst has been quiet
// for the debounce interval.
type Watcher struct {
	root     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	changes  chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	running  bool
}

func New(root string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		root:     filepath.Clean(root),
		debounce: debounce,
		watcher:  fsw,
		changes:  make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Changes delivers one value per settled burst of log changes. Signals that
// arrive while the previous one is still unread are merged into it.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Start watches the root and every month directory below it.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.root); err != nil {
		return err
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() && reMonthDir.MatchString(e.Name()) {
			w.addDir(filepath.Join(w.root, e.Name()))
		}
	}

	go w.watchLoop()
	return nil
}

func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false
	w.cancel()
	return w.watcher.Close()
}

func (w *Watcher) addDir(dir string) {
	if err := w.watcher.Add(dir); err != nil {
		log.Warn().Err(err).Str("path", dir).Msg("failed to watch month directory")
		return
	}
	log.Debug().Str("path", dir).Msg("watching month directory")
}

// relevant reports whether an event can change the set of indexed sessions.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	name := filepath.Base(ev.Name)
	dir := filepath.Dir(filepath.Clean(ev.Name))

	if dir == w.root {
		if !reMonthDir.MatchString(name) {
			return false
		}
		if ev.Op&fsnotify.Create != 0 {
			if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
				w.addDir(ev.Name)
			}
		}
		// a whole month appearing or vanishing
		return ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0
	}
	if filepath.Dir(dir) != w.root || !reMonthDir.MatchString(filepath.Base(dir)) {
		return false
	}
	return reLogFile.MatchString(name) && ev.Op != fsnotify.Chmod
}

func (w *Watcher) watchLoop() {
	var debounceTimer *time.Timer

	for {
		select {
		case <-w.ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			log.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("log change")
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.signal)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) signal() {
	select {
	case w.changes <- struct{}{}:
	default:
	}
}
