package state

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultSettle = 150 * time.Millisecond

// StoreWatcher reports writes to a SQLite database file made by any process,
// including ones that never announce over Redis. Bursts of events are folded
// into one callback after the file settles.
type StoreWatcher struct {
	watcher *fsnotify.Watcher
	names   map[string]struct{}
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	settle  time.Duration

	mu       sync.Mutex
	onChange func()
	onClose  func()
	onError  func(error)
}

func NewStoreWatcher(dbPath string) (*StoreWatcher, error) {
	if dbPath == "" {
		return nil, errors.New("database path cannot be empty")
	}
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Dir(abs)); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// The directory is watched so the WAL file is seen even when it is
	// recreated after a checkpoint.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, err
	}

	base := filepath.Base(abs)
	return &StoreWatcher{
		watcher: w,
		names:   map[string]struct{}{base: {}, base + "-wal": {}},
		done:    make(chan struct{}),
		settle:  defaultSettle,
	}, nil
}

// Start runs the event loop until Close.
func (w *StoreWatcher) Start() {
	if w == nil {
		return
	}
	w.wg.Add(1)
	go w.loop()
}

func (w *StoreWatcher) loop() {
	defer w.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		case <-fire:
			fire = nil
			if fn := w.changeFunc(); fn != nil {
				fn()
			}
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.isRelevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.settle)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.settle)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if fn := w.errorFunc(); fn != nil && err != nil {
				fn(err)
			}
		}
	}
}

func (w *StoreWatcher) isRelevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	_, ok := w.names[filepath.Base(event.Name)]
	return ok
}

func (w *StoreWatcher) changeFunc() func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.onChange
}

func (w *StoreWatcher) errorFunc() func(error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.onError
}

func (w *StoreWatcher) Close() error {
	if w == nil {
		return nil
	}

	var closeErr error
	w.once.Do(func() {
		close(w.done)
		closeErr = w.watcher.Close()
		w.wg.Wait()
		w.mu.Lock()
		onClose := w.onClose
		w.mu.Unlock()
		if onClose != nil {
			onClose()
		}
	})

	return closeErr
}

// OnChange registers a callback invoked once per settled burst of writes.
func (w *StoreWatcher) OnChange(fn func()) {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.onChange = fn
	w.mu.Unlock()
}

// OnClose registers a callback that is invoked exactly once when the watcher
// shuts down.
func (w *StoreWatcher) OnClose(fn func()) {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.onClose = fn
	w.mu.Unlock()
}

func (w *StoreWatcher) OnError(fn func(error)) {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.onError = fn
	w.mu.Unlock()
}
