package config

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/retina/engine/core"
)

// DefaultDebounce coalesces the truncate+write pairs most editors produce.
const DefaultDebounce = 100 * time.Millisecond

type WatcherConfig struct {
	Path     string
	Debounce time.Duration
	// OnChange receives every configuration that parsed and validated.
	OnChange func(*Config)
	// OnError receives read, parse and watch errors. The previous configuration stays active.
	OnError func(error)
	Logger  *log.Logger
}

// Watcher reloads a configuration file whenever it changes on disk.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(*Config)
	onError  func(error)
	logger   *log.Logger

	fsnotify *fsnotify.Watcher
	done     chan struct{}
	stopped  chan struct{}
	once     sync.Once
}

func NewWatcher(config WatcherConfig) (*Watcher, error) {
	if config.Path == "" {
		return nil, errors.New("config watcher requires a path")
	}
	if config.OnChange == nil {
		return nil, errors.New("config watcher requires an OnChange callback")
	}
	path, err := filepath.Abs(config.Path)
	if err != nil {
		return nil, err
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	if config.Logger == nil {
		config.Logger = core.SubsystemLogger("config")
	}

	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory so atomic rename-over saves are seen too.
	if err := fsWatch.Add(filepath.Dir(path)); err != nil {
		fsWatch.Close()
		return nil, err
	}

	w := &Watcher{
		path:     path,
		debounce: config.Debounce,
		onChange: config.OnChange,
		onError:  config.OnError,
		logger:   config.Logger,
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go w.start()

	return w, nil
}

func (w *Watcher) Path() string {
	return w.path
}

// Close stops the watch loop and waits for it to exit. Safe to call more than once.
func (w *Watcher) Close() error {
	w.once.Do(func() {
		close(w.done)
	})
	<-w.stopped
	return nil
}

func (w *Watcher) start() {
	defer close(w.stopped)

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != w.path {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("config file changed", "path", w.path, "op", e.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload()

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "err", err)
			w.report(err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			w.fsnotify.Close()
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("ignoring invalid config reload", "path", w.path, "err", err)
		w.report(err)
		return
	}
	w.logger.Info("config reloaded", "path", w.path)
	w.onChange(cfg)
}

func (w *Watcher) report(err error) {
	if w.onError != nil {
		w.onError(err)
	}
}
