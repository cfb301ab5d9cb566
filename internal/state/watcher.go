package state

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// WatchOptions règle le primitive "reload-on-external-change":
// coalescence des rafales d'événements filesystem et politique de relecture
// bornée face à un résultat implausiblement vide.
type WatchOptions struct {
	Debounce         time.Duration
	ReloadRetries    int
	ReloadRetryDelay time.Duration
}

func DefaultWatchOptions() WatchOptions {
	return WatchOptions{
		Debounce:         500 * time.Millisecond,
		ReloadRetries:    3,
		ReloadRetryDelay: 200 * time.Millisecond,
	}
}

func (o WatchOptions) normalized() WatchOptions {
	def := DefaultWatchOptions()
	if o.Debounce <= 0 {
		o.Debounce = def.Debounce
	}
	if o.ReloadRetries <= 0 {
		o.ReloadRetries = def.ReloadRetries
	}
	if o.ReloadRetryDelay <= 0 {
		o.ReloadRetryDelay = def.ReloadRetryDelay
	}
	return o
}

// watcher observe les fichiers des documents et déclenche leur rechargement
// avec debounce par fichier.
type watcher struct {
	logger zerolog.Logger
	fsw    *fsnotify.Watcher
	opts   WatchOptions

	mu      sync.Mutex
	targets map[string]func() // chemin absolu -> reload
	timers  map[string]*time.Timer
	dirs    map[string]struct{}
}

func newWatcher(logger zerolog.Logger, opts WatchOptions) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &watcher{
		logger:  logger.With().Str("component", "state-watcher").Logger(),
		fsw:     fsw,
		opts:    opts,
		targets: make(map[string]func()),
		timers:  make(map[string]*time.Timer),
		dirs:    make(map[string]struct{}),
	}, nil
}

// add enregistre un fichier à surveiller. fsnotify observe le répertoire
// parent: les fichiers peuvent ne pas encore exister (rename atomique).
func (w *watcher) add(path string, reload func()) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.dirs[dir]; !ok {
		if err := w.fsw.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = struct{}{}
	}
	w.targets[abs] = reload
	return nil
}

func (w *watcher) run(ctx context.Context) {
	defer func() { _ = w.fsw.Close() }()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Rename) {
				continue
			}
			w.dispatch(evt.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("filesystem watch error")
		}
	}
}

func (w *watcher) dispatch(name string) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	reload, ok := w.targets[abs]
	if !ok {
		return
	}
	// Coalescence: une rafale d'événements dans la fenêtre ne déclenche
	// qu'un seul rechargement.
	if t, ok := w.timers[abs]; ok {
		t.Reset(w.opts.Debounce)
		return
	}
	w.timers[abs] = time.AfterFunc(w.opts.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, abs)
		w.mu.Unlock()
		reload()
	})
}
