package state

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Document est un domaine persisté: une valeur en mémoire adossée à un
// fichier. Toutes les mutations d'un domaine sont totalement ordonnées:
// un seul consommateur applique la mutation en mémoire PUIS termine
// l'écriture disque avant de passer à la suivante. Aucun ordre n'est
// garanti entre domaines.
type Document[T any] struct {
	name   string
	path   string
	logger zerolog.Logger

	read  func(path string) (T, bool, error)
	write func(path string, v T) error
	// isEmpty détecte un rechargement implausiblement vide (écriture
	// partielle observée en plein save externe).
	isEmpty func(T) bool
	clone   func(T) T

	reloadRetries int
	retryDelay    time.Duration

	mu       sync.RWMutex
	value    T
	onChange func(T)

	queue chan mutation[T]
}

type mutation[T any] struct {
	fn   func(T) T
	done chan error
}

type documentConfig[T any] struct {
	name    string
	path    string
	read    func(path string) (T, bool, error)
	write   func(path string, v T) error
	isEmpty func(T) bool
	clone   func(T) T
}

func newDocument[T any](logger zerolog.Logger, cfg documentConfig[T], opts WatchOptions) (*Document[T], error) {
	d := &Document[T]{
		name:          cfg.name,
		path:          cfg.path,
		logger:        logger.With().Str("document", cfg.name).Logger(),
		read:          cfg.read,
		write:         cfg.write,
		isEmpty:       cfg.isEmpty,
		clone:         cfg.clone,
		reloadRetries: opts.ReloadRetries,
		retryDelay:    opts.ReloadRetryDelay,
		queue:         make(chan mutation[T], 64),
	}
	v, _, err := cfg.read(cfg.path)
	if err != nil {
		return nil, err
	}
	d.value = v
	return d, nil
}

// Read renvoie un instantané de la valeur courante.
func (d *Document[T]) Read() T {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.clone(d.value)
}

// Mutate met fn en file derrière toutes les mutations déjà soumises pour
// ce domaine et attend que son application mémoire et son écriture disque
// soient terminées. Une erreur d'écriture est renvoyée mais la valeur en
// mémoire reste autoritaire pour le process en cours.
func (d *Document[T]) Mutate(ctx context.Context, fn func(T) T) error {
	m := mutation[T]{fn: fn, done: make(chan error, 1)}
	select {
	case d.queue <- m:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-m.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnExternalChange enregistre le callback invoqué quand un rechargement
// depuis le disque (édition hors process) produit une nouvelle valeur.
func (d *Document[T]) OnExternalChange(fn func(T)) {
	d.mu.Lock()
	d.onChange = fn
	d.mu.Unlock()
}

func (d *Document[T]) Path() string { return d.path }

// run est le consommateur unique de la file de mutations.
func (d *Document[T]) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-d.queue:
			d.mu.Lock()
			next := m.fn(d.clone(d.value))
			d.value = next
			d.mu.Unlock()

			err := d.write(d.path, next)
			if err != nil {
				// Pas de retry automatique: la valeur mémoire avance, un
				// crash avant la prochaine écriture perdrait ce changement.
				d.logger.Error().Err(err).Msg("disk write failed, in-memory value kept")
			}
			m.done <- err
		}
	}
}

// reloadExternal relit le document après un événement filesystem qui ne
// provient pas de ses propres écritures. Un résultat vide alors que la
// valeur mémoire ne l'est pas est traité comme transitoire et relu
// jusqu'à reloadRetries fois.
func (d *Document[T]) reloadExternal() {
	var loaded T
	for attempt := 1; ; attempt++ {
		v, _, err := d.read(d.path)
		if err != nil {
			d.logger.Warn().Err(err).Int("attempt", attempt).Msg("external reload failed")
			if attempt >= d.reloadRetries {
				return
			}
			time.Sleep(d.retryDelay)
			continue
		}
		if d.isEmpty(v) && !d.isEmpty(d.Read()) {
			if attempt >= d.reloadRetries {
				d.logger.Warn().Int("attempts", attempt).Msg("reload still empty, accepting empty value")
				loaded = v
				break
			}
			time.Sleep(d.retryDelay)
			continue
		}
		loaded = v
		break
	}

	d.mu.Lock()
	if reflect.DeepEqual(d.value, loaded) {
		// Notre propre écriture (ou édition sans effet): rien à notifier.
		d.mu.Unlock()
		return
	}
	d.value = loaded
	notify := d.onChange
	d.mu.Unlock()

	d.logger.Info().Msg("document reloaded after external change")
	if notify != nil {
		notify(d.clone(loaded))
	}
}
