package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"chzzk-archiver/internal/domain"
	"chzzk-archiver/internal/ports"
	"chzzk-archiver/internal/state"
)

// Reconciler rapproche le registre d'enregistrements persisté de la
// réalité des processus au démarrage. Les pids encore vivants sont des
// captures héritées d'une exécution précédente: on les garde mais sans
// pouvoir les piloter (controllable=false). Les pids morts sont purgés.
type Reconciler struct {
	logger zerolog.Logger
	store  *state.Store
	prober ports.ProcessProber

	// Interval force la période de surveillance; 0 = suivre les settings.
	Interval time.Duration
}

func NewReconciler(logger zerolog.Logger, store *state.Store, prober ports.ProcessProber) *Reconciler {
	return &Reconciler{
		logger: logger.With().Str("component", "reconciler").Logger(),
		store:  store,
		prober: prober,
	}
}

// Startup effectue la passe de rapprochement et rend le nombre d'entrées
// héritées encore vivantes.
func (r *Reconciler) Startup(ctx context.Context) (int, error) {
	inherited := 0
	err := r.store.Recordings.Mutate(ctx, func(reg domain.RecordingRegistry) domain.RecordingRegistry {
		inherited = 0
		for channelID, entry := range reg {
			if r.prober.Alive(entry.PID) {
				entry.Controllable = false
				reg[channelID] = entry
				inherited++
				r.logger.Info().
					Str("username", entry.Username).
					Int("pid", entry.PID).
					Msg("inherited live recording from previous run")
				continue
			}
			delete(reg, channelID)
			r.logger.Warn().
				Str("username", entry.Username).
				Int("pid", entry.PID).
				Msg("stale recording entry removed")
		}
		return reg
	})
	if err != nil {
		return 0, err
	}
	return inherited, nil
}

// Monitor surveille les enregistrements hérités: leurs processus ne sont
// pas supervisés par un handle, seul le pid permet de savoir quand ils se
// terminent. La boucle s'arrête d'elle-même quand il n'en reste plus.
func (r *Reconciler) Monitor(ctx context.Context) {
	for {
		interval := r.Interval
		if interval <= 0 {
			interval = time.Duration(r.store.Settings.Read().CheckIntervalSec) * time.Second
		}
		if interval <= 0 {
			interval = time.Minute
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		remaining := 0
		err := r.store.Recordings.Mutate(ctx, func(reg domain.RecordingRegistry) domain.RecordingRegistry {
			remaining = 0
			for channelID, entry := range reg {
				if entry.Controllable {
					continue
				}
				if r.prober.Alive(entry.PID) {
					remaining++
					continue
				}
				delete(reg, channelID)
				r.logger.Info().
					Str("username", entry.Username).
					Int("pid", entry.PID).
					Msg("inherited recording finished")
			}
			return reg
		})
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to update inherited recordings")
			continue
		}
		if remaining == 0 {
			r.logger.Info().Msg("no inherited recordings left to monitor")
			return
		}
	}
}
