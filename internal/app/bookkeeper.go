package app

import (
	"context"

	"github.com/rs/zerolog"

	"chzzk-archiver/internal/domain"
	"chzzk-archiver/internal/ports"
	"chzzk-archiver/internal/state"
)

// RegistryKeeper est le seul endroit où les entrées du registre
// d'enregistrement sont créées/supprimées en fonctionnement normal (la
// réconciliation au boot est à part). Il consomme les événements de cycle
// de vie du superviseur.
type RegistryKeeper struct {
	logger zerolog.Logger
	bus    ports.EventBus
	store  *state.Store
}

func NewRegistryKeeper(logger zerolog.Logger, bus ports.EventBus, store *state.Store) *RegistryKeeper {
	return &RegistryKeeper{
		logger: logger.With().Str("component", "registry-keeper").Logger(),
		bus:    bus,
		store:  store,
	}
}

func (k *RegistryKeeper) Run(ctx context.Context) {
	// Abonnement sans perte: un événement de fin raté laisserait une
	// entrée fantôme au registre.
	ch, cancel := k.bus.SubscribeReliable()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			k.logger.Info().Msg("registry keeper stopped")
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			k.handleEvent(ctx, evt)
		}
	}
}

func (k *RegistryKeeper) handleEvent(ctx context.Context, evt ports.Event) {
	switch e := evt.(type) {
	case ports.RecordingStarted:
		err := k.store.Recordings.Mutate(ctx, func(reg domain.RecordingRegistry) domain.RecordingRegistry {
			reg[e.ChannelID] = domain.RecordingEntry{
				PID:          e.PID,
				StartAt:      e.StartAt,
				Username:     e.Username,
				ChannelName:  e.ChannelName,
				Controllable: true,
			}
			return reg
		})
		if err != nil {
			k.logger.Error().Err(err).Str("channel_id", e.ChannelID).Msg("failed to persist recording entry")
		}
	case ports.RecordingEnded:
		err := k.store.Recordings.Mutate(ctx, func(reg domain.RecordingRegistry) domain.RecordingRegistry {
			delete(reg, e.ChannelID)
			return reg
		})
		if err != nil {
			k.logger.Error().Err(err).Str("channel_id", e.ChannelID).Msg("failed to remove recording entry")
		}
	}
}
