package app

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"chzzk-archiver/internal/domain"
	"chzzk-archiver/internal/ports"
	"chzzk-archiver/internal/state"
)

const (
	// narrowInterval est fixe, indépendant de checkIntervalSec.
	narrowInterval = 5 * time.Minute

	// searchErrorCap: nombre d'échecs consécutifs avant d'abandonner la
	// pagination d'un tag pour ce cycle.
	searchErrorCap = 5
)

// Discovery décide, pour chaque entrée du roster, si elle devrait être en
// cours d'enregistrement, et signale au pipeline VOD les créateurs vus en
// ligne. Deux cycles indépendants: le cycle large (recherche par tags) et
// le cycle étroit (statut par créateur, couvre ceux que la recherche par
// tag peut manquer — les deux surfaces de la plateforme n'exposent pas
// toujours les mêmes ids).
type Discovery struct {
	logger   zerolog.Logger
	api      ports.PlatformAPI
	store    *state.Store
	recorder *Recorder
	pipeline *VodPipeline

	// RequestDelay espace les appels par créateur/page pour respecter le
	// rate limit de la plateforme.
	RequestDelay time.Duration
}

func NewDiscovery(logger zerolog.Logger, api ports.PlatformAPI, store *state.Store, recorder *Recorder, pipeline *VodPipeline) *Discovery {
	return &Discovery{
		logger:       logger.With().Str("component", "discovery").Logger(),
		api:          api,
		store:        store,
		recorder:     recorder,
		pipeline:     pipeline,
		RequestDelay: 2 * time.Second,
	}
}

// RunBroad exécute le cycle large pour toujours, re-planifié après chaque
// passage selon checkIntervalSec (relu à chaque cycle: un settings réédité
// prend effet sans redémarrage).
func (d *Discovery) RunBroad(ctx context.Context) {
	for {
		d.broadCycle(ctx)

		interval := time.Duration(d.store.Settings.Read().CheckIntervalSec) * time.Second
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("broad discovery stopped")
			return
		case <-time.After(interval):
		}
	}
}

// RunNarrow exécute le cycle étroit pour toujours, toutes les 5 minutes.
func (d *Discovery) RunNarrow(ctx context.Context) {
	for {
		d.narrowCycle(ctx)

		select {
		case <-ctx.Done():
			d.logger.Info().Msg("narrow discovery stopped")
			return
		case <-time.After(narrowInterval):
		}
	}
}

func (d *Discovery) broadCycle(ctx context.Context) {
	d.logger.Info().Msg("checking live channels by tag")

	lives := d.searchOnlineByTags(ctx)
	roster := d.store.Roster.Read()

	online := make([]string, 0, len(lives))
	for channelID, live := range lives {
		entry, ok := roster[channelID]
		if !ok {
			continue
		}
		online = append(online, channelID)
		d.maybeStartRecording(ctx, live, entry)
	}

	d.pipeline.ObserveOnline(ctx, online, ScopeBroad)
}

func (d *Discovery) narrowCycle(ctx context.Context) {
	roster := d.store.Roster.Read()

	channelIDs := make([]string, 0, len(roster))
	for id := range roster {
		channelIDs = append(channelIDs, id)
	}
	sort.Strings(channelIDs)

	online := make([]string, 0, len(channelIDs))
	for _, channelID := range channelIDs {
		entry := roster[channelID]

		// Un créateur non enregistré mais en auto-download reste sondé:
		// la découverte de VODs continue même sans capture live.
		if entry.DisableRecord && !entry.EnableAutoDownloadVod {
			continue
		}

		detail, err := d.api.GetLiveDetail(ctx, channelID)
		switch {
		case err != nil:
			if !errors.Is(err, ports.ErrTransient) {
				d.logger.Warn().Err(err).Str("username", entry.Username).Msg("live detail check failed")
			}
		case detail == nil || !detail.Open:
		default:
			online = append(online, channelID)
			d.maybeStartRecording(ctx, domain.Live{
				ChannelID:   channelID,
				ChannelName: entry.ChannelName,
				LiveID:      detail.LiveID,
				Category:    detail.Category,
				Adult:       detail.Adult,
			}, entry)
		}

		// Cadence entre deux sondes, issue d'erreur comprise: une série de
		// créateurs en échec ne doit pas marteler l'API.
		sleepCtx(ctx, d.RequestDelay)
		if ctx.Err() != nil {
			return
		}
	}

	d.pipeline.ObserveOnline(ctx, online, ScopeNarrow)
}

// maybeStartRecording applique le filtrage commun aux deux cycles:
// déjà enregistré, désactivé, catégorie hors liste blanche.
func (d *Discovery) maybeStartRecording(ctx context.Context, live domain.Live, entry domain.RosterEntry) {
	if current, ok := d.store.Recordings.Read()[entry.ChannelID]; ok {
		d.logger.Info().Str("username", current.Username).Str("url", SourceURL(entry.ChannelID)).Msg("recording user")
		return
	}
	if entry.DisableRecord {
		d.logger.Info().Str("username", entry.Username).Msg("record stopped due to configuration")
		return
	}
	if !entry.CategoryAllowed(live.Category) {
		d.logger.Info().Str("username", entry.Username).Str("category", live.Category).Msg("record stopped due to invalid category")
		return
	}

	d.recorder.StartRecording(ctx, live, entry)
}

// searchOnlineByTags pagine la recherche live pour chaque tag configuré et
// déduplique par channelId (un live peut matcher plusieurs tags).
func (d *Discovery) searchOnlineByTags(ctx context.Context) map[string]domain.Live {
	lives := make(map[string]domain.Live)

	for _, tag := range d.store.Settings.Read().SearchTags {
		errorCount := 0
		page := 0
		for {
			if ctx.Err() != nil {
				return lives
			}

			result, err := d.api.SearchLiveByTag(ctx, tag, page)
			if err != nil {
				errorCount++
				if !errors.Is(err, ports.ErrTransient) {
					d.logger.Warn().Err(err).Str("tag", tag).Msg("live search failed")
				}
				if errorCount >= searchErrorCap {
					break
				}
				// Même page au prochain tour: avancer sur erreur sauterait
				// silencieusement des résultats.
				sleepCtx(ctx, d.RequestDelay)
				continue
			}
			if len(result.Items) == 0 {
				break
			}

			for _, live := range result.Items {
				lives[live.ChannelID] = live
			}
			page++
			sleepCtx(ctx, d.RequestDelay)
		}
	}
	return lives
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
