package app

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chzzk-archiver/internal/domain"
	"chzzk-archiver/internal/ports"
	"chzzk-archiver/internal/state"
)

// OnlineScope distingue les deux canaux d'observation de présence en
// ligne. Les deux surfaces de la plateforme n'exposant pas des ids
// toujours cohérents, chaque cycle garde son propre ensemble précédent.
type OnlineScope string

const (
	ScopeBroad  OnlineScope = "broad"
	ScopeNarrow OnlineScope = "narrow"
)

const (
	// maxDownloadRetries: le compteur s'incrémente puis se compare en >=,
	// soit exactement 3 tentatives au total.
	maxDownloadRetries = 3

	// durationTolerance: écart accepté entre durée annoncée et durée
	// sondée (dérive entre bornes de capture et métadonnées plateforme).
	durationTolerance = 2 * time.Minute

	defaultTickInterval = 30 * time.Second
)

// VodPipeline détecte les passages hors ligne, planifie des
// re-vérifications échelonnées du catalogue de VODs, convertit les
// découvertes en tâches de téléchargement et les exécute sous admission
// bornée avec retry jusqu'à validation.
type VodPipeline struct {
	logger   zerolog.Logger
	api      ports.PlatformAPI
	store    *state.Store
	recorder *Recorder
	bus      ports.EventBus
	probe    ports.DurationProber
	limiter  *DynamicLimiter

	TickInterval time.Duration

	// OnResult est notifié de chaque tentative terminée avec "success",
	// "retry" ou "failed" (instrumentation, optionnel).
	OnResult func(result string)

	mu         sync.Mutex
	prevOnline map[OnlineScope]map[string]struct{}
	inflight   map[int]struct{}
}

func NewVodPipeline(logger zerolog.Logger, api ports.PlatformAPI, store *state.Store, recorder *Recorder, bus ports.EventBus, probe ports.DurationProber) *VodPipeline {
	concurrency := store.Settings.Read().VodDownloadConcurrency
	return &VodPipeline{
		logger:       logger.With().Str("component", "vod-pipeline").Logger(),
		api:          api,
		store:        store,
		recorder:     recorder,
		bus:          bus,
		probe:        probe,
		limiter:      NewDynamicLimiter(concurrency),
		TickInterval: defaultTickInterval,
		prevOnline:   make(map[OnlineScope]map[string]struct{}),
		inflight:     make(map[int]struct{}),
	}
}

// SetConcurrency ajuste la limite d'admission à chaud (settings réédités).
func (p *VodPipeline) SetConcurrency(n int) {
	p.limiter.SetLimit(n)
}

// ObserveOnline reçoit l'ensemble complet des créateurs du roster vus en
// ligne par un cycle de découverte. Un créateur présent au cycle précédent
// et absent de celui-ci vient de passer hors ligne: ses VODs sont
// peut-être en cours de publication.
func (p *VodPipeline) ObserveOnline(ctx context.Context, channelIDs []string, scope OnlineScope) {
	current := make(map[string]struct{}, len(channelIDs))
	for _, id := range channelIDs {
		current[id] = struct{}{}
	}

	p.mu.Lock()
	prev := p.prevOnline[scope]
	p.prevOnline[scope] = current
	p.mu.Unlock()

	for id := range prev {
		if _, stillOnline := current[id]; stillOnline {
			continue
		}
		p.scheduleChecks(ctx, id)
	}
}

// scheduleChecks planifie les re-vérifications échelonnées du catalogue
// d'un créateur qui vient de passer hors ligne.
func (p *VodPipeline) scheduleChecks(ctx context.Context, channelID string) {
	entry, ok := p.store.Roster.Read()[channelID]
	if !ok {
		p.logger.Error().Str("channel_id", channelID).Msg("vod check task failed due to unknown user")
		return
	}
	if !entry.EnableAutoDownloadVod {
		return
	}

	for _, pending := range p.store.VodChecks.Read() {
		if pending.ChannelID == channelID {
			p.logger.Warn().Str("channel_id", channelID).Msg("vod check task skipped due to task is already exist")
			return
		}
	}

	videos, err := p.api.ListVideos(ctx, channelID)
	if err != nil {
		if !errors.Is(err, ports.ErrTransient) {
			p.logger.Warn().Err(err).Str("username", entry.Username).Msg("failed to list videos for vod check")
		}
		return
	}

	var lastVodNumber *int
	for _, v := range videos {
		if lastVodNumber == nil || v.VideoNo > *lastVodNumber {
			n := v.VideoNo
			lastVodNumber = &n
		}
	}

	delays := p.store.Settings.Read().VodCheckDelaysMinutes
	now := time.Now()

	err = p.store.VodChecks.Mutate(ctx, func(schedule domain.VodCheckSchedule) domain.VodCheckSchedule {
		for _, minutes := range delays {
			checkTime := now.Add(time.Duration(minutes) * time.Minute).UnixMilli()
			// Les délais croissants garantissent l'unicité par créateur;
			// on décale d'1 ms en cas de collision entre créateurs.
			for {
				if _, taken := schedule[checkTime]; !taken {
					break
				}
				checkTime++
			}
			schedule[checkTime] = domain.VodCheckEntry{
				ChannelID:     channelID,
				Username:      entry.Username,
				CheckTime:     checkTime,
				LastVodNumber: lastVodNumber,
			}
		}
		return schedule
	})
	if err != nil {
		p.logger.Error().Err(err).Str("username", entry.Username).Msg("failed to persist vod check schedule")
		return
	}
	p.logger.Info().Str("username", entry.Username).Int("checks", len(delays)).Msg("user went offline, vod checks scheduled")
}

// Run consomme les événements de téléchargement et fait avancer le
// planning: à chaque tick, au plus une vérification échue est traitée et
// les tâches en attente sont promues jusqu'à la limite d'admission.
func (p *VodPipeline) Run(ctx context.Context) {
	go p.consumeEvents(ctx)

	interval := p.TickInterval
	if interval <= 0 {
		interval = defaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("vod pipeline stopped")
			return
		case <-ticker.C:
			p.processDueCheck(ctx)
			p.promoteWaiting(ctx)
		}
	}
}

// processDueCheck résout la vérification échue la plus ancienne (une seule
// par tick, pour borner le travail et éviter que deux checks du même
// créateur ne se disputent la même découverte).
func (p *VodPipeline) processDueCheck(ctx context.Context) {
	schedule := p.store.VodChecks.Read()
	if len(schedule) == 0 {
		return
	}

	keys := make([]int64, 0, len(schedule))
	for k := range schedule {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	now := time.Now().UnixMilli()
	var dueKey int64
	found := false
	for _, k := range keys {
		if k <= now {
			dueKey = k
			found = true
			break
		}
	}
	if !found {
		return
	}

	check := schedule[dueKey]
	removeKeys := []int64{dueKey}

	videos, err := p.api.ListVideos(ctx, check.ChannelID)
	if err != nil && !errors.Is(err, ports.ErrTransient) {
		p.logger.Warn().Err(err).Str("username", check.Username).Msg("vod list fetch failed")
	}

	var discovered []domain.VodDownloadEntry
	for _, v := range videos {
		if check.LastVodNumber != nil && v.VideoNo <= *check.LastVodNumber {
			continue
		}
		discovered = append(discovered, p.recorder.BuildVodEntry(v))
	}

	if len(discovered) > 0 {
		// Une VOD plus récente a été trouvée: les autres re-vérifications
		// échelonnées de ce créateur deviennent redondantes.
		for k, c := range schedule {
			if c.ChannelID == check.ChannelID && k != dueKey {
				removeKeys = append(removeKeys, k)
			}
		}

		if err := p.store.VodDownloads.Mutate(ctx, func(reg domain.VodDownloadRegistry) domain.VodDownloadRegistry {
			for _, item := range discovered {
				if existing, ok := reg[item.VodNum]; ok && existing.Status == domain.VodOngoing {
					// jamais écraser une tâche en cours
					continue
				}
				reg[item.VodNum] = item
			}
			return reg
		}); err != nil {
			p.logger.Error().Err(err).Msg("failed to persist discovered vods")
		}
		p.logger.Info().Str("username", check.Username).Int("vods", len(discovered)).Msg("new vods queued for download")
	}

	// La vérification traitée est toujours retirée, quel que soit l'issue.
	if err := p.store.VodChecks.Mutate(ctx, func(schedule domain.VodCheckSchedule) domain.VodCheckSchedule {
		for _, k := range removeKeys {
			delete(schedule, k)
		}
		return schedule
	}); err != nil {
		p.logger.Error().Err(err).Msg("failed to prune vod check schedule")
	}
}

// promoteWaiting promeut jusqu'à (limite - en cours) tâches en attente.
func (p *VodPipeline) promoteWaiting(ctx context.Context) {
	reg := p.store.VodDownloads.Read()

	p.mu.Lock()
	able := p.limiter.Limit() - len(p.inflight)
	if able <= 0 {
		p.mu.Unlock()
		return
	}

	candidates := make([]domain.VodDownloadEntry, 0, len(reg))
	for _, item := range reg {
		if item.Status != domain.VodWaiting {
			continue
		}
		if _, running := p.inflight[item.VodNum]; running {
			continue
		}
		candidates = append(candidates, item)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].VodNum < candidates[j].VodNum })

	if len(candidates) > able {
		candidates = candidates[:able]
	}
	for _, item := range candidates {
		p.inflight[item.VodNum] = struct{}{}
	}
	p.mu.Unlock()

	for _, item := range candidates {
		go p.downloadTask(ctx, item)
	}
}

func (p *VodPipeline) downloadTask(ctx context.Context, item domain.VodDownloadEntry) {
	defer func() {
		p.mu.Lock()
		delete(p.inflight, item.VodNum)
		p.mu.Unlock()
	}()

	if err := p.limiter.Acquire(ctx); err != nil {
		return
	}
	defer p.limiter.Release()

	if err := p.recorder.RecordVod(ctx, item); err != nil {
		p.logger.Warn().Err(err).Int("vod_num", item.VodNum).Msg("vod download not started")
		return
	}

	// La validation arrive par l'événement download.ended; garder le slot
	// occupé tant que l'entrée est encore "ongoing" évite une double
	// promotion de la même tâche.
	p.waitValidated(ctx, item.VodNum)
}

func (p *VodPipeline) waitValidated(ctx context.Context, vodNum int) {
	deadline := time.Now().Add(time.Minute)
	for time.Now().Before(deadline) {
		entry, ok := p.store.VodDownloads.Read()[vodNum]
		if !ok || entry.Status != domain.VodOngoing {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (p *VodPipeline) consumeEvents(ctx context.Context) {
	ch, cancel := p.bus.SubscribeReliable()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			switch e := evt.(type) {
			case ports.DownloadStarted:
				p.markOngoing(ctx, e.Item)
			case ports.DownloadEnded:
				p.finalizeDownload(ctx, e.Item)
			}
		}
	}
}

func (p *VodPipeline) markOngoing(ctx context.Context, item domain.VodDownloadEntry) {
	err := p.store.VodDownloads.Mutate(ctx, func(reg domain.VodDownloadRegistry) domain.VodDownloadRegistry {
		entry, ok := reg[item.VodNum]
		if !ok || !domain.CanTransition(entry.Status, domain.VodOngoing) {
			return reg
		}
		entry.Status = domain.VodOngoing
		reg[item.VodNum] = entry
		return reg
	})
	if err != nil {
		p.logger.Error().Err(err).Int("vod_num", item.VodNum).Msg("failed to persist ongoing status")
	}
}

// finalizeDownload valide le fichier produit: il doit exister et sa durée
// sondée ne pas être plus courte que la durée annoncée au-delà de la
// tolérance. Sinon: retry (compteur incrémenté puis comparé en >=) ou
// échec définitif.
func (p *VodPipeline) finalizeDownload(ctx context.Context, item domain.VodDownloadEntry) {
	path := p.recorder.VodFilePath(item)

	success := false
	if _, err := os.Stat(path); err != nil {
		p.logger.Error().Str("vod_url", item.VodURL).Str("path", path).Msg("can not find vod file to check duration")
	} else if probed, err := p.probe.Duration(ctx, path); err != nil {
		p.logger.Error().Err(err).Str("path", path).Msg("duration probe failed")
	} else if float64(item.Duration)-probed <= durationTolerance.Seconds() {
		success = true
	}

	err := p.store.VodDownloads.Mutate(ctx, func(reg domain.VodDownloadRegistry) domain.VodDownloadRegistry {
		entry, ok := reg[item.VodNum]
		if !ok {
			return reg
		}
		if success {
			entry.Status = domain.VodSuccess
		} else {
			entry.TryCount++
			if entry.TryCount >= maxDownloadRetries {
				entry.Status = domain.VodFailed
			} else {
				entry.Status = domain.VodWaiting
			}
		}
		reg[item.VodNum] = entry
		return reg
	})
	if err != nil {
		p.logger.Error().Err(err).Int("vod_num", item.VodNum).Msg("failed to persist download result")
		return
	}

	final := p.store.VodDownloads.Read()[item.VodNum]
	result := "retry"
	switch final.Status {
	case domain.VodSuccess:
		result = "success"
		p.logger.Info().Int("vod_num", item.VodNum).Msg("vod downloaded successfully")
	case domain.VodFailed:
		result = "failed"
		p.logger.Error().Int("vod_num", item.VodNum).Int("tries", final.TryCount).Msg("vod download failed permanently")
	default:
		p.logger.Warn().Int("vod_num", item.VodNum).Int("tries", final.TryCount).Msg("vod download invalid, will retry")
	}
	if p.OnResult != nil {
		p.OnResult(result)
	}
}
