package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"chzzk-archiver/internal/domain"
	"chzzk-archiver/internal/ports"
	"chzzk-archiver/internal/state"
)

// Recorder traduit les décisions d'enregistrement/téléchargement en
// exactement un process externe chacune, et retraduit le cycle de vie du
// process en événements typés. Il ne touche jamais les registres: la
// comptabilité est faite par les abonnés du bus.
type Recorder struct {
	logger   zerolog.Logger
	store    *state.Store
	bus      ports.EventBus
	launcher ports.ProcessLauncher
	session  *SessionService

	// L'entrée au registre n'apparaît qu'après le passage de l'événement
	// par le bus: starting réserve le créateur de façon synchrone entre la
	// décision de spawn et la fin du process, pour que deux cycles
	// parallèles ne lancent pas deux captures.
	mu       sync.Mutex
	starting map[string]struct{}
}

func NewRecorder(logger zerolog.Logger, store *state.Store, bus ports.EventBus, launcher ports.ProcessLauncher, session *SessionService) *Recorder {
	return &Recorder{
		logger:   logger.With().Str("component", "recorder").Logger(),
		store:    store,
		bus:      bus,
		launcher: launcher,
		session:  session,
		starting: map[string]struct{}{},
	}
}

func SourceURL(channelID string) string {
	return "https://chzzk.naver.com/live/" + channelID
}

func VodURL(vodNum int) string {
	return fmt.Sprintf("https://chzzk.naver.com/video/%d", vodNum)
}

// StartRecording spawne une capture live détachée pour entry. No-op avec
// warning si le créateur a déjà une entrée au registre ou une capture en
// cours de démarrage: la réservation synchrone ferme la fenêtre entre deux
// cycles qui auraient décidé de démarrer le même créateur.
func (r *Recorder) StartRecording(ctx context.Context, live domain.Live, entry domain.RosterEntry) {
	r.mu.Lock()
	_, recording := r.store.Recordings.Read()[entry.ChannelID]
	if !recording {
		_, recording = r.starting[entry.ChannelID]
	}
	if recording {
		r.mu.Unlock()
		r.logger.Warn().Str("username", entry.Username).Msg("already recording, abort record process")
		return
	}
	r.starting[entry.ChannelID] = struct{}{}
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		delete(r.starting, entry.ChannelID)
		r.mu.Unlock()
	}

	if live.Adult && !r.adultAllowed(ctx, entry.Username) {
		release()
		return
	}

	command := r.liveCommand(live, entry, time.Now())
	handle, err := r.launcher.Launch(command)
	if err != nil {
		release()
		r.logger.Error().Err(err).Str("username", entry.Username).Msg("failed to spawn capture process")
		return
	}

	taskID := xid.New().String()
	r.logger.Info().Str("task_id", taskID).Str("username", entry.Username).Int("pid", handle.PID()).Msg("start to record user")
	r.bus.Publish(ports.RecordingStarted{
		ChannelID:   entry.ChannelID,
		Username:    entry.Username,
		ChannelName: entry.ChannelName,
		PID:         handle.PID(),
		StartAt:     time.Now(),
	})

	go func() {
		<-handle.Done()
		r.logger.Info().Str("task_id", taskID).Str("username", entry.Username).Msg("user is offline")
		r.bus.Publish(ports.RecordingEnded{ChannelID: entry.ChannelID, Username: entry.Username})
		release()
	}()
}

// RecordVod spawne le téléchargement d'une VOD et ne rend la main qu'à la
// sortie du process: c'est l'unité de travail qu'un slot de la file
// d'admission exécute.
func (r *Recorder) RecordVod(ctx context.Context, item domain.VodDownloadEntry) error {
	if item.Adult && !r.adultAllowed(ctx, item.Username) {
		return fmt.Errorf("adult vod %d requires an authenticated session", item.VodNum)
	}

	command := item.Command
	if command == "" {
		command = r.vodCommand(item)
	}

	handle, err := r.launcher.Launch(command)
	if err != nil {
		return fmt.Errorf("spawn vod download: %w", err)
	}

	taskID := xid.New().String()
	r.logger.Info().Str("task_id", taskID).Str("vod_url", item.VodURL).Int("pid", handle.PID()).Msg("start to download vod")
	r.bus.Publish(ports.DownloadStarted{Item: item, PID: handle.PID()})

	select {
	case <-handle.Done():
	case <-ctx.Done():
		// Pas de kill: le process détaché continue, on attend sa fin.
		<-handle.Done()
	}

	r.logger.Info().Str("task_id", taskID).Str("vod_url", item.VodURL).Msg("vod download process ended")
	r.bus.Publish(ports.DownloadEnded{Item: item})
	return nil
}

// BuildVodEntry convertit une VOD découverte en tâche de téléchargement
// en attente, commande de capture comprise.
func (r *Recorder) BuildVodEntry(video domain.Video) domain.VodDownloadEntry {
	username := "unknown_user"
	if u, ok := r.store.Roster.Read()[video.ChannelID]; ok {
		username = u.Username
	}

	item := domain.VodDownloadEntry{
		VodNum:      video.VideoNo,
		ChannelID:   video.ChannelID,
		Username:    username,
		VodURL:      VodURL(video.VideoNo),
		PublishDate: video.PublishDate,
		Duration:    video.Duration,
		Adult:       video.Adult,
		Status:      domain.VodWaiting,
	}
	item.Command = r.vodCommand(item)
	return item
}

// VodFilePath est le chemin de sortie attendu d'un téléchargement,
// utilisé par la validation de durée.
func (r *Recorder) VodFilePath(item domain.VodDownloadEntry) string {
	settings := r.store.Settings.Read()
	return filepath.Join(settings.SaveDirectory, vodFilename(settings, item)+".ts")
}

func (r *Recorder) adultAllowed(ctx context.Context, username string) bool {
	if r.store.Settings.Read().AdultContentMode == domain.AdultContentIgnore {
		r.logger.Info().Str("username", username).Msg("adult content ignored by configuration")
		return false
	}
	if !r.session.EnsureAdultAccess(ctx) {
		r.logger.Info().Str("username", username).Msg("can not record adult content without authenticated session")
		return false
	}
	return true
}

func (r *Recorder) liveCommand(live domain.Live, entry domain.RosterEntry, now time.Time) string {
	settings := r.store.Settings.Read()

	filePath := filepath.Join(settings.SaveDirectory, liveFilename(settings, entry, live.LiveID, now)+".ts")

	command := "streamlink " + SourceURL(entry.ChannelID) + " best "
	if live.Adult {
		command += r.cookieArg() + " "
	}
	if settings.UseLiveFFmpegOutput {
		command += "-O | ffmpeg -i pipe:0 -c copy " + filePath
	} else {
		command += "-o " + filePath
	}
	return command
}

func (r *Recorder) vodCommand(item domain.VodDownloadEntry) string {
	command := fmt.Sprintf("streamlink %s best -f -o %s", item.VodURL, r.VodFilePath(item))
	if item.Adult {
		command += " " + r.cookieArg()
	}
	return command
}

func (r *Recorder) cookieArg() string {
	return fmt.Sprintf("--http-header Cookie=%q", r.session.CookieHeader())
}
