package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"chzzk-archiver/internal/adapters/chzzk"
	"chzzk-archiver/internal/adapters/ffprobe"
	"chzzk-archiver/internal/adapters/httpapi"
	"chzzk-archiver/internal/adapters/memorybus"
	"chzzk-archiver/internal/adapters/procexec"
	"chzzk-archiver/internal/app"
	"chzzk-archiver/internal/buildinfo"
	"chzzk-archiver/internal/config"
	"chzzk-archiver/internal/domain"
	"chzzk-archiver/internal/metrics"
	"chzzk-archiver/internal/ports"
	"chzzk-archiver/internal/state"
)

func main() {
	_ = config.LoadDotenv()
	def := config.Default()

	addr := flag.String("addr", def.Addr, "Adresse d'écoute de l'API de consultation")
	settingsPath := flag.String("settings", def.SettingsPath, "Chemin du document de configuration (config.json)")
	stateDir := flag.String("state-dir", def.StateDir, "Répertoire des documents d'état persistés")
	ffprobeBin := flag.String("ffprobe", def.FFprobeBin, "Binaire ffprobe pour la validation des VODs")
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("app", "chzzk-archiver").Logger()
	log.Logger = logger

	logger.Info().Interface("build", buildinfo.Current()).
		Str("settings", *settingsPath).
		Str("state_dir", *stateDir).
		Msg("starting")

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := state.Open(shutdownCtx, logger, *settingsPath, *stateDir, state.WatchOptions{})
	if err != nil {
		// Un config.json absent est fatal: c'est le seul document requis.
		logger.Fatal().Err(err).Msg("failed to open state store")
	}
	defer store.Close()

	bus := memorybus.New()
	defer bus.Close()

	api := chzzk.New()
	launcher := procexec.NewLauncher(logger)
	prober := procexec.Prober{}
	probe := ffprobe.Prober{Bin: *ffprobeBin}

	session := app.NewSessionService(logger, api, store)
	recorder := app.NewRecorder(logger, store, bus, launcher, session)
	keeper := app.NewRegistryKeeper(logger, bus, store)
	pipeline := app.NewVodPipeline(logger, api, store, recorder, bus, probe)
	discovery := app.NewDiscovery(logger, api, store, recorder, pipeline)
	reconciler := app.NewReconciler(logger, store, prober)

	m := metrics.New()
	pipeline.OnResult = m.IncVodDownload

	// Rapprochement pid/registre avant toute découverte: les captures de
	// l'exécution précédente sont héritées ou purgées.
	inherited, err := reconciler.Startup(shutdownCtx)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup reconciliation failed")
	}
	if inherited > 0 {
		go reconciler.Monitor(shutdownCtx)
	}

	// Rechargement à chaud: la limite d'admission VOD suit le document.
	store.Settings.OnExternalChange(func(s domain.AppSettings) {
		pipeline.SetConcurrency(s.VodDownloadConcurrency)
		logger.Info().Int("dl_vod_concurrency", s.VodDownloadConcurrency).Msg("settings reloaded")
	})

	go keeper.Run(shutdownCtx)
	go pipeline.Run(shutdownCtx)
	go discovery.RunBroad(shutdownCtx)
	go discovery.RunNarrow(shutdownCtx)

	go func() {
		ch, cancel := bus.Subscribe()
		defer cancel()
		for {
			select {
			case <-shutdownCtx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if _, started := evt.(ports.RecordingStarted); started {
					m.IncRecordingsStarted()
				}
			}
		}
	}()

	srv := httpapi.NewServer(logger, store, bus, m)
	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", *addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server crashed")
			stop()
		}
	}()

	<-shutdownCtx.Done()
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
	logger.Info().Msg("bye")
}
