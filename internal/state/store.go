// Package state est la source de vérité unique de l'agent: roster,
// registre d'enregistrement, planning de checks VOD, registre de
// téléchargements, credential et settings applicatifs. Chaque domaine est
// un Document avec mutations sérialisées, persistance immédiate et
// détection des éditions hors process.
package state

import (
	"context"
	"fmt"
	"maps"
	"path/filepath"

	"github.com/rs/zerolog"

	"chzzk-archiver/internal/adapters/fsjson"
	"chzzk-archiver/internal/domain"
)

const (
	rosterFile      = "users.json"
	recordingFile   = "recording.json"
	vodCheckFile    = "vodCheckList.json"
	vodDownloadFile = "vodDownloadList.json"
	credentialFile  = "cookie.txt"
)

type Store struct {
	logger zerolog.Logger

	Settings     *Document[domain.AppSettings]
	Roster       *Document[domain.Roster]
	Recordings   *Document[domain.RecordingRegistry]
	VodChecks    *Document[domain.VodCheckSchedule]
	VodDownloads *Document[domain.VodDownloadRegistry]
	Credential   *Document[domain.Credential]

	watcher *watcher
	cancel  context.CancelFunc
}

// Open charge tous les domaines depuis dir (et le fichier settings séparé),
// démarre les consommateurs de mutations et le watcher. Un fichier settings
// absent est une précondition de démarrage irrécupérable.
func Open(ctx context.Context, logger zerolog.Logger, settingsPath, dir string, opts WatchOptions) (*Store, error) {
	opts = opts.normalized()
	logger = logger.With().Str("component", "state").Logger()

	s := &Store{logger: logger}

	var err error
	s.Settings, err = newDocument(logger, documentConfig[domain.AppSettings]{
		name: "settings",
		path: settingsPath,
		read: func(path string) (domain.AppSettings, bool, error) {
			v, exists, err := fsjson.ReadJSON(path, domain.AppSettings{})
			if err != nil {
				return v, exists, err
			}
			if !exists {
				return v, false, fmt.Errorf("settings file not found: %s", path)
			}
			return v.Normalized(), true, nil
		},
		write:   func(path string, v domain.AppSettings) error { return fsjson.WriteJSON(path, v) },
		isEmpty: func(v domain.AppSettings) bool { return v.SaveDirectory == "" },
		clone:   func(v domain.AppSettings) domain.AppSettings { return v },
	}, opts)
	if err != nil {
		return nil, err
	}

	s.Roster, err = newDocument(logger, documentConfig[domain.Roster]{
		name:    "roster",
		path:    filepath.Join(dir, rosterFile),
		read:    readMap[domain.Roster](),
		write:   writeJSONDoc[domain.Roster](),
		isEmpty: func(v domain.Roster) bool { return len(v) == 0 },
		clone:   func(v domain.Roster) domain.Roster { return maps.Clone(v) },
	}, opts)
	if err != nil {
		return nil, err
	}

	s.Recordings, err = newDocument(logger, documentConfig[domain.RecordingRegistry]{
		name:    "recordings",
		path:    filepath.Join(dir, recordingFile),
		read:    readMap[domain.RecordingRegistry](),
		write:   writeJSONDoc[domain.RecordingRegistry](),
		isEmpty: func(v domain.RecordingRegistry) bool { return len(v) == 0 },
		clone:   func(v domain.RecordingRegistry) domain.RecordingRegistry { return maps.Clone(v) },
	}, opts)
	if err != nil {
		return nil, err
	}

	s.VodChecks, err = newDocument(logger, documentConfig[domain.VodCheckSchedule]{
		name:    "vod-checks",
		path:    filepath.Join(dir, vodCheckFile),
		read:    readMap[domain.VodCheckSchedule](),
		write:   writeJSONDoc[domain.VodCheckSchedule](),
		isEmpty: func(v domain.VodCheckSchedule) bool { return len(v) == 0 },
		clone:   func(v domain.VodCheckSchedule) domain.VodCheckSchedule { return maps.Clone(v) },
	}, opts)
	if err != nil {
		return nil, err
	}

	s.VodDownloads, err = newDocument(logger, documentConfig[domain.VodDownloadRegistry]{
		name:    "vod-downloads",
		path:    filepath.Join(dir, vodDownloadFile),
		read:    readMap[domain.VodDownloadRegistry](),
		write:   writeJSONDoc[domain.VodDownloadRegistry](),
		isEmpty: func(v domain.VodDownloadRegistry) bool { return len(v) == 0 },
		clone:   func(v domain.VodDownloadRegistry) domain.VodDownloadRegistry { return maps.Clone(v) },
	}, opts)
	if err != nil {
		return nil, err
	}

	s.Credential, err = newDocument(logger, documentConfig[domain.Credential]{
		name: "credential",
		path: filepath.Join(dir, credentialFile),
		read: func(path string) (domain.Credential, bool, error) {
			c, err := fsjson.ReadCredential(path)
			return c, c.Complete(), err
		},
		write:   func(path string, v domain.Credential) error { return fsjson.WriteCredential(path, v) },
		isEmpty: func(v domain.Credential) bool { return !v.Complete() },
		clone:   func(v domain.Credential) domain.Credential { return v },
	}, opts)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.Settings.run(runCtx)
	go s.Roster.run(runCtx)
	go s.Recordings.run(runCtx)
	go s.VodChecks.run(runCtx)
	go s.VodDownloads.run(runCtx)
	go s.Credential.run(runCtx)

	w, err := newWatcher(logger, opts)
	if err != nil {
		cancel()
		return nil, err
	}
	s.watcher = w
	for _, reg := range []struct {
		path   string
		reload func()
	}{
		{s.Settings.Path(), s.Settings.reloadExternal},
		{s.Roster.Path(), s.Roster.reloadExternal},
		{s.Recordings.Path(), s.Recordings.reloadExternal},
		{s.VodChecks.Path(), s.VodChecks.reloadExternal},
		{s.VodDownloads.Path(), s.VodDownloads.reloadExternal},
		{s.Credential.Path(), s.Credential.reloadExternal},
	} {
		if err := w.add(reg.path, reg.reload); err != nil {
			cancel()
			return nil, err
		}
	}
	go w.run(runCtx)

	return s, nil
}

func (s *Store) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

func readMap[M ~map[K]V, K comparable, V any]() func(string) (M, bool, error) {
	return func(path string) (M, bool, error) {
		v, exists, err := fsjson.ReadJSON(path, M{})
		if v == nil {
			v = M{}
		}
		return v, exists, err
	}
}

func writeJSONDoc[T any]() func(string, T) error {
	return func(path string, v T) error { return fsjson.WriteJSON(path, v) }
}
