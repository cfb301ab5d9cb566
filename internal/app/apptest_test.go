package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"chzzk-archiver/internal/adapters/memorybus"
	"chzzk-archiver/internal/domain"
	"chzzk-archiver/internal/ports"
	"chzzk-archiver/internal/state"
)

func newTestStore(t *testing.T, settings domain.AppSettings) *state.Store {
	t.Helper()

	dir := t.TempDir()
	settingsPath := filepath.Join(dir, "config.json")
	raw, err := json.Marshal(settings.Normalized())
	if err != nil {
		t.Fatalf("marshal settings: %v", err)
	}
	if err := os.WriteFile(settingsPath, raw, 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	store, err := state.Open(context.Background(), zerolog.Nop(), settingsPath, dir, state.WatchOptions{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func testSettings(t *testing.T) domain.AppSettings {
	t.Helper()
	s := domain.DefaultSettings()
	s.SaveDirectory = t.TempDir()
	return s
}

func newTestBus(t *testing.T) *memorybus.Bus {
	t.Helper()
	bus := memorybus.New()
	t.Cleanup(bus.Close)
	return bus
}

// fakeHandle est un process dont le test décide la fin.
type fakeHandle struct {
	pid  int
	done chan struct{}
}

func (h *fakeHandle) PID() int              { return h.pid }
func (h *fakeHandle) Done() <-chan struct{} { return h.done }
func (h *fakeHandle) Err() error            { return nil }

// fakeLauncher enregistre les commandes lancées et rend des handles
// contrôlables par le test.
type fakeLauncher struct {
	mu       sync.Mutex
	commands []string
	handles  []*fakeHandle
	err      error
}

func (l *fakeLauncher) Launch(command string) (ports.ProcessHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	h := &fakeHandle{pid: 1000 + len(l.handles), done: make(chan struct{})}
	l.commands = append(l.commands, command)
	l.handles = append(l.handles, h)
	return h, nil
}

func (l *fakeLauncher) launchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.commands)
}

func (l *fakeLauncher) finishAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, h := range l.handles {
		select {
		case <-h.done:
		default:
			close(h.done)
		}
	}
}

// fakePlatform implémente ports.PlatformAPI sur des réponses fixes.
type fakePlatform struct {
	mu         sync.Mutex
	searchPage func(tag string, page int) (ports.SearchPage, error)
	status     map[string]*domain.LiveStatus
	detail     map[string]*domain.LiveDetail
	detailErr  error
	videos     map[string][]domain.Video
	videosErr  error
	listCalls  int
}

func (f *fakePlatform) SearchLiveByTag(ctx context.Context, tag string, page int) (ports.SearchPage, error) {
	if f.searchPage == nil {
		return ports.SearchPage{}, nil
	}
	return f.searchPage(tag, page)
}

func (f *fakePlatform) GetLiveStatus(ctx context.Context, channelID string) (*domain.LiveStatus, error) {
	return f.status[channelID], nil
}

func (f *fakePlatform) GetLiveDetail(ctx context.Context, channelID string) (*domain.LiveDetail, error) {
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	return f.detail[channelID], nil
}

func (f *fakePlatform) ListVideos(ctx context.Context, channelID string) ([]domain.Video, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()
	if f.videosErr != nil {
		return nil, f.videosErr
	}
	return f.videos[channelID], nil
}

func (f *fakePlatform) GetVideo(ctx context.Context, vodNum int) (*domain.Video, error) {
	for _, vids := range f.videos {
		for _, v := range vids {
			if v.VideoNo == vodNum {
				out := v
				return &out, nil
			}
		}
	}
	return nil, ports.ErrNotFound
}

// fakeSessionAPI implémente ports.SessionAPI.
type fakeSessionAPI struct {
	mu           sync.Mutex
	verifyErr    error
	refreshErr   error
	refreshed    string
	refreshCalls int
}

func (f *fakeSessionAPI) VerifySession(ctx context.Context, cred domain.Credential) error {
	return f.verifyErr
}

func (f *fakeSessionAPI) RefreshSession(ctx context.Context, cred domain.Credential) (string, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.mu.Unlock()
	if f.refreshErr != nil {
		return "", f.refreshErr
	}
	return f.refreshed, nil
}

func (f *fakeSessionAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

// fakeDurationProber renvoie une durée par chemin.
type fakeDurationProber struct {
	durations map[string]float64
	err       error
}

func (f fakeDurationProber) Duration(ctx context.Context, path string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.durations[path], nil
}

// fakeProcProber déclare vivants les pids de l'ensemble alive.
type fakeProcProber struct {
	mu    sync.Mutex
	alive map[int]bool
}

func (f *fakeProcProber) Alive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid]
}

func (f *fakeProcProber) kill(pid int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.alive, pid)
}
