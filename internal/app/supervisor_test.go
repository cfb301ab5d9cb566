package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"chzzk-archiver/internal/domain"
	"chzzk-archiver/internal/ports"
)

type memBusEvents struct {
	events <-chan ports.Event
}

func (m *memBusEvents) next(t *testing.T) ports.Event {
	t.Helper()
	select {
	case evt := <-m.events:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
		return nil
	}
}

func TestStartRecordingPublishesLifecycle(t *testing.T) {
	store := newTestStore(t, testSettings(t))
	bus := newTestBus(t)
	launcher := &fakeLauncher{}
	session := NewSessionService(zerolog.Nop(), &fakeSessionAPI{}, store)
	rec := NewRecorder(zerolog.Nop(), store, bus, launcher, session)

	events, cancel := bus.Subscribe()
	defer cancel()
	sub := &memBusEvents{events: events}

	entry := domain.RosterEntry{ChannelID: "chan-a", Username: "alice", ChannelName: "Alice"}
	live := domain.Live{ChannelID: "chan-a", LiveID: 42}

	rec.StartRecording(context.Background(), live, entry)

	if got := launcher.launchCount(); got != 1 {
		t.Fatalf("launch count = %d, want 1", got)
	}

	started, ok := sub.next(t).(ports.RecordingStarted)
	if !ok {
		t.Fatalf("expected RecordingStarted first")
	}
	if started.ChannelID != "chan-a" || started.PID == 0 {
		t.Fatalf("unexpected started event: %+v", started)
	}

	launcher.finishAll()
	ended, ok := sub.next(t).(ports.RecordingEnded)
	if !ok {
		t.Fatalf("expected RecordingEnded after process exit")
	}
	if ended.ChannelID != "chan-a" {
		t.Fatalf("unexpected ended event: %+v", ended)
	}
}

func TestStartRecordingIsIdempotentPerCreator(t *testing.T) {
	store := newTestStore(t, testSettings(t))
	bus := newTestBus(t)
	launcher := &fakeLauncher{}
	session := NewSessionService(zerolog.Nop(), &fakeSessionAPI{}, store)
	rec := NewRecorder(zerolog.Nop(), store, bus, launcher, session)

	err := store.Recordings.Mutate(context.Background(), func(reg domain.RecordingRegistry) domain.RecordingRegistry {
		reg["chan-a"] = domain.RecordingEntry{PID: 123, Username: "alice", Controllable: true}
		return reg
	})
	if err != nil {
		t.Fatalf("seed registry: %v", err)
	}

	rec.StartRecording(context.Background(), domain.Live{ChannelID: "chan-a"}, domain.RosterEntry{ChannelID: "chan-a", Username: "alice"})

	if got := launcher.launchCount(); got != 0 {
		t.Fatalf("launch count = %d, want 0 for already-recording creator", got)
	}
}

// Les cycles large et ciblé tournent en parallèle et peuvent décider de
// démarrer le même créateur avant que l'entrée au registre n'existe: la
// réservation interne doit garantir un seul process.
func TestStartRecordingParallelCyclesSpawnOnce(t *testing.T) {
	store := newTestStore(t, testSettings(t))
	bus := newTestBus(t)
	launcher := &fakeLauncher{}
	session := NewSessionService(zerolog.Nop(), &fakeSessionAPI{}, store)
	rec := NewRecorder(zerolog.Nop(), store, bus, launcher, session)

	keeper := NewRegistryKeeper(zerolog.Nop(), bus, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go keeper.Run(ctx)

	entry := domain.RosterEntry{ChannelID: "chan-a", Username: "alice", ChannelName: "Alice"}
	live := domain.Live{ChannelID: "chan-a", LiveID: 42}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.StartRecording(ctx, live, entry)
		}()
	}
	wg.Wait()

	if got := launcher.launchCount(); got != 1 {
		t.Fatalf("launch count = %d, want exactly 1", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := store.Recordings.Read()["chan-a"]; ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := len(store.Recordings.Read()); got != 1 {
		t.Fatalf("registry has %d entries, want 1", got)
	}
	launcher.finishAll()
}

func TestStartRecordingAllowsRestartAfterExit(t *testing.T) {
	store := newTestStore(t, testSettings(t))
	bus := newTestBus(t)
	launcher := &fakeLauncher{}
	session := NewSessionService(zerolog.Nop(), &fakeSessionAPI{}, store)
	rec := NewRecorder(zerolog.Nop(), store, bus, launcher, session)

	keeper := NewRegistryKeeper(zerolog.Nop(), bus, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go keeper.Run(ctx)

	entry := domain.RosterEntry{ChannelID: "chan-a", Username: "alice"}
	live := domain.Live{ChannelID: "chan-a", LiveID: 42}

	rec.StartRecording(ctx, live, entry)
	if got := launcher.launchCount(); got != 1 {
		t.Fatalf("launch count = %d, want 1", got)
	}

	launcher.finishAll()

	// Le retrait du registre et la levée de la réservation sont
	// asynchrones: on réessaie jusqu'à ce qu'un second spawn passe.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && launcher.launchCount() < 2 {
		rec.StartRecording(ctx, live, entry)
		time.Sleep(10 * time.Millisecond)
	}
	if got := launcher.launchCount(); got != 2 {
		t.Fatalf("launch count = %d, want 2 after process exit", got)
	}
	launcher.finishAll()
}

func TestStartRecordingSkipsAdultWithoutSession(t *testing.T) {
	settings := testSettings(t)
	settings.AdultContentMode = domain.AdultContentIgnore
	store := newTestStore(t, settings)
	bus := newTestBus(t)
	launcher := &fakeLauncher{}
	session := NewSessionService(zerolog.Nop(), &fakeSessionAPI{}, store)
	rec := NewRecorder(zerolog.Nop(), store, bus, launcher, session)

	rec.StartRecording(context.Background(), domain.Live{ChannelID: "chan-a", Adult: true}, domain.RosterEntry{ChannelID: "chan-a", Username: "alice"})

	if got := launcher.launchCount(); got != 0 {
		t.Fatalf("launch count = %d, want 0 when adult content is ignored", got)
	}
}

func TestLiveCommandShapes(t *testing.T) {
	settings := testSettings(t)
	settings.UseLiveFFmpegOutput = true
	store := newTestStore(t, settings)
	bus := newTestBus(t)
	launcher := &fakeLauncher{}
	session := NewSessionService(zerolog.Nop(), &fakeSessionAPI{}, store)
	rec := NewRecorder(zerolog.Nop(), store, bus, launcher, session)

	entry := domain.RosterEntry{ChannelID: "chan-a", Username: "alice"}
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.Local)

	cmd := rec.liveCommand(domain.Live{ChannelID: "chan-a", LiveID: 7}, entry, now)
	if !strings.HasPrefix(cmd, "streamlink https://chzzk.naver.com/live/chan-a best ") {
		t.Fatalf("unexpected command prefix: %s", cmd)
	}
	if !strings.Contains(cmd, "-O | ffmpeg -i pipe:0 -c copy ") {
		t.Fatalf("expected ffmpeg remux pipe, got: %s", cmd)
	}
	if strings.Contains(cmd, "--http-header") {
		t.Fatalf("no cookie expected for non-adult live: %s", cmd)
	}

	adult := rec.liveCommand(domain.Live{ChannelID: "chan-a", LiveID: 7, Adult: true}, entry, now)
	if !strings.Contains(adult, `--http-header Cookie="NID_SES=`) {
		t.Fatalf("expected cookie header for adult live: %s", adult)
	}
}

func TestBuildVodEntry(t *testing.T) {
	store := newTestStore(t, testSettings(t))
	bus := newTestBus(t)
	launcher := &fakeLauncher{}
	session := NewSessionService(zerolog.Nop(), &fakeSessionAPI{}, store)
	rec := NewRecorder(zerolog.Nop(), store, bus, launcher, session)

	err := store.Roster.Mutate(context.Background(), func(r domain.Roster) domain.Roster {
		r["chan-a"] = domain.RosterEntry{ChannelID: "chan-a", Username: "alice"}
		return r
	})
	if err != nil {
		t.Fatalf("seed roster: %v", err)
	}

	item := rec.BuildVodEntry(domain.Video{VideoNo: 501, ChannelID: "chan-a", Duration: 7200, PublishDate: "2026-08-28 21:00:00"})
	if item.Status != domain.VodWaiting {
		t.Fatalf("status = %s, want waiting", item.Status)
	}
	if item.Username != "alice" {
		t.Fatalf("username = %s, want alice", item.Username)
	}
	if item.VodURL != "https://chzzk.naver.com/video/501" {
		t.Fatalf("vod url = %s", item.VodURL)
	}
	if !strings.Contains(item.Command, "streamlink https://chzzk.naver.com/video/501 best -f -o ") {
		t.Fatalf("unexpected command: %s", item.Command)
	}

	unknown := rec.BuildVodEntry(domain.Video{VideoNo: 502, ChannelID: "chan-x"})
	if unknown.Username != "unknown_user" {
		t.Fatalf("username = %s, want unknown_user", unknown.Username)
	}
}
