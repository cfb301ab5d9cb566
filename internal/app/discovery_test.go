package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"chzzk-archiver/internal/domain"
	"chzzk-archiver/internal/ports"
)

func newDiscoveryFixture(t *testing.T, settings domain.AppSettings) (*Discovery, *pipelineFixture) {
	t.Helper()
	f := newPipelineFixture(t, settings)
	d := NewDiscovery(zerolog.Nop(), f.platform, f.store, f.recorder, f.pipeline)
	d.RequestDelay = 0
	return d, f
}

func TestSearchOnlineByTagsDeduplicates(t *testing.T) {
	settings := testSettings(t)
	settings.SearchTags = []string{"tag-a", "tag-b"}
	d, f := newDiscoveryFixture(t, settings)

	pages := map[string][][]domain.Live{
		"tag-a": {{{ChannelID: "chan-1"}, {ChannelID: "chan-2"}}},
		"tag-b": {{{ChannelID: "chan-2"}, {ChannelID: "chan-3"}}},
	}
	f.platform.searchPage = func(tag string, page int) (ports.SearchPage, error) {
		tagPages := pages[tag]
		if page >= len(tagPages) {
			return ports.SearchPage{}, nil
		}
		return ports.SearchPage{Items: tagPages[page], Total: 3}, nil
	}

	lives := d.searchOnlineByTags(context.Background())
	if len(lives) != 3 {
		t.Fatalf("found %d lives, want 3 after dedup", len(lives))
	}
	for _, id := range []string{"chan-1", "chan-2", "chan-3"} {
		if _, ok := lives[id]; !ok {
			t.Fatalf("missing %s", id)
		}
	}
}

func TestSearchOnlineByTagsGivesUpAfterRepeatedErrors(t *testing.T) {
	settings := testSettings(t)
	settings.SearchTags = []string{"tag-a"}
	d, f := newDiscoveryFixture(t, settings)

	calls := 0
	f.platform.searchPage = func(tag string, page int) (ports.SearchPage, error) {
		calls++
		return ports.SearchPage{}, errors.New("boom")
	}

	lives := d.searchOnlineByTags(context.Background())
	if len(lives) != 0 {
		t.Fatalf("expected no lives, got %d", len(lives))
	}
	if calls != searchErrorCap {
		t.Fatalf("search attempted %d times, want %d", calls, searchErrorCap)
	}
}

func TestSearchOnlineByTagsRetriesSamePageOnError(t *testing.T) {
	settings := testSettings(t)
	settings.SearchTags = []string{"tag-a"}
	d, f := newDiscoveryFixture(t, settings)

	var pages []int
	f.platform.searchPage = func(tag string, page int) (ports.SearchPage, error) {
		pages = append(pages, page)
		// Deux échecs sur la première page avant qu'elle ne réponde.
		if page == 0 && len(pages) < 3 {
			return ports.SearchPage{}, errors.New("boom")
		}
		if page == 0 {
			return ports.SearchPage{Items: []domain.Live{{ChannelID: "chan-1"}}, Total: 1}, nil
		}
		return ports.SearchPage{}, nil
	}

	lives := d.searchOnlineByTags(context.Background())
	if _, ok := lives["chan-1"]; !ok {
		t.Fatalf("page lost after transient errors: %v", lives)
	}

	want := []int{0, 0, 0, 1}
	if len(pages) != len(want) {
		t.Fatalf("pages requested = %v, want %v", pages, want)
	}
	for i, p := range want {
		if pages[i] != p {
			t.Fatalf("pages requested = %v, want %v", pages, want)
		}
	}
}

func TestMaybeStartRecordingFilters(t *testing.T) {
	d, f := newDiscoveryFixture(t, testSettings(t))
	ctx := context.Background()

	// Catégorie hors liste blanche.
	entry := domain.RosterEntry{ChannelID: "chan-a", Username: "alice", AllowCategory: []string{"art"}}
	d.maybeStartRecording(ctx, domain.Live{ChannelID: "chan-a", Category: "talk"}, entry)
	if got := f.launcher.launchCount(); got != 0 {
		t.Fatalf("recording started despite category filter")
	}

	// Sous-chaîne insensible à la casse: autorisé.
	d.maybeStartRecording(ctx, domain.Live{ChannelID: "chan-a", Category: "Digital ART"}, entry)
	if got := f.launcher.launchCount(); got != 1 {
		t.Fatalf("launch count = %d, want 1 for allowed category", got)
	}
	f.launcher.finishAll()

	// Enregistrement désactivé.
	disabled := domain.RosterEntry{ChannelID: "chan-b", Username: "bob", DisableRecord: true}
	d.maybeStartRecording(ctx, domain.Live{ChannelID: "chan-b"}, disabled)
	if got := f.launcher.launchCount(); got != 1 {
		t.Fatalf("recording started for disabled creator")
	}
}

func TestBroadCycleIgnoresCreatorsOutsideRoster(t *testing.T) {
	settings := testSettings(t)
	settings.SearchTags = []string{"tag-a"}
	d, f := newDiscoveryFixture(t, settings)

	seedRoster(t, f, domain.RosterEntry{ChannelID: "chan-a", Username: "alice"})

	served := false
	f.platform.searchPage = func(tag string, page int) (ports.SearchPage, error) {
		if served || page > 0 {
			return ports.SearchPage{}, nil
		}
		served = true
		return ports.SearchPage{Items: []domain.Live{
			{ChannelID: "chan-a"},
			{ChannelID: "chan-stranger"},
		}, Total: 2}, nil
	}

	d.broadCycle(context.Background())

	if got := f.launcher.launchCount(); got != 1 {
		t.Fatalf("launch count = %d, want 1 (roster members only)", got)
	}
	f.launcher.finishAll()
}

func TestNarrowCycleProbesDisabledCreatorWithAutoDownload(t *testing.T) {
	d, f := newDiscoveryFixture(t, testSettings(t))

	// Enregistrement coupé mais auto-download actif: le créateur reste
	// sondé pour la détection de passage hors ligne.
	seedRoster(t, f,
		domain.RosterEntry{ChannelID: "chan-a", Username: "alice", DisableRecord: true, EnableAutoDownloadVod: true},
		domain.RosterEntry{ChannelID: "chan-b", Username: "bob", DisableRecord: true},
	)
	f.platform.detail = map[string]*domain.LiveDetail{
		"chan-a": {Open: true, LiveID: 7},
	}

	d.narrowCycle(context.Background())

	// Pas de capture (disableRecord), mais chan-a est compté en ligne.
	if got := f.launcher.launchCount(); got != 0 {
		t.Fatalf("launch count = %d, want 0", got)
	}

	f.platform.detail = map[string]*domain.LiveDetail{}
	d.narrowCycle(context.Background())

	// chan-a passé hors ligne au second cycle: checks planifiés.
	if got := len(f.store.VodChecks.Read()); got == 0 {
		t.Fatalf("expected vod checks scheduled after offline transition")
	}
}

func TestNarrowCyclePacesRequestsOnFailure(t *testing.T) {
	d, f := newDiscoveryFixture(t, testSettings(t))
	d.RequestDelay = 25 * time.Millisecond

	seedRoster(t, f,
		domain.RosterEntry{ChannelID: "chan-a", Username: "alice"},
		domain.RosterEntry{ChannelID: "chan-b", Username: "bob"},
		domain.RosterEntry{ChannelID: "chan-c", Username: "carol"},
	)
	f.platform.detailErr = ports.ErrTransient

	start := time.Now()
	d.narrowCycle(context.Background())
	elapsed := time.Since(start)

	// Trois sondes en échec doivent quand même respecter la cadence.
	if elapsed < 60*time.Millisecond {
		t.Fatalf("cycle took %v, want at least 60ms of pacing", elapsed)
	}
}
