package app

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"chzzk-archiver/internal/adapters/fsjson"
	"chzzk-archiver/internal/domain"
	"chzzk-archiver/internal/state"
)

func seedCredential(t *testing.T, doc *state.Document[domain.Credential]) {
	t.Helper()
	err := doc.Mutate(context.Background(), func(c domain.Credential) domain.Credential {
		c.Auth = "aut-token"
		c.Session = "ses-token"
		return c
	})
	if err != nil {
		t.Fatalf("seed credential: %v", err)
	}
}

func TestEnsureAdultAccessWithoutCredential(t *testing.T) {
	store := newTestStore(t, testSettings(t))
	svc := NewSessionService(zerolog.Nop(), &fakeSessionAPI{}, store)

	if svc.EnsureAdultAccess(context.Background()) {
		t.Fatalf("access granted without any cookie")
	}
}

func TestEnsureAdultAccessVerifiedSession(t *testing.T) {
	store := newTestStore(t, testSettings(t))
	seedCredential(t, store.Credential)
	svc := NewSessionService(zerolog.Nop(), &fakeSessionAPI{}, store)

	if !svc.EnsureAdultAccess(context.Background()) {
		t.Fatalf("access denied for a valid session")
	}
}

func TestEnsureAdultAccessRefreshPersistsSession(t *testing.T) {
	store := newTestStore(t, testSettings(t))
	seedCredential(t, store.Credential)
	api := &fakeSessionAPI{verifyErr: errors.New("expired"), refreshed: "ses-fresh"}
	svc := NewSessionService(zerolog.Nop(), api, store)

	if !svc.EnsureAdultAccess(context.Background()) {
		t.Fatalf("access denied after successful refresh")
	}

	cred := store.Credential.Read()
	if cred.Session != "ses-fresh" {
		t.Fatalf("session = %s, want ses-fresh persisted", cred.Session)
	}

	// Et le cookie.txt sur disque suit.
	onDisk, err := fsjson.ReadCredential(store.Credential.Path())
	if err != nil {
		t.Fatalf("read cookie file: %v", err)
	}
	if onDisk.Session != "ses-fresh" || onDisk.Auth != "aut-token" {
		t.Fatalf("cookie file not updated: %+v", onDisk)
	}
}

func TestEnsureAdultAccessStopsRefreshingAfterRepeatedFailures(t *testing.T) {
	store := newTestStore(t, testSettings(t))
	seedCredential(t, store.Credential)
	api := &fakeSessionAPI{verifyErr: errors.New("expired"), refreshErr: errors.New("refresh down")}
	svc := NewSessionService(zerolog.Nop(), api, store)

	for i := 0; i < 6; i++ {
		if svc.EnsureAdultAccess(context.Background()) {
			t.Fatalf("access granted while refresh keeps failing")
		}
	}

	// 3 échecs comptés, ensuite le refresh est coupé jusqu'au redémarrage.
	if got := api.calls(); got != 3 {
		t.Fatalf("refresh attempted %d times, want 3", got)
	}
}

func TestCookieHeader(t *testing.T) {
	store := newTestStore(t, testSettings(t))
	seedCredential(t, store.Credential)
	svc := NewSessionService(zerolog.Nop(), &fakeSessionAPI{}, store)

	if got, want := svc.CookieHeader(), "NID_SES=ses-token;NID_AUT=aut-token"; got != want {
		t.Fatalf("CookieHeader() = %q, want %q", got, want)
	}
}
