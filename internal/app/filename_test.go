package app

import (
	"testing"
	"time"

	"chzzk-archiver/internal/domain"
)

func TestExpandTimeTemplate(t *testing.T) {
	at := time.Date(2026, 8, 29, 9, 5, 3, 0, time.Local)
	got := expandTimeTemplate("{year}-{month}-{day} {hr}{min}{sec}", at)
	if got != "2026-08-29 090503" {
		t.Fatalf("expandTimeTemplate = %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		seconds int
		want    string
	}{
		{0, "00h00m00s"},
		{59, "00h00m59s"},
		{3600, "01h00m00s"},
		{7323, "02h02m03s"},
	}
	for _, c := range cases {
		if got := formatDuration(c.seconds); got != c.want {
			t.Fatalf("formatDuration(%d) = %q, want %q", c.seconds, got, c.want)
		}
	}
}

func TestLiveFilename(t *testing.T) {
	settings := domain.DefaultSettings()
	settings.FilenameTemplate = "{username}_{id}_{liveNum}_{year}{month}{day}"
	entry := domain.RosterEntry{ChannelID: "chan-a", Username: "alice"}
	at := time.Date(2026, 8, 29, 0, 0, 0, 0, time.Local)

	if got, want := liveFilename(settings, entry, 42, at), "alice_chan-a_42_20260829"; got != want {
		t.Fatalf("liveFilename = %q, want %q", got, want)
	}
}

func TestVodFilename(t *testing.T) {
	settings := domain.DefaultSettings()
	settings.FilenameVodTemplate = "{username}_vod{vodNum}_{duration}_{year}{month}{day}"
	item := domain.VodDownloadEntry{
		VodNum:      501,
		ChannelID:   "chan-a",
		Username:    "alice",
		Duration:    7323,
		PublishDate: "2026-08-28 21:00:00",
	}

	if got, want := vodFilename(settings, item), "alice_vod501_02h02m03s_20260828"; got != want {
		t.Fatalf("vodFilename = %q, want %q", got, want)
	}
}
