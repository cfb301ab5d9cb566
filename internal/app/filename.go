package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"chzzk-archiver/internal/domain"
)

// expandTimeTemplate remplace les placeholders de date du template de nom
// de fichier ({year} {month} {day} {hr} {min} {sec}).
func expandTimeTemplate(template string, t time.Time) string {
	r := strings.NewReplacer(
		"{year}", fmt.Sprintf("%04d", t.Year()),
		"{month}", fmt.Sprintf("%02d", int(t.Month())),
		"{day}", fmt.Sprintf("%02d", t.Day()),
		"{hr}", fmt.Sprintf("%02d", t.Hour()),
		"{min}", fmt.Sprintf("%02d", t.Minute()),
		"{sec}", fmt.Sprintf("%02d", t.Second()),
	)
	return r.Replace(template)
}

// formatDuration rend une durée en secondes sous la forme 01h02m03s.
func formatDuration(seconds int) string {
	hour := seconds / 3600
	minute := (seconds % 3600) / 60
	second := seconds % 60
	return fmt.Sprintf("%02dh%02dm%02ds", hour, minute, second)
}

func liveFilename(settings domain.AppSettings, entry domain.RosterEntry, liveID int, now time.Time) string {
	name := expandTimeTemplate(settings.FilenameTemplate, now)
	name = strings.ReplaceAll(name, "{username}", entry.Username)
	name = strings.ReplaceAll(name, "{id}", entry.ChannelID)
	name = strings.ReplaceAll(name, "{liveNum}", strconv.Itoa(liveID))
	return name
}

func vodFilename(settings domain.AppSettings, item domain.VodDownloadEntry) string {
	name := expandTimeTemplate(settings.FilenameVodTemplate, publishTime(item.PublishDate))
	name = strings.ReplaceAll(name, "{username}", item.Username)
	name = strings.ReplaceAll(name, "{id}", item.ChannelID)
	name = strings.ReplaceAll(name, "{vodNum}", strconv.Itoa(item.VodNum))
	name = strings.ReplaceAll(name, "{duration}", formatDuration(item.Duration))
	return name
}

// publishTime parse la date de publication plateforme
// ("2006-01-02 15:04:05"); à défaut, l'heure courante.
func publishTime(publishDate string) time.Time {
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", publishDate, time.Local); err == nil {
		return t
	}
	return time.Now()
}
