package ports

import (
	"time"

	"chzzk-archiver/internal/domain"
)

// Event est un événement de cycle de vie typé émis par le superviseur de
// process. Le superviseur ne touche jamais les registres: la comptabilité
// (registre d'enregistrement, statuts VOD) est faite par les abonnés.
type Event interface {
	Topic() string
}

type RecordingStarted struct {
	ChannelID   string
	Username    string
	ChannelName string
	PID         int
	StartAt     time.Time
}

func (RecordingStarted) Topic() string { return "recording.started" }

type RecordingEnded struct {
	ChannelID string
	Username  string
}

func (RecordingEnded) Topic() string { return "recording.ended" }

type DownloadStarted struct {
	Item domain.VodDownloadEntry
	PID  int
}

func (DownloadStarted) Topic() string { return "download.started" }

type DownloadEnded struct {
	Item domain.VodDownloadEntry
}

func (DownloadEnded) Topic() string { return "download.ended" }

// EventBus diffuse les événements de cycle de vie aux abonnés. Subscribe
// livre au mieux et peut perdre des événements si l'abonné est lent;
// SubscribeReliable livre tout, dans l'ordre, et doit servir aux
// consommateurs qui tiennent un état à partir des événements.
type EventBus interface {
	Publish(evt Event)
	Subscribe() (ch <-chan Event, cancel func())
	SubscribeReliable() (ch <-chan Event, cancel func())
}
