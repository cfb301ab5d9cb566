package domain

import "time"

// RecordingEntry est une capture live active (ou héritée d'une instance
// précédente du process). Une seule entrée par créateur.
type RecordingEntry struct {
	PID         int       `json:"pid"`
	StartAt     time.Time `json:"startAt"`
	Username    string    `json:"username"`
	ChannelName string    `json:"channelName"`

	// Controllable: true si cette instance a spawné le process et recevra
	// son événement de fin. false pour un process hérité au boot.
	Controllable bool `json:"controllable"`
}

// RecordingRegistry est indexé par channelId.
type RecordingRegistry map[string]RecordingEntry
