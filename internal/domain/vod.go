package domain

type VodStatus string

const (
	VodWaiting VodStatus = "waiting"
	VodOngoing VodStatus = "ongoing"
	VodSuccess VodStatus = "success"
	VodFailed  VodStatus = "failed"
)

func (s VodStatus) IsTerminal() bool {
	return s == VodSuccess || s == VodFailed
}

// CanTransition encode la machine à états d'un téléchargement de VOD.
// waiting -> ongoing -> {success | waiting (retry) | failed}
func CanTransition(from, to VodStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case VodWaiting:
		return to == VodOngoing
	case VodOngoing:
		return to == VodSuccess || to == VodWaiting || to == VodFailed
	default:
		return false
	}
}

// VodCheckEntry est une re-vérification planifiée de la liste de VODs
// d'un créateur. La clé du document est CheckTime (millisecondes epoch).
type VodCheckEntry struct {
	ChannelID string `json:"channelId"`
	Username  string `json:"username"`
	CheckTime int64  `json:"checkTime"`

	// LastVodNumber: plus grand videoNo connu à la planification.
	// nil si aucune VOD connue (toutes les VODs trouvées seront téléchargées).
	LastVodNumber *int `json:"lastVodNumber"`
}

type VodCheckSchedule map[int64]VodCheckEntry

// VodDownloadEntry est une tâche de téléchargement. La clé du document est
// VodNum, unique côté plateforme: redécouvrir la même VOD met à jour
// l'entrée, jamais de doublon.
type VodDownloadEntry struct {
	VodNum      int    `json:"vodNum"`
	ChannelID   string `json:"channelId"`
	Username    string `json:"username"`
	VodURL      string `json:"vodUrl"`
	PublishDate string `json:"publishDate"`

	// Duration: durée annoncée par la plateforme, en secondes.
	Duration int  `json:"duration"`
	Adult    bool `json:"adult"`

	TryCount int       `json:"tryCount"`
	Command  string    `json:"cmd"`
	Status   VodStatus `json:"status"`
}

type VodDownloadRegistry map[int]VodDownloadEntry
