package domain

// AdultContentMode décide du comportement face aux contenus adultes.
type AdultContentMode string

const (
	// AdultContentAuth tente une session authentifiée (cookie NID) avant d'enregistrer.
	AdultContentAuth AdultContentMode = "auth"
	// AdultContentIgnore n'enregistre jamais les contenus adultes.
	AdultContentIgnore AdultContentMode = "ignore"
)

// AppSettings est le document de configuration applicatif (config.json).
// Il est en lecture seule pour le coeur: une édition humaine du fichier est
// rechargée à chaud par le watcher du state store.
type AppSettings struct {
	CheckIntervalSec int    `json:"checkIntervalSec"`
	SaveDirectory    string `json:"saveDirectory"`

	FilenameTemplate    string `json:"filenameTemplate"`
	FilenameVodTemplate string `json:"filenameVodTemplate"`

	// true: streamlink -O | ffmpeg (remux), false: sortie directe -o.
	UseLiveFFmpegOutput bool `json:"useLiveFFmpegOutput"`

	AdultContentMode AdultContentMode `json:"adultContentMode"`

	VodDownloadConcurrency int   `json:"dlVodConcurrency"`
	VodCheckDelaysMinutes  []int `json:"checkUserVodMinutes"`

	SearchTags []string `json:"searchTags"`
}

func DefaultSettings() AppSettings {
	return AppSettings{
		CheckIntervalSec:       180,
		SaveDirectory:          "recordings",
		FilenameTemplate:       "{username}_{year}{month}{day}_{hr}{min}{sec}",
		FilenameVodTemplate:    "{username}_vod{vodNum}_{year}{month}{day}",
		AdultContentMode:       AdultContentAuth,
		VodDownloadConcurrency: 1,
		VodCheckDelaysMinutes:  []int{60, 120, 180},
		SearchTags:             []string{"라이브 아트", "아트"},
	}
}

// Normalized remplit les champs absents avec les valeurs par défaut.
func (s AppSettings) Normalized() AppSettings {
	def := DefaultSettings()
	if s.CheckIntervalSec <= 0 {
		s.CheckIntervalSec = def.CheckIntervalSec
	}
	if s.SaveDirectory == "" {
		s.SaveDirectory = def.SaveDirectory
	}
	if s.FilenameTemplate == "" {
		s.FilenameTemplate = def.FilenameTemplate
	}
	if s.FilenameVodTemplate == "" {
		s.FilenameVodTemplate = def.FilenameVodTemplate
	}
	if s.AdultContentMode == "" {
		s.AdultContentMode = def.AdultContentMode
	}
	if s.VodDownloadConcurrency <= 0 {
		s.VodDownloadConcurrency = def.VodDownloadConcurrency
	}
	if len(s.VodCheckDelaysMinutes) == 0 {
		s.VodCheckDelaysMinutes = def.VodCheckDelaysMinutes
	}
	if len(s.SearchTags) == 0 {
		s.SearchTags = def.SearchTags
	}
	return s
}
