package domain

// Live est un direct renvoyé par la recherche par tag.
type Live struct {
	ChannelID   string `json:"channelId"`
	ChannelName string `json:"channelName"`
	LiveID      int    `json:"liveId"`
	Title       string `json:"liveTitle"`
	Category    string `json:"liveCategoryValue"`
	Adult       bool   `json:"adult"`
}

// LiveStatus est l'état de diffusion d'un créateur (endpoint polling).
type LiveStatus struct {
	Open     bool   `json:"open"`
	Category string `json:"liveCategoryValue"`
	Adult    bool   `json:"adult"`
}

// LiveDetail ajoute les sources médias de la diffusion en cours.
type LiveDetail struct {
	Open     bool          `json:"open"`
	LiveID   int           `json:"liveId"`
	Category string        `json:"liveCategoryValue"`
	Adult    bool          `json:"adult"`
	Media    []MediaSource `json:"media"`
}

type MediaSource struct {
	ID   string `json:"mediaId"`
	Path string `json:"path"`
}

// Video est une VOD publiée, identifiée par un numéro de séquence global.
type Video struct {
	VideoNo     int    `json:"videoNo"`
	Title       string `json:"videoTitle"`
	ChannelID   string `json:"channelId"`
	PublishDate string `json:"publishDate"`
	Duration    int    `json:"duration"`
	Adult       bool   `json:"adult"`
}
