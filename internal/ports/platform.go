package ports

import (
	"context"

	"chzzk-archiver/internal/domain"
)

// SearchPage est une page de résultats de recherche live par tag.
type SearchPage struct {
	Items []domain.Live
	Total int
}

// PlatformAPI est le client de la plateforme de streaming. Les échecs
// réseau passagers doivent être signalés via ErrTransient; un contenu
// introuvable renvoie (nil, nil) ou ErrNotFound selon l'appel.
type PlatformAPI interface {
	SearchLiveByTag(ctx context.Context, tag string, page int) (SearchPage, error)
	GetLiveStatus(ctx context.Context, channelID string) (*domain.LiveStatus, error)
	GetLiveDetail(ctx context.Context, channelID string) (*domain.LiveDetail, error)
	ListVideos(ctx context.Context, channelID string) ([]domain.Video, error)
	GetVideo(ctx context.Context, vodNum int) (*domain.Video, error)
}

// SessionAPI vérifie et rafraîchit la session authentifiée Naver.
type SessionAPI interface {
	// VerifySession renvoie nil si la paire de cookies donne accès aux
	// endpoints authentifiés.
	VerifySession(ctx context.Context, cred domain.Credential) error
	// RefreshSession renvoie un nouveau cookie de session.
	RefreshSession(ctx context.Context, cred domain.Credential) (string, error)
}
