// Package chzzk implémente le client HTTP de la plateforme: recherche de
// lives par tag, statut/détail de diffusion, listes de VODs et gestion de
// la session authentifiée Naver.
package chzzk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"chzzk-archiver/internal/domain"
	"chzzk-archiver/internal/ports"
)

const (
	defaultAPIBase  = "https://api.chzzk.naver.com"
	defaultGameBase = "https://comm-api.game.naver.com/nng_main"

	searchPageSize = 50

	userAgent = "Mozilla/5.0 (Windows NT 6.3; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/37.0.2049.0 Safari/537.36"
)

type Client struct {
	httpClient *http.Client
	apiBase    string
	gameBase   string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURLs permet de pointer le client vers des serveurs de test.
func WithBaseURLs(apiBase, gameBase string) Option {
	return func(c *Client) {
		c.apiBase = strings.TrimRight(apiBase, "/")
		c.gameBase = strings.TrimRight(gameBase, "/")
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiBase:    defaultAPIBase,
		gameBase:   defaultGameBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope est l'enveloppe de réponse commune des APIs chzzk.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Content json.RawMessage `json:"content"`
}

type searchContent struct {
	Size int `json:"size"`
	Data []struct {
		Live struct {
			LiveID            int    `json:"liveId"`
			LiveTitle         string `json:"liveTitle"`
			LiveCategoryValue string `json:"liveCategoryValue"`
			Adult             bool   `json:"adult"`
			ChannelID         string `json:"channelId"`
		} `json:"live"`
		Channel struct {
			ChannelID   string `json:"channelId"`
			ChannelName string `json:"channelName"`
		} `json:"channel"`
	} `json:"data"`
	TotalCount int `json:"totalCount"`
}

func (c *Client) SearchLiveByTag(ctx context.Context, tag string, page int) (ports.SearchPage, error) {
	q := url.Values{}
	q.Set("keyword", tag)
	q.Set("size", strconv.Itoa(searchPageSize))
	q.Set("offset", strconv.Itoa(page*searchPageSize))

	var content searchContent
	if err := c.getJSON(ctx, c.apiBase+"/service/v1/search/lives?"+q.Encode(), nil, &content); err != nil {
		return ports.SearchPage{}, err
	}

	items := make([]domain.Live, 0, len(content.Data))
	for _, d := range content.Data {
		channelID := d.Live.ChannelID
		if channelID == "" {
			channelID = d.Channel.ChannelID
		}
		items = append(items, domain.Live{
			ChannelID:   channelID,
			ChannelName: d.Channel.ChannelName,
			LiveID:      d.Live.LiveID,
			Title:       d.Live.LiveTitle,
			Category:    d.Live.LiveCategoryValue,
			Adult:       d.Live.Adult,
		})
	}
	return ports.SearchPage{Items: items, Total: content.TotalCount}, nil
}

type liveStatusContent struct {
	Status            string `json:"status"`
	LiveCategoryValue string `json:"liveCategoryValue"`
	Adult             bool   `json:"adult"`
}

func (c *Client) GetLiveStatus(ctx context.Context, channelID string) (*domain.LiveStatus, error) {
	var content liveStatusContent
	err := c.getJSON(ctx, c.apiBase+"/polling/v2/channels/"+url.PathEscape(channelID)+"/live-status", nil, &content)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if content.Status == "" {
		return nil, nil
	}
	return &domain.LiveStatus{
		Open:     content.Status == "OPEN",
		Category: content.LiveCategoryValue,
		Adult:    content.Adult,
	}, nil
}

type liveDetailContent struct {
	Status            string `json:"status"`
	LiveID            int    `json:"liveId"`
	LiveCategoryValue string `json:"liveCategoryValue"`
	Adult             bool   `json:"adult"`
	LivePlaybackJSON  string `json:"livePlaybackJson"`
}

type livePlayback struct {
	Media []struct {
		MediaID string `json:"mediaId"`
		Path    string `json:"path"`
	} `json:"media"`
}

func (c *Client) GetLiveDetail(ctx context.Context, channelID string) (*domain.LiveDetail, error) {
	var content liveDetailContent
	err := c.getJSON(ctx, c.apiBase+"/service/v2/channels/"+url.PathEscape(channelID)+"/live-detail", nil, &content)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if content.Status == "" {
		return nil, nil
	}

	detail := &domain.LiveDetail{
		Open:     content.Status == "OPEN",
		LiveID:   content.LiveID,
		Category: content.LiveCategoryValue,
		Adult:    content.Adult,
	}
	// livePlaybackJson est une chaîne JSON imbriquée; absente hors antenne.
	if content.LivePlaybackJSON != "" {
		var pb livePlayback
		if err := json.Unmarshal([]byte(content.LivePlaybackJSON), &pb); err == nil {
			for _, m := range pb.Media {
				detail.Media = append(detail.Media, domain.MediaSource{ID: m.MediaID, Path: m.Path})
			}
		}
	}
	return detail, nil
}

type videoListContent struct {
	Data []videoContent `json:"data"`
}

type videoContent struct {
	VideoNo     int    `json:"videoNo"`
	VideoTitle  string `json:"videoTitle"`
	PublishDate string `json:"publishDate"`
	Duration    int    `json:"duration"`
	Adult       bool   `json:"adult"`
	Channel     struct {
		ChannelID string `json:"channelId"`
	} `json:"channel"`
}

func (v videoContent) toDomain() domain.Video {
	return domain.Video{
		VideoNo:     v.VideoNo,
		Title:       v.VideoTitle,
		ChannelID:   v.Channel.ChannelID,
		PublishDate: v.PublishDate,
		Duration:    v.Duration,
		Adult:       v.Adult,
	}
}

func (c *Client) ListVideos(ctx context.Context, channelID string) ([]domain.Video, error) {
	var content videoListContent
	err := c.getJSON(ctx, c.apiBase+"/service/v1/channels/"+url.PathEscape(channelID)+"/videos", nil, &content)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	videos := make([]domain.Video, 0, len(content.Data))
	for _, v := range content.Data {
		videos = append(videos, v.toDomain())
	}
	return videos, nil
}

func (c *Client) GetVideo(ctx context.Context, vodNum int) (*domain.Video, error) {
	var content videoContent
	err := c.getJSON(ctx, c.apiBase+"/service/v2/videos/"+strconv.Itoa(vodNum), nil, &content)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if content.VideoNo == 0 {
		return nil, nil
	}
	v := content.toDomain()
	return &v, nil
}

// VerifySession vérifie que la paire de cookies donne accès à un endpoint
// authentifié (liste des chaînes suivies en live).
func (c *Client) VerifySession(ctx context.Context, cred domain.Credential) error {
	if !cred.Complete() {
		return errors.New("no auth cookie available")
	}
	var content json.RawMessage
	return c.getJSON(ctx, c.apiBase+"/service/v1/channels/followings/live", &cred, &content)
}

// RefreshSession demande un nouveau NID_SES via l'API game Naver.
func (c *Client) RefreshSession(ctx context.Context, cred domain.Credential) (string, error) {
	if !cred.Complete() {
		return "", errors.New("no auth cookie available")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.gameBase+"/v1/user/getUserStatus", nil)
	if err != nil {
		return "", err
	}
	applyHeaders(req, &cred)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classify(err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	for _, ck := range resp.Cookies() {
		if ck.Name == "NID_SES" && ck.Value != "" {
			return ck.Value, nil
		}
	}
	return "", errors.New("no session cookie in getUserStatus response")
}

func (c *Client) getJSON(ctx context.Context, rawURL string, cred *domain.Credential, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	applyHeaders(req, cred)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return ports.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d for %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return classify(err)
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("malformed response: %w", err)
	}
	if len(env.Content) == 0 || string(env.Content) == "null" {
		return ports.ErrNotFound
	}
	if err := json.Unmarshal(env.Content, out); err != nil {
		return fmt.Errorf("malformed content: %w", err)
	}
	return nil
}

func applyHeaders(req *http.Request, cred *domain.Credential) {
	req.Header.Set("User-Agent", userAgent)
	if cred != nil && cred.Complete() {
		req.Header.Set("Cookie", fmt.Sprintf("NID_SES=%s;NID_AUT=%s", cred.Session, cred.Auth))
	}
}

// classify distingue l'échec réseau passager (signatures connues: DNS,
// connexion refusée/coupée, timeout) des autres erreurs.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %s", ports.ErrTransient, err.Error())
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return fmt.Errorf("%w: %s", ports.ErrTransient, err.Error())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s", ports.ErrTransient, err.Error())
	}
	return err
}
