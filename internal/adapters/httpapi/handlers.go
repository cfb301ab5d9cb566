package httpapi

import (
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog/hlog"

	"chzzk-archiver/internal/buildinfo"
	"chzzk-archiver/internal/domain"
	"chzzk-archiver/internal/httpjson"
)

const defaultRequestTimeout = 30 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, buildinfo.Current())
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	roster := s.store.Roster.Read()
	out := make([]domain.RosterEntry, 0, len(roster))
	for id, entry := range roster {
		entry.ChannelID = id
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	httpjson.Write(w, http.StatusOK, out)
}

type recordingView struct {
	ChannelID string `json:"channelId"`
	domain.RecordingEntry
}

func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	reg := s.store.Recordings.Read()
	out := make([]recordingView, 0, len(reg))
	for id, entry := range reg {
		out = append(out, recordingView{ChannelID: id, RecordingEntry: entry})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	httpjson.Write(w, http.StatusOK, out)
}

func (s *Server) handleVodChecks(w http.ResponseWriter, r *http.Request) {
	schedule := s.store.VodChecks.Read()
	out := make([]domain.VodCheckEntry, 0, len(schedule))
	for _, entry := range schedule {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckTime < out[j].CheckTime })
	httpjson.Write(w, http.StatusOK, out)
}

func (s *Server) handleVodDownloads(w http.ResponseWriter, r *http.Request) {
	reg := s.store.VodDownloads.Read()
	out := make([]domain.VodDownloadEntry, 0, len(reg))
	for _, entry := range reg {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VodNum < out[j].VodNum })
	httpjson.Write(w, http.StatusOK, out)
}

func accessLogFn(r *http.Request, status, size int, duration time.Duration) {
	logger := hlog.FromRequest(r)
	logger.Info().
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("http")
}
