package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"chzzk-archiver/internal/domain"
	"chzzk-archiver/internal/metrics"
	"chzzk-archiver/internal/ports"
	"chzzk-archiver/internal/state"
)

// Server expose une API de consultation en lecture seule: l'état persisté
// se modifie en éditant les fichiers JSON, pas par HTTP.
type Server struct {
	logger zerolog.Logger
	store  *state.Store
	bus    ports.EventBus
	// metrics est optionnel (endpoint /metrics absent si nil).
	metrics *metrics.Metrics
}

func NewServer(logger zerolog.Logger, store *state.Store, bus ports.EventBus, m *metrics.Metrics) *Server {
	return &Server{logger: logger, store: store, bus: bus, metrics: m}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultRequestTimeout))
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("request_id", "Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_ip"))
	r.Use(hlog.UserAgentHandler("user_agent"))
	r.Use(hlog.AccessHandler(accessLogFn))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/version", s.handleVersion)
		r.Get("/events", s.handleEvents)

		r.Get("/users", s.handleUsers)
		r.Get("/recordings", s.handleRecordings)
		r.Get("/vod-checks", s.handleVodChecks)
		r.Get("/vod-downloads", s.handleVodDownloads)
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler(s.refreshGauges))
	}

	return r
}

func (s *Server) refreshGauges() {
	s.metrics.SetActiveRecordings(len(s.store.Recordings.Read()))
	s.metrics.SetPendingVodChecks(len(s.store.VodChecks.Read()))

	ongoing := 0
	for _, item := range s.store.VodDownloads.Read() {
		if item.Status == domain.VodOngoing {
			ongoing++
		}
	}
	s.metrics.SetOngoingDownloads(ongoing)
}
