package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics regroupe les compteurs et jauges Prometheus de l'archiveur.
type Metrics struct {
	registry               *prometheus.Registry
	recordingsStartedTotal prometheus.Counter
	vodDownloadsTotal      *prometheus.CounterVec
	activeRecordings       prometheus.Gauge
	ongoingDownloads       prometheus.Gauge
	pendingVodChecks       prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	recordingsStartedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "archiver_recordings_started_total",
		Help: "Total number of live recordings started",
	})
	vodDownloadsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "archiver_vod_downloads_total",
		Help: "Total number of finished VOD download attempts by result",
	}, []string{"result"})
	activeRecordings := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "archiver_active_recordings",
		Help: "Number of live recordings currently running",
	})
	ongoingDownloads := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "archiver_ongoing_vod_downloads",
		Help: "Number of VOD downloads currently in progress",
	})
	pendingVodChecks := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "archiver_pending_vod_checks",
		Help: "Number of scheduled VOD catalogue checks not yet resolved",
	})

	registry.MustRegister(
		recordingsStartedTotal,
		vodDownloadsTotal,
		activeRecordings,
		ongoingDownloads,
		pendingVodChecks,
	)

	return &Metrics{
		registry:               registry,
		recordingsStartedTotal: recordingsStartedTotal,
		vodDownloadsTotal:      vodDownloadsTotal,
		activeRecordings:       activeRecordings,
		ongoingDownloads:       ongoingDownloads,
		pendingVodChecks:       pendingVodChecks,
	}
}

func (m *Metrics) IncRecordingsStarted() {
	m.recordingsStartedTotal.Inc()
}

// IncVodDownload compte une tentative terminée ("success", "retry" ou "failed").
func (m *Metrics) IncVodDownload(result string) {
	m.vodDownloadsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetActiveRecordings(n int) {
	m.activeRecordings.Set(float64(n))
}

func (m *Metrics) SetOngoingDownloads(n int) {
	m.ongoingDownloads.Set(float64(n))
}

func (m *Metrics) SetPendingVodChecks(n int) {
	m.pendingVodChecks.Set(float64(n))
}

// Handler sert le registre; updateGauges est appelé avant chaque scrape
// pour rafraîchir les jauges à partir de l'état courant.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
