package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Noise metrics
	NoiseLevelDB = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_noise_level_db",
			Help: "Current rolling-average noise level in decibels",
		},
	)

	StrikesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_strikes_total",
			Help: "Total noise strikes registered",
		},
	)

	StrikeActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_strike_actions_total",
			Help: "Strike consequences by action",
		},
		[]string{"action"},
	)

	// Usage metrics
	UsageMinutesToday = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_usage_minutes_today",
			Help: "Effective usage minutes consumed today",
		},
	)

	EffectiveLimitMinutes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_effective_limit_minutes",
			Help: "Effective daily limit in minutes",
		},
	)

	SessionsClosed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_sessions_closed_total",
			Help: "Total activity sessions closed",
		},
	)

	Blocked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_blocked",
			Help: "Whether the device is currently blocked (1) or not (0)",
		},
	)

	// Sync metrics
	SyncCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_sync_cycles_total",
			Help: "Total sync cycles attempted",
		},
	)

	SyncFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_sync_failures_total",
			Help: "Sync step failures",
		},
		[]string{"step"},
	)

	CommandsExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_commands_total",
			Help: "Remote commands processed by name and outcome",
		},
		[]string{"command", "status"},
	)

	EventsSynced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_events_synced_total",
			Help: "Journal events uploaded to the control plane",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		NoiseLevelDB,
		StrikesTotal,
		StrikeActions,
		UsageMinutesToday,
		EffectiveLimitMinutes,
		SessionsClosed,
		Blocked,
		SyncCyclesTotal,
		SyncFailuresTotal,
		CommandsExecuted,
		EventsSynced,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
