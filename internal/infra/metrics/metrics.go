package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	logging "airdrop-bot/internal/infra/log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "airdrop_bot"

// Metrics - counters labelled by chain and outcome ("ok", "error", "ambiguous")
type Metrics struct {
	Registry *prometheus.Registry

	Swaps          *prometheus.CounterVec
	Transfers      *prometheus.CounterVec
	Settlements    *prometheus.CounterVec
	QuotaDenials   prometheus.Counter
	NoticesPosted  prometheus.Counter
	RegisteredSize prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		Swaps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swaps_total",
			Help:      "Swaps submitted through the aggregator",
		}, []string{"chain", "outcome"}),
		Transfers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Distribution transfers broadcast to users",
		}, []string{"chain", "outcome"}),
		Settlements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Completed settlement tasks",
		}, []string{"chain", "outcome"}),
		QuotaDenials: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_denials_total",
			Help:      "Send requests refused by the daily quota",
		}),
		NoticesPosted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notices_posted_total",
			Help:      "Pending airdrop announcements posted",
		}),
		RegisteredSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_tokens",
			Help:      "Tokens currently in the registry",
		}),
	}
}

// Outcome maps an error to the outcome label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Server exposes /metrics and /healthz.
type Server struct {
	server *http.Server
}

func NewServer(addr string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"UP"}`))
	})

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() {
	go func() {
		logging.LogInfo("Metrics server starting", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.LogError("Metrics server failed", zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) {
	_ = s.server.Shutdown(ctx)
}
