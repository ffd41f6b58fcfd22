package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Server — метрики HTTP-обработчиков dev-бэкенда.
type Server struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewServer создаёт и регистрирует метрики в reg (nil -> prometheus.DefaultRegisterer).
func NewServer(reg prometheus.Registerer) (*Server, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	s := &Server{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workconnect",
			Subsystem: "devserver",
			Name:      "requests_total",
			Help:      "Handled HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workconnect",
			Subsystem: "devserver",
			Name:      "request_duration_seconds",
			Help:      "HTTP handler latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	for _, col := range []prometheus.Collector{s.requests, s.duration} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Server) Observe(route string, code int, d time.Duration) {
	if s == nil {
		return
	}
	s.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	s.duration.WithLabelValues(route).Observe(d.Seconds())
}
