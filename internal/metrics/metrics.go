// metrics — счётчики Prometheus для клиентского конвейера запросов и сессии
// (Client) и для обработчиков dev-бэкенда (Server).
// Методы безопасны для nil-получателя: без метрик вызовы ничего не делают.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Исходы обновления access-токена.
const (
	RefreshOK       = "ok"
	RefreshRejected = "rejected"
	RefreshError    = "error"
	RefreshSkipped  = "skipped"
)

type Client struct {
	refresh  *prometheus.CounterVec
	retry    prometheus.Counter
	expired  prometheus.Counter
	requests *prometheus.CounterVec
}

// New создаёт и регистрирует счётчики в reg (nil -> prometheus.DefaultRegisterer).
func New(reg prometheus.Registerer) (*Client, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Client{
		refresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workconnect",
			Subsystem: "client",
			Name:      "refresh_total",
			Help:      "Access token refresh attempts by result.",
		}, []string{"result"}),
		retry: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "workconnect",
			Subsystem: "client",
			Name:      "retry_total",
			Help:      "Requests re-dispatched after a 401.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "workconnect",
			Subsystem: "client",
			Name:      "session_expired_total",
			Help:      "Sessions terminated because the refresh token was rejected.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workconnect",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Outbound HTTP requests by status code (0 - no response).",
		}, []string{"code"}),
	}

	for _, col := range []prometheus.Collector{c.refresh, c.retry, c.expired, c.requests} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Client) Refresh(result string) {
	if c == nil {
		return
	}
	c.refresh.WithLabelValues(result).Inc()
}

func (c *Client) Retry() {
	if c == nil {
		return
	}
	c.retry.Inc()
}

func (c *Client) SessionExpired() {
	if c == nil {
		return
	}
	c.expired.Inc()
}

func (c *Client) Request(code int) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(strconv.Itoa(code)).Inc()
}
