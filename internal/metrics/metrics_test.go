package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestClient_Counters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.Refresh(RefreshOK)
	c.Refresh(RefreshOK)
	c.Refresh(RefreshRejected)
	c.Retry()
	c.SessionExpired()
	c.Request(200)
	c.Request(401)
	c.Request(0)

	require.Equal(t, 2.0, testutil.ToFloat64(c.refresh.WithLabelValues(RefreshOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(c.refresh.WithLabelValues(RefreshRejected)))
	require.Equal(t, 1.0, testutil.ToFloat64(c.retry))
	require.Equal(t, 1.0, testutil.ToFloat64(c.expired))
	require.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("401")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("0")))

	n, err := testutil.GatherAndCount(reg, "workconnect_client_refresh_total")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestNew_DuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	require.Error(t, err)
}

func TestNilClient_NoPanic(t *testing.T) {
	t.Parallel()

	var c *Client
	require.NotPanics(t, func() {
		c.Refresh(RefreshError)
		c.Retry()
		c.SessionExpired()
		c.Request(500)
	})
}

func TestServer_Observe(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	s, err := NewServer(reg)
	require.NoError(t, err)

	s.Observe("/auth/login/", 200, 10*time.Millisecond)
	s.Observe("/auth/login/", 400, time.Millisecond)
	s.Observe("/auth/login/", 200, time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(s.requests.WithLabelValues("/auth/login/", "200")))
	require.Equal(t, 1.0, testutil.ToFloat64(s.requests.WithLabelValues("/auth/login/", "400")))

	n, err := testutil.GatherAndCount(reg, "workconnect_devserver_request_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	var nilServer *Server
	nilServer.Observe("/x", 500, time.Second)
}
