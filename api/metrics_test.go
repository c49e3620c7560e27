package api

import (
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// alertSink collects alerts raised by the API.
type alertSink struct {
	mu     sync.Mutex
	alerts []AlertEvent
}

func (s *alertSink) add(e AlertEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, e)
}

func (s *alertSink) all() []AlertEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AlertEvent(nil), s.alerts...)
}

func TestRejectedActionBurstRaisesAlert(t *testing.T) {
	var sink alertSink
	a := newTestAPI(t, WithAlertFunc(sink.add), func(a *API) {
		a.audit.metrics.rejections.threshold = 3
	})
	srv, _ := serve(t, a)

	// Two anonymous writes.
	for range 2 {
		resp := send(t, http.DefaultClient, http.MethodPost, srv.URL+"/api/v1/posts", PostRequest{Title: "x"})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	assert.Empty(t, sink.all())

	// A signed-in write that leaves out the CSRF header.
	client := signIn(t, srv.URL)
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, srv.URL+"/api/v1/posts", strings.NewReader(`{"title":"x"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	alerts := sink.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertActionRejectedSpike, alerts[0].Type)
	assert.Equal(t, 3, alerts[0].Count)
	assert.Equal(t, 3, alerts[0].Threshold)
	assert.False(t, alerts[0].Timestamp.IsZero())

	// The counter restarts after firing, so the next rejection is quiet.
	resp = send(t, http.DefaultClient, http.MethodDelete, srv.URL+"/api/v1/posts/any", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Len(t, sink.all(), 1)
}

func TestLoginFailureBurstRaisesAlert(t *testing.T) {
	var sink alertSink
	a := newTestAPI(t, WithAlertFunc(sink.add), func(a *API) {
		a.audit.metrics.loginFailures.threshold = 8
	})
	srv, _ := serve(t, a)

	// Wrong passwords count until the limiter steps in, and so do the
	// attempts it turns away.
	wrong := LoginRequest{Username: testAdmin, Password: "wrong-password"}
	for i := range 8 {
		resp := send(t, http.DefaultClient, http.MethodPost, srv.URL+"/api/v1/auth/login", wrong)
		if i < 5 {
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "attempt %d", i+1)
		} else {
			require.Equal(t, http.StatusTooManyRequests, resp.StatusCode, "attempt %d", i+1)
		}
		if i < 7 {
			require.Empty(t, sink.all(), "attempt %d", i+1)
		}
	}

	alerts := sink.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertLoginFailureSpike, alerts[0].Type)
	assert.Equal(t, 8, alerts[0].Count)
}

func TestNoAlertWithoutAlertFunc(t *testing.T) {
	a := newTestAPI(t)
	require.Nil(t, a.audit.metrics)
	srv, _ := serve(t, a)

	for range defaultRejectionThreshold + 1 {
		resp := send(t, http.DefaultClient, http.MethodPost, srv.URL+"/api/v1/posts", PostRequest{Title: "x"})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestAlertWindowSlides(t *testing.T) {
	var sink alertSink
	m := newMetricsCollector(sink.add)
	m.rejections.threshold = 3
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	at := func(d time.Duration) {
		clock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(d)
		m.recordEvent(AuditActionRejected)
	}

	at(0)
	at(3 * time.Minute)
	at(defaultRejectionWindow + time.Minute) // the first rejection has left the window
	assert.Empty(t, sink.all())

	at(defaultRejectionWindow + 2*time.Minute)
	alerts := sink.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, 3, alerts[0].Count)
	assert.Equal(t, clock, alerts[0].Timestamp)

	// Events that do not feed a counter never alert.
	for range 10 {
		m.recordEvent(AuditPostDeleted)
	}
	assert.Len(t, sink.all(), 1)
}
