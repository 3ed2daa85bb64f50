package internal

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFailureReason(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{errors.New("i/o timeout"), "timeout"},
		{errors.New("x509: certificate signed by unknown authority"), "tls"},
		{errors.New("lookup host: no such host"), "dns"},
		{errors.New("connection refused"), "refused"},
		{errors.New("upgrade rejected: 404 Not Found"), "handshake"},
		{errors.New("boom"), "other"},
		{nil, "unknown"},
	}

	for _, tc := range cases {
		if got := failureReason(tc.err); got != tc.want {
			t.Fatalf("failureReason(%v)=%q want %q", tc.err, got, tc.want)
		}
	}
}

func TestMetricsHandlerDisabled(t *testing.T) {
	// Only meaningful when this test runs before EnableMetrics has been
	// called anywhere; the enabled path is covered below either way.
	tel.mu.Lock()
	enabled := tel.enabled
	tel.mu.Unlock()
	if enabled {
		t.Skip("metrics already enabled in this process")
	}

	rec := httptest.NewRecorder()
	handleMetrics(rec, nil)
	if rec.Code != 503 {
		t.Fatalf("status %d want 503", rec.Code)
	}
}

func TestMetricsHandlerOutput(t *testing.T) {
	EnableMetrics()
	observeFrameIn(42)
	observeFrameOut(7)
	observeReconnect("example.com:80")
	observeConnectFailure("example.com:80", errors.New("connection refused"))
	observeDial("example.com:80", 150*time.Millisecond)

	rec := httptest.NewRecorder()
	handleMetrics(rec, nil)
	body := rec.Body.String()

	for _, want := range []string{
		`wsline_frames_total{dir="in"}`,
		`wsline_frame_bytes_total{dir="out"} 7`,
		`wsline_reconnects_total{endpoint="example.com:80"} 1`,
		`wsline_connect_failures_total{endpoint="example.com:80",reason="refused"} 1`,
		`wsline_dial_duration_seconds_count{endpoint="example.com:80"}`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}
