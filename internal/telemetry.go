package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Session telemetry. Disabled by default so sessions pay a single mutexed
// bool check per observation; EnableMetrics switches accounting on for the
// whole process.
type failureKey struct {
	endpoint string
	reason   string
}

type telemetry struct {
	mu      sync.Mutex
	enabled bool

	framesIn  uint64
	framesOut uint64
	bytesIn   uint64
	bytesOut  uint64

	reconnects map[string]uint64
	failures   map[failureKey]uint64
	dialCount  map[string]uint64
	dialSum    map[string]float64
}

var tel telemetry

// EnableMetrics switches frame/reconnect accounting on.
func EnableMetrics() {
	tel.mu.Lock()
	defer tel.mu.Unlock()
	if tel.enabled {
		return
	}
	tel.enabled = true
	tel.reconnects = make(map[string]uint64)
	tel.failures = make(map[failureKey]uint64)
	tel.dialCount = make(map[string]uint64)
	tel.dialSum = make(map[string]float64)
}

func observeFrameIn(n int) {
	tel.mu.Lock()
	if tel.enabled {
		tel.framesIn++
		tel.bytesIn += uint64(n)
	}
	tel.mu.Unlock()
}

func observeFrameOut(n int) {
	tel.mu.Lock()
	if tel.enabled {
		tel.framesOut++
		tel.bytesOut += uint64(n)
	}
	tel.mu.Unlock()
}

func observeReconnect(endpoint string) {
	tel.mu.Lock()
	if tel.enabled {
		tel.reconnects[endpoint]++
	}
	tel.mu.Unlock()
}

func observeConnectFailure(endpoint string, err error) {
	tel.mu.Lock()
	if tel.enabled {
		tel.failures[failureKey{endpoint: endpoint, reason: failureReason(err)}]++
	}
	tel.mu.Unlock()
}

func observeDial(endpoint string, d time.Duration) {
	tel.mu.Lock()
	if tel.enabled {
		tel.dialCount[endpoint]++
		tel.dialSum[endpoint] += d.Seconds()
	}
	tel.mu.Unlock()
}

func failureReason(err error) string {
	if err == nil {
		return "unknown"
	}
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "timeout") || strings.Contains(e, "deadline"):
		return "timeout"
	case strings.Contains(e, "tls") || strings.Contains(e, "x509") || strings.Contains(e, "certificate"):
		return "tls"
	case strings.Contains(e, "dns") || strings.Contains(e, "no such host"):
		return "dns"
	case strings.Contains(e, "refused"):
		return "refused"
	case strings.Contains(e, "handshake") || strings.Contains(e, "upgrade"):
		return "handshake"
	default:
		return "other"
	}
}

// StartMetricsServer serves /metrics in text format on addr until ctx ends.
func StartMetricsServer(ctx context.Context, addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("empty metrics address")
	}

	srv := &http.Server{Addr: addr, Handler: http.HandlerFunc(handleMetrics)}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errc:
		return fmt.Errorf("metrics server: %w", err)
	}
}

func handleMetrics(w http.ResponseWriter, _ *http.Request) {
	tel.mu.Lock()
	if !tel.enabled {
		tel.mu.Unlock()
		http.Error(w, "metrics disabled", http.StatusServiceUnavailable)
		return
	}

	// Snapshot under the lock, render after.
	framesIn, framesOut := tel.framesIn, tel.framesOut
	bytesIn, bytesOut := tel.bytesIn, tel.bytesOut
	reconnects := make(map[string]uint64, len(tel.reconnects))
	for k, v := range tel.reconnects {
		reconnects[k] = v
	}
	failures := make(map[failureKey]uint64, len(tel.failures))
	for k, v := range tel.failures {
		failures[k] = v
	}
	dialCount := make(map[string]uint64, len(tel.dialCount))
	for k, v := range tel.dialCount {
		dialCount[k] = v
	}
	dialSum := make(map[string]float64, len(tel.dialSum))
	for k, v := range tel.dialSum {
		dialSum[k] = v
	}
	tel.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(w, "wsline_frames_total{dir=%q} %d\n", "in", framesIn)
	fmt.Fprintf(w, "wsline_frames_total{dir=%q} %d\n", "out", framesOut)
	fmt.Fprintf(w, "wsline_frame_bytes_total{dir=%q} %d\n", "in", bytesIn)
	fmt.Fprintf(w, "wsline_frame_bytes_total{dir=%q} %d\n", "out", bytesOut)

	for _, k := range sortedKeys(reconnects) {
		fmt.Fprintf(w, "wsline_reconnects_total{endpoint=%q} %d\n", k, reconnects[k])
	}

	fkeys := make([]failureKey, 0, len(failures))
	for k := range failures {
		fkeys = append(fkeys, k)
	}
	sort.Slice(fkeys, func(i, j int) bool {
		if fkeys[i].endpoint != fkeys[j].endpoint {
			return fkeys[i].endpoint < fkeys[j].endpoint
		}
		return fkeys[i].reason < fkeys[j].reason
	})
	for _, k := range fkeys {
		fmt.Fprintf(w, "wsline_connect_failures_total{endpoint=%q,reason=%q} %d\n",
			k.endpoint, k.reason, failures[k])
	}

	for _, k := range sortedKeys(dialCount) {
		fmt.Fprintf(w, "wsline_dial_duration_seconds_count{endpoint=%q} %d\n", k, dialCount[k])
		fmt.Fprintf(w, "wsline_dial_duration_seconds_sum{endpoint=%q} %f\n", k, dialSum[k])
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
