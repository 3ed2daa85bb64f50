package internal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseURL(t *testing.T) {
	cases := []struct {
		in       string
		wantHost string
		wantKind TransportKind
		wantErr  bool
	}{
		{"ws://example.com/chat", "example.com:80", TransportPlain, false},
		{"ws://example.com:9000/chat", "example.com:9000", TransportPlain, false},
		{"wss://example.com", "example.com:443", TransportTLS, false},
		{"wss://example.com:8443/x?y=1", "example.com:8443", TransportTLS, false},
		// Unsupported schemes.
		{"http://example.com/", "", 0, true},
		{"ftp://example.com/", "", 0, true},
		{"", "", 0, true},
		// Missing host.
		{"ws:///path", "", 0, true},
	}

	for _, tc := range cases {
		u, kind, err := ParseURL(tc.in)
		if tc.wantErr {
			var ue *URLError
			if !errors.As(err, &ue) {
				t.Fatalf("ParseURL(%q): err %v, want URLError", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseURL(%q): %v", tc.in, err)
		}
		if u.Host != tc.wantHost {
			t.Fatalf("ParseURL(%q): host %q want %q", tc.in, u.Host, tc.wantHost)
		}
		if kind != tc.wantKind {
			t.Fatalf("ParseURL(%q): kind %s want %s", tc.in, kind, tc.wantKind)
		}
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := (*Options)(nil).withDefaults()
	if o.ConnectTimeout != 10*time.Second {
		t.Fatalf("ConnectTimeout=%v", o.ConnectTimeout)
	}
	if o.RecvTimeout != 5*time.Second {
		t.Fatalf("RecvTimeout=%v", o.RecvTimeout)
	}
	if o.SendTimeout != 10*time.Second {
		t.Fatalf("SendTimeout=%v", o.SendTimeout)
	}
	if o.MaxFramePayload != DefaultMaxFramePayload {
		t.Fatalf("MaxFramePayload=%d", o.MaxFramePayload)
	}
	if o.ReconnectBackoffFactor != 1.6 {
		t.Fatalf("ReconnectBackoffFactor=%v", o.ReconnectBackoffFactor)
	}

	// Explicit values survive.
	o = (&Options{ConnectTimeout: time.Second, MaxFramePayload: 1024}).withDefaults()
	if o.ConnectTimeout != time.Second || o.MaxFramePayload != 1024 {
		t.Fatalf("explicit values overridden: %+v", o)
	}
}

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "options.yaml")
	body := `
async: true
subprotocol: chat.v1
connect_timeout: 2s
max_frame_payload: 65536
headers:
  authorization: Bearer tok
reconnect_wait: 250ms
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	o, err := LoadOptions(path)
	if err != nil {
		t.Fatalf("LoadOptions: %v", err)
	}
	if !o.Async || o.Subprotocol != "chat.v1" {
		t.Fatalf("fields not loaded: %+v", o)
	}
	if o.ConnectTimeout != 2*time.Second {
		t.Fatalf("ConnectTimeout=%v", o.ConnectTimeout)
	}
	if o.MaxFramePayload != 65536 {
		t.Fatalf("MaxFramePayload=%d", o.MaxFramePayload)
	}
	if o.Headers["authorization"] != "Bearer tok" {
		t.Fatalf("headers=%v", o.Headers)
	}
	if o.ReconnectWait != 250*time.Millisecond {
		t.Fatalf("ReconnectWait=%v", o.ReconnectWait)
	}
	// Defaults still fill the rest.
	if o.SendTimeout != 10*time.Second {
		t.Fatalf("SendTimeout=%v", o.SendTimeout)
	}
}

func TestNewConnAppliesOptions(t *testing.T) {
	c, err := NewConn("wss://example.com/sock", &Options{
		Headers:     map[string]string{"X-Token": "abc"},
		Subprotocol: "chat.v1",
	})
	if err != nil {
		t.Fatalf("NewConn: %v", err)
	}
	if c.Kind != TransportTLS {
		t.Fatalf("kind %s", c.Kind)
	}
	if c.TLS == nil || c.TLS.ServerName != "example.com" {
		t.Fatalf("tls config %+v", c.TLS)
	}
	if c.Headers.Get("X-Token") != "abc" {
		t.Fatalf("headers %v", c.Headers)
	}
	if c.Headers.Get("Sec-WebSocket-Protocol") != "chat.v1" {
		t.Fatalf("subprotocol header missing: %v", c.Headers)
	}

	cp := c.Clone()
	if cp.Opened() {
		t.Fatalf("clone claims to be open")
	}
	cp.Headers.Set("X-Token", "other")
	if c.Headers.Get("X-Token") != "abc" {
		t.Fatalf("clone shares header map")
	}
}

func TestReconnectDelay(t *testing.T) {
	o := (&Options{}).withDefaults()
	if d := reconnectDelay(o, 1); d != 0 {
		t.Fatalf("immediate retry expected, got %v", d)
	}

	o = (&Options{
		ReconnectWait:          100 * time.Millisecond,
		ReconnectMaxWait:       time.Second,
		ReconnectBackoffFactor: 2,
	}).withDefaults()
	if d := reconnectDelay(o, 1); d != 100*time.Millisecond {
		t.Fatalf("attempt 1: %v", d)
	}
	if d := reconnectDelay(o, 3); d != 400*time.Millisecond {
		t.Fatalf("attempt 3: %v", d)
	}
	if d := reconnectDelay(o, 10); d != time.Second {
		t.Fatalf("attempt 10 should cap at max: %v", d)
	}
}

func TestApplyJitterBounds(t *testing.T) {
	base := 100 * time.Millisecond
	jitter := 20 * time.Millisecond
	for i := 0; i < 100; i++ {
		d := applyJitter(base, jitter)
		if d < base-jitter || d > base+jitter {
			t.Fatalf("jittered %v outside [%v, %v]", d, base-jitter, base+jitter)
		}
	}
}
