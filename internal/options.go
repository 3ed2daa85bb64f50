package internal

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Options configures a session and its connection. The zero value is
// usable; unset fields are filled with defaults. All fields can also come
// from a YAML file via LoadOptions.
type Options struct {
	// Async makes Start return before the connection attempt finishes;
	// connect failures are then reported only through OnConnectFailure.
	Async bool `yaml:"async"`

	Headers     map[string]string `yaml:"headers"`
	Subprotocol string            `yaml:"subprotocol"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RecvTimeout    time.Duration `yaml:"recv_timeout"`
	SendTimeout    time.Duration `yaml:"send_timeout"`

	// CAFile adds a PEM bundle to the TLS trust store for wss URLs.
	CAFile             string `yaml:"ca_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`

	// Proxy is a SOCKS5 proxy address (host:port); empty disables.
	Proxy string `yaml:"proxy"`

	// MaxFramePayload caps inbound frame payloads; larger frames fail the
	// connection with close code 1009.
	MaxFramePayload int64 `yaml:"max_frame_payload"`

	// Reconnect pacing, used when a handler elects to reconnect. A zero
	// ReconnectWait keeps retries immediate.
	ReconnectWait          time.Duration `yaml:"reconnect_wait"`
	ReconnectMaxWait       time.Duration `yaml:"reconnect_max_wait"`
	ReconnectBackoffFactor float64       `yaml:"reconnect_backoff_factor"`
	ReconnectJitter        time.Duration `yaml:"reconnect_jitter"`
}

func (o *Options) withDefaults() *Options {
	c := Options{}
	if o != nil {
		c = *o
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.RecvTimeout == 0 {
		c.RecvTimeout = 5 * time.Second
	}
	if c.SendTimeout == 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.MaxFramePayload == 0 {
		c.MaxFramePayload = DefaultMaxFramePayload
	}
	if c.ReconnectMaxWait == 0 {
		c.ReconnectMaxWait = 30 * time.Second
	}
	if c.ReconnectBackoffFactor == 0 {
		c.ReconnectBackoffFactor = 1.6
	}
	return &c
}

// LoadOptions reads Options from a YAML file.
func LoadOptions(path string) (*Options, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var o Options
	if err := yaml.Unmarshal(b, &o); err != nil {
		return nil, err
	}
	return o.withDefaults(), nil
}
