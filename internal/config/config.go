package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BioHazard786/huddle/internal/protocol"
)

// Default configuration values
const (
	DefaultServerURL          = "ws://localhost:8080/ws"
	DefaultSTUN               = "stun:stun.l.google.com:19302"
	DefaultNegotiationTimeout = 30 * time.Second
)

var (
	ErrInvalidServerURL = errors.New("server URL must use ws or wss")
	ErrRelayWithoutTURN = errors.New("cannot force relay mode without TURN server configured")
	ErrInvalidTimeout   = errors.New("negotiation timeout must be positive")
)

// Config holds client configuration
type Config struct {
	// ServerURL is the registry websocket endpoint
	ServerURL string

	// Codec is the wire codec name sent as ?codec=
	Codec string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// ForceRelay restricts ICE to TURN candidates
	ForceRelay bool

	// NegotiationTimeout bounds a single originate or answer attempt
	NegotiationTimeout time.Duration
}

// Options for loading config with CLI flag overrides
type Options struct {
	ServerURL          string
	Codec              string
	STUNServer         string
	TURNServer         string
	TURNUser           string
	TURNPass           string
	ForceRelay         bool
	NegotiationTimeout time.Duration
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	cfg := &Config{
		ServerURL:  pick(opts.ServerURL, "HUDDLE_SERVER", DefaultServerURL),
		Codec:      pick(opts.Codec, "HUDDLE_CODEC", protocol.CodecJSON),
		STUNServer: pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN),
		TURNServer: pick(opts.TURNServer, "TURN_SERVER", ""),
		TURNUser:   pick(opts.TURNUser, "TURN_USERNAME", ""),
		TURNPass:   pick(opts.TURNPass, "TURN_PASSWORD", ""),
		ForceRelay: opts.ForceRelay || envBool("FORCE_RELAY"),
	}

	timeout := opts.NegotiationTimeout
	if timeout == 0 {
		if v := os.Getenv("NEGOTIATION_TIMEOUT"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("parse NEGOTIATION_TIMEOUT: %w", err)
			}
			timeout = d
		}
	}
	if timeout == 0 {
		timeout = DefaultNegotiationTimeout
	}
	cfg.NegotiationTimeout = timeout

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded values for consistency.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("%w: %q", ErrInvalidServerURL, c.ServerURL)
	}
	if _, err := protocol.Lookup(c.Codec); err != nil {
		return err
	}
	if c.ForceRelay && c.TURNServer == "" {
		return ErrRelayWithoutTURN
	}
	if c.NegotiationTimeout <= 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// WebSocketURL returns the registry URL with the codec selected.
func (c *Config) WebSocketURL() string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return c.ServerURL
	}
	q := u.Query()
	q.Set("codec", c.Codec)
	u.RawQuery = q.Encode()
	return u.String()
}

// HTTPBaseURL maps the websocket endpoint to the server's HTTP origin.
func (c *Config) HTTPBaseURL() string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return c.ServerURL
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path = ""
	u.RawQuery = ""
	return u.String()
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	if strings.Contains(c.TURNServer, "?transport=") {
		return []string{c.TURNServer}
	}
	return []string{
		c.TURNServer + "?transport=udp",
		c.TURNServer + "?transport=tcp",
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// UseRelay reports whether ICE should be limited to relay candidates.
func (c *Config) UseRelay() bool {
	return c.GetTURNServers() != nil && (c.ForceRelay || ShouldForceRelay())
}

func pick(flag, env, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}
