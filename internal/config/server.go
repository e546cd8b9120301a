package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Default server values
const (
	DefaultHTTPAddr  = ":8080"
	DefaultTURNAddr  = ":3478"
	DefaultTURNRealm = "huddle"
)

var (
	ErrTURNPublicIP = errors.New("embedded TURN needs a public IP")
	ErrTURNUsers    = errors.New("embedded TURN needs at least one user=password pair")
)

// ServerConfig holds registry server configuration
type ServerConfig struct {
	// Addr is the HTTP listen address
	Addr string

	// AllowedOrigins for websocket upgrades; empty allows all
	AllowedOrigins []string

	// TURN configures the optional embedded relay
	TURN TURNConfig
}

// TURNConfig configures the embedded TURN relay
type TURNConfig struct {
	Enabled  bool
	Addr     string
	PublicIP string
	Realm    string
	Users    map[string]string
}

// ServerOptions for loading server config with CLI flag overrides
type ServerOptions struct {
	Addr           string
	AllowedOrigins string
	TURNEnabled    bool
	TURNAddr       string
	TURNPublicIP   string
	TURNRealm      string
	TURNUsers      string
}

// LoadServer reads server configuration: CLI flags > environment > defaults.
func LoadServer(opts ServerOptions) (*ServerConfig, error) {
	cfg := &ServerConfig{
		Addr:           pick(opts.Addr, "HTTP_ADDR", DefaultHTTPAddr),
		AllowedOrigins: splitList(pick(opts.AllowedOrigins, "ALLOWED_ORIGINS", "")),
		TURN: TURNConfig{
			Enabled:  opts.TURNEnabled || envBool("TURN_ENABLED"),
			Addr:     pick(opts.TURNAddr, "TURN_ADDR", DefaultTURNAddr),
			PublicIP: pick(opts.TURNPublicIP, "TURN_PUBLIC_IP", ""),
			Realm:    pick(opts.TURNRealm, "TURN_REALM", DefaultTURNRealm),
		},
	}

	users, err := parseUsers(pick(opts.TURNUsers, "TURN_USERS", ""))
	if err != nil {
		return nil, err
	}
	cfg.TURN.Users = users

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded values for consistency.
func (c *ServerConfig) Validate() error {
	if !c.TURN.Enabled {
		return nil
	}
	if net.ParseIP(c.TURN.PublicIP) == nil {
		return fmt.Errorf("%w: %q", ErrTURNPublicIP, c.TURN.PublicIP)
	}
	if len(c.TURN.Users) == 0 {
		return ErrTURNUsers
	}
	return nil
}

// parseUsers reads "alice=secret,bob=hunter2".
func parseUsers(s string) (map[string]string, error) {
	users := make(map[string]string)
	for _, pair := range splitList(s) {
		name, pass, ok := strings.Cut(pair, "=")
		if !ok || name == "" || pass == "" {
			return nil, fmt.Errorf("invalid TURN user %q, want user=password", pair)
		}
		users[name] = pass
	}
	return users, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
