// Package turnserver runs the optional TURN relay that ships with the
// registry, for participants behind NATs that block direct links.
package turnserver

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/pion/turn/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/BioHazard786/huddle/internal/config"
)

// Server is a running TURN relay.
type Server struct {
	turn *turn.Server
	conn net.PacketConn
	auth *prometheus.CounterVec
}

// Start listens on cfg.Addr (UDP) and relays through cfg.PublicIP.
// Passwords are turned into long-term keys up front; plain text is not
// kept. reg may be nil.
func Start(cfg config.TURNConfig, reg prometheus.Registerer) (*Server, error) {
	relayIP := net.ParseIP(cfg.PublicIP)
	if relayIP == nil {
		return nil, fmt.Errorf("%w: %q", config.ErrTURNPublicIP, cfg.PublicIP)
	}

	keys := make(map[string][]byte, len(cfg.Users))
	for user, pass := range cfg.Users {
		keys[user] = turn.GenerateAuthKey(user, cfg.Realm, pass)
	}

	auth := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "huddle",
		Subsystem: "turn",
		Name:      "auth_total",
		Help:      "TURN authentication attempts by result.",
	}, []string{"result"})
	if reg != nil {
		if err := reg.Register(auth); err != nil {
			return nil, err
		}
	}

	conn, err := net.ListenPacket("udp4", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen turn: %w", err)
	}

	s, err := turn.NewServer(turn.ServerConfig{
		Realm: cfg.Realm,
		AuthHandler: func(username, realm string, srcAddr net.Addr) ([]byte, bool) {
			key, ok := keys[username]
			if !ok {
				auth.WithLabelValues("rejected").Inc()
				slog.Debug("turn auth rejected", "user", username, "addr", srcAddr)
				return nil, false
			}
			auth.WithLabelValues("accepted").Inc()
			return key, true
		},
		PacketConnConfigs: []turn.PacketConnConfig{
			{
				PacketConn: conn,
				RelayAddressGenerator: &turn.RelayAddressGeneratorStatic{
					RelayAddress: relayIP,
					Address:      "0.0.0.0",
				},
			},
		},
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("start turn: %w", err)
	}

	slog.Info("turn relay listening", "addr", conn.LocalAddr(), "relay_ip", cfg.PublicIP, "realm", cfg.Realm, "users", len(keys))
	return &Server{turn: s, conn: conn, auth: auth}, nil
}

// Addr is the UDP address the relay listens on.
func (s *Server) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Close stops the relay and its listener.
func (s *Server) Close() error {
	return s.turn.Close()
}
