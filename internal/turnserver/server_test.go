package turnserver

import (
	"net"
	"testing"

	"github.com/pion/turn/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/huddle/internal/config"
)

func startRelay(t *testing.T) *Server {
	t.Helper()
	s, err := Start(config.TURNConfig{
		Enabled:  true,
		Addr:     "127.0.0.1:0",
		PublicIP: "127.0.0.1",
		Realm:    "huddle",
		Users:    map[string]string{"alice": "secret"},
	}, prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func allocate(t *testing.T, server net.Addr, user, pass string) error {
	t.Helper()

	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	client, err := turn.NewClient(&turn.ClientConfig{
		STUNServerAddr: server.String(),
		TURNServerAddr: server.String(),
		Conn:           conn,
		Username:       user,
		Password:       pass,
		Realm:          "huddle",
	})
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Listen())

	relay, err := client.Allocate()
	if err != nil {
		return err
	}
	return relay.Close()
}

func TestAllocate(t *testing.T) {
	s := startRelay(t)

	require.NoError(t, allocate(t, s.Addr(), "alice", "secret"))
	assert.GreaterOrEqual(t, testutil.ToFloat64(s.auth.WithLabelValues("accepted")), 1.0)
}

func TestAllocateUnknownUser(t *testing.T) {
	s := startRelay(t)

	assert.Error(t, allocate(t, s.Addr(), "mallory", "secret"))
	assert.GreaterOrEqual(t, testutil.ToFloat64(s.auth.WithLabelValues("rejected")), 1.0)
}

func TestStartNeedsPublicIP(t *testing.T) {
	_, err := Start(config.TURNConfig{Addr: "127.0.0.1:0", Realm: "huddle"}, nil)
	assert.ErrorIs(t, err, config.ErrTURNPublicIP)
}
