package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BioHazard786/huddle/internal/protocol"
	"github.com/BioHazard786/huddle/internal/registry"
)

// Options configures the HTTP surface of the registry server.
type Options struct {
	// AllowedOrigins restricts websocket upgrades by Origin header.
	// Empty or containing "*" allows every origin.
	AllowedOrigins []string

	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// NewRouter wires every endpoint of the registry server.
func NewRouter(reg *registry.Registry, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthCheckHandler)
	mux.HandleFunc("GET /api/rooms", roomsHandler(reg))
	mux.HandleFunc("/ws", ServeWs(reg, newUpgrader(opts.AllowedOrigins)))

	if opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}

func newUpgrader(allowed []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  64 * 1024, // 64 KB
		WriteBufferSize: 64 * 1024, // 64 KB
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 || slices.Contains(allowed, "*") {
				return true
			}
			origin := r.Header.Get("Origin")
			// Non-browser clients send no Origin.
			return origin == "" || slices.Contains(allowed, origin)
		},
	}
}

// Health Check endpoint
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Room registry is healthy."))
}

func roomsHandler(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(reg.Rooms()); err != nil {
			slog.Error("encode rooms", "error", err)
		}
	}
}

// ServeWs returns an http.HandlerFunc that handles websocket requests.
// The frame codec is chosen with the codec query parameter.
func ServeWs(reg *registry.Registry, upgrader *websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		codec, err := protocol.Lookup(r.URL.Query().Get("codec"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		// Upgrade the HTTP connection to a WebSocket
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("failed to upgrade connection", "error", err)
			return
		}

		client := reg.NewClient(conn, codec)
		reg.Register(client)

		// Start the client's read and write pumps in separate goroutines
		// These methods will handle the client's lifecycle
		go client.WritePump()
		go client.ReadPump()
	}
}
