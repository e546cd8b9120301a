package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/huddle/internal/config"
	"github.com/BioHazard786/huddle/internal/registry"
	"github.com/BioHazard786/huddle/internal/server"
	"github.com/BioHazard786/huddle/internal/turnserver"
	"github.com/BioHazard786/huddle/internal/ui"
)

const shutdownTimeout = 5 * time.Second

var serveOpts config.ServerOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the room registry server",
	Long: `Run the registry: room membership, chat relay and negotiation relay over
websockets, plus /health, /api/rooms and /metrics.

Examples:
  huddle serve --addr :8080
  huddle serve --turn --turn-public-ip 203.0.113.7 --turn-users alice=secret`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveOpts.Addr, "addr", "", "HTTP listen address (env HTTP_ADDR)")
	f.StringVar(&serveOpts.AllowedOrigins, "allowed-origins", "", "comma separated websocket origins (env ALLOWED_ORIGINS)")
	f.BoolVar(&serveOpts.TURNEnabled, "turn", false, "run the embedded TURN relay (env TURN_ENABLED)")
	f.StringVar(&serveOpts.TURNAddr, "turn-addr", "", "TURN UDP listen address (env TURN_ADDR)")
	f.StringVar(&serveOpts.TURNPublicIP, "turn-public-ip", "", "public IP advertised for relayed candidates (env TURN_PUBLIC_IP)")
	f.StringVar(&serveOpts.TURNRealm, "turn-realm", "", "TURN realm (env TURN_REALM)")
	f.StringVar(&serveOpts.TURNUsers, "turn-users", "", "TURN users as user=pass,user=pass (env TURN_USERS)")

	rootCmd.AddCommand(serveCmd)
}

func serve(parent context.Context) error {
	cfg, err := config.LoadServer(serveOpts)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	metricsReg := prometheus.NewRegistry()
	metricsReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	reg := registry.New(registry.NewMetrics(metricsReg))

	if cfg.TURN.Enabled {
		relay, err := turnserver.Start(cfg.TURN, metricsReg)
		if err != nil {
			return err
		}
		defer relay.Close()
		ui.PrintInfof("TURN relay on %s (udp)", relay.Addr())
	}

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: server.NewRouter(reg, server.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			Gatherer:       metricsReg,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	slog.Info("registry listening", "addr", cfg.Addr)
	ui.PrintSuccess(fmt.Sprintf("Registry listening on %s", cfg.Addr))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	slog.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
