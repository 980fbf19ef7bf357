package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Wyydra/callrelay/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/callrelay/internal/adapter/driven/negotiation/pion"
	"github.com/Wyydra/callrelay/internal/adapter/driven/registry/memory"
	handler "github.com/Wyydra/callrelay/internal/adapter/driving/http"
	"github.com/Wyydra/callrelay/internal/config"
	"github.com/Wyydra/callrelay/internal/core/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("callrelay failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg, loadErr := config.Load()
	var iceServers string

	cmd := &cobra.Command{
		Use:           "callrelay",
		Short:         "Signaling relay for one-to-one WebRTC calls",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if loadErr != nil {
				return loadErr
			}
			if cmd.Flags().Changed("ice-servers") {
				cfg.ICEServers = config.ParseICEServers(iceServers)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.ListenAddr, "addr", cfg.ListenAddr, "listen address")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (trace, debug, info, warn, error)")
	f.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (console or json)")
	f.StringVar(&cfg.StaticDir, "static-dir", cfg.StaticDir, "directory served at / (empty disables)")
	f.IntVar(&cfg.CandidateBufferLimit, "candidate-buffer", cfg.CandidateBufferLimit, "candidates buffered per call direction before the answer (0 = unbounded)")
	f.IntVar(&cfg.SendQueueSize, "send-queue", cfg.SendQueueSize, "outbound frames queued per connection")
	f.Int64Var(&cfg.MaxMessageBytes, "max-message-bytes", cfg.MaxMessageBytes, "largest accepted websocket message")
	f.DurationVar(&cfg.WSPingInterval, "ping-interval", cfg.WSPingInterval, "websocket ping interval")
	f.DurationVar(&cfg.WSIdleTimeout, "idle-timeout", cfg.WSIdleTimeout, "close connections silent for this long")
	f.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown budget")
	f.BoolVar(&cfg.ValidatePayloads, "validate-payloads", cfg.ValidatePayloads, "reject malformed SDP and candidate payloads")
	f.StringVar(&iceServers, "ice-servers", "", "comma separated STUN/TURN URLs handed to clients, e.g. turn:user:pass@host:3478")
	f.StringSliceVar(&cfg.AllowedOrigins, "allowed-origin", cfg.AllowedOrigins, "allowed websocket origins (repeatable, empty allows all)")

	return cmd
}

func newLogger(cfg config.Config) zerolog.Logger {
	var w io.Writer = os.Stdout
	if cfg.LogFormat == config.LogFormatConsole {
		w = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	return zerolog.New(w).Level(cfg.Level()).With().Timestamp().Caller().Logger()
}

func run(ctx context.Context, cfg config.Config) error {
	l := newLogger(cfg)
	log.Logger = l

	opts := []service.Option{service.WithCandidateBufferLimit(cfg.CandidateBufferLimit)}
	if cfg.ValidatePayloads {
		opts = append(opts, service.WithPayloadValidator(pion.NewValidator()))
	}

	registry := memory.NewRegistry()
	signaling := service.NewSignalingService(registry, opts...)
	hub := ws.NewHub()
	h := handler.NewHandler(signaling, hub, cfg)

	go hub.Run()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info().Str("addr", cfg.ListenAddr).Bool("validate_payloads", cfg.ValidatePayloads).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err != nil {
			l.Error().Err(err).Msg("Failed to start server")
			hub.Stop()
			return err
		}
	case <-quit:
	case <-ctx.Done():
	}
	l.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("Server forced to shutdown")
	}

	// websockets are hijacked, so Shutdown does not close them
	hub.Stop()
	l.Info().Msg("Server exited")
	return nil
}
