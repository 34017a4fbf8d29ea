package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/ga-webserver/backend/internal/config"
	"github.com/zhouzirui/ga-webserver/backend/internal/handler"
	"github.com/zhouzirui/ga-webserver/backend/internal/logging"
	assistantmodel "github.com/zhouzirui/ga-webserver/backend/internal/model/assistant"
	"github.com/zhouzirui/ga-webserver/backend/internal/service/assistant"
	"github.com/zhouzirui/ga-webserver/backend/internal/service/credentials"
	"github.com/zhouzirui/ga-webserver/backend/internal/service/journal"
	"github.com/zhouzirui/ga-webserver/backend/internal/service/relay"
	"github.com/zhouzirui/ga-webserver/backend/internal/service/transport"
	"github.com/zhouzirui/ga-webserver/backend/internal/telemetry"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "ga-webserver <credentials.json>",
		Short:        "Relay HTTP text messages to the Google Assistant",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0])
		},
	}
}

func run(parent context.Context, credentialsPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env file, continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		return pkgerrors.Wrap(err, "load configuration")
	}

	if err := logging.Setup(cfg.Log); err != nil {
		return pkgerrors.Wrap(err, "configure logging")
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return pkgerrors.Wrap(err, "configure telemetry")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn().Err(err).Msg("failed to flush traces")
		}
	}()

	user, err := credentials.Load(credentialsPath)
	if err != nil {
		log.Error().Err(err).Msg("credential error")
		return err
	}
	// Token refreshes happen for the lifetime of the process, so they must not inherit the signal context.
	holder, err := credentials.NewHolder(context.Background(), user)
	if err != nil {
		log.Error().Err(err).Msg("credential error")
		return err
	}
	log.Info().Str("credentials", credentialsPath).Msg("credentials refreshed")

	conn, err := transport.Dial(ctx, cfg.Assistant.Endpoint, cfg.Assistant.DialTimeout,
		transport.DefaultDialOptions(holder.TokenSource())...)
	if err != nil {
		log.Error().Err(err).Msg("channel establishment error")
		return err
	}

	session := assistant.NewSession(assistantmodel.SessionConfig{
		LanguageCode:  cfg.Assistant.LanguageCode,
		DeviceModelID: cfg.Assistant.DeviceModelID,
		DeviceID:      cfg.Assistant.DeviceID,
		Deadline:      cfg.Assistant.Deadline,
	}, conn)
	defer session.Close()

	sessionCfg := session.Config()
	log.Info().
		Str("endpoint", cfg.Assistant.Endpoint).
		Str("device_id", sessionCfg.DeviceID).
		Str("device_model_id", sessionCfg.DeviceModelID).
		Str("language_code", sessionCfg.LanguageCode).
		Dur("deadline", sessionCfg.Deadline).
		Msg("assistant session ready")

	if !cfg.Facade.ReportExchangeErrors {
		log.Info().Msg("exchange failures are acknowledged as OK on message endpoints (REPORT_EXCHANGE_ERRORS=false)")
	}

	journalSvc := journal.NewService(cfg.Facade.JournalLimit)
	relaySvc := relay.NewService(session, journalSvc)
	router := handler.NewRouter(relaySvc, journalSvc, cfg.Facade)

	return startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) error {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", serverCfg.Addr).Msg("ga-webserver listening")
	if err := runServer(ctx, srv); err != nil {
		return pkgerrors.Wrap(err, "server error")
	}
	return nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
