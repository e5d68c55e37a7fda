package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rencie-dev/rencie/internal/auth"
	"github.com/rencie-dev/rencie/internal/bank"
	"github.com/rencie-dev/rencie/internal/config"
	"github.com/rencie-dev/rencie/internal/conversation"
	"github.com/rencie-dev/rencie/internal/llm"
	"github.com/rencie-dev/rencie/internal/notify"
	"github.com/rencie-dev/rencie/internal/otp"
	"github.com/rencie-dev/rencie/internal/server"
	"github.com/rencie-dev/rencie/internal/store/postgres"
	"github.com/rencie-dev/rencie/internal/store/redisstore"
)

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the banking assistant HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "rencie.yaml", "path to configuration file")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	jwtSecret, err := config.Secret(cfg.Auth.JWTSecretEnv)
	if err != nil {
		return err
	}
	accountSecret, err := config.Secret(cfg.Auth.AccountSecretEnv)
	if err != nil {
		return err
	}
	dsn, err := config.Secret(cfg.Postgres.DSNEnv)
	if err != nil {
		return err
	}
	llmKey, err := config.Secret(cfg.LLM.APIKeyEnv)
	if err != nil {
		return err
	}

	redisClient, err := redisstore.Connect(ctx, cfg.Redis.Addr, os.Getenv(cfg.Redis.PasswordEnv), cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer redisClient.Close()

	db, err := postgres.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()
	if err := db.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}

	// Without a mail key, outbound email is logged and dropped. OTP delivery
	// still requires a real sender in production.
	var sender notify.Sender = notify.NopSender{}
	if key := os.Getenv(cfg.Mail.APIKeyEnv); key != "" {
		sender = notify.NewMailSender(cfg.Mail.Endpoint, key, cfg.Mail.From)
	} else {
		log.Warn("mail API key not set, outbound email disabled", zap.String("env", cfg.Mail.APIKeyEnv))
	}
	dispatcher := notify.NewDispatcher(sender, log, cfg.Mail.QueueSize, cfg.Mail.Workers)
	defer dispatcher.Close()

	otpSvc := otp.NewService(redisstore.NewOTPStore(redisClient), dispatcher)
	bankSvc := bank.NewService(db, dispatcher, log)
	defer bankSvc.Close()
	authSvc := auth.NewService(db, dispatcher, auth.Config{
		JWTSecret:      jwtSecret,
		AccountSecret:  accountSecret,
		TokenTTL:       time.Duration(cfg.Auth.TokenTTLHours) * time.Hour,
		OpeningBalance: cfg.Auth.OpeningBalance,
		Currency:       cfg.Auth.Currency,
	})

	llmClient := llm.NewClient(cfg.LLM.Endpoint, llmKey, cfg.LLM.Model)
	engine := conversation.NewEngine(
		llmClient,
		llmClient,
		otpSvc,
		bankSvc,
		redisstore.NewCheckpointStore(redisClient),
		redisstore.NewSessionLocker(redisClient),
		log,
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.NewServer(authSvc, bankSvc, engine, log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	case <-stop:
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parsing log level: %w", err)
		}
		zc.Level = level
	}
	log, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return log, nil
}
