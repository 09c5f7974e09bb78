package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/sofatutor/campaign-edge/internal/admin"
	"github.com/sofatutor/campaign-edge/internal/config"
	"github.com/sofatutor/campaign-edge/internal/server"
)

// serverFlags holds the server command flags. Non-empty values override
// the corresponding environment variables.
type serverFlags struct {
	envFile         string
	listenAddr      string
	logLevel        string
	logFile         string
	rateLimitConfig string
	debug           bool
	withAdmin       bool
	shutdownTimeout time.Duration
}

func newServerCmd() *cobra.Command {
	var f serverFlags
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the edge proxies",
		Long:  `Start the chat and scheduling proxies, and the admin API when enabled, in the foreground.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVar(&f.envFile, "env", config.EnvOrDefault("ENV", ".env"), "Path to .env file")
	cmd.Flags().StringVar(&f.listenAddr, "addr", "", "Address to listen on (overrides LISTEN_ADDR)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	cmd.Flags().StringVar(&f.logFile, "log-file", "", "Path to log file (overrides LOG_FILE, default: stdout)")
	cmd.Flags().StringVarP(&f.rateLimitConfig, "rate-limits", "c", "", "Path to YAML rate limit policies (overrides RATE_LIMIT_CONFIG_PATH)")
	cmd.Flags().BoolVarP(&f.debug, "debug", "v", config.EnvBoolOrDefault("DEBUG", false), "Enable debug logging (overrides log-level)")
	cmd.Flags().BoolVar(&f.withAdmin, "admin", false, "Start the admin API (overrides ADMIN_ENABLED)")
	cmd.Flags().DurationVar(&f.shutdownTimeout, "shutdown-timeout", config.EnvDurationOrDefault("SHUTDOWN_TIMEOUT", 30*time.Second), "Graceful shutdown deadline")
	return cmd
}

// loadServerConfig loads the .env file when present, applies flag overrides
// to the environment and builds the configuration.
func loadServerConfig(f serverFlags) (*config.Config, error) {
	if _, err := os.Stat(f.envFile); err == nil {
		if err := godotenv.Load(f.envFile); err != nil {
			log.Printf("Warning: Error loading %s file: %v", f.envFile, err)
		} else {
			log.Printf("Loaded environment from %s", f.envFile)
		}
	}

	overrides := map[string]string{
		"LISTEN_ADDR":            f.listenAddr,
		"LOG_LEVEL":              f.logLevel,
		"LOG_FILE":               f.logFile,
		"RATE_LIMIT_CONFIG_PATH": f.rateLimitConfig,
	}
	if f.debug {
		overrides["LOG_LEVEL"] = "debug"
	}
	if f.withAdmin {
		overrides["ADMIN_ENABLED"] = "true"
	}
	for key, value := range overrides {
		if value == "" {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	return config.New()
}

func runServer(ctx context.Context, f serverFlags) error {
	cfg, err := loadServerConfig(f)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Fail fast if the configured address is already in use
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen address %s unavailable: %w", cfg.ListenAddr, err)
	}
	_ = ln.Close()

	s, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	logger := s.Logger()
	if cfg.OpenAIAPIKey == "" {
		logger.Warn("OPENAI_API_KEY not set - chat requests will fail with a configuration error")
	}
	if cfg.CalendlyAPIKey == "" {
		logger.Warn("CALENDLY_API_KEY not set - scheduling requests will fail with a configuration error")
	}

	var adminSrv *admin.Server
	if cfg.AdminEnabled {
		adminSrv = admin.NewServer(cfg, s.Ledger(), s.Policies(), logger.Named("admin"), admin.WithResetter(s))
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("proxy server: %w", err)
		}
		return nil
	})
	if adminSrv != nil {
		g.Go(func() error {
			if err := adminSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Server shutting down...")

		// Create a deadline for graceful shutdown
		timeout := f.shutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var errs []error
		if adminSrv != nil {
			errs = append(errs, adminSrv.Shutdown(shutdownCtx))
		}
		errs = append(errs, s.Shutdown(shutdownCtx))
		return errors.Join(errs...)
	})

	logger.Info("Server started",
		zap.String("addr", cfg.ListenAddr),
		zap.Bool("admin", adminSrv != nil))
	if term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Println("Press Ctrl+C to stop")
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server exited gracefully")
	return nil
}
