// Dealsensed is the dealsense extraction daemon.
//
// This binary starts the dealsense HTTP server: hybrid real-estate
// transaction extraction over message batches, strategy resolution, and
// confidence scoring.
//
// Configuration is loaded from an optional YAML file plus DEALSENSE_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	dealsensed
//
//	# Configure via file and environment
//	DEALSENSE_SERVER_PORT=9450 dealsensed -config /etc/dealsense/config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dealsense/internal/config"
	"github.com/fyrsmithlabs/dealsense/internal/extraction"
	"github.com/fyrsmithlabs/dealsense/internal/httpapi"
	"github.com/fyrsmithlabs/dealsense/internal/llm"
	"github.com/fyrsmithlabs/dealsense/internal/logging"
	"github.com/fyrsmithlabs/dealsense/internal/patterns"
	"github.com/fyrsmithlabs/dealsense/internal/userconfig"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()
	args := flag.Args()

	// Handle subcommands
	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  dealsensed           Start the dealsense daemon\n")
			fmt.Fprintf(os.Stderr, "  dealsensed version   Show version information\n")
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("dealsensed by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the dealsense server and blocks until context is cancelled.
//
// This function initializes all dependencies and services:
//  1. Loads and validates configuration
//  2. Initializes the structured logger
//  3. Creates the LLM tool client (when a provider key is configured)
//  4. Wires the extraction pipeline (selector, aggregator, matcher)
//  5. Starts the HTTP server with a Prometheus metrics endpoint
//  6. Performs graceful shutdown on context cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Fields: cfg.Logging.Fields,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("Starting dealsensed",
		zap.String("version", version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("preferred_provider", cfg.Providers.Preferred))

	tools, provider := initToolClient(cfg, logger)

	users := userProviderFromConfig(cfg)
	selector := extraction.NewSelector(users, logger)
	aggregator := extraction.NewAggregator()
	aggregator.SetThresholds(extraction.Thresholds{
		High:   cfg.Confidence.HighThreshold,
		Medium: cfg.Confidence.MediumThreshold,
	})
	extractor := extraction.NewExtractor(selector, aggregator, patterns.NewMatcher(), tools, logger)

	logger.Info("Extraction pipeline initialized",
		zap.Bool("llm_enabled", tools != nil),
		zap.String("llm_provider", provider))

	srv, err := httpapi.NewServer(extractor, selector, aggregator, logger, &httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	// Register metrics endpoint
	srv.Echo().GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	logger.Info("Server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://%s:%d/health", cfg.Server.Host, cfg.Server.Port)),
		zap.String("api_prefix", "/api/v1"),
		zap.String("metrics_endpoint", "/metrics"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// initToolClient builds the LLM client for the preferred provider, falling
// back to the other provider's key when the preferred one is not set.
// Returns a nil client when no key is configured; the pipeline then runs
// pattern-only.
func initToolClient(cfg *config.Config, logger *zap.Logger) (llm.ToolClient, string) {
	type candidate struct {
		name string
		pc   config.ProviderConfig
	}
	candidates := []candidate{
		{cfg.Providers.Preferred, providerConfig(cfg, cfg.Providers.Preferred)},
		{otherProvider(cfg.Providers.Preferred), providerConfig(cfg, otherProvider(cfg.Providers.Preferred))},
	}

	for _, c := range candidates {
		if !c.pc.APIKey.IsSet() {
			continue
		}
		client, err := llm.NewToolClient(llm.Config{
			Provider:  c.name,
			Model:     c.pc.Model,
			APIKey:    c.pc.APIKey.Value(),
			BaseURL:   c.pc.BaseURL,
			MaxTokens: c.pc.MaxTokens,
			Timeout:   int(c.pc.Timeout.Duration().Seconds()),
		})
		if err != nil {
			logger.Warn("failed to create llm client",
				zap.String("provider", c.name),
				zap.Error(err))
			continue
		}
		return client, c.name
	}

	logger.Info("no llm provider configured, running pattern-only")
	return nil, ""
}

func providerConfig(cfg *config.Config, name string) config.ProviderConfig {
	if name == "openai" {
		return cfg.Providers.OpenAI
	}
	return cfg.Providers.Anthropic
}

func otherProvider(name string) string {
	if name == "openai" {
		return "anthropic"
	}
	return "openai"
}

// userProviderFromConfig derives the single-tenant user profile from the
// daemon configuration. Multi-tenant deployments replace this with a
// service-backed userconfig.Provider.
func userProviderFromConfig(cfg *config.Config) userconfig.Provider {
	uc := userconfig.UserConfig{
		HasConsent:                 cfg.Budget.HasConsent,
		HasOpenAI:                  cfg.Providers.OpenAI.APIKey.IsSet(),
		HasAnthropic:               cfg.Providers.Anthropic.APIKey.IsSet(),
		PreferredProvider:          cfg.Providers.Preferred,
		UsePlatformAllowance:       cfg.Budget.UsePlatformAllowance,
		PlatformAllowanceRemaining: cfg.Budget.PlatformAllowanceRemaining,
		TokensUsed:                 cfg.Budget.TokensUsed,
	}
	if cfg.Budget.MonthlyLimit > 0 {
		limit := cfg.Budget.MonthlyLimit
		uc.BudgetLimit = &limit
	}
	return &userconfig.StaticProvider{Config: uc}
}
