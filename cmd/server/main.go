package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	echoapi "github.com/tabworks/authflow/api/echo"
	"github.com/tabworks/authflow/cache"
	cacheredis "github.com/tabworks/authflow/cache/redis"
	"github.com/tabworks/authflow/config"
	"github.com/tabworks/authflow/domain"
	"github.com/tabworks/authflow/internal/federation"
	"github.com/tabworks/authflow/internal/flowstate"
	"github.com/tabworks/authflow/internal/metrics"
	"github.com/tabworks/authflow/middleware"
	"github.com/tabworks/authflow/mongodb"
	"github.com/tabworks/authflow/services"
	"github.com/tabworks/authflow/session"
	"github.com/tabworks/authflow/tracing"
)

const sweepInterval = time.Minute

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	initLogger(cfg)
	log.Info().Msg("Starting authflow server")

	tracerProvider, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize TracerProvider")
	}

	ctx := context.Background()
	db, disconnect, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}

	accounts, err := mongodb.NewAccountRepository(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize account repository")
	}

	store, closeStore, err := buildStateStore(ctx, cfg, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize state store")
	}

	providers, err := buildProviderRegistry(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize identity providers")
	}

	issuer, err := session.NewJWTIssuer(
		[]byte(cfg.SessionSigningKey),
		cfg.PublicBaseURL,
		time.Duration(cfg.SessionTTLHours)*time.Hour,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize session issuer")
	}

	metrics.InitCustomMetrics(prometheus.DefaultRegisterer)

	states := flowstate.NewManager(store)
	verifier := services.NewOwnershipVerifier(accounts, providers)
	flows := services.NewFlowService(states, providers, accounts, issuer, verifier, cfg.FrontendBaseURL)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	echoapi.NewAuthAPI(flows).RegisterRoutes(e, middleware.RequireSession(issuer, echoapi.SessionCookieName))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	sweepCtx, stopSweep := context.WithCancel(ctx)
	go sweepExpiredStates(sweepCtx, store)

	go func() {
		addr := ":" + cfg.HTTPPort
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	waitForShutdown(e, tracerProvider, disconnect, closeStore, stopSweep)
}

func initLogger(cfg *config.ServerConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	if cfg.LogPretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = logger
}

// buildStateStore selects the configured backend. The memory backend is the
// default and needs no external service.
func buildStateStore(ctx context.Context, cfg *config.ServerConfig, db *mongo.Database) (domain.StateStore, func() error, error) {
	switch cfg.StateBackend {
	case "", "memory":
		store := cache.NewMemoryStateStore(cache.DefaultCapacity)
		return store, store.Close, nil
	case "mongo":
		store, err := mongodb.NewStateStore(ctx, db)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return cacheredis.NewStateStore(client, "authflow"), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
}

func waitForShutdown(
	e *echo.Echo,
	tracerProvider *sdktrace.TracerProvider,
	disconnect func(context.Context) error,
	closeStore func() error,
	stopSweep context.CancelFunc,
) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down")

	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if closeStore != nil {
		if err := closeStore(); err != nil {
			log.Error().Err(err).Msg("State store close failed")
		}
	}
	if err := disconnect(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("MongoDB disconnect failed")
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("TracerProvider shutdown failed")
	}
	log.Info().Msg("Shutdown complete")
}

// sweepExpiredStates periodically removes expired state records from
// backends without native expiry enforcement.
func sweepExpiredStates(ctx context.Context, store domain.StateStore) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.SweepExpired(ctx); err != nil {
				log.Warn().Err(err).Msg("State sweep failed")
			}
		}
	}
}

// buildProviderRegistry constructs every provider that has credentials
// configured. Running with a subset is fine; requests for an absent
// provider fail with INVALID_PROVIDER.
func buildProviderRegistry(cfg *config.ServerConfig) (*federation.Registry, error) {
	callback := func(name string) string {
		return fmt.Sprintf("%s/auth/callback/%s", cfg.PublicBaseURL, name)
	}

	var providers []federation.OAuth2Provider
	if cfg.GoogleClientID != "" {
		p, err := federation.NewGoogleProvider(federation.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  callback("google"),
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if cfg.MicrosoftClientID != "" {
		p, err := federation.NewMicrosoftProvider(federation.Config{
			ClientID:     cfg.MicrosoftClientID,
			ClientSecret: cfg.MicrosoftClientSecret,
			RedirectURL:  callback("microsoft"),
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if cfg.FacebookClientID != "" {
		p, err := federation.NewFacebookProvider(federation.Config{
			ClientID:     cfg.FacebookClientID,
			ClientSecret: cfg.FacebookClientSecret,
			RedirectURL:  callback("facebook"),
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no identity providers configured")
	}
	return federation.NewRegistry(providers...), nil
}
