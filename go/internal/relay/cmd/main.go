package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/workshop/go/internal/config"
	"github.com/mcdev12/workshop/go/internal/obs"
	"github.com/mcdev12/workshop/go/internal/relay"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	cfg, err := config.Load(getEnv("RELAY_CONFIG", "relay.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	setupLogging(cfg)

	obsConfig := obs.DefaultConfig()
	obsConfig.Host = cfg.OBS.Host
	obsConfig.Password = cfg.OBS.Password
	obsConfig.RequestTimeout = cfg.OBS.RequestTimeout
	obsConfig.ReconnectWait = cfg.OBS.ReconnectWait
	obsClient := obs.NewClient(obsConfig)

	serviceConfig := relay.DefaultConfig()
	serviceConfig.ConnectionConfig.CheckOrigin = checkOrigin(cfg.Server.AllowedOrigins)
	serviceConfig.RelayOptions.CloseDelay = cfg.Transition.CloseDelay
	serviceConfig.RelayOptions.OpenDelay = cfg.Transition.OpenDelay
	serviceConfig.RelayOptions.SceneTimeout = cfg.OBS.RequestTimeout
	serviceConfig.RelayOptions.Cocktails = cfg.Cocktails
	if cfg.NATS.URL != "" {
		natsConfig := relay.DefaultNATSBridgeConfig()
		natsConfig.URL = cfg.NATS.URL
		natsConfig.SubjectPrefix = cfg.NATS.SubjectPrefix
		serviceConfig.NATSConfig = &natsConfig
	}

	service, err := relay.NewService(serviceConfig, obsClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create relay service")
	}
	obsClient.OnStateChange(service.NotifySceneSource)

	log.Info().
		Str("addr", cfg.Addr()).
		Str("obs_host", cfg.OBS.Host).
		Str("nats_url", cfg.NATS.URL).
		Strs("cocktails", cfg.Cocktails).
		Msg("starting relay")

	server := setupServer(cfg, service)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	serviceDone := make(chan struct{})
	go func() {
		defer close(serviceDone)
		if err := service.Start(ctx); err != nil {
			log.Error().Err(err).Msg("relay service failed")
		}
	}()

	go func() {
		if err := obsClient.Run(ctx); err != nil {
			log.Error().Err(err).Msg("OBS client stopped")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := obsClient.Close(); err != nil {
		log.Debug().Err(err).Msg("OBS client close")
	}

	select {
	case <-serviceDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("relay service did not stop in time")
	}

	log.Info().Msg("relay shutdown complete")
}

func setupLogging(cfg *config.Config) {
	if cfg.Log.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func setupServer(cfg *config.Config, service *relay.Service) *http.Server {
	mux := http.NewServeMux()
	service.RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h2c.NewHandler(c.Handler(mux), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// checkOrigin admits WebSocket handshakes from the configured origins
func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
