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
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/google/uuid"

	"github.com/hotdot-game/hotdot/go/internal/bus"
	"github.com/hotdot-game/hotdot/go/internal/challenge"
	"github.com/hotdot-game/hotdot/go/internal/gateway"
	"github.com/hotdot-game/hotdot/go/internal/identity"
	"github.com/hotdot-game/hotdot/go/internal/match"
	"github.com/hotdot-game/hotdot/go/internal/match/db"
)

// defaultTemplates seeds match creation until a real template service exists.
// Payloads are opaque SVG path data handed to the clients untouched.
var defaultTemplates = []challenge.Template{
	{ID: uuid.MustParse("0c0b7a4e-6d1f-4f3a-9b83-1af25c1a2a01"), Payload: []byte(`{"svg":"M 20 80 Q 50 10 80 80 Z"}`)},
	{ID: uuid.MustParse("0c0b7a4e-6d1f-4f3a-9b83-1af25c1a2a02"), Payload: []byte(`{"svg":"M 10 50 A 40 40 0 1 0 90 50 A 40 40 0 1 0 10 50 Z"}`)},
	{ID: uuid.MustParse("0c0b7a4e-6d1f-4f3a-9b83-1af25c1a2a03"), Payload: []byte(`{"svg":"M 50 10 L 90 90 L 10 90 Z"}`)},
}

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	config, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	pool, err := setupDatabase(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	// Connect to NATS
	natsCfg := bus.DefaultNATSConfig()
	natsCfg.URL = getEnv("NATS_URL", nats.DefaultURL)
	notifier, err := bus.ConnectNATS(natsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer notifier.Close()

	// Wire up dependency injection chain
	// Database layer → Repository layer → App layer → Service layer
	queries := db.New(pool)
	matchRepo := match.NewRepository(queries)
	matchApp := match.NewApp(matchRepo)
	templates := challenge.NewStaticProvider(defaultTemplates)
	matchService := match.NewService(matchApp, notifier, identity.NewHeaderProvider(), templates)

	// Live-view gateway
	connectionManager := gateway.NewConnectionManager(notifier, gateway.DefaultConnectionConfig())
	go connectionManager.Start(ctx)
	wsHandler := gateway.NewWebSocketHandler(connectionManager)

	// Fail waiting rows left behind by creator sessions that died without
	// running their own timeout path.
	clock := clockwork.NewRealClock()
	if _, err := matchApp.ExpireStaleWaitingMatches(ctx, config.Matchmaking.WaitingRoomTimeout, clock.Now()); err != nil {
		log.Warn().Err(err).Msg("stale match sweep failed")
	}

	server := setupServer(matchService, wsHandler)

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Dur("poll_interval", config.Matchmaking.PollInterval).
			Dur("search_window", config.Matchmaking.SearchWindow).
			Dur("waiting_room_timeout", config.Matchmaking.WaitingRoomTimeout).
			Msg("hotdot match service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}
