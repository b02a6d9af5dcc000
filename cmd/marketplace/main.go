package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/okybprasetya/marketplace/internal/cart"
	"github.com/okybprasetya/marketplace/internal/config"
	"github.com/okybprasetya/marketplace/internal/db"
	"github.com/okybprasetya/marketplace/internal/events"
	"github.com/okybprasetya/marketplace/internal/order"
	"github.com/okybprasetya/marketplace/internal/payment"
	"github.com/okybprasetya/marketplace/internal/shipment"
	"github.com/okybprasetya/marketplace/internal/transport"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	log.Logger = log.With().Str("service", "marketplace").Logger()

	log.Info().Msg("Marketplace service starting...")

	cfg, err := config.NewConfig(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx := context.Background()

	database, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	var publisher events.Publisher = events.NewNoopPublisher()
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		publisher = events.NewRedisPublisher(redisClient)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Event publishing enabled")
	} else {
		log.Info().Msg("REDIS_ADDR not set, event publishing disabled")
	}

	cartRepo := cart.NewRepository(database.Pool)
	orderRepo := order.NewRepository(database.Pool)
	paymentRepo := payment.NewRepository(database.Pool)
	shipmentRepo := shipment.NewRepository(database.Pool)

	cartSvc := cart.NewService(cartRepo)
	orderSvc := order.NewService(
		orderRepo,
		cartRepo,
		paymentRepo,
		shipmentRepo,
		payment.NewQRProvider(cfg.Payment.Provider, cfg.Payment.QRBaseURL),
		payment.NewHMACVerifier(cfg.Payment.WebhookSecret),
		publisher,
		order.DefaultConfig(),
	)

	router := transport.NewRouter(cfg.App.JWTSecret, cartSvc, orderSvc)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Shutdown failed")
	}
	log.Info().Msg("Server stopped")
}
