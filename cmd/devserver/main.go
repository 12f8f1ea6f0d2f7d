// Package main provides the entrypoint for the LumiScan development backend.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/lumiscan/lumiscan/internal/devserver"
)

// Version is set at compile time via ldflags.
var Version = "dev"

func main() {
	const serviceName = "lumiscan-devserver"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	_ = godotenv.Load()

	port := os.Getenv("DEVSERVER_PORT")
	if port == "" {
		port = "8080"
	}

	signingKey := os.Getenv("DEVSERVER_SIGNING_KEY")
	if signingKey == "" {
		signingKey = "local-dev-signing-key"
		log.Warn().Msg("using default signing key - dev use only")
	}

	server := devserver.New(devserver.Config{
		Logger:     log,
		SigningKey: signingKey,
	})

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("dev server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
		os.Exit(1)
	}
}
