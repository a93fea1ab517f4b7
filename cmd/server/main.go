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

	"github.com/sanjh26/hey-chat/internal/server"
)

func main() {
	// Load local .env (dev only)
	_ = godotenv.Load()

	config := server.NewConfigFromEnv()
	server.SetConfig(config)
	logger := server.NewLogger(config.Env)

	// Cancel on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub := server.NewHub(logger)
	go hub.Run()

	directory := server.NewDirectory(logger, hub)

	mux := server.SetupRoutes(hub, directory, logger)
	handler := server.WrapCORS(mux, config.AllowedOrigins)
	httpServer := server.CreateServer(config.Port, handler)

	go func() {
		if err := server.StartServer(httpServer, logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server.crash", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	if err := server.ShutdownServer(httpServer, 10*time.Second, logger); err != nil {
		logger.Error("shutdown.http", "err", err)
	}
	if err := hub.Shutdown(10 * time.Second); err != nil {
		logger.Error("shutdown.hub", "err", err)
	}

	_ = os.Stdout.Sync()
}
