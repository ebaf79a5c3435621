package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"camwatch/internal/app"
	"camwatch/internal/config"
	"camwatch/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	appLogger := logger.NewLogger(cfg)

	application, err := app.NewApp(ctx, cfg, appLogger)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil {
		appLogger.Error("Server stopped: %v", err)
		application.Close()
		os.Exit(1)
	}
}
