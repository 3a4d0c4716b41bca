package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/serenmind/sentinel/pkg/config"
	infraLogger "github.com/serenmind/sentinel/pkg/infra/logger"
	"github.com/serenmind/sentinel/pkg/infra/prometheus"
	"github.com/serenmind/sentinel/pkg/server"
	"github.com/serenmind/sentinel/pkg/service"
)

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	logger := infraLogger.NewLogger()

	cfg, err := config.Load("./config")
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	prometheus.Initialize()

	svc, err := service.New(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize safety service: %v", err)
	}

	srv := server.New(cfg, logger, svc)

	go func() {
		if err := srv.Run(); err != nil {
			logger.WithError(err).Fatal("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	if err := srv.Shutdown(); err != nil {
		logger.WithError(err).Error("failed to shut down server")
	}
	if err := svc.Close(); err != nil {
		logger.WithError(err).Error("failed to close safety service")
	}
}
