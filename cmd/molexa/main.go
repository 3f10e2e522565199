package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bazarkua/molexa-api/internal/config"
	"github.com/bazarkua/molexa-api/internal/logger"
	"github.com/bazarkua/molexa-api/internal/server"
	"github.com/bazarkua/molexa-api/internal/service"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	archivePeriod := flag.String("archive", "", "Archive the given period (YYYY-MM) and exit")
	hashPassword := flag.String("hash-password", "", "Print a bcrypt hash for MOLEXA_ADMIN_PASSWORD_HASH and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := service.HashPassword(*hashPassword)
		if err != nil {
			log.Fatalf("Failed to hash password: %v", err)
		}
		fmt.Println(hash)
		return
	}

	// Load env if it exists
	godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLog := logger.New(cfg.Log.Level, cfg.Log.Format)
	defer appLog.Sync()

	if *archivePeriod != "" {
		if err := runArchive(cfg, appLog, *archivePeriod); err != nil {
			appLog.Error("Archive failed", logger.Error(err))
			os.Exit(1)
		}
		return
	}

	components, err := server.Build(context.Background(), cfg, appLog)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	srv, err := server.New(cfg, components, appLog)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	go func() {
		addr := ":" + cfg.Server.Port
		if err := srv.Run(context.Background(), addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("Server failed to start", logger.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLog.Error("Server forced to shutdown", logger.Error(err))
		os.Exit(1)
	}

	appLog.Info("Server exited")
}

// One-off archive of a single period, for operators and cron outside the process
func runArchive(cfg *config.Config, appLog logger.Logger, period string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	components, err := server.Build(ctx, cfg, appLog)
	if err != nil {
		return err
	}
	defer components.Close(context.Background())

	components.Analytics.Initialize(ctx)

	result, err := components.Analytics.Archive(ctx, period)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
