package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/casapps/caslinks/src/internal/config"
	"github.com/casapps/caslinks/src/internal/database"
	"github.com/casapps/caslinks/src/internal/server"
)

var (
	Version = "dev"
)

func main() {
	setupLogging()

	for _, arg := range os.Args[1:] {
		switch arg {
		case "--version", "-v":
			fmt.Printf("CasLinks v%s\n", Version)
			os.Exit(0)
		case "--help", "-h":
			printHelp()
			os.Exit(0)
		case "--config-check":
			if err := handleConfigCheck(); err != nil {
				slog.Error("configuration check failed", "error", err)
				os.Exit(1)
			}
			fmt.Println("Configuration OK")
			return
		}
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.Initialize(cfg)
	if err != nil {
		slog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	sqlDB, err := db.DB()
	if err != nil {
		slog.Error("failed to get database instance", "error", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := database.MigrateDB(db, cfg.GetString("database.type")); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := server.New(e, cfg, db)

	port := cfg.GetInt("server.port")
	address := fmt.Sprintf("%s:%d", cfg.GetString("server.host"), port)

	slog.Info("starting server",
		"version", Version,
		"address", address,
		"platform_domain", cfg.GetString("platform.domain"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := srv.Start(ctx, address); err != nil {
			slog.Error("server stopped", "error", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("CASLINKS_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func handleConfigCheck() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	return config.ValidateConfig(cfg)
}

func printHelp() {
	fmt.Printf(`CasLinks v%s - Link-in-bio publishing with custom domains

Usage:
  caslinks [options]

Options:
  -h, --help         Show this help message
  -v, --version      Show version information
  --config-check     Validate configuration file

Environment Variables:
  CASLINKS_LOG_LEVEL          Log level: debug|info|warn|error
  CASLINKS_SERVER_PORT        Server port (default: 8080)
  CASLINKS_PLATFORM_DOMAIN    Platform apex domain (required)
  CASLINKS_PLATFORM_SERVER_IP Public IP tenants point A records at
  CASLINKS_DATABASE_TYPE      Database type: sqlite|postgres|mysql
  CASLINKS_SECURITY_SECRET_KEY Server secret key (auto-generated if empty)

Examples:
  caslinks                    Start the server
  caslinks --config-check     Validate configuration
`, Version)
}
