package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/TextLoop/TextLoop/internal/api"
	"github.com/TextLoop/TextLoop/internal/flow"
	"github.com/TextLoop/TextLoop/internal/messaging"
	"github.com/TextLoop/TextLoop/internal/store"
	"github.com/TextLoop/TextLoop/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for TextLoop state data
	DefaultStateDir = "/var/lib/textloop"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "textloop.db"
)

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	APIAddr     string
	Debug       bool
	RateRPS     float64
	RateBurst   int
}

func main() {
	config := loadEnvironmentConfig()
	initializeLogger(config.Debug)

	apiAddr := flag.String("addr", config.APIAddr, "API listen address")
	dbDSN := flag.String("db-dsn", config.DatabaseURL, "database DSN (postgres:// URL or SQLite file path)")
	stateDir := flag.String("state-dir", config.StateDir, "directory for SQLite state data")
	flag.Parse()

	st, err := openStore(*dbDSN, *stateDir)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	sender := messaging.NewTwilioSender()
	engine := flow.NewEngine(st, sender)
	server := api.NewServer(st, engine,
		api.WithAddr(*apiAddr),
		api.WithRateLimit(config.RateRPS, config.RateBurst),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping TextLoop", "addr", *apiAddr, "dsn_set", *dbDSN != "")
	if err := server.Run(ctx); err != nil {
		slog.Error("TextLoop failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("TextLoop exited successfully")
}

// initializeLogger sets up structured logging
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("TEXTLOOP_STATE_DIR"),
		APIAddr:     os.Getenv("TEXTLOOP_API_ADDR"),
		Debug:       util.ParseBoolEnv("TEXTLOOP_DEBUG", false),
		RateRPS:     util.ParseFloatEnv("TEXTLOOP_WEBHOOK_RPS", api.DefaultRateRPS),
		RateBurst:   util.ParseIntEnv("TEXTLOOP_WEBHOOK_BURST", api.DefaultRateBurst),
	}
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.APIAddr == "" {
		config.APIAddr = api.DefaultAddr
	}
	return config
}

// openStore selects the storage backend from the DSN: postgres:// URLs open
// Postgres, anything else is treated as an SQLite file path, and an empty
// DSN falls back to the default SQLite file under the state directory.
func openStore(dsn, stateDir string) (store.Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		slog.Info("Using Postgres store")
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	if dsn == "" {
		dsn = filepath.Join(stateDir, DefaultDBFileName)
	}
	slog.Info("Using SQLite store", "path", dsn)
	return store.NewSQLiteStore(store.WithDSN(dsn))
}
