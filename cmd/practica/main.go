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
	"time"

	"github.com/joho/godotenv"

	"github.com/practica-ai/practica/internal/api"
	"github.com/practica-ai/practica/internal/dialogue"
	"github.com/practica-ai/practica/internal/lockfile"
	"github.com/practica-ai/practica/internal/provider"
	"github.com/practica-ai/practica/internal/recovery"
	"github.com/practica-ai/practica/internal/retention"
	"github.com/practica-ai/practica/internal/scheduler"
	"github.com/practica-ai/practica/internal/session"
	"github.com/practica-ai/practica/internal/store"
	"github.com/practica-ai/practica/internal/transcribe"
	"github.com/practica-ai/practica/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Practica state data
	DefaultStateDir = "/var/lib/practica"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "practica.db"
	// DefaultRetentionCron runs the retention pass nightly, off-peak
	DefaultRetentionCron = "17 3 * * *"
	// shutdownGrace bounds how long in-flight requests may finish
	shutdownGrace = 15 * time.Second
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping Practica")
	if err := run(config, flags); err != nil {
		slog.Error("Practica failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Practica exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL     string
	StateDir        string
	OpenAIKey       string
	AnthropicKey    string
	APIAddr         string
	RetentionCron   string
	RetentionMaxAge time.Duration
	LeaseTTL        time.Duration
}

// Flags holds command line flag values
type Flags struct {
	stateDir     *string
	dbDSN        *string
	memoryStore  *bool
	openaiKey    *string
	anthropicKey *string
	apiAddr      *string
}

// initializeLogger sets up structured logging with the level taken from LOG_LEVEL
func initializeLogger() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StateDir:        os.Getenv("PRACTICA_STATE_DIR"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		AnthropicKey:    os.Getenv("ANTHROPIC_API_KEY"),
		APIAddr:         os.Getenv("API_ADDR"),
		RetentionCron:   os.Getenv("RETENTION_SCHEDULE"),
		RetentionMaxAge: time.Duration(util.ParseIntEnv("RETENTION_MAX_AGE_DAYS", 90)) * 24 * time.Hour,
		LeaseTTL:        util.ParseDurationEnv("LEASE_TTL", scheduler.DefaultLeaseTTL),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No PRACTICA_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.RetentionCron == "" {
		config.RetentionCron = DefaultRetentionCron
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"PRACTICA_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"ANTHROPIC_API_KEY_SET", config.AnthropicKey != "",
		"API_ADDR", config.APIAddr,
		"RETENTION_SCHEDULE", config.RetentionCron,
		"RETENTION_MAX_AGE", config.RetentionMaxAge)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	defaultDSN := config.DatabaseURL
	if defaultDSN == "" {
		defaultDSN = filepath.Join(config.StateDir, DefaultDBFileName)
	}

	flags := Flags{
		stateDir:     flag.String("state-dir", config.StateDir, "state directory for Practica data (overrides $PRACTICA_STATE_DIR)"),
		dbDSN:        flag.String("db-dsn", defaultDSN, "database DSN (overrides $DATABASE_URL)"),
		memoryStore:  flag.Bool("memory-store", false, "use the non-durable in-memory store (development only)"),
		openaiKey:    flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		anthropicKey: flag.String("anthropic-api-key", config.AnthropicKey, "Anthropic API key (overrides $ANTHROPIC_API_KEY)"),
		apiAddr:      flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
	}

	flag.Parse()

	// Follow a -state-dir override when the DSN was derived from the default state dir
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"memoryStore", *flags.memoryStore,
		"openaiKeySet", *flags.openaiKey != "",
		"anthropicKeySet", *flags.anthropicKey != "",
		"apiAddr", *flags.apiAddr)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if *flags.memoryStore || store.DetectDSNType(*flags.dbDSN) == "postgres" {
		return nil
	}
	stateDir := filepath.Dir(*flags.dbDSN)
	slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
		return err
	}
	return nil
}

// openStore selects the storage backend from flags: Postgres for server
// DSNs, SQLite for file paths, memory only when explicitly requested.
// SQLite mode also takes the state-directory lock so two local processes
// cannot share one database file.
func openStore(flags Flags) (store.Store, *lockfile.Lock, error) {
	if *flags.memoryStore {
		slog.Warn("Using in-memory store: state will not survive a restart")
		return store.NewMemoryStore(), nil, nil
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		st, err := store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
		if err != nil {
			return nil, nil, err
		}
		return st, nil, nil
	}
	lock, err := lockfile.AcquireLock(filepath.Dir(*flags.dbDSN))
	if err != nil {
		return nil, nil, err
	}
	st, err := store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
	if err != nil {
		lock.Release()
		return nil, nil, err
	}
	return st, lock, nil
}

func run(config Config, flags Flags) error {
	st, lock, err := openStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()
	if lock != nil {
		defer lock.Release()
	}

	// Provider registry from the API keys present
	var gatewayOpts []provider.GatewayOption
	if *flags.openaiKey != "" {
		transcriber, err := transcribe.NewService(*flags.openaiKey)
		if err != nil {
			return err
		}
		gatewayOpts = append(gatewayOpts, provider.WithTranscriber(transcriber))
	}
	gateway := provider.NewGateway(st, gatewayOpts...)
	if *flags.openaiKey != "" {
		p, err := provider.NewOpenAI(*flags.openaiKey)
		if err != nil {
			return err
		}
		gateway.Register(p)
	}
	if *flags.anthropicKey != "" {
		p, err := provider.NewAnthropic(*flags.anthropicKey)
		if err != nil {
			return err
		}
		gateway.Register(p)
	}

	lifecycle := session.NewManager(st)
	loader := recovery.NewLoader(st, nil)
	engine := dialogue.NewEngine(st, loader, dialogue.NewActions(lifecycle, gateway), dialogue.StepTopMenu)
	dialogue.RegisterDefaultSteps(engine)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Periodic work runs on one instance only, elected by the durable lease
	keeper := scheduler.NewLeaseKeeper(st, store.SchedulerLease, config.LeaseTTL)
	go keeper.Run(ctx)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	pruner := retention.NewPruner(st, config.RetentionMaxAge)
	if err := sched.AddLeasedJob(config.RetentionCron, keeper, func() {
		if _, _, err := pruner.RunOnce(); err != nil {
			slog.Error("Retention pass failed", "error", err)
		}
	}); err != nil {
		return err
	}

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(engine, apiOpts...)
	serverErr := server.Start()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutdown signal received, draining")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
