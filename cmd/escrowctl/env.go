package main

import (
	"fmt"
	"os"
	"strings"

	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/database"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/logger"
	timeProvider "github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/time"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/config"
)

// runtime bundles what every command needs
type runtime struct {
	cfg *config.Config
	log coreport.Logger
	tp  coreport.TimeProvider
	db  *database.Manager
}

// open loads configuration and connects to the configured SQL database.
// The memory driver is rejected: nothing would outlive the command.
func open() (*runtime, error) {
	env := environment
	if env == "" {
		env = os.Getenv("ESC_ENV")
	}
	if env == "" {
		env = config.Development
	}

	paths := config.ConfigPaths
	if configDir != "" {
		paths = []string{configDir}
	}

	cfg, err := config.LoadConfigFrom(strings.ToLower(env), paths...)
	if err != nil {
		return nil, err
	}
	if cfg.Database.Driver == "memory" {
		return nil, fmt.Errorf("database driver %q has nothing to administer", cfg.Database.Driver)
	}

	log := logger.NewZapLogger(false)
	log.SetLevel(coreport.ParseLogLevel(cfg.Logger.Level))
	if verbose {
		log.SetLevel(coreport.LogLevelDebug)
	}

	tp := timeProvider.NewRealTimeProvider()
	db := database.NewManager(database.CreateConfigFromViperConfig(cfg), log, tp)
	if _, err := db.Connect(); err != nil {
		return nil, err
	}

	return &runtime{cfg: cfg, log: log, tp: tp, db: db}, nil
}

func (r *runtime) close() {
	if err := r.db.Close(); err != nil {
		r.log.Warn("Failed to close database", map[string]any{"error": err.Error()})
	}
	_ = r.log.Flush()
}
