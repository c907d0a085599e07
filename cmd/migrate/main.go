package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"warimas-checkout/internal/config"
	"warimas-checkout/internal/db"
	"warimas-checkout/internal/logger"

	"github.com/golang-migrate/migrate/v4"
	"go.uber.org/zap"
)

// migrator is the part of *migrate.Migrate the command drives.
type migrator interface {
	Up() error
	Steps(n int) error
	Version() (uint, bool, error)
}

func main() {
	mode := flag.String("mode", "up", "migration mode: up, down or version")
	steps := flag.Int("steps", 1, "number of migrations to roll back in down mode")
	flag.Parse()

	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database, err := db.NewDatabase(cfg)
	if err != nil {
		logger.L().Fatal("db connect failed", zap.Error(err))
	}
	defer database.Close()

	m, err := db.NewMigrator(database, cfg.MigrationsPath)
	if err != nil {
		logger.L().Fatal("migrator init failed", zap.Error(err))
	}

	if err := run(m, *mode, *steps); err != nil {
		logger.L().Error("migration failed", zap.String("mode", *mode), zap.Error(err))
		os.Exit(1)
	}
}

func run(m migrator, mode string, steps int) error {
	log := logger.L().With(zap.String("mode", mode))

	switch mode {
	case "up":
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("no new migrations")
			return nil
		}
		if err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		if steps < 1 {
			return fmt.Errorf("steps must be positive, got %d", steps)
		}
		if err := m.Steps(-steps); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				log.Info("no migrations to roll back")
				return nil
			}
			return fmt.Errorf("migrate down: %w", err)
		}
	case "version":
	default:
		return fmt.Errorf("unknown mode: %s (use 'up', 'down' or 'version')", mode)
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		log.Info("schema has no migrations applied")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if dirty {
		log.Warn("schema is dirty", zap.Uint("version", version))
		return nil
	}
	log.Info("schema at version", zap.Uint("version", version))
	return nil
}
