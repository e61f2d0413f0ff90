package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"dexgrad/internal/config"
	"dexgrad/internal/migrations"
	"dexgrad/internal/repository"
	"dexgrad/pkg/utils"
)

func main() {
	target := flag.String("target", "app", "migration target: app, primary, partner")
	command := flag.String("cmd", "up", "command: up, down, version")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer logger.Sync()
	logger = logger.WithComponent("migrate").With(utils.String("target", *target))

	ctx := context.Background()

	db, set, err := open(ctx, cfg, *target)
	if err != nil {
		logger.Fatal("failed to connect to database", utils.Err(err))
	}
	defer db.Close()

	switch *command {
	case "up":
		logger.Info("running database migrations")
		n, err := migrations.Up(ctx, db, set)
		if err != nil {
			logger.Fatal("migration failed", utils.Err(err), utils.Int("applied", n))
		}
		logger.Info("migrations completed", utils.Int("applied", n))
	case "down":
		if err := migrations.DownOne(ctx, db, set); err != nil {
			logger.Fatal("rollback failed", utils.Err(err))
		}
		logger.Info("rolled back one migration")
	case "version":
		v, err := migrations.Version(ctx, db, set)
		if err != nil {
			logger.Fatal("failed to read version", utils.Err(err))
		}
		logger.Info("current schema version", utils.Int64("version", v))
	default:
		logger.Fatal("unknown command", utils.String("cmd", *command))
	}
}

// open подключается к БД выбранного target
func open(ctx context.Context, cfg *config.Config, target string) (*sql.DB, migrations.Target, error) {
	switch target {
	case "app":
		db, err := repository.OpenPostgres(ctx, cfg.Database)
		return db, migrations.TargetApp, err
	case "primary":
		db, err := repository.OpenMySQL(ctx, cfg.BrokerStores.Primary)
		return db, migrations.TargetBrokerStore, err
	case "partner":
		db, err := repository.OpenMySQL(ctx, cfg.BrokerStores.Partner)
		return db, migrations.TargetBrokerStore, err
	default:
		return nil, "", fmt.Errorf("unknown target %q", target)
	}
}
