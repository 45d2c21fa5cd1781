package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/idkhub-com/reactive-agents/storage"
)

// runMigrate applies the schema and exits. The same migration runs on serve
// startup; the standalone command exists for deploy pipelines that migrate
// before rolling instances.
func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.Database.Path)
	default:
		dialector = postgres.Open(cfg.Database.DSN())
	}

	if _, err := storage.Open(dialector, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
	logger.Info("schema up to date", zap.String("driver", cfg.Database.Driver))
	fmt.Println("OK")
}
