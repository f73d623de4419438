package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mamiri/fsadmin/internal/config"
	"github.com/mamiri/fsadmin/internal/database"
	"github.com/mamiri/fsadmin/internal/logging"
	"github.com/mamiri/fsadmin/internal/tenantconfig"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logging.Setup(os.Stderr, "seed-tenant-config", cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	db, err := database.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Firestore: %v", err)
	}
	defer db.Close()

	toggles := tenantconfig.DefaultListToggles()
	if err := tenantconfig.NewSeeder(db.Store, slog.Default()).Seed(ctx, cfg.TenantID, toggles); err != nil {
		log.Fatalf("Failed to seed list config: %v", err)
	}
	tenantconfig.PrintSeeded(os.Stdout, cfg.TenantID, toggles)
}
