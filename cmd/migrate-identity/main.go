package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mamiri/fsadmin/internal/config"
	"github.com/mamiri/fsadmin/internal/database"
	"github.com/mamiri/fsadmin/internal/identity"
	"github.com/mamiri/fsadmin/internal/logging"
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
	if err := cfg.RequireMigrate(); err != nil {
		log.Fatal(err)
	}
	mode, err := identity.ParseMode(cfg.Migrate.Mode)
	if err != nil {
		log.Fatal(err)
	}
	logging.Setup(os.Stderr, "migrate-identity", cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	db, err := database.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Firestore: %v", err)
	}
	defer db.Close()

	result, err := identity.New(db.Store, slog.Default()).Migrate(ctx, cfg.Migrate.TargetUserID, cfg.Migrate.Email, identity.Options{
		Mode:   mode,
		DryRun: cfg.Migrate.DryRun,
	})
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	result.Print(os.Stdout)
}
