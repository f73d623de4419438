package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mamiri/fsadmin/internal/config"
	"github.com/mamiri/fsadmin/internal/database"
	"github.com/mamiri/fsadmin/internal/inspector"
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
	if err := cfg.RequireInspect(); err != nil {
		log.Fatal(err)
	}
	logging.Setup(os.Stderr, "inspect-access", cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	db, err := database.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Firestore: %v", err)
	}
	defer db.Close()

	report, err := inspector.New(db.Store, slog.Default()).Inspect(ctx, cfg.Inspect.UserID, cfg.Inspect.Email)
	if err != nil {
		log.Fatalf("Inspection failed: %v", err)
	}
	report.Print(os.Stdout)
}
