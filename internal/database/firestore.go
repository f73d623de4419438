package database

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"github.com/mamiri/fsadmin/internal/config"
	"github.com/mamiri/fsadmin/internal/store"
	"google.golang.org/api/option"
)

// InitFirestore initializes the Firestore client for the configured project
// and database
func InitFirestore(ctx context.Context, cfg *config.Config) (*firestore.Client, error) {
	if err := cfg.RequireProject(); err != nil {
		return nil, err
	}

	// With FIRESTORE_EMULATOR_HOST set the client skips authentication.
	// Otherwise use the service account key when one is configured and fall
	// back to application default credentials.
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClientWithDatabase(ctx, cfg.ProjectID, cfg.DatabaseID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	slog.Info("connected to Firestore", "project", cfg.ProjectID, "database", cfg.DatabaseID)
	return client, nil
}

// Database is the connection handle the admin tools hold for their lifetime
type Database struct {
	Client *firestore.Client
	Store  store.Store
}

// Open connects to Firestore and wraps the client in the shared store
func Open(ctx context.Context, cfg *config.Config) (*Database, error) {
	client, err := InitFirestore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Database{Client: client, Store: store.NewFirestore(client)}, nil
}

// Close closes the Firestore client
func (db *Database) Close() error {
	if db.Client != nil {
		return db.Client.Close()
	}
	return nil
}
