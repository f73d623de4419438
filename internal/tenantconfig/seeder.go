package tenantconfig

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mamiri/fsadmin/internal/models"
	"github.com/mamiri/fsadmin/internal/store"
)

// DefaultListToggles enables every list-management module
func DefaultListToggles() models.ListToggles {
	return models.ListToggles{
		models.ToggleVendor:   true,
		models.ToggleCategory: true,
		models.ToggleMethod:   true,
		models.ToggleUnit:     true,
	}
}

// Seeder writes per-tenant list configuration
type Seeder struct {
	store  store.Store
	logger *slog.Logger
}

// NewSeeder creates a seeder
func NewSeeder(s store.Store, logger *slog.Logger) *Seeder {
	return &Seeder{store: s, logger: logger}
}

// Seed replaces clients/{tenantID}/config/lists with toggles. Running it again
// with the same toggles leaves the same document.
func (s *Seeder) Seed(ctx context.Context, tenantID string, toggles models.ListToggles) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	collection := models.TenantConfigCollection(tenantID)
	if err := s.store.Set(ctx, collection, models.ListsConfigDoc, toggles.Data()); err != nil {
		return fmt.Errorf("failed to write list config for %s: %w", tenantID, err)
	}
	s.logger.Info("seeded list config", "tenant", tenantID, "toggles", len(toggles))
	return nil
}

// Show reads the current list configuration of a tenant. A tenant without a
// config document has no toggles.
func (s *Seeder) Show(ctx context.Context, tenantID string) (models.ListToggles, bool, error) {
	if tenantID == "" {
		return nil, false, fmt.Errorf("tenant id is required")
	}
	doc, err := s.store.Get(ctx, models.TenantConfigCollection(tenantID), models.ListsConfigDoc)
	if errors.Is(err, store.ErrNotFound) {
		return models.ListToggles{}, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return models.ListTogglesFromData(doc.Data), true, nil
}

// PrintSeeded writes the confirmation shown after seeding
func PrintSeeded(w io.Writer, tenantID string, toggles models.ListToggles) {
	fmt.Fprintf(w, "List config saved to %s/%s\n", models.TenantConfigCollection(tenantID), models.ListsConfigDoc)
	printToggles(w, toggles)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Note: the Lists menu entries live in %s/%s and are maintained separately.\n",
		models.TenantConfigCollection(tenantID), models.MenuConfigDoc)
	fmt.Fprintln(w, "Enable them there if the modules should appear in the client's navigation.")
}

// PrintCurrent writes the stored configuration of a tenant
func PrintCurrent(w io.Writer, tenantID string, toggles models.ListToggles, exists bool) {
	path := models.TenantConfigCollection(tenantID) + "/" + models.ListsConfigDoc
	if !exists {
		fmt.Fprintf(w, "%s: not found\n", path)
		return
	}
	fmt.Fprintf(w, "%s:\n", path)
	printToggles(w, toggles)
}

func printToggles(w io.Writer, toggles models.ListToggles) {
	for _, name := range toggles.Names() {
		state := "disabled"
		if toggles[name] {
			state = "enabled"
		}
		fmt.Fprintf(w, "  %-10s %s\n", name, state)
	}
}
