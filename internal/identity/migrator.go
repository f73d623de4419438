// Package identity moves user records from their legacy email-derived
// document key onto the opaque auth UID.
package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"

	"github.com/mamiri/fsadmin/internal/legacykey"
	"github.com/mamiri/fsadmin/internal/models"
	"github.com/mamiri/fsadmin/internal/store"
)

var (
	ErrInvalidInput    = errors.New("target user id and email are required")
	ErrSameKey         = errors.New("target user id equals the legacy key")
	ErrAmbiguousLegacy = errors.New("user stored under several legacy keys")
)

// Mode selects how the copy and delete are applied
type Mode string

const (
	// ModeTransactional reads, writes and deletes in one transaction, so the
	// legacy and target copies never coexist.
	ModeTransactional Mode = "transactional"
	// ModeSequential issues get, set and delete as separate calls. A failure
	// after the set leaves both copies in place until the next run.
	ModeSequential Mode = "sequential"
)

// ParseMode validates a mode name
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeTransactional, "":
		return ModeTransactional, nil
	case ModeSequential:
		return ModeSequential, nil
	}
	return "", fmt.Errorf("unknown migration mode %q (want %s or %s)", s, ModeTransactional, ModeSequential)
}

// Outcome is what a migration run did
type Outcome string

const (
	OutcomeMigrated        Outcome = "migrated"
	OutcomeNotFound        Outcome = "not_found"
	OutcomeAlreadyMigrated Outcome = "already_migrated"
	OutcomeDryRun          Outcome = "dry_run"
)

// Options tune a migration run
type Options struct {
	Mode   Mode
	DryRun bool
}

// Result describes a migration run
type Result struct {
	TargetID string
	Email    string
	Mode     Mode
	Outcome  Outcome

	// The legacy key the record was found under, and the address it encodes
	LegacyKey    string
	LegacyEmail  string
	Normalized   bool
	ClientAccess []string

	// Set by the transactional mode, which reads the target first
	TargetExisted   bool
	TargetUnchanged bool

	// Documents matching the email by query when no legacy key exists
	EmailMatches []string
}

// Migrator moves user records between keys
type Migrator struct {
	store  store.Store
	logger *slog.Logger
}

// New creates a migrator
func New(s store.Store, logger *slog.Logger) *Migrator {
	return &Migrator{store: s, logger: logger}
}

// Migrate copies the record stored under the legacy key of email onto
// targetID, overwriting whatever is there, and deletes the legacy document.
// When no legacy document exists nothing is written.
func (m *Migrator) Migrate(ctx context.Context, targetID, email string, opts Options) (*Result, error) {
	if targetID == "" || email == "" {
		return nil, ErrInvalidInput
	}
	candidates := legacykey.Candidates(email)
	for _, c := range candidates {
		if c.Key == targetID {
			return nil, fmt.Errorf("%w: %s", ErrSameKey, targetID)
		}
	}
	if opts.Mode == "" {
		opts.Mode = ModeTransactional
	}

	logger := m.logger.With("target", targetID, "mode", opts.Mode, "dry_run", opts.DryRun)

	var (
		res *Result
		err error
	)
	switch opts.Mode {
	case ModeTransactional:
		res, err = m.migrateTx(ctx, targetID, email, candidates, opts.DryRun)
	case ModeSequential:
		res, err = m.migrateSequential(ctx, targetID, email, candidates, opts.DryRun)
	default:
		return nil, fmt.Errorf("unknown migration mode %q", opts.Mode)
	}
	if err != nil {
		logger.Error("migration failed", "error", err)
		return nil, err
	}
	res.Mode = opts.Mode

	if res.Outcome == OutcomeNotFound {
		if err := m.explainMissing(ctx, res); err != nil {
			return nil, err
		}
	}

	logger.Info("migration finished", "outcome", res.Outcome, "legacy_key", res.LegacyKey)
	return res, nil
}

func (m *Migrator) migrateTx(ctx context.Context, targetID, email string, candidates []legacykey.Candidate, dryRun bool) (*Result, error) {
	var res *Result
	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		// the transaction may be retried, start from a clean result each time
		res = &Result{TargetID: targetID, Email: email}

		c, legacy, err := findLegacy(candidates, func(id string) (*store.Document, error) {
			return tx.Get(models.UsersCollection, id)
		})
		if err != nil {
			return err
		}
		if legacy == nil {
			res.Outcome = OutcomeNotFound
			return nil
		}
		res.found(c, legacy)

		target, err := tx.Get(models.UsersCollection, targetID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		default:
			res.TargetExisted = true
			res.TargetUnchanged = reflect.DeepEqual(target.Data, legacy.Data)
		}

		if dryRun {
			res.Outcome = OutcomeDryRun
			return nil
		}

		if !res.TargetUnchanged {
			if err := tx.Set(models.UsersCollection, targetID, legacy.Data); err != nil {
				return fmt.Errorf("failed to write %s: %w", store.DocPath(models.UsersCollection, targetID), err)
			}
		}
		if err := tx.Delete(models.UsersCollection, legacy.ID); err != nil {
			return fmt.Errorf("failed to delete %s: %w", legacy.Path, err)
		}
		res.Outcome = OutcomeMigrated
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("migration transaction failed: %w", err)
	}
	return res, nil
}

func (m *Migrator) migrateSequential(ctx context.Context, targetID, email string, candidates []legacykey.Candidate, dryRun bool) (*Result, error) {
	res := &Result{TargetID: targetID, Email: email}

	c, legacy, err := findLegacy(candidates, func(id string) (*store.Document, error) {
		return m.store.Get(ctx, models.UsersCollection, id)
	})
	if err != nil {
		return nil, err
	}
	if legacy == nil {
		res.Outcome = OutcomeNotFound
		return res, nil
	}
	res.found(c, legacy)

	if dryRun {
		res.Outcome = OutcomeDryRun
		return res, nil
	}

	if err := m.store.Set(ctx, models.UsersCollection, targetID, legacy.Data); err != nil {
		return nil, err
	}
	m.logger.Debug("wrote target document", "target", targetID)

	if err := m.store.Delete(ctx, models.UsersCollection, legacy.ID); err != nil {
		return nil, fmt.Errorf("target %s written but legacy %s not deleted: %w", targetID, legacy.ID, err)
	}
	res.Outcome = OutcomeMigrated
	return res, nil
}

// findLegacy reads every candidate key. It returns a nil document when none
// exists and ErrAmbiguousLegacy when more than one does.
func findLegacy(candidates []legacykey.Candidate, get func(id string) (*store.Document, error)) (legacykey.Candidate, *store.Document, error) {
	var (
		found legacykey.Candidate
		doc   *store.Document
		keys  []string
	)
	for _, c := range candidates {
		d, err := get(c.Key)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return found, nil, err
		}
		keys = append(keys, d.ID)
		if doc == nil {
			found, doc = c, d
		}
	}
	if len(keys) > 1 {
		return found, nil, fmt.Errorf("%w: %s", ErrAmbiguousLegacy, strings.Join(keys, ", "))
	}
	return found, doc, nil
}

func (r *Result) found(c legacykey.Candidate, doc *store.Document) {
	r.LegacyKey = doc.ID
	r.LegacyEmail = c.Email
	r.Normalized = c.Normalized
	r.ClientAccess = models.UserFromData(doc.ID, doc.Data).ClientIDs()
}

// explainMissing looks for the record elsewhere when no legacy key matched.
// It only reads.
func (m *Migrator) explainMissing(ctx context.Context, res *Result) error {
	emails := []string{res.Email}
	if n := legacykey.Normalize(res.Email); n != res.Email {
		emails = append(emails, n)
	}

	seen := map[string]bool{}
	for _, e := range emails {
		docs, err := m.store.FindByField(ctx, models.UsersCollection, models.FieldEmail, e)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if !seen[doc.ID] {
				seen[doc.ID] = true
				res.EmailMatches = append(res.EmailMatches, doc.ID)
			}
		}
	}

	target, err := m.store.Get(ctx, models.UsersCollection, res.TargetID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	u := models.UserFromData(target.ID, target.Data)
	if u.Email == res.Email || legacykey.Normalize(u.Email) == legacykey.Normalize(res.Email) {
		res.Outcome = OutcomeAlreadyMigrated
		res.ClientAccess = u.ClientIDs()
	}
	return nil
}

// Print writes the human-readable report
func (r *Result) Print(w io.Writer) {
	fmt.Fprintf(w, "=== Migrate %s -> users/%s (%s) ===\n\n", r.Email, r.TargetID, r.Mode)

	switch r.Outcome {
	case OutcomeNotFound:
		fmt.Fprintf(w, "No legacy document found for %s\n", r.Email)
		for _, c := range legacykey.Candidates(r.Email) {
			fmt.Fprintf(w, "  checked users/%s\n", c.Key)
		}
		if len(r.EmailMatches) > 0 {
			fmt.Fprintf(w, "Documents with this email under other keys: %s\n", strings.Join(r.EmailMatches, ", "))
		}
		fmt.Fprintln(w, "Nothing was written.")
		return
	case OutcomeAlreadyMigrated:
		fmt.Fprintf(w, "users/%s already holds this user (clientAccess: %s)\n", r.TargetID, joinOrNone(r.ClientAccess))
		fmt.Fprintln(w, "No legacy document left. Nothing was written.")
		return
	}

	fmt.Fprintf(w, "Found legacy document users/%s", r.LegacyKey)
	if r.Normalized {
		fmt.Fprintf(w, " (matched normalized email %s)", r.LegacyEmail)
	}
	fmt.Fprintf(w, "\n  clientAccess: %s\n", joinOrNone(r.ClientAccess))
	if r.TargetExisted {
		if r.TargetUnchanged {
			fmt.Fprintf(w, "users/%s already matches the legacy payload\n", r.TargetID)
		} else {
			fmt.Fprintf(w, "users/%s exists and will be overwritten\n", r.TargetID)
		}
	}

	if r.Outcome == OutcomeDryRun {
		fmt.Fprintln(w, "Dry run: nothing was written.")
		return
	}
	fmt.Fprintf(w, "Copied to users/%s and deleted users/%s\n", r.TargetID, r.LegacyKey)
	fmt.Fprintln(w, "Migration complete.")
}

func joinOrNone(ids []string) string {
	if len(ids) == 0 {
		return "(none)"
	}
	return strings.Join(ids, ", ")
}
