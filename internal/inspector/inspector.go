// Package inspector reports where a user record can be found: under its
// opaque id, under the legacy email key, and by querying the email field.
// It only reads.
package inspector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mamiri/fsadmin/internal/legacykey"
	"github.com/mamiri/fsadmin/internal/models"
	"github.com/mamiri/fsadmin/internal/store"
)

// ErrSameKey is returned when the user id is itself a legacy key of the email
var ErrSameKey = errors.New("user id equals the legacy key")

// State classifies what the lookups found
type State string

const (
	StateMigrated  State = "migrated"  // only the id key exists
	StateLegacy    State = "legacy"    // only a legacy key exists
	StateDuplicate State = "duplicate" // id and legacy keys both exist
	StateMissing   State = "missing"   // neither key exists
)

// Lookup is the outcome of one lookup path
type Lookup struct {
	Label string
	Path  string
	Users []models.User
}

// Found reports whether the lookup returned any record
func (l Lookup) Found() bool { return len(l.Users) > 0 }

// Report is the result of an inspection
type Report struct {
	UserID string
	Email  string

	ByID     Lookup
	ByLegacy []Lookup
	ByEmail  []Lookup

	State State
	// Records matched only by the email query, under neither expected key
	Unexpected []string
}

// Inspector runs access inspections against a store
type Inspector struct {
	store  store.Store
	logger *slog.Logger
}

// New creates an inspector
func New(s store.Store, logger *slog.Logger) *Inspector {
	return &Inspector{store: s, logger: logger}
}

// Inspect looks the user up by id, by every legacy key candidate and by email
// query. A missing document is reported, not returned as an error.
func (i *Inspector) Inspect(ctx context.Context, userID, email string) (*Report, error) {
	if userID == "" || email == "" {
		return nil, fmt.Errorf("user id and email are required")
	}

	for _, c := range legacykey.Candidates(email) {
		if c.Key == userID {
			return nil, fmt.Errorf("%w: %s", ErrSameKey, userID)
		}
	}

	r := &Report{UserID: userID, Email: email}

	var err error
	r.ByID, err = i.lookupKey(ctx, "by id", userID)
	if err != nil {
		return nil, err
	}

	for _, c := range legacykey.Candidates(email) {
		label := "by legacy key"
		if c.Normalized {
			label = "by legacy key (normalized email)"
		}
		l, err := i.lookupKey(ctx, label, c.Key)
		if err != nil {
			return nil, err
		}
		r.ByLegacy = append(r.ByLegacy, l)
	}

	emails := []string{email}
	if n := legacykey.Normalize(email); n != email {
		emails = append(emails, n)
	}
	for _, e := range emails {
		l, err := i.lookupEmail(ctx, e)
		if err != nil {
			return nil, err
		}
		r.ByEmail = append(r.ByEmail, l)
	}

	r.classify()
	i.logger.Info("inspected user", "user_id", userID, "state", r.State)
	return r, nil
}

func (i *Inspector) lookupKey(ctx context.Context, label, id string) (Lookup, error) {
	l := Lookup{Label: label, Path: store.DocPath(models.UsersCollection, id)}

	doc, err := i.store.Get(ctx, models.UsersCollection, id)
	if errors.Is(err, store.ErrNotFound) {
		i.logger.Debug("no document", "path", l.Path)
		return l, nil
	}
	if err != nil {
		return l, err
	}
	l.Users = []models.User{models.UserFromData(doc.ID, doc.Data)}
	return l, nil
}

func (i *Inspector) lookupEmail(ctx context.Context, email string) (Lookup, error) {
	l := Lookup{
		Label: "by email query",
		Path:  fmt.Sprintf("%s where %s == %q", models.UsersCollection, models.FieldEmail, email),
	}

	docs, err := i.store.FindByField(ctx, models.UsersCollection, models.FieldEmail, email)
	if err != nil {
		return l, err
	}
	for _, doc := range docs {
		l.Users = append(l.Users, models.UserFromData(doc.ID, doc.Data))
	}
	return l, nil
}

func (r *Report) classify() {
	legacy := false
	known := map[string]bool{r.UserID: true}
	for _, l := range r.ByLegacy {
		for _, u := range l.Users {
			legacy = true
			known[u.ID] = true
		}
	}

	switch {
	case r.ByID.Found() && legacy:
		r.State = StateDuplicate
	case r.ByID.Found():
		r.State = StateMigrated
	case legacy:
		r.State = StateLegacy
	default:
		r.State = StateMissing
	}

	// every legacy candidate key is expected, whether or not it exists
	for _, c := range legacykey.Candidates(r.Email) {
		known[c.Key] = true
	}
	seen := map[string]bool{}
	for _, l := range r.ByEmail {
		for _, u := range l.Users {
			if !known[u.ID] && !seen[u.ID] {
				seen[u.ID] = true
				r.Unexpected = append(r.Unexpected, u.ID)
			}
		}
	}
}

// Print writes the human-readable report
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "=== Access check for %s / %s ===\n\n", r.UserID, r.Email)

	printLookup(w, r.ByID)
	for _, l := range r.ByLegacy {
		printLookup(w, l)
	}
	for _, l := range r.ByEmail {
		printLookup(w, l)
	}

	fmt.Fprintf(w, "\nState: %s\n", r.State)
	switch r.State {
	case StateDuplicate:
		fmt.Fprintln(w, "Both the id and legacy documents exist; a migration was interrupted. Re-run the migrator to remove the legacy copy.")
	case StateLegacy:
		fmt.Fprintln(w, "Record is still stored under the legacy key; run the migrator.")
	}
	if r.legacyCopies() > 1 {
		fmt.Fprintln(w, "Several legacy keys hold this email; merge them by hand, the migrator refuses to pick one.")
	}
	if len(r.Unexpected) > 0 {
		fmt.Fprintf(w, "Records matching the email under other keys: %s\n", strings.Join(r.Unexpected, ", "))
	}
}

func (r *Report) legacyCopies() int {
	n := 0
	for _, l := range r.ByLegacy {
		if l.Found() {
			n++
		}
	}
	return n
}

func printLookup(w io.Writer, l Lookup) {
	if !l.Found() {
		fmt.Fprintf(w, "[%s] %s: not found\n", l.Label, l.Path)
		return
	}
	fmt.Fprintf(w, "[%s] %s: %d document(s)\n", l.Label, l.Path, len(l.Users))
	for _, u := range l.Users {
		clients := "(none)"
		if ids := u.ClientIDs(); len(ids) > 0 {
			clients = strings.Join(ids, ", ")
		}
		fmt.Fprintf(w, "  %s email=%q clientAccess: %s\n", u.ID, u.Email, clients)
	}
}
