package inspector

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mamiri/fsadmin/internal/legacykey"
	"github.com/mamiri/fsadmin/internal/models"
)

// LegacyRecord is a user document still keyed by its email
type LegacyRecord struct {
	User models.User
	// IDs of other documents holding the same email, i.e. migrated copies
	Copies []string
}

// AuditReport summarizes the whole users collection
type AuditReport struct {
	Total  int
	Legacy []LegacyRecord
}

// Duplicates returns the legacy records that also have a migrated copy
func (r *AuditReport) Duplicates() []LegacyRecord {
	var out []LegacyRecord
	for _, l := range r.Legacy {
		if len(l.Copies) > 0 {
			out = append(out, l)
		}
	}
	return out
}

// IsLegacyKey reports whether id is the legacy key of email
func IsLegacyKey(id, email string) bool {
	if email == "" {
		return false
	}
	decoded, err := legacykey.Decode(id)
	if err != nil {
		return false
	}
	return decoded == email || legacykey.Normalize(decoded) == legacykey.Normalize(email)
}

// Audit scans every user and lists the records that still need migrating.
// It only reads.
func (i *Inspector) Audit(ctx context.Context) (*AuditReport, error) {
	docs, err := i.store.List(ctx, models.UsersCollection)
	if err != nil {
		return nil, err
	}

	r := &AuditReport{Total: len(docs)}
	byEmail := map[string][]string{}
	var legacy []models.User
	for _, doc := range docs {
		u := models.UserFromData(doc.ID, doc.Data)
		if IsLegacyKey(u.ID, u.Email) {
			legacy = append(legacy, u)
			continue
		}
		if u.Email != "" {
			n := legacykey.Normalize(u.Email)
			byEmail[n] = append(byEmail[n], u.ID)
		}
	}

	for _, u := range legacy {
		r.Legacy = append(r.Legacy, LegacyRecord{User: u, Copies: byEmail[legacykey.Normalize(u.Email)]})
	}

	i.logger.Info("audited users", "total", r.Total, "legacy", len(r.Legacy), "duplicates", len(r.Duplicates()))
	return r, nil
}

// Print writes the human-readable audit
func (r *AuditReport) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Users audit ===")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total users: %d\n", r.Total)
	fmt.Fprintf(w, "Stored under legacy keys: %d\n", len(r.Legacy))
	for _, l := range r.Legacy {
		fmt.Fprintf(w, "  %s email=%q clientAccess: %s", l.User.ID, l.User.Email, strings.Join(l.User.ClientIDs(), ", "))
		if len(l.Copies) > 0 {
			fmt.Fprintf(w, " (also under %s)", strings.Join(l.Copies, ", "))
		}
		fmt.Fprintln(w)
	}
	if d := len(r.Duplicates()); d > 0 {
		fmt.Fprintf(w, "Duplicates (legacy and migrated copies both present): %d\n", d)
	}
}
