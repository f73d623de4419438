package identity

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mamiri/fsadmin/internal/inspector"
	"github.com/mamiri/fsadmin/internal/legacykey"
	"github.com/mamiri/fsadmin/internal/logging"
	"github.com/mamiri/fsadmin/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	uid   = "Xq3uF7sLk0bN2"
	email = "ops@example.com"
)

var (
	ctx    = context.Background()
	legacy = legacykey.Encode(email)
	modes  = []Mode{ModeTransactional, ModeSequential}
)

func legacyPayload() map[string]interface{} {
	return map[string]interface{}{
		"email": email,
		"clientAccess": map[string]interface{}{
			"mcs":  map[string]interface{}{"role": "admin", "lists": []interface{}{"vendor", "unit"}},
			"acme": map[string]interface{}{"role": "viewer"},
		},
		"createdAt":   time.Date(2023, 4, 1, 9, 30, 0, 0, time.UTC),
		"loginCount":  int64(17),
		"displayName": "Ops",
	}
}

func newStore(t *testing.T, docs map[string]map[string]interface{}) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	for id, data := range docs {
		require.NoError(t, m.Set(ctx, "users", id, data))
	}
	return m
}

func get(t *testing.T, m *store.Memory, id string) map[string]interface{} {
	t.Helper()
	doc, err := m.Get(ctx, "users", id)
	require.NoError(t, err)
	return doc.Data
}

func TestMigrate_PreservesPayloadAndRemovesLegacy(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			m := newStore(t, map[string]map[string]interface{}{legacy: legacyPayload()})

			res, err := New(m, logging.Discard()).Migrate(ctx, uid, email, Options{Mode: mode})
			require.NoError(t, err)

			assert.Equal(t, OutcomeMigrated, res.Outcome)
			assert.Equal(t, legacy, res.LegacyKey)
			assert.Equal(t, []string{"acme", "mcs"}, res.ClientAccess)
			assert.Equal(t, legacyPayload(), get(t, m, uid))

			ok, err := store.Exists(ctx, m, "users", legacy)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, 1, m.Count())
		})
	}
}

func TestMigrate_OverwritesTarget(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			m := newStore(t, map[string]map[string]interface{}{
				legacy: legacyPayload(),
				uid: {
					"email":        "stale@example.com",
					"clientAccess": map[string]interface{}{"old-client": true},
					"onlyOnTarget": "dropped",
				},
			})

			res, err := New(m, logging.Discard()).Migrate(ctx, uid, email, Options{Mode: mode})
			require.NoError(t, err)

			assert.Equal(t, OutcomeMigrated, res.Outcome)
			assert.Equal(t, legacyPayload(), get(t, m, uid))
			assert.Equal(t, 1, m.Count())
		})
	}

	t.Run("transactional reports overwrite", func(t *testing.T) {
		m := newStore(t, map[string]map[string]interface{}{
			legacy: legacyPayload(),
			uid:    {"email": "stale@example.com"},
		})
		res, err := New(m, logging.Discard()).Migrate(ctx, uid, email, Options{})
		require.NoError(t, err)
		assert.True(t, res.TargetExisted)
		assert.False(t, res.TargetUnchanged)
	})
}

func TestMigrate_AbsentSourceIsNoOp(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			m := newStore(t, map[string]map[string]interface{}{
				uid:     {"email": "someone@else.com"},
				"other": {"email": "x@example.com"},
			})
			before := m.Snapshot()

			res, err := New(m, logging.Discard()).Migrate(ctx, uid, email, Options{Mode: mode})
			require.NoError(t, err)

			assert.Equal(t, OutcomeNotFound, res.Outcome)
			assert.Empty(t, res.EmailMatches)
			assert.Equal(t, before, m.Snapshot())
			assert.Equal(t, 2, m.Count())
		})
	}
}

func TestMigrate_AlreadyMigrated(t *testing.T) {
	m := newStore(t, map[string]map[string]interface{}{uid: legacyPayload()})
	before := m.Snapshot()

	res, err := New(m, logging.Discard()).Migrate(ctx, uid, email, Options{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeAlreadyMigrated, res.Outcome)
	assert.Equal(t, []string{uid}, res.EmailMatches)
	assert.Equal(t, before, m.Snapshot())
}

func TestMigrate_ReportsRecordsUnderOtherKeys(t *testing.T) {
	m := newStore(t, map[string]map[string]interface{}{"auto-id": legacyPayload()})

	res, err := New(m, logging.Discard()).Migrate(ctx, uid, email, Options{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeNotFound, res.Outcome)
	assert.Equal(t, []string{"auto-id"}, res.EmailMatches)

	var out bytes.Buffer
	res.Print(&out)
	assert.Contains(t, out.String(), "under other keys: auto-id")
	assert.Contains(t, out.String(), "Nothing was written.")
}

func TestMigrate_MatchesNormalizedEmail(t *testing.T) {
	m := newStore(t, map[string]map[string]interface{}{legacy: legacyPayload()})

	res, err := New(m, logging.Discard()).Migrate(ctx, uid, " Ops@Example.com", Options{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeMigrated, res.Outcome)
	assert.True(t, res.Normalized)
	assert.Equal(t, email, res.LegacyEmail)
	assert.Equal(t, legacyPayload(), get(t, m, uid))
}

func TestMigrate_RefusesSeveralLegacyCopies(t *testing.T) {
	mixed := legacykey.Encode("Ops@Example.com")
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			m := newStore(t, map[string]map[string]interface{}{
				mixed:  {"email": "Ops@Example.com", "clientAccess": map[string]interface{}{"a": true}},
				legacy: {"email": email, "clientAccess": map[string]interface{}{"b": true}},
			})
			before := m.Snapshot()

			res, err := New(m, logging.Discard()).Migrate(ctx, uid, "Ops@Example.com", Options{Mode: mode})
			require.ErrorIs(t, err, ErrAmbiguousLegacy)
			assert.Nil(t, res)
			assert.Contains(t, err.Error(), mixed)
			assert.Contains(t, err.Error(), legacy)
			assert.Equal(t, before, m.Snapshot())
		})
	}
}

func TestMigrate_DryRun(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			m := newStore(t, map[string]map[string]interface{}{legacy: legacyPayload()})
			before := m.Snapshot()

			res, err := New(m, logging.Discard()).Migrate(ctx, uid, email, Options{Mode: mode, DryRun: true})
			require.NoError(t, err)

			assert.Equal(t, OutcomeDryRun, res.Outcome)
			assert.Equal(t, before, m.Snapshot())
		})
	}
}

func TestMigrate_RerunRepairsDuplicate(t *testing.T) {
	m := newStore(t, map[string]map[string]interface{}{
		legacy: legacyPayload(),
		uid:    legacyPayload(),
	})

	res, err := New(m, logging.Discard()).Migrate(ctx, uid, email, Options{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeMigrated, res.Outcome)
	assert.True(t, res.TargetUnchanged)
	assert.Equal(t, 1, m.Count())
	assert.Equal(t, legacyPayload(), get(t, m, uid))
}

func TestMigrate_SequentialDeleteFailureLeavesDuplicate(t *testing.T) {
	m := newStore(t, map[string]map[string]interface{}{legacy: legacyPayload()})
	boom := errors.New("deadline exceeded")
	m.FailOn("delete", "users/"+legacy, boom)

	_, err := New(m, logging.Discard()).Migrate(ctx, uid, email, Options{Mode: ModeSequential})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, m.Count())

	r, err := inspector.New(m, logging.Discard()).Inspect(ctx, uid, email)
	require.NoError(t, err)
	assert.Equal(t, inspector.StateDuplicate, r.State)

	m.FailOn("delete", "users/"+legacy, nil)
	res, err := New(m, logging.Discard()).Migrate(ctx, uid, email, Options{Mode: ModeSequential})
	require.NoError(t, err)
	assert.Equal(t, OutcomeMigrated, res.Outcome)
	assert.Equal(t, 1, m.Count())
}

func TestMigrate_SequentialWriteFailureSkipsDelete(t *testing.T) {
	m := newStore(t, map[string]map[string]interface{}{legacy: legacyPayload()})
	boom := errors.New("permission denied")
	m.FailOn("set", "users/"+uid, boom)
	before := m.Snapshot()

	_, err := New(m, logging.Discard()).Migrate(ctx, uid, email, Options{Mode: ModeSequential})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, before, m.Snapshot())
}

func TestMigrate_TransactionalFailureWritesNothing(t *testing.T) {
	m := newStore(t, map[string]map[string]interface{}{legacy: legacyPayload()})
	boom := errors.New("aborted")
	m.FailOn("commit", "", boom)
	before := m.Snapshot()

	_, err := New(m, logging.Discard()).Migrate(ctx, uid, email, Options{Mode: ModeTransactional})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, before, m.Snapshot())
}

func TestMigrate_ReadFailureAborts(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			m := newStore(t, map[string]map[string]interface{}{legacy: legacyPayload()})
			boom := errors.New("unavailable")
			m.FailOn("get", "users/"+legacy, boom)
			before := m.Snapshot()

			_, err := New(m, logging.Discard()).Migrate(ctx, uid, email, Options{Mode: mode})
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, before, m.Snapshot())
		})
	}
}

func TestMigrate_InvalidInput(t *testing.T) {
	mg := New(store.NewMemory(), logging.Discard())

	_, err := mg.Migrate(ctx, "", email, Options{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = mg.Migrate(ctx, uid, "", Options{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = mg.Migrate(ctx, legacy, email, Options{})
	assert.ErrorIs(t, err, ErrSameKey)

	_, err = mg.Migrate(ctx, uid, email, Options{Mode: "bulk"})
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeTransactional, m)

	m, err = ParseMode("Sequential")
	require.NoError(t, err)
	assert.Equal(t, ModeSequential, m)

	_, err = ParseMode("bulk")
	assert.Error(t, err)
}

func TestResult_Print(t *testing.T) {
	m := newStore(t, map[string]map[string]interface{}{legacy: legacyPayload()})

	res, err := New(m, logging.Discard()).Migrate(ctx, uid, email, Options{})
	require.NoError(t, err)

	var out bytes.Buffer
	res.Print(&out)
	assert.Contains(t, out.String(), "Found legacy document users/"+legacy)
	assert.Contains(t, out.String(), "clientAccess: acme, mcs")
	assert.Contains(t, out.String(), "Migration complete.")
}
