package consent

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDatabase(t *testing.T) (*pgxpool.Pool, func()) {
	if testing.Short() {
		t.Skip("skipping postgres test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithInitScripts(filepath.Join("../../migrations", "idm_db.sql")),
		postgres.WithDatabase("idm_db"),
		postgres.WithUsername("idm"),
		postgres.WithPassword("pwd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	poolConfig, err := pgxpool.ParseConfig(connString)
	require.NoError(t, err)
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}
	return pool, cleanup
}

// steppingClock advances one second per call so records get distinct creation times
func steppingClock() func() time.Time {
	now := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func exerciseLedger(t *testing.T, repo Repository) {
	ctx := context.Background()
	ledger := NewLedger(repo, WithClock(steppingClock()))

	first, err := ledger.Ensure(ctx, "sub-1", "web", []string{"openid", "profile"})
	require.NoError(t, err)
	assert.Equal(t, StatusValid, first.Status)
	assert.Equal(t, TypePermanent, first.Type)

	again, err := ledger.Ensure(ctx, "sub-1", "web", []string{"openid"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID, "covered request reuses the record")

	records, err := ledger.ValidPermanent(ctx, "sub-1", "web", []string{"openid"})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	// wider scopes are not covered
	wider, err := ledger.Ensure(ctx, "sub-1", "web", []string{"openid", "profile", "roles"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, wider.ID)

	// both now cover openid; the latest wins
	latest, err := ledger.Ensure(ctx, "sub-1", "web", []string{"openid"})
	require.NoError(t, err)
	assert.Equal(t, wider.ID, latest.ID)

	records, err = ledger.FindConsent(ctx, "sub-1", "web", StatusValid, TypePermanent, []string{"openid"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, first.ID, records[0].ID)
	assert.Equal(t, wider.ID, records[1].ID)

	none, err := ledger.FindConsent(ctx, "sub-1", "mobile", StatusValid, TypePermanent, nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	ext, err := ledger.CreateConsent(ctx, "sub-2", "portal", TypeExternal, []string{"openid"})
	require.NoError(t, err)
	records, err = ledger.FindConsent(ctx, "sub-2", "portal", StatusValid, "", nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ext.ID, records[0].ID)
	records, err = ledger.ValidPermanent(ctx, "sub-2", "portal", nil)
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, ledger.Revoke(ctx, wider.ID))
	latest, err = ledger.Ensure(ctx, "sub-1", "web", []string{"openid"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, latest.ID, "revoked records are skipped")

	assert.ErrorIs(t, ledger.Revoke(ctx, uuid.New()), ErrConsentNotFound)

	records, err = ledger.ValidPermanent(ctx, "sub-1", "web", []string{"openid"})
	require.NoError(t, err)
	reused, err := ledger.Reuse(ctx, records, "sub-1", "web", []string{"openid"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, reused.ID)

	n, err := ledger.RevokeClient(ctx, "sub-2", "portal")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	records, err = ledger.FindConsent(ctx, "sub-2", "portal", StatusValid, "", nil)
	require.NoError(t, err)
	assert.Empty(t, records)

	created, err := ledger.Reuse(ctx, nil, "sub-2", "portal", []string{"openid"})
	require.NoError(t, err)
	assert.Equal(t, TypePermanent, created.Type)
	assert.NotEqual(t, ext.ID, created.ID)
}

func TestLedgerInMemory(t *testing.T) {
	exerciseLedger(t, NewInMemoryRepository())
}

func TestLedgerPostgres(t *testing.T) {
	pool, cleanup := setupTestDatabase(t)
	defer cleanup()

	exerciseLedger(t, NewPostgresRepository(pool))
}

func TestLatestTieBreakByID(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := Record{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), CreatedAt: created}
	b := Record{ID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), CreatedAt: created}

	records := []Record{b, a}
	sortByCreated(records)
	latest, ok := Latest(records)
	require.True(t, ok)
	assert.Equal(t, b.ID, latest.ID)

	_, ok = Latest(nil)
	assert.False(t, ok)
}

func TestCovers(t *testing.T) {
	r := Record{Scopes: []string{"openid", "profile"}}
	assert.True(t, r.Covers(nil))
	assert.True(t, r.Covers([]string{"profile"}))
	assert.False(t, r.Covers([]string{"profile", "email"}))
}
