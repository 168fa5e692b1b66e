package role

import (
	"context"
	"path/filepath"
	"testing"
	"time"

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

// MockRoleRepository returns a fixed set of records for FindByName
type MockRoleRepository struct {
	InMemoryRoleRepository
	matches []Role
}

func (m *MockRoleRepository) FindByName(ctx context.Context, name string) ([]Role, error) {
	return m.matches, nil
}

func TestPermissionsForDefaultsToNotSet(t *testing.T) {
	service := NewRoleService(NewInMemoryRoleRepository())

	packed, err := service.PermissionsFor(context.Background(), "parent")
	require.NoError(t, err)
	assert.Equal(t, PermissionsNotSet, packed)
	assert.Equal(t, "0", packed)

	packed, err = service.PermissionsFor(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, PermissionsNotSet, packed)
}

func TestPermissionsForCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	service := NewRoleService(NewInMemoryRoleRepository())

	_, err := service.SetPermissions(ctx, "provider", []Permission{PermissionWorkshopRead, PermissionWorkshopEdit})
	require.NoError(t, err)

	packed, err := service.PermissionsFor(ctx, "Provider")
	require.NoError(t, err)
	assert.Equal(t, "20.21", packed)
}

func TestPermissionsForPrefersExactMatch(t *testing.T) {
	now := time.Now()
	repo := &MockRoleRepository{matches: []Role{
		{Name: "PROVIDER", Permissions: "10", UpdatedAt: now.Add(time.Hour)},
		{Name: "provider", Permissions: "11", UpdatedAt: now},
		{Name: "Provider", Permissions: "20", UpdatedAt: now.Add(2 * time.Hour)},
	}}
	service := NewRoleService(repo)

	packed, err := service.PermissionsFor(context.Background(), "provider")
	require.NoError(t, err)
	assert.Equal(t, "11", packed)

	packed, err = service.PermissionsFor(context.Background(), "pRoViDeR")
	require.NoError(t, err)
	assert.Equal(t, "20", packed, "most recently updated wins among inexact matches")
}

func TestSetPermissionsRejectsEmptyName(t *testing.T) {
	_, err := NewRoleService(NewInMemoryRoleRepository()).SetPermissions(context.Background(), " ", nil)
	assert.ErrorIs(t, err, ErrEmptyRoleName)
}

func TestPackUnpack(t *testing.T) {
	perms := []Permission{PermissionImpersonate, PermissionSystemManage}
	packed := Pack(perms)
	assert.Equal(t, "1.100", packed)

	unpacked, err := Unpack(packed)
	require.NoError(t, err)
	assert.Equal(t, perms, unpacked)

	_, err = Unpack("1.x")
	assert.Error(t, err)
}

func TestPostgresRoleRepository(t *testing.T) {
	pool, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	service := NewRoleService(NewPostgresRoleRepository(pool))

	created, err := service.SetPermissions(ctx, "ministryadmin", []Permission{PermissionProviderRead})
	require.NoError(t, err)
	assert.Equal(t, "10", created.Permissions)

	updated, err := service.SetPermissions(ctx, "ministryadmin", []Permission{PermissionProviderRead, PermissionProviderEdit})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)

	packed, err := service.PermissionsFor(ctx, "MinistryAdmin")
	require.NoError(t, err)
	assert.Equal(t, "10.11", packed)

	roles, err := service.ListRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 1)

	require.NoError(t, service.DeleteRole(ctx, "ministryadmin"))
	packed, err = service.PermissionsFor(ctx, "ministryadmin")
	require.NoError(t, err)
	assert.Equal(t, PermissionsNotSet, packed)
}
