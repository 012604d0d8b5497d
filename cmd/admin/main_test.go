package main

import (
	"bytes"
	"context"
	"testing"

	"canopy/internal/models"
	"canopy/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func runAdmin(t *testing.T, db *gorm.DB, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(func() (*gorm.DB, error) { return db, nil })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEnsurePublicMap(t *testing.T) {
	db := testutil.NewSQLiteDB(t)

	for range 2 {
		out, err := runAdmin(t, db, "ensure-public-map")
		require.NoError(t, err)
		assert.Contains(t, out, "Public map ready")
	}

	var n int64
	require.NoError(t, db.Model(&models.Map{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestCreateMapAndInvite(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	testutil.CreateUser(t, db, "Amina", "amina@example.com", models.RoleCustodian)
	testutil.CreateUser(t, db, "Baraka", "baraka@example.com", models.RoleCustodian)

	_, err := runAdmin(t, db, "ensure-public-map")
	require.NoError(t, err)

	out, err := runAdmin(t, db, "create-map", "Riverside", "--owner", "Amina@Example.com")
	require.NoError(t, err)
	assert.Contains(t, out, `Created map "Riverside"`)

	_, err = runAdmin(t, db, "create-map", "Riverside", "--owner", "amina@example.com")
	assert.ErrorContains(t, err, "A map with that name already exists")

	_, err = runAdmin(t, db, "create-map", "Nowhere", "--owner", "ghost@example.com")
	assert.Error(t, err)

	out, err = runAdmin(t, db, "invite", "Riverside", "baraka@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "baraka@example.com can now open")

	_, err = runAdmin(t, db, "invite", "Riverside", "ghost@example.com")
	assert.Error(t, err)

	out, err = runAdmin(t, db, "list-maps")
	require.NoError(t, err)
	assert.Contains(t, out, "(public)")
	assert.Regexp(t, `Riverside\s+amina@example\.com\s+baraka@example\.com`, out)
}

func TestListUsersAndCreateAdmin(t *testing.T) {
	t.Setenv("CANOPY_ADMIN_PASSWORD", "")
	db := testutil.NewSQLiteDB(t)

	out, err := runAdmin(t, db, "list-users")
	require.NoError(t, err)
	assert.Contains(t, out, "No users found")

	_, err = runAdmin(t, db, "create-admin", "--email", "ops@example.com")
	assert.ErrorContains(t, err, "CANOPY_ADMIN_PASSWORD")

	out, err = runAdmin(t, db, "create-admin", "--email", "ops@example.com", "--password", "password123")
	require.NoError(t, err)
	assert.Contains(t, out, "Created admin ops@example.com")

	out, err = runAdmin(t, db, "list-users")
	require.NoError(t, err)
	assert.Regexp(t, `ops@example\.com\s+ADMIN`, out)
}

func TestArgsValidated(t *testing.T) {
	db := testutil.NewSQLiteDB(t)

	_, err := runAdmin(t, db, "invite", "Riverside")
	assert.Error(t, err)

	_, err = runAdmin(t, db, "create-map", "Riverside")
	assert.Error(t, err, "--owner is required")
}
