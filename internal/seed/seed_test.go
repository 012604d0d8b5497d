package seed

import (
	"testing"
	"time"

	"canopy/internal/models"
	"canopy/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTree_StaysInsideArea(t *testing.T) {
	opts := Options{DryRun: true, MaxDays: 30, RandSeed: 42}
	f := NewFactory(nil, opts)
	planter := &models.User{ID: 7}

	for i := 0; i < 50; i++ {
		tree := f.BuildTree(planter)
		assert.Equal(t, uint(7), tree.PlanterID)
		assert.Contains(t, Species, tree.Species)
		assert.True(t, DefaultArea.Contains(tree.Latitude, tree.Longitude), "%v,%v", tree.Latitude, tree.Longitude)
		assert.WithinDuration(t, time.Now(), tree.PlantedDate, 31*24*time.Hour)
	}
}

func TestBuildUser_DryRun(t *testing.T) {
	f := NewFactory(nil, Options{DryRun: true, SkipBcrypt: true, RandSeed: 1})

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		u, err := f.CreateUser(models.RoleSupplier)
		require.NoError(t, err)
		assert.NotZero(t, u.ID)
		assert.Equal(t, models.RoleSupplier, u.Role)
		assert.Regexp(t, `^[a-z0-9.]+@example\.org$`, u.Email)
		assert.False(t, seen[u.Email], "duplicate email %s", u.Email)
		seen[u.Email] = true
	}
}

func TestSeed(t *testing.T) {
	db := testutil.NewSQLiteDB(t)

	res, err := Seed(t.Context(), db, Options{
		NumPlanters:     6,
		TreesPerPlanter: 3,
		SupplierEvery:   3,
		SkipBcrypt:      true,
		RandSeed:        99,
	})
	require.NoError(t, err)
	assert.Equal(t, 8, res.Users)
	assert.GreaterOrEqual(t, res.Trees, 2+6)
	assert.LessOrEqual(t, res.Trees, 2+18)

	var suppliers int64
	require.NoError(t, db.Model(&models.User{}).Where("role = ?", models.RoleSupplier).Count(&suppliers).Error)
	assert.Equal(t, int64(3), suppliers)

	var trees int64
	require.NoError(t, db.Model(&models.Tree{}).Count(&trees).Error)
	assert.Equal(t, int64(res.Trees), trees)

	// A clean rerun starts over instead of piling up.
	res, err = Seed(t.Context(), db, Options{ShouldClean: true, SkipBcrypt: true})
	require.NoError(t, err)
	assert.Equal(t, &Result{Users: 2, Trees: 2}, res)
}
