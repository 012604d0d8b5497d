package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"canopy/internal/models"
	"canopy/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestTreeRepository_GetByID_ErrorMapping(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewTreeRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "trees" WHERE "trees"."id" = $1`)).
		WithArgs(5, 1).
		WillReturnError(gorm.ErrRecordNotFound)
	_, err := repo.GetByID(ctx, 5)
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "trees" WHERE "trees"."id" = $1`)).
		WithArgs(6, 1).
		WillReturnError(errors.New("connection reset"))
	_, err = repo.GetByID(ctx, 6)
	assert.True(t, models.IsCode(err, models.CodeInternal))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTreeRepository_List_FiltersByPlanter(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewTreeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "trees" WHERE trees.planter_id = $1 ORDER BY trees.created_at DESC, trees.id DESC`)).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "planter_id"}))

	trees, err := repo.List(context.Background(), ptr(uint(7)))
	require.NoError(t, err)
	assert.Empty(t, trees)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTreeRepository_CreateWithImageRoundTrip(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewTreeRepository(db)
	ctx := context.Background()

	planter := testutil.CreateUser(t, db, "Amina", "amina@example.com", models.RoleCustodian)
	caption := "first leaves"
	tree := &models.Tree{
		Species:   "Mangifera indica",
		Latitude:  -1.2921,
		Longitude: 36.8219,
		PlanterID: planter.ID,
		Images:    []models.TreeImage{{URL: "https://blobs.test/a.jpg", Caption: &caption}},
	}
	require.NoError(t, repo.Create(ctx, tree))
	require.NotZero(t, tree.ID)
	assert.Regexp(t, `^T-\d+-[0-9a-f]{8}$`, tree.TreeID)

	got, err := repo.GetByID(ctx, tree.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mangifera indica", got.Species)
	assert.Equal(t, -1.2921, got.Latitude)
	assert.Equal(t, 36.8219, got.Longitude)
	assert.Equal(t, models.TreeStatusPlanted, got.Status)
	assert.Equal(t, "Amina", got.Planter.Name)
	require.Len(t, got.Images, 1)
	assert.Equal(t, "https://blobs.test/a.jpg", got.Images[0].URL)

	require.NoError(t, repo.AppendImage(ctx, &models.TreeImage{TreeID: tree.ID, URL: "https://blobs.test/b.jpg"}))
	got, err = repo.GetByID(ctx, tree.ID)
	require.NoError(t, err)
	require.Len(t, got.Images, 2)
	assert.Equal(t, "https://blobs.test/b.jpg", got.Images[1].URL, "images are oldest first")
}

func TestTreeRepository_UpdateAndDelete(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewTreeRepository(db)
	ctx := context.Background()

	planter := testutil.CreateUser(t, db, "Amina", "amina@example.com", models.RoleCustodian)
	tree := testutil.CreateTree(t, db, planter.ID, "Acacia", -1.3, 36.8, time.Now())
	require.NoError(t, repo.AppendImage(ctx, &models.TreeImage{TreeID: tree.ID, URL: "u"}))
	require.NoError(t, db.Create(&models.TreeUpdate{TreeID: tree.ID, Description: "watered"}).Error)

	require.NoError(t, repo.Update(ctx, tree.ID, map[string]interface{}{"species": "Acacia tortilis"}))
	got, err := repo.GetByID(ctx, tree.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acacia tortilis", got.Species)

	err = repo.Update(ctx, 9999, map[string]interface{}{"species": "x"})
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	require.NoError(t, repo.Delete(ctx, tree.ID))
	_, err = repo.GetByID(ctx, tree.ID)
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	var images, updates int64
	db.Model(&models.TreeImage{}).Where("tree_id = ?", tree.ID).Count(&images)
	db.Model(&models.TreeUpdate{}).Where("tree_id = ?", tree.ID).Count(&updates)
	assert.Zero(t, images)
	assert.Zero(t, updates)

	assert.True(t, models.IsCode(repo.Delete(ctx, tree.ID), models.CodeNotFound))
}

func TestTreeRepository_RoleViews(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewTreeRepository(db)
	ctx := context.Background()

	a := testutil.CreateUser(t, db, "Amina", "amina@example.com", models.RoleCustodian)
	b := testutil.CreateUser(t, db, "Baraka", "baraka@example.com", models.RoleCustodian)

	older := testutil.CreateTree(t, db, a.ID, "Acacia", -1.3, 36.8, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := testutil.CreateTree(t, db, a.ID, "Croton", -1.3, 36.8, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	testutil.CreateTree(t, db, b.ID, "Cedar", -1.3, 36.8, time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC))

	first := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&models.TreeUpdate{TreeID: newer.ID, Description: "planted", CreatedAt: first}).Error)
	require.NoError(t, db.Create(&models.TreeUpdate{TreeID: newer.ID, Description: "watered", CreatedAt: first.Add(time.Hour)}).Error)
	require.NoError(t, db.Create(&models.TreeImage{TreeID: older.ID, URL: "old.jpg", CreatedAt: first}).Error)
	require.NoError(t, db.Create(&models.TreeImage{TreeID: older.ID, URL: "new.jpg", CreatedAt: first.Add(time.Hour)}).Error)

	mine, err := repo.ListForCustodian(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, newer.ID, mine[0].ID, "planted date descending")
	require.Len(t, mine[0].Updates, 2)
	assert.Equal(t, "watered", mine[0].Updates[0].Description)

	all, err := repo.ListForSupplier(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Cedar", all[2].Species)
	assert.Equal(t, "Amina", all[0].Planter.Name)
	require.Len(t, all[1].Images, 2)
	assert.Equal(t, "new.jpg", all[1].Images[0].URL, "supplier view sees newest image first")
}

func ptr[T any](v T) *T { return &v }
