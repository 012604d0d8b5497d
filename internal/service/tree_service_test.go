package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"canopy/internal/cache"
	"canopy/internal/models"
	"canopy/internal/notifications"
	"canopy/internal/repository"
	"canopy/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type treeFixture struct {
	db    *gorm.DB
	store *testutil.BlobStoreStub
	svc   *TreeService
}

func newTreeFixture(t *testing.T, withStore bool) *treeFixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	f := &treeFixture{db: db}

	var images *ImageService
	if withStore {
		f.store = testutil.NewBlobStoreStub()
		images = newImageService(f.store, "")
	} else {
		images = newImageService(nil, "")
	}
	f.svc = NewTreeService(repository.NewTreeRepository(db), images)
	return f
}

func countTrees(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Tree{}).Count(&n).Error)
	return n
}

func TestTreeService_CreateRoundTrip(t *testing.T) {
	f := newTreeFixture(t, false)
	planter := testutil.CreateUser(t, f.db, "Wanjiru", "wanjiru@example.com", models.RoleCustodian)

	created, err := f.svc.Create(context.Background(), CreateTreeInput{
		PlanterID: planter.ID,
		Species:   "Mangifera indica",
		Latitude:  -1.2921,
		Longitude: 36.8219,
	})
	require.NoError(t, err)

	got, err := f.svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mangifera indica", got.Species)
	assert.Equal(t, -1.2921, got.Latitude)
	assert.Equal(t, 36.8219, got.Longitude)
	assert.Equal(t, models.TreeStatusPlanted, got.Status)
	assert.Equal(t, planter.ID, got.Planter.ID)
	assert.NotEmpty(t, got.TreeID)
	assert.Empty(t, got.Images, "no blob store means no images")
}

func TestTreeService_CreateValidation(t *testing.T) {
	f := newTreeFixture(t, true)
	planter := testutil.CreateUser(t, f.db, "Wanjiru", "wanjiru@example.com", models.RoleCustodian)

	tests := []struct {
		name string
		in   CreateTreeInput
		code string
	}{
		{"Missing species", CreateTreeInput{PlanterID: planter.ID, Latitude: 1, Longitude: 1}, models.CodeValidation},
		{"Latitude out of range", CreateTreeInput{PlanterID: planter.ID, Species: "Acacia", Latitude: 91, Longitude: 1}, models.CodeValidation},
		{"Longitude out of range", CreateTreeInput{PlanterID: planter.ID, Species: "Acacia", Latitude: 1, Longitude: -181}, models.CodeValidation},
		{"No planter", CreateTreeInput{Species: "Acacia", Latitude: 1, Longitude: 1}, models.CodeUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tt.in)
			require.Error(t, err)
			assert.True(t, models.IsCode(err, tt.code), err.Error())
		})
	}
	assert.Zero(t, countTrees(t, f.db))
	assert.Zero(t, f.store.Count())
}

func TestTreeService_CreateWithImage(t *testing.T) {
	f := newTreeFixture(t, true)
	planter := testutil.CreateUser(t, f.db, "Wanjiru", "wanjiru@example.com", models.RoleCustodian)
	plantedAt := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	created, err := f.svc.Create(context.Background(), CreateTreeInput{
		PlanterID: planter.ID,
		Species:   "Ficus benjamina",
		Latitude:  -1.3,
		Longitude: 36.8,
		PlantedAt: &plantedAt,
		Image:     &UploadImageInput{Filename: "ficus.png", Content: testutil.TinyPNG(t, 10, 10)},
	})
	require.NoError(t, err)

	require.Len(t, created.Images, 1)
	assert.Contains(t, created.Images[0].URL, "https://blobs.test/plants/plant-")
	assert.True(t, plantedAt.Equal(created.PlantedDate))
}

func TestTreeService_CreateSurvivesImageFailure(t *testing.T) {
	f := newTreeFixture(t, true)
	f.store.Err = errors.New("upstream timeout")
	planter := testutil.CreateUser(t, f.db, "Wanjiru", "wanjiru@example.com", models.RoleCustodian)

	created, err := f.svc.Create(context.Background(), CreateTreeInput{
		PlanterID: planter.ID,
		Species:   "Ficus benjamina",
		Latitude:  -1.3,
		Longitude: 36.8,
		Image:     &UploadImageInput{Filename: "ficus.png", Content: testutil.TinyPNG(t, 10, 10)},
	})
	require.NoError(t, err)
	assert.Empty(t, created.Images)
	assert.EqualValues(t, 1, countTrees(t, f.db))

	_, err = f.svc.Create(context.Background(), CreateTreeInput{
		PlanterID: planter.ID,
		Species:   "Ficus benjamina",
		Latitude:  -1.3,
		Longitude: 36.8,
		Image:     &UploadImageInput{Filename: "notes.txt", Content: []byte("plain text")},
	})
	require.NoError(t, err, "an undecodable image is dropped too")
	assert.EqualValues(t, 2, countTrees(t, f.db))
}

func TestTreeService_OwnershipChecks(t *testing.T) {
	f := newTreeFixture(t, false)
	owner := testutil.CreateUser(t, f.db, "Owner", "owner@example.com", models.RoleCustodian)
	other := testutil.CreateUser(t, f.db, "Other", "other@example.com", models.RoleCustodian)
	tree := testutil.CreateTree(t, f.db, owner.ID, "Acacia", 1, 2, time.Now())

	renamed := "Renamed"
	_, err := f.svc.Update(context.Background(), UpdateTreeInput{UserID: other.ID, TreeID: tree.ID, Species: &renamed})
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeForbidden))

	err = f.svc.Delete(context.Background(), other.ID, tree.ID)
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeForbidden))

	unchanged, err := f.svc.Get(context.Background(), tree.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acacia", unchanged.Species)

	_, err = f.svc.Update(context.Background(), UpdateTreeInput{UserID: other.ID, TreeID: 9999, Species: &renamed})
	assert.True(t, models.IsCode(err, models.CodeNotFound), "a missing tree is 404 before ownership is considered")
}

func TestTreeService_UpdateAndDelete(t *testing.T) {
	f := newTreeFixture(t, true)
	owner := testutil.CreateUser(t, f.db, "Owner", "owner@example.com", models.RoleCustodian)
	tree := testutil.CreateTree(t, f.db, owner.ID, "Acacia", 1, 2, time.Now())

	species, status := "Acacia tortilis", "GROWING"
	updated, err := f.svc.Update(context.Background(), UpdateTreeInput{
		UserID:  owner.ID,
		TreeID:  tree.ID,
		Species: &species,
		Status:  &status,
		Image:   &UploadImageInput{Filename: "growth.png", Content: testutil.TinyPNG(t, 8, 8)},
	})
	require.NoError(t, err)
	assert.Equal(t, species, updated.Species)
	assert.Equal(t, status, updated.Status)
	assert.Len(t, updated.Images, 1)

	empty := "  "
	_, err = f.svc.Update(context.Background(), UpdateTreeInput{UserID: owner.ID, TreeID: tree.ID, Status: &empty})
	assert.True(t, models.IsCode(err, models.CodeValidation))

	require.NoError(t, f.svc.Delete(context.Background(), owner.ID, tree.ID))
	_, err = f.svc.Get(context.Background(), tree.ID)
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	var images int64
	require.NoError(t, f.db.Model(&models.TreeImage{}).Count(&images).Error)
	assert.Zero(t, images)
}

func TestTreeService_RoleViews(t *testing.T) {
	f := newTreeFixture(t, false)
	amina := testutil.CreateUser(t, f.db, "Amina", "amina@example.com", models.RoleCustodian)
	juma := testutil.CreateUser(t, f.db, "Juma", "juma@example.com", models.RoleCustodian)

	older := testutil.CreateTree(t, f.db, amina.ID, "Acacia", 1, 1, time.Now().Add(-48*time.Hour))
	newer := testutil.CreateTree(t, f.db, amina.ID, "Croton", 2, 2, time.Now().Add(-time.Hour))
	testutil.CreateTree(t, f.db, juma.ID, "Grevillea", 3, 3, time.Now().Add(-24*time.Hour))

	caption := "first leaves"
	require.NoError(t, f.db.Create(&models.TreeImage{TreeID: newer.ID, URL: "https://blobs.test/a.jpg", Caption: &caption}).Error)
	require.NoError(t, f.db.Create(&models.TreeUpdate{TreeID: newer.ID, Description: "watered", CreatedAt: time.Now().Add(-time.Hour)}).Error)
	require.NoError(t, f.db.Create(&models.TreeUpdate{TreeID: newer.ID, Description: "pruned", CreatedAt: time.Now()}).Error)

	mine, err := f.svc.CustodianTrees(context.Background(), amina.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, newer.ID, mine[0].ID)
	assert.Equal(t, older.ID, mine[1].ID)
	assert.Equal(t, []models.ImageRef{{URL: "https://blobs.test/a.jpg", Caption: "first leaves"}}, mine[0].Images)
	require.Len(t, mine[0].Updates, 2)
	assert.Equal(t, "pruned", mine[0].Updates[0].Description)
	assert.Empty(t, mine[1].Images)

	all, err := f.svc.SupplierTrees(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, newer.ID, all[0].ID)
	require.NotNil(t, all[0].Planter)
	assert.Equal(t, "Amina", all[0].Planter.Name)
	assert.ElementsMatch(t, []models.TreeRef{{ID: older.ID}, {ID: newer.ID}}, all[0].Planter.PlantedTrees)
	assert.Len(t, all[1].Planter.PlantedTrees, 1)
	assert.Equal(t, []models.ImageRef{}, all[1].Images)
}

func TestTreeService_InvalidatesPlanterCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache.SetClient(rdb)
	t.Cleanup(func() {
		cache.SetClient(nil)
		_ = rdb.Close()
	})

	f := newTreeFixture(t, false)
	planter := testutil.CreateUser(t, f.db, "Amina", "amina@example.com", models.RoleCustodian)
	planters := NewPlanterService(repository.NewUserRepository(f.db))

	first, err := planters.Planters(context.Background())
	require.NoError(t, err)
	assert.Empty(t, first)
	require.True(t, mr.Exists(cache.PlantersKey))

	_, err = f.svc.Create(context.Background(), CreateTreeInput{PlanterID: planter.ID, Species: "Acacia", Latitude: 1, Longitude: 1})
	require.NoError(t, err)
	assert.False(t, mr.Exists(cache.PlantersKey))

	second, err := planters.Planters(context.Background())
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, 1, second[0].Count)
}

func TestTreeService_PublishesChanges(t *testing.T) {
	f := newTreeFixture(t, false)
	hub := notifications.NewHub()
	f.svc.SetNotifier(notifications.NewNotifier(nil, hub))
	sub, err := hub.Subscribe(1)
	require.NoError(t, err)

	next := func() notifications.PlantersChanged {
		t.Helper()
		select {
		case ev := <-sub.Events():
			return ev
		case <-time.After(time.Second):
			t.Fatal("no change event")
			return notifications.PlantersChanged{}
		}
	}

	owner := testutil.CreateUser(t, f.db, "Owner", "owner@example.com", models.RoleCustodian)
	created, err := f.svc.Create(context.Background(), CreateTreeInput{
		PlanterID: owner.ID, Species: "Acacia", Latitude: 1, Longitude: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, notifications.PlantersChanged{
		Action: notifications.ActionCreated, TreeID: created.ID, PlanterID: owner.ID,
	}, next())

	status := "GROWING"
	_, err = f.svc.Update(context.Background(), UpdateTreeInput{UserID: owner.ID, TreeID: created.ID, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, notifications.ActionUpdated, next().Action)

	require.NoError(t, f.svc.Delete(context.Background(), owner.ID, created.ID))
	assert.Equal(t, notifications.ActionDeleted, next().Action)
}
