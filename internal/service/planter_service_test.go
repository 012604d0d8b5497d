package service

import (
	"context"
	"testing"
	"time"

	"canopy/internal/cache"
	"canopy/internal/models"
	"canopy/internal/repository"
	"canopy/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanterService_Aggregate(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	svc := NewPlanterService(repository.NewUserRepository(db))

	amina := testutil.CreateUser(t, db, "Amina", "amina@example.com", models.RoleCustodian)
	juma := testutil.CreateUser(t, db, "Juma", "juma@example.com", models.RoleCustodian)
	testutil.CreateUser(t, db, "Idle", "idle@example.com", models.RoleSupplier)

	for i, species := range []string{"Acacia", "Croton", "Grevillea"} {
		testutil.CreateTree(t, db, amina.ID, species, float64(i), float64(i), time.Now())
	}
	testutil.CreateTree(t, db, juma.ID, "Markhamia", 4, 4, time.Now())

	got, err := svc.Planters(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	counts := map[uint]int{}
	for _, p := range got {
		assert.Len(t, p.Plants, p.Count)
		assert.Nil(t, p.ImageURL)
		counts[p.ID] = p.Count
	}
	assert.Equal(t, map[uint]int{amina.ID: 3, juma.ID: 1}, counts)
}

func TestPlanterService_Empty(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	svc := NewPlanterService(repository.NewUserRepository(db))

	got, err := svc.Planters(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestPlanterService_ServesFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache.SetClient(rdb)
	t.Cleanup(func() {
		cache.SetClient(nil)
		_ = rdb.Close()
	})

	db := testutil.NewSQLiteDB(t)
	svc := NewPlanterService(repository.NewUserRepository(db))
	amina := testutil.CreateUser(t, db, "Amina", "amina@example.com", models.RoleCustodian)
	testutil.CreateTree(t, db, amina.ID, "Acacia", 1, 1, time.Now())

	first, err := svc.Planters(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Written straight to the DB, so the cached aggregate does not see it.
	testutil.CreateTree(t, db, amina.ID, "Croton", 2, 2, time.Now())

	cached, err := svc.Planters(context.Background())
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, 1, cached[0].Count)
	assert.Equal(t, "Acacia", cached[0].Plants[0].Species)

	mr.FastForward(cache.PlantersTTL + time.Second)

	fresh, err := svc.Planters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fresh[0].Count)
}

// gatedUsers holds ListPlantersWithTrees after its read until release closes.
type gatedUsers struct {
	repository.UserRepository
	read    chan struct{}
	release chan struct{}
}

func (g *gatedUsers) ListPlantersWithTrees(ctx context.Context) ([]models.User, error) {
	users, err := g.UserRepository.ListPlantersWithTrees(ctx)
	close(g.read)
	<-g.release
	return users, err
}

func TestPlanterService_OverlappingCreateIsNotCachedStale(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache.SetClient(rdb)
	t.Cleanup(func() {
		cache.SetClient(nil)
		_ = rdb.Close()
	})

	f := newTreeFixture(t, false)
	amina := testutil.CreateUser(t, f.db, "Amina", "amina@example.com", models.RoleCustodian)
	testutil.CreateTree(t, f.db, amina.ID, "Acacia", 1, 1, time.Now())

	gated := &gatedUsers{
		UserRepository: repository.NewUserRepository(f.db),
		read:           make(chan struct{}),
		release:        make(chan struct{}),
	}
	slow := NewPlanterService(gated)

	done := make(chan []models.PlanterSummary, 1)
	go func() {
		got, err := slow.Planters(context.Background())
		assert.NoError(t, err)
		done <- got
	}()
	<-gated.read

	_, err := f.svc.Create(context.Background(), CreateTreeInput{
		PlanterID: amina.ID,
		Species:   "Croton",
		Latitude:  2,
		Longitude: 2,
	})
	require.NoError(t, err)
	close(gated.release)

	stale := <-done
	require.Len(t, stale, 1)
	assert.Equal(t, 1, stale[0].Count)

	got, err := NewPlanterService(repository.NewUserRepository(f.db)).Planters(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Count)
}
