package repository

import (
	"context"
	"sync"
	"testing"

	"canopy/internal/models"
	"canopy/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapRepository_FirstOrCreatePublic_Idempotent(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewMapRepository(db)
	ctx := context.Background()

	first, created, err := repo.FirstOrCreatePublic(ctx)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, first.IsPublic())

	second, created, err := repo.FirstOrCreatePublic(ctx)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	db.Model(&models.Map{}).Where("name = ?", models.PublicMapName).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestMapRepository_FirstOrCreatePublic_Concurrent(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewMapRepository(db)

	var wg sync.WaitGroup
	ids := make([]uint, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, _, err := repo.FirstOrCreatePublic(context.Background())
			if assert.NoError(t, err) {
				ids[i] = m.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestMapRepository_VisibilityAndInvites(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewMapRepository(db)
	ctx := context.Background()

	owner := testutil.CreateUser(t, db, "Owner", "owner@example.com", models.RoleCustodian)
	guest := testutil.CreateUser(t, db, "Guest", "guest@example.com", models.RoleSupplier)
	stranger := testutil.CreateUser(t, db, "Stranger", "stranger@example.com", models.RoleCustodian)

	_, _, err := repo.FirstOrCreatePublic(ctx)
	require.NoError(t, err)
	private := &models.Map{Name: "Karura Forest", OwnerID: &owner.ID}
	require.NoError(t, repo.Create(ctx, private))

	err = repo.Create(ctx, &models.Map{Name: "Karura Forest", OwnerID: &guest.ID})
	assert.True(t, models.IsCode(err, models.CodeValidation))

	require.NoError(t, repo.Invite(ctx, private, guest))
	require.NoError(t, repo.Invite(ctx, private, guest), "repeat invitation is a no-op")

	loaded, err := repo.GetByName(ctx, "Karura Forest")
	require.NoError(t, err)
	require.Len(t, loaded.InvitedUsers, 1)
	assert.True(t, loaded.VisibleTo(guest.ID))
	assert.False(t, loaded.VisibleTo(stranger.ID))

	names := func(userID uint) []string {
		maps, err := repo.ListVisible(ctx, userID)
		require.NoError(t, err)
		out := make([]string, 0, len(maps))
		for _, m := range maps {
			out = append(out, m.Name)
		}
		return out
	}
	assert.Equal(t, []string{"Public", "Karura Forest"}, names(owner.ID))
	assert.Equal(t, []string{"Public", "Karura Forest"}, names(guest.ID))
	assert.Equal(t, []string{"Public"}, names(stranger.ID))

	_, err = repo.GetByName(ctx, "Nowhere")
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}
