package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/campaignboard/internal/campaigns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSQLiteService(t *testing.T, capacity int, strict bool) *campaigns.Service {
	t.Helper()
	db, err := OpenInMemorySQLite(zap.NewNop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	repository, err := NewRepository(db, capacity)
	require.NoError(t, err)

	service, err := campaigns.NewService(campaigns.ServiceConfig{
		Repository:       repository,
		Clock:            func() time.Time { return time.Unix(1750000000, 123) },
		IDProvider:       campaigns.NewUUIDProvider(),
		StrictReferences: strict,
	})
	require.NoError(t, err)
	return service
}

func TestNewRepositoryValidatesArguments(t *testing.T) {
	_, err := NewRepository(nil, 10)
	assert.ErrorIs(t, err, errMissingDatabase)

	db, err := OpenInMemorySQLite(nil)
	require.NoError(t, err)
	_, err = NewRepository(db, 0)
	assert.ErrorIs(t, err, campaigns.ErrInvalidCapacity)
}

func TestOpenInMemorySQLiteIsolatesDatabases(t *testing.T) {
	ctx := context.Background()
	first := newSQLiteService(t, campaigns.DefaultActivityCapacity, false)
	second := newSQLiteService(t, campaigns.DefaultActivityCapacity, false)

	_, err := first.CreateCampaign(ctx, campaigns.CampaignFields{Name: "only-in-first"})
	require.NoError(t, err)

	listed, err := second.ListCampaigns(ctx)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestSQLiteRepositoryCampaignLifecycle(t *testing.T) {
	ctx := context.Background()
	service := newSQLiteService(t, campaigns.DefaultActivityCapacity, false)

	campaign, err := service.CreateCampaign(ctx, campaigns.CampaignFields{
		Name:      "Launch",
		Goal:      "Grow awareness",
		StartDate: "2025-06-01",
		EndDate:   "2025-08-31",
	})
	require.NoError(t, err)
	require.NotEmpty(t, campaign.ID)

	loaded, err := service.GetCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, campaign.Name, loaded.Name)
	assert.Equal(t, campaign.Goal, loaded.Goal)
	assert.True(t, campaign.CreatedAt.Equal(loaded.CreatedAt))

	post, err := service.CreatePost(ctx, campaign.ID, campaigns.PostFields{
		Platform:     "Twitter",
		Caption:      "Hello",
		ScheduleDate: "2025-06-01T10:00",
	})
	require.NoError(t, err)

	posts, err := service.ListPosts(ctx, campaign.ID)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, post, posts[0])

	activities, err := service.ListActivities(ctx)
	require.NoError(t, err)
	require.Len(t, activities, 2)
	assert.Equal(t, campaigns.ActivityPostCreated, activities[0].Type)
	assert.Equal(t, "Twitter", activities[0].Platform)
	assert.Equal(t, "Launch", activities[0].CampaignName)
	assert.Equal(t, campaigns.ActivityCampaignCreated, activities[1].Type)

	deleted, err := service.DeleteCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	listed, err := service.ListCampaigns(ctx)
	require.NoError(t, err)
	assert.Empty(t, listed)

	posts, err = service.ListPosts(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Empty(t, posts)

	activities, err = service.ListActivities(ctx)
	require.NoError(t, err)
	assert.Equal(t, campaigns.ActivityCampaignDeleted, activities[0].Type)
	assert.Equal(t, "Launch", activities[0].CampaignName)
}

func TestSQLiteRepositoryPreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	service := newSQLiteService(t, campaigns.DefaultActivityCapacity, false)

	names := []string{"zeta", "alpha", "mid"}
	for _, name := range names {
		_, err := service.CreateCampaign(ctx, campaigns.CampaignFields{Name: name})
		require.NoError(t, err)
	}

	listed, err := service.ListCampaigns(ctx)
	require.NoError(t, err)
	require.Len(t, listed, len(names))
	for index, name := range names {
		assert.Equal(t, name, listed[index].Name)
	}
}

func TestSQLiteRepositoryBoundsActivityLog(t *testing.T) {
	ctx := context.Background()
	const capacity = 5
	service := newSQLiteService(t, capacity, false)

	for index := 0; index < capacity+3; index++ {
		_, err := service.CreateCampaign(ctx, campaigns.CampaignFields{Name: fmt.Sprintf("c%d", index)})
		require.NoError(t, err)
	}

	activities, err := service.ListActivities(ctx)
	require.NoError(t, err)
	require.Len(t, activities, capacity)
	assert.Equal(t, "c7", activities[0].CampaignName)
	assert.Equal(t, "c3", activities[capacity-1].CampaignName)
}

func TestSQLiteRepositoryOrphanPolicy(t *testing.T) {
	ctx := context.Background()

	permissive := newSQLiteService(t, campaigns.DefaultActivityCapacity, false)
	post, err := permissive.CreatePost(ctx, "unknown", campaigns.PostFields{Platform: "Facebook"})
	require.NoError(t, err)
	assert.Equal(t, "unknown", post.CampaignID)

	strict := newSQLiteService(t, campaigns.DefaultActivityCapacity, true)
	_, err = strict.CreatePost(ctx, "unknown", campaigns.PostFields{Platform: "Facebook"})
	assert.ErrorIs(t, err, campaigns.ErrCampaignNotFound)

	activities, err := strict.ListActivities(ctx)
	require.NoError(t, err)
	assert.Empty(t, activities)
}

func TestSQLiteRepositoryIdempotentDeletes(t *testing.T) {
	ctx := context.Background()
	service := newSQLiteService(t, campaigns.DefaultActivityCapacity, false)

	campaign, err := service.CreateCampaign(ctx, campaigns.CampaignFields{Name: "Launch"})
	require.NoError(t, err)

	deleted, err := service.DeleteCampaign(ctx, "missing")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = service.DeletePost(ctx, campaign.ID, "missing")
	require.NoError(t, err)
	assert.True(t, deleted)

	activities, err := service.ListActivities(ctx)
	require.NoError(t, err)
	assert.Len(t, activities, 1)
}

func TestSQLiteRepositorySeed(t *testing.T) {
	ctx := context.Background()
	service := newSQLiteService(t, campaigns.DefaultActivityCapacity, false)

	set, err := campaigns.DemoSeed()
	require.NoError(t, err)
	require.NoError(t, service.Seed(ctx, set))

	snapshot, err := service.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot.Campaigns, 1)
	assert.Len(t, snapshot.Posts[snapshot.Campaigns[0].ID], 1)
	assert.Empty(t, snapshot.Activities)
}

func TestSQLiteRepositoryOrphanBuckets(t *testing.T) {
	ctx := context.Background()
	service := newSQLiteService(t, campaigns.DefaultActivityCapacity, false)

	campaign, err := service.CreateCampaign(ctx, campaigns.CampaignFields{Name: "Launch"})
	require.NoError(t, err)
	orphan, err := service.CreatePost(ctx, "ghost", campaigns.PostFields{Platform: "Instagram"})
	require.NoError(t, err)

	deleted, err := service.DeleteCampaign(ctx, "ghost")
	require.NoError(t, err)
	assert.True(t, deleted)

	snapshot, err := service.Snapshot(ctx)
	require.NoError(t, err)
	require.Contains(t, snapshot.Posts, "ghost")
	assert.Equal(t, orphan.ID, snapshot.Posts["ghost"][0].ID)
	assert.NotNil(t, snapshot.Posts[campaign.ID])
	assert.Empty(t, snapshot.Posts[campaign.ID])
	assert.Len(t, snapshot.Activities, 2)
}
