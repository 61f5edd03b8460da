package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himpower2025/eps-topik-mate/internal/cache"
	"github.com/himpower2025/eps-topik-mate/internal/events"
	"github.com/himpower2025/eps-topik-mate/internal/models"
	"github.com/himpower2025/eps-topik-mate/internal/repositories"
)

type profileSyncFixture struct {
	repo      *mockRepository
	publisher *events.MockEventPublisher
	service   *profileSyncService
	now       time.Time
}

func newProfileSyncFixture(t *testing.T) *profileSyncFixture {
	t.Helper()

	repo := newMockRepository()
	publisher := events.NewMockEventPublisher(slog.Default())

	svc := NewProfileSyncService(
		repo, publisher, nil, cache.NewCacheManager(nil), newTestLogger(), testExamConfig(),
	).(*profileSyncService)

	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	return &profileSyncFixture{repo: repo, publisher: publisher, service: svc, now: now}
}

func TestSync_CreatesDefaultProfile(t *testing.T) {
	f := newProfileSyncFixture(t)

	resp, err := f.service.Sync(context.Background(), repositories.Identity{
		ID:        "user-1",
		Name:      "Kim Minsu",
		Email:     "minsu@example.com",
		AvatarURL: "https://cdn.example.com/minsu.png",
	})
	require.NoError(t, err)

	assert.Equal(t, models.PlanFree, resp.User.Plan)
	assert.Equal(t, 3, resp.User.ExamsRemaining)
	assert.False(t, resp.SubscriptionActive)
	require.NotNil(t, resp.User.AvatarURL)

	published := f.publisher.GetPublishedEvents()
	require.Len(t, published, 1)
	assert.Equal(t, events.EventProfileUpdated, published[0].Type)
}

func TestSync_AdminPromotedOnFirstSignIn(t *testing.T) {
	f := newProfileSyncFixture(t)

	resp, err := f.service.Sync(context.Background(), repositories.Identity{
		ID:    "admin-1",
		Name:  "Admin",
		Email: "admin@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, models.PlanThreeMonth, resp.User.Plan)
	require.NotNil(t, resp.User.SubscriptionExpiry)
	assert.Equal(t, f.now.Add(90*24*time.Hour), *resp.User.SubscriptionExpiry)
	assert.True(t, resp.SubscriptionActive)
}

func TestSync_AdminPromotionIsIdempotent(t *testing.T) {
	f := newProfileSyncFixture(t)
	identity := repositories.Identity{ID: "admin-1", Name: "Admin", Email: "admin@example.com"}

	first, err := f.service.Sync(context.Background(), identity)
	require.NoError(t, err)
	firstExpiry := *first.User.SubscriptionExpiry

	second, err := f.service.Sync(context.Background(), identity)
	require.NoError(t, err)

	// A repeated sync never re-grants or extends the promotion.
	assert.Equal(t, firstExpiry, *second.User.SubscriptionExpiry)
	assert.Len(t, f.publisher.GetPublishedEvents(), 1)
}

func TestSync_RefreshesIdentityFields(t *testing.T) {
	f := newProfileSyncFixture(t)
	f.repo.users.users["user-1"] = &models.User{
		ID:             "user-1",
		FullName:       "Old Name",
		Email:          "old@example.com",
		Plan:           models.PlanFree,
		ExamsRemaining: 2,
	}

	resp, err := f.service.Sync(context.Background(), repositories.Identity{
		ID:    "user-1",
		Name:  "New Name",
		Email: "new@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "New Name", resp.User.FullName)
	assert.Equal(t, "new@example.com", resp.User.Email)
	// Subscription state is untouched by an identity refresh.
	assert.Equal(t, 2, resp.User.ExamsRemaining)
}

func TestSync_UnchangedProfileWritesNothing(t *testing.T) {
	f := newProfileSyncFixture(t)
	f.repo.users.users["user-1"] = &models.User{
		ID:             "user-1",
		FullName:       "Kim Minsu",
		Email:          "minsu@example.com",
		Plan:           models.PlanFree,
		ExamsRemaining: 3,
	}

	_, err := f.service.Sync(context.Background(), repositories.Identity{
		ID:    "user-1",
		Name:  "Kim Minsu",
		Email: "minsu@example.com",
	})
	require.NoError(t, err)
	assert.Empty(t, f.publisher.GetPublishedEvents())
}

func TestSync_ResolvesSparseClaimsFromDirectory(t *testing.T) {
	f := newProfileSyncFixture(t)
	f.repo.identity.identities["user-1"] = &repositories.Identity{
		ID:        "user-1",
		Name:      "Kim Minsu",
		Email:     "minsu@example.com",
		AvatarURL: "https://cdn.example.com/minsu.png",
	}

	// Token carried only the subject id.
	resp, err := f.service.Sync(context.Background(), repositories.Identity{ID: "user-1"})
	require.NoError(t, err)

	assert.Equal(t, "Kim Minsu", resp.User.FullName)
	assert.Equal(t, "minsu@example.com", resp.User.Email)
	require.NotNil(t, resp.User.AvatarURL)
	assert.Equal(t, "https://cdn.example.com/minsu.png", *resp.User.AvatarURL)
}

func TestSync_UnknownIdentity(t *testing.T) {
	f := newProfileSyncFixture(t)

	_, err := f.service.Sync(context.Background(), repositories.Identity{ID: "ghost"})
	assert.ErrorIs(t, err, ErrIdentityNotFound)
}

func TestSync_SingleFlight(t *testing.T) {
	f := newProfileSyncFixture(t)
	gate := make(chan struct{})
	f.repo.users.getGate = gate
	f.repo.users.users["user-1"] = &models.User{
		ID:       "user-1",
		FullName: "Kim Minsu",
		Email:    "minsu@example.com",
		Plan:     models.PlanFree,
	}

	identity := repositories.Identity{ID: "user-1", Name: "Kim Minsu", Email: "minsu@example.com"}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = f.service.Sync(context.Background(), identity)
	}()

	// Wait until the first sync holds the per-user slot.
	require.Eventually(t, func() bool {
		f.service.mu.Lock()
		defer f.service.mu.Unlock()
		_, busy := f.service.inFlight["user-1"]
		return busy
	}, time.Second, time.Millisecond)

	_, err := f.service.Sync(context.Background(), identity)
	assert.ErrorIs(t, err, ErrSyncInFlight)

	close(gate)
	wg.Wait()

	// The slot is released once the first sync finishes.
	f.repo.users.getGate = nil
	_, err = f.service.Sync(context.Background(), identity)
	assert.NoError(t, err)
}

func TestRun_AppliesRemoteUpdates(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cacheManager := cache.NewCacheManager(client)

	repo := newMockRepository()
	bus := events.NewBus(slog.Default(), nil)
	defer bus.Close()

	svc := NewProfileSyncService(
		repo, bus, bus, cacheManager, newTestLogger(), testExamConfig(),
	).(*profileSyncService)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Run(ctx)
	}()

	// Give the Run goroutine a moment to register its subscription;
	// the gochannel bus drops events published before anyone listens.
	time.Sleep(200 * time.Millisecond)

	// Seed a cached profile snapshot, then publish a remote update.
	snapshot, err := json.Marshal(&models.User{ID: "user-1", Plan: models.PlanFree})
	require.NoError(t, err)
	require.NoError(t, mr.Set("profile:id:user-1", string(snapshot)))

	event, err := events.NewEvent(events.EventProfileUpdated, events.ProfileUpdatedPayload{
		UserID: "user-1",
		Plan:   models.PlanOneMonth,
	})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), event))

	// The stale snapshot is dropped so the next read sees remote state.
	require.Eventually(t, func() bool {
		return !mr.Exists("profile:id:user-1")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not stop on cancel")
	}
}
