package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/himpower2025/eps-topik-mate/internal/cache"
	"github.com/himpower2025/eps-topik-mate/internal/config"
	"github.com/himpower2025/eps-topik-mate/internal/events"
	"github.com/himpower2025/eps-topik-mate/internal/models"
	"github.com/himpower2025/eps-topik-mate/internal/repositories"
	"github.com/himpower2025/eps-topik-mate/internal/utils"
)

type profileSyncService struct {
	repo         repositories.Repository
	publisher    events.EventPublisher
	subscriber   events.EventSubscriber
	cacheManager *cache.CacheManager
	logger       utils.Logger
	examCfg      config.ExamConfig
	now          func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewProfileSyncService(
	repo repositories.Repository,
	publisher events.EventPublisher,
	subscriber events.EventSubscriber,
	cacheManager *cache.CacheManager,
	logger utils.Logger,
	examCfg config.ExamConfig,
) ProfileSyncService {
	return &profileSyncService{
		repo:         repo,
		publisher:    publisher,
		subscriber:   subscriber,
		cacheManager: cacheManager,
		logger:       logger,
		examCfg:      examCfg,
		now:          time.Now,
		inFlight:     make(map[string]struct{}),
	}
}

// Sync reconciles a confirmed identity with the local profile shadow.
// At most one sync per user runs at a time; a concurrent attempt is
// rejected rather than queued, since the first run produces the same
// result.
func (s *profileSyncService) Sync(ctx context.Context, identity repositories.Identity) (*ProfileResponse, error) {
	if !s.acquire(identity.ID) {
		return nil, ErrSyncInFlight
	}
	defer s.release(identity.ID)

	// Token claims may omit profile fields; the identity directory is
	// the authority for anything missing.
	if identity.Name == "" || identity.Email == "" {
		resolved, err := s.resolveIdentity(ctx, identity)
		if err != nil {
			return nil, err
		}
		identity = *resolved
	}

	user, err := s.repo.User().GetByID(ctx, identity.ID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return s.createProfile(ctx, identity)
		}
		return nil, err
	}

	changed := s.applyIdentity(user, identity)
	if s.promoteAdmin(user, identity.Email) {
		changed = true
	}

	if changed {
		if err := s.repo.User().Update(ctx, user); err != nil {
			return nil, err
		}
		s.publishProfileUpdated(ctx, user)
	}

	return s.profileResponse(user), nil
}

func (s *profileSyncService) GetProfile(ctx context.Context, userID string) (*ProfileResponse, error) {
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return s.profileResponse(user), nil
}

// Run consumes profile-updated events until ctx is cancelled. The
// event stream is the source of truth for cross-instance changes: on
// every update the cached snapshot is dropped so the next read sees
// the remote state, never an optimistic local copy.
func (s *profileSyncService) Run(ctx context.Context) error {
	ch, err := s.subscriber.Subscribe(ctx, events.EventProfileUpdated)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			var payload events.ProfileUpdatedPayload
			if err := json.Unmarshal(event.Payload, &payload); err != nil {
				s.logger.Warn("malformed profile updated event", "event_id", event.ID, "error", err)
				continue
			}
			cache.InvalidateProfileCache(ctx, s.cacheManager, payload.UserID)
			s.logger.Debug("applied remote profile update",
				"user_id", payload.UserID,
				"plan", payload.Plan,
				"exams_remaining", payload.ExamsRemaining)
		}
	}
}

// ===== INTERNAL =====

func (s *profileSyncService) acquire(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[userID]; busy {
		return false
	}
	s.inFlight[userID] = struct{}{}
	return true
}

func (s *profileSyncService) release(userID string) {
	s.mu.Lock()
	delete(s.inFlight, userID)
	s.mu.Unlock()
}

// resolveIdentity fills fields the token claims omitted from the
// identity directory.
func (s *profileSyncService) resolveIdentity(ctx context.Context, identity repositories.Identity) (*repositories.Identity, error) {
	directory, err := s.repo.Identity().GetByID(ctx, identity.ID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	if identity.Name == "" {
		identity.Name = directory.Name
	}
	if identity.Email == "" {
		identity.Email = directory.Email
	}
	if identity.AvatarURL == "" {
		identity.AvatarURL = directory.AvatarURL
	}
	return &identity, nil
}

// createProfile synthesizes the default profile for a first sign-in.
func (s *profileSyncService) createProfile(ctx context.Context, identity repositories.Identity) (*ProfileResponse, error) {
	user := &models.User{
		ID:             identity.ID,
		FullName:       identity.Name,
		Email:          identity.Email,
		Plan:           models.PlanFree,
		ExamsRemaining: s.examCfg.FreeExamCount,
	}
	if identity.AvatarURL != "" {
		user.AvatarURL = &identity.AvatarURL
	}
	s.promoteAdmin(user, identity.Email)

	if err := s.repo.User().Create(ctx, user); err != nil {
		return nil, err
	}
	s.publishProfileUpdated(ctx, user)

	s.logger.Info("profile created",
		"user_id", user.ID,
		"plan", user.Plan,
		"exams_remaining", user.ExamsRemaining)

	return s.profileResponse(user), nil
}

func (s *profileSyncService) applyIdentity(user *models.User, identity repositories.Identity) bool {
	changed := false
	if identity.Name != "" && identity.Name != user.FullName {
		user.FullName = identity.Name
		changed = true
	}
	if identity.Email != "" && identity.Email != user.Email {
		user.Email = identity.Email
		changed = true
	}
	if identity.AvatarURL != "" && (user.AvatarURL == nil || *user.AvatarURL != identity.AvatarURL) {
		user.AvatarURL = &identity.AvatarURL
		changed = true
	}
	return changed
}

// promoteAdmin grants the configured admin account a 3-month plan.
// Idempotent: a profile already on a paid plan is left untouched.
func (s *profileSyncService) promoteAdmin(user *models.User, email string) bool {
	if s.examCfg.AdminEmail == "" || email != s.examCfg.AdminEmail {
		return false
	}
	if user.Plan.IsPaid() {
		return false
	}
	expiry := s.now().Add(models.PlanDuration(models.PlanThreeMonth))
	user.Plan = models.PlanThreeMonth
	user.SubscriptionExpiry = &expiry
	return true
}

func (s *profileSyncService) publishProfileUpdated(ctx context.Context, user *models.User) {
	event, err := events.NewEvent(events.EventProfileUpdated, events.ProfileUpdatedPayload{
		UserID:             user.ID,
		Plan:               user.Plan,
		SubscriptionExpiry: user.SubscriptionExpiry,
		ExamsRemaining:     user.ExamsRemaining,
	})
	if err != nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish profile updated event", "user_id", user.ID, "error", err)
	}
}

func (s *profileSyncService) profileResponse(user *models.User) *ProfileResponse {
	return &ProfileResponse{
		User:               user,
		SubscriptionActive: user.SubscriptionActive(s.now()),
	}
}
