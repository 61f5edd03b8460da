package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/himpower2025/eps-topik-mate/internal/events"
	"github.com/himpower2025/eps-topik-mate/internal/models"
	"github.com/himpower2025/eps-topik-mate/internal/repositories"
	"github.com/himpower2025/eps-topik-mate/internal/utils"
	"github.com/himpower2025/eps-topik-mate/internal/validator"
)

// planPrices maps each paid tier to its price in minor currency units
// (KRW).
var planPrices = map[models.PlanTier]int64{
	models.PlanOneMonth:   9900,
	models.PlanThreeMonth: 24900,
	models.PlanSixMonth:   44900,
}

// verifyDelay simulates gateway round-trip latency in the stub
// verifier.
const verifyDelay = 2 * time.Second

type paymentService struct {
	repo      repositories.Repository
	publisher events.EventPublisher
	validator *validator.Validator
	logger    utils.Logger
	now       func() time.Time
	delay     time.Duration
}

func NewPaymentService(
	repo repositories.Repository,
	publisher events.EventPublisher,
	v *validator.Validator,
	logger utils.Logger,
) PaymentService {
	return &paymentService{
		repo:      repo,
		publisher: publisher,
		validator: v,
		logger:    logger,
		now:       time.Now,
		delay:     verifyDelay,
	}
}

// Initiate records a pending payment attempt. The attempt row is
// write-once; only Verify moves it forward.
func (s *paymentService) Initiate(ctx context.Context, userID string, req InitiatePaymentRequest) (*PaymentResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	amount, ok := planPrices[req.Plan]
	if !ok {
		return nil, ErrPaymentNotFound
	}

	if _, err := s.repo.User().GetByID(ctx, userID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	attempt := &models.PaymentAttempt{
		RequestID: uuid.New().String(),
		UserID:    userID,
		Plan:      req.Plan,
		Amount:    amount,
		Status:    models.PaymentPending,
	}
	if err := s.repo.Payment().Create(ctx, attempt); err != nil {
		return nil, err
	}

	s.logger.Info("payment initiated",
		"request_id", attempt.RequestID,
		"user_id", userID,
		"plan", req.Plan,
		"amount", amount)

	return &PaymentResponse{Attempt: attempt}, nil
}

// Verify completes a pending attempt and upgrades the profile. The
// verifier is a stub: it always succeeds after a fixed delay standing
// in for the gateway round trip. An active subscription is extended
// from its current expiry rather than reset.
func (s *paymentService) Verify(ctx context.Context, userID, requestID string) (*ProfileResponse, error) {
	attempt, err := s.repo.Payment().GetByID(ctx, requestID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if attempt.UserID != userID {
		return nil, NewPermissionError(userID, requestID, "payment", "verify", "not owned by user")
	}
	if attempt.Status != models.PaymentPending {
		return nil, ErrPaymentNotPending
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.delay):
	}

	var upgraded *models.User
	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		now := s.now()
		if err := tx.Payment().UpdateStatus(ctx, requestID, models.PaymentCompleted, &now); err != nil {
			return err
		}

		user, err := tx.User().GetByID(ctx, userID)
		if err != nil {
			return err
		}

		base := now
		if user.SubscriptionActive(now) {
			base = *user.SubscriptionExpiry
		}
		expiry := base.Add(models.PlanDuration(attempt.Plan))

		user.Plan = attempt.Plan
		user.SubscriptionExpiry = &expiry
		if err := tx.User().Update(ctx, user); err != nil {
			return err
		}

		upgraded = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishPaymentCompleted(ctx, attempt)
	s.publishProfileUpdated(ctx, upgraded)

	s.logger.Info("payment verified",
		"request_id", requestID,
		"user_id", userID,
		"plan", attempt.Plan,
		"expiry", upgraded.SubscriptionExpiry)

	return &ProfileResponse{
		User:               upgraded,
		SubscriptionActive: upgraded.SubscriptionActive(s.now()),
	}, nil
}

func (s *paymentService) GetHistory(ctx context.Context, userID string, filters repositories.PaymentFilters) ([]*models.PaymentAttempt, int64, error) {
	return s.repo.Payment().GetByUser(ctx, userID, filters)
}

func (s *paymentService) publishPaymentCompleted(ctx context.Context, attempt *models.PaymentAttempt) {
	event, err := events.NewEvent(events.EventPaymentCompleted, events.PaymentCompletedPayload{
		RequestID: attempt.RequestID,
		UserID:    attempt.UserID,
		Plan:      attempt.Plan,
		Amount:    attempt.Amount,
	})
	if err != nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish payment completed event", "request_id", attempt.RequestID, "error", err)
	}
}

func (s *paymentService) publishProfileUpdated(ctx context.Context, user *models.User) {
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
