package services

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by services. Handlers map these to HTTP
// status codes.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrPaymentNotFound = errors.New("payment attempt not found")

	ErrSessionNotActive        = errors.New("session is not active")
	ErrSessionAlreadyFinalized = errors.New("session is already finalized")
	ErrAudioNotUnlocked        = errors.New("audio playback has not been unlocked")
	ErrInvalidQuestionIndex    = errors.New("question index out of range")
	ErrInvalidOptionIndex      = errors.New("option index out of range")

	ErrNoExamsRemaining       = errors.New("no free exams remaining")
	ErrActiveSessionExists    = errors.New("an active session already exists")
	ErrQuestionSetUnavailable = errors.New("no question set available")
	ErrStaleMediaEpoch        = errors.New("media request carries a stale epoch")
	ErrMediaNotReady          = errors.New("media is not ready yet")

	ErrSyncInFlight        = errors.New("profile sync already in flight")
	ErrIdentityNotFound    = errors.New("identity not found")
	ErrPaymentNotPending   = errors.New("payment attempt is not pending")
	ErrFeedbackUnavailable = errors.New("feedback generation unavailable")
)

// PermissionError marks an operation attempted on a resource the caller
// does not own.
type PermissionError struct {
	UserID     string
	ResourceID string
	Resource   string
	Action     string
	Reason     string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %s: %s",
		e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func NewPermissionError(userID, resourceID, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// IsPermissionError reports whether err is a permission failure.
func IsPermissionError(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}
