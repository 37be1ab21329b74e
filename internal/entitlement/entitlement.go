// Package entitlement answers whether a user's plan permits paid features.
// Sharing a session requires an active paid subscription; the check is a
// collaborator consult, not re-derived by the access layer.
package entitlement

import (
	"context"

	"github.com/GracePathHQ/gracepath-web/internal/db"
)

// Service checks a user's feature entitlements
type Service interface {
	IsEntitledToShare(ctx context.Context, userID int64) (bool, error)
}

// DBService resolves entitlements from the subscriptions table
type DBService struct {
	db *db.DB
}

// NewDBService creates a subscription-backed entitlement service
func NewDBService(database *db.DB) *DBService {
	return &DBService{db: database}
}

// IsEntitledToShare reports whether the user holds an active, non-past-due
// subscription.
func (s *DBService) IsEntitledToShare(ctx context.Context, userID int64) (bool, error) {
	sub, err := s.db.GetActiveSubscription(ctx, userID)
	if err != nil {
		return false, err
	}
	return sub != nil, nil
}

// StaticService returns a fixed answer for every user. Used in development
// and tests where billing is not wired.
type StaticService struct {
	Entitled bool
}

// IsEntitledToShare returns the configured answer
func (s *StaticService) IsEntitledToShare(ctx context.Context, userID int64) (bool, error) {
	return s.Entitled, nil
}
