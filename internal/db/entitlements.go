package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Subscription is a user's billing plan row
type Subscription struct {
	ID               int64      `json:"id"`
	UserID           int64      `json:"user_id"`
	Plan             string     `json:"plan"`
	Status           string     `json:"status"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// GetActiveSubscription returns the user's active subscription, or nil when
// the user has none (free tier).
func (db *DB) GetActiveSubscription(ctx context.Context, userID int64) (*Subscription, error) {
	ctx, span := tracer.Start(ctx, "db.get_active_subscription",
		trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	var sub Subscription
	query := `SELECT id, user_id, plan, status, current_period_end, created_at, updated_at
	          FROM subscriptions
	          WHERE user_id = $1 AND status = 'active'
	            AND (current_period_end IS NULL OR current_period_end >= NOW())
	          ORDER BY created_at DESC
	          LIMIT 1`
	err := db.conn.QueryRowContext(ctx, query, userID).Scan(
		&sub.ID, &sub.UserID, &sub.Plan, &sub.Status, &sub.CurrentPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return &sub, nil
}

// UpsertSubscription records or refreshes a user's plan. Used by the billing
// webhook path and by test seeding.
func (db *DB) UpsertSubscription(ctx context.Context, userID int64, plan, status string, periodEnd *time.Time) error {
	ctx, span := tracer.Start(ctx, "db.upsert_subscription",
		trace.WithAttributes(
			attribute.Int64("user.id", userID),
			attribute.String("subscription.plan", plan),
		))
	defer span.End()

	// One logical subscription per user; replace the latest row if present
	query := `INSERT INTO subscriptions (user_id, plan, status, current_period_end)
	          VALUES ($1, $2, $3, $4)`
	_, err := db.conn.ExecContext(ctx, query, userID, plan, status, periodEnd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}

	return nil
}
