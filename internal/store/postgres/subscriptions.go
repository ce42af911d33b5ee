package postgres

import (
	"context"
	"fmt"
	"time"
)

// Subscription statuses tracked by the admin dashboard.
const (
	SubscriptionActive   = "active"
	SubscriptionCanceled = "canceled"
	SubscriptionExpired  = "expired"
)

// Subscription links a user to a plan.
type Subscription struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Plan      string     `json:"plan"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// SubscriptionStore reads and writes subscriptions.
type SubscriptionStore struct {
	pool Pool
}

// NewSubscriptionStore wraps a pool.
func NewSubscriptionStore(pool Pool) *SubscriptionStore {
	return &SubscriptionStore{pool: pool}
}

const subscriptionColumns = "id, user_id, plan, status, expires_at, created_at"

// List returns all subscriptions, newest first.
func (s *SubscriptionStore) List(ctx context.Context) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+subscriptionColumns+" FROM subscriptions ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Plan, &sub.Status, &sub.ExpiresAt, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}

// Create starts a subscription for a user.
func (s *SubscriptionStore) Create(ctx context.Context, userID, plan string, expiresAt *time.Time) (Subscription, error) {
	sub := Subscription{UserID: userID, Plan: plan, Status: SubscriptionActive, ExpiresAt: expiresAt}
	err := s.pool.QueryRow(ctx, `
INSERT INTO subscriptions (user_id, plan, status, expires_at)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at`, userID, plan, SubscriptionActive, expiresAt).
		Scan(&sub.ID, &sub.CreatedAt)
	if err != nil {
		return Subscription{}, fmt.Errorf("insert subscription: %w", err)
	}
	return sub, nil
}

// UpdateStatus moves a subscription through its lifecycle.
func (s *SubscriptionStore) UpdateStatus(ctx context.Context, id, status string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE subscriptions SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a subscription.
func (s *SubscriptionStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
