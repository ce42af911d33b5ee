// Package notify publishes sync completion events so downstream
// consumers (dashboards, alerting) can react to refreshed partitions.
package notify

import "context"

// Event describes a finished city sync.
type Event struct {
	JobID       string `json:"jobId"`
	City        string `json:"city"`
	Platform    string `json:"platform"`
	Status      string `json:"status"`
	Influencers int    `json:"influencers"`
}

// Provider sends sync events somewhere. Implementations must be safe
// for concurrent use.
type Provider interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NoOpProvider drops events. Used when notifications are disabled.
type NoOpProvider struct{}

// Publish for NoOpProvider does nothing and always returns nil.
func (n *NoOpProvider) Publish(_ context.Context, _ Event) error { return nil }

// Close for NoOpProvider does nothing and always returns nil.
func (n *NoOpProvider) Close() error { return nil }
