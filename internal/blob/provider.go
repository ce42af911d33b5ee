// Package blob abstracts where exported influencer reports are archived.
// The abstraction keeps the export pipeline independent of a specific
// backend (Google Cloud Storage, the local filesystem, or nothing at all).
package blob

import "context"

// Provider saves a finished export under an object name.
type Provider interface {
	Save(ctx context.Context, objectName string, data []byte) error
}

// NoOpProvider discards exports. It is used when archiving is disabled.
type NoOpProvider struct{}

// Save for NoOpProvider does nothing and always returns nil.
func (n *NoOpProvider) Save(_ context.Context, _ string, _ []byte) error {
	return nil
}
