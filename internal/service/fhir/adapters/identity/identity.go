// Package identity provides the uuid-backed id provider.
package identity

import "github.com/google/uuid"

// UUID assigns random v4 UUIDs as resource ids.
type UUID struct{}

func (UUID) NextID() string {
	return uuid.NewString()
}
