package util

import "github.com/google/uuid"

// GenerateUUID returns a random v4 UUID for audit rows and outbox
// message ids.
func GenerateUUID() string {
	return uuid.NewString()
}
