package items

import "github.com/google/uuid"

// NewUUID returns a fresh client-generated v4 UUID, used both for brand
// new items and for the "alternate UUID" procedure (§4.4).
func NewUUID() string {
	return uuid.New().String()
}
