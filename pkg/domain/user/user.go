package user

import (
	"time"

	"github.com/google/uuid"
)

// User is the read-only view of an account owned by the authentication
// service. It is used to resolve transfer recipients.
type User struct {
	ID        uuid.UUID
	Email     string
	Names     string
	CreatedAt time.Time
}
