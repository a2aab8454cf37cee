package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleStudent  = "student"
	RoleTutor    = "tutor"
	RolePlatform = "platform"
)

// PlatformAccountID is the fixed pseudo-account that collects lesson fees.
// The row is created by migrations and must never be deleted.
var PlatformAccountID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

type User struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Name      string
	Role      string
}
