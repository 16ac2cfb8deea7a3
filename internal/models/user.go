package models

import (
	"time"
)

// User rows are owned by the surrounding platform; this service only reads
// them to validate membership and to render author info.
type User struct {
	ID        int64     `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
