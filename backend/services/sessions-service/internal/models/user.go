package models

import "time"

// UserStatus is the account standing driven by violations.
type UserStatus string

// User statuses.
const (
	UserStatusActive UserStatus = "ACTIVE"
	UserStatusBanned UserStatus = "BANNED"
)

// User holds the violation-related part of a user record.
type User struct {
	ID             int64      `db:"id" json:"id"`
	Email          string     `db:"email" json:"email"`
	Status         UserStatus `db:"status" json:"status"`
	ViolationCount int        `db:"violation_count" json:"violation_count"`
	ViolationLog   string     `db:"violation_log" json:"violation_log,omitempty"`
	BanReason      string     `db:"ban_reason" json:"ban_reason,omitempty"`
	BannedAt       *time.Time `db:"banned_at" json:"banned_at,omitempty"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
