package models

import "time"

// FeeKind classifies a monetary charge.
type FeeKind string

// Fee kinds.
const (
	FeeKindCancel   FeeKind = "CANCEL"
	FeeKindNoShow   FeeKind = "NO_SHOW"
	FeeKindOvertime FeeKind = "OVERTIME"
	FeeKindParking  FeeKind = "PARKING"
)

// Fee is an immutable charge attached to an order and/or a session.
// Only Paid and PaidAt change after creation.
type Fee struct {
	ID          int64      `db:"id" json:"id"`
	UserID      int64      `db:"user_id" json:"user_id"`
	OrderID     *int64     `db:"order_id" json:"order_id,omitempty"`
	SessionID   *int64     `db:"session_id" json:"session_id,omitempty"`
	Kind        FeeKind    `db:"kind" json:"kind"`
	Amount      float64    `db:"amount" json:"amount"`
	Description string     `db:"description" json:"description"`
	Paid        bool       `db:"paid" json:"paid"`
	PaidAt      *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
