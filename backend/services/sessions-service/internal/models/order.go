package models

import "time"

// OrderStatus is the reservation lifecycle state.
type OrderStatus string

// Order statuses.
const (
	OrderStatusBooked    OrderStatus = "BOOKED"
	OrderStatusCharging  OrderStatus = "CHARGING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCanceled  OrderStatus = "CANCELED"
)

// Terminal reports whether no further transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCanceled
}

// Order reserves a charging point for a time window.
type Order struct {
	ID                 int64       `db:"id" json:"id"`
	UserID             int64       `db:"user_id" json:"user_id"`
	ChargingPointID    int64       `db:"charging_point_id" json:"charging_point_id"`
	StartTime          time.Time   `db:"start_time" json:"start_time"`
	EndTime            time.Time   `db:"end_time" json:"end_time"`
	Status             OrderStatus `db:"status" json:"status"`
	StartedBattery     float64     `db:"started_battery" json:"started_battery"`
	ExpectedBattery    float64     `db:"expected_battery" json:"expected_battery"`
	CancellationReason string      `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time   `db:"updated_at" json:"updated_at"`
}
