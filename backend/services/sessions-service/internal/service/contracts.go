package service

import (
	"context"
	"time"

	"chargepark/backend/services/sessions-service/internal/models"
)

// TxManager runs fn as one atomic unit of work. Nested calls join the outer unit.
type TxManager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists orders.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id int64) (*models.Order, error)
	GetForUpdate(ctx context.Context, id int64) (*models.Order, error)
	Update(ctx context.Context, order *models.Order) error
	LockChargingPoint(ctx context.Context, pointID int64) error
	HasActiveOverlap(ctx context.Context, pointID, userID int64, start, end time.Time) (bool, error)
}

// SessionRepository persists charging sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id int64) (*models.Session, error)
	GetForUpdate(ctx context.Context, id int64) (*models.Session, error)
	GetByOrderID(ctx context.Context, orderID int64) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
}

// FeeRepository persists fees.
type FeeRepository interface {
	Create(ctx context.Context, fee *models.Fee) error
	GetByIDs(ctx context.Context, ids []int64) ([]models.Fee, error)
	ListBySession(ctx context.Context, sessionID int64) ([]models.Fee, error)
	ListByUser(ctx context.Context, userID int64, unpaidOnly bool) ([]models.Fee, error)
	CountUnpaidByUser(ctx context.Context, userID int64) (int, error)
	MarkPaid(ctx context.Context, ids []int64, paidAt time.Time) (int, error)
}

// UserRepository reads and writes the violation fields of users.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetForUpdate(ctx context.Context, id int64) (*models.User, error)
	UpdateViolationState(ctx context.Context, user *models.User) error
}

// Catalog is the read-only station and vehicle catalog.
type Catalog interface {
	GetChargingPoint(ctx context.Context, id int64) (*models.ChargingPoint, error)
	GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error)
}
