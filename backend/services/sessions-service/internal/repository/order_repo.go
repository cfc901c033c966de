package repository

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"

	"chargepark/backend/services/sessions-service/internal/models"
)

var orderColumns = []string{
	"id", "user_id", "charging_point_id", "start_time", "end_time", "status",
	"started_battery", "expected_battery", "cancellation_reason", "created_at", "updated_at",
}

// OrderRepository handles persistence of orders.
type OrderRepository struct {
	base
}

// NewOrderRepository returns repository.
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{base{db: db}}
}

// Create inserts a BOOKED order.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	row, err := r.queryRow(ctx, psql.Insert("orders").
		Columns("user_id", "charging_point_id", "start_time", "end_time", "status",
			"started_battery", "expected_battery", "cancellation_reason", "created_at", "updated_at").
		Values(order.UserID, order.ChargingPointID, order.StartTime, order.EndTime, string(order.Status),
			order.StartedBattery, order.ExpectedBattery, order.CancellationReason, order.CreatedAt, order.UpdatedAt).
		Suffix("RETURNING id"))
	if err != nil {
		return err
	}
	return row.Scan(&order.ID)
}

// GetByID returns order by id.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	return r.get(ctx, psql.Select(orderColumns...).From("orders").Where(sq.Eq{"id": id}))
}

// GetForUpdate returns order by id and locks the row until the transaction ends.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return r.get(ctx, psql.Select(orderColumns...).From("orders").Where(sq.Eq{"id": id}).Suffix("FOR UPDATE"))
}

// Update writes the mutable order fields.
func (r *OrderRepository) Update(ctx context.Context, order *models.Order) error {
	affected, err := r.execAffected(ctx, psql.Update("orders").
		Set("status", string(order.Status)).
		Set("cancellation_reason", order.CancellationReason).
		Set("updated_at", order.UpdatedAt).
		Where(sq.Eq{"id": order.ID}))
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// LockChargingPoint serializes bookings of one charging point within the transaction.
func (r *OrderRepository) LockChargingPoint(ctx context.Context, pointID int64) error {
	_, err := r.exec(ctx).ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, pointID)
	return err
}

// HasActiveOverlap reports whether a BOOKED or CHARGING order on the point, or of
// the user, intersects [start, end).
func (r *OrderRepository) HasActiveOverlap(ctx context.Context, pointID, userID int64, start, end time.Time) (bool, error) {
	inner := psql.Select("1").From("orders").Where(sq.And{
		sq.Or{sq.Eq{"charging_point_id": pointID}, sq.Eq{"user_id": userID}},
		sq.Eq{"status": []string{string(models.OrderStatusBooked), string(models.OrderStatusCharging)}},
		sq.Lt{"start_time": end},
		sq.Gt{"end_time": start},
	})
	row, err := r.queryRow(ctx, psql.Select().Column(sq.Expr("EXISTS (?)", inner)))
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ListBookedStartingBefore returns BOOKED orders whose start time is before
// cutoff, keyset paged by id.
func (r *OrderRepository) ListBookedStartingBefore(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]models.Order, error) {
	rows, err := r.query(ctx, page(psql.Select(orderColumns...).From("orders").
		Where(sq.Eq{"status": string(models.OrderStatusBooked)}).
		Where(sq.Lt{"start_time": cutoff}), afterID, limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) get(ctx context.Context, builder sq.SelectBuilder) (*models.Order, error) {
	row, err := r.queryRow(ctx, builder)
	if err != nil {
		return nil, err
	}
	o, err := scanOrder(row)
	if err != nil {
		return nil, notFound(err)
	}
	return o, nil
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	if err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.ChargingPointID,
		&o.StartTime,
		&o.EndTime,
		&o.Status,
		&o.StartedBattery,
		&o.ExpectedBattery,
		&o.CancellationReason,
		&o.CreatedAt,
		&o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &o, nil
}
