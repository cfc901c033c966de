package repository

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"

	"chargepark/backend/services/sessions-service/internal/models"
)

var sessionColumns = []string{
	"id", "order_id", "user_id", "vehicle_id", "status", "start_time", "end_time",
	"power_consumed_kwh", "base_cost", "parking_start_time", "departed_at",
	"target_reached_notification_sent", "overtime", "created_at", "updated_at",
}

// SessionRepository handles persistence of charging sessions.
type SessionRepository struct {
	base
}

// NewSessionRepository returns repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{base{db: db}}
}

// Create inserts a new session for an order.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	row, err := r.queryRow(ctx, psql.Insert("charging_sessions").
		Columns("order_id", "user_id", "vehicle_id", "status", "start_time", "created_at", "updated_at").
		Values(session.OrderID, session.UserID, session.VehicleID, string(session.Status),
			session.StartTime, session.CreatedAt, session.UpdatedAt).
		Suffix("RETURNING id"))
	if err != nil {
		return err
	}
	return row.Scan(&session.ID)
}

// GetByID returns session by id.
func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*models.Session, error) {
	return r.get(ctx, psql.Select(sessionColumns...).From("charging_sessions").Where(sq.Eq{"id": id}))
}

// GetForUpdate returns session by id and locks the row until the transaction ends.
func (r *SessionRepository) GetForUpdate(ctx context.Context, id int64) (*models.Session, error) {
	return r.get(ctx, psql.Select(sessionColumns...).From("charging_sessions").Where(sq.Eq{"id": id}).Suffix("FOR UPDATE"))
}

// GetByOrderID returns the session of an order.
func (r *SessionRepository) GetByOrderID(ctx context.Context, orderID int64) (*models.Session, error) {
	return r.get(ctx, psql.Select(sessionColumns...).From("charging_sessions").Where(sq.Eq{"order_id": orderID}))
}

// Update writes the mutable session fields. Finalized energy and cost are never
// overwritten once set.
func (r *SessionRepository) Update(ctx context.Context, session *models.Session) error {
	affected, err := r.execAffected(ctx, psql.Update("charging_sessions").
		Set("status", string(session.Status)).
		Set("end_time", session.EndTime).
		Set("power_consumed_kwh", sq.Expr("COALESCE(power_consumed_kwh, ?)", session.PowerConsumed)).
		Set("base_cost", sq.Expr("COALESCE(base_cost, ?)", session.BaseCost)).
		Set("parking_start_time", session.ParkingStartTime).
		Set("departed_at", session.DepartedAt).
		Set("target_reached_notification_sent", session.TargetReachedNotificationSent).
		Set("overtime", session.Overtime).
		Set("updated_at", session.UpdatedAt).
		Where(sq.Eq{"id": session.ID}))
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByStatus returns sessions in status with id > afterID, ordered by id.
func (r *SessionRepository) ListByStatus(ctx context.Context, status models.SessionStatus, afterID int64, limit int) ([]models.Session, error) {
	return r.list(ctx, page(psql.Select(sessionColumns...).From("charging_sessions").
		Where(sq.Eq{"status": string(status)}), afterID, limit))
}

// ListChargingStartedBefore returns CHARGING sessions started before cutoff, keyset paged by id.
func (r *SessionRepository) ListChargingStartedBefore(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]models.Session, error) {
	return r.list(ctx, page(psql.Select(sessionColumns...).From("charging_sessions").
		Where(sq.Eq{"status": string(models.SessionStatusCharging)}).
		Where(sq.Lt{"start_time": cutoff}), afterID, limit))
}

// ListParkingStartedBefore returns PARKING sessions whose parking began before cutoff, keyset paged by id.
func (r *SessionRepository) ListParkingStartedBefore(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]models.Session, error) {
	return r.list(ctx, page(psql.Select(sessionColumns...).From("charging_sessions").
		Where(sq.Eq{"status": string(models.SessionStatusParking)}).
		Where(sq.Lt{"parking_start_time": cutoff}), afterID, limit))
}

func (r *SessionRepository) get(ctx context.Context, builder sq.SelectBuilder) (*models.Session, error) {
	row, err := r.queryRow(ctx, builder)
	if err != nil {
		return nil, err
	}
	s, err := scanSession(row)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

func (r *SessionRepository) list(ctx context.Context, builder sq.SelectBuilder) ([]models.Session, error) {
	rows, err := r.query(ctx, builder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	if err := row.Scan(
		&s.ID,
		&s.OrderID,
		&s.UserID,
		&s.VehicleID,
		&s.Status,
		&s.StartTime,
		&s.EndTime,
		&s.PowerConsumed,
		&s.BaseCost,
		&s.ParkingStartTime,
		&s.DepartedAt,
		&s.TargetReachedNotificationSent,
		&s.Overtime,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}
