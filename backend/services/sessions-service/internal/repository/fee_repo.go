package repository

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"

	"chargepark/backend/services/sessions-service/internal/models"
)

var feeColumns = []string{
	"id", "user_id", "order_id", "session_id", "kind", "amount", "description", "paid", "paid_at", "created_at",
}

// FeeRepository handles persistence of fees.
type FeeRepository struct {
	base
}

// NewFeeRepository returns repository.
func NewFeeRepository(db *sql.DB) *FeeRepository {
	return &FeeRepository{base{db: db}}
}

// Create inserts an unpaid fee.
func (r *FeeRepository) Create(ctx context.Context, fee *models.Fee) error {
	row, err := r.queryRow(ctx, psql.Insert("fees").
		Columns("user_id", "order_id", "session_id", "kind", "amount", "description", "paid", "created_at").
		Values(fee.UserID, fee.OrderID, fee.SessionID, string(fee.Kind), fee.Amount, fee.Description, fee.Paid, fee.CreatedAt).
		Suffix("RETURNING id"))
	if err != nil {
		return err
	}
	return row.Scan(&fee.ID)
}

// GetByIDs returns the fees that exist among ids.
func (r *FeeRepository) GetByIDs(ctx context.Context, ids []int64) ([]models.Fee, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.list(ctx, psql.Select(feeColumns...).From("fees").Where(sq.Eq{"id": ids}).OrderBy("id"))
}

// ListBySession returns every fee attached to a session.
func (r *FeeRepository) ListBySession(ctx context.Context, sessionID int64) ([]models.Fee, error) {
	return r.list(ctx, psql.Select(feeColumns...).From("fees").Where(sq.Eq{"session_id": sessionID}).OrderBy("id"))
}

// ListByUser returns fees of a user, newest first.
func (r *FeeRepository) ListByUser(ctx context.Context, userID int64, unpaidOnly bool) ([]models.Fee, error) {
	q := psql.Select(feeColumns...).From("fees").Where(sq.Eq{"user_id": userID})
	if unpaidOnly {
		q = q.Where(sq.Eq{"paid": false})
	}
	return r.list(ctx, q.OrderBy("created_at DESC", "id DESC"))
}

// CountUnpaidByUser returns number of unpaid fees of a user.
func (r *FeeRepository) CountUnpaidByUser(ctx context.Context, userID int64) (int, error) {
	row, err := r.queryRow(ctx, psql.Select("COUNT(*)").From("fees").
		Where(sq.Eq{"user_id": userID, "paid": false}))
	if err != nil {
		return 0, err
	}
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// MarkPaid flags unpaid fees among ids as paid and returns how many changed.
func (r *FeeRepository) MarkPaid(ctx context.Context, ids []int64, paidAt time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	affected, err := r.execAffected(ctx, psql.Update("fees").
		Set("paid", true).
		Set("paid_at", paidAt).
		Where(sq.Eq{"id": ids, "paid": false}))
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (r *FeeRepository) list(ctx context.Context, builder sq.SelectBuilder) ([]models.Fee, error) {
	rows, err := r.query(ctx, builder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fees []models.Fee
	for rows.Next() {
		var f models.Fee
		if err := rows.Scan(
			&f.ID,
			&f.UserID,
			&f.OrderID,
			&f.SessionID,
			&f.Kind,
			&f.Amount,
			&f.Description,
			&f.Paid,
			&f.PaidAt,
			&f.CreatedAt,
		); err != nil {
			return nil, err
		}
		fees = append(fees, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return fees, nil
}
