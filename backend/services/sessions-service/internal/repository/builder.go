package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	libdb "chargepark/backend/libs/db"
)

// psql builds Postgres flavoured statements.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type rowScanner interface {
	Scan(dest ...any) error
}

type base struct {
	db *sql.DB
}

func (b base) exec(ctx context.Context) libdb.Executor {
	return libdb.GetExecutor(ctx, b.db)
}

func (b base) queryRow(ctx context.Context, builder sq.Sqlizer) (*sql.Row, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	return b.exec(ctx).QueryRowContext(ctx, query, args...), nil
}

func (b base) query(ctx context.Context, builder sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	return b.exec(ctx).QueryContext(ctx, query, args...)
}

func (b base) execAffected(ctx context.Context, builder sq.Sqlizer) (int64, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	result, err := b.exec(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// page orders by id after afterID and applies limit; limit <= 0 means no limit.
func page(b sq.SelectBuilder, afterID int64, limit int) sq.SelectBuilder {
	b = b.Where(sq.Gt{"id": afterID}).OrderBy("id")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return b
}
