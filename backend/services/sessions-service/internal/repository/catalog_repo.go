package repository

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"chargepark/backend/services/sessions-service/internal/models"
)

// CatalogRepository reads charging points joined with their station and
// connector pricing, and vehicles.
type CatalogRepository struct {
	base
}

// NewCatalogRepository returns repository.
func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{base{db: db}}
}

// GetChargingPoint returns point by id.
func (r *CatalogRepository) GetChargingPoint(ctx context.Context, id int64) (*models.ChargingPoint, error) {
	row, err := r.queryRow(ctx, psql.Select(
		"cp.id", "cp.station_id", "s.name", "s.latitude", "s.longitude",
		"ct.name", "cp.power_kw", "ct.price_per_kwh",
	).
		From("charging_points cp").
		Join("stations s ON s.id = cp.station_id").
		Join("connector_types ct ON ct.id = cp.connector_type_id").
		Where(sq.Eq{"cp.id": id}))
	if err != nil {
		return nil, err
	}

	var p models.ChargingPoint
	if err := row.Scan(
		&p.ID,
		&p.StationID,
		&p.StationName,
		&p.Latitude,
		&p.Longitude,
		&p.ConnectorType,
		&p.PowerKW,
		&p.PricePerKWh,
	); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// GetVehicle returns vehicle by id.
func (r *CatalogRepository) GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error) {
	row, err := r.queryRow(ctx, psql.Select("id", "user_id", "model", "battery_capacity_kwh").
		From("vehicles").
		Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}

	var v models.Vehicle
	if err := row.Scan(&v.ID, &v.UserID, &v.Model, &v.BatteryCapacityKWh); err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}
