package models

// ChargingPoint is a bookable connector at a station, joined with its
// station coordinates and connector type pricing.
type ChargingPoint struct {
	ID            int64   `db:"id" json:"id"`
	StationID     int64   `db:"station_id" json:"station_id"`
	StationName   string  `db:"station_name" json:"station_name"`
	Latitude      float64 `db:"latitude" json:"latitude"`
	Longitude     float64 `db:"longitude" json:"longitude"`
	ConnectorType string  `db:"connector_type" json:"connector_type"`
	PowerKW       float64 `db:"power_kw" json:"power_kw"`
	PricePerKWh   float64 `db:"price_per_kwh" json:"price_per_kwh"`
}

// Vehicle is the catalog entry used to derive battery percentage.
type Vehicle struct {
	ID                 int64   `db:"id" json:"id"`
	UserID             int64   `db:"user_id" json:"user_id"`
	Model              string  `db:"model" json:"model"`
	BatteryCapacityKWh float64 `db:"battery_capacity_kwh" json:"battery_capacity_kwh"`
}

// Location is a WGS84 coordinate reported by a client.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
