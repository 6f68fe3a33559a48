package db

import (
	"context"
	"database/sql"
	"strings"

	"rideguardian/internal/apperrors"
	"rideguardian/internal/constants"
	"rideguardian/internal/models"
)

const vehicleColumns = `id, company_id, plate, make, model, year, color, status, current_driver_id, total_km,
    last_maintenance, next_maintenance_km, insurance_expiry, registration_expiry, created_at, updated_at`

func (s *Store) scanVehicle(row interface{ Scan(...interface{}) error }) (models.Vehicle, error) {
	var v models.Vehicle
	var createdAt, updatedAt sql.NullTime
	err := row.Scan(&v.ID, &v.CompanyID, &v.Plate, &v.Make, &v.Model, &v.Year, &v.Color, &v.Status,
		&v.CurrentDriverID.NullInt64, &v.TotalKm, &v.LastMaintenance.NullTime, &v.NextMaintenanceKm,
		&v.InsuranceExpiry.NullTime, &v.RegistrationExpiry.NullTime, &createdAt, &updatedAt)
	if err != nil {
		return v, err
	}
	v.LastMaintenance.NullTime = s.localNull(v.LastMaintenance.NullTime)
	v.InsuranceExpiry.NullTime = s.localNull(v.InsuranceExpiry.NullTime)
	v.RegistrationExpiry.NullTime = s.localNull(v.RegistrationExpiry.NullTime)
	v.CreatedAt = s.local(createdAt.Time)
	v.UpdatedAt = s.local(updatedAt.Time)
	return v, nil
}

// AddVehicle добавляет автомобиль. Номер уникален в пределах тенанта.
func (s *Store) AddVehicle(ctx context.Context, v models.Vehicle) (int64, error) {
	v.Plate = strings.TrimSpace(v.Plate)
	if v.Plate == "" {
		return 0, apperrors.Validation("plate", "Kennzeichen darf nicht leer sein")
	}
	if v.Status == "" {
		v.Status = constants.VEHICLE_STATUS_AVAILABLE
	}
	switch v.Status {
	case constants.VEHICLE_STATUS_AVAILABLE, constants.VEHICLE_STATUS_IN_USE, constants.VEHICLE_STATUS_MAINTENANCE:
	default:
		return 0, apperrors.Validation("status", "Unbekannter Fahrzeugstatus %q", v.Status)
	}
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.companyExistsTx(ctx, tx, v.CompanyID); err != nil {
			return err
		}
		if v.CurrentDriverID.Valid {
			if err := s.driverInCompanyTx(ctx, tx, v.CompanyID, v.CurrentDriverID.Int64); err != nil {
				return err
			}
		}
		var driverID interface{}
		if v.CurrentDriverID.Valid {
			driverID = v.CurrentDriverID.Int64
		}
		now := s.now()
		errIns := s.queryRow(ctx, tx, `
            INSERT INTO vehicles (company_id, plate, make, model, year, color, status, current_driver_id, total_km,
                last_maintenance, next_maintenance_km, insurance_expiry, registration_expiry, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
            RETURNING id`,
			v.CompanyID, v.Plate, v.Make, v.Model, v.Year, v.Color, v.Status, driverID, v.TotalKm,
			nullTS(v.LastMaintenance.Valid, v.LastMaintenance.Time), v.NextMaintenanceKm,
			nullTS(v.InsuranceExpiry.Valid, v.InsuranceExpiry.Time),
			nullTS(v.RegistrationExpiry.Valid, v.RegistrationExpiry.Time), now, now).Scan(&id)
		return mapDBError(errIns, "Fahrzeug")
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetVehicleByPlate ищет автомобиль тенанта по номеру.
func (s *Store) GetVehicleByPlate(ctx context.Context, companyID int64, plate string) (models.Vehicle, error) {
	v, err := s.scanVehicle(s.queryRow(ctx, s.DB,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE company_id = ? AND plate = ?`, companyID, strings.TrimSpace(plate)))
	if err != nil {
		return v, mapDBError(err, "Fahrzeug")
	}
	return v, nil
}

// ListVehicles возвращает автомобили тенанта по номеру.
func (s *Store) ListVehicles(ctx context.Context, companyID int64) ([]models.Vehicle, error) {
	rows, err := s.query(ctx, s.DB, `SELECT `+vehicleColumns+` FROM vehicles WHERE company_id = ? ORDER BY plate ASC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Vehicle
	for rows.Next() {
		v, errScan := s.scanVehicle(rows)
		if errScan != nil {
			return nil, errScan
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpdateVehicleOdometer обновляет пробег. Пробег не может уменьшаться.
func (s *Store) UpdateVehicleOdometer(ctx context.Context, companyID int64, plate string, totalKm float64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var current float64
		err := s.queryRow(ctx, tx, `SELECT total_km FROM vehicles WHERE company_id = ? AND plate = ?`, companyID, plate).Scan(&current)
		if err != nil {
			return mapDBError(err, "Fahrzeug")
		}
		if totalKm < current {
			return apperrors.Validation("total_km", "Kilometerstand %.1f kleiner als bisheriger Stand %.1f", totalKm, current)
		}
		_, err = s.exec(ctx, tx, `UPDATE vehicles SET total_km = ?, updated_at = ? WHERE company_id = ? AND plate = ?`,
			totalKm, s.now(), companyID, plate)
		return err
	})
}
