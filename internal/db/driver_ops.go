package db

import (
	"context"
	"database/sql"
	"strings"

	log "github.com/sirupsen/logrus"

	"rideguardian/internal/apperrors"
	"rideguardian/internal/constants"
	"rideguardian/internal/models"
)

const driverColumns = `id, company_id, name, vehicle_plate, personnel_number, status, hourly_wage, bonus_multiplier, created_at, updated_at`

func (s *Store) scanDriver(row interface{ Scan(...interface{}) error }) (models.Driver, error) {
	var d models.Driver
	var createdAt, updatedAt sql.NullTime
	err := row.Scan(&d.ID, &d.CompanyID, &d.Name, &d.VehiclePlate, &d.PersonnelNumber, &d.Status,
		&d.HourlyWage, &d.BonusMultiplier, &createdAt, &updatedAt)
	if err != nil {
		return d, err
	}
	d.CreatedAt = s.local(createdAt.Time)
	d.UpdatedAt = s.local(updatedAt.Time)
	return d, nil
}

func validDriverStatus(status string) bool {
	switch status {
	case constants.DRIVER_STATUS_ACTIVE, constants.DRIVER_STATUS_INACTIVE, constants.DRIVER_STATUS_SUSPENDED:
		return true
	}
	return false
}

// AddDriver добавляет водителя в компанию. Дубликат (company_id, name) ведет к Conflict.
func (s *Store) AddDriver(ctx context.Context, d models.Driver) (int64, error) {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return 0, apperrors.Validation("name", "Fahrername darf nicht leer sein")
	}
	if d.Status == "" {
		d.Status = constants.DRIVER_STATUS_ACTIVE
	}
	if !validDriverStatus(d.Status) {
		return 0, apperrors.Validation("status", "Unbekannter Fahrerstatus %q", d.Status)
	}
	if d.HourlyWage < 0 {
		return 0, apperrors.Validation("hourly_wage", "Stundenlohn darf nicht negativ sein")
	}
	if d.BonusMultiplier == 0 {
		d.BonusMultiplier = 1
	}
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.companyExistsTx(ctx, tx, d.CompanyID); err != nil {
			return err
		}
		now := s.now()
		errIns := s.queryRow(ctx, tx, `
            INSERT INTO drivers (company_id, name, vehicle_plate, personnel_number, status, hourly_wage, bonus_multiplier, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
            RETURNING id`,
			d.CompanyID, d.Name, d.VehiclePlate, d.PersonnelNumber, d.Status, d.HourlyWage, d.BonusMultiplier, now, now).Scan(&id)
		return mapDBError(errIns, "Fahrer")
	})
	if err != nil {
		log.Printf("AddDriver: ошибка добавления водителя '%s' (компания #%d): %v", d.Name, d.CompanyID, err)
		return 0, err
	}
	return id, nil
}

// GetDriver возвращает водителя тенанта. Водитель другой компании не находится.
func (s *Store) GetDriver(ctx context.Context, companyID, driverID int64) (models.Driver, error) {
	d, err := s.scanDriver(s.queryRow(ctx, s.DB,
		`SELECT `+driverColumns+` FROM drivers WHERE company_id = ? AND id = ?`, companyID, driverID))
	if err != nil {
		return d, mapDBError(err, "Fahrer")
	}
	return d, nil
}

// ListDrivers возвращает водителей тенанта по имени; activeOnly оставляет только Active.
func (s *Store) ListDrivers(ctx context.Context, companyID int64, activeOnly bool) ([]models.Driver, error) {
	q := `SELECT ` + driverColumns + ` FROM drivers WHERE company_id = ?`
	args := []interface{}{companyID}
	if activeOnly {
		q += ` AND status = ?`
		args = append(args, constants.DRIVER_STATUS_ACTIVE)
	}
	q += ` ORDER BY name ASC, id ASC`
	rows, err := s.query(ctx, s.DB, q, args...)
	if err != nil {
		log.Printf("ListDrivers: ошибка получения водителей компании #%d: %v", companyID, err)
		return nil, err
	}
	defer rows.Close()
	var drivers []models.Driver
	for rows.Next() {
		d, errScan := s.scanDriver(rows)
		if errScan != nil {
			return nil, errScan
		}
		drivers = append(drivers, d)
	}
	return drivers, rows.Err()
}

// UpdateDriver обновляет данные водителя в пределах тенанта.
func (s *Store) UpdateDriver(ctx context.Context, d models.Driver) error {
	if d.Status != "" && !validDriverStatus(d.Status) {
		return apperrors.Validation("status", "Unbekannter Fahrerstatus %q", d.Status)
	}
	if d.Status == "" {
		d.Status = constants.DRIVER_STATUS_ACTIVE
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx, `
            UPDATE drivers SET name = ?, vehicle_plate = ?, personnel_number = ?, status = ?,
                hourly_wage = ?, bonus_multiplier = ?, updated_at = ?
            WHERE company_id = ? AND id = ?`,
			strings.TrimSpace(d.Name), d.VehiclePlate, d.PersonnelNumber, d.Status,
			d.HourlyWage, d.BonusMultiplier, s.now(), d.CompanyID, d.ID)
		if err != nil {
			return mapDBError(err, "Fahrer")
		}
		return requireAffected(res, "Fahrer")
	})
}

// DeactivateDriver переводит водителя в статус Inactive.
func (s *Store) DeactivateDriver(ctx context.Context, companyID, driverID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx, `UPDATE drivers SET status = ?, updated_at = ? WHERE company_id = ? AND id = ?`,
			constants.DRIVER_STATUS_INACTIVE, s.now(), companyID, driverID)
		if err != nil {
			return err
		}
		return requireAffected(res, "Fahrer")
	})
}

// driverInCompanyTx проверяет, что водитель принадлежит тенанту.
func (s *Store) driverInCompanyTx(ctx context.Context, q querier, companyID, driverID int64) error {
	var one int
	err := s.queryRow(ctx, q, `SELECT 1 FROM drivers WHERE company_id = ? AND id = ?`, companyID, driverID).Scan(&one)
	if err != nil {
		return mapDBError(err, "Fahrer")
	}
	return nil
}
