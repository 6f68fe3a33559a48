package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"rideguardian/internal/apperrors"
	"rideguardian/internal/constants"
	"rideguardian/internal/models"
)

const shiftColumns = `id, company_id, driver_id, shift_label, shift_date, start_time, end_time, start_location, end_location,
    activity, total_hours, break_minutes, actual_hours, early_shift_hours, night_shift_hours, status, notes, created_at, updated_at`

func (s *Store) scanShift(row interface{ Scan(...interface{}) error }) (models.Shift, error) {
	var sh models.Shift
	var shiftDate string
	var createdAt, updatedAt sql.NullTime
	err := row.Scan(&sh.ID, &sh.CompanyID, &sh.DriverID, &sh.ShiftLabel, &shiftDate, &sh.StartTime, &sh.EndTime.NullTime,
		&sh.StartLocation, &sh.EndLocation, &sh.Activity, &sh.TotalHours, &sh.BreakMinutes, &sh.ActualHours,
		&sh.EarlyShiftHours, &sh.NightShiftHours, &sh.Status, &sh.Notes, &createdAt, &updatedAt)
	if err != nil {
		return sh, err
	}
	sh.ShiftDate = s.parseDateKey(shiftDate)
	sh.StartTime = s.local(sh.StartTime)
	sh.EndTime.NullTime = s.localNull(sh.EndTime.NullTime)
	sh.CreatedAt = s.local(createdAt.Time)
	sh.UpdatedAt = s.local(updatedAt.Time)
	return sh, nil
}

// RecordShift сохраняет смену: вставка при ID = 0, иначе обновление. Возвращает ID.
// Пустое место начала заменяется адресом базы тенанта.
// RecordShift inserts (ID = 0) or updates a shift and returns its id.
func (s *Store) RecordShift(ctx context.Context, sh models.Shift) (int64, error) {
	if sh.StartTime.IsZero() {
		return 0, apperrors.Validation("start_time", "Schichtbeginn fehlt")
	}
	if sh.EndTime.Valid && sh.EndTime.Time.Before(sh.StartTime) {
		return 0, apperrors.Validation("end_time", "Schichtende liegt vor Schichtbeginn")
	}
	if sh.Activity == "" {
		sh.Activity = constants.DEFAULT_SHIFT_ACTIVITY
	}
	if sh.Status == "" {
		sh.Status = constants.SHIFT_STATUS_OPEN
		if sh.EndTime.Valid {
			sh.Status = constants.SHIFT_STATUS_CLOSED
		}
	}
	if strings.TrimSpace(sh.StartLocation) == "" {
		hq, err := s.HeadquartersAddress(ctx, sh.CompanyID)
		if err != nil {
			return 0, err
		}
		sh.StartLocation = hq
	}
	shiftDate := sh.StartTime
	if !sh.ShiftDate.IsZero() {
		shiftDate = sh.ShiftDate
	}

	id := sh.ID
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.driverInCompanyTx(ctx, tx, sh.CompanyID, sh.DriverID); err != nil {
			return err
		}
		now := s.now()
		if id == 0 {
			errIns := s.queryRow(ctx, tx, `
                INSERT INTO shifts (company_id, driver_id, shift_label, shift_date, start_time, end_time, start_location,
                    end_location, activity, total_hours, break_minutes, actual_hours, early_shift_hours, night_shift_hours,
                    status, notes, created_at, updated_at)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
                RETURNING id`,
				sh.CompanyID, sh.DriverID, sh.ShiftLabel, s.dateKey(shiftDate), ts(sh.StartTime),
				nullTS(sh.EndTime.Valid, sh.EndTime.Time), sh.StartLocation, sh.EndLocation, sh.Activity,
				sh.TotalHours, sh.BreakMinutes, sh.ActualHours, sh.EarlyShiftHours, sh.NightShiftHours,
				sh.Status, sh.Notes, now, now).Scan(&id)
			return mapDBError(errIns, "Schicht")
		}
		res, errUpd := s.exec(ctx, tx, `
            UPDATE shifts SET driver_id = ?, shift_label = ?, shift_date = ?, start_time = ?, end_time = ?,
                start_location = ?, end_location = ?, activity = ?, total_hours = ?, break_minutes = ?, actual_hours = ?,
                early_shift_hours = ?, night_shift_hours = ?, status = ?, notes = ?, updated_at = ?
            WHERE company_id = ? AND id = ?`,
			sh.DriverID, sh.ShiftLabel, s.dateKey(shiftDate), ts(sh.StartTime), nullTS(sh.EndTime.Valid, sh.EndTime.Time),
			sh.StartLocation, sh.EndLocation, sh.Activity, sh.TotalHours, sh.BreakMinutes, sh.ActualHours,
			sh.EarlyShiftHours, sh.NightShiftHours, sh.Status, sh.Notes, now, sh.CompanyID, id)
		if errUpd != nil {
			return mapDBError(errUpd, "Schicht")
		}
		return requireAffected(res, "Schicht")
	})
	if err != nil {
		log.Printf("RecordShift: ошибка сохранения смены водителя #%d (компания #%d): %v", sh.DriverID, sh.CompanyID, err)
		return 0, err
	}
	return id, nil
}

// GetShift возвращает смену тенанта по ID.
func (s *Store) GetShift(ctx context.Context, companyID, shiftID int64) (models.Shift, error) {
	sh, err := s.scanShift(s.queryRow(ctx, s.DB,
		`SELECT `+shiftColumns+` FROM shifts WHERE company_id = ? AND id = ?`, companyID, shiftID))
	if err != nil {
		return sh, mapDBError(err, "Schicht")
	}
	return sh, nil
}

// ListShifts возвращает смены тенанта, упорядоченные по началу.
// driverID = 0 - все водители; нулевые start/end не ограничивают выборку.
// Границы - календарные даты включительно.
func (s *Store) ListShifts(ctx context.Context, companyID, driverID int64, start, end time.Time) ([]models.Shift, error) {
	q := `SELECT ` + shiftColumns + ` FROM shifts WHERE company_id = ?`
	args := []interface{}{companyID}
	if driverID != 0 {
		q += ` AND driver_id = ?`
		args = append(args, driverID)
	}
	if !start.IsZero() {
		q += ` AND shift_date >= ?`
		args = append(args, s.dateKey(start))
	}
	if !end.IsZero() {
		q += ` AND shift_date <= ?`
		args = append(args, s.dateKey(end))
	}
	q += ` ORDER BY start_time ASC, id ASC`
	rows, err := s.query(ctx, s.DB, q, args...)
	if err != nil {
		log.Printf("ListShifts: ошибка получения смен компании #%d: %v", companyID, err)
		return nil, err
	}
	defer rows.Close()
	var shifts []models.Shift
	for rows.Next() {
		sh, errScan := s.scanShift(rows)
		if errScan != nil {
			return nil, errScan
		}
		shifts = append(shifts, sh)
	}
	return shifts, rows.Err()
}

// GetPreviousShift возвращает последнюю смену водителя, начавшуюся раньше before.
// ok=false, если такой смены нет.
func (s *Store) GetPreviousShift(ctx context.Context, companyID, driverID int64, before time.Time) (models.Shift, bool, error) {
	sh, err := s.scanShift(s.queryRow(ctx, s.DB, `
        SELECT `+shiftColumns+` FROM shifts
        WHERE company_id = ? AND driver_id = ? AND start_time < ?
        ORDER BY start_time DESC, id DESC LIMIT 1`, companyID, driverID, ts(before)))
	if err == sql.ErrNoRows {
		return sh, false, nil
	}
	if err != nil {
		return sh, false, err
	}
	return sh, true, nil
}
