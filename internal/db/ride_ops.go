package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"rideguardian/internal/apperrors"
	"rideguardian/internal/constants"
	"rideguardian/internal/models"
)

const rideColumns = `id, company_id, driver_id, shift_id, pickup_time, dropoff_time, pickup_location, destination,
    assignment_location, is_reserved, assigned_during_ride, vehicle_plate, passenger_count, distance_km, fuel_liters,
    cost_euros, toll_cost, parking_cost, other_costs, fare_revenue, payment_method, fare_type, odometer_start,
    odometer_end, is_business_trip, business_purpose, violations, status, created_at, updated_at`

func (s *Store) scanRide(row interface{ Scan(...interface{}) error }) (models.Ride, error) {
	var r models.Ride
	var violationsJSON string
	var createdAt, updatedAt sql.NullTime
	err := row.Scan(&r.ID, &r.CompanyID, &r.DriverID, &r.ShiftID.NullInt64, &r.PickupTime, &r.DropoffTime.NullTime,
		&r.PickupLocation, &r.Destination, &r.AssignmentLocation, &r.IsReserved, &r.AssignedDuringRide,
		&r.VehiclePlate, &r.PassengerCount, &r.DistanceKm, &r.FuelLiters, &r.CostEuros, &r.TollCost,
		&r.ParkingCost, &r.OtherCosts, &r.FareRevenue, &r.PaymentMethod, &r.FareType,
		&r.OdometerStart.NullFloat64, &r.OdometerEnd.NullFloat64, &r.IsBusinessTrip, &r.BusinessPurpose,
		&violationsJSON, &r.Status, &createdAt, &updatedAt)
	if err != nil {
		return r, err
	}
	if violationsJSON != "" {
		if errJSON := json.Unmarshal([]byte(violationsJSON), &r.Violations); errJSON != nil {
			log.Warnf("scanRide: некорректный JSON нарушений у поездки #%d: %v", r.ID, errJSON)
		}
	}
	if r.Violations == nil {
		r.Violations = []string{}
	}
	r.PickupTime = s.local(r.PickupTime)
	r.DropoffTime.NullTime = s.localNull(r.DropoffTime.NullTime)
	r.CreatedAt = s.local(createdAt.Time)
	r.UpdatedAt = s.local(updatedAt.Time)
	return r, nil
}

func validRideStatus(status string) bool {
	switch status {
	case constants.RIDE_STATUS_PENDING, constants.RIDE_STATUS_IN_PROGRESS, constants.RIDE_STATUS_COMPLETED,
		constants.RIDE_STATUS_CANCELLED, constants.RIDE_STATUS_VIOLATION:
		return true
	}
	return false
}

// checkRide проверяет инварианты поездки до записи.
func checkRide(r models.Ride) error {
	if r.PickupTime.IsZero() {
		return apperrors.Validation("pickup_time", "Abholzeit fehlt")
	}
	if r.DropoffTime.Valid && !r.DropoffTime.Time.After(r.PickupTime) {
		return apperrors.Validation("dropoff_time", "Fahrtende muss nach Fahrtbeginn liegen")
	}
	if r.DistanceKm < 0 {
		return apperrors.Validation("distance_km", "Entfernung darf nicht negativ sein")
	}
	if r.PassengerCount < 0 {
		return apperrors.Validation("passenger_count", "Anzahl der Fahrgäste darf nicht negativ sein")
	}
	if !validRideStatus(r.Status) {
		return apperrors.Validation("status", "Unbekannter Fahrtstatus %q", r.Status)
	}
	return nil
}

// RecordRide сохраняет поездку: вставка при ID = 0, иначе обновление. Возвращает ID.
// Водитель и смена должны принадлежать тому же тенанту, иначе NotFound.
// RecordRide inserts (ID = 0) or updates a ride and returns its id.
func (s *Store) RecordRide(ctx context.Context, r models.Ride) (int64, error) {
	if r.Status == "" {
		r.Status = constants.RIDE_STATUS_COMPLETED
	}
	if err := checkRide(r); err != nil {
		return 0, err
	}
	if r.Violations == nil {
		r.Violations = []string{}
	}
	violationsJSON, errMarshal := json.Marshal(r.Violations)
	if errMarshal != nil {
		return 0, apperrors.Internal(errMarshal, "Verstöße konnten nicht serialisiert werden")
	}
	var shiftID interface{}
	if r.ShiftID.Valid {
		shiftID = r.ShiftID.Int64
	}
	var odoStart, odoEnd interface{}
	if r.OdometerStart.Valid {
		odoStart = r.OdometerStart.Float64
	}
	if r.OdometerEnd.Valid {
		odoEnd = r.OdometerEnd.Float64
	}

	id := r.ID
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.driverInCompanyTx(ctx, tx, r.CompanyID, r.DriverID); err != nil {
			return err
		}
		if r.ShiftID.Valid {
			var one int
			errShift := s.queryRow(ctx, tx, `SELECT 1 FROM shifts WHERE company_id = ? AND id = ?`, r.CompanyID, r.ShiftID.Int64).Scan(&one)
			if errShift != nil {
				return mapDBError(errShift, "Schicht")
			}
		}
		now := s.now()
		args := []interface{}{
			r.DriverID, shiftID, ts(r.PickupTime), nullTS(r.DropoffTime.Valid, r.DropoffTime.Time),
			strings.TrimSpace(r.PickupLocation), strings.TrimSpace(r.Destination), strings.TrimSpace(r.AssignmentLocation),
			r.IsReserved, r.AssignedDuringRide, r.VehiclePlate, r.PassengerCount, r.DistanceKm, r.FuelLiters,
			r.CostEuros, r.TollCost, r.ParkingCost, r.OtherCosts, r.FareRevenue, r.PaymentMethod, r.FareType,
			odoStart, odoEnd, r.IsBusinessTrip, r.BusinessPurpose, string(violationsJSON), r.Status,
		}
		if id == 0 {
			insertArgs := append([]interface{}{r.CompanyID}, args...)
			insertArgs = append(insertArgs, now, now)
			errIns := s.queryRow(ctx, tx, `
                INSERT INTO rides (company_id, driver_id, shift_id, pickup_time, dropoff_time, pickup_location, destination,
                    assignment_location, is_reserved, assigned_during_ride, vehicle_plate, passenger_count, distance_km,
                    fuel_liters, cost_euros, toll_cost, parking_cost, other_costs, fare_revenue, payment_method, fare_type,
                    odometer_start, odometer_end, is_business_trip, business_purpose, violations, status, created_at, updated_at)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
                RETURNING id`, insertArgs...).Scan(&id)
			return mapDBError(errIns, "Fahrt")
		}
		updateArgs := append(args, now, r.CompanyID, id)
		res, errUpd := s.exec(ctx, tx, `
            UPDATE rides SET driver_id = ?, shift_id = ?, pickup_time = ?, dropoff_time = ?, pickup_location = ?,
                destination = ?, assignment_location = ?, is_reserved = ?, assigned_during_ride = ?, vehicle_plate = ?,
                passenger_count = ?, distance_km = ?, fuel_liters = ?, cost_euros = ?, toll_cost = ?, parking_cost = ?,
                other_costs = ?, fare_revenue = ?, payment_method = ?, fare_type = ?, odometer_start = ?, odometer_end = ?,
                is_business_trip = ?, business_purpose = ?, violations = ?, status = ?, updated_at = ?
            WHERE company_id = ? AND id = ?`, updateArgs...)
		if errUpd != nil {
			return mapDBError(errUpd, "Fahrt")
		}
		return requireAffected(res, "Fahrt")
	})
	if err != nil {
		log.Printf("RecordRide: ошибка сохранения поездки водителя #%d (компания #%d): %v", r.DriverID, r.CompanyID, err)
		return 0, err
	}
	return id, nil
}

// GetRide возвращает поездку тенанта по ID.
func (s *Store) GetRide(ctx context.Context, companyID, rideID int64) (models.Ride, error) {
	r, err := s.scanRide(s.queryRow(ctx, s.DB, `SELECT `+rideColumns+` FROM rides WHERE company_id = ? AND id = ?`, companyID, rideID))
	if err != nil {
		return r, mapDBError(err, "Fahrt")
	}
	return r, nil
}

// ListRides возвращает поездки тенанта по времени подачи.
// driverID = 0 - все водители. start/end - календарные даты включительно; нулевые значения не ограничивают.
func (s *Store) ListRides(ctx context.Context, companyID, driverID int64, start, end time.Time) ([]models.Ride, error) {
	q := `SELECT ` + rideColumns + ` FROM rides WHERE company_id = ?`
	args := []interface{}{companyID}
	if driverID != 0 {
		q += ` AND driver_id = ?`
		args = append(args, driverID)
	}
	if !start.IsZero() {
		q += ` AND pickup_time >= ?`
		args = append(args, ts(s.dayStart(start)))
	}
	if !end.IsZero() {
		q += ` AND pickup_time < ?`
		args = append(args, ts(s.dayStart(end).AddDate(0, 0, 1)))
	}
	q += ` ORDER BY pickup_time ASC, id ASC`
	return s.listRides(ctx, q, args...)
}

func (s *Store) listRides(ctx context.Context, q string, args ...interface{}) ([]models.Ride, error) {
	rows, err := s.query(ctx, s.DB, q, args...)
	if err != nil {
		log.Printf("ListRides: ошибка получения поездок: %v", err)
		return nil, err
	}
	defer rows.Close()
	var rides []models.Ride
	for rows.Next() {
		r, errScan := s.scanRide(rows)
		if errScan != nil {
			return nil, errScan
		}
		rides = append(rides, r)
	}
	return rides, rows.Err()
}

// ListShiftRides возвращает поездки смены по времени подачи.
func (s *Store) ListShiftRides(ctx context.Context, companyID, shiftID int64) ([]models.Ride, error) {
	return s.listRides(ctx, `SELECT `+rideColumns+` FROM rides WHERE company_id = ? AND shift_id = ? ORDER BY pickup_time ASC, id ASC`,
		companyID, shiftID)
}

// dayStart - полночь календарного дня t в часовом поясе хранилища.
func (s *Store) dayStart(t time.Time) time.Time {
	y, m, d := t.In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

// GetLastDropoff возвращает место высадки последней завершенной до before поездки водителя.
// ok=false, если такой поездки нет.
func (s *Store) GetLastDropoff(ctx context.Context, companyID, driverID int64, before time.Time) (string, bool, error) {
	var dest string
	err := s.queryRow(ctx, s.DB, `
        SELECT destination FROM rides
        WHERE company_id = ? AND driver_id = ? AND dropoff_time IS NOT NULL AND dropoff_time <= ? AND destination <> ''
        ORDER BY dropoff_time DESC, id DESC LIMIT 1`, companyID, driverID, ts(before)).Scan(&dest)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return dest, true, nil
}

// GetAdjacentRides возвращает предыдущую и следующую поездки водителя относительно pickup.
// excludeID исключает саму проверяемую поездку.
func (s *Store) GetAdjacentRides(ctx context.Context, companyID, driverID int64, pickup time.Time, excludeID int64) (prev, next *models.Ride, err error) {
	p, errPrev := s.scanRide(s.queryRow(ctx, s.DB, `
        SELECT `+rideColumns+` FROM rides
        WHERE company_id = ? AND driver_id = ? AND id <> ? AND pickup_time < ?
        ORDER BY pickup_time DESC, id DESC LIMIT 1`, companyID, driverID, excludeID, ts(pickup)))
	switch {
	case errPrev == nil:
		prev = &p
	case errPrev != sql.ErrNoRows:
		return nil, nil, errPrev
	}
	n, errNext := s.scanRide(s.queryRow(ctx, s.DB, `
        SELECT `+rideColumns+` FROM rides
        WHERE company_id = ? AND driver_id = ? AND id <> ? AND pickup_time > ?
        ORDER BY pickup_time ASC, id ASC LIMIT 1`, companyID, driverID, excludeID, ts(pickup)))
	switch {
	case errNext == nil:
		next = &n
	case errNext != sql.ErrNoRows:
		return nil, nil, errNext
	}
	return prev, next, nil
}

// UpdateRideViolations записывает идентификаторы нарушенных правил и статус поездки.
func (s *Store) UpdateRideViolations(ctx context.Context, companyID, rideID int64, ruleIDs []string, status string) error {
	if !validRideStatus(status) {
		return apperrors.Validation("status", "Unbekannter Fahrtstatus %q", status)
	}
	if ruleIDs == nil {
		ruleIDs = []string{}
	}
	raw, err := json.Marshal(ruleIDs)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, errUpd := s.exec(ctx, tx, `UPDATE rides SET violations = ?, status = ?, updated_at = ? WHERE company_id = ? AND id = ?`,
			string(raw), status, s.now(), companyID, rideID)
		if errUpd != nil {
			return errUpd
		}
		return requireAffected(res, "Fahrt")
	})
}

// TopRoutes возвращает самые частые пары (откуда, куда) тенанта.
func (s *Store) TopRoutes(ctx context.Context, companyID int64, limit int) ([]models.RouteCount, error) {
	if limit <= 0 {
		limit = constants.PRELOAD_TOP_ROUTES
	}
	rows, err := s.query(ctx, s.DB, `
        SELECT pickup_location, destination, COUNT(*) AS cnt FROM rides
        WHERE company_id = ? AND pickup_location <> '' AND destination <> ''
        GROUP BY pickup_location, destination
        ORDER BY cnt DESC, pickup_location ASC, destination ASC
        LIMIT ?`, companyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.RouteCount
	for rows.Next() {
		var rc models.RouteCount
		if err := rows.Scan(&rc.Origin, &rc.Destination, &rc.Count); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// RideStatistics - агрегаты поездок тенанта за период.
type RideStatistics struct {
	RideCount   int64   `json:"ride_count"`
	DriverCount int64   `json:"driver_count"`
	TotalKm     float64 `json:"total_km"`
	ShiftCount  int64   `json:"shift_count"`
}

// Statistics считает поездки, водителей, километры и смены за период (даты включительно).
func (s *Store) Statistics(ctx context.Context, companyID int64, start, end time.Time) (RideStatistics, error) {
	var st RideStatistics
	from, to := ts(s.dayStart(start)), ts(s.dayStart(end).AddDate(0, 0, 1))
	err := s.queryRow(ctx, s.DB, `
        SELECT COUNT(*), COUNT(DISTINCT driver_id), COALESCE(SUM(distance_km), 0)
        FROM rides WHERE company_id = ? AND pickup_time >= ? AND pickup_time < ?`,
		companyID, from, to).Scan(&st.RideCount, &st.DriverCount, &st.TotalKm)
	if err != nil {
		return st, err
	}
	err = s.queryRow(ctx, s.DB, `SELECT COUNT(*) FROM shifts WHERE company_id = ? AND shift_date >= ? AND shift_date <= ?`,
		companyID, s.dateKey(start), s.dateKey(end)).Scan(&st.ShiftCount)
	return st, err
}
