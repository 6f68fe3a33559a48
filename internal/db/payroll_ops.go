package db

import (
	"context"
	"database/sql"
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"rideguardian/internal/apperrors"
	"rideguardian/internal/models"
)

// SavePayrollRecord сохраняет расчетный лист (upsert по компании, водителю и периоду).
func (s *Store) SavePayrollRecord(ctx context.Context, ps models.PayStatement) (int64, error) {
	raw, err := json.Marshal(ps)
	if err != nil {
		return 0, apperrors.Internal(err, "Abrechnung konnte nicht serialisiert werden")
	}
	var id int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.driverInCompanyTx(ctx, tx, ps.CompanyID, ps.DriverID); err != nil {
			return err
		}
		now := s.now()
		errUp := s.queryRow(ctx, tx, `
            INSERT INTO payroll (company_id, driver_id, period_start, period_end, statement_json, total_pay, status, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT (company_id, driver_id, period_start, period_end) DO UPDATE SET
                statement_json = EXCLUDED.statement_json,
                total_pay = EXCLUDED.total_pay,
                status = EXCLUDED.status,
                updated_at = EXCLUDED.updated_at
            RETURNING id`,
			ps.CompanyID, ps.DriverID, ps.PeriodStart, ps.PeriodEnd, string(raw), ps.TotalPay, ps.Status(), now, now).Scan(&id)
		return mapDBError(errUp, "Abrechnung")
	})
	if err != nil {
		log.Printf("SavePayrollRecord: ошибка сохранения расчета водителя #%d: %v", ps.DriverID, err)
		return 0, err
	}
	return id, nil
}

// GetPayrollRecord возвращает сохраненный расчетный лист за период (даты "YYYY-MM-DD").
func (s *Store) GetPayrollRecord(ctx context.Context, companyID, driverID int64, periodStart, periodEnd string) (models.PayrollRecord, error) {
	var rec models.PayrollRecord
	var raw string
	var createdAt, updatedAt sql.NullTime
	err := s.queryRow(ctx, s.DB, `
        SELECT id, statement_json, status, created_at, updated_at FROM payroll
        WHERE company_id = ? AND driver_id = ? AND period_start = ? AND period_end = ?`,
		companyID, driverID, periodStart, periodEnd).Scan(&rec.ID, &raw, &rec.Status, &createdAt, &updatedAt)
	if err != nil {
		return rec, mapDBError(err, "Abrechnung")
	}
	if err := json.Unmarshal([]byte(raw), &rec.Statement); err != nil {
		return rec, apperrors.Internal(err, "Gespeicherte Abrechnung #%d ist beschädigt", rec.ID)
	}
	rec.CreatedAt = s.local(createdAt.Time)
	rec.UpdatedAt = s.local(updatedAt.Time)
	return rec, nil
}
