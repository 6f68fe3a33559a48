package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"rideguardian/internal/apperrors"
	"rideguardian/internal/constants"
	"rideguardian/internal/models"
)

const ruleColumns = `id, company_id, driver_id, rule_name, rule_value, category, enabled, per_driver_override, description, created_at, updated_at`

// ListRules возвращает все строки правил тенанта (общие и персональные).
func (s *Store) ListRules(ctx context.Context, companyID int64) ([]models.Rule, error) {
	rows, err := s.query(ctx, s.DB, `SELECT `+ruleColumns+` FROM rules WHERE company_id = ? ORDER BY rule_name ASC, driver_id ASC`, companyID)
	if err != nil {
		log.Printf("ListRules: ошибка получения правил компании #%d: %v", companyID, err)
		return nil, err
	}
	defer rows.Close()
	var rules []models.Rule
	for rows.Next() {
		var r models.Rule
		var createdAt, updatedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.DriverID, &r.Name, &r.Value, &r.Category, &r.Enabled,
			&r.PerDriverOverride, &r.Description, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		r.CreatedAt = s.local(createdAt.Time)
		r.UpdatedAt = s.local(updatedAt.Time)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// UpsertRule создает или обновляет правило по (company_id, rule_name, driver_id).
func (s *Store) UpsertRule(ctx context.Context, r models.Rule) error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return apperrors.Validation("rule_name", "Regelname darf nicht leer sein")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.companyExistsTx(ctx, tx, r.CompanyID); err != nil {
			return err
		}
		if r.DriverID != 0 {
			if err := s.driverInCompanyTx(ctx, tx, r.CompanyID, r.DriverID); err != nil {
				return err
			}
		}
		return s.upsertRuleTx(ctx, tx, r)
	})
}

func (s *Store) upsertRuleTx(ctx context.Context, q querier, r models.Rule) error {
	now := s.now()
	_, err := s.exec(ctx, q, `
        INSERT INTO rules (company_id, driver_id, rule_name, rule_value, category, enabled, per_driver_override, description, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (company_id, rule_name, driver_id) DO UPDATE SET
            rule_value = EXCLUDED.rule_value,
            category = EXCLUDED.category,
            enabled = EXCLUDED.enabled,
            per_driver_override = EXCLUDED.per_driver_override,
            description = EXCLUDED.description,
            updated_at = EXCLUDED.updated_at`,
		r.CompanyID, r.DriverID, r.Name, r.Value, r.Category, r.Enabled, r.PerDriverOverride, r.Description, now, now)
	return mapDBError(err, "Regel")
}

// SeedDefaultRules записывает отсутствующие правила каталога; существующие строки не меняются.
func (s *Store) SeedDefaultRules(ctx context.Context, companyID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.seedDefaultRulesTx(ctx, tx, companyID)
	})
}

func (s *Store) seedDefaultRulesTx(ctx context.Context, q querier, companyID int64) error {
	now := s.now()
	for _, def := range constants.DefaultRules {
		_, err := s.exec(ctx, q, `
            INSERT INTO rules (company_id, driver_id, rule_name, rule_value, category, enabled, per_driver_override, description, created_at, updated_at)
            VALUES (?, 0, ?, ?, ?, TRUE, FALSE, ?, ?, ?)
            ON CONFLICT (company_id, rule_name, driver_id) DO NOTHING`,
			companyID, def.Name, def.Value, def.Category, def.Description, now, now)
		if err != nil {
			return fmt.Errorf("ошибка записи правила '%s' для компании #%d: %w", def.Name, companyID, err)
		}
	}
	return nil
}
