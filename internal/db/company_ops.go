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

const companyColumns = `id, name, address, phone, email, is_active, created_at, updated_at`

func (s *Store) scanCompany(row interface{ Scan(...interface{}) error }) (models.Company, error) {
	var c models.Company
	var createdAt, updatedAt sql.NullTime
	err := row.Scan(&c.ID, &c.Name, &c.Address, &c.Phone, &c.Email, &c.IsActive, &createdAt, &updatedAt)
	if err != nil {
		return c, err
	}
	c.CreatedAt = s.local(createdAt.Time)
	c.UpdatedAt = s.local(updatedAt.Time)
	return c, nil
}

// GetCompanies возвращает активные компании, отсортированные по имени.
// GetCompanies returns active tenants ordered by name.
func (s *Store) GetCompanies(ctx context.Context) ([]models.Company, error) {
	rows, err := s.query(ctx, s.DB, `SELECT `+companyColumns+` FROM companies WHERE is_active = TRUE ORDER BY name ASC`)
	if err != nil {
		log.Printf("GetCompanies: ошибка получения списка компаний: %v", err)
		return nil, err
	}
	defer rows.Close()

	var companies []models.Company
	for rows.Next() {
		c, errScan := s.scanCompany(rows)
		if errScan != nil {
			log.Printf("GetCompanies: ошибка сканирования компании: %v", errScan)
			return nil, errScan
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// GetCompany возвращает компанию по ID (в том числе неактивную).
func (s *Store) GetCompany(ctx context.Context, companyID int64) (models.Company, error) {
	c, err := s.scanCompany(s.queryRow(ctx, s.DB, `SELECT `+companyColumns+` FROM companies WHERE id = ?`, companyID))
	if err != nil {
		return c, mapDBError(err, "Unternehmen")
	}
	return c, nil
}

// AddCompany создает тенанта и записывает для него правила и шаблоны по умолчанию.
// Дубликат имени возвращает ошибку Conflict.
// AddCompany creates a tenant and seeds its default rules and templates. Duplicate name → Conflict.
func (s *Store) AddCompany(ctx context.Context, name, address, phone, email string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, apperrors.Validation("name", "Firmenname darf nicht leer sein")
	}
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		errIns := s.queryRow(ctx, tx, `
            INSERT INTO companies (name, address, phone, email, is_active, created_at, updated_at)
            VALUES (?, ?, ?, ?, TRUE, ?, ?)
            RETURNING id`,
			name, strings.TrimSpace(address), phone, email, now, now).Scan(&id)
		if errIns != nil {
			return mapDBError(errIns, "Unternehmen")
		}
		if errRules := s.seedDefaultRulesTx(ctx, tx, id); errRules != nil {
			return errRules
		}
		return s.seedDefaultTemplatesTx(ctx, tx, id)
	})
	if err != nil {
		log.Printf("AddCompany: ошибка создания компании '%s': %v", name, err)
		return 0, err
	}
	log.Printf("Компания #%d '%s' успешно создана.", id, name)
	return id, nil
}

// EnsureDefaultCompany гарантирует наличие хотя бы одной компании и возвращает ID первой активной.
func (s *Store) EnsureDefaultCompany(ctx context.Context) (int64, error) {
	var id int64
	err := s.queryRow(ctx, s.DB, `SELECT id FROM companies WHERE is_active = TRUE ORDER BY id ASC LIMIT 1`).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}
	log.Println("Активных компаний нет, создается компания по умолчанию.")
	return s.AddCompany(ctx, constants.DEFAULT_COMPANY_NAME, constants.DEFAULT_COMPANY_ADDRESS, "", "")
}

// UpdateCompany обновляет реквизиты компании.
func (s *Store) UpdateCompany(ctx context.Context, c models.Company) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx, `
            UPDATE companies SET name = ?, address = ?, phone = ?, email = ?, updated_at = ?
            WHERE id = ?`,
			strings.TrimSpace(c.Name), strings.TrimSpace(c.Address), c.Phone, c.Email, s.now(), c.ID)
		if err != nil {
			return mapDBError(err, "Unternehmen")
		}
		return requireAffected(res, "Unternehmen")
	})
}

// DeactivateCompany - мягкое удаление: компания пропадает из GetCompanies, данные остаются.
func (s *Store) DeactivateCompany(ctx context.Context, companyID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx, `UPDATE companies SET is_active = FALSE, updated_at = ? WHERE id = ?`, s.now(), companyID)
		if err != nil {
			return err
		}
		return requireAffected(res, "Unternehmen")
	})
}

// requireAffected превращает UPDATE без затронутых строк в NotFound.
func requireAffected(res sql.Result, entity string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NotFound("%s nicht gefunden", entity)
	}
	return nil
}

// companyExistsTx проверяет существование активной компании внутри транзакции.
func (s *Store) companyExistsTx(ctx context.Context, q querier, companyID int64) error {
	var one int
	err := s.queryRow(ctx, q, `SELECT 1 FROM companies WHERE id = ?`, companyID).Scan(&one)
	if err != nil {
		return mapDBError(err, "Unternehmen")
	}
	return nil
}
