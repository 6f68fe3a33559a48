package db

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"rideguardian/internal/apperrors"
	"rideguardian/internal/constants"
)

// GetConfig возвращает значение ключа конфигурации тенанта; ok=false, если ключ не задан.
func (s *Store) GetConfig(ctx context.Context, companyID int64, key string) (string, bool, error) {
	var value string
	err := s.queryRow(ctx, s.DB, `SELECT config_value FROM config WHERE company_id = ? AND config_key = ?`, companyID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		log.Printf("GetConfig: ошибка чтения ключа '%s' для компании #%d: %v", key, companyID, err)
		return "", false, err
	}
	return value, true, nil
}

// SetConfig записывает (upsert) значение ключа конфигурации тенанта.
func (s *Store) SetConfig(ctx context.Context, companyID int64, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return apperrors.Validation("key", "Konfigurationsschlüssel darf nicht leer sein")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.companyExistsTx(ctx, tx, companyID); err != nil {
			return err
		}
		now := s.now()
		_, err := s.exec(ctx, tx, `
            INSERT INTO config (company_id, config_key, config_value, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?)
            ON CONFLICT (company_id, config_key) DO UPDATE SET
                config_value = EXCLUDED.config_value,
                updated_at = EXCLUDED.updated_at`,
			companyID, key, value, now, now)
		if err != nil {
			log.Printf("SetConfig: ошибка записи ключа '%s' для компании #%d: %v", key, companyID, err)
			return mapDBError(err, "Konfiguration")
		}
		return nil
	})
}

// GetAllConfig возвращает все ключи конфигурации тенанта.
func (s *Store) GetAllConfig(ctx context.Context, companyID int64) (map[string]string, error) {
	rows, err := s.query(ctx, s.DB, `SELECT config_key, config_value FROM config WHERE company_id = ? ORDER BY config_key`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// ConfigFloat читает числовой ключ; при отсутствии или ошибке разбора возвращает def.
// Допускается десятичная запятая ("8,5").
func (s *Store) ConfigFloat(ctx context.Context, companyID int64, key string, def float64) float64 {
	raw, ok, err := s.GetConfig(ctx, companyID, key)
	if err != nil || !ok {
		return def
	}
	v, errParse := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(raw), ",", "."), 64)
	if errParse != nil {
		log.Warnf("ConfigFloat: некорректное значение '%s' для ключа '%s' (компания #%d), используется %v", raw, key, companyID, def)
		return def
	}
	return v
}

// HeadquartersAddress возвращает адрес базы: ключ headquarters_address или адрес компании.
func (s *Store) HeadquartersAddress(ctx context.Context, companyID int64) (string, error) {
	hq, ok, err := s.GetConfig(ctx, companyID, constants.CFG_HEADQUARTERS_ADDRESS)
	if err != nil {
		return "", err
	}
	if ok && strings.TrimSpace(hq) != "" {
		return strings.TrimSpace(hq), nil
	}
	c, err := s.GetCompany(ctx, companyID)
	if err != nil {
		return "", err
	}
	return c.Address, nil
}
