package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Таблицы в порядке создания (родители раньше потомков).
var createTablesSQL = `
        CREATE TABLE IF NOT EXISTS companies (
            id {{PK}},
            name TEXT NOT NULL UNIQUE,
            address TEXT NOT NULL DEFAULT '',
            phone TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            created_at {{TS}},
            updated_at {{TS}}
        );
        CREATE TABLE IF NOT EXISTS drivers (
            id {{PK}},
            company_id BIGINT NOT NULL REFERENCES companies(id),
            name TEXT NOT NULL,
            vehicle_plate TEXT NOT NULL DEFAULT '',
            personnel_number TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'Active',
            hourly_wage {{FLOAT}} NOT NULL DEFAULT 0,
            bonus_multiplier {{FLOAT}} NOT NULL DEFAULT 1,
            created_at {{TS}},
            updated_at {{TS}},
            UNIQUE (company_id, name)
        );
        CREATE TABLE IF NOT EXISTS vehicles (
            id {{PK}},
            company_id BIGINT NOT NULL REFERENCES companies(id),
            plate TEXT NOT NULL,
            make TEXT NOT NULL DEFAULT '',
            model TEXT NOT NULL DEFAULT '',
            year INTEGER NOT NULL DEFAULT 0,
            color TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'Available',
            current_driver_id BIGINT REFERENCES drivers(id),
            total_km {{FLOAT}} NOT NULL DEFAULT 0,
            last_maintenance {{TS}},
            next_maintenance_km {{FLOAT}} NOT NULL DEFAULT 0,
            insurance_expiry {{TS}},
            registration_expiry {{TS}},
            created_at {{TS}},
            updated_at {{TS}},
            UNIQUE (company_id, plate)
        );
        CREATE TABLE IF NOT EXISTS shifts (
            id {{PK}},
            company_id BIGINT NOT NULL REFERENCES companies(id),
            driver_id BIGINT NOT NULL REFERENCES drivers(id),
            shift_label TEXT NOT NULL DEFAULT '',
            shift_date TEXT NOT NULL,
            start_time {{TS}} NOT NULL,
            end_time {{TS}},
            start_location TEXT NOT NULL DEFAULT '',
            end_location TEXT NOT NULL DEFAULT '',
            activity TEXT NOT NULL DEFAULT 'Driving',
            total_hours {{FLOAT}} NOT NULL DEFAULT 0,
            break_minutes {{FLOAT}} NOT NULL DEFAULT 0,
            actual_hours {{FLOAT}} NOT NULL DEFAULT 0,
            early_shift_hours {{FLOAT}} NOT NULL DEFAULT 0,
            night_shift_hours {{FLOAT}} NOT NULL DEFAULT 0,
            status TEXT NOT NULL DEFAULT 'Open',
            notes TEXT NOT NULL DEFAULT '',
            created_at {{TS}},
            updated_at {{TS}}
        );
        CREATE TABLE IF NOT EXISTS rides (
            id {{PK}},
            company_id BIGINT NOT NULL REFERENCES companies(id),
            driver_id BIGINT NOT NULL REFERENCES drivers(id),
            shift_id BIGINT REFERENCES shifts(id),
            pickup_time {{TS}} NOT NULL,
            dropoff_time {{TS}},
            pickup_location TEXT NOT NULL DEFAULT '',
            destination TEXT NOT NULL DEFAULT '',
            assignment_location TEXT NOT NULL DEFAULT '',
            is_reserved BOOLEAN NOT NULL DEFAULT FALSE,
            assigned_during_ride BOOLEAN NOT NULL DEFAULT FALSE,
            vehicle_plate TEXT NOT NULL DEFAULT '',
            passenger_count INTEGER NOT NULL DEFAULT 1,
            distance_km {{FLOAT}} NOT NULL DEFAULT 0,
            fuel_liters {{FLOAT}} NOT NULL DEFAULT 0,
            cost_euros {{FLOAT}} NOT NULL DEFAULT 0,
            toll_cost {{FLOAT}} NOT NULL DEFAULT 0,
            parking_cost {{FLOAT}} NOT NULL DEFAULT 0,
            other_costs {{FLOAT}} NOT NULL DEFAULT 0,
            fare_revenue {{FLOAT}} NOT NULL DEFAULT 0,
            payment_method TEXT NOT NULL DEFAULT '',
            fare_type TEXT NOT NULL DEFAULT '',
            odometer_start {{FLOAT}},
            odometer_end {{FLOAT}},
            is_business_trip BOOLEAN NOT NULL DEFAULT FALSE,
            business_purpose TEXT NOT NULL DEFAULT '',
            violations TEXT NOT NULL DEFAULT '[]',
            status TEXT NOT NULL DEFAULT 'Pending',
            created_at {{TS}},
            updated_at {{TS}}
        );
        CREATE TABLE IF NOT EXISTS rules (
            id {{PK}},
            company_id BIGINT NOT NULL REFERENCES companies(id),
            driver_id BIGINT NOT NULL DEFAULT 0,
            rule_name TEXT NOT NULL,
            rule_value TEXT NOT NULL DEFAULT '',
            category TEXT NOT NULL DEFAULT '',
            enabled BOOLEAN NOT NULL DEFAULT TRUE,
            per_driver_override BOOLEAN NOT NULL DEFAULT FALSE,
            description TEXT NOT NULL DEFAULT '',
            created_at {{TS}},
            updated_at {{TS}},
            UNIQUE (company_id, rule_name, driver_id)
        );
        CREATE TABLE IF NOT EXISTS payroll (
            id {{PK}},
            company_id BIGINT NOT NULL REFERENCES companies(id),
            driver_id BIGINT NOT NULL REFERENCES drivers(id),
            period_start TEXT NOT NULL,
            period_end TEXT NOT NULL,
            statement_json TEXT NOT NULL,
            total_pay {{FLOAT}} NOT NULL DEFAULT 0,
            status TEXT NOT NULL,
            created_at {{TS}},
            updated_at {{TS}},
            UNIQUE (company_id, driver_id, period_start, period_end)
        );
        CREATE TABLE IF NOT EXISTS config (
            id {{PK}},
            company_id BIGINT NOT NULL REFERENCES companies(id),
            config_key TEXT NOT NULL,
            config_value TEXT NOT NULL DEFAULT '',
            created_at {{TS}},
            updated_at {{TS}},
            UNIQUE (company_id, config_key)
        );
        CREATE TABLE IF NOT EXISTS address_cache (
            id {{PK}},
            origin TEXT NOT NULL,
            destination TEXT NOT NULL,
            distance_km {{FLOAT}} NOT NULL,
            duration_min {{FLOAT}} NOT NULL,
            created_at {{TS}},
            last_used {{TS}},
            use_count BIGINT NOT NULL DEFAULT 1,
            UNIQUE (origin, destination)
        );
        CREATE TABLE IF NOT EXISTS fahrtenbuch_templates (
            id {{PK}},
            company_id BIGINT NOT NULL REFERENCES companies(id),
            name TEXT NOT NULL,
            document_type TEXT NOT NULL DEFAULT 'fahrtenbuch',
            layout_json TEXT NOT NULL DEFAULT '{}',
            is_default BOOLEAN NOT NULL DEFAULT FALSE,
            created_at {{TS}},
            updated_at {{TS}},
            UNIQUE (company_id, name)
        );
`

// columnMigrations - колонки, которые добавляются в уже существующие таблицы.
// Новые колонки дописываются в конец списка.
var columnMigrations = []struct {
	table      string
	column     string
	definition string
}{
	{"companies", "is_active", "BOOLEAN NOT NULL DEFAULT TRUE"},
	{"drivers", "personnel_number", "TEXT NOT NULL DEFAULT ''"},
	{"drivers", "bonus_multiplier", "{{FLOAT}} NOT NULL DEFAULT 1"},
	{"shifts", "activity", "TEXT NOT NULL DEFAULT 'Driving'"},
	{"shifts", "early_shift_hours", "{{FLOAT}} NOT NULL DEFAULT 0"},
	{"shifts", "night_shift_hours", "{{FLOAT}} NOT NULL DEFAULT 0"},
	{"rides", "assignment_location", "TEXT NOT NULL DEFAULT ''"},
	{"rides", "assigned_during_ride", "BOOLEAN NOT NULL DEFAULT FALSE"},
	{"rides", "toll_cost", "{{FLOAT}} NOT NULL DEFAULT 0"},
	{"rides", "parking_cost", "{{FLOAT}} NOT NULL DEFAULT 0"},
	{"rides", "other_costs", "{{FLOAT}} NOT NULL DEFAULT 0"},
	{"rides", "odometer_start", "{{FLOAT}}"},
	{"rides", "odometer_end", "{{FLOAT}}"},
	{"rides", "is_business_trip", "BOOLEAN NOT NULL DEFAULT FALSE"},
	{"rides", "business_purpose", "TEXT NOT NULL DEFAULT ''"},
	{"rides", "violations", "TEXT NOT NULL DEFAULT '[]'"},
	{"rules", "per_driver_override", "BOOLEAN NOT NULL DEFAULT FALSE"},
	{"rules", "driver_id", "BIGINT NOT NULL DEFAULT 0"},
	{"address_cache", "last_used", "{{TS}}"},
	{"address_cache", "use_count", "BIGINT NOT NULL DEFAULT 1"},
}

var createIndexesSQL = `
        CREATE INDEX IF NOT EXISTS idx_drivers_company ON drivers(company_id);
        CREATE INDEX IF NOT EXISTS idx_vehicles_company ON vehicles(company_id);
        CREATE INDEX IF NOT EXISTS idx_shifts_company_driver_start ON shifts(company_id, driver_id, start_time);
        CREATE INDEX IF NOT EXISTS idx_rides_company_driver_pickup ON rides(company_id, driver_id, pickup_time);
        CREATE INDEX IF NOT EXISTS idx_rides_shift ON rides(shift_id);
        CREATE INDEX IF NOT EXISTS idx_rules_company ON rules(company_id);
        CREATE INDEX IF NOT EXISTS idx_payroll_company_driver ON payroll(company_id, driver_id);
        CREATE INDEX IF NOT EXISTS idx_address_cache_last_used ON address_cache(last_used);
`

// ddl подставляет типы выбранного диалекта.
func (s *Store) ddl(sqlText string) string {
	var r *strings.Replacer
	if s.dialect == DialectPostgres {
		r = strings.NewReplacer("{{PK}}", "BIGSERIAL PRIMARY KEY", "{{TS}}", "TIMESTAMPTZ", "{{FLOAT}}", "DOUBLE PRECISION")
	} else {
		r = strings.NewReplacer("{{PK}}", "INTEGER PRIMARY KEY AUTOINCREMENT", "{{TS}}", "TIMESTAMP", "{{FLOAT}}", "REAL")
	}
	return r.Replace(sqlText)
}

func splitStatements(sqlText string) []string {
	var out []string
	for _, stmt := range strings.Split(sqlText, ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Migrate создает отсутствующие таблицы, добавляет отсутствующие колонки и индексы.
// Повторный запуск не меняет схему.
func (s *Store) Migrate(ctx context.Context) error {
	// Step 1: таблицы
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range splitStatements(s.ddl(createTablesSQL)) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("ошибка создания таблиц: %v", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Println("Создание таблиц (если не существуют) завершено.")

	// Step 2: колонки
	if err := s.migrateColumns(ctx); err != nil {
		return fmt.Errorf("ошибка выполнения миграции схемы: %v", err)
	}

	// Step 3: индексы, по одному, чтобы изолировать ошибки
	for _, stmt := range splitStatements(createIndexesSQL) {
		if _, errIdx := s.DB.ExecContext(ctx, stmt); errIdx != nil {
			log.Warnf("Предупреждение: ошибка при создании индекса ('%s'): %v", stmt, errIdx)
		}
	}
	log.Println("Миграция схемы базы данных успешно завершена.")
	return nil
}

func (s *Store) migrateColumns(ctx context.Context) error {
	for _, m := range columnMigrations {
		exists, err := s.columnExists(ctx, m.table, m.column)
		if err != nil {
			return fmt.Errorf("ошибка проверки колонки %s.%s: %w", m.table, m.column, err)
		}
		if exists {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.table, m.column, s.ddl(m.definition))
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			if strings.Contains(err.Error(), "already exists") || strings.Contains(err.Error(), "duplicate column") {
				log.Infof("INFO: Миграция '%s.%s' пропущена (колонка уже существует). Детали: %v", m.table, m.column, err)
				continue
			}
			return fmt.Errorf("ошибка миграции схемы ('%s.%s'): %v", m.table, m.column, err)
		}
		log.Infof("INFO: Миграция ('%s.%s') успешно применена.", m.table, m.column)
	}
	return nil
}

// columnExists проверяет наличие колонки в существующей таблице.
func (s *Store) columnExists(ctx context.Context, table, column string) (bool, error) {
	if s.dialect == DialectPostgres {
		var exists bool
		err := s.DB.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = $1 AND column_name = $2)`,
			table, column).Scan(&exists)
		return exists, err
	}
	cols, err := s.TableColumns(ctx, table)
	if err != nil {
		return false, err
	}
	for _, c := range cols {
		if c == column {
			return true, nil
		}
	}
	return false, nil
}

// TableColumns возвращает имена колонок таблицы в порядке их объявления.
func (s *Store) TableColumns(ctx context.Context, table string) ([]string, error) {
	var rows *sql.Rows
	var err error
	if s.dialect == DialectPostgres {
		rows, err = s.DB.QueryContext(ctx,
			`SELECT column_name FROM information_schema.columns WHERE table_name = $1 ORDER BY ordinal_position`, table)
	} else {
		rows, err = s.DB.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}
