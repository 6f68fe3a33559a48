// Файл: internal/db/db.go
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite" // pure-Go драйвер sqlite ("sqlite")
	"github.com/lib/pq"               // PostgreSQL driver
	log "github.com/sirupsen/logrus"

	"rideguardian/internal/apperrors"
)

// Поддерживаемые SQL-диалекты
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Store - типизированное хранилище всех сущностей. Все выборки фильтруются по company_id.
// Store is the typed persistent storage. Every tenant-scoped query filters by company_id.
type Store struct {
	DB      *sql.DB
	dialect string
	loc     *time.Location
}

// querier объединяет *sql.DB и *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Open открывает соединение, выполняет миграции и гарантирует наличие тенанта по умолчанию.
// driver - "sqlite" или "postgres"; loc - часовой пояс, в котором возвращаются метки времени.
func Open(driver, dsn string, loc *time.Location) (*Store, error) {
	if loc == nil {
		loc = time.Local
	}
	var err error
	s := &Store{dialect: driver, loc: loc}

	switch driver {
	case DialectSQLite:
		if dsn == "" {
			dsn = ":memory:"
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
		}
		s.DB, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("ошибка открытия базы sqlite: %w", err)
		}
		// Одно логическое соединение: in-memory база живет, пока живет соединение.
		s.DB.SetMaxOpenConns(1)
		s.DB.SetMaxIdleConns(1)
		s.DB.SetConnMaxLifetime(0)
	case DialectPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("DATABASE_URL не установлена")
		}
		s.DB, err = sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("ошибка подключения к базе данных: %v", err)
		}
		s.DB.SetMaxOpenConns(10)
		s.DB.SetMaxIdleConns(5)
		s.DB.SetConnMaxLifetime(5 * time.Minute)
	default:
		return nil, fmt.Errorf("неизвестный драйвер базы данных: %q", driver)
	}

	if err := s.DB.Ping(); err != nil {
		s.DB.Close()
		return nil, fmt.Errorf("ошибка проверки соединения с базой данных: %v", err)
	}
	log.Printf("Успешное подключение к базе данных (%s).", driver)

	if err := s.Migrate(context.Background()); err != nil {
		s.DB.Close()
		return nil, err
	}
	if _, err := s.EnsureDefaultCompany(context.Background()); err != nil {
		s.DB.Close()
		return nil, fmt.Errorf("ошибка создания тенанта по умолчанию: %w", err)
	}
	log.Println("Инициализация базы данных успешно завершена.")
	return s, nil
}

// Dialect возвращает имя SQL-диалекта.
func (s *Store) Dialect() string { return s.dialect }

// Location возвращает часовой пояс хранилища.
func (s *Store) Location() *time.Location { return s.loc }

// Close закрывает соединение с базой данных.
func (s *Store) Close() {
	if s != nil && s.DB != nil {
		s.DB.Close()
		log.Println("Соединение с базой данных закрыто.")
	}
}

// rebind переписывает плейсхолдеры "?" в "$n" для PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, q querier, query string, args ...interface{}) (sql.Result, error) {
	return q.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, q querier, query string, args ...interface{}) (*sql.Rows, error) {
	return q.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, q querier, query string, args ...interface{}) *sql.Row {
	return q.QueryRowContext(ctx, s.rebind(query), args...)
}

// withTx выполняет fn в транзакции. Ошибка или паника откатывают транзакцию.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			log.Debugf("Откат транзакции из-за ошибки: %v", err)
			tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// ts приводит время к UTC с точностью до секунды перед записью.
func ts(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// nullTS - как ts, но для необязательных значений.
func nullTS(valid bool, t time.Time) interface{} {
	if !valid {
		return nil
	}
	return ts(t)
}

func (s *Store) local(t time.Time) time.Time {
	return t.In(s.loc)
}

func (s *Store) localNull(nt sql.NullTime) sql.NullTime {
	if nt.Valid {
		nt.Time = nt.Time.In(s.loc)
	}
	return nt
}

// dateKey форматирует календарную дату в часовом поясе хранилища.
func (s *Store) dateKey(t time.Time) string {
	return t.In(s.loc).Format("2006-01-02")
}

func (s *Store) parseDateKey(v string) time.Time {
	t, err := time.ParseInLocation("2006-01-02", v, s.loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (s *Store) now() time.Time {
	return ts(time.Now())
}

// mapDBError переводит ошибки драйверов в типизированные ошибки приложения.
func mapDBError(err error, entity string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound("%s nicht gefunden", entity)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return &apperrors.Error{Kind: apperrors.KindConflict, Field: pqErr.Constraint, Message: entity + " existiert bereits", Err: err}
		case "23503":
			return &apperrors.Error{Kind: apperrors.KindNotFound, Field: pqErr.Constraint, Message: "Verweis von " + entity + " nicht gefunden", Err: err}
		}
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return &apperrors.Error{Kind: apperrors.KindConflict, Message: entity + " existiert bereits", Err: err}
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return &apperrors.Error{Kind: apperrors.KindNotFound, Message: "Verweis von " + entity + " nicht gefunden", Err: err}
	}
	return err
}
