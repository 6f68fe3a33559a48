package db

import (
	"context"
	"database/sql"
	"time"

	log "github.com/sirupsen/logrus"

	"rideguardian/internal/models"
)

// Таблица address_cache общая для всех тенантов: расстояние между адресами от компании не зависит.

const addressCacheColumns = `id, origin, destination, distance_km, duration_min, created_at, last_used, use_count`

func (s *Store) scanAddressCache(row interface{ Scan(...interface{}) error }) (models.AddressCacheEntry, error) {
	var e models.AddressCacheEntry
	var firstSeen, lastUsed sql.NullTime
	err := row.Scan(&e.ID, &e.Origin, &e.Destination, &e.DistanceKm, &e.DurationMin, &firstSeen, &lastUsed, &e.UseCount)
	if err != nil {
		return e, err
	}
	e.FirstSeen = s.local(firstSeen.Time)
	e.LastUsed = s.local(lastUsed.Time)
	return e, nil
}

// GetAddressCache возвращает запись кэша по нормализованной паре адресов; ok=false при промахе.
func (s *Store) GetAddressCache(ctx context.Context, origin, destination string) (models.AddressCacheEntry, bool, error) {
	e, err := s.scanAddressCache(s.queryRow(ctx, s.DB,
		`SELECT `+addressCacheColumns+` FROM address_cache WHERE origin = ? AND destination = ?`, origin, destination))
	if err == sql.ErrNoRows {
		return e, false, nil
	}
	if err != nil {
		log.Printf("GetAddressCache: ошибка чтения кэша адресов: %v", err)
		return e, false, err
	}
	return e, true, nil
}

// TouchAddressCache атомарно увеличивает use_count и обновляет last_used. Возвращает новое значение счетчика.
func (s *Store) TouchAddressCache(ctx context.Context, origin, destination string) (int64, error) {
	var count int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		errUpd := s.queryRow(ctx, tx, `
            UPDATE address_cache SET use_count = use_count + 1, last_used = ?
            WHERE origin = ? AND destination = ?
            RETURNING use_count`, s.now(), origin, destination).Scan(&count)
		return mapDBError(errUpd, "Adress-Cache-Eintrag")
	})
	return count, err
}

// SaveAddressCache записывает ответ картографического сервиса.
// Новая пара получает use_count = 1; существующая обновляет значения и увеличивает счетчик.
func (s *Store) SaveAddressCache(ctx context.Context, origin, destination string, km, minutes float64) (models.AddressCacheEntry, error) {
	var e models.AddressCacheEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		var errUp error
		e, errUp = s.scanAddressCache(s.queryRow(ctx, tx, `
            INSERT INTO address_cache (origin, destination, distance_km, duration_min, created_at, last_used, use_count)
            VALUES (?, ?, ?, ?, ?, ?, 1)
            ON CONFLICT (origin, destination) DO UPDATE SET
                distance_km = EXCLUDED.distance_km,
                duration_min = EXCLUDED.duration_min,
                last_used = EXCLUDED.last_used,
                use_count = address_cache.use_count + 1
            RETURNING `+addressCacheColumns, origin, destination, km, minutes, now, now))
		return errUp
	})
	if err != nil {
		log.Printf("SaveAddressCache: ошибка записи кэша адресов: %v", err)
	}
	return e, err
}

// AddressCacheStats - агрегаты таблицы кэша.
type AddressCacheStats struct {
	Entries      int64   `json:"entries"`
	TotalUses    int64   `json:"total_uses"`
	AverageReuse float64 `json:"average_reuse"` // среднее use_count среди записей, использованных больше одного раза
}

// GetAddressCacheStats возвращает число записей, суммарное число использований и среднее повторное использование.
func (s *Store) GetAddressCacheStats(ctx context.Context) (AddressCacheStats, error) {
	var st AddressCacheStats
	err := s.queryRow(ctx, s.DB, `SELECT COUNT(*), COALESCE(SUM(use_count), 0) FROM address_cache`).Scan(&st.Entries, &st.TotalUses)
	if err != nil {
		return st, err
	}
	var avg sql.NullFloat64
	err = s.queryRow(ctx, s.DB, `SELECT AVG(use_count) FROM address_cache WHERE use_count > 1`).Scan(&avg)
	st.AverageReuse = avg.Float64
	return st, err
}

// TopReusedRoutes возвращает наиболее часто используемые записи кэша.
func (s *Store) TopReusedRoutes(ctx context.Context, limit int) ([]models.AddressCacheEntry, error) {
	rows, err := s.query(ctx, s.DB, `SELECT `+addressCacheColumns+` FROM address_cache
        ORDER BY use_count DESC, origin ASC, destination ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.AddressCacheEntry
	for rows.Next() {
		e, errScan := s.scanAddressCache(rows)
		if errScan != nil {
			return nil, errScan
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteStaleAddressCache удаляет однократно использованные записи, не запрошенные с olderThan.
func (s *Store) DeleteStaleAddressCache(ctx context.Context, olderThan time.Time) (int64, error) {
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, errDel := s.exec(ctx, tx, `DELETE FROM address_cache WHERE use_count = 1 AND last_used < ?`, ts(olderThan))
		if errDel != nil {
			return errDel
		}
		n, errDel = res.RowsAffected()
		return errDel
	})
	if err != nil {
		log.Printf("DeleteStaleAddressCache: ошибка очистки кэша адресов: %v", err)
		return 0, err
	}
	log.Printf("Кэш адресов: удалено %d устаревших записей.", n)
	return n, nil
}
