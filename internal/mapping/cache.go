// Package mapping - кэш расстояний и времени в пути между адресами.
// Промахи уходят к внешнему картографическому сервису, при его недоступности используется оценка.
package mapping

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"rideguardian/internal/apperrors"
	"rideguardian/internal/constants"
	"rideguardian/internal/db"
	"rideguardian/internal/models"
)

// ErrNotConfigured - ключ картографического сервиса не задан.
var ErrNotConfigured = errors.New("Kartendienst nicht konfiguriert")

// Provider - внешний картографический сервис: (км, минуты) для пары адресов.
type Provider interface {
	Distance(ctx context.Context, origin, destination string) (km, minutes float64, err error)
}

// Geocoder - необязательная возможность провайдера стандартизировать адрес.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (formatted string, valid bool, err error)
}

// Source - откуда получен результат.
type Source string

const (
	SourceCache    Source = "cache"
	SourceProvider Source = "provider"
	SourceFallback Source = "fallback"
)

// Result - ответ Lookup. Notice заполнен (MappingUnavailable), если использована оценка.
type Result struct {
	DistanceKm  float64 `json:"distance_km"`
	DurationMin float64 `json:"duration_min"`
	Source      Source  `json:"source"`
	UseCount    int64   `json:"use_count"`
	Notice      error   `json:"-"`
}

// Store - операции таблицы address_cache, нужные кэшу. Реализуется *db.Store.
type Store interface {
	GetAddressCache(ctx context.Context, origin, destination string) (models.AddressCacheEntry, bool, error)
	TouchAddressCache(ctx context.Context, origin, destination string) (int64, error)
	SaveAddressCache(ctx context.Context, origin, destination string, km, minutes float64) (models.AddressCacheEntry, error)
	GetAddressCacheStats(ctx context.Context) (db.AddressCacheStats, error)
	TopReusedRoutes(ctx context.Context, limit int) ([]models.AddressCacheEntry, error)
	DeleteStaleAddressCache(ctx context.Context, olderThan time.Time) (int64, error)
}

// Cache - кэш адресов процесса. Записи сериализуются, параллельные промахи по одному ключу
// объединяются в один запрос к провайдеру.
type Cache struct {
	store    Store
	provider Provider
	timeout  time.Duration
	parallel int

	group   singleflight.Group
	writeMu sync.Mutex

	sessionHits  int64
	sessionCalls int64
}

// Option настраивает Cache.
type Option func(*Cache)

// WithTimeout задает таймаут запроса к провайдеру (по умолчанию 5 с).
func WithTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithParallelism ограничивает число одновременных запросов к провайдеру в Batch.
func WithParallelism(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.parallel = n
		}
	}
}

// NewCache создает кэш. provider может быть nil: тогда все промахи отвечаются оценкой.
func NewCache(store Store, provider Provider, opts ...Option) *Cache {
	c := &Cache{store: store, provider: provider, timeout: constants.MAPPING_TIMEOUT, parallel: 4}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup возвращает расстояние и время в пути.
// useCache=false пропускает чтение кэша, но результат провайдера все равно сохраняется.
func (c *Cache) Lookup(ctx context.Context, origin, destination string, useCache bool) (Result, error) {
	o, d := NormalizeAddress(origin), NormalizeAddress(destination)
	if o == "" || d == "" {
		return Result{}, apperrors.Validation("address", "Start- und Zieladresse erforderlich")
	}
	if err := ctx.Err(); err != nil {
		return Result{}, apperrors.Cancelled(err)
	}

	if useCache {
		res, hit, err := c.fromCache(ctx, o, d)
		if err != nil || hit {
			return res, err
		}
	}
	cacheMissesTotal.Inc()
	return c.resolve(ctx, o, d, useCache)
}

// fromCache читает запись и при попадании атомарно увеличивает счетчик.
func (c *Cache) fromCache(ctx context.Context, o, d string) (Result, bool, error) {
	entry, ok, err := c.store.GetAddressCache(ctx, o, d)
	if err != nil {
		return Result{}, false, err
	}
	if !ok {
		return Result{}, false, nil
	}
	count, err := c.touch(ctx, o, d)
	if err != nil {
		return Result{}, false, err
	}
	atomic.AddInt64(&c.sessionHits, 1)
	cacheHitsTotal.Inc()
	return Result{DistanceKm: entry.DistanceKm, DurationMin: entry.DurationMin, Source: SourceCache, UseCount: count}, true, nil
}

func (c *Cache) touch(ctx context.Context, o, d string) (int64, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.store.TouchAddressCache(ctx, o, d)
}

// resolve обрабатывает промах. Вызовы для одного ключа объединяются; каждый ожидающий,
// кроме выполнившего запрос, фиксирует свое использование отдельным Touch.
func (c *Cache) resolve(ctx context.Context, o, d string, useCache bool) (Result, error) {
	executed := false
	// Запрос в обход кэша не должен получать результат кэшированного запроса.
	key := o + "\x00" + d
	if !useCache {
		key += "\x00nocache"
	}
	ch := c.group.DoChan(key, func() (interface{}, error) {
		executed = true
		// Запрос к провайдеру не должен прерываться отменой одного из ожидающих.
		return c.fetch(context.WithoutCancel(ctx), o, d, useCache)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return Result{}, apperrors.Cancelled(ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return Result{}, res.Err
	}
	out := res.Val.(Result)
	if executed || out.Source == SourceFallback {
		return out, nil
	}
	count, err := c.touch(ctx, o, d)
	if err != nil {
		return Result{}, err
	}
	out.Source = SourceCache
	out.UseCount = count
	atomic.AddInt64(&c.sessionHits, 1)
	cacheHitsTotal.Inc()
	return out, nil
}

// fetch выполняет запрос к провайдеру и сохраняет ответ. Ошибка или таймаут дают оценку без записи.
func (c *Cache) fetch(ctx context.Context, o, d string, useCache bool) (Result, error) {
	if useCache {
		// Запись могла появиться, пока ключ ждал своей очереди.
		if res, hit, err := c.fromCache(ctx, o, d); err != nil || hit {
			return res, err
		}
	}
	km, minutes, err := c.callProvider(ctx, o, d)
	if err != nil {
		fallbacksTotal.Inc()
		fkm, fmin := Fallback(o, d)
		log.WithFields(log.Fields{"origin": o, "destination": d}).Warnf("Lookup: картографический сервис недоступен, используется оценка: %v", err)
		return Result{DistanceKm: fkm, DurationMin: fmin, Source: SourceFallback, Notice: apperrors.MappingUnavailable(err)}, nil
	}

	c.writeMu.Lock()
	entry, errSave := c.store.SaveAddressCache(ctx, o, d, km, minutes)
	c.writeMu.Unlock()
	if errSave != nil {
		return Result{}, errSave
	}
	return Result{DistanceKm: km, DurationMin: minutes, Source: SourceProvider, UseCount: entry.UseCount}, nil
}

func (c *Cache) callProvider(ctx context.Context, o, d string) (float64, float64, error) {
	if c.provider == nil {
		providerRequestsTotal.WithLabelValues("not_configured").Inc()
		return 0, 0, ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	atomic.AddInt64(&c.sessionCalls, 1)
	km, minutes, err := c.provider.Distance(ctx, o, d)
	switch {
	case err == nil && (km < 0 || minutes < 0):
		err = errors.New("negative Entfernung vom Kartendienst")
		providerRequestsTotal.WithLabelValues("error").Inc()
	case err == nil:
		providerRequestsTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		providerRequestsTotal.WithLabelValues("timeout").Inc()
	default:
		providerRequestsTotal.WithLabelValues("error").Inc()
	}
	return km, minutes, err
}

// Distance - удобная обертка над Lookup с чтением кэша.
func (c *Cache) Distance(ctx context.Context, origin, destination string) (Result, error) {
	return c.Lookup(ctx, origin, destination, true)
}
