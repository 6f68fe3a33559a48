package mapping

import (
	"context"
	"math"
	"strings"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"rideguardian/internal/constants"
	"rideguardian/internal/models"
)

// EfficiencyStats - статистика эффективности кэша адресов.
type EfficiencyStats struct {
	Entries            int64                      `json:"entries"`
	TotalUses          int64                      `json:"total_uses"`
	AverageReuse       float64                    `json:"average_reuse"`
	TopReusedRoutes    []models.AddressCacheEntry `json:"top_reused_routes"`
	SavedCalls         int64                      `json:"saved_calls"`
	SavedCostEUR       float64                    `json:"saved_cost_eur"`
	SessionHits        int64                      `json:"session_hits"`
	SessionCalls       int64                      `json:"session_calls"`
	SessionHitRatioPct float64                    `json:"session_hit_ratio_pct"`
}

// EfficiencyStats считает сэкономленные запросы (по €0,005 за запрос) и долю попаданий в текущей сессии.
func (c *Cache) EfficiencyStats(ctx context.Context) (EfficiencyStats, error) {
	var st EfficiencyStats
	agg, err := c.store.GetAddressCacheStats(ctx)
	if err != nil {
		return st, err
	}
	top, err := c.store.TopReusedRoutes(ctx, 10)
	if err != nil {
		return st, err
	}
	st.Entries = agg.Entries
	st.TotalUses = agg.TotalUses
	st.AverageReuse = math.Round(agg.AverageReuse*100) / 100
	st.TopReusedRoutes = []models.AddressCacheEntry{}
	for _, e := range top {
		if e.UseCount > 1 {
			st.TopReusedRoutes = append(st.TopReusedRoutes, e)
		}
	}
	st.SavedCalls = agg.TotalUses - agg.Entries
	st.SavedCostEUR = round2(float64(st.SavedCalls) * constants.MAPPING_COST_PER_REQUEST_EUR)
	st.SessionHits = atomic.LoadInt64(&c.sessionHits)
	st.SessionCalls = atomic.LoadInt64(&c.sessionCalls)
	if total := st.SessionHits + st.SessionCalls; total > 0 {
		st.SessionHitRatioPct = math.Round(float64(st.SessionHits)/float64(total)*1000) / 10
	}
	return st, nil
}

// Optimize удаляет однократно использованные записи, к которым не обращались полгода.
func (c *Cache) Optimize(ctx context.Context) (int64, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.store.DeleteStaleAddressCache(ctx, time.Now().Add(-constants.CACHE_STALE_AFTER))
}

// PreloadCommonRoutes загружает в кэш маршруты от базы к частым целям и обратно, а также между целями.
// Возвращает число запрошенных пар.
func (c *Cache) PreloadCommonRoutes(ctx context.Context, headquarters string, destinations []string) (int, error) {
	hq := NormalizeAddress(headquarters)
	var dests []string
	seen := map[string]bool{}
	for _, d := range destinations {
		n := NormalizeAddress(d)
		if n == "" || n == hq || seen[n] {
			continue
		}
		seen[n] = true
		dests = append(dests, n)
	}
	log.Printf("PreloadCommonRoutes: предзагрузка %d частых маршрутов...", len(dests))

	var pairs [][2]string
	if hq != "" {
		for _, d := range dests {
			pairs = append(pairs, [2]string{hq, d}, [2]string{d, hq})
		}
	}
	for i, a := range dests {
		for _, b := range dests[i+1:] {
			pairs = append(pairs, [2]string{a, b}, [2]string{b, a})
		}
	}
	for _, p := range pairs {
		if _, err := c.Lookup(ctx, p[0], p[1], true); err != nil {
			return 0, err
		}
	}
	return len(pairs), nil
}

// IsLocationOnRoute проверяет, что объезд через check не длиннее toleranceKm.
func (c *Cache) IsLocationOnRoute(ctx context.Context, origin, destination, check string, toleranceKm float64) (bool, error) {
	direct, err := c.Lookup(ctx, origin, destination, true)
	if err != nil {
		return false, err
	}
	toCheck, err := c.Lookup(ctx, origin, check, true)
	if err != nil {
		return false, err
	}
	fromCheck, err := c.Lookup(ctx, check, destination, true)
	if err != nil {
		return false, err
	}
	detour := toCheck.DistanceKm + fromCheck.DistanceKm - direct.DistanceKm
	return detour <= toleranceKm, nil
}

// ValidateAddress стандартизирует адрес через геокодер провайдера.
// Без геокодера или при ошибке сервиса адрес считается допустимым и возвращается как есть.
func (c *Cache) ValidateAddress(ctx context.Context, address string) (string, bool) {
	n := NormalizeAddress(address)
	if n == "" {
		return "", false
	}
	geo, ok := c.provider.(Geocoder)
	if !ok || c.provider == nil {
		return n, true
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	formatted, valid, err := geo.Geocode(ctx, n)
	if err != nil {
		log.Printf("ValidateAddress: ошибка геокодирования '%s': %v", n, err)
		return n, true
	}
	return strings.TrimSpace(formatted), valid
}
