package api

import (
	"context"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"

	"rideguardian/internal/apperrors"
	"rideguardian/internal/mapping"
)

// DistanceResponse - ответ /api/mapping/distance.
type DistanceResponse struct {
	mapping.Result
	Notice string `json:"notice,omitempty"`
}

// GetStatistics возвращает агрегаты поездок за период (?start=&end=).
func (h *Handlers) GetStatistics(w http.ResponseWriter, r *http.Request) {
	company := companyFromContext(r.Context())
	q := r.URL.Query()
	start, end, err := h.requiredRange(q.Get("start"), q.Get("end"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	stats, err := h.sess.Exporter.Statistics(r.Context(), company.ID, start, end)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONSuccess(w, "Statistik berechnet", stats)
}

// GetDistance считает расстояние между двумя адресами (?origin=&destination=&use_cache=).
func (h *Handlers) GetDistance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	useCache := true
	if raw := q.Get("use_cache"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeAppError(w, apperrors.Validation("use_cache", "Ungültiger Wert '%s'", raw))
			return
		}
		useCache = v
	}
	res, err := h.sess.Maps.Lookup(r.Context(), q.Get("origin"), q.Get("destination"), useCache)
	if err != nil {
		writeAppError(w, err)
		return
	}
	resp := DistanceResponse{Result: res}
	if res.Notice != nil {
		resp.Notice = res.Notice.Error()
	}
	writeJSONSuccess(w, "Entfernung ermittelt", resp)
}

// GetMappingStats возвращает эффективность кэша адресов.
func (h *Handlers) GetMappingStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sess.Maps.EfficiencyStats(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONSuccess(w, "Cache-Statistik", stats)
}

// OptimizeMappingCache удаляет устаревшие редко используемые записи кэша.
func (h *Handlers) OptimizeMappingCache(w http.ResponseWriter, r *http.Request) {
	removed, err := h.sess.Maps.Optimize(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	log.Printf("OptimizeMappingCache: удалено записей: %d", removed)
	writeJSONSuccess(w, "Cache optimiert", map[string]int64{"removed": removed})
}

// PreloadMappingCache ставит в очередь прогрев кэша частыми маршрутами тенанта.
func (h *Handlers) PreloadMappingCache(w http.ResponseWriter, r *http.Request) {
	company := companyFromContext(r.Context())
	jobID, err := h.sess.Jobs.Submit("mapping_preload", func(ctx context.Context, progress func(string)) (interface{}, error) {
		progress("Häufige Strecken werden vorgeladen")
		n, errPreload := h.sess.Exporter.PreloadAddresses(ctx, company.ID)
		if errPreload != nil {
			return nil, errPreload
		}
		return map[string]int{"preloaded": n}, nil
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, "Vorladen gestartet", map[string]string{"job_id": jobID})
}
