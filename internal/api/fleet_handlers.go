package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"rideguardian/internal/apperrors"
	"rideguardian/internal/models"
)

// OdometerRequest - новый пробег автомобиля.
type OdometerRequest struct {
	TotalKm float64 `json:"total_km"`
}

// --- Текущий тенант ---

// UpdateCompany обновляет реквизиты выбранного тенанта.
func (h *Handlers) UpdateCompany(w http.ResponseWriter, r *http.Request) {
	company := companyFromContext(r.Context())
	var c models.Company
	if err := decodeJSON(r, &c); err != nil {
		writeAppError(w, err)
		return
	}
	if strings.TrimSpace(c.Name) == "" {
		writeAppError(w, apperrors.Validation("name", "Name darf nicht leer sein"))
		return
	}
	c.ID = company.ID
	if err := h.sess.Store.UpdateCompany(r.Context(), c); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONSuccess(w, "Unternehmen aktualisiert", nil)
}

// DeactivateCompany выключает выбранного тенанта. Данные сохраняются.
func (h *Handlers) DeactivateCompany(w http.ResponseWriter, r *http.Request) {
	company := companyFromContext(r.Context())
	if err := h.sess.Store.DeactivateCompany(r.Context(), company.ID); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONSuccess(w, "Unternehmen deaktiviert", nil)
}

// --- Водители ---

// UpdateDriver обновляет данные водителя.
func (h *Handlers) UpdateDriver(w http.ResponseWriter, r *http.Request) {
	company := companyFromContext(r.Context())
	id, err := int64Param(chi.URLParam(r, "id"), "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	var d models.Driver
	if err := decodeJSON(r, &d); err != nil {
		writeAppError(w, err)
		return
	}
	d.ID = id
	d.CompanyID = company.ID
	if err := h.sess.Store.UpdateDriver(r.Context(), d); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONSuccess(w, "Fahrer aktualisiert", nil)
}

// DeactivateDriver переводит водителя в Inactive; его поездки остаются в отчетах.
func (h *Handlers) DeactivateDriver(w http.ResponseWriter, r *http.Request) {
	company := companyFromContext(r.Context())
	id, err := int64Param(chi.URLParam(r, "id"), "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	if err := h.sess.Store.DeactivateDriver(r.Context(), company.ID, id); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONSuccess(w, "Fahrer deaktiviert", nil)
}

// --- Автомобили ---

// ListVehicles возвращает автомобили тенанта.
func (h *Handlers) ListVehicles(w http.ResponseWriter, r *http.Request) {
	company := companyFromContext(r.Context())
	vehicles, err := h.sess.Store.ListVehicles(r.Context(), company.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if vehicles == nil {
		vehicles = []models.Vehicle{}
	}
	writeJSONSuccess(w, "Fahrzeuge geladen", vehicles)
}

// CreateVehicle добавляет автомобиль.
func (h *Handlers) CreateVehicle(w http.ResponseWriter, r *http.Request) {
	company := companyFromContext(r.Context())
	var v models.Vehicle
	if err := decodeJSON(r, &v); err != nil {
		writeAppError(w, err)
		return
	}
	v.ID = 0
	v.CompanyID = company.ID
	id, err := h.sess.Store.AddVehicle(r.Context(), v)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, "Fahrzeug angelegt", map[string]int64{"id": id})
}

// UpdateOdometer записывает новый пробег автомобиля.
func (h *Handlers) UpdateOdometer(w http.ResponseWriter, r *http.Request) {
	company := companyFromContext(r.Context())
	plate := strings.TrimSpace(chi.URLParam(r, "plate"))
	var req OdometerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if err := h.sess.Store.UpdateVehicleOdometer(r.Context(), company.ID, plate, req.TotalKm); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONSuccess(w, "Kilometerstand aktualisiert", nil)
}

// --- Правила и шаблоны ---

// ListRules возвращает строки таблицы rules тенанта.
func (h *Handlers) ListRules(w http.ResponseWriter, r *http.Request) {
	company := companyFromContext(r.Context())
	rules, err := h.sess.Store.ListRules(r.Context(), company.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if rules == nil {
		rules = []models.Rule{}
	}
	writeJSONSuccess(w, "Regeln geladen", rules)
}

// SaveRule создает или обновляет правило (в том числе для отдельного водителя).
func (h *Handlers) SaveRule(w http.ResponseWriter, r *http.Request) {
	company := companyFromContext(r.Context())
	var rule models.Rule
	if err := decodeJSON(r, &rule); err != nil {
		writeAppError(w, err)
		return
	}
	rule.CompanyID = company.ID
	rule.Name = chi.URLParam(r, "name")
	if err := h.sess.Store.UpsertRule(r.Context(), rule); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONSuccess(w, "Regel gespeichert", nil)
}

// SaveTemplate сохраняет шаблон документа тенанта.
func (h *Handlers) SaveTemplate(w http.ResponseWriter, r *http.Request) {
	company := companyFromContext(r.Context())
	var t models.FahrtenbuchTemplate
	if err := decodeJSON(r, &t); err != nil {
		writeAppError(w, err)
		return
	}
	t.CompanyID = company.ID
	if err := h.sess.Store.SaveTemplate(r.Context(), t); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONSuccess(w, "Vorlage gespeichert", nil)
}

// ValidateAddress проверяет, что адрес находится провайдером карт (?address=).
func (h *Handlers) ValidateAddress(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		writeAppError(w, apperrors.Validation("address", "Adresse erforderlich"))
		return
	}
	normalized, ok := h.sess.Maps.ValidateAddress(r.Context(), address)
	writeJSONSuccess(w, "Adresse geprüft", map[string]interface{}{
		"address": normalized,
		"valid":   ok,
	})
}
