package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"rideguardian/internal/apperrors"
	"rideguardian/internal/formatters"
	"rideguardian/internal/models"
	"rideguardian/internal/utils"
	"rideguardian/internal/validator"
)

// jsonResponse - вспомогательная структура для стандартного ответа API
type jsonResponse struct {
	Status   string      `json:"status"` // "success" или "error"
	Message  string      `json:"message"`
	Category string      `json:"category,omitempty"`
	Field    string      `json:"field,omitempty"`
	Data     interface{} `json:"data,omitempty"`
}

// CreateCompanyRequest - данные нового тенанта.
type CreateCompanyRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
}

// SetConfigRequest - новое значение ключа конфигурации.
type SetConfigRequest struct {
	Value string `json:"value"`
}

// ValidateRidesRequest - проверка последовательности поездок водителя за период.
type ValidateRidesRequest struct {
	DriverID int64  `json:"driver_id"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Apply    bool   `json:"apply"`
}

// RideResponse - сохраненная поездка с результатом проверки.
type RideResponse struct {
	Ride       models.Ride        `json:"ride"`
	Violations []models.Violation `json:"violations"`
	Notice     string             `json:"notice,omitempty"`
}

// ValidationResponse - нарушения по поездкам и сводка.
type ValidationResponse struct {
	Results map[int64][]models.Violation `json:"results"`
	Summary validator.Summary            `json:"summary"`
}

// --- Вспомогательные функции для JSON-ответов ---
func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(jsonResponse{Status: "error", Message: message})
}

// writeAppError отвечает категорией ошибки и полем, к которому она относится.
func writeAppError(w http.ResponseWriter, err error) {
	kind := apperrors.KindOf(err)
	status := apperrors.CheckError(err)
	if kind == apperrors.KindInternal {
		log.Printf("API: внутренняя ошибка: %v", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(jsonResponse{
		Status:   "error",
		Message:  formatters.FormatError(err),
		Category: string(kind),
		Field:    apperrors.FieldOf(err),
	})
}

func writeJSONSuccess(w http.ResponseWriter, message string, data interface{}) {
	writeJSONStatus(w, http.StatusOK, message, data)
}

func writeJSONStatus(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(jsonResponse{Status: "success", Message: message, Data: data})
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return apperrors.Validation("body", "Ungültiger JSON-Inhalt: %v", err)
	}
	return nil
}

// int64Param читает положительный целый параметр; пустое значение дает 0.
func int64Param(raw, field string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, apperrors.Validation(field, "Ungültige Zahl '%s'", raw)
	}
	return v, nil
}

// optionalRange разбирает необязательные даты start/end.
func (h *Handlers) optionalRange(startStr, endStr string) (time.Time, time.Time, error) {
	loc := h.sess.Store.Location()
	var start, end time.Time
	var err error
	if strings.TrimSpace(startStr) != "" {
		if start, err = utils.ValidateDate(startStr, loc); err != nil {
			return start, end, apperrors.Validation("start", "%v", err)
		}
	}
	if strings.TrimSpace(endStr) != "" {
		if end, err = utils.ValidateDate(endStr, loc); err != nil {
			return start, end, apperrors.Validation("end", "%v", err)
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return start, end, apperrors.Validation("end", "Enddatum liegt vor Startdatum")
	}
	return start, end, nil
}

// requiredRange разбирает обязательные даты start/end.
func (h *Handlers) requiredRange(startStr, endStr string) (time.Time, time.Time, error) {
	start, end, err := utils.ValidateDateRange(startStr, endStr, h.sess.Store.Location())
	if err != nil {
		return start, end, apperrors.Validation("start", "%v", err)
	}
	return start, end, nil
}

// --- Компании ---

// GetCompanies возвращает активных тенантов.
func (h *Handlers) GetCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.sess.Store.GetCompanies(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	if companies == nil {
		companies = []models.Company{}
	}
	writeJSONSuccess(w, "Unternehmen geladen", companies)
}

// CreateCompany создает тенанта.
func (h *Handlers) CreateCompany(w http.ResponseWriter, r *http.Request) {
	var req CreateCompanyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	id, err := h.sess.Store.AddCompany(r.Context(), req.Name, req.Address, req.Phone, req.Email)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, "Unternehmen angelegt", map[string]int64{"id": id})
}

// --- Конфигурация тенанта ---

// GetAllConfig возвращает все заданные ключи тенанта.
func (h *Handlers) GetAllConfig(w http.ResponseWriter, r *http.Request) {
	company := companyFromContext(r.Context())
	cfg, err := h.sess.Store.GetAllConfig(r.Context(), company.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONSuccess(w, "Konfiguration geladen", cfg)
}

// GetConfigValue возвращает значение ключа; незаданный ключ - NotFound.
func (h *Handlers) GetConfigValue(w http.ResponseWriter, r *http.Request) {
	company := companyFromContext(r.Context())
	key := chi.URLParam(r, "key")
	value, ok, err := h.sess.Store.GetConfig(r.Context(), company.ID, key)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if !ok {
		writeAppError(w, &apperrors.Error{Kind: apperrors.KindNotFound, Field: key, Message: "Konfigurationsschlüssel nicht gesetzt"})
		return
	}
	writeJSONSuccess(w, "", map[string]string{"key": key, "value": value})
}

// SetConfigValue записывает значение ключа.
func (h *Handlers) SetConfigValue(w http.ResponseWriter, r *http.Request) {
	company := companyFromContext(r.Context())
	key := chi.URLParam(r, "key")
	var req SetConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if err := h.sess.Store.SetConfig(r.Context(), company.ID, key, req.Value); err != nil {
		writeAppError(w, err)
		return
	}
	log.WithFields(log.Fields{"company_id": company.ID, "key": key}).Info("Конфигурация тенанта изменена")
	writeJSONSuccess(w, "Konfiguration gespeichert", map[string]string{"key": key, "value": req.Value})
}

// --- Водители ---

// ListDrivers возвращает водителей тенанта (?active=true - только активных).
func (h *Handlers) ListDrivers(w http.ResponseWriter, r *http.Request) {
	company := companyFromContext(r.Context())
	activeOnly := r.URL.Query().Get("active") == "true"
	drivers, err := h.sess.Store.ListDrivers(r.Context(), company.ID, activeOnly)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if drivers == nil {
		drivers = []models.Driver{}
	}
	writeJSONSuccess(w, "", drivers)
}

// CreateDriver добавляет водителя тенанту.
func (h *Handlers) CreateDriver(w http.ResponseWriter, r *http.Request) {
	company := companyFromContext(r.Context())
	var d models.Driver
	if err := decodeJSON(r, &d); err != nil {
		writeAppError(w, err)
		return
	}
	d.ID = 0
	d.CompanyID = company.ID
	id, err := h.sess.Store.AddDriver(r.Context(), d)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, "Fahrer angelegt", map[string]int64{"id": id})
}

// --- Поездки ---

// ListRides возвращает поездки по времени подачи (?driver_id, ?start, ?end).
func (h *Handlers) ListRides(w http.ResponseWriter, r *http.Request) {
	company := companyFromContext(r.Context())
	q := r.URL.Query()
	driverID, err := int64Param(q.Get("driver_id"), "driver_id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	start, end, err := h.optionalRange(q.Get("start"), q.Get("end"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	rides, err := h.sess.Store.ListRides(r.Context(), company.ID, driverID, start, end)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if rides == nil {
		rides = []models.Ride{}
	}
	writeJSONSuccess(w, "", rides)
}

// CreateRide дополняет поездку производными значениями, сохраняет и проверяет ее.
// Пустое место получения заказа заполняется последним местом высадки или адресом базы;
// пустой пробег берется из кэша адресов; топливо и стоимость считаются по настройкам тенанта.
func (h *Handlers) CreateRide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	company := companyFromContext(ctx)
	var ride models.Ride
	if err := decodeJSON(r, &ride); err != nil {
		writeAppError(w, err)
		return
	}
	ride.ID = 0
	ride.CompanyID = company.ID
	if ride.DistanceKm < 0 {
		writeAppError(w, apperrors.Validation("distance_km", "Gefahrene Kilometer dürfen nicht negativ sein"))
		return
	}

	var notice string
	if strings.TrimSpace(ride.AssignmentLocation) == "" && ride.DriverID != 0 && ride.PickupLocation != "" {
		start, err := h.sess.Engine.AutoFillPickup(ctx, company.ID, ride.DriverID, ride.PickupLocation)
		if err != nil {
			log.Printf("CreateRide: автозаполнение места получения заказа не удалось: %v", err)
		} else {
			ride.AssignmentLocation = start
		}
	}
	if ride.DistanceKm == 0 && ride.PickupLocation != "" && ride.Destination != "" {
		res, err := h.sess.Engine.Distance(ctx, ride.PickupLocation, ride.Destination)
		if err != nil {
			writeAppError(w, err)
			return
		}
		ride.DistanceKm = res.DistanceKm
		if res.Notice != nil {
			notice = formatters.FormatError(res.Notice)
		}
	}
	if ride.FuelLiters == 0 && ride.CostEuros == 0 && ride.DistanceKm > 0 {
		liters, cost, err := h.sess.Engine.FuelAndCost(ctx, company.ID, ride.DistanceKm)
		if err != nil {
			writeAppError(w, err)
			return
		}
		ride.FuelLiters, ride.CostEuros = liters, cost
	}

	id, err := h.sess.Store.RecordRide(ctx, ride)
	if err != nil {
		writeAppError(w, err)
		return
	}
	ride.ID = id

	violations, err := h.sess.Validator.ValidateRide(ctx, company.ID, ride)
	if err != nil {
		log.Printf("CreateRide: проверка поездки #%d не выполнена: %v", id, err)
		violations = []models.Violation{}
	} else if errApply := h.sess.Validator.ApplyResults(ctx, company.ID, map[int64][]models.Violation{id: violations}); errApply != nil {
		log.Printf("CreateRide: нарушения поездки #%d не сохранены: %v", id, errApply)
	}
	if violations == nil {
		violations = []models.Violation{}
	}
	saved, err := h.sess.Store.GetRide(ctx, company.ID, id)
	if err == nil {
		ride = saved
	}
	writeJSONStatus(w, http.StatusCreated, "Fahrt gespeichert", RideResponse{Ride: ride, Violations: violations, Notice: notice})
}

// CheckRide - предварительная проверка полей поездки без сохранения.
func (h *Handlers) CheckRide(w http.ResponseWriter, r *http.Request) {
	company := companyFromContext(r.Context())
	var ride models.Ride
	if err := decodeJSON(r, &ride); err != nil {
		writeAppError(w, err)
		return
	}
	ride.CompanyID = company.ID
	writeJSONSuccess(w, "", h.sess.Engine.CheckRideData(r.Context(), ride))
}

// AutoFillPickup предлагает место начала поездки (?driver_id, ?pickup).
func (h *Handlers) AutoFillPickup(w http.ResponseWriter, r *http.Request) {
	company := companyFromContext(r.Context())
	driverID, err := int64Param(r.URL.Query().Get("driver_id"), "driver_id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	if driverID == 0 {
		writeAppError(w, apperrors.Validation("driver_id", "Fahrer muss angegeben werden"))
		return
	}
	start, err := h.sess.Engine.AutoFillPickup(r.Context(), company.ID, driverID, r.URL.Query().Get("pickup"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONSuccess(w, "", map[string]string{"location": start})
}

// ValidateRides проверяет поездки водителя за период как последовательность.
// apply=true записывает нарушения и статусы в поездки.
func (h *Handlers) ValidateRides(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	company := companyFromContext(ctx)
	var req ValidateRidesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	start, end, err := h.optionalRange(req.Start, req.End)
	if err != nil {
		writeAppError(w, err)
		return
	}
	rides, err := h.sess.Store.ListRides(ctx, company.ID, req.DriverID, start, end)
	if err != nil {
		writeAppError(w, err)
		return
	}
	results, err := h.sess.Validator.ValidateSequence(ctx, company.ID, rides)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if req.Apply {
		if err := h.sess.Validator.ApplyResults(ctx, company.ID, results); err != nil {
			writeAppError(w, err)
			return
		}
	}
	summary := validator.Summarize(validator.Flatten(results))
	msg := formatters.FormatViolationSummary(summary.Total, summary.CriticalCount, summary.WarningCount, summary.InfoCount)
	writeJSONSuccess(w, msg, ValidationResponse{Results: results, Summary: summary})
}

// --- Смены ---

// CreateShift вычисляет часы смены по диапазонам и сохраняет ее.
func (h *Handlers) CreateShift(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	company := companyFromContext(ctx)
	var sh models.Shift
	if err := decodeJSON(r, &sh); err != nil {
		writeAppError(w, err)
		return
	}
	sh.ID = 0
	sh.CompanyID = company.ID
	derived, bands, err := h.sess.Engine.DeriveShift(sh)
	if err != nil {
		writeAppError(w, err)
		return
	}
	id, err := h.sess.Store.RecordShift(ctx, derived)
	if err != nil {
		writeAppError(w, err)
		return
	}
	derived.ID = id
	writeJSONStatus(w, http.StatusCreated, "Schicht gespeichert", map[string]interface{}{"shift": derived, "bands": bands})
}

// ListShifts возвращает смены (?driver_id, ?start, ?end).
func (h *Handlers) ListShifts(w http.ResponseWriter, r *http.Request) {
	company := companyFromContext(r.Context())
	q := r.URL.Query()
	driverID, err := int64Param(q.Get("driver_id"), "driver_id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	start, end, err := h.optionalRange(q.Get("start"), q.Get("end"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	shifts, err := h.sess.Store.ListShifts(r.Context(), company.ID, driverID, start, end)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if shifts == nil {
		shifts = []models.Shift{}
	}
	writeJSONSuccess(w, "", shifts)
}

// --- Зарплата ---

// GetPayroll считает расчетный лист водителя (?start, ?end обязательны; ?save=true сохраняет его).
func (h *Handlers) GetPayroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	company := companyFromContext(ctx)
	driverID, err := int64Param(chi.URLParam(r, "driverID"), "driverID")
	if err != nil || driverID == 0 {
		writeAppError(w, apperrors.Validation("driverID", "Ungültige Fahrer-ID"))
		return
	}
	start, end, err := h.requiredRange(r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	st, err := h.sess.Payroll.Compute(ctx, company.ID, driverID, start, end)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if r.URL.Query().Get("save") == "true" {
		if _, err := h.sess.Payroll.Save(ctx, st); err != nil {
			writeAppError(w, err)
			return
		}
		if h.sess.Notifier != nil {
			h.sess.Notifier.SendText(formatters.FormatPayrollWarnings(st))
		}
	}
	writeJSONSuccess(w, st.Status(), st)
}
