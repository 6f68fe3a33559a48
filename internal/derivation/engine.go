package derivation

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"rideguardian/internal/apperrors"
	"rideguardian/internal/constants"
	"rideguardian/internal/mapping"
	"rideguardian/internal/models"
)

// Store - данные тенанта, нужные движку.
type Store interface {
	GetLastDropoff(ctx context.Context, companyID, driverID int64, before time.Time) (string, bool, error)
	HeadquartersAddress(ctx context.Context, companyID int64) (string, error)
	ConfigFloat(ctx context.Context, companyID int64, key string, def float64) float64
}

// DistanceSource - источник расстояний (кэш адресов).
type DistanceSource interface {
	Lookup(ctx context.Context, origin, destination string, useCache bool) (mapping.Result, error)
}

// Engine вычисляет производные поля с учетом настроек тенанта.
type Engine struct {
	store    Store
	maps     DistanceSource
	holidays HolidayFunc
	now      func() time.Time
}

// NewEngine создает движок. holidays == nil означает общегерманские праздники.
func NewEngine(store Store, maps DistanceSource, holidays HolidayFunc) *Engine {
	if holidays == nil {
		holidays = IsGermanHoliday
	}
	return &Engine{store: store, maps: maps, holidays: holidays, now: time.Now}
}

// Holidays возвращает используемый календарь праздников.
func (e *Engine) Holidays() HolidayFunc { return e.holidays }

// Distance - расстояние и время в пути через кэш адресов.
func (e *Engine) Distance(ctx context.Context, origin, destination string) (mapping.Result, error) {
	return e.maps.Lookup(ctx, origin, destination, true)
}

// AutoFillPickup предлагает место начала поездки: последнее место высадки водителя,
// если оно ближе 20 км к текущему месту подачи, иначе адрес базы.
func (e *Engine) AutoFillPickup(ctx context.Context, companyID, driverID int64, currentPickup string) (string, error) {
	hq, err := e.store.HeadquartersAddress(ctx, companyID)
	if err != nil {
		return "", err
	}
	last, ok, err := e.store.GetLastDropoff(ctx, companyID, driverID, e.now())
	if err != nil {
		return "", err
	}
	if !ok || strings.TrimSpace(currentPickup) == "" {
		return hq, nil
	}
	res, err := e.maps.Lookup(ctx, last, currentPickup, true)
	if err != nil {
		log.Printf("AutoFillPickup: ошибка расчета расстояния для водителя %d: %v", driverID, err)
		return hq, nil
	}
	if res.DistanceKm <= constants.AUTOFILL_MAX_DISTANCE_KM {
		return last, nil
	}
	return hq, nil
}

// FuelAndCost считает топливо и стоимость по настройкам тенанта.
func (e *Engine) FuelAndCost(ctx context.Context, companyID int64, distanceKm float64) (float64, float64, error) {
	cons := e.store.ConfigFloat(ctx, companyID, constants.CFG_DEFAULT_FUEL_CONSUMPTION, constants.DEFAULT_FUEL_CONSUMPTION)
	price := e.store.ConfigFloat(ctx, companyID, constants.CFG_FUEL_COST_PER_LITER, constants.DEFAULT_FUEL_COST_PER_LITER)
	return FuelAndCost(distanceKm, cons, price)
}

// DeriveShift заполняет вычисляемые поля смены по календарю движка.
func (e *Engine) DeriveShift(sh models.Shift) (models.Shift, models.BandHours, error) {
	return DeriveShift(sh, e.holidays)
}

// MonthSummary - итоги смен месяца для Stundenzettel.
type MonthSummary struct {
	ShiftCount   int              `json:"shift_count"`
	TotalHours   float64          `json:"total_hours"`
	BreakMinutes float64          `json:"break_minutes"`
	ActualHours  float64          `json:"actual_hours"`
	EarlyHours   float64          `json:"early_hours"`
	NightHours   float64          `json:"night_hours"`
	Bands        models.BandHours `json:"bands"`
}

// MonthlySummary суммирует закрытые смены. Открытые смены не учитываются.
func MonthlySummary(shifts []models.Shift, holidays HolidayFunc) (MonthSummary, error) {
	var sum MonthSummary
	for _, sh := range shifts {
		if !sh.EndTime.Valid {
			continue
		}
		t, err := ComputeShift(sh.StartTime, sh.EndTime.Time, holidays)
		if err != nil {
			return MonthSummary{}, fmt.Errorf("смена %d: %w", sh.ID, err)
		}
		sum.ShiftCount++
		sum.TotalHours += t.TotalHours
		sum.BreakMinutes += t.BreakMinutes
		sum.ActualHours += t.ActualHours
		sum.Bands.Regular += t.Bands.Regular
		sum.Bands.Early += t.Bands.Early
		sum.Bands.Night += t.Bands.Night
		sum.Bands.Weekend += t.Bands.Weekend
		sum.Bands.Holiday += t.Bands.Holiday
		sum.Bands.Total += t.Bands.Total
	}
	sum.TotalHours = Round2(sum.TotalHours)
	sum.ActualHours = Round2(sum.ActualHours)
	sum.Bands.Regular = Round2(sum.Bands.Regular)
	sum.Bands.Early = Round2(sum.Bands.Early)
	sum.Bands.Night = Round2(sum.Bands.Night)
	sum.Bands.Weekend = Round2(sum.Bands.Weekend)
	sum.Bands.Holiday = Round2(sum.Bands.Holiday)
	sum.Bands.Total = Round2(sum.Bands.Total)
	sum.EarlyHours = sum.Bands.Early
	sum.NightHours = sum.Bands.Night
	return sum, nil
}

// RideCheck - результат предварительной проверки поездки.
type RideCheck struct {
	Valid       bool     `json:"valid"`
	Errors      []string `json:"errors"`
	Warnings    []string `json:"warnings"`
	Suggestions []string `json:"suggestions"`
}

// CheckRideData проверяет обязательные поля поездки, порядок времени
// и расхождение введенного пробега с расстоянием по карте.
func (e *Engine) CheckRideData(ctx context.Context, r models.Ride) RideCheck {
	check := RideCheck{Valid: true, Errors: []string{}, Warnings: []string{}, Suggestions: []string{}}
	fail := func(msg string) {
		check.Errors = append(check.Errors, msg)
		check.Valid = false
	}

	if r.PickupTime.IsZero() {
		fail("Pflichtfeld fehlt: Abholzeit")
	}
	if strings.TrimSpace(r.PickupLocation) == "" {
		fail("Pflichtfeld fehlt: Abholort")
	}
	if strings.TrimSpace(r.Destination) == "" {
		fail("Pflichtfeld fehlt: Zielort")
	}
	if r.DriverID == 0 {
		fail("Pflichtfeld fehlt: Fahrer")
	}
	if r.DistanceKm < 0 {
		fail("Gefahrene Kilometer dürfen nicht negativ sein")
	}
	if r.DropoffTime.Valid && !r.PickupTime.IsZero() && !r.DropoffTime.Time.After(r.PickupTime) {
		fail("Ankunftszeit muss nach der Abholzeit liegen")
	}

	if r.DistanceKm > 0 && r.PickupLocation != "" && r.Destination != "" && e.maps != nil {
		res, err := e.maps.Lookup(ctx, r.PickupLocation, r.Destination, true)
		if err == nil {
			maxDev := e.store.ConfigFloat(ctx, r.CompanyID, constants.CFG_MAX_DISTANCE_DEVIATION_KM, constants.DEFAULT_MAX_DISTANCE_DEVIATION_KM)
			if math.Abs(r.DistanceKm-res.DistanceKm) > maxDev {
				check.Warnings = append(check.Warnings, fmt.Sprintf(
					"Streckenabweichung: eingegeben %.1f km, berechnet %.1f km", r.DistanceKm, res.DistanceKm))
			}
		}
	}

	if r.DriverID != 0 && strings.TrimSpace(r.AssignmentLocation) == "" {
		if start, err := e.AutoFillPickup(ctx, r.CompanyID, r.DriverID, r.PickupLocation); err == nil {
			check.Suggestions = append(check.Suggestions, "Vorgeschlagener Startort: "+start)
		}
	}
	return check
}

// ValidateInterval - общая проверка пары времени для API.
func ValidateInterval(start, end time.Time) error {
	if end.Before(start) {
		return apperrors.Validation("end_time", "Ende liegt vor dem Beginn")
	}
	return nil
}
