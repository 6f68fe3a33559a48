// Package validator проверяет поездки по каталогу бизнес-правил и
// возвращает нарушения с серьезностью и рекомендациями по исправлению.
package validator

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"rideguardian/internal/apperrors"
	"rideguardian/internal/constants"
	"rideguardian/internal/mapping"
	"rideguardian/internal/models"
)

// Store - данные, которые читает и пишет валидатор.
type Store interface {
	ListRules(ctx context.Context, companyID int64) ([]models.Rule, error)
	GetAllConfig(ctx context.Context, companyID int64) (map[string]string, error)
	HeadquartersAddress(ctx context.Context, companyID int64) (string, error)
	GetAdjacentRides(ctx context.Context, companyID, driverID int64, pickup time.Time, excludeID int64) (*models.Ride, *models.Ride, error)
	ListRides(ctx context.Context, companyID, driverID int64, start, end time.Time) ([]models.Ride, error)
	ListShiftRides(ctx context.Context, companyID, shiftID int64) ([]models.Ride, error)
	GetShift(ctx context.Context, companyID, shiftID int64) (models.Shift, error)
	GetPreviousShift(ctx context.Context, companyID, driverID int64, before time.Time) (models.Shift, bool, error)
	ListShifts(ctx context.Context, companyID, driverID int64, start, end time.Time) ([]models.Shift, error)
	UpdateRideViolations(ctx context.Context, companyID, rideID int64, ruleIDs []string, status string) error
}

// Maps - расстояния и проверка маршрута.
type Maps interface {
	Lookup(ctx context.Context, origin, destination string, useCache bool) (mapping.Result, error)
	IsLocationOnRoute(ctx context.Context, origin, destination, check string, toleranceKm float64) (bool, error)
}

// Notifier получает критические нарушения поездки.
type Notifier interface {
	NotifyCritical(ctx context.Context, companyID int64, ride models.Ride, violations []models.Violation)
}

// Validator применяет каталог правил к поездкам тенанта.
type Validator struct {
	store    Store
	maps     Maps
	notifier Notifier
}

// New создает валидатор. notifier может быть nil.
func New(store Store, maps Maps, notifier Notifier) *Validator {
	return &Validator{store: store, maps: maps, notifier: notifier}
}

type ruleParams struct {
	enabled bool
	value   string
}

// params - действующие параметры правил тенанта.
type params struct {
	tenant      map[string]ruleParams
	drivers     map[int64]map[string]ruleParams
	hq          string
	consumption float64
}

func (p *params) forDriver(ruleID string, driverID int64) ruleParams {
	if dr, ok := p.drivers[driverID]; ok {
		if rp, ok := dr[ruleID]; ok {
			return rp
		}
	}
	return p.tenant[ruleID]
}

// loadParams: конфигурация тенанта > значение в таблице rules > значение каталога.
func (v *Validator) loadParams(ctx context.Context, companyID int64) (*params, error) {
	rows, err := v.store.ListRules(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("правила компании #%d: %w", companyID, err)
	}
	cfg, err := v.store.GetAllConfig(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("конфигурация компании #%d: %w", companyID, err)
	}
	hq, err := v.store.HeadquartersAddress(ctx, companyID)
	if err != nil {
		return nil, err
	}

	p := &params{tenant: map[string]ruleParams{}, drivers: map[int64]map[string]ruleParams{}, hq: hq}
	for _, r := range catalog {
		p.tenant[r.ID] = ruleParams{enabled: true, value: r.Default}
	}
	for _, row := range rows {
		if _, ok := lookupRule(row.Name); !ok {
			log.WithFields(log.Fields{"company_id": companyID, "rule": row.Name}).Warn("loadParams: неизвестное правило пропущено")
			continue
		}
		rp := ruleParams{enabled: row.Enabled, value: row.Value}
		if strings.TrimSpace(rp.value) == "" {
			rp.value = p.tenant[row.Name].value
		}
		if row.DriverID == 0 {
			p.tenant[row.Name] = rp
			continue
		}
		if !row.PerDriverOverride {
			continue
		}
		if p.drivers[row.DriverID] == nil {
			p.drivers[row.DriverID] = map[string]ruleParams{}
		}
		p.drivers[row.DriverID][row.Name] = rp
	}
	for _, r := range catalog {
		if r.ConfigKey == "" {
			continue
		}
		if val := strings.TrimSpace(cfg[r.ConfigKey]); val != "" {
			rp := p.tenant[r.ID]
			rp.value = val
			p.tenant[r.ID] = rp
		}
	}

	p.consumption = constants.DEFAULT_FUEL_CONSUMPTION
	if raw := strings.TrimSpace(cfg[constants.CFG_DEFAULT_FUEL_CONSUMPTION]); raw != "" {
		if f, errParse := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64); errParse == nil {
			p.consumption = f
		}
	}
	return p, nil
}

// evalSafe вызывает правило; ошибка или паника правила логируются, правило пропускается.
func evalSafe(ctx context.Context, r Rule, c *Check) (f *Finding) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("evalSafe: паника в правиле %s (поездка #%d): %v", r.ID, c.Ride.ID, rec)
			f = nil
		}
	}()
	f, err := r.Eval(ctx, c)
	if err != nil {
		log.Printf("evalSafe: ошибка правила %s (поездка #%d): %v", r.ID, c.Ride.ID, err)
		return nil
	}
	return f
}

func (v *Validator) evaluate(ctx context.Context, c *Check, p *params) []models.Violation {
	c.HQ = p.hq
	c.Consumption = p.consumption
	c.maps = v.maps
	out := []models.Violation{}
	for _, r := range catalog {
		rp := p.forDriver(r.ID, c.Ride.DriverID)
		if !rp.enabled {
			continue
		}
		c.value = rp.value
		f := evalSafe(ctx, r, c)
		if f == nil {
			continue
		}
		out = append(out, models.Violation{
			RideID:          c.Ride.ID,
			RuleID:          r.ID,
			RuleName:        r.Name,
			Severity:        r.Severity,
			Category:        r.Category,
			Description:     f.Description,
			SeverityScore:   r.Score,
			SuggestedAction: r.Action,
			AutoFixable:     r.AutoFixable,
			FixSuggestion:   f.Fix,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SeverityScore > out[j].SeverityScore })
	return out
}

func (v *Validator) notify(ctx context.Context, companyID int64, ride models.Ride, violations []models.Violation) {
	if v.notifier == nil {
		return
	}
	var critical []models.Violation
	for _, vi := range violations {
		if vi.Severity == models.SeverityCritical {
			critical = append(critical, vi)
		}
	}
	if len(critical) > 0 {
		v.notifier.NotifyCritical(ctx, companyID, ride, critical)
	}
}

func weekBounds(t time.Time) (time.Time, time.Time) {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.Date()
	monday := time.Date(y, m, d-offset, 0, 0, 0, 0, t.Location())
	return monday, monday.AddDate(0, 0, 6)
}

func shiftsOnDay(shifts []models.Shift, day time.Time) []models.Shift {
	var out []models.Shift
	for _, sh := range shifts {
		if sameDay(sh.ShiftDate.In(day.Location()), day) || sameDay(sh.StartTime.In(day.Location()), day) {
			out = append(out, sh)
		}
	}
	return out
}

// ValidateRide проверяет одну поездку; соседние поездки и смены читаются из хранилища.
func (v *Validator) ValidateRide(ctx context.Context, companyID int64, ride models.Ride) ([]models.Violation, error) {
	ride.CompanyID = companyID
	p, err := v.loadParams(ctx, companyID)
	if err != nil {
		return nil, err
	}
	c := &Check{Ride: ride}

	if ride.DriverID != 0 && !ride.PickupTime.IsZero() {
		c.Prev, c.Next, err = v.store.GetAdjacentRides(ctx, companyID, ride.DriverID, ride.PickupTime, ride.ID)
		if err != nil {
			return nil, err
		}
		day, errDay := v.store.ListRides(ctx, companyID, ride.DriverID, ride.PickupTime, ride.PickupTime)
		if errDay != nil {
			return nil, errDay
		}
		c.DayRides = mergeRide(day, ride)

		monday, sunday := weekBounds(ride.PickupTime)
		c.WeekShifts, err = v.store.ListShifts(ctx, companyID, ride.DriverID, monday, sunday)
		if err != nil {
			return nil, err
		}
		c.DayShifts = shiftsOnDay(c.WeekShifts, ride.PickupTime)
	}

	if ride.ShiftID.Valid {
		sh, errShift := v.store.GetShift(ctx, companyID, ride.ShiftID.Int64)
		if errShift != nil {
			return nil, errShift
		}
		c.Shift = &sh
		shiftRides, errRides := v.store.ListShiftRides(ctx, companyID, sh.ID)
		if errRides != nil {
			return nil, errRides
		}
		shiftRides = mergeRide(shiftRides, ride)
		c.FirstOfShift = indexOfRide(shiftRides, ride) == 0
		c.LastOfShift = indexOfRide(shiftRides, ride) == len(shiftRides)-1
		prev, ok, errPrev := v.store.GetPreviousShift(ctx, companyID, ride.DriverID, sh.StartTime)
		if errPrev != nil {
			return nil, errPrev
		}
		if ok {
			c.PrevShift = &prev
		}
	} else if len(c.DayRides) > 0 {
		c.FirstOfShift = indexOfRide(c.DayRides, ride) == 0
		c.LastOfShift = indexOfRide(c.DayRides, ride) == len(c.DayRides)-1
	}

	violations := v.evaluate(ctx, c, p)
	v.notify(ctx, companyID, ride, violations)
	return violations, nil
}

type driverWeek struct {
	driverID int64
	year     int
	week     int
}

// ValidateSequence проверяет набор поездок в порядке времени подачи.
// Предыдущая поездка - предыдущая поездка того же водителя в этом порядке.
func (v *Validator) ValidateSequence(ctx context.Context, companyID int64, rides []models.Ride) (map[int64][]models.Violation, error) {
	// Результаты ключуются ID поездки, поэтому поездки без ID или с повтором ID не принимаются.
	seen := make(map[int64]bool, len(rides))
	for _, r := range rides {
		if r.ID == 0 {
			return nil, apperrors.Validation("id", "Fahrt ohne ID kann nicht in einer Folge geprüft werden")
		}
		if seen[r.ID] {
			return nil, apperrors.Validation("id", "Fahrt %d mehrfach übergeben", r.ID)
		}
		seen[r.ID] = true
	}
	p, err := v.loadParams(ctx, companyID)
	if err != nil {
		return nil, err
	}
	ordered := make([]models.Ride, len(rides))
	copy(ordered, rides)
	for i := range ordered {
		ordered[i].CompanyID = companyID
	}
	sortRides(ordered)

	byDriver := map[int64][]int{}
	for i, r := range ordered {
		byDriver[r.DriverID] = append(byDriver[r.DriverID], i)
	}

	shifts := map[int64]*models.Shift{}
	prevShifts := map[int64]*models.Shift{}
	weeks := map[driverWeek][]models.Shift{}
	loadShift := func(id int64) (*models.Shift, error) {
		if sh, ok := shifts[id]; ok {
			return sh, nil
		}
		sh, errShift := v.store.GetShift(ctx, companyID, id)
		if errShift != nil {
			return nil, errShift
		}
		shifts[id] = &sh
		return &sh, nil
	}

	results := make(map[int64][]models.Violation, len(ordered))
	for _, idxs := range byDriver {
		for k, i := range idxs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			r := ordered[i]
			c := &Check{Ride: r}
			if k > 0 {
				prev := ordered[idxs[k-1]]
				c.Prev = &prev
			}
			if k < len(idxs)-1 {
				next := ordered[idxs[k+1]]
				c.Next = &next
			}
			for _, j := range idxs {
				if sameDay(ordered[j].PickupTime.In(r.PickupTime.Location()), r.PickupTime) {
					c.DayRides = append(c.DayRides, ordered[j])
				}
			}

			if r.ShiftID.Valid {
				sh, errShift := loadShift(r.ShiftID.Int64)
				if errShift != nil {
					return nil, errShift
				}
				c.Shift = sh
				c.FirstOfShift = c.Prev == nil || c.Prev.ShiftID != r.ShiftID
				c.LastOfShift = c.Next == nil || c.Next.ShiftID != r.ShiftID
				if cached, ok := prevShifts[sh.ID]; ok {
					c.PrevShift = cached
				} else {
					prev, found, errPrev := v.store.GetPreviousShift(ctx, companyID, r.DriverID, sh.StartTime)
					if errPrev != nil {
						return nil, errPrev
					}
					if found {
						c.PrevShift = &prev
					}
					prevShifts[sh.ID] = c.PrevShift
				}
			} else {
				c.FirstOfShift = c.Prev == nil || !sameDay(c.Prev.PickupTime.In(r.PickupTime.Location()), r.PickupTime)
				c.LastOfShift = c.Next == nil || !sameDay(c.Next.PickupTime.In(r.PickupTime.Location()), r.PickupTime)
			}

			if r.DriverID != 0 && !r.PickupTime.IsZero() {
				y, w := r.PickupTime.ISOWeek()
				key := driverWeek{r.DriverID, y, w}
				week, ok := weeks[key]
				if !ok {
					monday, sunday := weekBounds(r.PickupTime)
					week, err = v.store.ListShifts(ctx, companyID, r.DriverID, monday, sunday)
					if err != nil {
						return nil, err
					}
					weeks[key] = week
				}
				c.WeekShifts = week
				c.DayShifts = shiftsOnDay(week, r.PickupTime)
			}

			violations := v.evaluate(ctx, c, p)
			results[r.ID] = violations
			v.notify(ctx, companyID, r, violations)
		}
	}
	return results, nil
}

// ApplyResults записывает идентификаторы нарушенных правил на поездки.
// Поездка с нарушениями получает статус Violation, без нарушений - Completed.
func (v *Validator) ApplyResults(ctx context.Context, companyID int64, results map[int64][]models.Violation) error {
	ids := make([]int64, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if id == 0 {
			continue
		}
		ruleIDs := make([]string, 0, len(results[id]))
		for _, vi := range results[id] {
			ruleIDs = append(ruleIDs, vi.RuleID)
		}
		status := constants.RIDE_STATUS_COMPLETED
		if len(ruleIDs) > 0 {
			status = constants.RIDE_STATUS_VIOLATION
		}
		if err := v.store.UpdateRideViolations(ctx, companyID, id, ruleIDs, status); err != nil {
			log.Printf("ApplyResults: ошибка записи нарушений поездки #%d: %v", id, err)
			return err
		}
	}
	return nil
}
