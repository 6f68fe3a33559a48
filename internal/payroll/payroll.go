// Package payroll собирает расчетный лист водителя за период: часы по зонам,
// базовая оплата, надбавки, сверхурочные и проверка минимальной оплаты (Mindestlohn).
package payroll

import (
	"context"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"rideguardian/internal/apperrors"
	"rideguardian/internal/constants"
	"rideguardian/internal/derivation"
	"rideguardian/internal/models"
	"rideguardian/internal/utils"
)

const dateLayout = "2006-01-02"

// Store - данные, которые нужны калькулятору.
type Store interface {
	GetDriver(ctx context.Context, companyID, driverID int64) (models.Driver, error)
	ListDrivers(ctx context.Context, companyID int64, activeOnly bool) ([]models.Driver, error)
	ListShifts(ctx context.Context, companyID, driverID int64, start, end time.Time) ([]models.Shift, error)
	ListRides(ctx context.Context, companyID, driverID int64, start, end time.Time) ([]models.Ride, error)
	ConfigFloat(ctx context.Context, companyID int64, key string, def float64) float64
	SavePayrollRecord(ctx context.Context, ps models.PayStatement) (int64, error)
}

// Calculator считает расчетные листы.
type Calculator struct {
	store       Store
	holidays    derivation.HolidayFunc
	parallelism int
}

// New создает калькулятор. holidays = nil - немецкие федеральные праздники.
func New(store Store, holidays derivation.HolidayFunc) *Calculator {
	if holidays == nil {
		holidays = derivation.IsGermanHoliday
	}
	return &Calculator{store: store, holidays: holidays, parallelism: 4}
}

type rates struct {
	minimumWage   float64
	night         float64
	weekend       float64
	holiday       float64
	perfThreshold float64
	perfRate      float64
	otThreshold   float64
	otMultiplier  float64
}

func (c *Calculator) loadRates(ctx context.Context, companyID int64) rates {
	cf := func(key string, def float64) float64 { return c.store.ConfigFloat(ctx, companyID, key, def) }
	return rates{
		minimumWage:   cf(constants.CFG_MINIMUM_WAGE_HOURLY, constants.DEFAULT_MINIMUM_WAGE_HOURLY),
		night:         cf(constants.CFG_NIGHT_BONUS_RATE, constants.DEFAULT_NIGHT_BONUS_RATE),
		weekend:       cf(constants.CFG_WEEKEND_BONUS_RATE, constants.DEFAULT_WEEKEND_BONUS_RATE),
		holiday:       cf(constants.CFG_HOLIDAY_BONUS_RATE, constants.DEFAULT_HOLIDAY_BONUS_RATE),
		perfThreshold: cf(constants.CFG_PERFORMANCE_BONUS_THRESHOLD, constants.DEFAULT_PERFORMANCE_BONUS_THRESH),
		perfRate:      cf(constants.CFG_PERFORMANCE_BONUS_RATE, constants.DEFAULT_PERFORMANCE_BONUS_RATE),
		otThreshold:   cf(constants.CFG_OVERTIME_THRESHOLD_HOURS, constants.DEFAULT_OVERTIME_THRESHOLD_HOURS),
		otMultiplier:  cf(constants.CFG_OVERTIME_RATE_MULTIPLIER, constants.DEFAULT_OVERTIME_RATE_MULTIPLIER),
	}
}

// Compute считает расчетный лист водителя за период [start, end] (календарные даты включительно).
// Открытые смены не учитываются.
func (c *Calculator) Compute(ctx context.Context, companyID, driverID int64, start, end time.Time) (models.PayStatement, error) {
	if end.Before(start) {
		return models.PayStatement{}, apperrors.Validation("end_date", "Enddatum liegt vor Startdatum")
	}
	driver, err := c.store.GetDriver(ctx, companyID, driverID)
	if err != nil {
		return models.PayStatement{}, err
	}
	shifts, err := c.store.ListShifts(ctx, companyID, driverID, start, end)
	if err != nil {
		log.Printf("Compute: ошибка получения смен водителя #%d: %v", driverID, err)
		return models.PayStatement{}, err
	}
	rides, err := c.store.ListRides(ctx, companyID, driverID, start, end)
	if err != nil {
		log.Printf("Compute: ошибка получения поездок водителя #%d: %v", driverID, err)
		return models.PayStatement{}, err
	}
	return c.statement(c.loadRates(ctx, companyID), driver, shifts, rides, start, end)
}

func (c *Calculator) statement(r rates, driver models.Driver, shifts []models.Shift, rides []models.Ride, start, end time.Time) (models.PayStatement, error) {
	ps := models.PayStatement{
		CompanyID:   driver.CompanyID,
		DriverID:    driver.ID,
		DriverName:  driver.Name,
		PeriodStart: start.Format(dateLayout),
		PeriodEnd:   end.Format(dateLayout),
		HourlyRate:  driver.HourlyWage,
		MinimumWage: r.minimumWage,
		Warnings:    []string{},
	}
	if ps.HourlyRate <= 0 {
		ps.HourlyRate = r.minimumWage
		ps.Warnings = append(ps.Warnings, fmt.Sprintf("Kein Stundenlohn hinterlegt, Mindestlohn %s angesetzt", utils.FormatEuro(r.minimumWage)))
	}

	// Сверхурочные считаются по календарным датам смен.
	perDay := map[string]float64{}
	var bands models.BandHours
	for _, sh := range shifts {
		if !sh.EndTime.Valid {
			continue
		}
		t, err := derivation.ComputeShift(sh.StartTime, sh.EndTime.Time, c.holidays)
		if err != nil {
			return models.PayStatement{}, err
		}
		bands.Regular += t.Bands.Regular
		bands.Early += t.Bands.Early
		bands.Night += t.Bands.Night
		bands.Weekend += t.Bands.Weekend
		bands.Holiday += t.Bands.Holiday
		bands.Total += t.Bands.Total
		ps.BreakMinutes += t.BreakMinutes
		ps.ActualHours += t.ActualHours
		day := sh.ShiftDate
		if day.IsZero() {
			day = sh.StartTime
		}
		perDay[day.Format(dateLayout)] += t.ActualHours
		ps.ShiftCount++
	}
	ps.Hours = models.BandHours{
		Regular: derivation.Round2(bands.Regular),
		Early:   derivation.Round2(bands.Early),
		Night:   derivation.Round2(bands.Night),
		Weekend: derivation.Round2(bands.Weekend),
		Holiday: derivation.Round2(bands.Holiday),
		Total:   derivation.Round2(bands.Total),
	}
	ps.BreakMinutes = derivation.Round2(ps.BreakMinutes)
	ps.ActualHours = derivation.Round2(ps.ActualHours)

	days := make([]string, 0, len(perDay))
	for d := range perDay {
		days = append(days, d)
	}
	sort.Strings(days)
	var otHours, otPay float64
	for _, d := range days {
		otHours += derivation.OvertimeHours(perDay[d], r.otThreshold)
		otPay += derivation.Overtime(perDay[d], r.otThreshold, ps.HourlyRate, r.otMultiplier)
	}
	ps.OvertimeHours = derivation.Round2(otHours)
	ps.OvertimePay = derivation.Round2(otPay)

	ps.BasePay = derivation.Round2(ps.ActualHours * ps.HourlyRate)
	ps.NightBonus = derivation.Round2(ps.Hours.Night * ps.HourlyRate * r.night)
	ps.WeekendBonus = derivation.Round2(ps.Hours.Weekend * ps.HourlyRate * r.weekend)
	ps.HolidayBonus = derivation.Round2(ps.Hours.Holiday * ps.HourlyRate * r.holiday)

	clean := 0
	var revenue float64
	for _, ride := range rides {
		if ride.Status == constants.RIDE_STATUS_CANCELLED {
			continue
		}
		ps.RideCount++
		revenue += ride.FareRevenue
		if len(ride.Violations) == 0 {
			clean++
		}
	}
	ps.Revenue = derivation.Round2(revenue)
	ps.ComplianceRate = 100
	if ps.RideCount > 0 {
		ps.ComplianceRate = derivation.Round2(float64(clean) / float64(ps.RideCount) * 100)
	}
	if ps.ComplianceRate >= r.perfThreshold {
		mult := driver.BonusMultiplier
		if mult <= 0 {
			mult = 1
		}
		ps.PerformanceBonus = derivation.Round2(ps.Revenue * r.perfRate * mult)
	}

	ps.TotalPay = derivation.Round2(ps.BasePay + ps.NightBonus + ps.WeekendBonus + ps.HolidayBonus + ps.PerformanceBonus + ps.OvertimePay)

	ps.Compliant = true
	if ps.ActualHours > 0 {
		ps.EffectiveRate = derivation.Round2(ps.TotalPay / ps.ActualHours)
		if ps.TotalPay/ps.ActualHours < r.minimumWage {
			ps.Compliant = false
			ps.Shortfall = derivation.Round2((r.minimumWage - ps.EffectiveRate) * ps.ActualHours)
			ps.Warnings = append(ps.Warnings, fmt.Sprintf("Mindestlohnverstoß: effektiver Stundenlohn %s unter %s, Fehlbetrag %s",
				utils.FormatEuro(ps.EffectiveRate), utils.FormatEuro(r.minimumWage), utils.FormatEuro(ps.Shortfall)))
		}
	} else {
		ps.Warnings = append(ps.Warnings, "Keine abgeschlossenen Schichten im Zeitraum")
	}
	return ps, nil
}

// Save сохраняет расчетный лист (повторный расчет за тот же период перезаписывает запись).
func (c *Calculator) Save(ctx context.Context, ps models.PayStatement) (int64, error) {
	id, err := c.store.SavePayrollRecord(ctx, ps)
	if err != nil {
		return 0, err
	}
	log.WithFields(log.Fields{
		"company_id": ps.CompanyID,
		"driver_id":  ps.DriverID,
		"period":     ps.PeriodStart + ".." + ps.PeriodEnd,
		"status":     ps.Status(),
	}).Info("Abrechnung gespeichert")
	return id, nil
}

// ComputeAll считает (и сохраняет при persist) листы всех активных водителей тенанта.
// Результат упорядочен как список водителей.
func (c *Calculator) ComputeAll(ctx context.Context, companyID int64, start, end time.Time, persist bool) ([]models.PayStatement, error) {
	drivers, err := c.store.ListDrivers(ctx, companyID, true)
	if err != nil {
		return nil, err
	}
	out := make([]models.PayStatement, len(drivers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for i, d := range drivers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return apperrors.Cancelled(err)
			}
			ps, err := c.Compute(gctx, companyID, d.ID, start, end)
			if err != nil {
				return fmt.Errorf("Fahrer %s: %w", d.Name, err)
			}
			if persist {
				if _, err := c.Save(gctx, ps); err != nil {
					return fmt.Errorf("Fahrer %s: %w", d.Name, err)
				}
			}
			out[i] = ps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("ComputeAll: ошибка расчета зарплаты компании #%d: %v", companyID, err)
		return nil, err
	}
	return out, nil
}
