package payroll

import (
	"context"
	"encoding/json"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rideguardian/internal/apperrors"
	"rideguardian/internal/constants"
	"rideguardian/internal/db"
	"rideguardian/internal/models"
)

var berlin = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		panic(err)
	}
	return loc
}()

func day(d int) time.Time { return time.Date(2025, time.February, d, 0, 0, 0, 0, berlin) }

func at(d, hh, mm int) time.Time { return time.Date(2025, time.February, d, hh, mm, 0, 0, berlin) }

type env struct {
	store     *db.Store
	companyID int64
	calc      *Calculator
}

func newEnv(t *testing.T) env {
	t.Helper()
	s, err := db.Open(db.DialectSQLite, "", berlin)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	cid, err := s.EnsureDefaultCompany(context.Background())
	require.NoError(t, err)
	return env{store: s, companyID: cid, calc: New(s, nil)}
}

func (e env) driver(t *testing.T, name string, wage, mult float64) int64 {
	t.Helper()
	id, err := e.store.AddDriver(context.Background(), models.Driver{CompanyID: e.companyID, Name: name, HourlyWage: wage, BonusMultiplier: mult})
	require.NoError(t, err)
	return id
}

func (e env) shift(t *testing.T, driverID int64, start, end time.Time) {
	t.Helper()
	_, err := e.store.RecordShift(context.Background(), models.Shift{
		CompanyID: e.companyID,
		DriverID:  driverID,
		StartTime: start,
		EndTime:   models.NewNullTime(end),
	})
	require.NoError(t, err)
}

func (e env) ride(t *testing.T, driverID int64, pickup time.Time, revenue float64, violations []string) {
	t.Helper()
	_, err := e.store.RecordRide(context.Background(), models.Ride{
		CompanyID:      e.companyID,
		DriverID:       driverID,
		PickupTime:     pickup,
		DropoffTime:    models.NewNullTime(pickup.Add(20 * time.Minute)),
		PickupLocation: constants.DEFAULT_COMPANY_ADDRESS,
		Destination:    "Hauptbahnhof, Essen",
		VehiclePlate:   "E-TX 100",
		FareRevenue:    revenue,
		Violations:     violations,
	})
	require.NoError(t, err)
}

func TestMinimumWageShortfall(t *testing.T) {
	e := newEnv(t)
	did := e.driver(t, "Max Mustermann", 12, 1)
	for d := 3; d <= 7; d++ {
		e.shift(t, did, at(d, 8, 0), at(d, 16, 30))
	}

	ps, err := e.calc.Compute(context.Background(), e.companyID, did, day(3), day(7))
	require.NoError(t, err)
	assert.Equal(t, 40.0, ps.ActualHours)
	assert.Equal(t, 150.0, ps.BreakMinutes)
	assert.Equal(t, 480.0, ps.BasePay)
	assert.Equal(t, 480.0, ps.TotalPay)
	assert.Equal(t, 12.0, ps.EffectiveRate)
	assert.False(t, ps.Compliant)
	assert.Equal(t, 16.4, ps.Shortfall)
	assert.Equal(t, constants.PAYROLL_STATUS_NON_COMPLIANT, ps.Status())
	assert.Equal(t, "2025-02-03", ps.PeriodStart)
	assert.Equal(t, "2025-02-07", ps.PeriodEnd)
	assert.Equal(t, 5, ps.ShiftCount)
	assert.Equal(t, 5.0, ps.Hours.Early)
	require.Len(t, ps.Warnings, 1)
	assert.Contains(t, ps.Warnings[0], "Mindestlohnverstoß")
	assert.Contains(t, ps.Warnings[0], "16,40 €")
}

func TestRecomputeIsByteIdentical(t *testing.T) {
	e := newEnv(t)
	did := e.driver(t, "Max Mustermann", 14, 1)
	e.shift(t, did, at(1, 22, 0), at(2, 6, 0))
	e.shift(t, did, at(4, 7, 0), at(4, 18, 30))
	e.ride(t, did, at(4, 9, 0), 35.5, nil)

	a, err := e.calc.Compute(context.Background(), e.companyID, did, day(1), day(28))
	require.NoError(t, err)
	b, err := e.calc.Compute(context.Background(), e.companyID, did, day(1), day(28))
	require.NoError(t, err)
	ja, err := json.Marshal(a)
	require.NoError(t, err)
	jb, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, string(ja), string(jb))
}

func TestNightAndWeekendBonus(t *testing.T) {
	e := newEnv(t)
	did := e.driver(t, "Erika Musterfrau", 20, 1)
	// Суббота 22:00 - воскресенье 06:00
	e.shift(t, did, at(1, 22, 0), at(2, 6, 0))

	ps, err := e.calc.Compute(context.Background(), e.companyID, did, day(1), day(2))
	require.NoError(t, err)
	assert.Equal(t, 8.0, ps.Hours.Night)
	assert.Equal(t, 8.0, ps.Hours.Weekend)
	assert.Equal(t, 7.5, ps.ActualHours)
	assert.Equal(t, 150.0, ps.BasePay)
	assert.Equal(t, 24.0, ps.NightBonus)
	assert.Equal(t, 16.0, ps.WeekendBonus)
	assert.Equal(t, 190.0, ps.TotalPay)
	assert.True(t, ps.Compliant)
	assert.Empty(t, ps.Warnings)
}

func TestOvertimePerCalendarDay(t *testing.T) {
	e := newEnv(t)
	did := e.driver(t, "Max Mustermann", 12, 1)
	e.shift(t, did, at(4, 7, 0), at(4, 18, 30))
	e.shift(t, did, at(5, 8, 0), at(5, 16, 30))

	ps, err := e.calc.Compute(context.Background(), e.companyID, did, day(3), day(7))
	require.NoError(t, err)
	assert.Equal(t, 19.0, ps.ActualHours)
	assert.Equal(t, 3.0, ps.OvertimeHours)
	assert.Equal(t, 18.0, ps.OvertimePay)
	assert.Equal(t, 246.0, ps.TotalPay)
	assert.True(t, ps.Compliant)
}

func TestPerformanceBonus(t *testing.T) {
	e := newEnv(t)
	good := e.driver(t, "Gut", 15, 2)
	e.shift(t, good, at(4, 8, 0), at(4, 16, 30))
	e.ride(t, good, at(4, 9, 0), 100, nil)
	e.ride(t, good, at(4, 11, 0), 100, nil)

	bad := e.driver(t, "Schlecht", 15, 2)
	e.shift(t, bad, at(4, 8, 0), at(4, 16, 30))
	e.ride(t, bad, at(4, 9, 0), 100, nil)
	e.ride(t, bad, at(4, 11, 0), 100, []string{constants.RULE_PICKUP_DISTANCE})

	ps, err := e.calc.Compute(context.Background(), e.companyID, good, day(4), day(4))
	require.NoError(t, err)
	assert.Equal(t, 100.0, ps.ComplianceRate)
	assert.Equal(t, 200.0, ps.Revenue)
	assert.Equal(t, 20.0, ps.PerformanceBonus)
	assert.Equal(t, 2, ps.RideCount)

	ps, err = e.calc.Compute(context.Background(), e.companyID, bad, day(4), day(4))
	require.NoError(t, err)
	assert.Equal(t, 50.0, ps.ComplianceRate)
	assert.Zero(t, ps.PerformanceBonus)
}

func TestTenantRatesFromConfig(t *testing.T) {
	e := newEnv(t)
	did := e.driver(t, "Max Mustermann", 12, 1)
	e.shift(t, did, at(3, 8, 0), at(3, 16, 30))
	require.NoError(t, e.store.SetConfig(context.Background(), e.companyID, constants.CFG_MINIMUM_WAGE_HOURLY, "11.50"))

	ps, err := e.calc.Compute(context.Background(), e.companyID, did, day(3), day(3))
	require.NoError(t, err)
	assert.Equal(t, 11.5, ps.MinimumWage)
	assert.True(t, ps.Compliant)
	assert.Zero(t, ps.Shortfall)
}

func TestComputeValidatesPeriod(t *testing.T) {
	e := newEnv(t)
	did := e.driver(t, "Max Mustermann", 12, 1)
	_, err := e.calc.Compute(context.Background(), e.companyID, did, day(7), day(3))
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = e.calc.Compute(context.Background(), e.companyID, 9999, day(3), day(7))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestComputeAllPersists(t *testing.T) {
	e := newEnv(t)
	a := e.driver(t, "Anna", 12, 1)
	b := e.driver(t, "Bernd", 13, 1)
	e.shift(t, a, at(3, 8, 0), at(3, 16, 30))
	e.shift(t, b, at(3, 8, 0), at(3, 16, 30))

	out, err := e.calc.ComputeAll(context.Background(), e.companyID, day(3), day(7), true)
	require.NoError(t, err)
	require.Len(t, out, 2)

	rec, err := e.store.GetPayrollRecord(context.Background(), e.companyID, b, "2025-02-03", "2025-02-07")
	require.NoError(t, err)
	assert.Equal(t, constants.PAYROLL_STATUS_COMPLIANT, rec.Status)
	assert.Equal(t, 104.0, rec.Statement.TotalPay)

	// Повторное сохранение перезаписывает запись.
	out, err = e.calc.ComputeAll(context.Background(), e.companyID, day(3), day(7), true)
	require.NoError(t, err)
	rec2, err := e.store.GetPayrollRecord(context.Background(), e.companyID, b, "2025-02-03", "2025-02-07")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, rec2.ID)
}

func TestComputeAllCancelled(t *testing.T) {
	e := newEnv(t)
	e.driver(t, "Anna", 12, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.calc.ComputeAll(ctx, e.companyID, day(3), day(7), false)
	assert.Error(t, err)
}
