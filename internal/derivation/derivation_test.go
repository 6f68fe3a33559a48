package derivation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "time/tzdata"

	"rideguardian/internal/apperrors"
	"rideguardian/internal/constants"
	"rideguardian/internal/mapping"
	"rideguardian/internal/models"
)

var berlin = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		panic(err)
	}
	return loc
}()

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, berlin)
}

type fakeStore struct {
	hq       string
	last     string
	hasLast  bool
	config   map[string]float64
	lastErr  error
	hqCalled int
}

func (f *fakeStore) GetLastDropoff(context.Context, int64, int64, time.Time) (string, bool, error) {
	return f.last, f.hasLast, f.lastErr
}

func (f *fakeStore) HeadquartersAddress(context.Context, int64) (string, error) {
	f.hqCalled++
	return f.hq, nil
}

func (f *fakeStore) ConfigFloat(_ context.Context, _ int64, key string, def float64) float64 {
	if v, ok := f.config[key]; ok {
		return v
	}
	return def
}

type fakeMaps struct {
	km  float64
	err error
}

func (f fakeMaps) Lookup(context.Context, string, string, bool) (mapping.Result, error) {
	return mapping.Result{DistanceKm: f.km, Source: mapping.SourceCache}, f.err
}

func TestEarlyMorningShift(t *testing.T) {
	sh := models.Shift{StartTime: at(2025, time.February, 1, 5, 30), EndTime: models.NewNullTime(at(2025, time.February, 1, 9, 30))}
	got, bands, err := DeriveShift(sh, nil)
	require.NoError(t, err)
	assert.Equal(t, 4.0, got.TotalHours)
	assert.Equal(t, 15.0, got.BreakMinutes)
	assert.Equal(t, 3.75, got.ActualHours)
	assert.Equal(t, 3.5, got.EarlyShiftHours)
	assert.Equal(t, 0.5, got.NightShiftHours)
	// 01.02.2025 - суббота.
	assert.Equal(t, 4.0, bands.Weekend)
	assert.Zero(t, bands.Regular)
}

func TestBandAcrossMidnight(t *testing.T) {
	b, err := Band(at(2025, time.March, 5, 21, 30), at(2025, time.March, 6, 2, 15), nil)
	require.NoError(t, err)
	assert.Equal(t, 4.75, b.Total)
	assert.Equal(t, 4.25, b.Night)
	assert.Equal(t, 0.5, b.Regular)
	assert.Zero(t, b.Early)
	assert.Zero(t, b.Weekend)
}

func TestBandHoliday(t *testing.T) {
	b, err := Band(at(2025, time.December, 25, 10, 0), at(2025, time.December, 25, 12, 0), nil)
	require.NoError(t, err)
	assert.Equal(t, 2.0, b.Holiday)
	assert.Zero(t, b.Regular)

	custom := func(time.Time) bool { return false }
	b, err = Band(at(2025, time.December, 25, 10, 0), at(2025, time.December, 25, 12, 0), custom)
	require.NoError(t, err)
	assert.Equal(t, 2.0, b.Regular)
}

func TestBandInvariants(t *testing.T) {
	start := at(2025, time.March, 7, 3, 10)
	for _, hours := range []float64{0, 0.25, 1, 7.5, 13, 26} {
		end := start.Add(time.Duration(hours * float64(time.Hour)))
		b, err := Band(start, end, nil)
		require.NoError(t, err)
		assert.InDelta(t, hours, b.Total, 0.011)
		for _, v := range []float64{b.Regular, b.Early, b.Night, b.Weekend, b.Holiday} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, b.Total+1e-9)
		}
	}
}

func TestBandAcrossDSTChange(t *testing.T) {
	// 30.03.2025: 02:00 -> 03:00, ночь длится на час меньше.
	b, err := Band(at(2025, time.March, 29, 23, 0), at(2025, time.March, 30, 5, 0), nil)
	require.NoError(t, err)
	assert.Equal(t, 5.0, b.Total)
	assert.Equal(t, 5.0, b.Night)
}

func TestEndBeforeStartIsValidation(t *testing.T) {
	_, err := Band(at(2025, time.March, 5, 10, 0), at(2025, time.March, 5, 9, 0), nil)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	sh := models.Shift{StartTime: at(2025, time.March, 5, 10, 0), EndTime: models.NewNullTime(at(2025, time.March, 5, 9, 0))}
	_, _, err = DeriveShift(sh, nil)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestMandatoryBreakThresholds(t *testing.T) {
	assert.Equal(t, 0.0, MandatoryBreak(3.99))
	assert.Equal(t, 15.0, MandatoryBreak(4))
	assert.Equal(t, 15.0, MandatoryBreak(5.99))
	assert.Equal(t, 30.0, MandatoryBreak(6))
	assert.Equal(t, 30.0, MandatoryBreak(12))
}

func TestOvertime(t *testing.T) {
	assert.Zero(t, Overtime(8, 8, 15, 1.5))
	assert.Equal(t, 15.0, Overtime(10, 8, 15, 1.5))
	assert.Equal(t, 2.0, OvertimeHours(10, 8))
	assert.Zero(t, OvertimeHours(7, 8))
}

func TestFuelAndCost(t *testing.T) {
	liters, cost, err := FuelAndCost(25.5, 8.5, 1.45)
	require.NoError(t, err)
	assert.Equal(t, 2.17, liters)
	assert.Equal(t, 3.14, cost)

	liters, cost, err = FuelAndCost(0, 8.5, 1.45)
	require.NoError(t, err)
	assert.Zero(t, liters)
	assert.Zero(t, cost)

	_, _, err = FuelAndCost(-1, 8.5, 1.45)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestGermanHolidays(t *testing.T) {
	byName := map[string]time.Time{}
	for _, h := range GermanHolidays(2025) {
		byName[h.Name] = h.Date
	}
	assert.Len(t, byName, 9)
	assert.Equal(t, "2025-04-18", byName["Karfreitag"].Format("2006-01-02"))
	assert.Equal(t, "2025-04-21", byName["Ostermontag"].Format("2006-01-02"))
	assert.Equal(t, "2025-05-29", byName["Christi Himmelfahrt"].Format("2006-01-02"))
	assert.Equal(t, "2025-06-09", byName["Pfingstmontag"].Format("2006-01-02"))

	assert.True(t, IsGermanHoliday(at(2024, time.April, 1, 12, 0)))
	assert.False(t, IsGermanHoliday(at(2024, time.April, 2, 12, 0)))
	assert.Equal(t, "Tag der Deutschen Einheit", HolidayName(at(2026, time.October, 3, 0, 0)))
}

func TestEngineFuelUsesTenantConfig(t *testing.T) {
	e := NewEngine(&fakeStore{config: map[string]float64{"default_fuel_consumption": 10, "fuel_cost_per_liter": 2}}, fakeMaps{}, nil)
	liters, cost, err := e.FuelAndCost(context.Background(), 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 5.0, liters)
	assert.Equal(t, 10.0, cost)
}

func TestAutoFillPickup(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{hq: "Muster Str 1, 45451 MusterStadt", last: "Bahnhofstr 9, 45451 MusterStadt", hasLast: true}

	got, err := NewEngine(store, fakeMaps{km: 4.2}, nil).AutoFillPickup(ctx, 1, 7, "Hauptstr 3, 45451 MusterStadt")
	require.NoError(t, err)
	assert.Equal(t, store.last, got)

	got, err = NewEngine(store, fakeMaps{km: 35}, nil).AutoFillPickup(ctx, 1, 7, "Domplatz 1, 50667 Köln")
	require.NoError(t, err)
	assert.Equal(t, store.hq, got)

	got, err = NewEngine(store, fakeMaps{err: errors.New("boom")}, nil).AutoFillPickup(ctx, 1, 7, "Hauptstr 3")
	require.NoError(t, err)
	assert.Equal(t, store.hq, got)

	store.hasLast = false
	got, err = NewEngine(store, fakeMaps{km: 1}, nil).AutoFillPickup(ctx, 1, 7, "Hauptstr 3")
	require.NoError(t, err)
	assert.Equal(t, store.hq, got)
}

func TestAutoFillPickupAtDistanceLimit(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{hq: "Muster Str 1, 45451 MusterStadt", last: "Bahnhofstr 9, 45451 MusterStadt", hasLast: true}

	got, err := NewEngine(store, fakeMaps{km: constants.AUTOFILL_MAX_DISTANCE_KM}, nil).AutoFillPickup(ctx, 1, 7, "Hauptstr 3, 45451 MusterStadt")
	require.NoError(t, err)
	assert.Equal(t, store.last, got)

	got, err = NewEngine(store, fakeMaps{km: constants.AUTOFILL_MAX_DISTANCE_KM + 0.1}, nil).AutoFillPickup(ctx, 1, 7, "Hauptstr 3, 45451 MusterStadt")
	require.NoError(t, err)
	assert.Equal(t, store.hq, got)
}

func TestMonthlySummarySkipsOpenShifts(t *testing.T) {
	shifts := []models.Shift{
		{ID: 1, StartTime: at(2025, time.February, 1, 5, 30), EndTime: models.NewNullTime(at(2025, time.February, 1, 9, 30))},
		{ID: 2, StartTime: at(2025, time.February, 3, 8, 0), EndTime: models.NewNullTime(at(2025, time.February, 3, 16, 0))},
		{ID: 3, StartTime: at(2025, time.February, 4, 8, 0)},
	}
	sum, err := MonthlySummary(shifts, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.ShiftCount)
	assert.Equal(t, 12.0, sum.TotalHours)
	assert.Equal(t, 45.0, sum.BreakMinutes)
	assert.Equal(t, 11.25, sum.ActualHours)
	assert.Equal(t, 4.5, sum.EarlyHours)
	assert.Equal(t, 0.5, sum.NightHours)
}

func TestCheckRideData(t *testing.T) {
	store := &fakeStore{hq: "HQ"}
	e := NewEngine(store, fakeMaps{km: 10}, nil)

	check := e.CheckRideData(context.Background(), models.Ride{})
	assert.False(t, check.Valid)
	assert.Len(t, check.Errors, 4)

	r := models.Ride{
		DriverID:       3,
		PickupTime:     at(2025, time.February, 3, 8, 0),
		DropoffTime:    models.NewNullTime(at(2025, time.February, 3, 8, 30)),
		PickupLocation: "A",
		Destination:    "B",
		DistanceKm:     25,
	}
	check = e.CheckRideData(context.Background(), r)
	assert.True(t, check.Valid)
	require.Len(t, check.Warnings, 1)
	assert.Contains(t, check.Warnings[0], "Streckenabweichung")
	assert.Equal(t, []string{"Vorgeschlagener Startort: HQ"}, check.Suggestions)

	r.DropoffTime = models.NewNullTime(r.PickupTime)
	check = e.CheckRideData(context.Background(), r)
	assert.False(t, check.Valid)
}
