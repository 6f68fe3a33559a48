package validator

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rideguardian/internal/apperrors"
	"rideguardian/internal/constants"
	"rideguardian/internal/db"
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

func at(d, hh, mm int) time.Time {
	return time.Date(2025, time.February, d, hh, mm, 0, 0, berlin)
}

type env struct {
	store     *db.Store
	companyID int64
	driverID  int64
	v         *Validator
}

func newEnv(t *testing.T, notifier Notifier) env {
	t.Helper()
	s, err := db.Open(db.DialectSQLite, "", berlin)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	ctx := context.Background()
	companyID, err := s.EnsureDefaultCompany(ctx)
	require.NoError(t, err)
	driverID, err := s.AddDriver(ctx, models.Driver{CompanyID: companyID, Name: "Max Mustermann", HourlyWage: 12})
	require.NoError(t, err)
	return env{store: s, companyID: companyID, driverID: driverID, v: New(s, mapping.NewCache(s, nil), notifier)}
}

func (e env) ride(id int64, pickup, dropoff time.Time, from, to string) models.Ride {
	return models.Ride{
		ID:             id,
		CompanyID:      e.companyID,
		DriverID:       e.driverID,
		PickupTime:     pickup,
		DropoffTime:    models.NewNullTime(dropoff),
		PickupLocation: from,
		Destination:    to,
		VehiclePlate:   "E-TX 100",
		Status:         constants.RIDE_STATUS_COMPLETED,
	}
}

func ruleIDs(vs []models.Violation) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.RuleID)
	}
	return out
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyCritical(ctx context.Context, companyID int64, ride models.Ride, violations []models.Violation) {
	m.Called(ctx, companyID, ride, violations)
}

func TestCatalogIsComplete(t *testing.T) {
	rules := Catalog()
	require.Len(t, rules, len(constants.DefaultRules))
	for i, r := range rules {
		assert.Equal(t, constants.DefaultRules[i].Name, r.ID)
		assert.NotEmpty(t, r.Default, r.ID)
		assert.NotNil(t, r.Eval, r.ID)
		assert.Contains(t, []string{models.SeverityCritical, models.SeverityWarning, models.SeverityInfo}, r.Severity)
	}
}

func TestShiftStartAtHQTriggers(t *testing.T) {
	notifier := new(MockNotifier)
	notifier.On("NotifyCritical", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return()
	e := newEnv(t, notifier)
	ctx := context.Background()

	shiftID, err := e.store.RecordShift(ctx, models.Shift{
		CompanyID: e.companyID, DriverID: e.driverID, ShiftLabel: "1-1(1)",
		StartTime: at(3, 8, 0), EndTime: models.NewNullTime(at(3, 12, 0)),
	})
	require.NoError(t, err)
	r := e.ride(0, at(3, 8, 5), at(3, 8, 30), "Wrong Street 1, Berlin", constants.DEFAULT_COMPANY_ADDRESS)
	r.ShiftID = models.NewNullInt64(shiftID)
	r.ID, err = e.store.RecordRide(ctx, r)
	require.NoError(t, err)

	violations, err := e.v.ValidateRide(ctx, e.companyID, r)
	require.NoError(t, err)
	var critical []models.Violation
	for _, v := range violations {
		if v.Severity == models.SeverityCritical {
			critical = append(critical, v)
		}
	}
	require.Len(t, critical, 1)
	assert.Equal(t, constants.RULE_SHIFT_START_AT_HQ, critical[0].RuleID)
	assert.Equal(t, r.ID, critical[0].RideID)
	assert.True(t, critical[0].AutoFixable)
	assert.Equal(t, constants.RULE_SHIFT_START_AT_HQ, violations[0].RuleID)
	notifier.AssertNumberOfCalls(t, "NotifyCritical", 1)

	// Старт с базы: правило не срабатывает.
	r.PickupLocation = " Muster Str 1,  45451 MusterStadt"
	violations, err = e.v.ValidateRide(ctx, e.companyID, r)
	require.NoError(t, err)
	assert.NotContains(t, ruleIDs(violations), constants.RULE_SHIFT_START_AT_HQ)
}

func TestViolationsOrderedByScore(t *testing.T) {
	e := newEnv(t, nil)
	r := e.ride(1, at(3, 9, 0), at(3, 9, 0), "A", "")
	r.VehiclePlate = ""
	r.IsBusinessTrip = true

	violations, err := e.v.ValidateRide(context.Background(), e.companyID, r)
	require.NoError(t, err)
	require.NotEmpty(t, violations)
	assert.Equal(t, constants.RULE_TIME_SEQUENCE, violations[0].RuleID)
	for i := 1; i < len(violations); i++ {
		assert.GreaterOrEqual(t, violations[i-1].SeverityScore, violations[i].SeverityScore)
	}
	assert.Contains(t, ruleIDs(violations), constants.RULE_REQUIRED_FIELDS)
	assert.Contains(t, ruleIDs(violations), constants.RULE_BUSINESS_PURPOSE_REQUIRED)
}

func TestDuplicatesFlagBothRides(t *testing.T) {
	e := newEnv(t, nil)
	rides := []models.Ride{
		e.ride(2, at(4, 10, 10), at(4, 10, 30), "Bahnhof Essen", "Rathaus Essen"),
		e.ride(1, at(4, 10, 0), at(4, 10, 20), "Bahnhof Essen", "Rathaus Essen"),
		e.ride(3, at(4, 14, 0), at(4, 14, 20), "Bahnhof Essen", "Rathaus Essen"),
	}
	results, err := e.v.ValidateSequence(context.Background(), e.companyID, rides)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Contains(t, ruleIDs(results[1]), constants.RULE_DUPLICATE_DETECTION)
	assert.Contains(t, ruleIDs(results[2]), constants.RULE_DUPLICATE_DETECTION)
	assert.NotContains(t, ruleIDs(results[3]), constants.RULE_DUPLICATE_DETECTION)
}

func TestSequenceRejectsRidesWithoutDistinctIDs(t *testing.T) {
	e := newEnv(t, nil)
	_, err := e.v.ValidateSequence(context.Background(), e.companyID, []models.Ride{
		e.ride(0, at(5, 8, 0), at(5, 8, 20), "A", "B"),
		e.ride(0, at(5, 9, 0), at(5, 9, 20), "B", "C"),
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = e.v.ValidateSequence(context.Background(), e.companyID, []models.Ride{
		e.ride(3, at(5, 8, 0), at(5, 8, 20), "A", "B"),
		e.ride(3, at(5, 9, 0), at(5, 9, 20), "B", "C"),
	})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestSequenceUsesPickupOrderForPreviousRide(t *testing.T) {
	e := newEnv(t, nil)
	rides := []models.Ride{
		e.ride(2, at(5, 8, 50), at(5, 9, 10), "B", "C"),
		e.ride(1, at(5, 8, 0), at(5, 8, 20), "A", "B"),
	}
	results, err := e.v.ValidateSequence(context.Background(), e.companyID, rides)
	require.NoError(t, err)
	// 30 минут между окончанием #1 и подачей #2.
	assert.Contains(t, ruleIDs(results[2]), constants.RULE_TIME_GAP)
	assert.NotContains(t, ruleIDs(results[1]), constants.RULE_TIME_GAP)
}

func TestConfigOverridesRuleValue(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	require.NoError(t, e.store.SetConfig(ctx, e.companyID, constants.CFG_TIME_TOLERANCE_MINUTES, "60"))
	rides := []models.Ride{
		e.ride(1, at(5, 8, 0), at(5, 8, 20), "A", "B"),
		e.ride(2, at(5, 8, 50), at(5, 9, 10), "B", "C"),
	}
	results, err := e.v.ValidateSequence(ctx, e.companyID, rides)
	require.NoError(t, err)
	assert.NotContains(t, ruleIDs(results[2]), constants.RULE_TIME_GAP)
}

func TestDisabledAndPerDriverRules(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	other, err := e.store.AddDriver(ctx, models.Driver{CompanyID: e.companyID, Name: "Erika Musterfrau"})
	require.NoError(t, err)
	require.NoError(t, e.store.UpsertRule(ctx, models.Rule{
		CompanyID: e.companyID, DriverID: other, Name: constants.RULE_MINIMUM_DURATION,
		Value: "1", Category: models.CategoryTime, Enabled: false, PerDriverOverride: true,
	}))
	// Неизвестное правило игнорируется.
	require.NoError(t, e.store.UpsertRule(ctx, models.Rule{CompanyID: e.companyID, Name: "mystery_rule", Value: "1", Enabled: true}))

	short := e.ride(1, at(6, 8, 0), at(6, 8, 0).Add(30*time.Second), "A", "B")
	vs, err := e.v.ValidateRide(ctx, e.companyID, short)
	require.NoError(t, err)
	assert.Contains(t, ruleIDs(vs), constants.RULE_MINIMUM_DURATION)

	short.DriverID = other
	vs, err = e.v.ValidateRide(ctx, e.companyID, short)
	require.NoError(t, err)
	assert.NotContains(t, ruleIDs(vs), constants.RULE_MINIMUM_DURATION)

	require.NoError(t, e.store.UpsertRule(ctx, models.Rule{
		CompanyID: e.companyID, Name: constants.RULE_MINIMUM_DURATION, Value: "1", Category: models.CategoryTime, Enabled: false,
	}))
	short.DriverID = e.driverID
	vs, err = e.v.ValidateRide(ctx, e.companyID, short)
	require.NoError(t, err)
	assert.NotContains(t, ruleIDs(vs), constants.RULE_MINIMUM_DURATION)
}

func TestPanickingRuleIsSkipped(t *testing.T) {
	n := len(catalog)
	Register(Rule{
		ID: "boom", Name: "Boom", Severity: models.SeverityCritical, Category: models.CategoryDataQuality, Score: 10,
		Eval: func(context.Context, *Check) (*Finding, error) { panic("kaputt") },
	})
	defer func() { catalog = catalog[:n] }()

	e := newEnv(t, nil)
	vs, err := e.v.ValidateRide(context.Background(), e.companyID, e.ride(1, at(7, 8, 0), at(7, 7, 0), "A", "B"))
	require.NoError(t, err)
	assert.NotContains(t, ruleIDs(vs), "boom")
	assert.Contains(t, ruleIDs(vs), constants.RULE_TIME_SEQUENCE)
}

func TestWorkingTimeRules(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	_, err := e.store.RecordShift(ctx, models.Shift{CompanyID: e.companyID, DriverID: e.driverID,
		StartTime: at(10, 6, 0), EndTime: models.NewNullTime(at(10, 18, 0))})
	require.NoError(t, err)
	next, err := e.store.RecordShift(ctx, models.Shift{CompanyID: e.companyID, DriverID: e.driverID,
		StartTime: at(11, 0, 0), EndTime: models.NewNullTime(at(11, 4, 0))})
	require.NoError(t, err)

	r := e.ride(0, at(11, 0, 10), at(11, 0, 40), constants.DEFAULT_COMPANY_ADDRESS, "Bahnhof Essen")
	r.ShiftID = models.NewNullInt64(next)
	vs, err := e.v.ValidateRide(ctx, e.companyID, r)
	require.NoError(t, err)
	assert.Contains(t, ruleIDs(vs), constants.RULE_DAILY_REST)

	r = e.ride(0, at(10, 7, 0), at(10, 7, 30), "A", "B")
	vs, err = e.v.ValidateRide(ctx, e.companyID, r)
	require.NoError(t, err)
	assert.Contains(t, ruleIDs(vs), constants.RULE_DAILY_WORK_LIMIT)
}

func TestContinuousDriving(t *testing.T) {
	e := newEnv(t, nil)
	var rides []models.Ride
	start := at(12, 6, 0)
	for i := 0; i < 5; i++ {
		p := start.Add(time.Duration(i) * time.Hour)
		rides = append(rides, e.ride(int64(i+1), p, p.Add(55*time.Minute), "A", "A"))
	}
	results, err := e.v.ValidateSequence(context.Background(), e.companyID, rides)
	require.NoError(t, err)
	assert.NotContains(t, ruleIDs(results[4]), constants.RULE_CONTINUOUS_DRIVING)
	assert.Contains(t, ruleIDs(results[5]), constants.RULE_CONTINUOUS_DRIVING)
}

func TestApplyResultsPersists(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	good := e.ride(0, at(13, 8, 0), at(13, 8, 20), constants.DEFAULT_COMPANY_ADDRESS, constants.DEFAULT_COMPANY_ADDRESS)
	var err error
	good.ID, err = e.store.RecordRide(ctx, good)
	require.NoError(t, err)
	bad := e.ride(0, at(13, 9, 0), at(13, 9, 20), "A", "B")
	bad.IsBusinessTrip = true
	bad.ID, err = e.store.RecordRide(ctx, bad)
	require.NoError(t, err)

	results, err := e.v.ValidateSequence(ctx, e.companyID, []models.Ride{good, bad})
	require.NoError(t, err)
	require.NoError(t, e.v.ApplyResults(ctx, e.companyID, results))

	stored, err := e.store.GetRide(ctx, e.companyID, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.RIDE_STATUS_VIOLATION, stored.Status)
	assert.Contains(t, stored.Violations, constants.RULE_BUSINESS_PURPOSE_REQUIRED)
}

func TestSummarize(t *testing.T) {
	var vs []models.Violation
	for i := 0; i < 12; i++ {
		sev, cat := models.SeverityInfo, models.CategoryTime
		if i%3 == 0 {
			sev, cat = models.SeverityCritical, models.CategoryDistance
		}
		vs = append(vs, models.Violation{RuleID: "r", Severity: sev, Category: cat, SeverityScore: i % 10})
	}
	s := Summarize(vs)
	assert.Equal(t, 12, s.Total)
	assert.Equal(t, 4, s.CriticalCount)
	assert.Equal(t, 8, s.InfoCount)
	assert.Equal(t, 4, s.ByCategory[models.CategoryDistance])
	require.Len(t, s.Top, 10)
	assert.Equal(t, 9, s.Top[0].SeverityScore)
}
