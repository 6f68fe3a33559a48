package db

import (
	"context"
	"fmt"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rideguardian/internal/apperrors"
	"rideguardian/internal/constants"
	"rideguardian/internal/models"
)

var berlin = mustLoc("Europe/Berlin")

func mustLoc(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// newTestStore открывает отдельную in-memory базу на каждый тест.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(DialectSQLite, "", berlin)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func addDriver(t *testing.T, s *Store, companyID int64, name string) int64 {
	t.Helper()
	id, err := s.AddDriver(context.Background(), models.Driver{CompanyID: companyID, Name: name, HourlyWage: 12})
	require.NoError(t, err)
	return id
}

func TestOpenCreatesDefaultCompanyWithRules(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	companies, err := s.GetCompanies(ctx)
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, constants.DEFAULT_COMPANY_NAME, companies[0].Name)
	assert.Equal(t, constants.DEFAULT_COMPANY_ADDRESS, companies[0].Address)

	rules, err := s.ListRules(ctx, companies[0].ID)
	require.NoError(t, err)
	assert.Len(t, rules, len(constants.DefaultRules))

	tpl, err := s.GetDefaultTemplate(ctx, companies[0].ID, constants.DOCUMENT_FAHRTENBUCH)
	require.NoError(t, err)
	assert.Equal(t, constants.DEFAULT_TEMPLATE_FAHRTENBUCH, tpl.Name)
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tables := []string{"companies", "drivers", "vehicles", "shifts", "rides", "rules", "payroll", "config", "address_cache", "fahrtenbuch_templates"}
	before := map[string][]string{}
	for _, tbl := range tables {
		cols, err := s.TableColumns(ctx, tbl)
		require.NoError(t, err)
		require.NotEmpty(t, cols, tbl)
		before[tbl] = cols
	}

	require.NoError(t, s.Migrate(ctx))

	for _, tbl := range tables {
		cols, err := s.TableColumns(ctx, tbl)
		require.NoError(t, err)
		assert.Equal(t, before[tbl], cols, tbl)
	}
}

func TestMigrateBackfillsMissingColumn(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Старая схема без колонки business_purpose.
	_, err := s.DB.ExecContext(ctx, `ALTER TABLE rides DROP COLUMN business_purpose`)
	require.NoError(t, err)
	exists, err := s.columnExists(ctx, "rides", "business_purpose")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, s.Migrate(ctx))

	exists, err = s.columnExists(ctx, "rides", "business_purpose")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestAddCompanyDuplicateIsConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AddCompany(ctx, "Taxi Nord", "Hauptstr 2, 45468 Mülheim", "", "")
	require.NoError(t, err)
	_, err = s.AddCompany(ctx, "Taxi Nord", "", "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestCompaniesOrderedAndDeactivated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	zID, err := s.AddCompany(ctx, "Zeta Taxi", "", "", "")
	require.NoError(t, err)
	_, err = s.AddCompany(ctx, "Alpha Taxi", "", "", "")
	require.NoError(t, err)

	companies, err := s.GetCompanies(ctx)
	require.NoError(t, err)
	require.Len(t, companies, 3)
	assert.Equal(t, "Alpha Taxi", companies[0].Name)

	require.NoError(t, s.DeactivateCompany(ctx, zID))
	companies, err = s.GetCompanies(ctx)
	require.NoError(t, err)
	for _, c := range companies {
		assert.NotEqual(t, "Zeta Taxi", c.Name)
	}
}

func TestConfigUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	companyID, err := s.EnsureDefaultCompany(ctx)
	require.NoError(t, err)

	_, ok, err := s.GetConfig(ctx, companyID, constants.CFG_FUEL_COST_PER_LITER)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, constants.DEFAULT_FUEL_COST_PER_LITER, s.ConfigFloat(ctx, companyID, constants.CFG_FUEL_COST_PER_LITER, constants.DEFAULT_FUEL_COST_PER_LITER))

	require.NoError(t, s.SetConfig(ctx, companyID, constants.CFG_FUEL_COST_PER_LITER, "1,80"))
	require.NoError(t, s.SetConfig(ctx, companyID, constants.CFG_FUEL_COST_PER_LITER, "1.90"))

	v, ok, err := s.GetConfig(ctx, companyID, constants.CFG_FUEL_COST_PER_LITER)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1.90", v)
	assert.InDelta(t, 1.90, s.ConfigFloat(ctx, companyID, constants.CFG_FUEL_COST_PER_LITER, 0), 1e-9)

	all, err := s.GetAllConfig(ctx, companyID)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.ErrorIs(t, s.SetConfig(ctx, 9999, "x", "y"), apperrors.ErrNotFound)
}

func TestHeadquartersFallsBackToCompanyAddress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	companyID, err := s.EnsureDefaultCompany(ctx)
	require.NoError(t, err)

	hq, err := s.HeadquartersAddress(ctx, companyID)
	require.NoError(t, err)
	assert.Equal(t, constants.DEFAULT_COMPANY_ADDRESS, hq)

	require.NoError(t, s.SetConfig(ctx, companyID, constants.CFG_HEADQUARTERS_ADDRESS, " Goetheplatz 4, 45468 Mülheim an der Ruhr "))
	hq, err = s.HeadquartersAddress(ctx, companyID)
	require.NoError(t, err)
	assert.Equal(t, "Goetheplatz 4, 45468 Mülheim an der Ruhr", hq)
}

func TestDriverUniquePerCompany(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c1, err := s.EnsureDefaultCompany(ctx)
	require.NoError(t, err)
	c2, err := s.AddCompany(ctx, "Taxi Süd", "", "", "")
	require.NoError(t, err)

	addDriver(t, s, c1, "Max Mustermann")
	_, err = s.AddDriver(ctx, models.Driver{CompanyID: c1, Name: "Max Mustermann"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	// Тот же водитель в другой компании допустим.
	addDriver(t, s, c2, "Max Mustermann")

	_, err = s.AddDriver(ctx, models.Driver{CompanyID: c1, Name: "X", Status: "Retired"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestRideTenantIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c1, err := s.EnsureDefaultCompany(ctx)
	require.NoError(t, err)
	c2, err := s.AddCompany(ctx, "Taxi Ost", "", "", "")
	require.NoError(t, err)
	d1 := addDriver(t, s, c1, "Anna")
	d2 := addDriver(t, s, c2, "Bernd")

	pickup := time.Date(2025, 2, 3, 8, 0, 0, 0, berlin)
	ride := models.Ride{
		CompanyID: c1, DriverID: d1, PickupTime: pickup, DropoffTime: models.NewNullTime(pickup.Add(20 * time.Minute)),
		PickupLocation: "Muster Str 1, 45451 MusterStadt", Destination: "Goetheplatz 4, 45468 Mülheim an der Ruhr", DistanceKm: 12.3,
	}
	_, err = s.RecordRide(ctx, ride)
	require.NoError(t, err)

	// Водитель чужого тенанта.
	foreign := ride
	foreign.DriverID = d2
	_, err = s.RecordRide(ctx, foreign)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	rides, err := s.ListRides(ctx, c2, 0, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, rides)

	rides, err = s.ListRides(ctx, c1, d1, pickup, pickup)
	require.NoError(t, err)
	require.Len(t, rides, 1)
	assert.True(t, rides[0].PickupTime.Equal(pickup))
	assert.Equal(t, berlin, rides[0].PickupTime.Location())
	assert.Equal(t, constants.RIDE_STATUS_COMPLETED, rides[0].Status)
	assert.Equal(t, []string{}, rides[0].Violations)
}

func TestRecordRideValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c1, err := s.EnsureDefaultCompany(ctx)
	require.NoError(t, err)
	d1 := addDriver(t, s, c1, "Anna")
	pickup := time.Date(2025, 2, 3, 8, 0, 0, 0, berlin)

	_, err = s.RecordRide(ctx, models.Ride{CompanyID: c1, DriverID: d1, PickupTime: pickup, DropoffTime: models.NewNullTime(pickup)})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Equal(t, "dropoff_time", apperrors.FieldOf(err))

	_, err = s.RecordRide(ctx, models.Ride{CompanyID: c1, DriverID: d1, PickupTime: pickup, DistanceKm: -1})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestListRidesOrderedAndAdjacent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c1, err := s.EnsureDefaultCompany(ctx)
	require.NoError(t, err)
	d1 := addDriver(t, s, c1, "Anna")

	base := time.Date(2025, 2, 3, 8, 0, 0, 0, berlin)
	var ids []int64
	for _, offset := range []int{120, 0, 60} {
		p := base.Add(time.Duration(offset) * time.Minute)
		id, err := s.RecordRide(ctx, models.Ride{
			CompanyID: c1, DriverID: d1, PickupTime: p, DropoffTime: models.NewNullTime(p.Add(30 * time.Minute)),
			PickupLocation: "A", Destination: fmt.Sprintf("Ziel %d", offset),
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	rides, err := s.ListRides(ctx, c1, d1, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, rides, 3)
	assert.Equal(t, "Ziel 0", rides[0].Destination)
	assert.Equal(t, "Ziel 60", rides[1].Destination)
	assert.Equal(t, "Ziel 120", rides[2].Destination)

	prev, next, err := s.GetAdjacentRides(ctx, c1, d1, rides[1].PickupTime, rides[1].ID)
	require.NoError(t, err)
	require.NotNil(t, prev)
	require.NotNil(t, next)
	assert.Equal(t, "Ziel 0", prev.Destination)
	assert.Equal(t, "Ziel 120", next.Destination)

	last, ok, err := s.GetLastDropoff(ctx, c1, d1, base.Add(100*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Ziel 60", last)

	require.NoError(t, s.UpdateRideViolations(ctx, c1, ids[0], []string{constants.RULE_TIME_GAP}, constants.RIDE_STATUS_VIOLATION))
	r, err := s.GetRide(ctx, c1, ids[0])
	require.NoError(t, err)
	assert.Equal(t, []string{constants.RULE_TIME_GAP}, r.Violations)
	assert.Equal(t, constants.RIDE_STATUS_VIOLATION, r.Status)

	routes, err := s.TopRoutes(ctx, c1, 10)
	require.NoError(t, err)
	assert.Len(t, routes, 3)
}

func TestShiftDefaultsAndDateFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c1, err := s.EnsureDefaultCompany(ctx)
	require.NoError(t, err)
	d1 := addDriver(t, s, c1, "Anna")

	start := time.Date(2025, 2, 1, 22, 0, 0, 0, berlin)
	id, err := s.RecordShift(ctx, models.Shift{
		CompanyID: c1, DriverID: d1, ShiftLabel: "1-1", StartTime: start, EndTime: models.NewNullTime(start.Add(8 * time.Hour)),
	})
	require.NoError(t, err)

	sh, err := s.GetShift(ctx, c1, id)
	require.NoError(t, err)
	assert.Equal(t, constants.DEFAULT_COMPANY_ADDRESS, sh.StartLocation)
	assert.Equal(t, constants.DEFAULT_SHIFT_ACTIVITY, sh.Activity)
	assert.Equal(t, constants.SHIFT_STATUS_CLOSED, sh.Status)
	assert.Equal(t, "2025-02-01", sh.ShiftDate.Format("2006-01-02"))

	// Смена принадлежит дате начала, даже если заканчивается на следующий день.
	shifts, err := s.ListShifts(ctx, c1, d1, time.Date(2025, 2, 2, 0, 0, 0, 0, berlin), time.Date(2025, 2, 2, 0, 0, 0, 0, berlin))
	require.NoError(t, err)
	assert.Empty(t, shifts)
	shifts, err = s.ListShifts(ctx, c1, d1, time.Date(2025, 2, 1, 0, 0, 0, 0, berlin), time.Date(2025, 2, 28, 0, 0, 0, 0, berlin))
	require.NoError(t, err)
	assert.Len(t, shifts, 1)

	_, err = s.RecordShift(ctx, models.Shift{CompanyID: c1, DriverID: d1, StartTime: start, EndTime: models.NewNullTime(start.Add(-time.Hour))})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	prev, ok, err := s.GetPreviousShift(ctx, c1, d1, start.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, prev.ID)
}

func TestAddressCacheCounting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetAddressCache(ctx, "A", "B")
	require.NoError(t, err)
	assert.False(t, ok)

	e, err := s.SaveAddressCache(ctx, "A", "B", 12.5, 18)
	require.NoError(t, err)
	assert.EqualValues(t, 1, e.UseCount)

	n, err := s.TouchAddressCache(ctx, "A", "B")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	e, err = s.SaveAddressCache(ctx, "A", "B", 13, 19)
	require.NoError(t, err)
	assert.EqualValues(t, 3, e.UseCount)
	assert.InDelta(t, 13, e.DistanceKm, 1e-9)

	_, err = s.TouchAddressCache(ctx, "X", "Y")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = s.SaveAddressCache(ctx, "C", "D", 1, 1)
	require.NoError(t, err)
	st, err := s.GetAddressCacheStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.Entries)
	assert.EqualValues(t, 4, st.TotalUses)

	top, err := s.TopReusedRoutes(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "A", top[0].Origin)

	deleted, err := s.DeleteStaleAddressCache(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}

func TestPayrollRecordUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c1, err := s.EnsureDefaultCompany(ctx)
	require.NoError(t, err)
	d1 := addDriver(t, s, c1, "Anna")

	ps := models.PayStatement{CompanyID: c1, DriverID: d1, PeriodStart: "2025-02-01", PeriodEnd: "2025-02-28", TotalPay: 480}
	id1, err := s.SavePayrollRecord(ctx, ps)
	require.NoError(t, err)
	ps.TotalPay = 500
	ps.Compliant = true
	id2, err := s.SavePayrollRecord(ctx, ps)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	rec, err := s.GetPayrollRecord(ctx, c1, d1, "2025-02-01", "2025-02-28")
	require.NoError(t, err)
	assert.Equal(t, constants.PAYROLL_STATUS_COMPLIANT, rec.Status)
	assert.InDelta(t, 500, rec.Statement.TotalPay, 1e-9)

	_, err = s.GetPayrollRecord(ctx, c1, d1, "2025-03-01", "2025-03-31")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRebindPostgres(t *testing.T) {
	s := &Store{dialect: DialectPostgres}
	assert.Equal(t, "SELECT * FROM rides WHERE company_id = $1 AND id = $2", s.rebind("SELECT * FROM rides WHERE company_id = ? AND id = ?"))
	sq := &Store{dialect: DialectSQLite}
	assert.Equal(t, "a = ?", sq.rebind("a = ?"))
}
