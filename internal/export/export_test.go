package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"rideguardian/internal/apperrors"
	"rideguardian/internal/constants"
	"rideguardian/internal/db"
	"rideguardian/internal/models"
	"rideguardian/internal/payroll"
)

var berlin = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		panic(err)
	}
	return loc
}()

func at(d, hh, mm int) time.Time { return time.Date(2025, time.February, d, hh, mm, 0, 0, berlin) }

func day(m time.Month, d int) time.Time { return time.Date(2025, m, d, 0, 0, 0, 0, berlin) }

const hq = constants.DEFAULT_COMPANY_ADDRESS

type env struct {
	store     *db.Store
	companyID int64
	dir       string
}

func newEnv(t *testing.T) env {
	t.Helper()
	s, err := db.Open(db.DialectSQLite, "", berlin)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	cid, err := s.EnsureDefaultCompany(context.Background())
	require.NoError(t, err)
	return env{store: s, companyID: cid, dir: t.TempDir()}
}

func (e env) exporter(store Store) *Exporter {
	x := New(store, payroll.New(e.store, nil), nil, nil)
	x.newID = func() string { return "audit-0001" }
	return x
}

func (e env) driver(t *testing.T, name, pn string) int64 {
	t.Helper()
	id, err := e.store.AddDriver(context.Background(), models.Driver{
		CompanyID:       e.companyID,
		Name:            name,
		PersonnelNumber: pn,
		VehiclePlate:    "E-TX 100",
		HourlyWage:      12,
	})
	require.NoError(t, err)
	return id
}

func (e env) shift(t *testing.T, driverID int64, label string, start, end time.Time) int64 {
	t.Helper()
	id, err := e.store.RecordShift(context.Background(), models.Shift{
		CompanyID:  e.companyID,
		DriverID:   driverID,
		ShiftLabel: label,
		StartTime:  start,
		EndTime:    models.NewNullTime(end),
	})
	require.NoError(t, err)
	return id
}

func (e env) ride(t *testing.T, driverID, shiftID int64, pickup time.Time, minutes int, from, to string, km float64) {
	t.Helper()
	r := models.Ride{
		CompanyID:          e.companyID,
		DriverID:           driverID,
		PickupTime:         pickup,
		DropoffTime:        models.NewNullTime(pickup.Add(time.Duration(minutes) * time.Minute)),
		PickupLocation:     from,
		Destination:        to,
		AssignmentLocation: from,
		VehiclePlate:       "E-TX 100",
		DistanceKm:         km,
	}
	if shiftID != 0 {
		r.ShiftID = models.NewNullInt64(shiftID)
	}
	_, err := e.store.RecordRide(context.Background(), r)
	require.NoError(t, err)
}

// seedWeek: две смены водителя, три поездки.
func (e env) seedWeek(t *testing.T, driverID int64) {
	t.Helper()
	s1 := e.shift(t, driverID, "1-1(1)", at(3, 8, 0), at(3, 16, 30))
	s2 := e.shift(t, driverID, "1-2(1)", at(4, 8, 0), at(4, 12, 0))
	e.ride(t, driverID, s1, at(3, 8, 10), 25, hq, "Hauptbahnhof, Essen", 12.5)
	e.ride(t, driverID, s1, at(3, 9, 0), 30, "Hauptbahnhof, Essen", hq, 12.5)
	e.ride(t, driverID, s2, at(4, 8, 15), 40, hq, "Goetheplatz 4, 45468 Mülheim an der Ruhr", 18.2)
}

func cell(t *testing.T, f *excelize.File, sheet, ref string) string {
	t.Helper()
	v, err := f.GetCellValue(sheet, ref)
	require.NoError(t, err)
	return v
}

func fillOf(t *testing.T, f *excelize.File, sheet, ref string) string {
	t.Helper()
	id, err := f.GetCellStyle(sheet, ref)
	require.NoError(t, err)
	st, err := f.GetStyle(id)
	require.NoError(t, err)
	if len(st.Fill.Color) == 0 {
		return ""
	}
	return strings.ToUpper(st.Fill.Color[0])
}

func merges(t *testing.T, f *excelize.File, sheet string) map[string]bool {
	t.Helper()
	mcs, err := f.GetMergeCells(sheet)
	require.NoError(t, err)
	out := map[string]bool{}
	for _, mc := range mcs {
		out[mc.GetStartAxis()+":"+mc.GetEndAxis()] = true
	}
	return out
}

func TestFahrtenbuchEmptyPeriod(t *testing.T) {
	e := newEnv(t)
	did := e.driver(t, "Max Mustermann", "P-001")
	out := filepath.Join(e.dir, "fahrtenbuch.xlsx")

	ok, err := e.exporter(e.store).ExportFahrtenbuch(context.Background(), e.companyID, did, day(time.January, 1), day(time.January, 7), out, constants.EXPORT_FORMAT_XLSX)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = os.Stat(out)
	assert.True(t, os.IsNotExist(err))
	entries, err := os.ReadDir(e.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFahrtenbuchLayout(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.store.AddVehicle(ctx, models.Vehicle{CompanyID: e.companyID, Plate: "E-TX 100", Make: "Mercedes-Benz", Model: "E-Klasse"})
	require.NoError(t, err)
	did := e.driver(t, "Max Mustermann", "P-001")
	e.seedWeek(t, did)
	out := filepath.Join(e.dir, "fahrtenbuch.xlsx")

	ok, err := e.exporter(e.store).ExportFahrtenbuch(ctx, e.companyID, did, day(time.February, 1), day(time.February, 28), out, constants.EXPORT_FORMAT_XLSX)
	require.NoError(t, err)
	require.True(t, ok)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()

	sheet := "Fahrtenbuch_Max Must"
	assert.Equal(t, []string{sheet}, f.GetSheetList())
	assert.Equal(t, "Fahrtenbuch", cell(t, f, sheet, "A1"))
	assert.Equal(t, "03.02.2025 08:10    04.02.2025 08:55    1-1", cell(t, f, sheet, "A2"))
	company, err := e.store.GetCompany(ctx, e.companyID)
	require.NoError(t, err)
	assert.Equal(t, "Firmensitz: "+company.Name, cell(t, f, sheet, "A3"))
	assert.Equal(t, "Betriebssitz des Unternehmens:\n"+company.Name+"\n"+company.Address, cell(t, f, sheet, "I3"))
	assert.Equal(t, "Fahrzeug", cell(t, f, sheet, "A4"))
	assert.Equal(t, "Mercedes-Benz E-Klasse", cell(t, f, sheet, "B4"))
	assert.Equal(t, "Kennzeichen", cell(t, f, sheet, "A5"))
	assert.Equal(t, "E-TX 100", cell(t, f, sheet, "B5"))
	assert.Equal(t, "Fahrer", cell(t, f, sheet, "A6"))
	assert.Equal(t, "Max Mustermann", cell(t, f, sheet, "B6"))
	assert.Equal(t, "Personalnummer", cell(t, f, sheet, "E6"))
	assert.Equal(t, "P-001", cell(t, f, sheet, "F6"))
	for _, ref := range []string{"E4", "F4", "E5", "F5"} {
		assert.Empty(t, cell(t, f, sheet, ref), ref)
	}

	m := merges(t, f, sheet)
	for _, r := range []string{"A1:K1", "A2:K2", "A3:H3", "I3:K3", "B6:D6", "F6:H6", "A9:K9"} {
		assert.True(t, m[r], "merge %s", r)
	}

	for i, h := range fahrtenbuchHeaders {
		ref, _ := excelize.CoordinatesToCellName(i+1, fahrtenbuchHeaderRow)
		assert.Equal(t, h, cell(t, f, sheet, ref))
	}

	widths := map[string]float64{"A": 12, "B": 10, "C": 25, "D": 8, "E": 20, "F": 20, "G": 12, "H": 12, "I": 10, "J": 15, "K": 12, "L": 10}
	for col, want := range widths {
		got, err := f.GetColWidth(sheet, col)
		require.NoError(t, err)
		assert.Equal(t, want, got, "width %s", col)
	}

	assert.Contains(t, fillOf(t, f, sheet, "A1"), colorLightBlue)
	assert.Contains(t, fillOf(t, f, sheet, "A8"), colorLightGray)
	assert.Contains(t, fillOf(t, f, sheet, "A9"), colorLightGreen)

	// Первая смена: разделитель в строке 9, поездки в 10 и 11; вторая смена: 12 и 13.
	assert.Equal(t, "Schicht 1-1(1)", cell(t, f, sheet, "A9"))
	assert.Equal(t, "03.02.2025", cell(t, f, sheet, "A10"))
	assert.Equal(t, "08:10", cell(t, f, sheet, "B10"))
	assert.Equal(t, hq, cell(t, f, sheet, "C10"))
	assert.Equal(t, constants.LABEL_NO, cell(t, f, sheet, "D10"))
	assert.Equal(t, "Hauptbahnhof, Essen", cell(t, f, sheet, "F10"))
	assert.Equal(t, "12,5", cell(t, f, sheet, "G10"))
	assert.Equal(t, "03.02.2025", cell(t, f, sheet, "H10"))
	assert.Equal(t, "08:35", cell(t, f, sheet, "I10"))
	assert.Equal(t, "Hauptbahnhof, Essen", cell(t, f, sheet, "J10"))
	assert.Equal(t, hq, cell(t, f, sheet, "J11"))
	assert.Equal(t, "Goetheplatz 4, 45468 Mülheim an der Ruhr", cell(t, f, sheet, "J13"))
	assert.Equal(t, "E-TX 100", cell(t, f, sheet, "K10"))
	assert.Equal(t, "Schicht 1-2(1)", cell(t, f, sheet, "A12"))

	// Число строк данных совпадает с числом поездок.
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	data := 0
	for _, r := range rows[fahrtenbuchFirstData-1:] {
		if len(r) == 0 {
			continue
		}
		if _, err := time.Parse("02.01.2006", r[0]); err == nil {
			data++
		}
	}
	assert.Equal(t, 3, data)

	// Итоги: 8,5 ч + 4 ч, перерывы 30 + 15 минут.
	assert.Equal(t, "Pause Gesamt (Std.)", cell(t, f, sheet, "A16"))
	assert.True(t, m["A16:C16"])
	assert.Equal(t, "0,75", cell(t, f, sheet, "G16"))
	assert.Equal(t, "Gesamte Arbeitszeit", cell(t, f, sheet, "I16"))
	assert.True(t, m["I16:K16"])
	assert.Equal(t, "12,50", cell(t, f, sheet, "L16"))
	assert.Equal(t, "Notizen", cell(t, f, sheet, "A17"))
	assert.True(t, m["A17:K17"])
	assert.Contains(t, fillOf(t, f, sheet, "A17"), colorGray)
	assert.Empty(t, cell(t, f, sheet, "A18"))

	props, err := f.GetDocProps()
	require.NoError(t, err)
	assert.Equal(t, "audit-0001", props.Identifier)
}

func TestFahrtenbuchSingleShiftHasNoSeparator(t *testing.T) {
	e := newEnv(t)
	did := e.driver(t, "Erika", "")
	sid := e.shift(t, did, "", at(3, 8, 0), at(3, 12, 0))
	e.ride(t, did, sid, at(3, 8, 30), 20, hq, "Hauptbahnhof, Essen", 10)
	out := filepath.Join(e.dir, "fb.xlsx")

	ok, err := e.exporter(e.store).ExportFahrtenbuch(context.Background(), e.companyID, did, day(time.February, 3), day(time.February, 3), out, constants.EXPORT_FORMAT_XLSX)
	require.NoError(t, err)
	require.True(t, ok)
	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, "03.02.2025", cell(t, f, "Fahrtenbuch_Erika", "A9"))
	assert.Equal(t, "Fzg. E-TX 100", cell(t, f, "Fahrtenbuch_Erika", "B4"))
}

type failingShiftStore struct {
	*db.Store
	failShift int64
}

func (s failingShiftStore) GetShift(ctx context.Context, companyID, shiftID int64) (models.Shift, error) {
	if shiftID == s.failShift {
		return models.Shift{}, errors.New("schicht defekt")
	}
	return s.Store.GetShift(ctx, companyID, shiftID)
}

func TestFahrtenbuchDriverFailureDoesNotAbortOthers(t *testing.T) {
	e := newEnv(t)
	a := e.driver(t, "Anna", "P-1")
	b := e.driver(t, "Bernd", "P-2")
	sa := e.shift(t, a, "A", at(3, 8, 0), at(3, 12, 0))
	sb := e.shift(t, b, "B", at(3, 8, 0), at(3, 12, 0))
	e.ride(t, a, sa, at(3, 8, 30), 20, hq, "Hauptbahnhof, Essen", 10)
	e.ride(t, b, sb, at(3, 9, 30), 20, hq, "Hauptbahnhof, Essen", 10)
	out := filepath.Join(e.dir, "alle.xlsx")

	x := e.exporter(failingShiftStore{Store: e.store, failShift: sb})
	ok, err := x.ExportFahrtenbuch(context.Background(), e.companyID, 0, day(time.February, 1), day(time.February, 28), out, constants.EXPORT_FORMAT_XLSX)
	require.NoError(t, err)
	require.True(t, ok)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Fahrtenbuch_Anna", "Fahrtenbuch_Bernd"}, f.GetSheetList())
	assert.Equal(t, "Fahrtenbuch", cell(t, f, "Fahrtenbuch_Anna", "A1"))
	failed := cell(t, f, "Fahrtenbuch_Bernd", "A1")
	assert.Contains(t, failed, "Bernd")
	assert.Contains(t, failed, "schicht defekt")
	rows, err := f.GetRows("Fahrtenbuch_Bernd")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestFahrtenbuchPDF(t *testing.T) {
	e := newEnv(t)
	did := e.driver(t, "Max Mustermann", "P-001")
	e.seedWeek(t, did)
	out := filepath.Join(e.dir, "fahrtenbuch.pdf")

	ok, err := e.exporter(e.store).ExportFahrtenbuch(context.Background(), e.companyID, did, day(time.February, 1), day(time.February, 28), out, constants.EXPORT_FORMAT_PDF)
	require.NoError(t, err)
	require.True(t, ok)
	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("%PDF-")))
}

func TestExportWriteFailureLeavesNoFile(t *testing.T) {
	e := newEnv(t)
	did := e.driver(t, "Max Mustermann", "P-001")
	e.seedWeek(t, did)
	out := filepath.Join(e.dir, "fehlt", "fahrtenbuch.xlsx")

	ok, err := e.exporter(e.store).ExportFahrtenbuch(context.Background(), e.companyID, did, day(time.February, 1), day(time.February, 28), out, constants.EXPORT_FORMAT_XLSX)
	assert.False(t, ok)
	assert.ErrorIs(t, err, apperrors.ErrExportFailed)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestExportCancelled(t *testing.T) {
	e := newEnv(t)
	did := e.driver(t, "Max Mustermann", "P-001")
	e.seedWeek(t, did)
	out := filepath.Join(e.dir, "fahrtenbuch.xlsx")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := e.exporter(e.store).ExportFahrtenbuch(ctx, e.companyID, did, day(time.February, 1), day(time.February, 28), out, constants.EXPORT_FORMAT_XLSX)
	assert.False(t, ok)
	require.Error(t, err)
	entries, errDir := os.ReadDir(e.dir)
	require.NoError(t, errDir)
	assert.Empty(t, entries)
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	e := newEnv(t)
	did := e.driver(t, "Max Mustermann", "P-001")
	_, err := e.exporter(e.store).ExportFahrtenbuch(context.Background(), e.companyID, did, day(time.February, 1), day(time.February, 28), filepath.Join(e.dir, "x.csv"), "csv")
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestStundenzettel(t *testing.T) {
	e := newEnv(t)
	did := e.driver(t, "Max Mustermann", "P-001")
	e.shift(t, did, "2-1(1)", at(3, 8, 0), at(3, 16, 30))
	out := filepath.Join(e.dir, "stundenzettel.xlsx")

	ok, err := e.exporter(e.store).ExportStundenzettel(context.Background(), e.companyID, did, 2025, time.February, out, constants.EXPORT_FORMAT_XLSX)
	require.NoError(t, err)
	require.True(t, ok)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	sheet := f.GetSheetList()[0]
	assert.Equal(t, "Stundenzettel", cell(t, f, sheet, "A1"))
	assert.Empty(t, cell(t, f, sheet, "A2"))
	assert.Equal(t, "Mitarbeiter", cell(t, f, sheet, "A3"))
	assert.Equal(t, "Max Mustermann (P-001)", cell(t, f, sheet, "D3"))
	assert.Contains(t, fillOf(t, f, sheet, "D3"), colorLightGreen)
	assert.Contains(t, fillOf(t, f, sheet, "D4"), colorLightGreen)
	assert.Equal(t, "Firma", cell(t, f, sheet, "G3"))

	m := merges(t, f, sheet)
	for _, r := range []string{"A1:I1", "A3:C3", "D3:F3", "G3:I3", "G5:I5"} {
		assert.True(t, m[r], "merge %s", r)
	}
	for i, h := range stundenzettelHeaders {
		ref, _ := excelize.CoordinatesToCellName(i+1, stundenzettelHeaderRow)
		assert.Equal(t, h, cell(t, f, sheet, ref))
	}

	assert.Equal(t, "2-1(1)", cell(t, f, sheet, "A8"))
	assert.Equal(t, "Fahren", cell(t, f, sheet, "B8"))
	assert.Equal(t, "03.02.2025 08:00", cell(t, f, sheet, "C8"))
	assert.Equal(t, "03.02.2025 16:30", cell(t, f, sheet, "D8"))
	assert.Equal(t, "8,50", cell(t, f, sheet, "E8"))
	assert.Equal(t, "30", cell(t, f, sheet, "F8"))
	assert.Equal(t, "8,00", cell(t, f, sheet, "G8"))
	assert.Equal(t, "1,00", cell(t, f, sheet, "H8"))
	assert.Equal(t, "0,00", cell(t, f, sheet, "I8"))

	assert.Equal(t, "Gesamte Arbeitszeit (Monat/Std.)", cell(t, f, sheet, "A10"))
	assert.Equal(t, "8,50", cell(t, f, sheet, "E10"))
	assert.Equal(t, "Gesamtbruttolohn", cell(t, f, sheet, "F10"))
	assert.Equal(t, "96,00 €", cell(t, f, sheet, "G10"))
	assert.True(t, m["A10:D10"])

	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	signatureRow, periodRow, wageRow := 0, 0, 0
	for i, r := range rows {
		if len(r) == 0 {
			continue
		}
		switch {
		case r[0] == "Unterschrift Mitarbeiter":
			assert.True(t, len(r) >= 6 && r[5] == "Unterschrift Vorgesetzter")
			signatureRow = i + 1
		case strings.HasPrefix(r[0], "Februar 2025:"):
			assert.Equal(t, "Februar 2025: Reale Arbeitszeit 8,00 Std., Pause 30 Min.", r[0])
			periodRow = i + 1
		case strings.HasPrefix(r[0], "Mindestlohn"):
			assert.Contains(t, r[0], constants.PAYROLL_STATUS_NON_COMPLIANT)
			wageRow = i + 1
		}
	}
	require.NotZero(t, signatureRow)
	assert.Greater(t, periodRow, signatureRow)
	assert.Greater(t, wageRow, periodRow)
}

func TestStundenzettelSummaryBlock(t *testing.T) {
	e := newEnv(t)
	did := e.driver(t, "Max Mustermann", "P-001")
	e.shift(t, did, "2-1(1)", at(3, 8, 0), at(3, 16, 30))
	e.shift(t, did, "2-2(1)", at(4, 20, 0), at(5, 2, 0))
	out := filepath.Join(e.dir, "stundenzettel.xlsx")

	ok, err := e.exporter(e.store).ExportStundenzettel(context.Background(), e.companyID, did, 2025, time.February, out, constants.EXPORT_FORMAT_XLSX)
	require.NoError(t, err)
	require.True(t, ok)
	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	sheet := f.GetSheetList()[0]

	// Две смены в строках 8 и 9, итоги с 11-й строки.
	labels := []struct{ ref, label, wageRef, wage string }{
		{"A11", "Gesamte Arbeitszeit (Monat/Std.)", "F11", "Gesamtbruttolohn"},
		{"A12", "Gesamte Arbeitszeit (Frühschicht, Monat/Std.)", "F12", "Stundenlohn"},
		{"A13", "Gesamte Arbeitszeit (Nachtschicht, Monat/Std.)", "F13", "Nachtzuschlag"},
	}
	m := merges(t, f, sheet)
	for i, l := range labels {
		assert.Equal(t, l.label, cell(t, f, sheet, l.ref))
		assert.Equal(t, l.wage, cell(t, f, sheet, l.wageRef))
		assert.True(t, m[fmt.Sprintf("A%d:D%d", 11+i, 11+i)])
	}
	assert.Equal(t, "14,50", cell(t, f, sheet, "E11"))
	assert.Equal(t, "1,00", cell(t, f, sheet, "E12"))
	assert.Equal(t, "4,00", cell(t, f, sheet, "E13"))
	assert.Empty(t, cell(t, f, sheet, "A14"))
	assert.Equal(t, "Notizen", cell(t, f, sheet, "A15"))
	assert.True(t, m["A15:I15"])

	widths := []float64{8, 12, 20, 20, 15, 12, 15, 15, 15}
	for i, want := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		got, err := f.GetColWidth(sheet, col)
		require.NoError(t, err)
		assert.Equal(t, want, got, "width %s", col)
	}
}

func TestStundenzettelEmptyMonth(t *testing.T) {
	e := newEnv(t)
	did := e.driver(t, "Max Mustermann", "P-001")
	e.shift(t, did, "", at(3, 8, 0), at(3, 16, 30))
	out := filepath.Join(e.dir, "leer.pdf")

	ok, err := e.exporter(e.store).ExportStundenzettel(context.Background(), e.companyID, did, 2025, time.March, out, constants.EXPORT_FORMAT_PDF)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

type recordingPreloader struct {
	hq    string
	dests []string
}

func (p *recordingPreloader) PreloadCommonRoutes(_ context.Context, hq string, dests []string) (int, error) {
	p.hq, p.dests = hq, dests
	return 2 * len(dests), nil
}

func TestStatisticsAndPreload(t *testing.T) {
	e := newEnv(t)
	did := e.driver(t, "Max Mustermann", "P-001")
	e.seedWeek(t, did)
	pre := &recordingPreloader{}
	x := New(e.store, nil, pre, nil)

	st, err := x.Statistics(context.Background(), e.companyID, day(time.February, 1), day(time.February, 28))
	require.NoError(t, err)
	assert.EqualValues(t, 3, st.RideCount)
	assert.EqualValues(t, 1, st.DriverCount)
	assert.InDelta(t, 43.2, st.TotalKm, 1e-9)

	n, err := x.PreloadAddresses(context.Background(), e.companyID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, hq, pre.hq)
	assert.ElementsMatch(t, []string{"Hauptbahnhof, Essen", "Goetheplatz 4, 45468 Mülheim an der Ruhr"}, pre.dests)
}

func TestSheetNameTruncatesAndDeduplicates(t *testing.T) {
	used := map[string]bool{}
	a := sheetName("Fahrtenbuch", "Alexander Schmidt", used)
	b := sheetName("Fahrtenbuch", "Alexander Schmidt", used)
	assert.Equal(t, "Fahrtenbuch_Alexande", a)
	assert.Len(t, []rune(b), maxSheetName)
	assert.NotEqual(t, a, b)
	assert.Equal(t, "Fahrtenbuch_AB", sheetName("Fahrtenbuch", "A/B", used))
}
