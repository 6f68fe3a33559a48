// Package export выгружает Fahrtenbuch и Stundenzettel в xlsx и PDF.
//
// Обе формы строятся из одного промежуточного документа (Document), поэтому тексты
// ячеек совпадают. Файл пишется во временный файл рядом с целевым и переименовывается
// только после успешной записи.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"rideguardian/internal/apperrors"
	"rideguardian/internal/constants"
	"rideguardian/internal/db"
	"rideguardian/internal/derivation"
	"rideguardian/internal/models"
	"rideguardian/internal/utils"
)

// Store - чтение данных для выгрузки.
type Store interface {
	Location() *time.Location
	GetCompany(ctx context.Context, companyID int64) (models.Company, error)
	HeadquartersAddress(ctx context.Context, companyID int64) (string, error)
	GetDriver(ctx context.Context, companyID, driverID int64) (models.Driver, error)
	ListDrivers(ctx context.Context, companyID int64, activeOnly bool) ([]models.Driver, error)
	GetVehicleByPlate(ctx context.Context, companyID int64, plate string) (models.Vehicle, error)
	ListRides(ctx context.Context, companyID, driverID int64, start, end time.Time) ([]models.Ride, error)
	ListShifts(ctx context.Context, companyID, driverID int64, start, end time.Time) ([]models.Shift, error)
	GetShift(ctx context.Context, companyID, shiftID int64) (models.Shift, error)
	GetDefaultTemplate(ctx context.Context, companyID int64, documentType string) (models.FahrtenbuchTemplate, error)
	TopRoutes(ctx context.Context, companyID int64, limit int) ([]models.RouteCount, error)
	Statistics(ctx context.Context, companyID int64, start, end time.Time) (db.RideStatistics, error)
}

// Payroll - расчет зарплаты для итогов Stundenzettel.
type Payroll interface {
	Compute(ctx context.Context, companyID, driverID int64, start, end time.Time) (models.PayStatement, error)
}

// Preloader - прогрев кэша адресов.
type Preloader interface {
	PreloadCommonRoutes(ctx context.Context, headquarters string, destinations []string) (int, error)
}

// Exporter формирует документы тенанта.
type Exporter struct {
	store    Store
	payroll  Payroll
	maps     Preloader
	holidays derivation.HolidayFunc
	newID    func() string
}

// New создает экспортер. payroll и maps могут быть nil.
func New(store Store, payroll Payroll, maps Preloader, holidays derivation.HolidayFunc) *Exporter {
	if holidays == nil {
		holidays = derivation.IsGermanHoliday
	}
	return &Exporter{store: store, payroll: payroll, maps: maps, holidays: holidays, newID: utils.GenerateUUID}
}

// templateLayout - настраиваемая часть шаблона документа (layout_json).
type templateLayout struct {
	Notes string `json:"notes"`
}

func (e *Exporter) layout(ctx context.Context, companyID int64, docType string) templateLayout {
	var l templateLayout
	t, err := e.store.GetDefaultTemplate(ctx, companyID, docType)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			log.Warnf("Шаблон %s компании #%d недоступен: %v", docType, companyID, err)
		}
		return l
	}
	if err := json.Unmarshal([]byte(t.LayoutJSON), &l); err != nil {
		log.Warnf("Шаблон %q компании #%d поврежден: %v", t.Name, companyID, err)
	}
	return l
}

func checkFormat(format string) error {
	if format != constants.EXPORT_FORMAT_XLSX && format != constants.EXPORT_FORMAT_PDF {
		return apperrors.Validation("format", "Unbekanntes Exportformat %q", format)
	}
	return nil
}

// ExportFahrtenbuch выгружает Fahrtenbuch за [start, end] (даты включительно).
// driverID = 0 - все активные водители, по листу на водителя.
// Возвращает false без создания файла, если поездок нет.
func (e *Exporter) ExportFahrtenbuch(ctx context.Context, companyID, driverID int64, start, end time.Time, outputPath, format string) (bool, error) {
	began := time.Now()
	ok, err := e.exportFahrtenbuch(ctx, companyID, driverID, start, end, outputPath, format)
	observe(constants.DOCUMENT_FAHRTENBUCH, format, ok, err, began)
	return ok, err
}

func (e *Exporter) exportFahrtenbuch(ctx context.Context, companyID, driverID int64, start, end time.Time, outputPath, format string) (bool, error) {
	if err := checkFormat(format); err != nil {
		return false, err
	}
	if err := derivation.ValidateInterval(start, end); err != nil {
		return false, err
	}
	company, err := e.store.GetCompany(ctx, companyID)
	if err != nil {
		return false, err
	}
	var drivers []models.Driver
	if driverID != 0 {
		d, err := e.store.GetDriver(ctx, companyID, driverID)
		if err != nil {
			return false, err
		}
		drivers = []models.Driver{d}
	} else if drivers, err = e.store.ListDrivers(ctx, companyID, true); err != nil {
		return false, err
	}

	layout := e.layout(ctx, companyID, constants.DOCUMENT_FAHRTENBUCH)
	doc := &Document{
		Kind:    constants.DOCUMENT_FAHRTENBUCH,
		Title:   "Fahrtenbuch " + company.Name,
		Subject: start.Format("2006-01-02") + "_" + end.Format("2006-01-02"),
		Company: company.Name,
		AuditID: e.newID(),
	}
	used := map[string]bool{}
	for _, d := range drivers {
		if err := ctx.Err(); err != nil {
			return false, apperrors.Cancelled(err)
		}
		rides, err := e.store.ListRides(ctx, companyID, d.ID, start, end)
		if err != nil {
			if ctx.Err() != nil {
				return false, apperrors.Cancelled(ctx.Err())
			}
			log.Printf("ExportFahrtenbuch: ошибка получения поездок водителя #%d: %v", d.ID, err)
			doc.Sheets = append(doc.Sheets, errorSheet(sheetName("Fahrtenbuch", d.Name, used), fahrtenbuchWidths, d.Name, err))
			continue
		}
		if len(rides) == 0 {
			continue
		}
		name := sheetName("Fahrtenbuch", d.Name, used)
		sheet, err := e.fahrtenbuchSheet(ctx, name, company, d, rides, layout)
		if err != nil {
			if ctx.Err() != nil {
				return false, apperrors.Cancelled(ctx.Err())
			}
			log.Printf("ExportFahrtenbuch: ошибка заполнения листа водителя #%d: %v", d.ID, err)
			sheet = errorSheet(name, fahrtenbuchWidths, d.Name, err)
		}
		doc.Sheets = append(doc.Sheets, sheet)
	}
	if len(doc.Sheets) == 0 {
		log.Printf("ExportFahrtenbuch: нет поездок компании #%d за %s", companyID, utils.FormatPeriod(start, end))
		return false, nil
	}
	if err := e.write(ctx, doc, outputPath, format); err != nil {
		return false, err
	}
	log.WithFields(log.Fields{
		"company_id": companyID,
		"sheets":     len(doc.Sheets),
		"format":     format,
		"audit_id":   doc.AuditID,
	}).Info("Fahrtenbuch exportiert")
	return true, nil
}

func (e *Exporter) fahrtenbuchSheet(ctx context.Context, name string, company models.Company, d models.Driver, rides []models.Ride, layout templateLayout) (*Sheet, error) {
	sort.SliceStable(rides, func(i, j int) bool { return rides[i].PickupTime.Before(rides[j].PickupTime) })
	shifts := map[int64]models.Shift{}
	for _, r := range rides {
		if !r.ShiftID.Valid {
			continue
		}
		if _, ok := shifts[r.ShiftID.Int64]; ok {
			continue
		}
		sh, err := e.store.GetShift(ctx, company.ID, r.ShiftID.Int64)
		if err != nil {
			return nil, err
		}
		shifts[sh.ID] = sh
	}

	plate := d.VehiclePlate
	if plate == "" {
		plate = rides[0].VehiclePlate
	}
	vehicle := ""
	if plate != "" {
		v, err := e.store.GetVehicleByPlate(ctx, company.ID, plate)
		switch {
		case err == nil:
			vehicle = v.MakeModel()
		case !errors.Is(err, apperrors.ErrNotFound):
			return nil, err
		}
	}
	return buildFahrtenbuch(name, fahrtenbuchInput{
		Company:  company,
		Driver:   d,
		Vehicle:  vehicle,
		Plate:    plate,
		Rides:    rides,
		Shifts:   shifts,
		Notes:    layout.Notes,
		Holidays: e.holidays,
	})
}

// ExportStundenzettel выгружает месячный Stundenzettel одного водителя.
// Возвращает false без создания файла, если смен в месяце нет.
func (e *Exporter) ExportStundenzettel(ctx context.Context, companyID, driverID int64, year int, month time.Month, outputPath, format string) (bool, error) {
	began := time.Now()
	ok, err := e.exportStundenzettel(ctx, companyID, driverID, year, month, outputPath, format)
	observe(constants.DOCUMENT_STUNDENZETTEL, format, ok, err, began)
	return ok, err
}

func (e *Exporter) exportStundenzettel(ctx context.Context, companyID, driverID int64, year int, month time.Month, outputPath, format string) (bool, error) {
	if err := checkFormat(format); err != nil {
		return false, err
	}
	if month < time.January || month > time.December {
		return false, apperrors.Validation("month", "Ungültiger Monat %d", month)
	}
	company, err := e.store.GetCompany(ctx, companyID)
	if err != nil {
		return false, err
	}
	d, err := e.store.GetDriver(ctx, companyID, driverID)
	if err != nil {
		return false, err
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, e.store.Location())
	end := start.AddDate(0, 1, -1)
	shifts, err := e.store.ListShifts(ctx, companyID, driverID, start, end)
	if err != nil {
		return false, err
	}
	if len(shifts) == 0 {
		log.Printf("ExportStundenzettel: нет смен водителя #%d за %s", driverID, utils.FormatMonthYear(start))
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, apperrors.Cancelled(err)
	}
	sort.SliceStable(shifts, func(i, j int) bool { return shifts[i].StartTime.Before(shifts[j].StartTime) })

	var statement *models.PayStatement
	if e.payroll != nil {
		ps, err := e.payroll.Compute(ctx, companyID, driverID, start, end)
		if err != nil {
			log.Warnf("ExportStundenzettel: расчет зарплаты водителя #%d недоступен: %v", driverID, err)
		} else {
			statement = &ps
		}
	}

	name := sheetName("Stundenzettel", d.Name, map[string]bool{})
	sheet, err := buildStundenzettel(name, stundenzettelInput{
		Company:   company,
		Driver:    d,
		Month:     utils.FormatMonthYear(start),
		Shifts:    shifts,
		Statement: statement,
		Notes:     e.layout(ctx, companyID, constants.DOCUMENT_STUNDENZETTEL).Notes,
		Holidays:  e.holidays,
	})
	if err != nil {
		log.Printf("ExportStundenzettel: ошибка заполнения листа водителя #%d: %v", driverID, err)
		sheet = errorSheet(name, stundenzettelWidths, d.Name, err)
	}
	doc := &Document{
		Kind:    constants.DOCUMENT_STUNDENZETTEL,
		Title:   "Stundenzettel " + d.Name,
		Subject: start.Format("2006-01"),
		Company: company.Name,
		AuditID: e.newID(),
		Sheets:  []*Sheet{sheet},
	}
	if err := e.write(ctx, doc, outputPath, format); err != nil {
		return false, err
	}
	return true, nil
}

// write рендерит документ во временный файл рядом с outputPath и переименовывает его.
func (e *Exporter) write(ctx context.Context, doc *Document, outputPath, format string) error {
	dir, base := filepath.Split(outputPath)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+strings.TrimSuffix(base, filepath.Ext(base))+"-*.tmp")
	if err != nil {
		return apperrors.ExportFailed(err, "Exportdatei %s kann nicht angelegt werden", outputPath)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := Render(doc, format, tmp); err != nil {
		return apperrors.ExportFailed(err, "Dokument %s konnte nicht erstellt werden", doc.Kind)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.ExportFailed(err, "Exportdatei %s konnte nicht geschrieben werden", outputPath)
	}
	if err := ctx.Err(); err != nil {
		return apperrors.Cancelled(err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return apperrors.ExportFailed(err, "Exportdatei %s konnte nicht gespeichert werden", outputPath)
	}
	committed = true
	return nil
}

// Render пишет документ в поток в формате xlsx или pdf.
func Render(doc *Document, format string, w io.Writer) error {
	if err := checkFormat(format); err != nil {
		return err
	}
	if format == constants.EXPORT_FORMAT_PDF {
		return renderPDF(doc, w)
	}
	return renderXLSX(doc, w)
}

// Statistics - агрегаты поездок за период для экрана отчетов.
func (e *Exporter) Statistics(ctx context.Context, companyID int64, start, end time.Time) (db.RideStatistics, error) {
	if err := derivation.ValidateInterval(start, end); err != nil {
		return db.RideStatistics{}, err
	}
	return e.store.Statistics(ctx, companyID, start, end)
}

// PreloadAddresses прогревает кэш адресов маршрутами "база -> частые адреса" (до 50 маршрутов).
func (e *Exporter) PreloadAddresses(ctx context.Context, companyID int64) (int, error) {
	if e.maps == nil {
		return 0, nil
	}
	hq, err := e.store.HeadquartersAddress(ctx, companyID)
	if err != nil {
		return 0, err
	}
	routes, err := e.store.TopRoutes(ctx, companyID, constants.PRELOAD_TOP_ROUTES)
	if err != nil {
		return 0, err
	}
	seen := map[string]bool{}
	var dests []string
	for _, r := range routes {
		for _, a := range []string{r.Origin, r.Destination} {
			key := strings.ToLower(strings.TrimSpace(a))
			if key == "" || seen[key] || strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(hq)) {
				continue
			}
			seen[key] = true
			dests = append(dests, a)
		}
	}
	if len(dests) > constants.PRELOAD_TOP_ROUTES {
		dests = dests[:constants.PRELOAD_TOP_ROUTES]
	}
	return e.maps.PreloadCommonRoutes(ctx, hq, dests)
}
