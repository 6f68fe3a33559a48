package export

import (
	"fmt"
	"strconv"
	"strings"

	"rideguardian/internal/derivation"
	"rideguardian/internal/models"
	"rideguardian/internal/utils"
)

const (
	fahrtenbuchCols      = 11
	fahrtenbuchHeaderRow = 8
	fahrtenbuchFirstData = 9
	// итоги пишутся справа от подписей: G - пауза, L - рабочее время
	fahrtenbuchPauseCol = 7
	fahrtenbuchWorkCol  = 12
)

// Двенадцатый столбец (L) нужен только для значения "Gesamte Arbeitszeit".
var fahrtenbuchWidths = []float64{12, 10, 25, 8, 20, 20, 12, 12, 10, 15, 12, 10}

var fahrtenbuchHeaders = []string{
	"Datum Fahrtbeginn",
	"Uhrzeit Fahrtbeginn",
	"Standort des Fahrzeugs bei Auftragsübermittlung",
	"Ist Reserve",
	"Abholort",
	"Zielort",
	"gefahrene Kilometer",
	"Datum Fahrtende",
	"Uhrzeit Fahrtende",
	"Fahrtende",
	"Kennzeichen",
}

// fahrtenbuchInput - все, что нужно для листа одного водителя.
type fahrtenbuchInput struct {
	Company  models.Company
	Driver   models.Driver
	Vehicle  string // марка и модель; пусто, если автомобиль не найден
	Plate    string
	Rides    []models.Ride // по возрастанию времени подачи
	Shifts   map[int64]models.Shift
	Notes    string
	Holidays derivation.HolidayFunc
}

type rideGroup struct {
	shiftID int64
	rides   []models.Ride
}

// groupByShift сохраняет порядок поездок: группы идут в порядке первой поездки.
func groupByShift(rides []models.Ride) []rideGroup {
	var groups []rideGroup
	index := map[int64]int{}
	for _, r := range rides {
		key := int64(0)
		if r.ShiftID.Valid {
			key = r.ShiftID.Int64
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, rideGroup{shiftID: key})
		}
		groups[i].rides = append(groups[i].rides, r)
	}
	return groups
}

func shiftTitle(id int64, shifts map[int64]models.Shift) string {
	if id == 0 {
		return "Ohne Schicht"
	}
	if sh, ok := shifts[id]; ok && sh.ShiftLabel != "" {
		return "Schicht " + sh.ShiftLabel
	}
	return "Schicht " + strconv.FormatInt(id, 10)
}

func fahrtenbuchPeriod(rides []models.Ride) string {
	first := rides[0].PickupTime
	last := first
	for _, r := range rides {
		end := r.PickupTime
		if r.DropoffTime.Valid {
			end = r.DropoffTime.Time
		}
		if end.After(last) {
			last = end
		}
	}
	return fmt.Sprintf("%s %s    %s %s    1-1", utils.FormatDateDE(first), first.Format("15:04"), utils.FormatDateDE(last), last.Format("15:04"))
}

// buildFahrtenbuch строит лист Fahrtenbuch одного водителя.
func buildFahrtenbuch(name string, in fahrtenbuchInput) (*Sheet, error) {
	if len(in.Rides) == 0 {
		return nil, fmt.Errorf("keine Fahrten für %s", in.Driver.Name)
	}
	s := newSheet(name, fahrtenbuchWidths)
	s.HeaderRow = fahrtenbuchHeaderRow

	s.Merge(1, 1, fahrtenbuchCols, "Fahrtenbuch", StyleTitle)
	s.RowHeights[1] = 28
	s.Merge(2, 1, fahrtenbuchCols, fahrtenbuchPeriod(in.Rides), StylePeriod)
	s.Merge(3, 1, 8, "Firmensitz: "+in.Company.Name, StyleLabel)
	s.Merge(3, 9, fahrtenbuchCols, "Betriebssitz des Unternehmens:\n"+in.Company.Name+"\n"+in.Company.Address, StyleCompanyBlock)
	s.RowHeights[3] = 45

	vehicle := in.Vehicle
	if vehicle == "" {
		vehicle = "Fzg. " + in.Plate
	}
	s.Set(4, 1, "Fahrzeug", StyleLabel)
	s.Set(4, 2, vehicle, StyleValue)
	s.Set(5, 1, "Kennzeichen", StyleLabel)
	s.Set(5, 2, in.Plate, StyleValue)
	s.Set(6, 1, "Fahrer", StyleLabel)
	s.Merge(6, 2, 4, in.Driver.Name, StyleValue)
	s.Set(6, 5, "Personalnummer", StyleLabel)
	s.Merge(6, 6, 8, in.Driver.PersonnelNumber, StyleValue)

	for i, h := range fahrtenbuchHeaders {
		s.Set(fahrtenbuchHeaderRow, i+1, h, StyleHeader)
	}
	s.RowHeights[fahrtenbuchHeaderRow] = 42

	groups := groupByShift(in.Rides)
	row := fahrtenbuchFirstData
	for _, g := range groups {
		if len(groups) > 1 {
			s.Merge(row, 1, fahrtenbuchCols, shiftTitle(g.shiftID, in.Shifts), StyleSeparator)
			row++
		}
		for _, r := range g.rides {
			writeRideRow(s, row, r)
			row++
		}
	}

	pause, work, err := workTotals(groups, in.Shifts, in.Holidays)
	if err != nil {
		return nil, err
	}
	row += 2
	s.Merge(row, 1, 3, "Pause Gesamt (Std.)", StyleSummaryLabel)
	s.Set(row, fahrtenbuchPauseCol, utils.FormatDecimal(pause, 2), StyleSummaryValue)
	s.Merge(row, 9, fahrtenbuchCols, "Gesamte Arbeitszeit", StyleSummaryLabel)
	s.Set(row, fahrtenbuchWorkCol, utils.FormatDecimal(work, 2), StyleSummaryValue)
	row++
	s.Merge(row, 1, fahrtenbuchCols, "Notizen", StyleNotes)
	if notes := strings.TrimSpace(in.Notes); notes != "" {
		row++
		s.Merge(row, 1, fahrtenbuchCols, notes, StyleBand)
	}
	return s, nil
}

func writeRideRow(s *Sheet, row int, r models.Ride) {
	dropDate := ""
	if r.DropoffTime.Valid {
		dropDate = utils.FormatDateDE(r.DropoffTime.Time)
	}
	s.Set(row, 1, utils.FormatDateDE(r.PickupTime), StyleCenter)
	s.Set(row, 2, r.PickupTime.Format("15:04"), StyleCenter)
	s.Set(row, 3, r.AssignmentLocation, StyleLeft)
	s.Set(row, 4, utils.YesNo(r.IsReserved), StyleCenter)
	s.Set(row, 5, r.PickupLocation, StyleLeft)
	s.Set(row, 6, r.Destination, StyleLeft)
	s.Set(row, 7, utils.FormatDecimal(r.DistanceKm, 1), StyleCenter)
	s.Set(row, 8, dropDate, StyleCenter)
	s.Set(row, 9, utils.FormatTimeDE(r.DropoffTime), StyleCenter)
	s.Set(row, 10, r.Destination, StyleLeft)
	s.Set(row, 11, r.VehiclePlate, StyleCenter)
}

// workTotals - пауза и общее время (часы) по закрытым сменам листа.
// Поездки без смены учитываются своей длительностью без паузы.
func workTotals(groups []rideGroup, shifts map[int64]models.Shift, holidays derivation.HolidayFunc) (pause, work float64, err error) {
	for _, g := range groups {
		sh, ok := shifts[g.shiftID]
		if g.shiftID == 0 || !ok || !sh.EndTime.Valid {
			for _, r := range g.rides {
				work += r.DurationMinutes() / 60
			}
			continue
		}
		t, errShift := derivation.ComputeShift(sh.StartTime, sh.EndTime.Time, holidays)
		if errShift != nil {
			return 0, 0, fmt.Errorf("Schicht %d: %w", sh.ID, errShift)
		}
		pause += t.BreakMinutes / 60
		work += t.TotalHours
	}
	return derivation.Round2(pause), derivation.Round2(work), nil
}

// errorSheet - лист, заменяющий содержимое водителя при ошибке заполнения.
func errorSheet(name string, widths []float64, driver string, err error) *Sheet {
	s := newSheet(name, widths)
	s.Merge(1, 1, len(widths), fmt.Sprintf("Fehler beim Erstellen für %s: %v", driver, err), StyleError)
	s.RowHeights[1] = 30
	return s
}
