package export

import (
	"fmt"
	"strconv"

	"rideguardian/internal/derivation"
	"rideguardian/internal/models"
	"rideguardian/internal/utils"
)

const (
	stundenzettelCols      = 9
	stundenzettelHeaderRow = 7
	stundenzettelFirstData = 8
)

var stundenzettelWidths = []float64{8, 12, 20, 20, 15, 12, 15, 15, 15}

var stundenzettelHeaders = []string{
	"Schicht ID",
	"Tätigkeit",
	"Datum/Uhrzeit Schichtbeginn",
	"Datum/Uhrzeit Schichtende",
	"Gesamte Arbeitszeit (Std.)",
	"Pause (Min.)",
	"Reale Arbeitszeit (Std.)",
	"Frühschicht (Std.)",
	"Nachtschicht (Std.)",
}

type stundenzettelInput struct {
	Company   models.Company
	Driver    models.Driver
	Month     string // "Februar 2025"
	Shifts    []models.Shift
	Statement *models.PayStatement // nil - расчет недоступен
	Notes     string
	Holidays  derivation.HolidayFunc
}

func dateTimeDE(t models.NullTime) string {
	if !t.Valid {
		return ""
	}
	return t.Time.Format("02.01.2006 15:04")
}

func num2(v float64) string { return utils.FormatDecimal(v, 2) }

func buildStundenzettel(name string, in stundenzettelInput) (*Sheet, error) {
	if len(in.Shifts) == 0 {
		return nil, fmt.Errorf("keine Schichten für %s", in.Driver.Name)
	}
	s := newSheet(name, stundenzettelWidths)
	s.HeaderRow = stundenzettelHeaderRow

	employee := in.Driver.Name
	if in.Driver.PersonnelNumber != "" {
		employee = fmt.Sprintf("%s (%s)", in.Driver.Name, in.Driver.PersonnelNumber)
	}
	s.Merge(1, 1, stundenzettelCols, "Stundenzettel", StyleHeading)
	s.RowHeights[1] = 28
	s.Merge(3, 1, 3, "Mitarbeiter", StyleLabel)
	s.Merge(3, 4, 6, employee, StyleHighlight)
	s.Merge(3, 7, 9, "Firma", StyleLabel)
	s.Merge(4, 1, 3, "Personalnummer", StyleLabel)
	s.Merge(4, 4, 6, in.Driver.PersonnelNumber, StyleHighlight)
	s.Merge(4, 7, 9, in.Company.Name, StyleValue)
	s.Merge(5, 7, 9, in.Company.Address, StyleValue)

	for i, h := range stundenzettelHeaders {
		s.Set(stundenzettelHeaderRow, i+1, h, StyleHeader)
	}
	s.RowHeights[stundenzettelHeaderRow] = 42

	row := stundenzettelFirstData
	var total, breaks, actual, early, night float64
	for _, sh := range in.Shifts {
		label := sh.ShiftLabel
		if label == "" {
			label = strconv.FormatInt(sh.ID, 10)
		}
		s.Set(row, 1, label, StyleCenter)
		s.Set(row, 2, utils.GetActivityDisplayName(sh.Activity), StyleCenter)
		s.Set(row, 3, dateTimeDE(models.NewNullTime(sh.StartTime)), StyleCenter)
		s.Set(row, 4, dateTimeDE(sh.EndTime), StyleCenter)
		if sh.EndTime.Valid {
			derived, _, err := derivation.DeriveShift(sh, in.Holidays)
			if err != nil {
				return nil, fmt.Errorf("Schicht %s: %w", label, err)
			}
			s.Set(row, 5, num2(derived.TotalHours), StyleCenter)
			s.Set(row, 6, utils.FormatDecimal(derived.BreakMinutes, 0), StyleCenter)
			s.Set(row, 7, num2(derived.ActualHours), StyleCenter)
			s.Set(row, 8, num2(derived.EarlyShiftHours), StyleCenter)
			s.Set(row, 9, num2(derived.NightShiftHours), StyleCenter)
			total += derived.TotalHours
			breaks += derived.BreakMinutes
			actual += derived.ActualHours
			early += derived.EarlyShiftHours
			night += derived.NightShiftHours
		} else {
			for col := 5; col <= stundenzettelCols; col++ {
				s.Set(row, col, "", StyleCenter)
			}
		}
		row++
	}

	gross, rate, nightBonus := "-", "-", "-"
	if st := in.Statement; st != nil {
		gross, rate, nightBonus = utils.FormatEuro(st.TotalPay), utils.FormatEuro(st.HourlyRate), utils.FormatEuro(st.NightBonus)
	}
	row++
	summary := []struct {
		label, value, wageLabel, wage string
	}{
		{"Gesamte Arbeitszeit (Monat/Std.)", num2(total), "Gesamtbruttolohn", gross},
		{"Gesamte Arbeitszeit (Frühschicht, Monat/Std.)", num2(early), "Stundenlohn", rate},
		{"Gesamte Arbeitszeit (Nachtschicht, Monat/Std.)", num2(night), "Nachtzuschlag", nightBonus},
	}
	for _, line := range summary {
		s.Merge(row, 1, 4, line.label, StyleSummaryLabel)
		s.Set(row, 5, line.value, StyleSummaryValue)
		s.Set(row, 6, line.wageLabel, StyleSummaryLabel)
		s.Set(row, 7, line.wage, StyleSummaryValue)
		row++
	}

	row++
	s.Merge(row, 1, stundenzettelCols, "Notizen", StyleNotes)
	for i := 0; i < 3; i++ {
		row++
		text := ""
		if i == 0 {
			text = in.Notes
		}
		s.Merge(row, 1, stundenzettelCols, text, StyleBand)
	}

	row += 2
	s.Merge(row, 1, 4, "Unterschrift Mitarbeiter", StyleSignature)
	s.Merge(row, 6, 9, "Unterschrift Vorgesetzter", StyleSignature)
	s.RowHeights[row] = 30

	// Сноски под подписями: период, реальное время и проверка минимальной оплаты.
	row += 2
	s.Merge(row, 1, stundenzettelCols, fmt.Sprintf("%s: Reale Arbeitszeit %s Std., Pause %s Min.",
		in.Month, num2(actual), utils.FormatDecimal(breaks, 0)), StyleFootnote)
	if st := in.Statement; st != nil {
		row++
		s.Merge(row, 1, stundenzettelCols, minimumWageNote(*st), StyleFootnote)
	}
	return s, nil
}

func minimumWageNote(st models.PayStatement) string {
	if st.Compliant {
		return fmt.Sprintf("Mindestlohn %s/h: %s (effektiv %s/h)", utils.FormatEuro(st.MinimumWage), st.Status(), utils.FormatEuro(st.EffectiveRate))
	}
	return fmt.Sprintf("Mindestlohn %s/h: %s (effektiv %s/h, Fehlbetrag %s)",
		utils.FormatEuro(st.MinimumWage), st.Status(), utils.FormatEuro(st.EffectiveRate), utils.FormatEuro(st.Shortfall))
}
