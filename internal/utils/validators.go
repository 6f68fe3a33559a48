package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"rideguardian/internal/constants"
)

// plateRegex - немецкий номер: 1-3 буквы округа, 1-2 буквы, 1-4 цифры, опционально E/H.
var plateRegex = regexp.MustCompile(`^[A-ZÄÖÜ]{1,3}[- ]?[A-Z]{1,2} ?\d{1,4}[EH]?$`)

// ValidatePlate проверяет и нормализует номерной знак ("e-tx 100" -> "E-TX 100").
func ValidatePlate(plate string) (string, error) {
	p := strings.ToUpper(strings.Join(strings.Fields(plate), " "))
	if p == "" {
		return "", fmt.Errorf("Kennzeichen fehlt")
	}
	if !plateRegex.MatchString(p) {
		return "", fmt.Errorf("ungültiges Kennzeichen: '%s'", plate)
	}
	return p, nil
}

// ParseGermanFloat разбирает число с десятичной запятой или точкой ("12,41", "1.234,5").
func ParseGermanFloat(s string) (float64, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "€"))
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("ungültige Zahl '%s'", s)
	}
	return v, nil
}

// ValidateDate проверяет и парсит строку с датой в зоне loc.
// Поддерживает "2006-01-02", "02.01.2006", "2.1.2006" и "3. Februar 2025".
func ValidateDate(dateStr string, loc *time.Location) (time.Time, error) {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return time.Time{}, fmt.Errorf("Datum fehlt")
	}
	if loc == nil {
		loc = time.Local
	}

	for _, layout := range []string{"2006-01-02", "02.01.2006", "2.1.2006", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, dateStr, loc); err == nil {
			if layout == time.RFC3339 {
				t = t.In(loc)
			}
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
		}
	}

	// "3. Februar 2025" / "3 Februar 2025"
	parts := strings.Fields(strings.ReplaceAll(dateStr, ".", " "))
	if len(parts) == 3 {
		day, errDay := strconv.Atoi(parts[0])
		year, errYear := strconv.Atoi(parts[2])
		if errDay == nil && errYear == nil && day >= 1 && day <= 31 {
			name := strings.ToLower(parts[1])
			for m, mName := range constants.MonthMap {
				if strings.ToLower(mName) == name || (len(name) >= 3 && strings.HasPrefix(strings.ToLower(mName), name)) {
					t := time.Date(year, m, day, 0, 0, 0, 0, loc)
					if t.Day() != day {
						break
					}
					return t, nil
				}
			}
		}
	}

	log.Printf("ValidateDate: не удалось распознать дату '%s'", dateStr)
	return time.Time{}, fmt.Errorf("ungültiges Datum '%s', erwartet JJJJ-MM-TT oder TT.MM.JJJJ", dateStr)
}

// ValidateDateRange разбирает пару дат и проверяет порядок.
func ValidateDateRange(startStr, endStr string, loc *time.Location) (time.Time, time.Time, error) {
	start, err := ValidateDate(startStr, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := ValidateDate(endStr, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("Enddatum %s liegt vor Startdatum %s", endStr, startStr)
	}
	return start, end, nil
}

// ValidateDateTime разбирает "2006-01-02 15:04", "02.01.2006 15:04" или RFC3339.
func ValidateDateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02T15:04", "02.01.2006 15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("ungültiger Zeitpunkt '%s'", s)
}
