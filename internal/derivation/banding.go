// Package derivation - производные величины поездок и смен: топливо и стоимость,
// часы по диапазонам, обязательные перерывы, сверхурочные, автозаполнение места подачи.
package derivation

import (
	"math"
	"time"

	"rideguardian/internal/apperrors"
	"rideguardian/internal/models"
)

// HolidayFunc сообщает, является ли дата праздником.
type HolidayFunc func(time.Time) bool

// Диапазоны часов суток
const (
	nightStartHour = 22
	nightEndHour   = 6
	earlyStartHour = 5
	earlyEndHour   = 9
)

func isNightHour(h int) bool { return h >= nightStartHour || h < nightEndHour }
func isEarlyHour(h int) bool { return h >= earlyStartHour && h < earlyEndHour }

// Band распределяет интервал [start, end) по диапазонам с пропорциональным учетом:
// интервал режется на границах часов, каждый отрезок дает свои минуты всем диапазонам,
// к которым относится его час. Диапазоны независимы; Regular - часы вне всех диапазонов.
// Классификация ведется по настенному времени часового пояса start.
func Band(start, end time.Time, holidays HolidayFunc) (models.BandHours, error) {
	var b models.BandHours
	if end.Before(start) {
		return b, apperrors.Validation("end_time", "Ende liegt vor dem Beginn")
	}
	if holidays == nil {
		holidays = IsGermanHoliday
	}
	loc := start.Location()
	end = end.In(loc)

	for cur := start; cur.Before(end); {
		next := time.Date(cur.Year(), cur.Month(), cur.Day(), cur.Hour()+1, 0, 0, 0, loc)
		if !next.After(cur) {
			// Переход на летнее время может дать тот же час; сдвигаемся абсолютным часом.
			next = cur.Truncate(time.Hour).Add(time.Hour)
		}
		if next.After(end) {
			next = end
		}
		hours := next.Sub(cur).Hours()
		h := cur.Hour()

		inBand := false
		if isNightHour(h) {
			b.Night += hours
			inBand = true
		}
		if isEarlyHour(h) {
			b.Early += hours
			inBand = true
		}
		if wd := cur.Weekday(); wd == time.Saturday || wd == time.Sunday {
			b.Weekend += hours
			inBand = true
		}
		if holidays(cur) {
			b.Holiday += hours
			inBand = true
		}
		if !inBand {
			b.Regular += hours
		}
		b.Total += hours
		cur = next
	}

	b.Regular = Round2(b.Regular)
	b.Early = Round2(b.Early)
	b.Night = Round2(b.Night)
	b.Weekend = Round2(b.Weekend)
	b.Holiday = Round2(b.Holiday)
	b.Total = Round2(b.Total)
	return b, nil
}

// MandatoryBreak - обязательный перерыв в минутах: от 6 ч - 30 мин, от 4 ч - 15 мин.
func MandatoryBreak(totalHours float64) float64 {
	switch {
	case totalHours >= 6:
		return 30
	case totalHours >= 4:
		return 15
	}
	return 0
}

// Overtime - доплата за часы сверх порога: (actual - threshold) × rate × (multiplier - 1).
func Overtime(actualHours, thresholdHours, rate, multiplier float64) float64 {
	if actualHours <= thresholdHours {
		return 0
	}
	return Round2((actualHours - thresholdHours) * rate * (multiplier - 1))
}

// OvertimeHours - часы сверх порога.
func OvertimeHours(actualHours, thresholdHours float64) float64 {
	if actualHours <= thresholdHours {
		return 0
	}
	return Round2(actualHours - thresholdHours)
}

// ShiftTotals - производные величины одной смены.
type ShiftTotals struct {
	Bands        models.BandHours
	TotalHours   float64
	BreakMinutes float64
	ActualHours  float64
}

// ComputeShift считает часы, перерыв и реальное время смены.
func ComputeShift(start, end time.Time, holidays HolidayFunc) (ShiftTotals, error) {
	bands, err := Band(start, end, holidays)
	if err != nil {
		return ShiftTotals{}, err
	}
	total := end.Sub(start).Hours()
	brk := MandatoryBreak(total)
	return ShiftTotals{
		Bands:        bands,
		TotalHours:   Round2(total),
		BreakMinutes: brk,
		ActualHours:  Round2(total - brk/60),
	}, nil
}

// DeriveShift заполняет у смены total/break/actual/early/night. Смена без конца не меняется.
func DeriveShift(sh models.Shift, holidays HolidayFunc) (models.Shift, models.BandHours, error) {
	if !sh.EndTime.Valid {
		return sh, models.BandHours{}, nil
	}
	t, err := ComputeShift(sh.StartTime, sh.EndTime.Time, holidays)
	if err != nil {
		return sh, models.BandHours{}, err
	}
	sh.TotalHours = t.TotalHours
	sh.BreakMinutes = t.BreakMinutes
	sh.ActualHours = t.ActualHours
	sh.EarlyShiftHours = t.Bands.Early
	sh.NightShiftHours = t.Bands.Night
	return sh, t.Bands, nil
}

// Round2 округляет до двух знаков.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
