package derivation

import (
	"sync"
	"time"
)

// Holiday - общегерманский праздник.
type Holiday struct {
	Date time.Time
	Name string
}

// easterSunday - пасхальное воскресенье (григорианский календарь, алгоритм Гаусса/Мееуса).
func easterSunday(year int) (time.Month, int) {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Month(month), day
}

// GermanHolidays возвращает общегерманские праздники года в порядке дат.
func GermanHolidays(year int) []Holiday {
	em, ed := easterSunday(year)
	easter := time.Date(year, em, ed, 0, 0, 0, 0, time.UTC)
	fixed := func(m time.Month, d int) time.Time { return time.Date(year, m, d, 0, 0, 0, 0, time.UTC) }
	return []Holiday{
		{fixed(time.January, 1), "Neujahr"},
		{easter.AddDate(0, 0, -2), "Karfreitag"},
		{easter.AddDate(0, 0, 1), "Ostermontag"},
		{fixed(time.May, 1), "Tag der Arbeit"},
		{easter.AddDate(0, 0, 39), "Christi Himmelfahrt"},
		{easter.AddDate(0, 0, 50), "Pfingstmontag"},
		{fixed(time.October, 3), "Tag der Deutschen Einheit"},
		{fixed(time.December, 25), "1. Weihnachtstag"},
		{fixed(time.December, 26), "2. Weihnachtstag"},
	}
}

var (
	holidayMu    sync.Mutex
	holidayCache = map[int]map[string]string{}
)

func holidaySet(year int) map[string]string {
	holidayMu.Lock()
	defer holidayMu.Unlock()
	if set, ok := holidayCache[year]; ok {
		return set
	}
	set := make(map[string]string)
	for _, h := range GermanHolidays(year) {
		set[h.Date.Format("2006-01-02")] = h.Name
	}
	holidayCache[year] = set
	return set
}

// IsGermanHoliday сообщает, приходится ли календарная дата t (в ее часовом поясе) на праздник.
func IsGermanHoliday(t time.Time) bool {
	_, ok := holidaySet(t.Year())[t.Format("2006-01-02")]
	return ok
}

// HolidayName возвращает название праздника или пустую строку.
func HolidayName(t time.Time) string {
	return holidaySet(t.Year())[t.Format("2006-01-02")]
}
