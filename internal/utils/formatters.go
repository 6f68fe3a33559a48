package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"rideguardian/internal/constants"
	"rideguardian/internal/models"
)

// FormatDecimal форматирует число по-немецки: "1.234,50".
func FormatDecimal(v float64, precision int) string {
	p := message.NewPrinter(language.German)
	return p.Sprintf("%."+strconv.Itoa(precision)+"f", v)
}

// FormatEuro - денежная сумма: "480,00 €".
func FormatEuro(v float64) string {
	return FormatDecimal(v, 2) + " €"
}

// FormatHours - часы с двумя знаками: "8,50 h".
func FormatHours(v float64) string {
	return FormatDecimal(v, 2) + " h"
}

// FormatKm - дистанция с одним знаком: "25,5 km".
func FormatKm(v float64) string {
	return FormatDecimal(v, 1) + " km"
}

// FormatDateDE форматирует дату как "02.01.2006".
func FormatDateDE(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02.01.2006")
}

// FormatTimeDE - время "15:04"; пустая строка для отсутствующего значения.
func FormatTimeDE(t models.NullTime) string {
	if !t.Valid {
		return ""
	}
	return t.Time.Format("15:04")
}

// FormatMonthYear - "Februar 2025".
func FormatMonthYear(t time.Time) string {
	return fmt.Sprintf("%s %d", GetGermanMonthName(t.Month()), t.Year())
}

// FormatPeriod - период для заголовков: "01.02.2025 - 28.02.2025".
func FormatPeriod(start, end time.Time) string {
	return FormatDateDE(start) + " - " + FormatDateDE(end)
}

// GetGermanMonthName возвращает немецкое название месяца.
func GetGermanMonthName(m time.Month) string {
	if name, ok := constants.MonthMap[m]; ok {
		return name
	}
	return m.String()
}

// GetActivityDisplayName переводит активность смены для документов.
func GetActivityDisplayName(activity string) string {
	if name, ok := constants.ActivityDisplayMap[activity]; ok {
		return name
	}
	return activity
}

// YesNo - "Ja"/"Nein".
func YesNo(b bool) string {
	if b {
		return constants.LABEL_YES
	}
	return constants.LABEL_NO
}

var nonFileChars = regexp.MustCompile(`[^\p{L}\p{N}_-]+`)

// SafeFileName оставляет в строке только буквы, цифры, '_' и '-'.
func SafeFileName(s string) string {
	s = nonFileChars.ReplaceAllString(strings.TrimSpace(s), "_")
	return strings.Trim(s, "_")
}

// GenerateUUID генерирует новый UUID.
func GenerateUUID() string {
	return uuid.New().String()
}

// GetDriverDisplayName - "Name (Personalnummer)" или только имя.
func GetDriverDisplayName(d models.Driver) string {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		name = fmt.Sprintf("Fahrer #%d", d.ID)
	}
	if d.PersonnelNumber != "" {
		return fmt.Sprintf("%s (%s)", name, d.PersonnelNumber)
	}
	return name
}

// EscapeTelegramMarkdown экранирует специальные символы для Telegram Markdown (старый стиль).
func EscapeTelegramMarkdown(text string) string {
	var replacer = strings.NewReplacer(
		"_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[",
	)
	return replacer.Replace(text)
}
