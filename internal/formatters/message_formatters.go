package formatters

import (
	"fmt"
	"path/filepath"
	"strings"

	"rideguardian/internal/apperrors"
	"rideguardian/internal/models"
	"rideguardian/internal/utils"
)

const (
	separator = "─ ─ ─ ─ ─ ─ ─ ─ ─ ─ ─ ─ ─"
)

var severityIcons = map[string]string{
	models.SeverityCritical: "🔴",
	models.SeverityWarning:  "🟠",
	models.SeverityInfo:     "🔵",
}

// errorCategoryNames - немецкие названия категорий ошибок для сообщений пользователю.
var errorCategoryNames = map[apperrors.Kind]string{
	apperrors.KindNotFound:           "Nicht gefunden",
	apperrors.KindConflict:           "Konflikt",
	apperrors.KindValidation:         "Ungültige Eingabe",
	apperrors.KindMappingUnavailable: "Kartendienst",
	apperrors.KindExportFailed:       "Export fehlgeschlagen",
	apperrors.KindCancelled:          "Abgebrochen",
	apperrors.KindInternal:           "Interner Fehler",
}

// FormatCriticalViolations - уведомление о критических нарушениях поездки.
func FormatCriticalViolations(company models.Company, ride models.Ride, violations []models.Violation) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("🚨 *%s*\n", utils.EscapeTelegramMarkdown(company.Name)))
	b.WriteString(fmt.Sprintf("Fahrt #%d, %s %s\n",
		ride.ID,
		utils.EscapeTelegramMarkdown(utils.FormatDateDE(ride.PickupTime)),
		ride.PickupTime.Format("15:04")))
	if ride.PickupLocation != "" || ride.Destination != "" {
		b.WriteString(fmt.Sprintf("%s → %s\n",
			utils.EscapeTelegramMarkdown(ride.PickupLocation),
			utils.EscapeTelegramMarkdown(ride.Destination)))
	}
	b.WriteString(separator + "\n")

	for _, v := range violations {
		b.WriteString(fmt.Sprintf("%s *%s* (%d/10)\n", severityIcons[v.Severity], utils.EscapeTelegramMarkdown(v.RuleName), v.SeverityScore))
		b.WriteString(fmt.Sprintf(" •  %s\n", utils.EscapeTelegramMarkdown(v.Description)))
		if v.SuggestedAction != "" {
			b.WriteString(fmt.Sprintf(" •  Maßnahme: %s\n", utils.EscapeTelegramMarkdown(v.SuggestedAction)))
		}
	}
	return b.String()
}

// FormatViolationSummary - короткая сводка проверки последовательности поездок.
func FormatViolationSummary(total, critical, warning, info int) string {
	if total == 0 {
		return "Keine Regelverstöße gefunden."
	}
	return fmt.Sprintf("%d Regelverstöße: %d kritisch, %d Warnungen, %d Hinweise.", total, critical, warning, info)
}

// FormatExportFinished - уведомление о готовой выгрузке.
func FormatExportFinished(document, driverName, period, path string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📄 *%s* erstellt\n", utils.EscapeTelegramMarkdown(document)))
	if driverName != "" {
		b.WriteString(fmt.Sprintf(" •  Fahrer: %s\n", utils.EscapeTelegramMarkdown(driverName)))
	}
	b.WriteString(fmt.Sprintf(" •  Zeitraum: %s\n", utils.EscapeTelegramMarkdown(period)))
	b.WriteString(fmt.Sprintf(" •  Datei: %s\n", utils.EscapeTelegramMarkdown(filepath.Base(path))))
	return b.String()
}

// FormatEmptyExport - сообщение, когда за период нет данных.
func FormatEmptyExport(document, period string) string {
	return fmt.Sprintf("%s: keine Daten im Zeitraum %s, keine Datei erstellt.", document, period)
}

// FormatPayrollWarnings - предупреждения расчетного листа (например, Mindestlohnverstoß).
func FormatPayrollWarnings(st models.PayStatement) string {
	if len(st.Warnings) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("⚠️ *Lohnabrechnung %s* (%s – %s)\n",
		utils.EscapeTelegramMarkdown(st.DriverName), st.PeriodStart, st.PeriodEnd))
	for _, w := range st.Warnings {
		b.WriteString(fmt.Sprintf(" •  %s\n", utils.EscapeTelegramMarkdown(w)))
	}
	return b.String()
}

// FormatError - одна строка для сообщения об ошибке: категория и описание.
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	kind := apperrors.KindOf(err)
	name, ok := errorCategoryNames[kind]
	if !ok {
		name = errorCategoryNames[apperrors.KindInternal]
	}
	msg := err.Error()
	if kind == apperrors.KindInternal {
		msg = "Unerwarteter Fehler, Details im Protokoll"
	}
	return fmt.Sprintf("%s: %s", name, msg)
}

// ErrorCategoryName возвращает немецкое название категории ошибки.
func ErrorCategoryName(kind apperrors.Kind) string {
	return errorCategoryNames[kind]
}
