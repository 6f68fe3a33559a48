package validator

import (
	"sort"

	"rideguardian/internal/models"
)

// Summary - сводка нарушений для отчета и API.
type Summary struct {
	Total         int                `json:"total_violations"`
	CriticalCount int                `json:"critical_count"`
	WarningCount  int                `json:"warning_count"`
	InfoCount     int                `json:"info_count"`
	ByCategory    map[string]int     `json:"by_category"`
	Top           []models.Violation `json:"top_violations"`
}

// Summarize считает нарушения по серьезности и категориям и выбирает десять самых серьезных.
func Summarize(violations []models.Violation) Summary {
	s := Summary{Total: len(violations), ByCategory: map[string]int{}}
	for _, v := range violations {
		switch v.Severity {
		case models.SeverityCritical:
			s.CriticalCount++
		case models.SeverityWarning:
			s.WarningCount++
		default:
			s.InfoCount++
		}
		s.ByCategory[v.Category]++
	}
	top := make([]models.Violation, len(violations))
	copy(top, violations)
	sort.SliceStable(top, func(i, j int) bool { return top[i].SeverityScore > top[j].SeverityScore })
	if len(top) > 10 {
		top = top[:10]
	}
	s.Top = top
	return s
}

// Flatten собирает нарушения набора поездок в один список по возрастанию ID поездки.
func Flatten(results map[int64][]models.Violation) []models.Violation {
	ids := make([]int64, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []models.Violation
	for _, id := range ids {
		out = append(out, results[id]...)
	}
	return out
}
