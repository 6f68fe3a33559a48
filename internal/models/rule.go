package models

import "time"

// Серьезность нарушения
const (
	SeverityCritical = "Critical"
	SeverityWarning  = "Warning"
	SeverityInfo     = "Info"
)

// Категории правил
const (
	CategoryDistance      = "distance"
	CategoryTime          = "time"
	CategoryPay           = "pay"
	CategoryBonus         = "bonus"
	CategoryWorkingTime   = "working_time"
	CategoryCost          = "cost"
	CategoryFuel          = "fuel"
	CategoryBusinessLogic = "business_logic"
	CategoryDataQuality   = "data_quality"
)

// Rule - строка таблицы rules. DriverID = 0 означает правило всего тенанта.
type Rule struct {
	ID                int64     `json:"id"`
	CompanyID         int64     `json:"company_id"`
	DriverID          int64     `json:"driver_id"`
	Name              string    `json:"rule_name"`
	Value             string    `json:"rule_value"`
	Category          string    `json:"category"`
	Enabled           bool      `json:"enabled"`
	PerDriverOverride bool      `json:"per_driver_override"`
	Description       string    `json:"description"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Violation - результат срабатывания правила на поездке.
type Violation struct {
	RideID          int64  `json:"ride_id"`
	RuleID          string `json:"rule_id"`
	RuleName        string `json:"rule_name"`
	Severity        string `json:"severity"`
	Category        string `json:"category"`
	Description     string `json:"description"`
	SeverityScore   int    `json:"severity_score"`
	SuggestedAction string `json:"suggested_action"`
	AutoFixable     bool   `json:"auto_fixable"`
	FixSuggestion   string `json:"fix_suggestion,omitempty"`
}
