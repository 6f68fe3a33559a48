package models

import "time"

// BandHours - часы смены по диапазонам. Диапазоны независимы друг от друга.
type BandHours struct {
	Regular float64 `json:"regular"`
	Early   float64 `json:"early"`
	Night   float64 `json:"night"`
	Weekend float64 `json:"weekend"`
	Holiday float64 `json:"holiday"`
	Total   float64 `json:"total"`
}

// PayStatement - расчетный лист водителя за период.
type PayStatement struct {
	CompanyID        int64     `json:"company_id"`
	DriverID         int64     `json:"driver_id"`
	DriverName       string    `json:"driver_name"`
	PeriodStart      string    `json:"period_start"` // YYYY-MM-DD
	PeriodEnd        string    `json:"period_end"`   // YYYY-MM-DD
	Hours            BandHours `json:"hours"`
	BreakMinutes     float64   `json:"break_minutes"`
	ActualHours      float64   `json:"actual_hours"`
	OvertimeHours    float64   `json:"overtime_hours"`
	HourlyRate       float64   `json:"hourly_rate"`
	BasePay          float64   `json:"base_pay"`
	NightBonus       float64   `json:"night_bonus"`
	WeekendBonus     float64   `json:"weekend_bonus"`
	HolidayBonus     float64   `json:"holiday_bonus"`
	PerformanceBonus float64   `json:"performance_bonus"`
	OvertimePay      float64   `json:"overtime_pay"`
	TotalPay         float64   `json:"total_pay"`
	EffectiveRate    float64   `json:"effective_rate"`
	MinimumWage      float64   `json:"minimum_wage"`
	Compliant        bool      `json:"compliant"`
	Shortfall        float64   `json:"shortfall"`
	ComplianceRate   float64   `json:"compliance_rate"`
	Revenue          float64   `json:"revenue"`
	ShiftCount       int       `json:"shift_count"`
	RideCount        int       `json:"ride_count"`
	Warnings         []string  `json:"warnings"`
}

// Status возвращает статус соответствия для сохранения в таблице payroll.
func (ps PayStatement) Status() string {
	if ps.Compliant {
		return "Konform"
	}
	return "Verstoß"
}

// PayrollRecord - сохраненный расчетный лист.
type PayrollRecord struct {
	ID        int64        `json:"id"`
	Statement PayStatement `json:"statement"`
	Status    string       `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
