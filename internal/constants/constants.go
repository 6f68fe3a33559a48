package constants

import "time"

// Режим работы приложения
// Application modes
const (
	APP_MODE_SINGLE = "single"
	APP_MODE_MULTI  = "multi"
)

// Тенант по умолчанию, создается при первом запуске.
const (
	DEFAULT_COMPANY_NAME    = "Standardunternehmen"
	DEFAULT_COMPANY_ADDRESS = "Muster Str 1, 45451 MusterStadt"
)

// Статусы водителей
// Driver statuses
const (
	DRIVER_STATUS_ACTIVE    = "Active"
	DRIVER_STATUS_INACTIVE  = "Inactive"
	DRIVER_STATUS_SUSPENDED = "Suspended"
)

// Статусы автомобилей
// Vehicle statuses
const (
	VEHICLE_STATUS_AVAILABLE   = "Available"
	VEHICLE_STATUS_IN_USE      = "InUse"
	VEHICLE_STATUS_MAINTENANCE = "Maintenance"
)

// Статусы поездок
// Ride statuses
const (
	RIDE_STATUS_PENDING     = "Pending"
	RIDE_STATUS_IN_PROGRESS = "InProgress"
	RIDE_STATUS_COMPLETED   = "Completed"
	RIDE_STATUS_CANCELLED   = "Cancelled"
	RIDE_STATUS_VIOLATION   = "Violation"
)

// Статусы смен
const (
	SHIFT_STATUS_OPEN   = "Open"
	SHIFT_STATUS_CLOSED = "Closed"
)

// Активность смены по умолчанию
const DEFAULT_SHIFT_ACTIVITY = "Driving"

// Статусы расчета зарплаты (как в немецких документах)
const (
	PAYROLL_STATUS_COMPLIANT     = "Konform"
	PAYROLL_STATUS_NON_COMPLIANT = "Verstoß"
)

// Типы документов шаблонов
const (
	DOCUMENT_FAHRTENBUCH   = "fahrtenbuch"
	DOCUMENT_STUNDENZETTEL = "stundenzettel"
)

// Форматы экспорта
const (
	EXPORT_FORMAT_XLSX = "xlsx"
	EXPORT_FORMAT_PDF  = "pdf"
)

// Ключи конфигурации тенанта (таблица config)
// Tenant configuration keys
const (
	CFG_APP_MODE                      = "app_mode"
	CFG_HEADQUARTERS_ADDRESS          = "headquarters_address"
	CFG_DEFAULT_FUEL_CONSUMPTION      = "default_fuel_consumption"
	CFG_FUEL_COST_PER_LITER           = "fuel_cost_per_liter"
	CFG_MINIMUM_WAGE_HOURLY           = "minimum_wage_hourly"
	CFG_NIGHT_BONUS_RATE              = "night_bonus_rate"
	CFG_WEEKEND_BONUS_RATE            = "weekend_bonus_rate"
	CFG_HOLIDAY_BONUS_RATE            = "holiday_bonus_rate"
	CFG_PERFORMANCE_BONUS_THRESHOLD   = "performance_bonus_threshold"
	CFG_PERFORMANCE_BONUS_RATE        = "performance_bonus_rate"
	CFG_OVERTIME_THRESHOLD_HOURS      = "overtime_threshold_hours"
	CFG_OVERTIME_RATE_MULTIPLIER      = "overtime_rate_multiplier"
	CFG_MAX_PICKUP_DISTANCE_MINUTES   = "max_pickup_distance_minutes"
	CFG_MAX_NEXT_JOB_DISTANCE_MINUTES = "max_next_job_distance_minutes"
	CFG_MAX_PREVIOUS_DEST_MINUTES     = "max_previous_dest_minutes"
	CFG_MAX_HQ_DEVIATION_KM           = "max_hq_deviation_km"
	CFG_TIME_TOLERANCE_MINUTES        = "time_tolerance_minutes"
	CFG_MAX_DISTANCE_DEVIATION_KM     = "max_distance_deviation_km"
)

// Значения по умолчанию для ключей конфигурации
// Defaults for the configuration keys
const (
	DEFAULT_FUEL_CONSUMPTION          = 8.5
	DEFAULT_FUEL_COST_PER_LITER       = 1.45
	DEFAULT_MINIMUM_WAGE_HOURLY       = 12.41
	DEFAULT_NIGHT_BONUS_RATE          = 0.15
	DEFAULT_WEEKEND_BONUS_RATE        = 0.10
	DEFAULT_HOLIDAY_BONUS_RATE        = 0.25
	DEFAULT_PERFORMANCE_BONUS_THRESH  = 95.0
	DEFAULT_PERFORMANCE_BONUS_RATE    = 0.05
	DEFAULT_OVERTIME_THRESHOLD_HOURS  = 8.0
	DEFAULT_OVERTIME_RATE_MULTIPLIER  = 1.5
	DEFAULT_MAX_PICKUP_DISTANCE_MIN   = 24.0
	DEFAULT_MAX_NEXT_JOB_DISTANCE_MIN = 30.0
	DEFAULT_MAX_PREVIOUS_DEST_MIN     = 18.0
	DEFAULT_MAX_HQ_DEVIATION_KM       = 7.0
	DEFAULT_TIME_TOLERANCE_MIN        = 10.0
	DEFAULT_MAX_DISTANCE_DEVIATION_KM = 5.0
)

// Параметры расчетов и кэша адресов
const (
	AUTOFILL_MAX_DISTANCE_KM     = 20.0
	FALLBACK_SAME_LOCALITY_KM    = 10.0
	FALLBACK_OTHER_LOCALITY_KM   = 50.0
	FALLBACK_KM_PER_WORD         = 2.0
	FALLBACK_AVERAGE_SPEED_KMH   = 50.0
	MAPPING_TIMEOUT              = 5 * time.Second
	MAPPING_COST_PER_REQUEST_EUR = 0.005
	CACHE_STALE_AFTER            = 6 * 30 * 24 * time.Hour
	PRELOAD_TOP_ROUTES           = 50
)

// Немецкие подписи документов
const (
	LABEL_YES = "Ja"
	LABEL_NO  = "Nein"
)

// ActivityDisplayMap переводит системные названия активности смены в немецкие.
var ActivityDisplayMap = map[string]string{
	"Driving":     "Fahren",
	"Waiting":     "Warten",
	"Maintenance": "Wartung",
	"Office":      "Büro",
}

// MonthMap содержит немецкие названия месяцев для заголовков документов.
var MonthMap = map[time.Month]string{
	time.January:   "Januar",
	time.February:  "Februar",
	time.March:     "März",
	time.April:     "April",
	time.May:       "Mai",
	time.June:      "Juni",
	time.July:      "Juli",
	time.August:    "August",
	time.September: "September",
	time.October:   "Oktober",
	time.November:  "November",
	time.December:  "Dezember",
}

// Идентификаторы правил проверки поездок
// Rule ids (stable keys of the rules table)
const (
	RULE_SHIFT_START_AT_HQ         = "shift_start_at_hq"
	RULE_PICKUP_DISTANCE           = "pickup_distance"
	RULE_POST_RIDE_LOGIC           = "post_ride_logic"
	RULE_NEXT_JOB_DISTANCE         = "next_job_distance"
	RULE_HQ_DEVIATION              = "hq_deviation"
	RULE_ASSIGNED_DURING_RIDE      = "assigned_during_ride"
	RULE_TIME_SEQUENCE             = "time_sequence"
	RULE_MINIMUM_DURATION          = "minimum_duration"
	RULE_DAILY_WORK_LIMIT          = "daily_work_limit"
	RULE_WEEKLY_WORK_LIMIT         = "weekly_work_limit"
	RULE_DAILY_REST                = "daily_rest"
	RULE_CONTINUOUS_DRIVING        = "continuous_driving"
	RULE_DISTANCE_PLAUSIBILITY     = "distance_plausibility"
	RULE_ODOMETER_CONSISTENCY      = "odometer_consistency"
	RULE_COST_PLAUSIBILITY         = "cost_plausibility"
	RULE_FUEL_CONSISTENCY          = "fuel_consistency"
	RULE_BUSINESS_PURPOSE_REQUIRED = "business_purpose_required"
	RULE_REQUIRED_FIELDS           = "required_fields"
	RULE_DUPLICATE_DETECTION       = "duplicate_detection"
	RULE_TIME_GAP                  = "time_gap"
	RULE_RETURN_TO_HQ              = "return_to_hq"
	RULE_DAILY_DISTANCE_LIMIT      = "daily_distance_limit"
	RULE_OVERNIGHT_TRIPS           = "overnight_trips"
	RULE_WEEKEND_BUSINESS_TRIPS    = "weekend_business_trips"
)

// RuleDefault - строка-заготовка таблицы rules для нового тенанта.
type RuleDefault struct {
	Name        string
	Value       string
	Category    string
	Description string
}

// DefaultRules - значения правил, которые записываются при создании компании.
// Порядок совпадает с порядком каталога валидатора.
var DefaultRules = []RuleDefault{
	{RULE_SHIFT_START_AT_HQ, "0.5", "distance", "Erste Fahrt der Schicht beginnt am Betriebssitz (Toleranz km)"},
	{RULE_PICKUP_DISTANCE, "24", "distance", "Anfahrt zum Abholort (max. Minuten)"},
	{RULE_POST_RIDE_LOGIC, "18", "business_logic", "Abholort vom letzten Zielort erreichbar (max. Minuten)"},
	{RULE_NEXT_JOB_DISTANCE, "30", "distance", "Entfernung zum nächsten Auftrag (max. Minuten)"},
	{RULE_HQ_DEVIATION, "7", "distance", "Abweichung von der direkten Rückfahrt (max. km)"},
	{RULE_ASSIGNED_DURING_RIDE, "true", "business_logic", "Auftrag während laufender Fahrt erhalten"},
	{RULE_TIME_SEQUENCE, "true", "time", "Fahrtende nach Fahrtbeginn"},
	{RULE_MINIMUM_DURATION, "1", "time", "Mindestdauer einer Fahrt (Minuten)"},
	{RULE_DAILY_WORK_LIMIT, "10", "working_time", "Tägliche Höchstarbeitszeit (Std.)"},
	{RULE_WEEKLY_WORK_LIMIT, "48", "working_time", "Wöchentliche Höchstarbeitszeit (Std.)"},
	{RULE_DAILY_REST, "11", "working_time", "Tägliche Ruhezeit (Std.)"},
	{RULE_CONTINUOUS_DRIVING, "4.5", "working_time", "Ununterbrochene Lenkzeit (Std.)"},
	{RULE_DISTANCE_PLAUSIBILITY, "30", "distance", "Abweichung zur berechneten Entfernung (max. %)"},
	{RULE_ODOMETER_CONSISTENCY, "true", "distance", "Kilometerstände fortlaufend"},
	{RULE_COST_PLAUSIBILITY, "2.00", "cost", "Kosten pro km (max. €)"},
	{RULE_FUEL_CONSISTENCY, "20", "fuel", "Abweichung Kraftstoffverbrauch (max. %)"},
	{RULE_BUSINESS_PURPOSE_REQUIRED, "true", "business_logic", "Geschäftszweck bei Geschäftsfahrten"},
	{RULE_REQUIRED_FIELDS, "true", "data_quality", "Pflichtfelder ausgefüllt"},
	{RULE_DUPLICATE_DETECTION, "30", "data_quality", "Duplikate innerhalb von Minuten"},
	{RULE_TIME_GAP, "10", "time", "Abholzeit nahe am letzten Fahrtende (Toleranz Minuten)"},
	{RULE_RETURN_TO_HQ, "0.5", "business_logic", "Letzte Fahrt der Schicht endet am Betriebssitz (Toleranz km)"},
	{RULE_DAILY_DISTANCE_LIMIT, "1000", "distance", "Tägliche Fahrstrecke (max. km)"},
	{RULE_OVERNIGHT_TRIPS, "true", "time", "Fahrt über Mitternacht"},
	{RULE_WEEKEND_BUSINESS_TRIPS, "true", "business_logic", "Geschäftsfahrt am Wochenende"},
}

// Шаблоны документов по умолчанию
const (
	DEFAULT_TEMPLATE_FAHRTENBUCH   = "Fahrtenbuch Standard"
	DEFAULT_TEMPLATE_STUNDENZETTEL = "Stundenzettel Standard"
)
