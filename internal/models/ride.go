package models

import "time"

// Ride - отдельная поездка.
// Ride is a single trip.
type Ride struct {
	ID                 int64       `json:"id"`
	CompanyID          int64       `json:"company_id"`
	DriverID           int64       `json:"driver_id"`
	ShiftID            NullInt64   `json:"shift_id"`
	PickupTime         time.Time   `json:"pickup_time"`
	DropoffTime        NullTime    `json:"dropoff_time"`
	PickupLocation     string      `json:"pickup_location"`
	Destination        string      `json:"destination"`
	AssignmentLocation string      `json:"assignment_location"` // Где был получен заказ (Standort bei Auftragsübermittlung)
	IsReserved         bool        `json:"is_reserved"`
	AssignedDuringRide bool        `json:"assigned_during_ride"`
	VehiclePlate       string      `json:"vehicle_plate"`
	PassengerCount     int         `json:"passenger_count"`
	DistanceKm         float64     `json:"distance_km"`
	FuelLiters         float64     `json:"fuel_liters"`
	CostEuros          float64     `json:"cost_euros"`
	TollCost           float64     `json:"toll_cost"`
	ParkingCost        float64     `json:"parking_cost"`
	OtherCosts         float64     `json:"other_costs"`
	FareRevenue        float64     `json:"fare_revenue"`
	PaymentMethod      string      `json:"payment_method"`
	FareType           string      `json:"fare_type"`
	OdometerStart      NullFloat64 `json:"odometer_start"`
	OdometerEnd        NullFloat64 `json:"odometer_end"`
	IsBusinessTrip     bool        `json:"is_business_trip"`
	BusinessPurpose    string      `json:"business_purpose"`
	Violations         []string    `json:"violations"`
	Status             string      `json:"status"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// DurationMinutes возвращает длительность поездки в минутах (0, если поездка не завершена).
func (r Ride) DurationMinutes() float64 {
	if !r.DropoffTime.Valid {
		return 0
	}
	return r.DropoffTime.Time.Sub(r.PickupTime).Minutes()
}

// TotalCosts - сумма всех расходов поездки.
func (r Ride) TotalCosts() float64 {
	return r.CostEuros + r.TollCost + r.ParkingCost + r.OtherCosts
}

// Shift - непрерывный рабочий блок одного водителя.
type Shift struct {
	ID              int64     `json:"id"`
	CompanyID       int64     `json:"company_id"`
	DriverID        int64     `json:"driver_id"`
	ShiftLabel      string    `json:"shift_label"` // Человекочитаемый ID, например "2-1(2)"
	ShiftDate       time.Time `json:"shift_date"`
	StartTime       time.Time `json:"start_time"`
	EndTime         NullTime  `json:"end_time"`
	StartLocation   string    `json:"start_location"`
	EndLocation     string    `json:"end_location"`
	Activity        string    `json:"activity"`
	TotalHours      float64   `json:"total_hours"`
	BreakMinutes    float64   `json:"break_minutes"`
	ActualHours     float64   `json:"actual_hours"`
	EarlyShiftHours float64   `json:"early_shift_hours"`
	NightShiftHours float64   `json:"night_shift_hours"`
	Status          string    `json:"status"`
	Notes           string    `json:"notes"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// AddressCacheEntry - сохраненный ответ картографического сервиса для пары адресов.
type AddressCacheEntry struct {
	ID          int64     `json:"id"`
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	DistanceKm  float64   `json:"distance_km"`
	DurationMin float64   `json:"duration_min"`
	FirstSeen   time.Time `json:"first_seen"`
	LastUsed    time.Time `json:"last_used"`
	UseCount    int64     `json:"use_count"`
}

// RouteCount - частота маршрута (для предзагрузки кэша и статистики).
type RouteCount struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Count       int64  `json:"count"`
}
