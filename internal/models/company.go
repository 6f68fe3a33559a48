package models

import "time"

// Company - тенант (компания). Все остальные записи ссылаются на него через company_id.
type Company struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Driver - водитель, принадлежит ровно одной компании.
type Driver struct {
	ID              int64     `json:"id"`
	CompanyID       int64     `json:"company_id"`
	Name            string    `json:"name"`
	VehiclePlate    string    `json:"vehicle_plate"`
	PersonnelNumber string    `json:"personnel_number"`
	Status          string    `json:"status"`
	HourlyWage      float64   `json:"hourly_wage"`
	BonusMultiplier float64   `json:"bonus_multiplier"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Vehicle - автомобиль компании. Номер уникален в пределах тенанта.
type Vehicle struct {
	ID                 int64     `json:"id"`
	CompanyID          int64     `json:"company_id"`
	Plate              string    `json:"plate"`
	Make               string    `json:"make"`
	Model              string    `json:"model"`
	Year               int       `json:"year"`
	Color              string    `json:"color"`
	Status             string    `json:"status"`
	CurrentDriverID    NullInt64 `json:"current_driver_id"`
	TotalKm            float64   `json:"total_km"`
	LastMaintenance    NullTime  `json:"last_maintenance"`
	NextMaintenanceKm  float64   `json:"next_maintenance_km"`
	InsuranceExpiry    NullTime  `json:"insurance_expiry"`
	RegistrationExpiry NullTime  `json:"registration_expiry"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// MakeModel возвращает строку "Марка Модель" для шапки Fahrtenbuch.
func (v Vehicle) MakeModel() string {
	switch {
	case v.Make == "":
		return v.Model
	case v.Model == "":
		return v.Make
	}
	return v.Make + " " + v.Model
}

// ConfigEntry - пара ключ/значение конфигурации тенанта.
type ConfigEntry struct {
	CompanyID int64     `json:"company_id"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FahrtenbuchTemplate - метаданные шаблона документа тенанта.
type FahrtenbuchTemplate struct {
	ID           int64     `json:"id"`
	CompanyID    int64     `json:"company_id"`
	Name         string    `json:"name"`
	DocumentType string    `json:"document_type"`
	LayoutJSON   string    `json:"layout_json"`
	IsDefault    bool      `json:"is_default"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
