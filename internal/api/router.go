package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rideguardian/internal/session"
)

// ApiDependencies содержит зависимости для обработчиков API.
type ApiDependencies struct {
	Session *session.Session
}

// Handlers - обработчики API поверх сессии приложения.
type Handlers struct {
	sess *session.Session
}

// SetupRoutes настраивает все маршруты для API.
func SetupRoutes(r chi.Router, deps ApiDependencies) {
	h := &Handlers{sess: deps.Session}
	cfg := deps.Session.Config

	r.Handle("/metrics", promhttp.Handler())

	// Ссылка на файл выгрузки защищена собственным подписанным токеном.
	r.Get("/api/exports/download", h.DownloadExport)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.APITokenHash))

		r.Get("/api/companies", h.GetCompanies)
		r.Post("/api/companies", h.CreateCompany)

		r.Group(func(r chi.Router) {
			r.Use(CompanyMiddleware(deps.Session.Store, cfg.AppMode))

			r.Put("/api/company", h.UpdateCompany)
			r.Delete("/api/company", h.DeactivateCompany)

			r.Get("/api/config", h.GetAllConfig)
			r.Get("/api/config/{key}", h.GetConfigValue)
			r.Put("/api/config/{key}", h.SetConfigValue)

			r.Get("/api/drivers", h.ListDrivers)
			r.Post("/api/drivers", h.CreateDriver)
			r.Put("/api/drivers/{id}", h.UpdateDriver)
			r.Delete("/api/drivers/{id}", h.DeactivateDriver)

			r.Get("/api/vehicles", h.ListVehicles)
			r.Post("/api/vehicles", h.CreateVehicle)
			r.Put("/api/vehicles/{plate}/odometer", h.UpdateOdometer)

			r.Get("/api/rules", h.ListRules)
			r.Put("/api/rules/{name}", h.SaveRule)
			r.Put("/api/templates", h.SaveTemplate)

			r.Get("/api/rides", h.ListRides)
			r.Post("/api/rides", h.CreateRide)
			r.Post("/api/rides/check", h.CheckRide)
			r.Post("/api/rides/validate", h.ValidateRides)
			r.Get("/api/rides/autofill", h.AutoFillPickup)

			r.Post("/api/shifts", h.CreateShift)
			r.Get("/api/shifts", h.ListShifts)

			r.Get("/api/payroll/{driverID}", h.GetPayroll)

			r.Post("/api/exports/fahrtenbuch", h.StartFahrtenbuchExport)
			r.Post("/api/exports/stundenzettel", h.StartStundenzettelExport)
			r.Get("/api/jobs/{id}", h.GetJob)
			r.Delete("/api/jobs/{id}", h.CancelJob)

			r.Get("/api/statistics", h.GetStatistics)
			r.Get("/api/mapping/distance", h.GetDistance)
			r.Get("/api/mapping/stats", h.GetMappingStats)
			r.Get("/api/mapping/address", h.ValidateAddress)
			r.Post("/api/mapping/optimize", h.OptimizeMappingCache)
			r.Post("/api/mapping/preload", h.PreloadMappingCache)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "Route nicht gefunden")
	})
}
