package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"

	"rideguardian/internal/apperrors"
	"rideguardian/internal/constants"
	"rideguardian/internal/formatters"
	"rideguardian/internal/models"
	"rideguardian/internal/utils"
)

// downloadTokenTTL - время жизни ссылки на файл выгрузки.
const downloadTokenTTL = 15 * time.Minute

// FahrtenbuchExportRequest - параметры выгрузки Fahrtenbuch. DriverID = 0 - все активные водители.
type FahrtenbuchExportRequest struct {
	DriverID int64  `json:"driver_id"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Format   string `json:"format"`
}

// StundenzettelExportRequest - параметры выгрузки Stundenzettel за месяц.
type StundenzettelExportRequest struct {
	DriverID int64  `json:"driver_id"`
	Year     int    `json:"year"`
	Month    int    `json:"month"`
	Format   string `json:"format"`
}

// ExportResult - итог задачи выгрузки.
type ExportResult struct {
	Created       bool   `json:"created"`
	FileName      string `json:"file_name,omitempty"`
	DownloadToken string `json:"download_token,omitempty"`
	Message       string `json:"message"`
}

// downloadClaims - подписанная ссылка на один файл в каталоге выгрузок.
type downloadClaims struct {
	File      string `json:"file"`
	CompanyID int64  `json:"company_id"`
	jwt.RegisteredClaims
}

func normalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		return constants.EXPORT_FORMAT_XLSX
	}
	return format
}

// exportPath строит уникальное имя файла в каталоге выгрузок.
func (h *Handlers) exportPath(parts ...string) (string, error) {
	dir := h.sess.Config.ExportDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperrors.ExportFailed(err, "Exportverzeichnis %s nicht verfügbar", dir)
	}
	name := utils.SafeFileName(strings.Join(parts[:len(parts)-1], "_"))
	suffix := utils.GenerateUUID()[:8]
	return filepath.Join(dir, fmt.Sprintf("%s_%s.%s", name, suffix, parts[len(parts)-1])), nil
}

func (h *Handlers) signDownload(companyID int64, path string) (string, error) {
	now := time.Now()
	claims := downloadClaims{
		File:      filepath.Base(path),
		CompanyID: companyID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(downloadTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.sess.Config.DownloadSigningKey)
}

// finishExport оформляет результат задачи и отправляет уведомление о готовом файле.
func (h *Handlers) finishExport(company models.Company, document, driverName, period, path string, created bool) (ExportResult, error) {
	if !created {
		return ExportResult{Created: false, Message: formatters.FormatEmptyExport(document, period)}, nil
	}
	token, err := h.signDownload(company.ID, path)
	if err != nil {
		return ExportResult{}, apperrors.Internal(err, "Download-Link konnte nicht erstellt werden")
	}
	if h.sess.Notifier != nil {
		h.sess.Notifier.SendText(formatters.FormatExportFinished(document, driverName, period, path))
	}
	return ExportResult{
		Created:       true,
		FileName:      filepath.Base(path),
		DownloadToken: token,
		Message:       fmt.Sprintf("%s erstellt", document),
	}, nil
}

// StartFahrtenbuchExport ставит выгрузку Fahrtenbuch в очередь и возвращает id задачи.
func (h *Handlers) StartFahrtenbuchExport(w http.ResponseWriter, r *http.Request) {
	company := companyFromContext(r.Context())
	var req FahrtenbuchExportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	start, end, err := h.requiredRange(req.Start, req.End)
	if err != nil {
		writeAppError(w, err)
		return
	}
	format := normalizeFormat(req.Format)
	driverName := ""
	if req.DriverID != 0 {
		d, errDriver := h.sess.Store.GetDriver(r.Context(), company.ID, req.DriverID)
		if errDriver != nil {
			writeAppError(w, errDriver)
			return
		}
		driverName = d.Name
	}
	path, err := h.exportPath("Fahrtenbuch", company.Name, driverName, start.Format("20060102"), end.Format("20060102"), format)
	if err != nil {
		writeAppError(w, err)
		return
	}
	period := utils.FormatPeriod(start, end)

	jobID, err := h.sess.Jobs.Submit("export_fahrtenbuch", func(ctx context.Context, progress func(string)) (interface{}, error) {
		progress("Fahrtenbuch wird erstellt")
		created, errExport := h.sess.Exporter.ExportFahrtenbuch(ctx, company.ID, req.DriverID, start, end, path, format)
		if errExport != nil {
			return nil, errExport
		}
		return h.finishExport(company, "Fahrtenbuch", driverName, period, path, created)
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	log.WithFields(log.Fields{"job_id": jobID, "company_id": company.ID, "driver_id": req.DriverID}).Info("Выгрузка Fahrtenbuch поставлена в очередь")
	writeJSONStatus(w, http.StatusAccepted, "Export gestartet", map[string]string{"job_id": jobID})
}

// StartStundenzettelExport ставит выгрузку Stundenzettel в очередь и возвращает id задачи.
func (h *Handlers) StartStundenzettelExport(w http.ResponseWriter, r *http.Request) {
	company := companyFromContext(r.Context())
	var req StundenzettelExportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if req.DriverID == 0 {
		writeAppError(w, apperrors.Validation("driver_id", "Fahrer muss angegeben werden"))
		return
	}
	if req.Month < 1 || req.Month > 12 || req.Year < 2000 || req.Year > 2100 {
		writeAppError(w, apperrors.Validation("month", "Ungültiger Monat %d/%d", req.Month, req.Year))
		return
	}
	d, err := h.sess.Store.GetDriver(r.Context(), company.ID, req.DriverID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	format := normalizeFormat(req.Format)
	month := time.Month(req.Month)
	path, err := h.exportPath("Stundenzettel", company.Name, d.Name, fmt.Sprintf("%04d-%02d", req.Year, req.Month), format)
	if err != nil {
		writeAppError(w, err)
		return
	}
	period := fmt.Sprintf("%s %d", utils.GetGermanMonthName(month), req.Year)

	jobID, err := h.sess.Jobs.Submit("export_stundenzettel", func(ctx context.Context, progress func(string)) (interface{}, error) {
		progress("Stundenzettel wird erstellt")
		created, errExport := h.sess.Exporter.ExportStundenzettel(ctx, company.ID, req.DriverID, req.Year, month, path, format)
		if errExport != nil {
			return nil, errExport
		}
		return h.finishExport(company, "Stundenzettel", d.Name, period, path, created)
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	log.WithFields(log.Fields{"job_id": jobID, "company_id": company.ID, "driver_id": req.DriverID}).Info("Выгрузка Stundenzettel поставлена в очередь")
	writeJSONStatus(w, http.StatusAccepted, "Export gestartet", map[string]string{"job_id": jobID})
}

// GetJob возвращает состояние фоновой задачи.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := h.sess.Jobs.Get(id)
	if !ok {
		writeAppError(w, apperrors.NotFound("Aufgabe %s nicht gefunden", id))
		return
	}
	writeJSONSuccess(w, string(job.Status), job)
}

// CancelJob запрашивает отмену фоновой задачи.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.sess.Jobs.Cancel(id); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, "Abbruch angefordert", map[string]string{"job_id": id})
}

// DownloadExport отдает файл выгрузки по подписанному токену (?token=...).
func (h *Handlers) DownloadExport(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		writeJSONError(w, http.StatusUnauthorized, "Download-Token fehlt")
		return
	}
	claims := &downloadClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unerwartete Signaturmethode %v", t.Header["alg"])
		}
		return h.sess.Config.DownloadSigningKey, nil
	})
	if err != nil {
		log.Printf("DownloadExport: недействительный токен: %v", err)
		writeJSONError(w, http.StatusUnauthorized, "Download-Link ungültig oder abgelaufen")
		return
	}

	name := filepath.Base(claims.File)
	if name == "." || name == string(filepath.Separator) || strings.Contains(claims.File, "..") {
		writeJSONError(w, http.StatusBadRequest, "Ungültiger Dateiname")
		return
	}
	path := filepath.Join(h.sess.Config.ExportDir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}
