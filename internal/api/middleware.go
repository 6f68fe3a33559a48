// Файл: internal/api/middleware.go
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"rideguardian/internal/apperrors"
	"rideguardian/internal/constants"
	"rideguardian/internal/models"
	"rideguardian/internal/utils"
)

// CompanyContextKey - ключ для сохранения текущего тенанта в контексте запроса.
var CompanyContextKey = &contextKey{"Company"}

type contextKey struct {
	name string
}

// CompanyHeader - заголовок, которым оболочка выбирает тенанта.
const CompanyHeader = "X-Company-ID"

// companyStore - операции хранилища, нужные для выбора тенанта.
type companyStore interface {
	GetCompany(ctx context.Context, companyID int64) (models.Company, error)
	EnsureDefaultCompany(ctx context.Context) (int64, error)
}

// AuthMiddleware проверяет заголовок Authorization: Bearer <token> по bcrypt-хэшу.
// Пустой хэш отключает проверку (локальный однопользовательский режим).
func AuthMiddleware(tokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenHash == "" {
				next.ServeHTTP(w, r)
				return
			}
			authHeader := r.Header.Get("Authorization")
			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			if authHeader == "" || token == "" || token == authHeader {
				writeJSONError(w, http.StatusUnauthorized, "Nicht autorisiert: Authorization-Header fehlt")
				return
			}
			if !utils.CheckToken(tokenHash, token) {
				log.Printf("AuthMiddleware: неверный токен с адреса %s", r.RemoteAddr)
				writeJSONError(w, http.StatusUnauthorized, "Nicht autorisiert: ungültiges Token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CompanyMiddleware определяет тенанта запроса по заголовку X-Company-ID.
// В режиме single без заголовка используется тенант по умолчанию; в режиме multi заголовок обязателен.
func CompanyMiddleware(store companyStore, appMode string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw := strings.TrimSpace(r.Header.Get(CompanyHeader))

			var companyID int64
			switch {
			case raw != "":
				id, err := strconv.ParseInt(raw, 10, 64)
				if err != nil || id <= 0 {
					writeAppError(w, apperrors.Validation(CompanyHeader, "Ungültige Unternehmens-ID '%s'", raw))
					return
				}
				companyID = id
			case appMode == constants.APP_MODE_MULTI:
				writeAppError(w, apperrors.Validation(CompanyHeader, "Unternehmen muss angegeben werden"))
				return
			default:
				id, err := store.EnsureDefaultCompany(ctx)
				if err != nil {
					log.Printf("CompanyMiddleware: ошибка получения тенанта по умолчанию: %v", err)
					writeAppError(w, err)
					return
				}
				companyID = id
			}

			company, err := store.GetCompany(ctx, companyID)
			if err != nil {
				writeAppError(w, err)
				return
			}
			if !company.IsActive {
				writeAppError(w, apperrors.NotFound("Unternehmen #%d ist deaktiviert", companyID))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, CompanyContextKey, company)))
		})
	}
}

// companyFromContext возвращает тенанта, выбранного CompanyMiddleware.
func companyFromContext(ctx context.Context) models.Company {
	c, _ := ctx.Value(CompanyContextKey).(models.Company)
	return c
}
