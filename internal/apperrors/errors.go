package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind - категория ошибки, видимая пользователю.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindValidation         Kind = "validation"
	KindMappingUnavailable Kind = "mapping_unavailable"
	KindExportFailed       Kind = "export_failed"
	KindCancelled          Kind = "cancelled"
	KindInternal           Kind = "internal"
)

// Сентинелы для errors.Is.
var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrValidation         = &Error{Kind: KindValidation}
	ErrMappingUnavailable = &Error{Kind: KindMappingUnavailable}
	ErrExportFailed       = &Error{Kind: KindExportFailed}
	ErrCancelled          = &Error{Kind: KindCancelled}
	ErrInternal           = &Error{Kind: KindInternal}
)

// Error - типизированная ошибка приложения.
// Field указывает на поле или запись, вызвавшую ошибку (для validation/conflict).
type Error struct {
	Kind    Kind
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Field != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Field)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is сравнивает только категорию, поэтому errors.Is(err, ErrNotFound) работает для любой NotFound.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NotFound создает ошибку отсутствующей записи.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict создает ошибку нарушения уникальности.
func Conflict(field, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validation создает ошибку входных данных.
func Validation(field, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

// MappingUnavailable - провайдер карт недоступен, использована оценка.
func MappingUnavailable(err error) *Error {
	return &Error{Kind: KindMappingUnavailable, Message: "Kartendienst nicht erreichbar, Schätzwert verwendet", Err: err}
}

// ExportFailed - ошибка записи или заполнения документа.
func ExportFailed(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindExportFailed, Message: fmt.Sprintf(format, args...), Err: err}
}

// Cancelled - операция отменена до завершения.
func Cancelled(err error) *Error {
	return &Error{Kind: KindCancelled, Message: "Vorgang abgebrochen", Err: err}
}

// Internal - непредвиденное состояние.
func Internal(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf возвращает категорию ошибки; неизвестные ошибки считаются внутренними.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// FieldOf возвращает поле, к которому относится ошибка, если оно известно.
func FieldOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}

// CheckError сопоставляет ошибку HTTP-статусу.
func CheckError(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindMappingUnavailable:
		return http.StatusOK
	case KindCancelled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
