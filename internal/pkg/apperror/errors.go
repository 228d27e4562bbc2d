package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest   ErrorCode = "BAD_REQUEST"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeUnavailable  ErrorCode = "UNAVAILABLE"
)

// AppError несёт код ошибки, сообщение для клиента и HTTP статус.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

// Validation - сокращение для ошибок валидации входных данных.
func Validation(format string, args ...any) *AppError {
	return New(ErrCodeValidation, fmt.Sprintf(format, args...))
}

// NotFound - сокращение для отсутствующих сущностей.
func NotFound(message string) *AppError {
	return New(ErrCodeNotFound, message)
}

// Conflict - сокращение для конфликтов состояния.
func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message)
}

// Internal оборачивает неожиданную ошибку инфраструктуры.
func Internal(err error) *AppError {
	return Wrap(err, ErrCodeInternal, "внутренняя ошибка сервера")
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// As извлекает AppError из цепочки ошибок.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func IsNotFound(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == ErrCodeNotFound
}

func IsForbidden(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == ErrCodeForbidden
}

func IsValidation(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == ErrCodeValidation
}

func IsConflict(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == ErrCodeConflict
}

var (
	ErrContactNotFound     = New(ErrCodeNotFound, "контакт не найден")
	ErrDealNotFound        = New(ErrCodeNotFound, "сделка не найдена")
	ErrStageNotFound       = New(ErrCodeNotFound, "этап воронки не найден")
	ErrActivityNotFound    = New(ErrCodeNotFound, "активность не найдена")
	ErrProposalNotFound    = New(ErrCodeNotFound, "предложение не найдено")
	ErrListNotFound        = New(ErrCodeNotFound, "список рассылки не найден")
	ErrCampaignNotFound    = New(ErrCodeNotFound, "кампания не найдена")
	ErrAppointmentNotFound = New(ErrCodeNotFound, "встреча не найдена")
	ErrFieldNotFound       = New(ErrCodeNotFound, "поле не найдено")
	ErrUserNotFound        = New(ErrCodeNotFound, "пользователь не найден")
	ErrAttachmentNotFound  = New(ErrCodeNotFound, "файл не найден")
	ErrUnauthorized        = New(ErrCodeUnauthorized, "требуется авторизация")
	ErrForbidden           = New(ErrCodeForbidden, "недостаточно прав")
	ErrInvalidCredentials  = New(ErrCodeUnauthorized, "неверные учетные данные")
)
