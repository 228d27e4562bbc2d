package service

import (
	"strings"

	"github.com/google/uuid"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/pkg/apperror"
	"github.com/ignatzorin/crm-backend/internal/repository"
)

// Actor описывает пользователя, от имени которого выполняется операция.
type Actor struct {
	UserID uuid.UUID
	Role   string
}

// IsAdmin сообщает, что у пользователя роль администратора.
func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

// CanManage сообщает, что пользователь может менять настройки CRM.
func (a Actor) CanManage() bool {
	return a.Role == models.RoleAdmin || a.Role == models.RoleManager
}

// EventPublisher отправляет realtime-события пользователю.
type EventPublisher interface {
	BroadcastToUser(userID uuid.UUID, event string, data interface{}) error
}

// repoError переводит ошибку репозитория в AppError.
func repoError(err error, notFound *apperror.AppError) error {
	if err == nil {
		return nil
	}
	if _, ok := apperror.As(err); ok {
		return err
	}
	if repository.IsNotFound(err) {
		return notFound
	}
	return apperror.Internal(err)
}

// trimPtr обрезает пробелы и превращает пустую строку в nil.
func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func strPtr(s string) *string { return &s }

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
