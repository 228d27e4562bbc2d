package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/crm-backend/internal/logger"
	"github.com/ignatzorin/crm-backend/internal/pkg/apperror"
	"github.com/ignatzorin/crm-backend/internal/repository"
)

const internalErrorMessage = "внутренняя ошибка сервера"

// ErrorStatus переводит ошибку в HTTP статус и сообщение для клиента.
// Тексты драйверов и SQL наружу не попадают.
func ErrorStatus(err error) (int, string) {
	if appErr, ok := apperror.As(err); ok {
		return appErr.HTTPStatus, appErr.Message
	}
	if repository.IsNotFound(err) {
		return http.StatusNotFound, "ресурс не найден"
	}
	return http.StatusInternalServerError, internalErrorMessage
}

// LogError пишет ошибку запроса в лог. Ошибки клиента идут уровнем warn.
func LogError(c *gin.Context, status int, err error) {
	entry := logger.Log.WithFields(logrus.Fields{
		"error":  err.Error(),
		"path":   c.Request.URL.Path,
		"method": c.Request.Method,
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("request error")
		return
	}
	entry.Warn("request error")
}

// ErrorHandler обрабатывает ошибки, добавленные через c.Error, если
// обработчик сам не отправил ответ.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status, message := ErrorStatus(err)
		LogError(c, status, err)
		c.JSON(status, gin.H{"error": message})
	}
}
