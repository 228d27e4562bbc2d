package goroutine

import (
	"context"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/crm-backend/internal/logger"
)

// Logger интерфейс для логирования ошибок
type Logger interface {
	WithFields(fields logrus.Fields) *logrus.Entry
}

// RecoveryHandler обрабатывает panic в горутинах
type RecoveryHandler struct {
	logger Logger
}

// NewRecoveryHandler создает новый обработчик
func NewRecoveryHandler(logger Logger) *RecoveryHandler {
	return &RecoveryHandler{logger: logger}
}

// SafeGo запускает горутину с обработкой panic
func (rh *RecoveryHandler) SafeGo(name string, fn func()) {
	go func() {
		defer rh.recover(name)
		fn()
	}()
}

// SafeGoWithContext запускает горутину с контекстом и обработкой panic
func (rh *RecoveryHandler) SafeGoWithContext(ctx context.Context, name string, fn func(context.Context)) {
	go func() {
		defer rh.recover(name)
		fn(ctx)
	}()
}

// Recover перехватывает panic в уже запущенной горутине.
// Вызывается через defer.
func (rh *RecoveryHandler) Recover(name string) {
	if r := recover(); r != nil {
		rh.log(name, r)
	}
}

func (rh *RecoveryHandler) recover(name string) {
	if r := recover(); r != nil {
		rh.log(name, r)
	}
}

func (rh *RecoveryHandler) log(name string, r interface{}) {
	rh.logger.WithFields(logrus.Fields{
		"goroutine": name,
		"panic":     r,
		"stack":     string(debug.Stack()),
	}).Error("panic в горутине")
}

// sharedLogger берёт logger.Log при каждом вызове: logger.Init заменяет его после старта.
type sharedLogger struct{}

func (sharedLogger) WithFields(fields logrus.Fields) *logrus.Entry {
	return logger.Log.WithFields(fields)
}

// DefaultRecoveryHandler - глобальный обработчик, пишущий в общий логгер
var DefaultRecoveryHandler = NewRecoveryHandler(sharedLogger{})

// SafeGo - упрощенная функция для запуска безопасной горутины
func SafeGo(name string, fn func()) {
	DefaultRecoveryHandler.SafeGo(name, fn)
}

// SafeGoWithContext - упрощенная функция для запуска безопасной горутины с контекстом
func SafeGoWithContext(ctx context.Context, name string, fn func(context.Context)) {
	DefaultRecoveryHandler.SafeGoWithContext(ctx, name, fn)
}
