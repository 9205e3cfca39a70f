package models

import (
	"fmt"
	"time"
)

// Notification представляет уведомление о событии для оператора
type Notification struct {
	ID        int                    `json:"id" db:"id"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	Type      string                 `json:"type" db:"type"`         // FILL, REJECT, LOCKOUT, PANIC, UNLOCK, ERROR
	Severity  string                 `json:"severity" db:"severity"` // info, warn, error
	Exchange  string                 `json:"exchange,omitempty" db:"exchange"`
	Message   string                 `json:"message" db:"message"`
	Meta      map[string]interface{} `json:"meta,omitempty" db:"meta"` // дополнительные данные (JSON в БД)
}

// Типы уведомлений
const (
	NotificationTypeFill    = "FILL"    // ордер исполнен
	NotificationTypeReject  = "REJECT"  // ордер отклонён пайплайном
	NotificationTypeLockout = "LOCKOUT" // сработал дневной лимит просадки
	NotificationTypePanic   = "PANIC"   // ручная паника, ордера блокированы
	NotificationTypeUnlock  = "UNLOCK"  // блокировка снята
	NotificationTypeError   = "ERROR"   // ошибка API/адаптера
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// NewNotification создает уведомление с форматированным сообщением
func NewNotification(ntype, severity, exchange, format string, args ...interface{}) *Notification {
	return &Notification{
		Timestamp: time.Now(),
		Type:      ntype,
		Severity:  severity,
		Exchange:  exchange,
		Message:   fmt.Sprintf(format, args...),
	}
}
