package websocket

import (
	"time"

	"tradegate/internal/models"
	"tradegate/internal/risk"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeOrderUpdate - смена статуса ордера
	// Отправляется при создании записи и при каждом изменении статуса
	MessageTypeOrderUpdate MessageType = "orderUpdate"

	// MessageTypeNotification - новое уведомление
	// Отправляется при событиях: FILL, REJECT, LOCKOUT, PANIC, UNLOCK, ERROR
	MessageTypeNotification MessageType = "notification"

	// MessageTypeRiskUpdate - смена состояния риск-гарда
	// Отправляется при блокировке, разблокировке и учете PnL
	MessageTypeRiskUpdate MessageType = "riskUpdate"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// OrderUpdateMessage - сообщение о смене статуса ордера
//
// Содержит запись ордера целиком: ключ идемпотентности, канонический
// символ, нормализованный объем и текущий статус. Frontend получает
// её при диспатче и при каждом переходе pending → filled/error.
type OrderUpdateMessage struct {
	BaseMessage
	Order *models.OrderRecord `json:"order"`
}

// NotificationMessage - сообщение о новом уведомлении
type NotificationMessage struct {
	BaseMessage
	Data *NotificationData `json:"data"`
}

// NotificationData - данные уведомления
type NotificationData struct {
	// Тип уведомления (FILL, REJECT, LOCKOUT, PANIC, UNLOCK, ERROR)
	Type string `json:"type"`

	// Уровень важности (info, warn, error)
	Severity string `json:"severity"`

	// Биржа, к которой относится событие (если применимо)
	Exchange string `json:"exchange,omitempty"`

	// Текст сообщения
	Message string `json:"message"`

	// Дополнительные метаданные (символ, объем, вид отказа и т.д.)
	Meta map[string]interface{} `json:"meta,omitempty"`

	// Время создания уведомления
	Timestamp time.Time `json:"timestamp"`
}

// RiskUpdateMessage - сообщение о смене состояния риск-гарда
//
// Отправляется после panic, unlock и учета реализованного PnL,
// чтобы frontend показывал блокировку без polling.
type RiskUpdateMessage struct {
	BaseMessage
	Data risk.Status `json:"data"`
}

// ============ Фабричные функции для создания сообщений ============

// NewOrderUpdateMessage создает сообщение обновления ордера
func NewOrderUpdateMessage(order *models.OrderRecord) *OrderUpdateMessage {
	return &OrderUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeOrderUpdate,
			Timestamp: time.Now(),
		},
		Order: order,
	}
}

// NewNotificationMessage создает сообщение уведомления
func NewNotificationMessage(notif *models.Notification) *NotificationMessage {
	return &NotificationMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeNotification,
			Timestamp: time.Now(),
		},
		Data: &NotificationData{
			Type:      notif.Type,
			Severity:  notif.Severity,
			Exchange:  notif.Exchange,
			Message:   notif.Message,
			Meta:      notif.Meta,
			Timestamp: notif.Timestamp,
		},
	}
}

// NewRiskUpdateMessage создает сообщение о состоянии риск-гарда
func NewRiskUpdateMessage(status risk.Status) *RiskUpdateMessage {
	return &RiskUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeRiskUpdate,
			Timestamp: time.Now(),
		},
		Data: status,
	}
}
