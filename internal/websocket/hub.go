package websocket

import (
	"bytes"
	"log"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"tradegate/internal/models"
	"tradegate/internal/risk"
)

// json сериализует все кадры hub'а; совместим с encoding/json по тегам.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Пул JSON буферов убирает аллокации при каждом Broadcast

var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// Hub управляет всеми активными WebSocket соединениями
//
// Центральный менеджер для broadcast сообщений всем подключенным
// клиентам: смены статусов ордеров, состояние риск-гарда и уведомления
// уходят на frontend без polling.
//
// Использование:
// 1. Создать hub: hub := NewHub()
// 2. Запустить в горутине: go hub.Run()
// 3. Отправлять сообщения: hub.Broadcast(message)
type Hub struct {
	// Зарегистрированные клиенты
	clients map[*Client]bool

	// Broadcast канал для отправки сообщений всем клиентам
	broadcast chan []byte

	// Регистрация нового клиента
	register chan *Client

	// Отмена регистрации клиента
	unregister chan *Client

	// Остановка главного цикла
	done chan struct{}

	// Счетчик сообщений, отброшенных при переполнении broadcast канала
	dropped int64

	mu sync.RWMutex
}

// NewHub создает новый Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run запускает главный цикл Hub
//
// Должен запускаться в отдельной горутине: go hub.Run()
// Обрабатывает регистрацию, отмену регистрации и broadcast.
//
// Отправка идет без удержания Lock: список клиентов копируется под
// коротким RLock, медленные клиенты помечаются и удаляются отдельно
// под Write Lock - register/unregister не блокируются рассылкой.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("Client connected. Total clients: %d", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("Client disconnected. Total clients: %d", len(h.clients))

		case message := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					// Клиент не успевает обрабатывать сообщения
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				h.mu.Unlock()
				log.Printf("Removed %d slow clients. Total clients: %d", len(toRemove), len(h.clients))
			}
		}
	}
}

// Broadcast отправляет сообщение всем подключенным клиентам.
// Использует sync.Pool для буферов сериализации.
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		log.Printf("Error marshaling broadcast message: %v", err)
		jsonBufferPool.Put(buf)
		return
	}

	// Убираем trailing newline от Encode
	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	// Копируем данные, буфер вернется в пул
	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)

	jsonBufferPool.Put(buf)

	// Переполненный broadcast канал не должен блокировать конвейер:
	// сообщение отбрасывается, счетчик растет
	select {
	case h.broadcast <- msgCopy:
	default:
		atomic.AddInt64(&h.dropped, 1)
	}
}

// Stop останавливает главный цикл и отключает всех клиентов
func (h *Hub) Stop() {
	close(h.done)
}

// DroppedMessages возвращает число сообщений, отброшенных из-за
// переполнения broadcast канала
func (h *Hub) DroppedMessages() int64 {
	return atomic.LoadInt64(&h.dropped)
}

// BroadcastOrderUpdate отправляет смену статуса ордера
func (h *Hub) BroadcastOrderUpdate(order *models.OrderRecord) {
	h.Broadcast(NewOrderUpdateMessage(order))
}

// BroadcastNotification отправляет новое уведомление
func (h *Hub) BroadcastNotification(notif *models.Notification) {
	h.Broadcast(NewNotificationMessage(notif))
}

// BroadcastRiskUpdate отправляет состояние риск-гарда
func (h *Hub) BroadcastRiskUpdate(status risk.Status) {
	h.Broadcast(NewRiskUpdateMessage(status))
}

// ConsumeNotifications читает уведомления конвейера и транслирует их
// подключенным клиентам. Завершается при закрытии канала.
//
// Запускается в отдельной горутине:
//
//	ch := make(chan *models.Notification, 64)
//	router.SetNotifications(ch)
//	go hub.ConsumeNotifications(ch)
func (h *Hub) ConsumeNotifications(ch <-chan *models.Notification) {
	for notif := range ch {
		h.BroadcastNotification(notif)
	}
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
