package api

import (
	"net/http"
	"net/http/pprof"

	"tradegate/internal/api/handlers"
	"tradegate/internal/api/middleware"
	"tradegate/internal/websocket"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Router    handlers.OrderRouterInterface
	Risk      handlers.RiskControllerInterface
	Orders    handlers.OrderReaderInterface
	Validator handlers.SymbolValidatorInterface
	Hub       *websocket.Hub

	// APITokenHash - bcrypt хеш токена для Bearer аутентификации.
	// Пустое значение отключает auth (локальное развертывание).
	APITokenHash string
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /orders/
//	│   ├── POST / - исполнить интент (идемпотентно)
//	│   ├── POST /preview - прогнать интент без диспатча
//	│   ├── GET / - последние ордера
//	│   ├── GET /pending - ордера с неизвестным исходом
//	│   └── GET /stats - счетчики по статусам
//	├── /risk/
//	│   ├── GET / - состояние риск-гарда
//	│   ├── POST /panic - блокировка + отмена всех ордеров
//	│   ├── POST /unlock - снятие блокировки
//	│   └── POST /fills - учет реализованного PnL
//	└── /symbols/
//	    ├── GET /{exchange}/{symbol} - проверка символа
//	    └── POST /{exchange}/refresh - обновление листинга
//
// /ws/stream - WebSocket для real-time обновлений
// /metrics - Prometheus метрики
// /health - health check
// /debug/pprof - профилировщик (за DebugAuth)
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. Auth (только для /api/v1, если задан APITokenHash)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	// Создание handlers с внедрением зависимостей
	var orderHandler *handlers.OrderHandler
	if deps != nil && deps.Router != nil && deps.Orders != nil {
		orderHandler = handlers.NewOrderHandler(deps.Router, deps.Orders)
	}

	var riskHandler *handlers.RiskHandler
	if deps != nil && deps.Risk != nil {
		riskHandler = handlers.NewRiskHandler(deps.Risk)
	}

	var symbolHandler *handlers.SymbolHandler
	if deps != nil && deps.Validator != nil {
		symbolHandler = handlers.NewSymbolHandler(deps.Validator)
	}

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	if deps != nil && deps.APITokenHash != "" {
		api.Use(middleware.Auth(deps.APITokenHash))
	}

	// Order routes
	if orderHandler != nil {
		api.HandleFunc("/orders", orderHandler.ExecuteOrder).Methods("POST")
		api.HandleFunc("/orders", orderHandler.GetOrders).Methods("GET")
		api.HandleFunc("/orders/preview", orderHandler.PreviewOrder).Methods("POST")
		api.HandleFunc("/orders/pending", orderHandler.GetPendingOrders).Methods("GET")
		api.HandleFunc("/orders/stats", orderHandler.GetOrderStats).Methods("GET")
	}

	// Risk routes
	if riskHandler != nil {
		api.HandleFunc("/risk", riskHandler.GetRiskStatus).Methods("GET")
		api.HandleFunc("/risk/panic", riskHandler.Panic).Methods("POST")
		api.HandleFunc("/risk/unlock", riskHandler.Unlock).Methods("POST")
		api.HandleFunc("/risk/fills", riskHandler.RecordFill).Methods("POST")
	}

	// Symbol routes
	if symbolHandler != nil {
		api.HandleFunc("/symbols/{exchange}/refresh", symbolHandler.RefreshListing).Methods("POST")
		api.HandleFunc("/symbols/{exchange}/{symbol}", symbolHandler.ValidateSymbol).Methods("GET")
	}

	// WebSocket route
	if deps != nil && deps.Hub != nil {
		hub := deps.Hub
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(hub, w, r)
		})
	}

	// Prometheus метрики
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// pprof за Basic Auth
	debug := router.PathPrefix("/debug/pprof").Subrouter()
	debug.Use(middleware.DebugAuth)
	debug.HandleFunc("", pprof.Index)
	debug.HandleFunc("/cmdline", pprof.Cmdline)
	debug.HandleFunc("/profile", pprof.Profile)
	debug.HandleFunc("/symbol", pprof.Symbol)
	debug.HandleFunc("/trace", pprof.Trace)
	debug.PathPrefix("/").HandlerFunc(pprof.Index)

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
