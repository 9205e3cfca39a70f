package repository

import (
	"database/sql"
	"errors"
	"time"

	"tradegate/internal/models"
)

// Ошибки репозитория ордеров
var (
	ErrOrderNotFound = errors.New("order not found")
)

// OrderRepository - работа с таблицей orders
//
// Таблица держит уникальный индекс по idempotency_key: именно база,
// а не память процесса, гарантирует "не более одной записи на ключ"
// при рестартах и нескольких инстансах.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateIfAbsent создает запись, если ключа ещё нет.
//
// Возвращает (true, nil) если запись создана этим вызовом и
// (false, nil) если ключ уже существует - проигравший гонку вызов
// читает существующую запись через GetByKey.
func (r *OrderRepository) CreateIfAbsent(order *models.OrderRecord) (bool, error) {
	query := `
		INSERT INTO orders (idempotency_key, exchange, symbol, side, quantity, status, exchange_order_id, error_message, created_at, filled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id`

	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}

	err := r.db.QueryRow(
		query,
		order.IdempotencyKey,
		order.Exchange,
		order.Symbol,
		order.Side,
		order.Quantity,
		order.Status,
		order.ExchangeOrderID,
		order.ErrorMessage,
		order.CreatedAt,
		order.FilledAt,
	).Scan(&order.ID)

	if err != nil {
		// DO NOTHING при конфликте не возвращает строк
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// GetByKey возвращает ордер по ключу идемпотентности
func (r *OrderRepository) GetByKey(key string) (*models.OrderRecord, error) {
	query := `
		SELECT id, idempotency_key, exchange, symbol, side, quantity, status, exchange_order_id, error_message, created_at, filled_at
		FROM orders
		WHERE idempotency_key = $1`

	order := &models.OrderRecord{}
	err := r.db.QueryRow(query, key).Scan(
		&order.ID,
		&order.IdempotencyKey,
		&order.Exchange,
		&order.Symbol,
		&order.Side,
		&order.Quantity,
		&order.Status,
		&order.ExchangeOrderID,
		&order.ErrorMessage,
		&order.CreatedAt,
		&order.FilledAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	return order, nil
}

// UpdateStatus обновляет статус ордера и связанные поля.
// filledAt передаётся nil если момент исполнения неизвестен.
func (r *OrderRepository) UpdateStatus(key, status, exchangeOrderID, errorMessage string, filledAt *time.Time) error {
	query := `
		UPDATE orders
		SET status = $2, exchange_order_id = $3, error_message = $4, filled_at = $5
		WHERE idempotency_key = $1`

	result, err := r.db.Exec(query, key, status, exchangeOrderID, errorMessage, filledAt)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// GetRecent возвращает последние ордера (для API и UI)
func (r *OrderRepository) GetRecent(limit int) ([]*models.OrderRecord, error) {
	query := `
		SELECT id, idempotency_key, exchange, symbol, side, quantity, status, exchange_order_id, error_message, created_at, filled_at
		FROM orders
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOrders(rows)
}

// GetPending возвращает ордера с неизвестным исходом для внешней
// сверки с биржей (таймауты адаптера оставляют статус pending)
func (r *OrderRepository) GetPending() ([]*models.OrderRecord, error) {
	query := `
		SELECT id, idempotency_key, exchange, symbol, side, quantity, status, exchange_order_id, error_message, created_at, filled_at
		FROM orders
		WHERE status = $1
		ORDER BY created_at ASC`

	rows, err := r.db.Query(query, models.OrderStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOrders(rows)
}

// CountByStatus возвращает количество ордеров в каждом статусе
func (r *OrderRepository) CountByStatus() (map[string]int, error) {
	query := `
		SELECT status, COUNT(*)
		FROM orders
		GROUP BY status`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}

	return counts, rows.Err()
}

func scanOrders(rows *sql.Rows) ([]*models.OrderRecord, error) {
	var orders []*models.OrderRecord
	for rows.Next() {
		order := &models.OrderRecord{}
		err := rows.Scan(
			&order.ID,
			&order.IdempotencyKey,
			&order.Exchange,
			&order.Symbol,
			&order.Side,
			&order.Quantity,
			&order.Status,
			&order.ExchangeOrderID,
			&order.ErrorMessage,
			&order.CreatedAt,
			&order.FilledAt,
		)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}
