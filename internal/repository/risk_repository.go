package repository

import (
	"database/sql"
	"errors"
	"time"

	"tradegate/internal/risk"
)

// Ошибки репозитория риск-состояния
var (
	ErrRiskStateNotFound = errors.New("risk state not found")
)

// RiskRepository - персистентность состояния риск-гарда
//
// Состояние одно на процесс, поэтому таблица risk_state держит
// единственную строку (id = 1), заменяемую целиком при каждом
// сохранении. Блокировка и счётчики просадки переживают рестарт.
type RiskRepository struct {
	db *sql.DB
}

// NewRiskRepository создает новый экземпляр репозитория
func NewRiskRepository(db *sql.DB) *RiskRepository {
	return &RiskRepository{db: db}
}

// Save сохраняет снапшот состояния гарда
func (r *RiskRepository) Save(st risk.Status) error {
	query := `
		INSERT INTO risk_state (id, state, lock_reason, locked_at, seq_losses, trades_today, starting_equity, current_equity, daily_high, daily_low, day_start, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			lock_reason = EXCLUDED.lock_reason,
			locked_at = EXCLUDED.locked_at,
			seq_losses = EXCLUDED.seq_losses,
			trades_today = EXCLUDED.trades_today,
			starting_equity = EXCLUDED.starting_equity,
			current_equity = EXCLUDED.current_equity,
			daily_high = EXCLUDED.daily_high,
			daily_low = EXCLUDED.daily_low,
			day_start = EXCLUDED.day_start,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.Exec(
		query,
		st.State,
		st.LockReason,
		st.LockedAt,
		st.SeqLosses,
		st.TradesToday,
		st.StartingEquity,
		st.CurrentEquity,
		st.DailyHigh,
		st.DailyLow,
		st.DayStart,
		time.Now(),
	)

	return err
}

// Load восстанавливает последний сохранённый снапшот
func (r *RiskRepository) Load() (*risk.Status, error) {
	query := `
		SELECT state, lock_reason, locked_at, seq_losses, trades_today, starting_equity, current_equity, daily_high, daily_low, day_start
		FROM risk_state
		WHERE id = 1`

	st := &risk.Status{}
	var lockedAt sql.NullTime
	err := r.db.QueryRow(query).Scan(
		&st.State,
		&st.LockReason,
		&lockedAt,
		&st.SeqLosses,
		&st.TradesToday,
		&st.StartingEquity,
		&st.CurrentEquity,
		&st.DailyHigh,
		&st.DailyLow,
		&st.DayStart,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRiskStateNotFound
		}
		return nil, err
	}

	if lockedAt.Valid {
		st.LockedAt = &lockedAt.Time
	}

	return st, nil
}
