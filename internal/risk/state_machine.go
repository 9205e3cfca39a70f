package risk

// Состояния риск-гарда
const (
	StateOpen   = "OPEN"   // торговля разрешена в пределах лимитов
	StateLocked = "LOCKED" // все ордера блокируются
)

// Причины блокировки
const (
	ReasonManualPanic   = "manual_panic"
	ReasonDailyDrawdown = "daily_drawdown"
	ReasonSeqLosses     = "seq_losses"
)

// ValidTransitions определяет допустимые переходы между состояниями
var ValidTransitions = map[string][]string{
	StateOpen:   {StateLocked},
	StateLocked: {StateOpen}, // явный unlock или истечение TTL
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// StateInfo возвращает описание состояния для UI
func StateInfo(s string) string {
	switch s {
	case StateOpen:
		return "Торговля разрешена (действуют дневные лимиты)"
	case StateLocked:
		return "Торговля заблокирована! Требуется unlock или истечение TTL"
	default:
		return "Неизвестное состояние"
	}
}

// ReasonInfo возвращает описание причины блокировки для UI
func ReasonInfo(r string) string {
	switch r {
	case ReasonManualPanic:
		return "Ручная экстренная остановка"
	case ReasonDailyDrawdown:
		return "Превышена дневная просадка"
	case ReasonSeqLosses:
		return "Серия убыточных сделок подряд"
	default:
		return "Неизвестная причина"
	}
}
