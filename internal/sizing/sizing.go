// Package sizing нормализует объём ордера под правила рынка биржи.
//
// Все функции чистые: правила рынка приходят аргументом, сетевых
// вызовов нет. Ошибки - типизированные *models.Reject, чтобы роутер
// и API могли отличить below_min_qty от min_notional_unreachable.
package sizing

import (
	"math"

	"tradegate/internal/models"
	"tradegate/pkg/utils"
)

// maxRaiseFactor ограничивает повышение объёма ради min_notional:
// поднять запрошенные 0.0003 до шага 0.001 разумно, раздуть 0.00001
// в сто раз - нет. Сверх этого предела повышение считается
// недостижимым и ордер отклоняется.
const maxRaiseFactor = 10.0

// RoundQtyStrict округляет объём вниз до шага рынка.
//
// Возвращает BelowMinQty если округлённый объём меньше min_qty.
func RoundQtyStrict(rule *models.MarketRule, qty float64) (float64, error) {
	rounded := utils.RoundToStep(qty, rule.StepSize)
	if rounded < rule.MinQty {
		return 0, models.NewReject(models.KindBelowMinQty,
			"qty %g rounds to %g, below min_qty %g for %s", qty, rounded, rule.MinQty, rule.Symbol)
	}
	return rounded, nil
}

// EnforceMinNotional гарантирует минимальную сумму сделки.
//
// Если qty*refPrice уже покрывает min_notional, объём возвращается
// как есть. Иначе объём поднимается до наименьшего кратного шагу
// значения, которое покрывает минимум. MinNotionalUnreachable
// возвращается когда ни одно значение не удовлетворяет min_notional
// и min_qty одновременно (противоречивые минимумы биржи) или когда
// справочная цена отсутствует.
func EnforceMinNotional(rule *models.MarketRule, qty, refPrice float64) (float64, error) {
	if rule.MinNotional <= 0 {
		return qty, nil
	}
	if refPrice <= 0 {
		return 0, models.NewReject(models.KindMinNotionalUnreachable,
			"no reference price to check min_notional for %s", rule.Symbol)
	}
	if qty*refPrice >= rule.MinNotional {
		return qty, nil
	}

	// Наименьший кратный шагу объём, покрывающий min_notional
	raised := utils.RoundToStepUp(rule.MinNotional/refPrice, rule.StepSize)
	if raised < rule.MinQty || raised*refPrice < rule.MinNotional {
		return 0, models.NewReject(models.KindMinNotionalUnreachable,
			"no step-aligned qty satisfies min_notional %g and min_qty %g for %s",
			rule.MinNotional, rule.MinQty, rule.Symbol)
	}
	return raised, nil
}

// Normalize прогоняет объём через полный sizing-конвейер роутера:
// округление вниз до шага, затем подъём до min_notional.
//
// Подъём допускает спасение объёма, округлившегося ниже min_qty,
// но только в пределах maxRaiseFactor от запрошенного: иначе мелкая
// опечатка превращалась бы в ордер на порядки крупнее задуманного.
func Normalize(rule *models.MarketRule, qty, refPrice float64) (float64, error) {
	rounded := utils.RoundToStep(qty, rule.StepSize)

	if rule.MinNotional > 0 && refPrice > 0 && rounded*refPrice < rule.MinNotional {
		raised, err := EnforceMinNotional(rule, rounded, refPrice)
		if err == nil && raised <= qty*maxRaiseFactor {
			return raised, nil
		}
		// Подъём невозможен или чрезмерен: если объём и так ниже
		// min_qty, это ошибка объёма, иначе - ошибка notional
		if rounded < rule.MinQty {
			return 0, models.NewReject(models.KindBelowMinQty,
				"qty %g rounds to %g, below min_qty %g for %s", qty, rounded, rule.MinQty, rule.Symbol)
		}
		if err != nil {
			return 0, err
		}
		return 0, models.NewReject(models.KindMinNotionalUnreachable,
			"raising qty %g to %g for min_notional %g exceeds the sane bound for %s",
			qty, raised, rule.MinNotional, rule.Symbol)
	}

	if rounded < rule.MinQty {
		return 0, models.NewReject(models.KindBelowMinQty,
			"qty %g rounds to %g, below min_qty %g for %s", qty, rounded, rule.MinQty, rule.Symbol)
	}
	return rounded, nil
}

// SizeFromRisk вычисляет объём позиции из суммы риска и стопа.
//
// Объём = risk / |entry - stop|, округлённый вниз до шага.
// Возвращает 0 если вход некорректен или результат не проходит
// минимумы рынка - вызывающий трактует 0 как "позиция не открывается".
func SizeFromRisk(rule *models.MarketRule, riskAmount, entry, stop float64) float64 {
	if entry <= 0 || stop <= 0 || entry == stop {
		return 0
	}
	if riskAmount < rule.MinNotional {
		return 0
	}

	raw := math.Abs(riskAmount / (entry - stop))
	stepped := utils.RoundToStep(raw, rule.StepSize)
	if stepped < rule.MinQty || stepped*entry < rule.MinNotional {
		return 0
	}
	return stepped
}
