package utils

import (
	"math"
)

// math.go - математические утилиты для работы с шагами биржи
//
// Все функции являются чистыми (pure functions) без побочных эффектов.

// RoundToStep округляет значение ВНИЗ до ближайшего кратного step.
//
// Используется для округления объёма ордера до шага биржи (lot size).
// Округление вниз гарантирует, что мы не превысим запрошенный объём.
//
// Примеры:
//   - RoundToStep(0.123456, 0.001) = 0.123
//   - RoundToStep(1.999, 0.01) = 1.99
//
// Если step <= 0, возвращает исходное значение.
func RoundToStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	// 1e-9 компенсирует накопленную погрешность float64:
	// без неё 0.0005/0.0001 может дать 4.9999... и округлиться в 4 шага
	return math.Floor(value/step+1e-9) * step
}

// RoundToStepUp округляет значение ВВЕРХ до ближайшего кратного step.
//
// Используется когда нужно гарантировать минимум (например, min_notional).
func RoundToStepUp(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	return math.Ceil(value/step-1e-9) * step
}

// RoundToPrecision округляет значение до n знаков после запятой.
//
// Применяется к ценам с учётом price_precision биржи.
func RoundToPrecision(value float64, precision int) float64 {
	if precision < 0 {
		return value
	}
	factor := math.Pow(10, float64(precision))
	return math.Round(value*factor) / factor
}

// ApproxEqual сравнивает два float64 с допуском eps.
//
// Нужен в тестах и проверках кратности шагу: прямое сравнение
// результатов floating point арифметики ненадёжно.
func ApproxEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}
