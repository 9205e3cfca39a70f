package utils

import (
	"time"
)

// time.go - утилиты для работы с границами торгового дня
//
// Дневная просадка и счётчики сделок привязаны к UTC-дню:
// в полночь UTC аккумуляторы риска начинаются заново.

// DayStart возвращает начало текущего дня (00:00:00) в UTC
func DayStart() time.Time {
	return DayStartFrom(time.Now().UTC())
}

// DayStartFrom возвращает начало дня для указанного времени в UTC
func DayStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay возвращает true если оба момента попадают в один UTC-день
func SameDay(a, b time.Time) bool {
	return DayStartFrom(a).Equal(DayStartFrom(b))
}
