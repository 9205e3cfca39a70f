package utils

import (
	"testing"
	"time"
)

func TestDayStartFrom(t *testing.T) {
	moment := time.Date(2024, 3, 15, 14, 30, 45, 123, time.UTC)
	start := DayStartFrom(moment)

	expected := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if !start.Equal(expected) {
		t.Errorf("expected %v, got %v", expected, start)
	}
}

func TestDayStartFromConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	// 02:00 по UTC+5 - это 21:00 предыдущего дня по UTC
	moment := time.Date(2024, 3, 15, 2, 0, 0, 0, loc)

	start := DayStartFrom(moment)
	expected := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	if !start.Equal(expected) {
		t.Errorf("expected %v, got %v", expected, start)
	}
}

func TestSameDay(t *testing.T) {
	a := time.Date(2024, 3, 15, 0, 0, 1, 0, time.UTC)
	b := time.Date(2024, 3, 15, 23, 59, 59, 0, time.UTC)
	c := time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)

	if !SameDay(a, b) {
		t.Error("moments within one UTC day must match")
	}
	if SameDay(b, c) {
		t.Error("midnight starts a new day")
	}
}
