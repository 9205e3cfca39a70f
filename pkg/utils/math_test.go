package utils

import "testing"

func TestRoundToStep(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		step     float64
		expected float64
	}{
		{"rounds down", 0.123456, 0.001, 0.123},
		{"exact multiple", 0.123, 0.001, 0.123},
		{"rounds to zero", 0.0003, 0.001, 0.0},
		{"tiny value", 0.00001, 0.001, 0.0},
		{"step larger than value", 0.5, 1.0, 0.0},
		{"zero step returns value", 0.123456, 0, 0.123456},
		{"negative step returns value", 0.123456, -1, 0.123456},
		{"float drift does not lose a step", 0.0005, 0.0001, 0.0005},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundToStep(tt.value, tt.step)
			if !ApproxEqual(got, tt.expected, 1e-12) {
				t.Errorf("RoundToStep(%v, %v) = %v, want %v", tt.value, tt.step, got, tt.expected)
			}
		})
	}
}

func TestRoundToStepUp(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		step     float64
		expected float64
	}{
		{"rounds up", 0.0003, 0.001, 0.001},
		{"exact multiple stays", 0.002, 0.001, 0.002},
		{"min notional boundary", 0.0005, 0.001, 0.001},
		{"zero step returns value", 0.5, 0, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundToStepUp(tt.value, tt.step)
			if !ApproxEqual(got, tt.expected, 1e-12) {
				t.Errorf("RoundToStepUp(%v, %v) = %v, want %v", tt.value, tt.step, got, tt.expected)
			}
		})
	}
}

func TestRoundToPrecision(t *testing.T) {
	if got := RoundToPrecision(30000.12345, 2); !ApproxEqual(got, 30000.12, 1e-9) {
		t.Errorf("expected 30000.12, got %v", got)
	}
	if got := RoundToPrecision(1.5, 0); !ApproxEqual(got, 2.0, 1e-9) {
		t.Errorf("expected 2.0, got %v", got)
	}
	if got := RoundToPrecision(1.23, -1); !ApproxEqual(got, 1.23, 1e-9) {
		t.Errorf("negative precision must return value unchanged, got %v", got)
	}
}
