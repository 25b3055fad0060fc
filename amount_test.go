package main

import (
	"math"
	"testing"

	"github.com/juju/errors"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{7, "7"},
		{999, "999"},
		{999.9, "999"},
		{1000, "1K"},
		{1500, "1.5K"},
		{1e6, "1M"},
		{1234567, "1.23M"},
		{2.5e9, "2.5B"},
		{1e12, "1T"},
		{3e15, "3Qa"},
		{4.2e18, "4.2Qi"},
		{1e21, "1Sx"},
		{1e24, "1Sp"},
		{2.5e27, "2.5Oc"},
		{math.NaN(), "0"},
	}
	for _, tt := range tests {
		if got := FormatAmount(tt.in); got != tt.want {
			t.Errorf("FormatAmount(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"1K", 1000},
		{"1k", 1000},
		{"2.5m", 2.5e6},
		{"1,500", 1500},
		{" 3Qa ", 3e15},
		{"10", 10},
		{"4 b", 4e9},
		{"1oc", 1e27},
		{"5xyz", 5},
		{"0", 0},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if err != nil {
			t.Errorf("ParseAmount(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAmount(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseAmountRejectsMalformedInput(t *testing.T) {
	for _, in := range []string{"abc", "", "   ", "-5", ".", "1..2", "1e5", "K1"} {
		if _, err := ParseAmount(in); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("ParseAmount(%q) error = %v, want ErrInvalidAmount", in, err)
		}
	}
}

func TestFormatThenParseStaysClose(t *testing.T) {
	for _, v := range []float64{1500, 2.5e6, 7e12, 1.25e15} {
		back, err := ParseAmount(FormatAmount(v))
		if err != nil {
			t.Fatalf("ParseAmount(FormatAmount(%v)): %v", v, err)
		}
		if math.Abs(back-v)/v > 0.01 {
			t.Errorf("round trip of %v gave %v", v, back)
		}
	}
}
