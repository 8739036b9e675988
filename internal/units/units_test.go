package units

import (
	"math/big"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw      string
		decimals uint8
		want     float64
	}{
		{"0", 18, 0},
		{"1000000000000000000", 18, 1},
		{"5000000000000000000", 18, 5},
		{"2500000", 6, 2.5},
		{"42", 0, 42},
		{"1", 2, 0.01},
	}
	for _, tt := range tests {
		raw, _ := new(big.Int).SetString(tt.raw, 10)
		if got := Normalize(raw, tt.decimals); got != tt.want {
			t.Errorf("Normalize(%s, %d) = %v, want %v", tt.raw, tt.decimals, got, tt.want)
		}
	}
}

func TestNormalizeNil(t *testing.T) {
	if got := Normalize(nil, 18); got != 0 {
		t.Errorf("Normalize(nil) = %v, want 0", got)
	}
}

func TestNormalizeMonotonic(t *testing.T) {
	for _, d := range []uint8{0, 6, 8, 18, 24} {
		prev := Normalize(big.NewInt(0), d)
		step := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(d/2)), nil)
		raw := big.NewInt(0)
		for i := 0; i < 200; i++ {
			raw = new(big.Int).Add(raw, step)
			got := Normalize(raw, d)
			if got < prev {
				t.Fatalf("decimals %d: Normalize(%s) = %v < previous %v", d, raw, got, prev)
			}
			prev = got
		}
	}
}

func TestNormalizeString(t *testing.T) {
	got, err := NormalizeString("2000000000000000000", 18)
	if err != nil {
		t.Fatalf("NormalizeString error: %v", err)
	}
	if got != 2 {
		t.Errorf("NormalizeString = %v, want 2", got)
	}

	if _, err := NormalizeString("not-a-number", 18); err == nil {
		t.Error("expected error for invalid amount")
	}
}

func TestDecimalsOr(t *testing.T) {
	if got := DecimalsOr(6, true); got != 6 {
		t.Errorf("DecimalsOr(6, true) = %d, want 6", got)
	}
	if got := DecimalsOr(6, false); got != DefaultDecimals {
		t.Errorf("DecimalsOr(6, false) = %d, want %d", got, DefaultDecimals)
	}
}
