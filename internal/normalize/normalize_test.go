package normalize

import (
	"encoding/json"
	"testing"
)

func TestExtractNumber(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  float64
		ok    bool
	}{
		{"Nil", nil, 0, false},
		{"Float", 20000.0, 20000, true},
		{"Int", 36, 36, true},
		{"JSONNumber", json.Number("1500.75"), 1500.75, true},
		{"PlainString", "36", 36, true},
		{"ThousandsSeparators", "Rs. 1,25,000 per month", 125000, true},
		{"Decimal", "EMI of 18,450.50 payable monthly", 18450.50, true},
		{"FirstMatchOnly", "36 months, 15000 km", 36, true},
		{"PercentString", "12.5%", 12.5, true},
		{"NoDigits", "not specified", 0, false},
		{"Empty", "", 0, false},
		{"Bool", true, 0, false},
		{"Negative", -250.0, 250, true},
		{"TrailingDot", "48. months", 48, true},
		{"Nested", map[string]any{"amount": 900}, 900, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractNumber(tt.input)
			if ok != tt.ok {
				t.Fatalf("ExtractNumber(%v) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("ExtractNumber(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestExtractPercentage(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  float64
		ok    bool
	}{
		{"Nil", nil, 0, false},
		{"Whole", "65%", 65, true},
		{"Embedded", "Residual value fixed at 48% of ex-showroom price", 48, true},
		{"ThreeDigits", "100%", 100, true},
		{"FractionalNotMatched", "12.5%", 0, false},
		{"FractionalThenWhole", "12.5% or 40%", 40, true},
		{"FourDigitsNotMatched", "1234%", 0, false},
		{"NoPercentSign", "65", 0, false},
		{"SpaceBeforeSign", "65 %", 0, false},
		{"BareNumber", 0.65, 0, false},
		{"Zero", "0%", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractPercentage(tt.input)
			if ok != tt.ok {
				t.Fatalf("ExtractPercentage(%v) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("ExtractPercentage(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestExtractCurrency(t *testing.T) {
	inputs := []any{nil, "$ 4,500", 4500.0, "none"}
	for _, in := range inputs {
		gotN, okN := ExtractNumber(in)
		gotC, okC := ExtractCurrency(in)
		if gotN != gotC || okN != okC {
			t.Errorf("ExtractCurrency(%v) = (%v, %v), ExtractNumber = (%v, %v)", in, gotC, okC, gotN, okN)
		}
	}
}
