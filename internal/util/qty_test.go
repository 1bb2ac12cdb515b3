package util

import "testing"

func TestParseQty(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "thousand with space", input: "Молоко 2,5% 1 000 шт", want: "1000"},
		{name: "decimal comma", input: "Сир твердий 1,5 кг", want: "1.5"},
		{name: "decimal dot", input: "Сир твердий 1.5 кг", want: "1.5"},
		{name: "thousand dot", input: "Серветки 1.000 шт", want: "1000"},
		{name: "dimension and qty", input: "Пакет 30x40 см 100 шт", want: "100"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parsed := ParseQty(tc.input)
			if parsed.Qty == nil {
				t.Fatalf("qty is nil")
			}
			if parsed.Qty.String() != tc.want {
				t.Fatalf("got %v want %v", parsed.Qty.String(), tc.want)
			}
		})
	}
}

func TestParseDecimal(t *testing.T) {
	cases := map[string]string{
		"250.00":   "250",
		"1 234,50": "1234.5",
		"1.234,56": "1234.56",
		"1,234.56": "1234.56",
		"12,5":     "12.5",
	}
	for in, want := range cases {
		got, ok := ParseDecimal(in)
		if !ok {
			t.Fatalf("%q: not parsed", in)
		}
		if got.String() != want {
			t.Fatalf("%q: got %s want %s", in, got.String(), want)
		}
	}
	if _, ok := ParseDecimal("abc"); ok {
		t.Fatal("abc must not parse")
	}
}
