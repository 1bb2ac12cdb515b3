package util

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	withUnitPattern = regexp.MustCompile(`(?i)(?:^|[^0-9.,])(\d{1,3}(?:[\s.,]\d{3})+|\d+(?:[.,]\d+)?)\s*(шт|штук|pcs|pc|кг|kg|г|л|l|уп\.?|пач\.?|м\.?|компл\.?|ящ\.?|бут\.?)(?:$|[^\p{L}])`)
	numberPattern   = regexp.MustCompile(`(?i)(?:^|[^0-9.,])(\d{1,3}(?:[\s.,]\d{3})+|\d+(?:[.,]\d+)?)`)
	thousandsDot    = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
	thousandsComma  = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+$`)
	thousandsSpace  = regexp.MustCompile(`^\d{1,3}(?:\s\d{3})+(?:[.,]\d+)?$`)
)

type ParsedQty struct {
	Qty    *decimal.Decimal
	Unit   *string
	QtyRaw *string
}

// ParseQty finds the last quantity in a free-text line, preferring numbers
// that carry a unit suffix.
func ParseQty(input string) ParsedQty {
	line := strings.ReplaceAll(input, "\u00A0", " ")

	qtyRaw := ""
	qtyToken := ""
	unit := ""

	if wm := withUnitPattern.FindAllStringSubmatch(line, -1); len(wm) > 0 {
		last := wm[len(wm)-1]
		qtyRaw = strings.TrimSpace(last[1] + " " + last[2])
		qtyToken = strings.TrimSpace(last[1])
		unit = last[2]
	} else if nm := numberPattern.FindAllStringSubmatch(line, -1); len(nm) > 0 {
		last := nm[len(nm)-1]
		qtyRaw = strings.TrimSpace(last[1])
		qtyToken = strings.TrimSpace(last[1])
	}

	var out ParsedQty
	if qtyToken != "" {
		if d, ok := ParseDecimal(qtyToken); ok {
			out.Qty = &d
		}
	}
	if unit != "" {
		u := NormalizeUnit(unit)
		out.Unit = &u
	}
	if qtyRaw != "" {
		out.QtyRaw = &qtyRaw
	}
	return out
}

// ParseDecimal accepts "1 000,50", "1.000", "1,000", "12,5" and plain numbers.
func ParseDecimal(token string) (decimal.Decimal, bool) {
	norm := normalizeNumericToken(token)
	if norm == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(norm)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func NormalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	u = strings.TrimSuffix(u, ".")
	switch u {
	case "шт", "штук", "pcs", "pc":
		return "шт"
	case "kg", "кг":
		return "кг"
	case "l", "л":
		return "л"
	case "м", "метр":
		return "м"
	default:
		return u
	}
}

func normalizeNumericToken(token string) string {
	compact := strings.TrimSpace(strings.ReplaceAll(token, "\u00A0", " "))
	compact = strings.TrimPrefix(compact, "+")
	if thousandsSpace.MatchString(compact) {
		compact = strings.ReplaceAll(compact, " ", "")
	}
	compact = strings.ReplaceAll(compact, " ", "")
	if thousandsDot.MatchString(compact) && !strings.Contains(compact, ",") {
		return strings.ReplaceAll(compact, ".", "")
	}
	if thousandsComma.MatchString(compact) {
		return strings.ReplaceAll(compact, ",", "")
	}
	if strings.Contains(compact, ",") && strings.Contains(compact, ".") {
		// 1.234,56 or 1,234.56: the last separator is the decimal one.
		if strings.LastIndex(compact, ",") > strings.LastIndex(compact, ".") {
			compact = strings.ReplaceAll(compact, ".", "")
			return strings.ReplaceAll(compact, ",", ".")
		}
		return strings.ReplaceAll(compact, ",", "")
	}
	if strings.Contains(compact, ",") {
		return strings.ReplaceAll(compact, ",", ".")
	}
	return compact
}
