package extract

import (
	"strings"

	"github.com/shopspring/decimal"

	"supplyrecon/internal"
	"supplyrecon/internal/util"
)

type field int

const (
	fieldBarcode field = iota
	fieldSKU
	fieldQty
	fieldPrice
	fieldTotal
	fieldTax
	fieldUnit
	fieldName
	fieldCount
)

// Probes in priority order: a header cell is claimed by the first field that
// matches, so "Ціна за од." is a price and "Код" is a SKU, not a unit.
var headerProbes = [fieldCount][]string{
	fieldBarcode: {"штрих", "barcode", "ean"},
	fieldSKU:     {"sku", "артикул", "код", "code"},
	fieldQty:     {"кільк", "к-сть", "кол", "qty", "quantity"},
	fieldPrice:   {"ціна", "цена", "price"},
	fieldTotal:   {"сума", "сумма", "total", "amount"},
	fieldTax:     {"пдв", "ндс", "vat", "tax"},
	fieldUnit:    {"од", "ед", "изм", "unit", "uom"},
	fieldName:    {"наимен", "найменув", "назв", "товар", "номенк", "позиц", "опис", "name", "product", "description"},
}

type columns [fieldCount]int

func (c columns) has(f field) bool { return c[f] >= 0 }

// inferColumns reads a header row. ok is false unless a name column and one
// of quantity or price were found.
func inferColumns(headers []string) (columns, bool) {
	var cols columns
	for i := range cols {
		cols[i] = -1
	}
	for i, h := range headers {
		h = strings.ToLower(h)
		if h == "" {
			continue
		}
		for f := field(0); f < fieldCount; f++ {
			if cols[f] >= 0 || !containsAny(h, headerProbes[f]) {
				continue
			}
			cols[f] = i
			break
		}
	}
	return cols, cols.has(fieldName) && (cols.has(fieldQty) || cols.has(fieldPrice))
}

// tableDraft scans rows for a header, treats everything above it as free
// text carrying invoice metadata, and reads line items below it.
func tableDraft(rows [][]string) internal.DraftInvoice {
	var (
		draft  internal.DraftInvoice
		meta   metaScan
		cols   columns
		header = -1
	)
	for i, row := range rows {
		cells := normalizeCells(row)
		if isBlank(cells) {
			continue
		}
		if header < 0 {
			if c, ok := inferColumns(cells); ok {
				cols, header = c, i
				continue
			}
			meta.line(strings.Join(nonEmpty(cells), " "))
			continue
		}

		if isFooter(strings.Join(nonEmpty(cells), " ")) {
			meta.line(strings.Join(nonEmpty(cells), " "))
			continue
		}
		if item, ok := rowItem(cells, cols); ok {
			draft.Items = append(draft.Items, item)
			continue
		}
		meta.line(strings.Join(nonEmpty(cells), " "))
	}
	if header < 0 {
		// Headerless sheet: name, quantity, unit, price by position.
		cols = columns{-1, -1, 1, 3, -1, -1, 2, 0}
		meta = metaScan{}
		for _, row := range rows {
			cells := normalizeCells(row)
			if isBlank(cells) {
				continue
			}
			if item, ok := rowItem(cells, cols); ok {
				draft.Items = append(draft.Items, item)
				continue
			}
			meta.line(strings.Join(nonEmpty(cells), " "))
		}
	}
	meta.apply(&draft)
	return draft
}

func rowItem(cells []string, cols columns) (internal.LineItem, bool) {
	name := pickCell(cells, cols[fieldName], -1)
	if name == "" || !hasLetter(name) {
		return internal.LineItem{}, false
	}
	qtyCell := pickCell(cells, cols[fieldQty], -1)
	parsed := util.ParseQty(qtyCell)
	if parsed.Qty == nil {
		return internal.LineItem{}, false
	}

	item := internal.LineItem{Name: name, Quantity: *parsed.Qty, UnitOfMeasure: parsed.Unit}
	if unit := pickCell(cells, cols[fieldUnit], -1); unit != "" && hasLetter(unit) {
		u := util.NormalizeUnit(unit)
		item.UnitOfMeasure = &u
	}
	if sku := pickCell(cells, cols[fieldSKU], -1); sku != "" {
		item.SKU = &sku
	}
	if bar := pickCell(cells, cols[fieldBarcode], -1); bar != "" {
		item.Barcode = &bar
	}
	if tax, ok := parseAmount(pickCell(cells, cols[fieldTax], -1)); ok {
		item.TaxRate = &tax
	}
	total, hasTotal := parseAmount(pickCell(cells, cols[fieldTotal], -1))
	if hasTotal {
		item.LineTotal = &total
	}
	if price, ok := parseAmount(pickCell(cells, cols[fieldPrice], -1)); ok {
		item.UnitPrice = price
	} else if hasTotal && item.Quantity.IsPositive() {
		item.UnitPrice = total.DivRound(item.Quantity, 6)
	}
	return item, true
}

// parseAmount reads a money or percent cell: "1 250,00 грн", "20%", "₴15.5".
func parseAmount(cell string) (decimal.Decimal, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return decimal.Zero, false
	}
	m := amountPattern.FindString(normalizeSpaces(cell))
	if m == "" {
		return decimal.Zero, false
	}
	return util.ParseDecimal(m)
}

func containsAny(s string, probes []string) bool {
	for _, p := range probes {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func pickCell(cells []string, idx int, fallback int) string {
	if idx >= 0 && idx < len(cells) {
		return strings.TrimSpace(cells[idx])
	}
	if fallback >= 0 && fallback < len(cells) {
		return strings.TrimSpace(cells[fallback])
	}
	return ""
}

func normalizeCells(row []string) []string {
	out := make([]string, 0, len(row))
	for _, c := range row {
		out = append(out, normalizeSpaces(c))
	}
	return out
}

func nonEmpty(cells []string) []string {
	out := make([]string, 0, len(cells))
	for _, c := range cells {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func isBlank(cells []string) bool {
	return len(nonEmpty(cells)) == 0
}
