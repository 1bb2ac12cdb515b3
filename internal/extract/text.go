package extract

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"supplyrecon/internal"
	"supplyrecon/internal/util"
)

var (
	spaceRun      = regexp.MustCompile(`\s+`)
	amountPattern = regexp.MustCompile(`\d{1,3}(?:[ .,]\d{3})+(?:[.,]\d+)?|\d+(?:[.,]\d+)?`)

	// "Молоко 2,5% 1л 10 шт x 25,00 = 250,00"
	multipliedLine = regexp.MustCompile(`^(.*?\p{L}.*?)\s+(\d+(?:[.,]\d+)?)\s*(\p{L}{1,5}\.?)?\s*[xх×*]\s*(\d+(?:[.,]\d+)?)(?:\s*=\s*(\d[\d\s]*(?:[.,]\d+)?))?`)
	// "Цукор 5 кг 32,50 162,50"
	unitPriceLine = regexp.MustCompile(`^(.*?\p{L}.*?)\s+(\d+(?:[.,]\d+)?)\s*(шт|штук|pcs|pc|кг|kg|г|g|л|l|мл|ml|уп|пач|бут|ящ)\.?\s+(\d+(?:[.,]\d+)?)(?:\s+(\d[\d\s]*(?:[.,]\d+)?))?$`)

	supplierLine = regexp.MustCompile(`(?i)^(?:постачальник|поставщик|продавець|продавец|supplier|vendor|seller)\s*[:\-–]?\s*(.+)$`)
	numberLine   = regexp.MustCompile(`(?i)(?:накладн\p{L}*|рахун\p{L}*|сч[её]т\p{L}*|invoice|номер)\s*(?:number|no\.?|nr\.?|№|#)?\s*[:\-]?\s*([\p{L}\d][\p{L}\d\-/]*)`)
	isoDate      = regexp.MustCompile(`(\d{4})[-./](\d{1,2})[-./](\d{1,2})`)
	dottedDate   = regexp.MustCompile(`(\d{1,2})[./](\d{1,2})[./](\d{4})`)

	ignorePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^--+$`),
		regexp.MustCompile(`(?i)^(?:дякуємо|спасибо|thank)`),
		regexp.MustCompile(`(?i)^(?:з повагою|с уважением|regards)`),
		regexp.MustCompile(`(?i)^тел[:\s.]`),
		regexp.MustCompile(`(?i)^e-?mail[:\s]`),
		regexp.MustCompile(`(?i)^http`),
	}
)

var (
	subtotalLabels = []string{"subtotal", "разом без пдв", "сума без пдв", "всього без пдв", "итого без ндс", "всего без ндс"}
	taxLabels      = []string{"сума пдв", "у тому числі пдв", "в т.ч. пдв", "в том числе ндс", "в т.ч. ндс", "пдв", "ндс", "vat", "tax"}
	totalLabels    = []string{"сума до сплати", "до сплати", "разом", "всього", "усього", "итого", "всего", "total"}
)

// parseText reads free text: a delimited table when the lines look like one,
// "name qty x price" lines otherwise.
func parseText(text string) internal.DraftInvoice {
	lines := splitLines(text)
	delimited := 0
	for _, l := range lines {
		if strings.ContainsAny(l, "|;\t") {
			delimited++
		}
	}
	if delimited >= 2 {
		rows := make([][]string, 0, len(lines))
		for _, l := range lines {
			rows = append(rows, splitDelimited(l))
		}
		if d := tableDraft(rows); len(d.Items) > 0 {
			return d
		}
	}

	var (
		draft internal.DraftInvoice
		meta  metaScan
	)
	for _, l := range lines {
		if isLikelyNoise(l) {
			continue
		}
		if it, ok := lineItem(l); ok {
			draft.Items = append(draft.Items, it)
			continue
		}
		meta.line(l)
	}
	meta.apply(&draft)
	return draft
}

func lineItem(line string) (internal.LineItem, bool) {
	if isFooter(line) {
		return internal.LineItem{}, false
	}
	m := multipliedLine.FindStringSubmatch(line)
	if m == nil {
		m = unitPriceLine.FindStringSubmatch(line)
	}
	if m == nil {
		return internal.LineItem{}, false
	}
	qty, ok := util.ParseDecimal(m[2])
	if !ok {
		return internal.LineItem{}, false
	}
	price, _ := util.ParseDecimal(m[4])
	item := internal.LineItem{Name: normalizeSpaces(m[1]), Quantity: qty, UnitPrice: price}
	if m[3] != "" {
		u := util.NormalizeUnit(m[3])
		item.UnitOfMeasure = &u
	}
	if m[5] != "" {
		if total, ok := util.ParseDecimal(m[5]); ok {
			item.LineTotal = &total
		}
	}
	return item, true
}

// metaScan collects invoice header fields from lines that are not items.
// The first value seen for a field wins.
type metaScan struct {
	supplier string
	number   *string
	date     *string
	currency string
	subtotal *decimal.Decimal
	tax      *decimal.Decimal
	total    *decimal.Decimal
}

func (m *metaScan) line(line string) {
	line = normalizeSpaces(line)
	if line == "" {
		return
	}
	lower := strings.ToLower(line)

	if m.supplier == "" {
		if g := supplierLine.FindStringSubmatch(line); g != nil {
			m.supplier = strings.Trim(g[1], " :;,")
		}
	}
	if m.number == nil {
		if g := numberLine.FindStringSubmatch(line); g != nil && strings.ContainsAny(g[1], "0123456789") {
			n := g[1]
			m.number = &n
		}
	}
	if m.date == nil {
		if d, ok := findDate(line); ok {
			m.date = &d
		}
	}
	if m.currency == "" {
		m.currency = detectCurrency(lower)
	}

	switch {
	case hasLabel(lower, subtotalLabels):
		setOnce(&m.subtotal, lastAmount(line))
	case hasLabel(lower, taxLabels):
		setOnce(&m.tax, lastAmount(line))
	case hasLabel(lower, totalLabels):
		setOnce(&m.total, lastAmount(line))
	}
}

func (m *metaScan) apply(d *internal.DraftInvoice) {
	if d.SupplierName == "" {
		d.SupplierName = m.supplier
	}
	if d.InvoiceNumber == nil {
		d.InvoiceNumber = m.number
	}
	if d.InvoiceDate == nil {
		d.InvoiceDate = m.date
	}
	if d.Currency == "" {
		d.Currency = m.currency
	}
	if d.DeclaredSubtotal == nil {
		d.DeclaredSubtotal = m.subtotal
	}
	if d.DeclaredTax == nil {
		d.DeclaredTax = m.tax
	}
	if d.DeclaredTotal == nil {
		d.DeclaredTotal = m.total
	}
}

func setOnce(dst **decimal.Decimal, v *decimal.Decimal) {
	if *dst == nil && v != nil {
		*dst = v
	}
}

func lastAmount(line string) *decimal.Decimal {
	all := amountPattern.FindAllString(line, -1)
	if len(all) == 0 {
		return nil
	}
	d, ok := util.ParseDecimal(all[len(all)-1])
	if !ok {
		return nil
	}
	return &d
}

// findDate returns the first date in the line as YYYY-MM-DD.
func findDate(line string) (string, bool) {
	if g := isoDate.FindStringSubmatch(line); g != nil {
		return formatDate(g[1], g[2], g[3])
	}
	if g := dottedDate.FindStringSubmatch(line); g != nil {
		return formatDate(g[3], g[2], g[1])
	}
	return "", false
}

func formatDate(y, m, d string) (string, bool) {
	var year, month, day int
	if _, err := fmt.Sscanf(y+" "+m+" "+d, "%d %d %d", &year, &month, &day); err != nil {
		return "", false
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}

func detectCurrency(lower string) string {
	switch {
	case strings.Contains(lower, "uah") || strings.Contains(lower, "грн") || strings.Contains(lower, "₴"):
		return "UAH"
	case strings.Contains(lower, "usd") || strings.Contains(lower, "$"):
		return "USD"
	case strings.Contains(lower, "eur") || strings.Contains(lower, "€"):
		return "EUR"
	}
	return ""
}

// hasLabel reports whether the line starts with one of the labels as a
// whole word.
func hasLabel(lower string, labels []string) bool {
	for _, l := range labels {
		if !strings.HasPrefix(lower, l) {
			continue
		}
		rest := []rune(lower[len(l):])
		if len(rest) == 0 || !unicode.IsLetter(rest[0]) {
			return true
		}
	}
	return false
}

func isFooter(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	return hasLabel(lower, subtotalLabels) || hasLabel(lower, taxLabels) || hasLabel(lower, totalLabels)
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitDelimited(line string) []string {
	line = strings.NewReplacer(";", "|", "\t", "|").Replace(line)
	return strings.Split(line, "|")
}

func normalizeSpaces(input string) string {
	input = strings.ReplaceAll(input, "\u00A0", " ")
	return strings.TrimSpace(spaceRun.ReplaceAllString(input, " "))
}

func isLikelyNoise(line string) bool {
	for _, re := range ignorePatterns {
		if re.MatchString(strings.TrimSpace(line)) {
			return true
		}
	}
	return false
}
