// Package extract turns an uploaded invoice document into a DraftInvoice.
// Every format ends in the same normalization step, so the engine only ever
// sees trimmed names, decimal quantities and a currency.
package extract

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"supplyrecon/internal"
	"supplyrecon/internal/errx"
	"supplyrecon/internal/logx"
	"supplyrecon/internal/util"
)

type Options struct {
	DefaultCurrency string
	// UnitConversions maps a unit of measure to the factor that brings the
	// quantity to the catalog unit, e.g. "г" -> 0.001.
	UnitConversions map[string]float64
}

type Extractor struct {
	currency string
	units    map[string]decimal.Decimal
}

func New(opts Options) *Extractor {
	currency := strings.ToUpper(strings.TrimSpace(opts.DefaultCurrency))
	if currency == "" {
		currency = "UAH"
	}
	units := make(map[string]decimal.Decimal, len(opts.UnitConversions))
	for unit, factor := range opts.UnitConversions {
		key := unitKey(unit)
		if key == "" || factor <= 0 {
			continue
		}
		units[key] = decimal.NewFromFloat(factor)
	}
	return &Extractor{currency: currency, units: units}
}

func (x *Extractor) Extract(ctx context.Context, data []byte, kind internal.FileKind) (internal.DraftInvoice, error) {
	if err := ctx.Err(); err != nil {
		return internal.DraftInvoice{}, err
	}
	if len(data) == 0 {
		return internal.DraftInvoice{}, errx.New(errx.KindExtraction, "empty document")
	}

	draft, err := x.parse(data, kind)
	if err != nil {
		return internal.DraftInvoice{}, err
	}
	draft = x.finish(draft)
	if len(draft.Items) == 0 {
		return internal.DraftInvoice{}, errx.Newf(errx.KindExtraction, "no line items found in %s document", kind)
	}

	logx.Debug().
		Str("kind", string(kind)).
		Str("supplier", draft.SupplierName).
		Int("items", len(draft.Items)).
		Msg("document extracted")
	return draft, nil
}

func (x *Extractor) parse(data []byte, kind internal.FileKind) (internal.DraftInvoice, error) {
	var (
		draft internal.DraftInvoice
		err   error
	)
	switch kind {
	case internal.KindXLSX:
		draft, err = parseXLSX(data)
	case internal.KindCSV:
		draft, err = parseCSV(data)
	case internal.KindPDF:
		draft, err = parsePDF(data)
	case internal.KindHTML:
		draft, err = parseHTML(string(data))
	case internal.KindText:
		draft = parseText(string(data))
	case internal.KindJSON:
		draft, err = parseJSON(data)
	case internal.KindEML:
		draft, err = x.parseEML(data)
	default:
		return internal.DraftInvoice{}, errx.Newf(errx.KindExtraction, "unsupported document kind %q", kind)
	}
	if err != nil {
		if errx.IsKind(err, errx.KindExtraction) {
			return internal.DraftInvoice{}, err
		}
		return internal.DraftInvoice{}, errx.Wrap(err, errx.KindExtraction, "read "+string(kind)+" document")
	}
	return draft, nil
}

// finish applies the defaults and conversions shared by every format and
// drops lines that cannot take part in reconciliation.
func (x *Extractor) finish(d internal.DraftInvoice) internal.DraftInvoice {
	d.SupplierName = normalizeSpaces(d.SupplierName)
	d.Currency = strings.ToUpper(strings.TrimSpace(d.Currency))
	if d.Currency == "" {
		d.Currency = x.currency
	}
	d.InvoiceNumber = trimmedPtr(d.InvoiceNumber)
	d.InvoiceDate = trimmedPtr(d.InvoiceDate)

	items := make([]internal.LineItem, 0, len(d.Items))
	for _, it := range d.Items {
		it.Name = normalizeSpaces(it.Name)
		if it.Name == "" || !it.Quantity.IsPositive() {
			continue
		}
		it.SKU = trimmedPtr(it.SKU)
		it.Barcode = trimmedPtr(it.Barcode)
		it.UnitOfMeasure = trimmedPtr(it.UnitOfMeasure)
		if it.UnitPrice.IsNegative() {
			it.UnitPrice = decimal.Zero
		}
		items = append(items, x.convertUnit(it))
	}
	d.Items = items
	return d
}

func (x *Extractor) convertUnit(it internal.LineItem) internal.LineItem {
	if it.UnitOfMeasure == nil {
		return it
	}
	factor, ok := x.units[unitKey(*it.UnitOfMeasure)]
	if !ok {
		return it
	}
	it.Quantity = it.Quantity.Mul(factor)
	it.UnitOfMeasure = nil
	return it
}

func unitKey(unit string) string {
	return util.NormalizeUnit(unit)
}

// KindFromFilename maps a file extension to a document kind.
func KindFromFilename(name string) (internal.FileKind, bool) {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(name))) {
	case ".xlsx", ".xlsm", ".xls":
		return internal.KindXLSX, true
	case ".csv":
		return internal.KindCSV, true
	case ".pdf":
		return internal.KindPDF, true
	case ".html", ".htm":
		return internal.KindHTML, true
	case ".txt":
		return internal.KindText, true
	case ".eml":
		return internal.KindEML, true
	case ".json":
		return internal.KindJSON, true
	default:
		return "", false
	}
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	s := normalizeSpaces(*v)
	if s == "" {
		return nil
	}
	return &s
}
