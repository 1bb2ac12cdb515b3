package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"supplyrecon/internal"
	"supplyrecon/internal/errx"
	"supplyrecon/internal/util"
)

// jsonInvoice is the structured draft a parsing service hands back:
// snake_case keys, numbers as numbers or as localized strings.
type jsonInvoice struct {
	Supplier      string     `json:"supplier"`
	InvoiceNumber *string    `json:"invoice_number"`
	InvoiceDate   *string    `json:"invoice_date"`
	Currency      string     `json:"currency"`
	Items         []jsonItem `json:"items"`
	Totals        struct {
		Subtotal flexDecimal `json:"subtotal"`
		Tax      flexDecimal `json:"tax"`
		Total    flexDecimal `json:"total"`
	} `json:"totals"`
}

type jsonItem struct {
	Name      string      `json:"name"`
	SKU       flexString  `json:"sku"`
	Barcode   flexString  `json:"barcode"`
	Quantity  flexDecimal `json:"quantity"`
	UOM       *string     `json:"uom"`
	Price     flexDecimal `json:"price"`
	Tax       flexDecimal `json:"tax"`
	LineTotal flexDecimal `json:"line_total"`
}

// flexDecimal accepts 12.5, "12,5", "1 250.00" and null.
type flexDecimal struct {
	v *decimal.Decimal
}

func (f *flexDecimal) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	raw := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		if strings.TrimSpace(raw) == "" {
			return nil
		}
	}
	d, ok := util.ParseDecimal(raw)
	if !ok {
		return fmt.Errorf("not a number: %s", raw)
	}
	f.v = &d
	return nil
}

func (f flexDecimal) or(def decimal.Decimal) decimal.Decimal {
	if f.v == nil {
		return def
	}
	return *f.v
}

// flexString accepts barcodes and SKUs sent as numbers.
type flexString struct {
	v *string
}

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	} else {
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("expected string or number, got %s", b)
		}
		s = n.String()
	}
	if s = strings.TrimSpace(s); s != "" {
		f.v = &s
	}
	return nil
}

func parseJSON(content []byte) (internal.DraftInvoice, error) {
	var in jsonInvoice
	if err := json.Unmarshal(content, &in); err != nil {
		return internal.DraftInvoice{}, errx.Wrap(err, errx.KindExtraction, "decode invoice json")
	}

	d := internal.DraftInvoice{
		SupplierName:     in.Supplier,
		InvoiceNumber:    in.InvoiceNumber,
		InvoiceDate:      in.InvoiceDate,
		Currency:         in.Currency,
		DeclaredSubtotal: in.Totals.Subtotal.v,
		DeclaredTax:      in.Totals.Tax.v,
		DeclaredTotal:    in.Totals.Total.v,
	}
	if d.InvoiceDate != nil {
		if norm, ok := findDate(*d.InvoiceDate); ok {
			d.InvoiceDate = &norm
		}
	}
	for _, it := range in.Items {
		d.Items = append(d.Items, internal.LineItem{
			Name:          it.Name,
			SKU:           it.SKU.v,
			Barcode:       it.Barcode.v,
			Quantity:      it.Quantity.or(decimal.Zero),
			UnitOfMeasure: it.UOM,
			UnitPrice:     it.Price.or(decimal.Zero),
			TaxRate:       it.Tax.v,
			LineTotal:     it.LineTotal.v,
		})
	}
	return d, nil
}
