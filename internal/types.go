package internal

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ID is an opaque catalog identifier. Backends hand out numeric or string ids;
// both are kept as their exact textual form so nothing is lost on round-trips.
type ID string

func (id ID) String() string { return string(id) }

func (id ID) IsZero() bool { return strings.TrimSpace(string(id)) == "" }

// Numeric reports whether the id is a plain JSON number.
func (id ID) Numeric() bool {
	if id.IsZero() {
		return false
	}
	var n json.Number
	dec := json.NewDecoder(strings.NewReader(string(id)))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return false
	}
	return n.String() == string(id)
}

// Wire returns the value a JSON backend expects: a bare number for numeric ids.
func (id ID) Wire() any {
	if id.Numeric() {
		return json.Number(id)
	}
	return string(id)
}

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return errors.New("id must be a string or a number")
	}
	*id = ID(n.String())
	return nil
}

type Supplier struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

type Product struct {
	ID      ID      `json:"id"`
	Name    string  `json:"name"`
	SKU     *string `json:"sku,omitempty"`
	Barcode *string `json:"barcode,omitempty"`
}

type LineItem struct {
	Name          string           `json:"name"`
	OriginalName  string           `json:"originalName"`
	SKU           *string          `json:"sku,omitempty"`
	Barcode       *string          `json:"barcode,omitempty"`
	Quantity      decimal.Decimal  `json:"quantity"`
	UnitOfMeasure *string          `json:"uom,omitempty"`
	UnitPrice     decimal.Decimal  `json:"unitPrice"`
	TaxRate       *decimal.Decimal `json:"taxRatePercent,omitempty"`
	LineTotal     *decimal.Decimal `json:"lineTotal,omitempty"`
	ProductID     *ID              `json:"productId,omitempty"`
}

type DraftInvoice struct {
	SupplierName         string           `json:"supplierName"`
	OriginalSupplierName string           `json:"originalSupplierName"`
	SupplierID           *ID              `json:"supplierId,omitempty"`
	SupplierResolved     bool             `json:"supplierResolved"`
	InvoiceNumber        *string          `json:"invoiceNumber,omitempty"`
	InvoiceDate          *string          `json:"invoiceDate,omitempty"`
	Currency             string           `json:"currency"`
	Items                []LineItem       `json:"items"`
	DeclaredSubtotal     *decimal.Decimal `json:"declaredSubtotal,omitempty"`
	DeclaredTax          *decimal.Decimal `json:"declaredTax,omitempty"`
	DeclaredTotal        *decimal.Decimal `json:"declaredTotal,omitempty"`
}

// ResolvedInvoice is what the supply backend receives once every step of the
// resolution dialogue is settled.
type ResolvedInvoice struct {
	Invoice     DraftInvoice `json:"invoice"`
	Fingerprint string       `json:"fingerprint"`
}

type SupplyID string

type FileKind string

const (
	KindXLSX FileKind = "xlsx"
	KindCSV  FileKind = "csv"
	KindPDF  FileKind = "pdf"
	KindHTML FileKind = "html"
	KindText FileKind = "text"
	KindEML  FileKind = "eml"
	KindJSON FileKind = "json"
)

type ImportRow struct {
	ID            int
	SupplyID      string
	Fingerprint   string
	Conversation  string
	SupplierName  string
	InvoiceNumber *string
	InvoiceDate   *string
	CreatedAt     string
	Invoice       DraftInvoice
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

// Now is swapped in tests that need stable timestamps.
var Now = func() time.Time { return time.Now().UTC() }
