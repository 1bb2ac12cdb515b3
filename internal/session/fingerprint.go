package session

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"supplyrecon/internal"
	"supplyrecon/internal/util"
)

// Fingerprint hashes supplier name, invoice number, date and declared total
// as parsed. Line items do not participate.
func Fingerprint(d internal.DraftInvoice) string {
	supplier := d.OriginalSupplierName
	if supplier == "" {
		supplier = d.SupplierName
	}
	total := ""
	if d.DeclaredTotal != nil {
		total = d.DeclaredTotal.String()
	}
	raw := strings.Join([]string{
		strings.TrimSpace(supplier),
		strings.TrimSpace(util.Deref(d.InvoiceNumber)),
		strings.TrimSpace(util.Deref(d.InvoiceDate)),
		total,
	}, "|")
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
