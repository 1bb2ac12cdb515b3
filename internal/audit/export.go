package audit

import (
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"supplyrecon/internal"
	"supplyrecon/internal/util"
)

var lineHeaders = []string{
	"line_no", "name", "original_name", "product_id", "sku", "barcode",
	"quantity", "uom", "unit_price", "tax_rate", "line_total",
}

// ExportImportToXLSX renders one recorded import: a few key/value rows for
// the invoice header, a blank row, then one row per line item.
func ExportImportToXLSX(row internal.ImportRow, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	r := 1
	set := func(col int, value any) {
		cell, _ := excelize.CoordinatesToCellName(col, r)
		_ = f.SetCellValue(sheet, cell, value)
	}

	inv := row.Invoice
	supplierID := ""
	if inv.SupplierID != nil {
		supplierID = inv.SupplierID.String()
	}
	meta := [][2]any{
		{"supply_id", row.SupplyID},
		{"supplier", inv.SupplierName},
		{"supplier_id", supplierID},
		{"invoice_number", util.Deref(inv.InvoiceNumber)},
		{"invoice_date", util.Deref(inv.InvoiceDate)},
		{"currency", inv.Currency},
		{"declared_total", decimalCell(inv.DeclaredTotal)},
		{"fingerprint", row.Fingerprint},
		{"created_at", row.CreatedAt},
	}
	for _, kv := range meta {
		set(1, kv[0])
		set(2, kv[1])
		r++
	}

	r++
	for i, h := range lineHeaders {
		set(i+1, h)
	}
	for i, it := range inv.Items {
		r++
		productID := ""
		if it.ProductID != nil {
			productID = it.ProductID.String()
		}
		set(1, i+1)
		set(2, it.Name)
		set(3, it.OriginalName)
		set(4, productID)
		set(5, util.Deref(it.SKU))
		set(6, util.Deref(it.Barcode))
		set(7, it.Quantity.InexactFloat64())
		set(8, util.Deref(it.UnitOfMeasure))
		set(9, it.UnitPrice.InexactFloat64())
		set(10, decimalCell(it.TaxRate))
		set(11, decimalCell(it.LineTotal))
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func decimalCell(v *decimal.Decimal) any {
	if v == nil {
		return ""
	}
	return v.InexactFloat64()
}
