package pos

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"supplyrecon/internal"
	"supplyrecon/internal/util"
)

func decodeSuppliers(body json.RawMessage) ([]internal.Supplier, error) {
	rows, err := rowsOf(body, "suppliers", "contractors")
	if err != nil {
		return nil, err
	}
	out := make([]internal.Supplier, 0, len(rows))
	for _, raw := range rows {
		id := toID(firstOf(raw, "supplier_id", "id"))
		name := toString(firstOf(raw, "name", "supplier_name"))
		if id.IsZero() || name == "" {
			continue
		}
		out = append(out, internal.Supplier{ID: id, Name: name})
	}
	return out, nil
}

func decodeProducts(body json.RawMessage) ([]internal.Product, error) {
	rows, err := rowsOf(body, "products", "menu")
	if err != nil {
		return nil, err
	}
	out := make([]internal.Product, 0, len(rows))
	for _, raw := range rows {
		id := toID(firstOf(raw, "product_id", "id"))
		name := toString(firstOf(raw, "name", "product_name"))
		if id.IsZero() || name == "" {
			continue
		}
		p := internal.Product{ID: id, Name: name}
		if v := toString(raw["barcode"]); v != "" {
			p.Barcode = util.StringPtr(v)
		}
		if v := toString(firstOf(raw, "sku", "product_code")); v != "" {
			p.SKU = util.StringPtr(v)
		}
		out = append(out, p)
	}
	return out, nil
}

// rowsOf accepts either a bare list or an object holding the list under one
// of the given keys.
func rowsOf(body json.RawMessage, keys ...string) ([]map[string]any, error) {
	var v any
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	var list []any
	switch t := v.(type) {
	case []any:
		list = t
	case map[string]any:
		for _, k := range keys {
			if arr, ok := t[k].([]any); ok && len(arr) > 0 {
				list = arr
				break
			}
		}
	}

	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func decodeSupplyID(body json.RawMessage) internal.SupplyID {
	var v any
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "unknown"
	}
	switch t := v.(type) {
	case map[string]any:
		if id := toID(firstOf(t, "supply_id", "id", "number")); !id.IsZero() {
			return internal.SupplyID(id)
		}
	case []any:
		if len(t) > 0 {
			if m, ok := t[0].(map[string]any); ok {
				if id := toID(m["id"]); !id.IsZero() {
					return internal.SupplyID(id)
				}
			}
		}
	case json.Number:
		return internal.SupplyID(t.String())
	case string:
		if strings.TrimSpace(t) != "" {
			return internal.SupplyID(t)
		}
	}
	return "unknown"
}

func (c *Client) invoiceDate(inv internal.DraftInvoice) string {
	if d := util.Deref(inv.InvoiceDate); d != "" {
		return d
	}
	return time.Now().UTC().Format("2006-01-02")
}

func (c *Client) storageID() any {
	raw := strings.TrimSpace(c.cfg.PosStorageID)
	if raw == "" {
		return nil
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	return raw
}

func (c *Client) storagePayload(inv internal.DraftInvoice) map[string]any {
	supply := map[string]any{
		"date": c.invoiceDate(inv) + " 12:00:00",
	}
	if inv.SupplierID != nil && !inv.SupplierID.IsZero() {
		supply["supplier_id"] = inv.SupplierID.Wire()
	} else if inv.SupplierName != "" {
		supply["supplier_name"] = inv.SupplierName
	}
	if id := c.storageID(); id != nil {
		supply["storage_id"] = id
	}

	ingredients := make([]map[string]any, 0, len(inv.Items))
	for _, it := range inv.Items {
		row := map[string]any{
			"id":    wireProductID(it.ProductID),
			"name":  it.Name,
			"num":   number(it.Quantity),
			"price": number(it.UnitPrice),
		}
		if it.TaxRate != nil {
			row["tax"] = number(*it.TaxRate)
		}
		ingredients = append(ingredients, row)
	}

	return map[string]any{
		"supply":     supply,
		"ingredient": ingredients,
		"invoice": map[string]any{
			"number":   util.Deref(inv.InvoiceNumber),
			"currency": inv.Currency,
		},
	}
}

func (c *Client) genericPayload(inv internal.DraftInvoice) map[string]any {
	items := make([]map[string]any, 0, len(inv.Items))
	for _, it := range inv.Items {
		tax := c.defaultTax
		if it.TaxRate != nil {
			tax = *it.TaxRate
		}
		items = append(items, map[string]any{
			"product_id":   wireProductID(it.ProductID),
			"product_name": it.Name,
			"quantity":     number(it.Quantity),
			"price":        number(it.UnitPrice),
			"tax":          number(tax),
		})
	}

	var supplierID, supplierName any
	if inv.SupplierID != nil && !inv.SupplierID.IsZero() {
		supplierID = inv.SupplierID.Wire()
	} else {
		supplierName = inv.SupplierName
	}

	return map[string]any{
		"supplier_id":    supplierID,
		"supplier_name":  supplierName,
		"invoice_number": util.Deref(inv.InvoiceNumber),
		"invoice_date":   c.invoiceDate(inv),
		"currency":       inv.Currency,
		"items":          items,
		"comment":        "Created by supplyrecon import",
	}
}

func wireProductID(id *internal.ID) any {
	if id == nil || id.IsZero() {
		return nil
	}
	return id.Wire()
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
				continue
			}
			return v
		}
	}
	return nil
}

func toID(v any) internal.ID {
	switch t := v.(type) {
	case json.Number:
		return internal.ID(t.String())
	case string:
		return internal.ID(strings.TrimSpace(t))
	case float64:
		return internal.ID(strconv.FormatFloat(t, 'f', -1, 64))
	default:
		return ""
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
