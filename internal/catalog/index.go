package catalog

import (
	"supplyrecon/internal"
	"supplyrecon/internal/util"
)

// Index is a lookup view over one catalog snapshot. Slices keep catalog
// order so first-encountered wins wherever several entries qualify.
type Index struct {
	Suppliers []internal.Supplier
	Products  []internal.Product

	SuppliersByID  map[internal.ID]internal.Supplier
	ProductsByID   map[internal.ID]internal.Product
	SupplierByName map[string]internal.Supplier
	ProductByName  map[string]internal.Product
	ByBarcode      map[string]internal.Product
	BySKU          map[string]internal.Product
}

func BuildIndex(suppliers []internal.Supplier, products []internal.Product) *Index {
	idx := &Index{
		Suppliers:      suppliers,
		Products:       products,
		SuppliersByID:  make(map[internal.ID]internal.Supplier, len(suppliers)),
		ProductsByID:   make(map[internal.ID]internal.Product, len(products)),
		SupplierByName: make(map[string]internal.Supplier, len(suppliers)),
		ProductByName:  make(map[string]internal.Product, len(products)),
		ByBarcode:      map[string]internal.Product{},
		BySKU:          map[string]internal.Product{},
	}

	for _, s := range suppliers {
		if _, ok := idx.SuppliersByID[s.ID]; !ok {
			idx.SuppliersByID[s.ID] = s
		}
		key := util.Fold(s.Name)
		if _, ok := idx.SupplierByName[key]; !ok {
			idx.SupplierByName[key] = s
		}
	}

	for _, p := range products {
		if _, ok := idx.ProductsByID[p.ID]; !ok {
			idx.ProductsByID[p.ID] = p
		}
		key := util.Fold(p.Name)
		if _, ok := idx.ProductByName[key]; !ok {
			idx.ProductByName[key] = p
		}

		addCode := func(m map[string]internal.Product, code *string) {
			if code == nil || *code == "" {
				return
			}
			if _, ok := m[*code]; !ok {
				m[*code] = p
			}
		}
		addCode(idx.ByBarcode, p.Barcode)
		addCode(idx.BySKU, p.SKU)
	}

	return idx
}
