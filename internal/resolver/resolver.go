// Package resolver binds free-text supplier and product names to catalog
// entries. It reads the synonym map but never writes it.
package resolver

import (
	"sort"

	"supplyrecon/internal"
	"supplyrecon/internal/catalog"
	"supplyrecon/internal/logx"
	"supplyrecon/internal/util"
)

type Reason string

const (
	ReasonCode    Reason = "code"
	ReasonSynonym Reason = "synonym"
	ReasonExact   Reason = "exact"
	ReasonFuzzy   Reason = "fuzzy"
	ReasonNone    Reason = "none"
)

type Match struct {
	Resolved bool
	Reason   Reason
	ID       internal.ID
	Name     string
	Score    float64
}

type Candidate struct {
	ID      internal.ID
	Name    string
	SKU     *string
	Barcode *string
	Score   float64
}

type Resolver struct {
	SupplierThreshold float64
	ProductThreshold  float64
}

func New(supplierThreshold, productThreshold float64) *Resolver {
	return &Resolver{SupplierThreshold: supplierThreshold, ProductThreshold: productThreshold}
}

// ResolveSupplier tries synonym, exact and fuzzy matching in that order.
func (r *Resolver) ResolveSupplier(name string, idx *catalog.Index, synonyms map[string]internal.ID) Match {
	key := util.Fold(name)
	if key == "" {
		return unresolved()
	}

	if id, ok := synonyms[key]; ok {
		if s, found := idx.SuppliersByID[id]; found {
			return Match{Resolved: true, Reason: ReasonSynonym, ID: s.ID, Name: s.Name, Score: 1}
		}
		logx.Debug().Str("name", name).Str("id", id.String()).Msg("stale supplier synonym")
	}

	if s, ok := idx.SupplierByName[key]; ok {
		return Match{Resolved: true, Reason: ReasonExact, ID: s.ID, Name: s.Name, Score: 1}
	}

	best, bestScore := -1, 0.0
	for i, s := range idx.Suppliers {
		if score := util.Similarity(name, s.Name); score > bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 && bestScore >= r.SupplierThreshold {
		s := idx.Suppliers[best]
		return Match{Resolved: true, Reason: ReasonFuzzy, ID: s.ID, Name: s.Name, Score: bestScore}
	}
	return Match{Reason: ReasonNone, Score: bestScore}
}

// ResolveProduct adds barcode and SKU lookup ahead of the name chain.
// Codes compare as-is.
func (r *Resolver) ResolveProduct(item internal.LineItem, idx *catalog.Index, synonyms map[string]internal.ID) Match {
	if item.Barcode != nil && *item.Barcode != "" {
		if p, ok := idx.ByBarcode[*item.Barcode]; ok {
			return Match{Resolved: true, Reason: ReasonCode, ID: p.ID, Name: p.Name, Score: 1}
		}
	}
	if item.SKU != nil && *item.SKU != "" {
		if p, ok := idx.BySKU[*item.SKU]; ok {
			return Match{Resolved: true, Reason: ReasonCode, ID: p.ID, Name: p.Name, Score: 1}
		}
	}

	name := item.OriginalName
	if name == "" {
		name = item.Name
	}
	key := util.Fold(name)
	if key == "" {
		return unresolved()
	}

	if id, ok := synonyms[key]; ok {
		if p, found := idx.ProductsByID[id]; found {
			return Match{Resolved: true, Reason: ReasonSynonym, ID: p.ID, Name: p.Name, Score: 1}
		}
		logx.Debug().Str("name", name).Str("id", id.String()).Msg("stale product synonym")
	}

	if p, ok := idx.ProductByName[key]; ok {
		return Match{Resolved: true, Reason: ReasonExact, ID: p.ID, Name: p.Name, Score: 1}
	}

	best, bestScore := -1, 0.0
	for i, p := range idx.Products {
		if score := util.Similarity(name, p.Name); score > bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 && bestScore >= r.ProductThreshold {
		p := idx.Products[best]
		return Match{Resolved: true, Reason: ReasonFuzzy, ID: p.ID, Name: p.Name, Score: bestScore}
	}
	return Match{Reason: ReasonNone, Score: bestScore}
}

func (r *Resolver) SuggestSuppliers(name string, suppliers []internal.Supplier, n int) []Candidate {
	out := make([]Candidate, 0, len(suppliers))
	for _, s := range suppliers {
		out = append(out, Candidate{ID: s.ID, Name: s.Name, Score: util.Similarity(name, s.Name)})
	}
	return top(out, n)
}

func (r *Resolver) SuggestProducts(name string, products []internal.Product, n int) []Candidate {
	out := make([]Candidate, 0, len(products))
	for _, p := range products {
		out = append(out, Candidate{ID: p.ID, Name: p.Name, SKU: p.SKU, Barcode: p.Barcode, Score: util.Similarity(name, p.Name)})
	}
	return top(out, n)
}

// top keeps catalog order among equal scores.
func top(candidates []Candidate, n int) []Candidate {
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if n >= 0 && len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

func unresolved() Match {
	return Match{Reason: ReasonNone}
}
