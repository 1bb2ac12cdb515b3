package session

import (
	"fmt"
	"strings"

	"supplyrecon/internal/catalog"
	"supplyrecon/internal/totals"
)

func (e *Engine) supplierPrompt(s *Session, idx *catalog.Index) *Prompt {
	name := s.Draft.OriginalSupplierName
	p := &Prompt{Kind: SupplierChoice, Subject: name, ItemIndex: -1}
	for _, c := range e.resolver.SuggestSuppliers(name, idx.Suppliers, e.limit) {
		p.Options = append(p.Options, Option{
			Token:  "supplier:" + c.ID.String(),
			Action: ActionPick,
			Label:  fmt.Sprintf("%s (#%s)", c.Name, c.ID),
			ID:     c.ID,
			Name:   c.Name,
			Score:  c.Score,
		})
	}
	p.Options = append(p.Options,
		Option{Token: TokenSupplierNew, Action: ActionNew, Label: "create new supplier"},
		Option{Token: TokenCancel, Action: ActionCancel, Label: "cancel"},
	)
	return p
}

func (e *Engine) productPrompt(s *Session, idx *catalog.Index) *Prompt {
	i := s.Pending[0]
	item := s.Draft.Items[i]
	p := &Prompt{Kind: ProductChoice, Subject: item.OriginalName, ItemIndex: i, Remaining: len(s.Pending)}
	for _, c := range e.resolver.SuggestProducts(item.OriginalName, idx.Products, e.limit) {
		label := c.Name
		if c.SKU != nil && *c.SKU != "" {
			label += " · SKU " + *c.SKU
		}
		if c.Barcode != nil && *c.Barcode != "" {
			label += " · BAR " + *c.Barcode
		}
		p.Options = append(p.Options, Option{
			Token:   productToken(i, c.ID),
			Action:  ActionPick,
			Label:   label,
			ID:      c.ID,
			Name:    c.Name,
			SKU:     c.SKU,
			Barcode: c.Barcode,
			Score:   c.Score,
		})
	}
	p.Options = append(p.Options,
		Option{Token: productNewToken(i), Action: ActionNew, Label: "create new product"},
		Option{Token: TokenCancel, Action: ActionCancel, Label: "cancel"},
	)
	return p
}

func (e *Engine) totalsPrompt(s *Session, res totals.Result) *Prompt {
	digits := e.policy.Digits
	return &Prompt{
		Kind:      TotalsConfirm,
		Subject:   strings.TrimSpace(s.Draft.OriginalSupplierName),
		ItemIndex: -1,
		Totals: &TotalsSummary{
			Subtotal: res.Subtotal.StringFixed(digits),
			Tax:      res.Tax.StringFixed(digits),
			Computed: res.Computed.StringFixed(digits),
			Declared: res.Declared.StringFixed(digits),
			Diff:     res.Diff.StringFixed(digits),
			Currency: s.Draft.Currency,
		},
		Options: []Option{
			{Token: TokenConfirmProceed, Action: ActionProceed, Label: "proceed anyway"},
			{Token: TokenConfirmCancel, Action: ActionCancel, Label: "cancel"},
		},
	}
}
