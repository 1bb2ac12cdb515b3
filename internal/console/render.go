package console

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"supplyrecon/internal/session"
)

var (
	headColor = color.New(color.FgCyan, color.Bold)
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.Faint)
)

// Render writes one engine outcome the way a chat reply would read.
func Render(w io.Writer, out session.Outcome) {
	switch out.Kind {
	case session.OutcomePrompt:
		RenderPrompt(w, out.Prompt)
	case session.OutcomeFinalized:
		okColor.Fprintf(w, "Supply created: #%s\n", out.SupplyID)
		if out.Err != nil {
			warnColor.Fprintf(w, "Saved with a warning: %v\n", out.Err)
		}
	case session.OutcomeDuplicate:
		warnColor.Fprintln(w, "This invoice has already been imported.")
	case session.OutcomeCancelled:
		fmt.Fprintln(w, "Import cancelled.")
	case session.OutcomeNoSession:
		warnColor.Fprintln(w, "No open import. Upload an invoice first.")
	case session.OutcomeFailed:
		errColor.Fprintf(w, "Supply creation failed: %v\n", out.Err)
	case session.OutcomeInvalid:
		warnColor.Fprintln(w, "That option is not available any more.")
		RenderPrompt(w, out.Prompt)
	default:
		fmt.Fprintf(w, "%s\n", out.Kind)
	}
}

func RenderPrompt(w io.Writer, p *session.Prompt) {
	if p == nil {
		return
	}
	switch p.Kind {
	case session.SupplierChoice:
		headColor.Fprintf(w, "Supplier %q was not found. Pick one:\n", p.Subject)
	case session.ProductChoice:
		headColor.Fprintf(w, "Item %d (%d left): %q. Pick a product:\n", p.ItemIndex+1, p.Remaining, p.Subject)
	case session.TotalsConfirm:
		t := p.Totals
		headColor.Fprintln(w, "Totals do not match.")
		if t != nil {
			fmt.Fprintf(w, "  computed %s %s (subtotal %s, tax %s)\n", t.Computed, t.Currency, t.Subtotal, t.Tax)
			fmt.Fprintf(w, "  declared %s %s, difference %s\n", t.Declared, t.Currency, t.Diff)
		}
	}
	for i, o := range p.Options {
		fmt.Fprintf(w, "  %d) %s", i+1, o.Label)
		if o.Score > 0 {
			dimColor.Fprintf(w, "  %.0f%%", o.Score*100)
		}
		fmt.Fprintln(w)
	}
}
