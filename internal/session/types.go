package session

import (
	"time"

	"supplyrecon/internal"
	"supplyrecon/internal/store"
	"supplyrecon/internal/totals"
)

type State string

const (
	AwaitingSupplier      State = "AWAITING_SUPPLIER"
	AwaitingProduct       State = "AWAITING_PRODUCT"
	AwaitingTotalsConfirm State = "AWAITING_TOTALS_CONFIRM"
	Finalizing            State = "FINALIZING"
	Done                  State = "DONE"
	Cancelled             State = "CANCELLED"
)

type PromptKind string

const (
	SupplierChoice PromptKind = "supplier_choice"
	ProductChoice  PromptKind = "product_choice"
	TotalsConfirm  PromptKind = "totals_confirm"
)

type OptionAction string

const (
	ActionPick    OptionAction = "pick"
	ActionNew     OptionAction = "new"
	ActionProceed OptionAction = "proceed"
	ActionCancel  OptionAction = "cancel"
)

const (
	TokenCancel         = "cancel"
	TokenSupplierNew    = "supplier_new"
	TokenConfirmProceed = "confirm:proceed"
	TokenConfirmCancel  = "confirm:cancel"
)

type Option struct {
	Token   string       `json:"token"`
	Action  OptionAction `json:"action"`
	Label   string       `json:"label"`
	ID      internal.ID  `json:"id,omitempty"`
	Name    string       `json:"name,omitempty"`
	SKU     *string      `json:"sku,omitempty"`
	Barcode *string      `json:"barcode,omitempty"`
	Score   float64      `json:"score,omitempty"`
}

// TotalsSummary is attached to a totals prompt so the transport can show
// what disagreed.
type TotalsSummary struct {
	Subtotal string `json:"subtotal"`
	Tax      string `json:"tax"`
	Computed string `json:"computed"`
	Declared string `json:"declared"`
	Diff     string `json:"diff"`
	Currency string `json:"currency"`
}

type Prompt struct {
	Kind      PromptKind     `json:"kind"`
	Subject   string         `json:"subject"`
	ItemIndex int            `json:"itemIndex"`
	Remaining int            `json:"remaining"`
	Options   []Option       `json:"options"`
	Totals    *TotalsSummary `json:"totals,omitempty"`
}

func (p *Prompt) option(token string) (Option, bool) {
	if p == nil {
		return Option{}, false
	}
	for _, o := range p.Options {
		if o.Token == token {
			return o, true
		}
	}
	return Option{}, false
}

// Session is the persisted state of one conversation's dialogue.
type Session struct {
	ID                string                `json:"id"`
	Conversation      string                `json:"conversation"`
	State             State                 `json:"state"`
	Draft             internal.DraftInvoice `json:"draft"`
	Pending           []int                 `json:"pending"`
	TotalsConfirmed   bool                  `json:"totalsConfirmed"`
	Fingerprint       string                `json:"fingerprint"`
	Prompt            *Prompt               `json:"prompt,omitempty"`
	ConfirmedSynonyms []store.SynonymEntry  `json:"confirmedSynonyms,omitempty"`
	CreatedAt         time.Time             `json:"createdAt"`
	UpdatedAt         time.Time             `json:"updatedAt"`
	ExpiresAt         time.Time             `json:"expiresAt"`
}

type OutcomeKind string

const (
	OutcomePrompt    OutcomeKind = "prompt"
	OutcomeFinalized OutcomeKind = "finalized"
	OutcomeDuplicate OutcomeKind = "duplicate_rejected"
	OutcomeCancelled OutcomeKind = "cancelled"
	OutcomeNoSession OutcomeKind = "no_active_session"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeInvalid   OutcomeKind = "invalid_choice"
)

// Outcome is what the conversation layer renders after every engine call.
type Outcome struct {
	Kind        OutcomeKind
	SessionID   string
	Fingerprint string
	Prompt      *Prompt
	SupplyID    internal.SupplyID
	Totals      *totals.Result
	Err         error
}
