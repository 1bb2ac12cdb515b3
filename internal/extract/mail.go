package extract

import (
	"bytes"

	"github.com/jhillyerd/enmime"

	"supplyrecon/internal"
	"supplyrecon/internal/logx"
)

// parseEML takes line items from the first attachment that has any, then
// from the HTML body, then from the plain-text body. Header fields missing
// from the winning source are filled from the body, and the supplier falls
// back to the sender's display name.
func (x *Extractor) parseEML(raw []byte) (internal.DraftInvoice, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return internal.DraftInvoice{}, err
	}

	var draft internal.DraftInvoice
	for _, att := range env.Attachments {
		kind, ok := KindFromFilename(att.FileName)
		if !ok || kind == internal.KindEML {
			continue
		}
		d, err := x.parse(att.Content, kind)
		if err != nil {
			logx.Debug().Err(err).Str("attachment", att.FileName).Msg("attachment skipped")
			continue
		}
		if len(d.Items) > 0 {
			draft = d
			break
		}
	}

	var body internal.DraftInvoice
	if env.HTML != "" {
		if d, err := parseHTML(env.HTML); err == nil {
			body = d
		}
	}
	if env.Text != "" {
		text := parseText(env.Text)
		if len(body.Items) == 0 {
			body.Items = text.Items
		}
		mergeMeta(&body, text)
	}

	if len(draft.Items) == 0 {
		draft.Items = body.Items
	}
	mergeMeta(&draft, body)

	if draft.SupplierName == "" {
		if from, err := env.AddressList("From"); err == nil && len(from) > 0 {
			draft.SupplierName = from[0].Name
		}
	}
	return draft, nil
}
