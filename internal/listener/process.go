package listener

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jhillyerd/enmime"

	"supplyrecon/internal"
	"supplyrecon/internal/connectors"
	"supplyrecon/internal/errx"
	"supplyrecon/internal/extract"
	"supplyrecon/internal/logx"
	"supplyrecon/internal/session"
)

type Extractor interface {
	Extract(ctx context.Context, data []byte, kind internal.FileKind) (internal.DraftInvoice, error)
}

type Resolver interface {
	StartResolution(ctx context.Context, conversation string, draft internal.DraftInvoice) (session.Outcome, error)
}

// Processor turns fetched emails into resolution sessions, one conversation
// per email.
type Processor struct {
	db        connectors.EmailStore
	extractor Extractor
	engine    Resolver
}

type ProcessResult struct {
	Processed  int
	Prompted   int
	Imported   int
	Duplicates int
	Skipped    int
	Failed     int
}

func NewProcessor(db connectors.EmailStore, extractor Extractor, engine Resolver) *Processor {
	return &Processor{db: db, extractor: extractor, engine: engine}
}

const conversationPrefix = "mail:"

func EmailConversation(emailID int) string {
	return conversationPrefix + strconv.Itoa(emailID)
}

// EmailIDFromConversation reverses EmailConversation.
func EmailIDFromConversation(conversation string) (int, bool) {
	rest, ok := strings.CutPrefix(conversation, conversationPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(rest)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// StatusForOutcome maps an engine outcome to the email status it leaves
// behind. ok is false for outcomes that do not move the email.
func StatusForOutcome(kind session.OutcomeKind) (string, bool) {
	switch kind {
	case session.OutcomePrompt:
		return connectors.StatusPrompted, true
	case session.OutcomeFinalized:
		return connectors.StatusImported, true
	case session.OutcomeDuplicate:
		return connectors.StatusDuplicate, true
	case session.OutcomeCancelled:
		return connectors.StatusCancelled, true
	case session.OutcomeFailed:
		return connectors.StatusFailed, true
	default:
		return "", false
	}
}

// ProcessPending handles up to batch fetched emails. A catalog or storage
// failure stops the batch and leaves the email fetched for the next cycle.
func (p *Processor) ProcessPending(ctx context.Context, batch int) (ProcessResult, error) {
	emails, err := p.db.ListEmailsByStatus(connectors.StatusFetched, batch)
	if err != nil {
		return ProcessResult{}, errx.Wrap(err, errx.KindStorage, "list fetched emails")
	}

	var res ProcessResult
	for _, email := range emails {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		outcome, status, err := p.processOne(ctx, email)
		if err != nil {
			return res, fmt.Errorf("email %d: %w", email.ID, err)
		}
		if err := p.db.UpdateEmailStatus(email.ID, status); err != nil {
			return res, errx.Wrap(err, errx.KindStorage, "update email status")
		}

		res.Processed++
		switch status {
		case connectors.StatusPrompted:
			res.Prompted++
		case connectors.StatusImported:
			res.Imported++
		case connectors.StatusDuplicate:
			res.Duplicates++
		case connectors.StatusSkipped:
			res.Skipped++
		case connectors.StatusFailed:
			res.Failed++
		}
		logx.Info().
			Int("email", email.ID).
			Str("status", status).
			Str("outcome", string(outcome)).
			Msg("email processed")
	}
	return res, nil
}

func (p *Processor) processOne(ctx context.Context, email internal.EmailRow) (session.OutcomeKind, string, error) {
	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		logx.Warn().Err(err).Int("email", email.ID).Msg("raw mail unreadable")
		return "", connectors.StatusFailed, nil
	}

	if !looksLikeInvoice(raw) {
		return "", connectors.StatusSkipped, nil
	}

	draft, err := p.extractor.Extract(ctx, raw, internal.KindEML)
	if errx.IsKind(err, errx.KindExtraction) {
		logx.Info().Err(err).Int("email", email.ID).Msg("no invoice extracted")
		return "", connectors.StatusSkipped, nil
	}
	if err != nil {
		return "", "", err
	}

	out, err := p.engine.StartResolution(ctx, EmailConversation(email.ID), draft)
	if err != nil {
		return "", "", err
	}
	status, ok := StatusForOutcome(out.Kind)
	if !ok {
		status = connectors.StatusFailed
	}
	return out.Kind, status, nil
}

func looksLikeInvoice(raw []byte) bool {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return false
	}
	names := make([]string, 0, len(env.Attachments))
	for _, att := range env.Attachments {
		names = append(names, att.FileName)
	}
	return extract.DetectInvoice(env.GetHeader("Subject"), env.Text, env.HTML, names).IsInvoice
}
