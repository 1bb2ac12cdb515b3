// Package session drives the per-conversation resolution dialogue: supplier,
// then each unresolved product in order, then totals, then finalize.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"supplyrecon/internal"
	"supplyrecon/internal/catalog"
	"supplyrecon/internal/errx"
	"supplyrecon/internal/logx"
	"supplyrecon/internal/resolver"
	"supplyrecon/internal/store"
	"supplyrecon/internal/totals"
)

// Directory is the catalog view the engine resolves against.
type Directory interface {
	Index(ctx context.Context) (*catalog.Index, error)
}

type Backend interface {
	CreateSupply(ctx context.Context, inv internal.ResolvedInvoice) (internal.SupplyID, error)
}

// AuditSink receives every successful import. Failures are logged only.
type AuditSink interface {
	RecordImport(ctx context.Context, row internal.ImportRow) error
}

type Deps struct {
	Directory Directory
	Backend   Backend
	Synonyms  store.SynonymStore
	Ledger    store.Ledger
	Sessions  store.SessionStore
	Audit     AuditSink
}

type Options struct {
	Resolver        *resolver.Resolver
	Policy          totals.Policy
	SuggestionLimit int
	SessionTTL      time.Duration
}

type Engine struct {
	dir      Directory
	backend  Backend
	synonyms store.SynonymStore
	ledger   store.Ledger
	sessions store.SessionStore
	audit    AuditSink

	resolver *resolver.Resolver
	policy   totals.Policy
	limit    int
	ttl      time.Duration

	locks *keyedMutex
	newID func() string
	now   func() time.Time
}

func NewEngine(deps Deps, opts Options) *Engine {
	if opts.Resolver == nil {
		opts.Resolver = resolver.New(0.92, 0.90)
	}
	if opts.Policy.Mode == "" {
		opts.Policy = totals.DefaultPolicy()
	}
	if opts.SuggestionLimit <= 0 {
		opts.SuggestionLimit = 5
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	return &Engine{
		dir:      deps.Directory,
		backend:  deps.Backend,
		synonyms: deps.Synonyms,
		ledger:   deps.Ledger,
		sessions: deps.Sessions,
		audit:    deps.Audit,
		resolver: opts.Resolver,
		policy:   opts.Policy,
		limit:    opts.SuggestionLimit,
		ttl:      opts.SessionTTL,
		locks:    newKeyedMutex(),
		newID:    uuid.NewString,
		now:      internal.Now,
	}
}

// StartResolution opens a session for a freshly extracted draft, replacing
// any session the conversation already had. A catalog or storage failure is
// returned as an error and leaves no session behind.
func (e *Engine) StartResolution(ctx context.Context, conversation string, draft internal.DraftInvoice) (Outcome, error) {
	unlock := e.locks.Lock(conversation)
	defer unlock()

	log := logx.Component("session").With().Str("conversation", conversation).Logger()

	prepareDraft(&draft)
	fp := Fingerprint(draft)

	seen, err := e.ledger.Contains(ctx, fp)
	if err != nil {
		return Outcome{}, err
	}
	if seen {
		log.Info().Str("fingerprint", fp).Msg("duplicate invoice rejected")
		return Outcome{Kind: OutcomeDuplicate, Fingerprint: fp, Err: errx.New(errx.KindDuplicate, "invoice already imported")}, nil
	}

	if prev, ok, err := e.load(ctx, conversation); err != nil {
		return Outcome{}, err
	} else if ok {
		log.Info().Str("session", prev.ID).Str("state", string(prev.State)).Msg("new upload supersedes open session")
		if err := e.sessions.Delete(ctx, conversation); err != nil {
			return Outcome{}, err
		}
	}

	idx, syn, err := e.snapshot(ctx)
	if err != nil {
		return Outcome{}, err
	}

	now := e.now()
	s := &Session{
		ID:           e.newID(),
		Conversation: conversation,
		Draft:        draft,
		Fingerprint:  fp,
		Pending:      []int{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	log.Info().Str("session", s.ID).Str("fingerprint", fp).Int("items", len(draft.Items)).Msg("resolution started")

	m := e.resolver.ResolveSupplier(draft.SupplierName, idx, syn.Suppliers)
	if !m.Resolved {
		s.State = AwaitingSupplier
		s.Prompt = e.supplierPrompt(s, idx)
		return e.suspend(ctx, s)
	}
	log.Debug().Str("session", s.ID).Str("reason", string(m.Reason)).Str("supplier", m.Name).Msg("supplier resolved")
	s.Draft.SupplierID = idPtr(m.ID)
	s.Draft.SupplierName = m.Name
	s.Draft.SupplierResolved = true

	return e.resolveProducts(ctx, s, idx, syn)
}

// SubmitChoice applies one human reply. The token must be one of the
// options of the outstanding prompt.
func (e *Engine) SubmitChoice(ctx context.Context, conversation, token string) (Outcome, error) {
	unlock := e.locks.Lock(conversation)
	defer unlock()

	s, ok, err := e.load(ctx, conversation)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{Kind: OutcomeNoSession, Err: errx.New(errx.KindSessionNotFound, "no active session")}, nil
	}

	token = strings.TrimSpace(token)
	opt, valid := s.Prompt.option(token)
	if !valid {
		logx.Warn().Str("conversation", conversation).Str("token", token).Str("state", string(s.State)).Msg("choice rejected")
		return Outcome{
			Kind:        OutcomeInvalid,
			SessionID:   s.ID,
			Fingerprint: s.Fingerprint,
			Prompt:      s.Prompt,
			Err:         errx.Newf(errx.KindInvalidChoice, "option %q is not offered", token),
		}, nil
	}

	if opt.Action == ActionCancel {
		return e.cancel(ctx, s)
	}

	switch s.State {
	case AwaitingSupplier:
		if opt.Action == ActionPick {
			s.Draft.SupplierID = idPtr(opt.ID)
			s.Draft.SupplierName = opt.Name
			s.ConfirmedSynonyms = append(s.ConfirmedSynonyms, store.SynonymEntry{
				Kind: store.SupplierSynonym,
				Name: s.Draft.OriginalSupplierName,
				ID:   opt.ID,
			})
		} else {
			s.Draft.SupplierID = nil
		}
		s.Draft.SupplierResolved = true
		s.Prompt = nil

		idx, syn, err := e.snapshot(ctx)
		if err != nil {
			return Outcome{}, err
		}
		return e.resolveProducts(ctx, s, idx, syn)

	case AwaitingProduct:
		i := s.Prompt.ItemIndex
		if opt.Action == ActionPick {
			item := &s.Draft.Items[i]
			item.ProductID = idPtr(opt.ID)
			item.Name = opt.Name
			s.ConfirmedSynonyms = append(s.ConfirmedSynonyms, store.SynonymEntry{
				Kind: store.ProductSynonym,
				Name: item.OriginalName,
				ID:   opt.ID,
			})
		}
		s.Pending = s.Pending[1:]
		s.Prompt = nil
		return e.advance(ctx, s, nil)

	case AwaitingTotalsConfirm:
		s.TotalsConfirmed = true
		s.Prompt = nil
		return e.finalize(ctx, s)
	}

	return Outcome{}, errx.Newf(errx.KindValidation, "session %s in unexpected state %s", s.ID, s.State)
}

// Active returns the open session for a conversation, if any.
func (e *Engine) Active(ctx context.Context, conversation string) (*Session, error) {
	s, ok, err := e.load(ctx, conversation)
	if err != nil || !ok {
		return nil, err
	}
	return s, nil
}

// resolveProducts runs once per session, right after the supplier is settled.
func (e *Engine) resolveProducts(ctx context.Context, s *Session, idx *catalog.Index, syn store.Synonyms) (Outcome, error) {
	s.Pending = s.Pending[:0]
	for i := range s.Draft.Items {
		item := &s.Draft.Items[i]
		if item.ProductID != nil {
			continue
		}
		m := e.resolver.ResolveProduct(*item, idx, syn.Products)
		if !m.Resolved {
			s.Pending = append(s.Pending, i)
			continue
		}
		item.ProductID = idPtr(m.ID)
		item.Name = m.Name
	}
	return e.advance(ctx, s, idx)
}

// advance moves to the next pending product, the totals check or finalize.
func (e *Engine) advance(ctx context.Context, s *Session, idx *catalog.Index) (Outcome, error) {
	if len(s.Pending) > 0 {
		if idx == nil {
			var err error
			if idx, err = e.dir.Index(ctx); err != nil {
				return Outcome{}, err
			}
		}
		s.State = AwaitingProduct
		s.Prompt = e.productPrompt(s, idx)
		return e.suspend(ctx, s)
	}

	if !s.TotalsConfirmed {
		res := totals.Check(s.Draft.Items, s.Draft.DeclaredTotal, e.policy)
		if !res.Within {
			s.State = AwaitingTotalsConfirm
			s.Prompt = e.totalsPrompt(s, res)
			out, err := e.suspend(ctx, s)
			out.Totals = &res
			return out, err
		}
	}
	return e.finalize(ctx, s)
}

func (e *Engine) finalize(ctx context.Context, s *Session) (Outcome, error) {
	s.State = Finalizing
	s.Prompt = nil
	log := logx.Component("session").With().
		Str("conversation", s.Conversation).
		Str("session", s.ID).
		Str("fingerprint", s.Fingerprint).
		Logger()

	seen, err := e.ledger.Contains(ctx, s.Fingerprint)
	if err != nil {
		return Outcome{}, err
	}
	if seen {
		e.discard(ctx, s)
		log.Info().Msg("duplicate detected at finalize")
		return Outcome{Kind: OutcomeDuplicate, SessionID: s.ID, Fingerprint: s.Fingerprint, Err: errx.New(errx.KindDuplicate, "invoice already imported")}, nil
	}

	inv := internal.ResolvedInvoice{Invoice: s.Draft, Fingerprint: s.Fingerprint}
	supplyID, err := e.backend.CreateSupply(ctx, inv)
	if err != nil {
		e.discard(ctx, s)
		log.Error().Err(err).Msg("supply creation failed")
		if !errx.IsKind(err, errx.KindBackend) {
			err = errx.Wrap(err, errx.KindBackend, "create supply")
		}
		return Outcome{Kind: OutcomeFailed, SessionID: s.ID, Fingerprint: s.Fingerprint, Err: err}, nil
	}

	out := Outcome{Kind: OutcomeFinalized, SessionID: s.ID, Fingerprint: s.Fingerprint, SupplyID: supplyID}
	if err := e.ledger.Append(ctx, s.Fingerprint); err != nil {
		log.Error().Err(err).Str("supply", string(supplyID)).Msg("supply created but ledger write failed")
		out.Err = err
	}
	if len(s.ConfirmedSynonyms) > 0 {
		if err := e.synonyms.Put(ctx, s.ConfirmedSynonyms...); err != nil {
			log.Error().Err(err).Msg("synonym write failed")
			if out.Err == nil {
				out.Err = err
			}
		}
	}

	s.State = Done
	e.discard(ctx, s)

	if e.audit != nil {
		row := internal.ImportRow{
			SupplyID:      string(supplyID),
			Fingerprint:   s.Fingerprint,
			Conversation:  s.Conversation,
			SupplierName:  s.Draft.SupplierName,
			InvoiceNumber: s.Draft.InvoiceNumber,
			InvoiceDate:   s.Draft.InvoiceDate,
			CreatedAt:     e.now().Format(time.RFC3339),
			Invoice:       s.Draft,
		}
		if err := e.audit.RecordImport(ctx, row); err != nil {
			log.Warn().Err(err).Msg("audit record failed")
		}
	}

	log.Info().Str("supply", string(supplyID)).Int("synonyms", len(s.ConfirmedSynonyms)).Msg("supply created")
	return out, nil
}

func (e *Engine) cancel(ctx context.Context, s *Session) (Outcome, error) {
	s.State = Cancelled
	if err := e.sessions.Delete(ctx, s.Conversation); err != nil {
		return Outcome{}, err
	}
	logx.Info().Str("conversation", s.Conversation).Str("session", s.ID).Msg("session cancelled")
	return Outcome{Kind: OutcomeCancelled, SessionID: s.ID, Fingerprint: s.Fingerprint}, nil
}

func (e *Engine) suspend(ctx context.Context, s *Session) (Outcome, error) {
	now := e.now()
	s.UpdatedAt = now
	s.ExpiresAt = now.Add(e.ttl)
	blob, err := json.Marshal(s)
	if err != nil {
		return Outcome{}, errx.Wrap(err, errx.KindStorage, "encode session")
	}
	if err := e.sessions.Save(ctx, s.Conversation, blob, e.ttl); err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: OutcomePrompt, SessionID: s.ID, Fingerprint: s.Fingerprint, Prompt: s.Prompt}, nil
}

func (e *Engine) discard(ctx context.Context, s *Session) {
	if err := e.sessions.Delete(ctx, s.Conversation); err != nil {
		logx.Warn().Err(err).Str("session", s.ID).Msg("session delete failed")
	}
}

func (e *Engine) load(ctx context.Context, conversation string) (*Session, bool, error) {
	blob, ok, err := e.sessions.Load(ctx, conversation)
	if err != nil || !ok {
		return nil, false, err
	}
	var s Session
	if err := json.Unmarshal(blob, &s); err != nil {
		logx.Warn().Err(err).Str("conversation", conversation).Msg("dropping unreadable session")
		_ = e.sessions.Delete(ctx, conversation)
		return nil, false, nil
	}
	if !s.ExpiresAt.IsZero() && e.now().After(s.ExpiresAt) {
		_ = e.sessions.Delete(ctx, conversation)
		return nil, false, nil
	}
	if s.State != AwaitingSupplier && s.State != AwaitingProduct && s.State != AwaitingTotalsConfirm {
		return nil, false, nil
	}
	return &s, true, nil
}

func (e *Engine) snapshot(ctx context.Context) (*catalog.Index, store.Synonyms, error) {
	idx, err := e.dir.Index(ctx)
	if err != nil {
		return nil, store.Synonyms{}, err
	}
	syn, err := e.synonyms.Snapshot(ctx)
	if err != nil {
		return nil, store.Synonyms{}, err
	}
	return idx, syn, nil
}

func prepareDraft(d *internal.DraftInvoice) {
	if d.OriginalSupplierName == "" {
		d.OriginalSupplierName = d.SupplierName
	}
	for i := range d.Items {
		if d.Items[i].OriginalName == "" {
			d.Items[i].OriginalName = d.Items[i].Name
		}
	}
}

func idPtr(id internal.ID) *internal.ID {
	return &id
}

func productToken(index int, id internal.ID) string {
	return "product:" + strconv.Itoa(index) + ":" + id.String()
}

func productNewToken(index int) string {
	return fmt.Sprintf("product_new:%d", index)
}
