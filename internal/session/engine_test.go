package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supplyrecon/internal"
	"supplyrecon/internal/catalog"
	"supplyrecon/internal/errx"
	"supplyrecon/internal/resolver"
	"supplyrecon/internal/store"
	"supplyrecon/internal/util"
)

type fakeDirectory struct {
	idx *catalog.Index
	err error
}

func (f *fakeDirectory) Index(ctx context.Context) (*catalog.Index, error) {
	return f.idx, f.err
}

type fakeBackend struct {
	mu    sync.Mutex
	calls []internal.ResolvedInvoice
	err   error
	id    internal.SupplyID
}

func (f *fakeBackend) CreateSupply(ctx context.Context, inv internal.ResolvedInvoice) (internal.SupplyID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, inv)
	if f.err != nil {
		return "", f.err
	}
	if f.id == "" {
		return "S-1", nil
	}
	return f.id, nil
}

type fakeAudit struct {
	rows []internal.ImportRow
}

func (f *fakeAudit) RecordImport(ctx context.Context, row internal.ImportRow) error {
	f.rows = append(f.rows, row)
	return nil
}

type harness struct {
	engine   *Engine
	dir      *fakeDirectory
	backend  *fakeBackend
	synonyms *store.MemorySynonyms
	ledger   *store.MemoryLedger
	sessions *store.MemorySessions
	audit    *fakeAudit
}

func testCatalog() *catalog.Index {
	return catalog.BuildIndex(
		[]internal.Supplier{
			{ID: "1", Name: "Molochko LLC"},
			{ID: "2", Name: "Agro Trade"},
		},
		[]internal.Product{
			{ID: "10", Name: "Milk 1L", Barcode: util.StringPtr("4820000")},
			{ID: "11", Name: "Kefir 1L", SKU: util.StringPtr("KF-1")},
			{ID: "12", Name: "Butter 200g"},
		},
	)
}

func newHarness(t *testing.T, supplierThreshold float64) *harness {
	t.Helper()
	h := &harness{
		dir:      &fakeDirectory{idx: testCatalog()},
		backend:  &fakeBackend{},
		synonyms: store.NewMemorySynonyms(),
		ledger:   store.NewMemoryLedger(),
		sessions: store.NewMemorySessions(),
		audit:    &fakeAudit{},
	}
	h.engine = h.build(supplierThreshold)
	return h
}

func (h *harness) build(supplierThreshold float64) *Engine {
	return NewEngine(Deps{
		Directory: h.dir,
		Backend:   h.backend,
		Synonyms:  h.synonyms,
		Ledger:    h.ledger,
		Sessions:  h.sessions,
		Audit:     h.audit,
	}, Options{Resolver: resolver.New(supplierThreshold, 0.90)})
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func item(name, qty, price string) internal.LineItem {
	return internal.LineItem{Name: name, Quantity: d(qty), UnitPrice: d(price)}
}

func cleanDraft(total string) internal.DraftInvoice {
	draft := internal.DraftInvoice{
		SupplierName:  "Molochko LLC",
		InvoiceNumber: util.StringPtr("INV-7"),
		InvoiceDate:   util.StringPtr("2026-03-01"),
		Currency:      "UAH",
		Items: []internal.LineItem{
			item("Milk 1L", "10", "20.00"),
			item("Kefir 1L", "1", "50.00"),
		},
	}
	if total != "" {
		draft.DeclaredTotal = dp(total)
	}
	return draft
}

func tokens(p *Prompt) []string {
	var out []string
	for _, o := range p.Options {
		out = append(out, o.Token)
	}
	return out
}

func TestCleanInvoiceFinalizesWithoutPrompt(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0.92)

	out, err := h.engine.StartResolution(ctx, "tg:1", cleanDraft("250.00"))
	require.NoError(t, err)
	require.Equal(t, OutcomeFinalized, out.Kind)
	assert.Equal(t, internal.SupplyID("S-1"), out.SupplyID)

	require.Len(t, h.backend.calls, 1)
	sent := h.backend.calls[0].Invoice
	require.NotNil(t, sent.SupplierID)
	assert.Equal(t, internal.ID("1"), *sent.SupplierID)
	assert.Equal(t, internal.ID("10"), *sent.Items[0].ProductID)

	ok, _ := h.ledger.Contains(ctx, out.Fingerprint)
	assert.True(t, ok)

	snap, _ := h.synonyms.Snapshot(ctx)
	assert.Empty(t, snap.Suppliers, "exact matches must not create synonyms")
	assert.Empty(t, snap.Products)

	require.Len(t, h.audit.rows, 1)
	assert.Equal(t, "S-1", h.audit.rows[0].SupplyID)

	active, err := h.engine.Active(ctx, "tg:1")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestDuplicateRejectedRegardlessOfItems(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0.92)

	_, err := h.engine.StartResolution(ctx, "tg:1", cleanDraft("250.00"))
	require.NoError(t, err)

	again := cleanDraft("250.00")
	again.Items = []internal.LineItem{item("Something else", "3", "1")}
	out, err := h.engine.StartResolution(ctx, "tg:2", again)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out.Kind)
	assert.True(t, errors.Is(out.Err, errx.ErrDuplicate))
	assert.Len(t, h.backend.calls, 1)

	active, _ := h.engine.Active(ctx, "tg:2")
	assert.Nil(t, active, "a duplicate must not open a session")
}

func TestSupplierPromptAndDeferredSynonym(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0.92)

	draft := cleanDraft("250.00")
	draft.SupplierName = "Ферма Петренка"
	out, err := h.engine.StartResolution(ctx, "tg:1", draft)
	require.NoError(t, err)
	require.Equal(t, OutcomePrompt, out.Kind)
	require.Equal(t, SupplierChoice, out.Prompt.Kind)
	got := tokens(out.Prompt)
	require.Len(t, got, 4)
	assert.ElementsMatch(t, []string{"supplier:1", "supplier:2"}, got[:2])
	assert.Equal(t, []string{TokenSupplierNew, TokenCancel}, got[2:])
	var labels []string
	for _, o := range out.Prompt.Options {
		labels = append(labels, o.Label)
	}
	assert.Contains(t, labels, "Molochko LLC (#1)")

	active, err := h.engine.Active(ctx, "tg:1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, AwaitingSupplier, active.State)

	out, err = h.engine.SubmitChoice(ctx, "tg:1", "supplier:2")
	require.NoError(t, err)
	require.Equal(t, OutcomeFinalized, out.Kind)

	sent := h.backend.calls[0].Invoice
	assert.Equal(t, "Agro Trade", sent.SupplierName)
	assert.Equal(t, internal.ID("2"), *sent.SupplierID)

	snap, _ := h.synonyms.Snapshot(ctx)
	assert.Equal(t, internal.ID("2"), snap.Suppliers["ферма петренка"])
}

func TestFuzzySupplierResolvesAndConfirmationRecordsSynonym(t *testing.T) {
	ctx := context.Background()

	t.Run("auto", func(t *testing.T) {
		h := newHarness(t, 0.92)
		draft := cleanDraft("250.00")
		draft.SupplierName = "Mlochko LLC"
		out, err := h.engine.StartResolution(ctx, "tg:1", draft)
		require.NoError(t, err)
		require.Equal(t, OutcomeFinalized, out.Kind)
		assert.Equal(t, "Molochko LLC", h.backend.calls[0].Invoice.SupplierName)
		assert.Equal(t, "Mlochko LLC", h.backend.calls[0].Invoice.OriginalSupplierName)
	})

	t.Run("confirmed", func(t *testing.T) {
		h := newHarness(t, 0.99)
		draft := cleanDraft("250.00")
		draft.SupplierName = "Mlochko LLC"
		out, err := h.engine.StartResolution(ctx, "tg:1", draft)
		require.NoError(t, err)
		require.Equal(t, OutcomePrompt, out.Kind)
		assert.Equal(t, "supplier:1", out.Prompt.Options[0].Token)

		out, err = h.engine.SubmitChoice(ctx, "tg:1", "supplier:1")
		require.NoError(t, err)
		require.Equal(t, OutcomeFinalized, out.Kind)

		snap, _ := h.synonyms.Snapshot(ctx)
		assert.Equal(t, internal.ID("1"), snap.Suppliers["mlochko llc"])

		next := cleanDraft("300.00")
		next.SupplierName = "MLOCHKO LLC"
		next.Items = []internal.LineItem{item("Milk 1L", "15", "20")}
		out, err = h.engine.StartResolution(ctx, "tg:1", next)
		require.NoError(t, err)
		assert.Equal(t, OutcomeFinalized, out.Kind, "the synonym should resolve the supplier without a prompt")
	})
}

func TestProductsVisitedInOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0.92)

	draft := cleanDraft("")
	draft.Items = []internal.LineItem{
		item("Milk 1L", "1", "20"),
		item("Сир твердий", "2", "100"),
		item("Kefir 1L", "1", "50"),
		item("Йогурт", "3", "30"),
	}

	out, err := h.engine.StartResolution(ctx, "tg:1", draft)
	require.NoError(t, err)
	require.Equal(t, ProductChoice, out.Prompt.Kind)
	assert.Equal(t, 1, out.Prompt.ItemIndex)
	assert.Equal(t, 2, out.Prompt.Remaining)
	assert.Contains(t, tokens(out.Prompt), "product:1:12")
	assert.Contains(t, tokens(out.Prompt), "product_new:1")

	out, err = h.engine.SubmitChoice(ctx, "tg:1", "product:1:12")
	require.NoError(t, err)
	require.Equal(t, OutcomePrompt, out.Kind)
	assert.Equal(t, 3, out.Prompt.ItemIndex)

	out, err = h.engine.SubmitChoice(ctx, "tg:1", "product_new:3")
	require.NoError(t, err)
	require.Equal(t, OutcomeFinalized, out.Kind)

	sent := h.backend.calls[0].Invoice
	assert.Equal(t, "Butter 200g", sent.Items[1].Name)
	assert.Equal(t, "Сир твердий", sent.Items[1].OriginalName)
	assert.Nil(t, sent.Items[3].ProductID, "create new leaves the product unbound")

	snap, _ := h.synonyms.Snapshot(ctx)
	assert.Equal(t, map[string]internal.ID{"сир твердий": "12"}, snap.Products)
}

func TestBarcodeResolvesInstantly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0.92)

	draft := cleanDraft("")
	draft.Items = []internal.LineItem{{Name: "Totally different", Barcode: util.StringPtr("4820000"), Quantity: d("1"), UnitPrice: d("20")}}

	out, err := h.engine.StartResolution(ctx, "tg:1", draft)
	require.NoError(t, err)
	require.Equal(t, OutcomeFinalized, out.Kind)
	assert.Equal(t, internal.ID("10"), *h.backend.calls[0].Invoice.Items[0].ProductID)
	assert.Equal(t, "Milk 1L", h.backend.calls[0].Invoice.Items[0].Name)
}

func TestTotalsOutOfTolerance(t *testing.T) {
	ctx := context.Background()

	t.Run("proceed", func(t *testing.T) {
		h := newHarness(t, 0.92)
		out, err := h.engine.StartResolution(ctx, "tg:1", cleanDraft("260.00"))
		require.NoError(t, err)
		require.Equal(t, TotalsConfirm, out.Prompt.Kind)
		require.NotNil(t, out.Totals)
		assert.True(t, out.Totals.Diff.Equal(d("10")))
		assert.Equal(t, "10.00", out.Prompt.Totals.Diff)
		assert.Equal(t, []string{TokenConfirmProceed, TokenConfirmCancel}, tokens(out.Prompt))

		out, err = h.engine.SubmitChoice(ctx, "tg:1", TokenConfirmProceed)
		require.NoError(t, err)
		assert.Equal(t, OutcomeFinalized, out.Kind)
	})

	t.Run("cancel", func(t *testing.T) {
		h := newHarness(t, 0.92)
		out, err := h.engine.StartResolution(ctx, "tg:1", cleanDraft("260.00"))
		require.NoError(t, err)

		out, err = h.engine.SubmitChoice(ctx, "tg:1", TokenConfirmCancel)
		require.NoError(t, err)
		assert.Equal(t, OutcomeCancelled, out.Kind)
		assert.Empty(t, h.backend.calls)

		ok, _ := h.ledger.Contains(ctx, out.Fingerprint)
		assert.False(t, ok)

		out, err = h.engine.SubmitChoice(ctx, "tg:1", TokenConfirmProceed)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNoSession, out.Kind)
	})
}

func TestCancelWritesNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0.99)

	draft := cleanDraft("250.00")
	draft.SupplierName = "Mlochko LLC"
	draft.Items = append(draft.Items, item("Йогурт", "1", "0"))
	_, err := h.engine.StartResolution(ctx, "tg:1", draft)
	require.NoError(t, err)

	out, err := h.engine.SubmitChoice(ctx, "tg:1", "supplier:1")
	require.NoError(t, err)
	require.Equal(t, ProductChoice, out.Prompt.Kind)

	out, err = h.engine.SubmitChoice(ctx, "tg:1", TokenCancel)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, out.Kind)

	snap, _ := h.synonyms.Snapshot(ctx)
	assert.Empty(t, snap.Suppliers, "a cancelled session must not leave synonyms behind")
}

func TestInvalidTokenLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0.92)

	draft := cleanDraft("250.00")
	draft.SupplierName = "Ферма Петренка"
	_, err := h.engine.StartResolution(ctx, "tg:1", draft)
	require.NoError(t, err)

	for _, token := range []string{"supplier:99", "confirm:proceed", "product:0:10", "garbage"} {
		out, err := h.engine.SubmitChoice(ctx, "tg:1", token)
		require.NoError(t, err)
		assert.Equal(t, OutcomeInvalid, out.Kind, token)
		assert.True(t, errors.Is(out.Err, errx.ErrInvalidChoice))
		require.NotNil(t, out.Prompt)
		assert.Equal(t, SupplierChoice, out.Prompt.Kind)
	}

	active, _ := h.engine.Active(ctx, "tg:1")
	require.NotNil(t, active)
	assert.Equal(t, AwaitingSupplier, active.State)
}

func TestNoActiveSession(t *testing.T) {
	h := newHarness(t, 0.92)
	out, err := h.engine.SubmitChoice(context.Background(), "tg:404", "cancel")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoSession, out.Kind)
	assert.True(t, errors.Is(out.Err, errx.ErrSessionNotFound))
}

func TestBackendFailureDiscardsSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0.92)
	h.backend.err = errx.New(errx.KindBackend, "storage.createSupply: 500")

	draft := cleanDraft("250.00")
	draft.SupplierName = "Ферма Петренка"
	_, err := h.engine.StartResolution(ctx, "tg:1", draft)
	require.NoError(t, err)

	out, err := h.engine.SubmitChoice(ctx, "tg:1", "supplier:1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, out.Kind)
	assert.True(t, errors.Is(out.Err, errx.ErrBackend))

	ok, _ := h.ledger.Contains(ctx, out.Fingerprint)
	assert.False(t, ok)
	snap, _ := h.synonyms.Snapshot(ctx)
	assert.Empty(t, snap.Suppliers)

	out, err = h.engine.SubmitChoice(ctx, "tg:1", "supplier:1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoSession, out.Kind)

	h.backend.err = nil
	out, err = h.engine.StartResolution(ctx, "tg:1", draft)
	require.NoError(t, err)
	assert.Equal(t, OutcomePrompt, out.Kind, "re-upload after a failure starts over")
}

func TestCatalogErrorAbortsStart(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0.92)
	h.dir.err = errx.New(errx.KindCatalog, "directory unavailable")

	_, err := h.engine.StartResolution(ctx, "tg:1", cleanDraft("250.00"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrCatalog))

	active, _ := h.engine.Active(ctx, "tg:1")
	assert.Nil(t, active)
}

func TestNewUploadSupersedes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0.92)

	first := cleanDraft("250.00")
	first.SupplierName = "Ферма Петренка"
	out1, err := h.engine.StartResolution(ctx, "tg:1", first)
	require.NoError(t, err)

	second := cleanDraft("999.00")
	second.InvoiceNumber = util.StringPtr("INV-8")
	out2, err := h.engine.StartResolution(ctx, "tg:1", second)
	require.NoError(t, err)
	require.Equal(t, TotalsConfirm, out2.Prompt.Kind)
	assert.NotEqual(t, out1.SessionID, out2.SessionID)

	out, err := h.engine.SubmitChoice(ctx, "tg:1", "supplier:1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalid, out.Kind, "replies to the superseded prompt are stale")
}

func TestSessionResumesAcrossEngines(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0.92)

	draft := cleanDraft("250.00")
	draft.SupplierName = "Ферма Петренка"
	_, err := h.engine.StartResolution(ctx, "tg:1", draft)
	require.NoError(t, err)

	restarted := h.build(0.92)
	out, err := restarted.SubmitChoice(ctx, "tg:1", TokenSupplierNew)
	require.NoError(t, err)
	require.Equal(t, OutcomeFinalized, out.Kind)
	assert.Nil(t, h.backend.calls[0].Invoice.SupplierID)
	assert.True(t, h.backend.calls[0].Invoice.SupplierResolved)
}

func TestCreateNewSupplierNeverMatchesCatalogID(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0.99)
	h.dir.idx = catalog.BuildIndex(
		[]internal.Supplier{{ID: "new", Name: "Molochkoo LLC"}},
		testCatalog().Products,
	)

	draft := cleanDraft("250.00")
	draft.SupplierName = "Molochko LLC"
	out, err := h.engine.StartResolution(ctx, "tg:1", draft)
	require.NoError(t, err)
	require.Equal(t, OutcomePrompt, out.Kind)
	got := tokens(out.Prompt)
	assert.Equal(t, []string{"supplier:new", TokenSupplierNew, TokenCancel}, got)

	out, err = h.engine.SubmitChoice(ctx, "tg:1", TokenSupplierNew)
	require.NoError(t, err)
	require.Equal(t, OutcomeFinalized, out.Kind)
	sent := h.backend.calls[0].Invoice
	assert.Nil(t, sent.SupplierID)
	assert.True(t, sent.SupplierResolved)

	snap, _ := h.synonyms.Snapshot(ctx)
	assert.Empty(t, snap.Suppliers, "create new must not record a synonym")
}

func TestSessionExpires(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0.92)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	h.engine.now = func() time.Time { return now }

	draft := cleanDraft("250.00")
	draft.SupplierName = "Ферма Петренка"
	_, err := h.engine.StartResolution(ctx, "tg:1", draft)
	require.NoError(t, err)

	now = now.Add(25 * time.Hour)
	out, err := h.engine.SubmitChoice(ctx, "tg:1", "supplier:1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoSession, out.Kind)
}

func TestFingerprintIgnoresItems(t *testing.T) {
	a := cleanDraft("250.00")
	b := cleanDraft("250.00")
	b.Items = nil
	assert.Equal(t, Fingerprint(a), Fingerprint(b))

	c := cleanDraft("250.01")
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
	assert.Len(t, Fingerprint(a), 64)
}
