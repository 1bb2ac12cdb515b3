package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileSynonymsRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "synonyms.json")

	s := OpenFileSynonyms(path)
	err := s.Put(ctx,
		SynonymEntry{Kind: SupplierSynonym, Name: "  Mlochko LLC ", ID: "1"},
		SynonymEntry{Kind: ProductSynonym, Name: "Масло", ID: "12"},
	)
	if err != nil {
		t.Fatal(err)
	}

	reopened := OpenFileSynonyms(path)
	snap, err := reopened.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Suppliers["mlochko llc"] != "1" {
		t.Fatalf("supplier synonym lost: %+v", snap.Suppliers)
	}
	if snap.Products["масло"] != "12" {
		t.Fatalf("product synonym lost: %+v", snap.Products)
	}
}

func TestFileSynonymsSnapshotIsCopy(t *testing.T) {
	ctx := context.Background()
	s := OpenFileSynonyms(filepath.Join(t.TempDir(), "synonyms.json"))
	snap, _ := s.Snapshot(ctx)
	snap.Suppliers["x"] = "1"
	again, _ := s.Snapshot(ctx)
	if _, ok := again.Suppliers["x"]; ok {
		t.Fatal("snapshot mutation leaked into store")
	}
}

func TestFileLedgerRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "processed.json")

	l := OpenFileLedger(path)
	if err := l.Append(ctx, "fp-1"); err != nil {
		t.Fatal(err)
	}
	if err := l.Append(ctx, "fp-1"); err != nil {
		t.Fatal(err)
	}

	reopened := OpenFileLedger(path)
	ok, err := reopened.Contains(ctx, "fp-1")
	if err != nil || !ok {
		t.Fatalf("fingerprint not persisted: ok=%v err=%v", ok, err)
	}
	if ok, _ := reopened.Contains(ctx, "fp-2"); ok {
		t.Fatal("unexpected fingerprint")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "{\n  \"keys\": [\n    \"fp-1\"\n  ]\n}" {
		t.Fatalf("unexpected file content %s", raw)
	}
}

func TestCorruptFilesStartEmpty(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	synPath := filepath.Join(dir, "synonyms.json")
	ledPath := filepath.Join(dir, "processed.json")
	if err := os.WriteFile(synPath, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ledPath, []byte("[1,2"), 0o644); err != nil {
		t.Fatal(err)
	}

	snap, err := OpenFileSynonyms(synPath).Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Suppliers) != 0 || len(snap.Products) != 0 {
		t.Fatalf("expected empty synonyms, got %+v", snap)
	}

	l := OpenFileLedger(ledPath)
	if ok, _ := l.Contains(ctx, "anything"); ok {
		t.Fatal("expected empty ledger")
	}
	if err := l.Append(ctx, "fp"); err != nil {
		t.Fatalf("a corrupt file must not block new writes: %v", err)
	}
}

func TestMemorySessionsExpire(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySessions()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if err := s.Save(ctx, "chat:1", []byte(`{}`), time.Hour); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Load(ctx, "chat:1"); !ok {
		t.Fatal("session should be present")
	}
	now = now.Add(2 * time.Hour)
	if _, ok, _ := s.Load(ctx, "chat:1"); ok {
		t.Fatal("session should have expired")
	}
}

func TestMemoryStores(t *testing.T) {
	ctx := context.Background()
	syn := NewMemorySynonyms()
	_ = syn.Put(ctx, SynonymEntry{Kind: SupplierSynonym, Name: "A", ID: "1"}, SynonymEntry{Kind: ProductSynonym, Name: "", ID: "2"})
	snap, _ := syn.Snapshot(ctx)
	if snap.Suppliers["a"] != "1" || len(snap.Products) != 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	led := NewMemoryLedger()
	_ = led.Append(ctx, "x")
	if ok, _ := led.Contains(ctx, "x"); !ok {
		t.Fatal("ledger lost key")
	}
}
