package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"supplyrecon/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		DataDir:           dir,
		DBPath:            filepath.Join(dir, "app.db"),
		RawMailDir:        filepath.Join(dir, "raw"),
		StoreBackend:      "file",
		SessionBackend:    "memory",
		SupplierThreshold: 0.92,
		ProductThreshold:  0.90,
		SuggestionLimit:   5,
		RoundingMode:      "BANKERS",
		RoundingDigits:    2,
		TolerancePercent:  0.005,
		ToleranceAbsolute: 0.5,
		DefaultCurrency:   "UAH",
	}
}

func TestOpenWiresEverything(t *testing.T) {
	a, err := Open(context.Background(), testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if a.Engine == nil || a.Extractor == nil || a.Directory == nil || a.POS == nil {
		t.Fatalf("incomplete app: %+v", a)
	}
	if a.Processor() == nil || a.Listener() == nil || a.CatalogSync() == nil {
		t.Fatal("derived services missing")
	}
	if _, err := os.Stat(a.Cfg.DBPath); err != nil {
		t.Fatalf("db not created: %v", err)
	}

	s, err := a.Engine.Active(context.Background(), "console:nobody")
	if err != nil || s != nil {
		t.Fatalf("fresh engine should have no session, got %v %v", s, err)
	}
}

func TestOpenRejectsUnknownBackends(t *testing.T) {
	cfg := testConfig(t)
	cfg.StoreBackend = "etcd"
	if _, err := Open(context.Background(), cfg); err == nil {
		t.Fatal("expected error for store backend")
	}

	cfg = testConfig(t)
	cfg.SessionBackend = "memcached"
	if _, err := Open(context.Background(), cfg); err == nil {
		t.Fatal("expected error for session backend")
	}
}

func TestOpenRejectsBadRounding(t *testing.T) {
	cfg := testConfig(t)
	cfg.RoundingMode = "CEILING"
	if _, err := Open(context.Background(), cfg); err == nil {
		t.Fatal("expected error for rounding mode")
	}
}
