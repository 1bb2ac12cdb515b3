package pos

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"supplyrecon/internal"
	"supplyrecon/internal/config"
	"supplyrecon/internal/errx"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	cfg := config.Config{
		PosAPIToken:     "test",
		PosAPIBaseURL:   "https://example.test/api",
		PosRateLimitRPS: 1000,
		PosStorageID:    "3",
		DefaultTaxRate:  20,
		RetrySchedule:   []time.Duration{0, time.Millisecond, time.Millisecond, time.Millisecond},
	}
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatal(err)
	}
	client.httpClient = &http.Client{Transport: rt}
	client.sleep = func(context.Context, time.Duration) error { return nil }
	return client
}

func TestListSuppliersRetriesTransientFailure(t *testing.T) {
	attempt := 0
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/api/clients.getSuppliers" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("token") != "test" {
			t.Fatalf("token not sent")
		}
		attempt++
		if attempt == 1 {
			return jsonResponse(http.StatusBadGateway, `oops`), nil
		}
		return jsonResponse(http.StatusOK, `{"response":[{"supplier_id":7,"name":"Molochko LLC"},{"id":"x","name":""}]}`), nil
	})

	suppliers, err := client.ListSuppliers(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if attempt != 2 {
		t.Fatalf("attempts=%d", attempt)
	}
	if len(suppliers) != 1 || suppliers[0].ID != "7" || suppliers[0].Name != "Molochko LLC" {
		t.Fatalf("unexpected suppliers %+v", suppliers)
	}
}

func TestListSuppliersFallsBackAcrossMethods(t *testing.T) {
	var paths []string
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/api/clients.getSuppliers":
			return jsonResponse(http.StatusNotFound, `not found`), nil
		case "/api/suppliers.getSuppliers":
			return jsonResponse(http.StatusOK, `{"response":[]}`), nil
		default:
			return jsonResponse(http.StatusOK, `{"response":{"contractors":[{"id":12,"supplier_name":"Agro"}]}}`), nil
		}
	})

	suppliers, err := client.ListSuppliers(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 3 {
		t.Fatalf("expected three methods tried, got %v", paths)
	}
	if len(suppliers) != 1 || suppliers[0].Name != "Agro" {
		t.Fatalf("unexpected suppliers %+v", suppliers)
	}
}

func TestListProductsReadsCodes(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Query().Get("with_barcode") != "1" {
			t.Fatalf("missing with_barcode param")
		}
		return jsonResponse(http.StatusOK, `{"response":[{"product_id":"100","product_name":"Milk 1L","barcode":"4820000","product_code":"M1"}]}`), nil
	})

	products, err := client.ListProducts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(products) != 1 {
		t.Fatalf("len=%d", len(products))
	}
	p := products[0]
	if p.ID != "100" || *p.Barcode != "4820000" || *p.SKU != "M1" {
		t.Fatalf("unexpected product %+v", p)
	}
}

func TestListProductsSurfacesCatalogError(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadRequest, `bad`), nil
	})
	_, err := client.ListProducts(context.Background())
	if !errors.Is(err, errx.ErrCatalog) {
		t.Fatalf("expected catalog error, got %v", err)
	}
}

func sampleInvoice() internal.ResolvedInvoice {
	supplierID := internal.ID("7")
	productID := internal.ID("100")
	number := "INV-1"
	date := "2026-03-01"
	tax := decimal.NewFromInt(7)
	return internal.ResolvedInvoice{
		Fingerprint: "abc",
		Invoice: internal.DraftInvoice{
			SupplierName:  "Molochko LLC",
			SupplierID:    &supplierID,
			InvoiceNumber: &number,
			InvoiceDate:   &date,
			Currency:      "UAH",
			Items: []internal.LineItem{
				{Name: "Milk 1L", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.RequireFromString("25.50"), ProductID: &productID, TaxRate: &tax},
				{Name: "New cheese", Quantity: decimal.RequireFromString("1.5"), UnitPrice: decimal.NewFromInt(100)},
			},
		},
	}
}

func TestCreateSupplyUsesStoragePayload(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/storage.createSupply" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&got); err != nil {
			t.Fatal(err)
		}
		return jsonResponse(http.StatusOK, `{"response":{"supply_id":555}}`), nil
	})

	id, err := client.CreateSupply(context.Background(), sampleInvoice())
	if err != nil {
		t.Fatal(err)
	}
	if id != "555" {
		t.Fatalf("supply id=%s", id)
	}

	supply := got["supply"].(map[string]any)
	if supply["supplier_id"] != json.Number("7") || supply["storage_id"] != json.Number("3") {
		t.Fatalf("unexpected supply block %+v", supply)
	}
	if supply["date"] != "2026-03-01 12:00:00" {
		t.Fatalf("date=%v", supply["date"])
	}
	rows := got["ingredient"].([]any)
	first := rows[0].(map[string]any)
	if first["id"] != json.Number("100") || first["price"] != json.Number("25.5") || first["tax"] != json.Number("7") {
		t.Fatalf("unexpected ingredient %+v", first)
	}
	second := rows[1].(map[string]any)
	if second["id"] != nil {
		t.Fatalf("new product should be sent by name only: %+v", second)
	}
	if _, ok := second["tax"]; ok {
		t.Fatalf("storage payload should omit missing tax")
	}
}

func TestCreateSupplyFallsBackOnNotFoundOnly(t *testing.T) {
	var paths []string
	var generic map[string]any
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/api/storage.createSupply" {
			return jsonResponse(http.StatusNotFound, `no such method`), nil
		}
		_ = json.NewDecoder(r.Body).Decode(&generic)
		return jsonResponse(http.StatusOK, `{"response":[{"id":"IO-9"}]}`), nil
	})

	id, err := client.CreateSupply(context.Background(), sampleInvoice())
	if err != nil {
		t.Fatal(err)
	}
	if id != "IO-9" {
		t.Fatalf("supply id=%s", id)
	}
	if len(paths) != 2 || paths[1] != "/api/incomingOrders.createIncomingOrder" {
		t.Fatalf("unexpected chain %v", paths)
	}
	items := generic["items"].([]any)
	if items[1].(map[string]any)["tax"].(float64) != 20 {
		t.Fatalf("default tax not applied: %+v", items[1])
	}
	if generic["supplier_name"] != nil {
		t.Fatalf("supplier_name should be null when id is known")
	}
}

func TestCreateSupplyStopsOnValidationError(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(http.StatusBadRequest, `{"error":"bad supply"}`), nil
	})

	_, err := client.CreateSupply(context.Background(), sampleInvoice())
	if !errors.Is(err, errx.ErrBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("validation errors must not be retried or fall back, calls=%d", calls)
	}
}

func TestCreateSupplyReportsApiLevelError(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"error":32,"message":"Supplier not found"}`), nil
	})
	_, err := client.CreateSupply(context.Background(), sampleInvoice())
	if err == nil || !strings.Contains(err.Error(), "Supplier not found") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestLoadStrategiesOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	content := "suppliers:\n  - name: only\n    method: custom.getSuppliers\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	st, err := LoadStrategies(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Suppliers) != 1 || st.Suppliers[0].Method != "custom.getSuppliers" {
		t.Fatalf("override not applied: %+v", st.Suppliers)
	}
	if len(st.CreateSupply) != 3 {
		t.Fatalf("built-in create chain should remain, got %d", len(st.CreateSupply))
	}
}

func TestLoadStrategiesRejectsUnknownOutcome(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	content := "products:\n  - name: p\n    method: menu.getProducts\n    continue_on: [sometimes]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadStrategies(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	body := strings.Repeat("Помилка ", 80)
	for _, n := range []int{1, 3, 399, 400} {
		got := truncate(body, n)
		if !utf8.ValidString(got) {
			t.Fatalf("n=%d produced invalid utf-8: %q", n, got)
		}
		if len(got) > n || len(got) < n-3 {
			t.Fatalf("n=%d len=%d", n, len(got))
		}
	}
	if got := truncate("short", 400); got != "short" {
		t.Fatalf("got %q", got)
	}
}
