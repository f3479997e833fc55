package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ilaydakx/pos-system/internal/cache"
	"github.com/ilaydakx/pos-system/internal/domain"
	"github.com/ilaydakx/pos-system/internal/service"
	"github.com/ilaydakx/pos-system/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store and a real
// Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopReportCache{}, "STORE", 5*time.Second)
	return New(svc, "*")
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	decodeBody(t, rec, &body)
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", body["status"])
	}
}

func TestHandleProducts_ListAndCreate(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var listBody struct {
		Products []domain.Product `json:"products"`
	}
	decodeBody(t, rec, &listBody)
	if len(listBody.Products) != 5 {
		t.Fatalf("expected 5 seeded products, got %d", len(listBody.Products))
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/products", domain.ProductCreateRequest{
		Name:      "Deri Kemer",
		Category:  "Aksesuar",
		SellPrice: 349.9,
		BuyPrice:  150,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var createBody struct {
		Product domain.Product `json:"product"`
	}
	decodeBody(t, rec, &createBody)
	if createBody.Product.Barcode != "1000006" {
		t.Fatalf("expected generated barcode 1000006, got %s", createBody.Product.Barcode)
	}
	if createBody.Product.ProductCode != "AKS001" {
		t.Fatalf("expected product code AKS001, got %s", createBody.Product.ProductCode)
	}
}

func TestHandleProducts_UnknownFieldRejected(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", map[string]any{
		"name":     "Bozuk",
		"mystery":  true,
		"category": "Test",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestHandleSales_InsufficientStockConflict(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", domain.SaleRequest{
		Items: []domain.SaleItemRequest{{Barcode: "1000005", Qty: 99}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	decodeBody(t, rec, &body)
	if body["barcode"] != "1000005" {
		t.Fatalf("conflict payload should name the barcode, got %v", body)
	}
	if body["available"] == nil || body["requested"] == nil {
		t.Fatalf("conflict payload should carry available and requested, got %v", body)
	}
}

func TestHandleSales_UnknownBarcode(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", domain.SaleRequest{
		Items: []domain.SaleItemRequest{{Barcode: "9999999", Qty: 1}},
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleSales_UndoLast(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", domain.SaleRequest{
		Items: []domain.SaleItemRequest{{Barcode: "1000001", Qty: 1}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("sale failed: %d (body: %s)", rec.Code, rec.Body.String())
	}
	var receipt domain.SaleReceipt
	decodeBody(t, rec, &receipt)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales/undo-last", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("undo failed: %d (body: %s)", rec.Code, rec.Body.String())
	}
	var result domain.UndoResult
	decodeBody(t, rec, &result)
	if result.GroupID != receipt.GroupID {
		t.Fatalf("expected undo of %s, got %s", receipt.GroupID, result.GroupID)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales/undo-last", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when nothing is left to undo, got %d", rec.Code)
	}
}

func TestHandleReturns_ConflictPayload(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", domain.SaleRequest{
		Items: []domain.SaleItemRequest{{Barcode: "1000004", Qty: 2}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("sale failed: %d", rec.Code)
	}
	var receipt domain.SaleReceipt
	decodeBody(t, rec, &receipt)
	soldAt := receipt.Lines[0].SoldAt

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/returns", domain.ReturnRequest{
		Barcode: "1000004",
		Qty:     2,
		SoldAt:  &soldAt,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("return failed: %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/returns", domain.ReturnRequest{
		Barcode: "1000004",
		Qty:     1,
		SoldAt:  &soldAt,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 once everything is refunded, got %d", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["remaining"] != float64(0) {
		t.Fatalf("expected remaining 0 in conflict payload, got %v", body["remaining"])
	}
}

func TestHandleTransfers_RoundTrip(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/transfers", domain.TransferRequest{
		Items: []domain.TransferItemRequest{
			{Barcode: "1000003", Qty: 2, FromLocation: "WAREHOUSE", ToLocation: "STORE"},
		},
		Note: "raf düzeni",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("transfer failed: %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/transfers/undo-last", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("undo transfer failed: %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products/1000003", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get product failed: %d", rec.Code)
	}
	var body struct {
		Product domain.Product `json:"product"`
	}
	decodeBody(t, rec, &body)
	if body.Product.StockStore != 7 || body.Product.StockWarehouse != 10 {
		t.Fatalf("expected stock back at 7/10, got %d/%d", body.Product.StockStore, body.Product.StockWarehouse)
	}
}

func TestHandleDashboard(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", domain.SaleRequest{
		Items: []domain.SaleItemRequest{{Barcode: "1000001", Qty: 2}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("sale failed: %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/reports/dashboard?days=7&months=3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard failed: %d (body: %s)", rec.Code, rec.Body.String())
	}
	var summary domain.DashboardSummary
	decodeBody(t, rec, &summary)
	if summary.TodayQty != 2 {
		t.Fatalf("expected today qty 2, got %d", summary.TodayQty)
	}
}

func TestHandleDictionaries_UsageGuard(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/dictionaries/categories", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list failed: %d", rec.Code)
	}
	var listBody struct {
		Entries []domain.DictionaryEntry `json:"entries"`
	}
	decodeBody(t, rec, &listBody)

	var shirtID int64
	for _, e := range listBody.Entries {
		if e.Name == "Gömlek" {
			shirtID = e.ID
		}
	}
	if shirtID == 0 {
		t.Fatalf("seed category missing")
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/dictionaries/categories/"+strconv.FormatInt(shirtID, 10), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a category still in use, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleMethodNotAllowed(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodDelete, "/api/v1/sales", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
