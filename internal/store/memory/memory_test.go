package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ilaydakx/pos-system/internal/domain"
	"github.com/ilaydakx/pos-system/internal/store"
)

func TestCreateProductGeneratesBarcodeAndCode(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	p, err := s.CreateProduct(ctx, domain.ProductCreateRequest{
		Name:      "Keten Gömlek",
		Category:  "Gömlek",
		SellPrice: 599.9,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if p.Barcode != "1000006" {
		t.Fatalf("expected next barcode 1000006, got %s", p.Barcode)
	}
	// Two GOM codes already exist in the seed.
	if p.ProductCode != "GOM003" {
		t.Fatalf("expected GOM003, got %s", p.ProductCode)
	}
	if p.Active != true {
		t.Fatalf("new products must start active")
	}
}

func TestCreateProductRejectsDuplicateBarcode(t *testing.T) {
	s := NewSeeded()

	_, err := s.CreateProduct(context.Background(), domain.ProductCreateRequest{
		Barcode:   "1000001",
		Name:      "Kopya",
		Category:  "Gömlek",
		SellPrice: 1,
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeleteProductFallsBackToDeactivation(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	// Untouched product: hard delete.
	result, err := s.DeleteProduct(ctx, "1000002")
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if !result.Deleted || result.Deactivated {
		t.Fatalf("expected a hard delete, got %+v", result)
	}

	// Product with sales history: deactivate and zero the stock.
	if _, err := s.CreateSale(ctx, "S1", domain.SaleRequest{
		Items: []domain.SaleItemRequest{{Barcode: "1000001", Qty: 1, Location: "STORE"}},
	}, time.Now().UTC()); err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	result, err = s.DeleteProduct(ctx, "1000001")
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if result.Deleted || !result.Deactivated {
		t.Fatalf("expected deactivation, got %+v", result)
	}

	p, err := s.GetProductByBarcode(ctx, "1000001")
	if err != nil {
		t.Fatalf("deactivated product must still resolve: %v", err)
	}
	if p.Active || p.Stock != 0 || p.StockStore != 0 || p.StockWarehouse != 0 {
		t.Fatalf("expected inactive product with zeroed stock, got %+v", p)
	}
}

func TestSaleRejectsInactiveProduct(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if _, err := s.CreateSale(ctx, "S1", domain.SaleRequest{
		Items: []domain.SaleItemRequest{{Barcode: "1000001", Qty: 1, Location: "STORE"}},
	}, time.Now().UTC()); err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if _, err := s.DeleteProduct(ctx, "1000001"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	_, err := s.CreateSale(ctx, "S2", domain.SaleRequest{
		Items: []domain.SaleItemRequest{{Barcode: "1000001", Qty: 1, Location: "STORE"}},
	}, time.Now().UTC())
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for an inactive product, got %v", err)
	}
}

func TestUpdateProductAppliesOnlyProvidedFields(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	price := 549.9
	updated, err := s.UpdateProduct(ctx, domain.ProductUpdateRequest{
		Barcode:   "1000001",
		SellPrice: &price,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.SellPrice != 549.9 {
		t.Fatalf("expected sell price 549.9, got %f", updated.SellPrice)
	}
	if updated.Name != "Beyaz Gömlek" {
		t.Fatalf("unset fields must keep their values, got %s", updated.Name)
	}
}

func TestDictionaryCreateReactivatesExistingName(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	entry, err := s.CreateDictionaryEntry(ctx, domain.DictColors, domain.DictionaryCreateRequest{Name: "Bordo"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := s.UpdateDictionaryEntry(ctx, domain.DictColors, entry.ID, domain.DictionaryUpdateRequest{
		Active: boolPtr(false),
	}); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}

	again, err := s.CreateDictionaryEntry(ctx, domain.DictColors, domain.DictionaryCreateRequest{Name: "bordo"})
	if err != nil {
		t.Fatalf("re-create failed: %v", err)
	}
	if again.ID != entry.ID {
		t.Fatalf("re-creating a name must reactivate the old entry, got id %d vs %d", again.ID, entry.ID)
	}
	if !again.Active {
		t.Fatalf("expected the entry to be active again")
	}
}

func TestDictionaryDeactivateGuardedByUsage(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	entries, err := s.ListDictionary(ctx, domain.DictColors, false)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	var whiteID int64
	for _, e := range entries {
		if e.Name == "Beyaz" {
			whiteID = e.ID
		}
	}

	_, err = s.UpdateDictionaryEntry(ctx, domain.DictColors, whiteID, domain.DictionaryUpdateRequest{
		Active: boolPtr(false),
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected a used color to be protected, got %v", err)
	}
}

func TestListSaleGroupsSearchAndExchangeKind(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := s.CreateSale(ctx, "S100", domain.SaleRequest{
		PaymentMethod: "CASH",
		Items:         []domain.SaleItemRequest{{Barcode: "1000001", Qty: 1, Location: "STORE"}},
	}, now); err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if _, err := s.CreateExchange(ctx, "E100", domain.ExchangeRequest{
		Returned: domain.ReturnRequest{Barcode: "1000004", Qty: 1, Location: "STORE"},
		Given:    []domain.SaleItemRequest{{Barcode: "1000005", Qty: 1, Location: "STORE"}},
	}, now.Add(time.Second)); err != nil {
		t.Fatalf("exchange failed: %v", err)
	}

	groups, err := s.ListSaleGroups(ctx, 7, "", now.Add(2*time.Second))
	if err != nil {
		t.Fatalf("list groups failed: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	// Newest first.
	if groups[0].Kind != domain.GroupKindExchange || groups[1].Kind != domain.GroupKindSale {
		t.Fatalf("expected EXCHANGE then SALE, got %s / %s", groups[0].Kind, groups[1].Kind)
	}

	// Search narrows by product name.
	groups, err = s.ListSaleGroups(ctx, 7, "Gömlek", now.Add(2*time.Second))
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(groups) != 1 || groups[0].GroupID != "S100" {
		t.Fatalf("expected only the shirt sale, got %+v", groups)
	}
}

func TestListSalesByGroupResolvesKindByPrefix(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := s.CreateSale(ctx, "S200", domain.SaleRequest{
		Items: []domain.SaleItemRequest{{Barcode: "1000001", Qty: 2, Location: "STORE"}},
	}, now); err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	lines, err := s.ListSalesByGroup(ctx, "S200")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(lines) != 1 || lines[0].Qty != 2 {
		t.Fatalf("expected one line with qty 2, got %+v", lines)
	}

	if _, err := s.ListSalesByGroup(ctx, "S999999"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for an unknown group, got %v", err)
	}
	if _, err := s.ListSalesByGroup(ctx, "X123"); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for an unknown prefix, got %v", err)
	}
}

func TestDeleteReturnGroupRemovesLines(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := s.CreateReturn(ctx, "R300", domain.ReturnRequest{
		Barcode:  "1000001",
		Qty:      1,
		Location: "STORE",
	}, now); err != nil {
		t.Fatalf("return failed: %v", err)
	}

	if err := s.DeleteReturnGroup(ctx, "R300"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := s.DeleteReturnGroup(ctx, "R300"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if _, err := s.CreateSale(ctx, "S400", domain.SaleRequest{
		PaymentMethod: "CASH",
		Items:         []domain.SaleItemRequest{{Barcode: "1000004", Qty: 3, Location: "STORE"}},
	}, time.Now().UTC()); err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	data, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	restored := New()
	if err := restored.Restore(ctx, data); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	p, err := restored.GetProductByBarcode(ctx, "1000004")
	if err != nil {
		t.Fatalf("restored product missing: %v", err)
	}
	if p.StockStore != 17 {
		t.Fatalf("expected restored store stock 17, got %d", p.StockStore)
	}

	lines, err := restored.ListSalesByGroup(ctx, "S400")
	if err != nil || len(lines) != 1 {
		t.Fatalf("expected the sale to survive the round trip, got %v / %v", lines, err)
	}

	// New ids must continue after the restored state.
	created, err := restored.CreateProduct(ctx, domain.ProductCreateRequest{
		Name:      "Yeni Ürün",
		Category:  "Ceket",
		SellPrice: 100,
	})
	if err != nil {
		t.Fatalf("create after restore failed: %v", err)
	}
	if created.ID <= p.ID {
		t.Fatalf("expected id counters to resume, got %d", created.ID)
	}
}

func boolPtr(v bool) *bool { return &v }
