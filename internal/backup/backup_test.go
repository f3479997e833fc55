package backup

import (
	"context"
	"testing"
	"time"

	"github.com/ilaydakx/pos-system/internal/domain"
	"github.com/ilaydakx/pos-system/internal/store/memory"
)

func TestRunnerRestoresLatestSnapshot(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := memory.NewSeeded()
	if _, err := first.CreateSale(ctx, "S1", domain.SaleRequest{
		PaymentMethod: "CASH",
		Items: []domain.SaleItemRequest{
			{Barcode: "1000001", Qty: 2, Location: "STORE"},
		},
	}, time.Now().UTC()); err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	runner := NewRunner(first, dir, time.Hour)
	if err := runner.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	runner.Close() // the shutdown path writes a final snapshot

	second := memory.New()
	runner2 := NewRunner(second, dir, time.Hour)
	if err := runner2.Start(ctx); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	defer runner2.Close()

	p, err := second.GetProductByBarcode(ctx, "1000001")
	if err != nil {
		t.Fatalf("restored store is missing the product: %v", err)
	}
	if p.StockStore != 10 {
		t.Fatalf("expected restored store stock 10 (12 seeded minus 2 sold), got %d", p.StockStore)
	}
}

func TestRestoreIgnoresCorruptPayload(t *testing.T) {
	s := memory.NewSeeded()
	if err := s.Restore(context.Background(), []byte("{not json")); err == nil {
		t.Fatalf("expected an error for a corrupt payload")
	}
	if _, err := s.GetProductByBarcode(context.Background(), "1000001"); err != nil {
		t.Fatalf("state must survive a failed restore: %v", err)
	}
}
