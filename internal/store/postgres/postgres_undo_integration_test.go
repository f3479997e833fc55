package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ilaydakx/pos-system/internal/domain"
	"github.com/ilaydakx/pos-system/internal/groupid"
)

func TestUndoLastSaleRestocksProduct(t *testing.T) {
	databaseURL := os.Getenv("POS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set POS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	barcode := fmt.Sprintf("9%d", stamp%1_000_000_000)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE barcode = $1`, barcode)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE barcode = $1`, barcode)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (barcode, product_code, name, category,
			buy_price, sell_price, stock, stock_store, stock_warehouse, active, created_at, updated_at)
		VALUES ($1, 'ITX001', 'Undo IT Gömlek', 'Gömlek', 100, 250, 10, 10, 0, true, now(), now())
	`, barcode); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	groupID := groupid.New(groupid.PrefixSale)
	_, err = s.CreateSale(ctx, groupID, domain.SaleRequest{
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.SaleItemRequest{{Barcode: barcode, Qty: 3}},
	}, time.Now().UTC())
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	undone, err := s.UndoLastSale(ctx)
	if err != nil {
		t.Fatalf("undo last sale: %v", err)
	}
	if undone.GroupID != groupID {
		t.Fatalf("expected undo of group %s, got %s", groupID, undone.GroupID)
	}

	var stockStore, stock int
	if err := s.db.QueryRowContext(ctx, `
		SELECT stock_store, stock FROM products WHERE barcode = $1
	`, barcode).Scan(&stockStore, &stock); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if stockStore != 10 || stock != 10 {
		t.Fatalf("expected stock restored to 10/10, got %d/%d", stockStore, stock)
	}

	var remaining int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sales WHERE group_id = $1
	`, groupID).Scan(&remaining); err != nil {
		t.Fatalf("query sales: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected sale rows removed, found %d", remaining)
	}
}
