package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ilaydakx/pos-system/internal/domain"
)

func almostEqual(a float64, b float64) bool {
	diff := a - b
	return diff < 0.0001 && diff > -0.0001
}

func TestCashReportRoutesRefundsAndExchangeDiffs(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	now := time.Now().UTC()

	// A cash sale of two t-shirts.
	receipt, err := s.CreateSale(ctx, "S1", domain.SaleRequest{
		PaymentMethod: "CASH",
		Items:         []domain.SaleItemRequest{{Barcode: "1000004", Qty: 2, Location: "STORE"}},
	}, now)
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	soldAt := receipt.Lines[0].SoldAt

	// One comes back as a plain refund.
	if _, err := s.CreateReturn(ctx, "R1", domain.ReturnRequest{
		Barcode:  "1000004",
		Qty:      1,
		SoldAt:   &soldAt,
		Location: "STORE",
	}, now.Add(time.Second)); err != nil {
		t.Fatalf("return failed: %v", err)
	}

	// An upgrade exchange: t-shirt in, jacket out, diff paid by card.
	if _, err := s.CreateExchange(ctx, "E1", domain.ExchangeRequest{
		Returned:          domain.ReturnRequest{Barcode: "1000004", Qty: 1, Location: "STORE"},
		Given:             []domain.SaleItemRequest{{Barcode: "1000005", Qty: 1, Location: "STORE"}},
		DiffPaymentMethod: "CARD",
	}, now.Add(2*time.Second)); err != nil {
		t.Fatalf("exchange failed: %v", err)
	}

	report, err := s.GetCashReport(ctx, 7, now.Add(3*time.Second))
	if err != nil {
		t.Fatalf("cash report failed: %v", err)
	}
	if len(report.Days) != 1 {
		t.Fatalf("expected one active day, got %d", len(report.Days))
	}
	row := report.Days[0]

	if !almostEqual(row.CashSales, 2*249.9) {
		t.Fatalf("expected cash sales 499.8, got %f", row.CashSales)
	}
	// The refund drains cash; the positive exchange diff lands in the
	// card bucket.
	if !almostEqual(row.CashRefunds, 249.9) {
		t.Fatalf("expected cash refunds 249.9, got %f", row.CashRefunds)
	}
	wantCard := 1299.9 - 249.9
	if !almostEqual(row.CardSales, wantCard) {
		t.Fatalf("expected card sales %f, got %f", wantCard, row.CardSales)
	}
	if !almostEqual(row.NetCash, row.CashSales-row.CashRefunds) {
		t.Fatalf("net cash must be cash sales minus refunds, got %f", row.NetCash)
	}
	if !almostEqual(row.CardRefunds, 0) {
		t.Fatalf("refunds always leave through the till, got card refunds %f", row.CardRefunds)
	}
	if !almostEqual(row.NetCard, row.CardSales-row.CardRefunds) {
		t.Fatalf("net card must be card sales minus card refunds, got %f", row.NetCard)
	}
	if !almostEqual(row.NetTotal, row.NetCash+row.NetCard) {
		t.Fatalf("net total must be the sum of the per-method nets, got %f", row.NetTotal)
	}
}

func TestDashboardCountsExchangeGivenItems(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	now := time.Now().UTC()

	// Sell one t-shirt (margin 129.9), then swap it for a jacket
	// (margin 649.9) with the diff on card.
	receipt, err := s.CreateSale(ctx, "S1", domain.SaleRequest{
		Items: []domain.SaleItemRequest{{Barcode: "1000004", Qty: 1, Location: "STORE"}},
	}, now)
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	soldAt := receipt.Lines[0].SoldAt

	if _, err := s.CreateExchange(ctx, "E1", domain.ExchangeRequest{
		Returned:          domain.ReturnRequest{Barcode: "1000004", Qty: 1, SoldAt: &soldAt, Location: "STORE"},
		Given:             []domain.SaleItemRequest{{Barcode: "1000005", Qty: 1, Location: "STORE"}},
		DiffPaymentMethod: "CARD",
	}, now.Add(time.Second)); err != nil {
		t.Fatalf("exchange failed: %v", err)
	}

	summary, err := s.GetDashboardSummary(ctx, 7, 3, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("dashboard failed: %v", err)
	}
	// The given item adds to the quantity; the returned half of the
	// exchange does not subtract it back.
	if summary.TodayQty != 2 {
		t.Fatalf("expected today qty 2 (sold + exchanged), got %d", summary.TodayQty)
	}
	if !almostEqual(summary.MonthGrossProfit, 129.9+649.9) {
		t.Fatalf("expected both margins in gross profit, got %f", summary.MonthGrossProfit)
	}
	// Revenue settles at the jacket's price: sale total plus diff.
	if !almostEqual(summary.TodayNetRevenue, 1299.9) {
		t.Fatalf("expected net revenue 1299.9, got %f", summary.TodayNetRevenue)
	}
}

func TestDashboardOmitsZeroValueRefundDay(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	now := time.Now().UTC()

	// A giveaway item: refunding it drives the raw quantity negative
	// while revenue and profit stay at zero.
	free, err := s.CreateProduct(ctx, domain.ProductCreateRequest{
		Name:     "Bez Çanta",
		Category: "Ceket",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := s.CreateReturn(ctx, "R1", domain.ReturnRequest{
		Barcode:  free.Barcode,
		Qty:      1,
		Location: "STORE",
	}, now); err != nil {
		t.Fatalf("return failed: %v", err)
	}

	summary, err := s.GetDashboardSummary(ctx, 7, 3, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("dashboard failed: %v", err)
	}
	// The clamped quantity is what decides omission, not the raw one.
	if len(summary.Daily) != 0 {
		t.Fatalf("expected the zero-value day to be omitted, got %+v", summary.Daily)
	}
	if len(summary.Monthly) != 0 {
		t.Fatalf("expected the zero-value month to be omitted, got %+v", summary.Monthly)
	}
}

func TestListSaleGroupsEvenSwapSettlesAsCard(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	now := time.Now().UTC()

	// Same-price swap: no diff, so no diff payment method is stored.
	if _, err := s.CreateExchange(ctx, "E1", domain.ExchangeRequest{
		Returned: domain.ReturnRequest{Barcode: "1000001", Qty: 1, Location: "STORE"},
		Given:    []domain.SaleItemRequest{{Barcode: "1000002", Qty: 1, Location: "STORE"}},
	}, now); err != nil {
		t.Fatalf("exchange failed: %v", err)
	}

	groups, err := s.ListSaleGroups(ctx, 7, "", now.Add(time.Second))
	if err != nil {
		t.Fatalf("list groups failed: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].PaymentMethod != domain.PaymentCard {
		t.Fatalf("an even swap must surface as CARD, got %q", groups[0].PaymentMethod)
	}
}

func TestDashboardSeriesSkipsEmptyBuckets(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := s.CreateSale(ctx, "S1", domain.SaleRequest{
		Items: []domain.SaleItemRequest{{Barcode: "1000001", Qty: 1, Location: "STORE"}},
	}, now); err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	summary, err := s.GetDashboardSummary(ctx, 30, 12, now)
	if err != nil {
		t.Fatalf("dashboard failed: %v", err)
	}
	if len(summary.Daily) != 1 {
		t.Fatalf("expected a single daily row, got %d", len(summary.Daily))
	}
	if summary.Daily[0].Day != now.Format("2006-01-02") {
		t.Fatalf("expected today's bucket, got %s", summary.Daily[0].Day)
	}
	if len(summary.Monthly) != 1 {
		t.Fatalf("expected a single monthly row, got %d", len(summary.Monthly))
	}
	if summary.Monthly[0].Month != now.Format("2006-01") {
		t.Fatalf("expected this month's bucket, got %s", summary.Monthly[0].Month)
	}
}

func TestDashboardNetQuantityNeverNegative(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	now := time.Now().UTC()

	// Two returns without a sale today push the raw quantity negative.
	for i, groupID := range []string{"R1", "R2"} {
		if _, err := s.CreateReturn(ctx, groupID, domain.ReturnRequest{
			Barcode:  "1000001",
			Qty:      1,
			Location: "STORE",
		}, now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("return failed: %v", err)
		}
	}

	summary, err := s.GetDashboardSummary(ctx, 7, 3, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("dashboard failed: %v", err)
	}
	if summary.TodayQty != 0 {
		t.Fatalf("net quantity must clamp at zero, got %d", summary.TodayQty)
	}
	if summary.TodayNetRevenue >= 0 {
		t.Fatalf("revenue still reflects the refunds, got %f", summary.TodayNetRevenue)
	}
}

func TestDashboardAverageBasketCountsDistinctGroups(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	now := time.Now().UTC()

	for i, groupID := range []string{"S1", "S2"} {
		if _, err := s.CreateSale(ctx, groupID, domain.SaleRequest{
			Items: []domain.SaleItemRequest{{Barcode: "1000004", Qty: 1, Location: "STORE"}},
		}, now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("sale failed: %v", err)
		}
	}

	summary, err := s.GetDashboardSummary(ctx, 7, 3, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("dashboard failed: %v", err)
	}
	if !almostEqual(summary.MonthAvgBasket, 249.9) {
		t.Fatalf("expected average basket 249.9 over two single-item sales, got %f", summary.MonthAvgBasket)
	}
}

func TestListSalesByBarcodeWindow(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := s.CreateSale(ctx, "S1", domain.SaleRequest{
		Items: []domain.SaleItemRequest{{Barcode: "1000001", Qty: 1, Location: "STORE"}},
	}, now.AddDate(0, 0, -10)); err != nil {
		t.Fatalf("old sale failed: %v", err)
	}
	if _, err := s.CreateSale(ctx, "S2", domain.SaleRequest{
		Items: []domain.SaleItemRequest{{Barcode: "1000001", Qty: 1, Location: "STORE"}},
	}, now); err != nil {
		t.Fatalf("recent sale failed: %v", err)
	}

	rows, err := s.ListSalesByBarcode(ctx, "1000001", 7, now)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(rows) != 1 || rows[0].GroupID != "S2" {
		t.Fatalf("expected only the recent sale inside the window, got %+v", rows)
	}
}
