package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ilaydakx/pos-system/internal/domain"
	"github.com/ilaydakx/pos-system/internal/groupid"
	"github.com/ilaydakx/pos-system/internal/store"
)

type bucket struct {
	qty     int
	revenue float64
	profit  float64
}

func dayKey(t time.Time) string   { return t.UTC().Format("2006-01-02") }
func monthKey(t time.Time) string { return t.UTC().Format("2006-01") }

// exchangeRefs collects the sale line ids referenced by the return half
// of an exchange. Those lines stay revenue-eligible even when voided.
func (s *Store) exchangeRefs() map[int64]bool {
	refs := make(map[int64]bool)
	for _, r := range s.returns {
		if r.Mode == domain.ReturnModeExchange && r.RefSaleID != nil {
			refs[*r.RefSaleID] = true
		}
	}
	return refs
}

func (s *Store) buyPrice(barcode string) float64 {
	if p, ok := s.products[barcode]; ok {
		return p.BuyPrice
	}
	return 0
}

func (s *Store) GetDashboardSummary(_ context.Context, days int, months int, now time.Time) (*domain.DashboardSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now = now.UTC()
	refs := s.exchangeRefs()

	byDay := make(map[string]*bucket)
	byMonth := make(map[string]*bucket)
	get := func(m map[string]*bucket, key string) *bucket {
		b, ok := m[key]
		if !ok {
			b = &bucket{}
			m[key] = b
		}
		return b
	}

	monthGroups := make(map[string]bool)
	thisMonth := monthKey(now)

	for _, l := range s.sales {
		if l.Voided && !refs[l.ID] {
			continue
		}
		margin := (l.UnitPrice - s.buyPrice(l.Barcode)) * float64(l.Qty)
		for _, b := range []*bucket{get(byDay, dayKey(l.SoldAt)), get(byMonth, monthKey(l.SoldAt))} {
			b.qty += l.Qty
			b.revenue += l.Total
			b.profit += margin
		}
		if monthKey(l.SoldAt) == thisMonth {
			monthGroups[l.GroupID] = true
		}
	}
	for _, l := range s.exchanges {
		margin := (l.UnitPrice - s.buyPrice(l.Barcode)) * float64(l.Qty)
		for _, b := range []*bucket{get(byDay, dayKey(l.CreatedAt)), get(byMonth, monthKey(l.CreatedAt))} {
			b.qty += l.Qty
			b.profit += margin
		}
	}
	// Only plain refunds pull quantity and margin back out; the returned
	// half of an exchange contributes its diff to revenue alone.
	for _, l := range s.returns {
		refund := l.Mode == domain.ReturnModeRefund
		margin := (l.UnitPrice - s.buyPrice(l.Barcode)) * float64(l.Qty)
		for _, b := range []*bucket{get(byDay, dayKey(l.CreatedAt)), get(byMonth, monthKey(l.CreatedAt))} {
			b.revenue += l.Diff
			if refund {
				b.qty -= l.Qty
				b.profit -= margin
			}
		}
	}

	expenseByMonth := make(map[string]float64)
	for _, e := range s.expenses {
		expenseByMonth[monthKey(e.SpentAt)] += e.Amount
	}

	summary := &domain.DashboardSummary{
		Daily:   make([]domain.DailyPoint, 0, days),
		Monthly: make([]domain.MonthlyPoint, 0, months),
	}

	if b, ok := byDay[dayKey(now)]; ok {
		summary.TodayQty = max(0, b.qty)
		summary.TodayNetRevenue = b.revenue
	}
	if b, ok := byMonth[thisMonth]; ok {
		summary.MonthGrossProfit = b.profit
		if n := len(monthGroups); n > 0 {
			summary.MonthAvgBasket = b.revenue / float64(n)
		}
	}
	summary.MonthExpense = expenseByMonth[thisMonth]
	summary.MonthNetProfit = summary.MonthGrossProfit - summary.MonthExpense

	for i := days - 1; i >= 0; i-- {
		day := dayKey(now.AddDate(0, 0, -i))
		b, ok := byDay[day]
		if !ok {
			continue
		}
		qty := max(0, b.qty)
		if qty == 0 && abs(b.revenue) < epsilon && abs(b.profit) < epsilon {
			continue
		}
		summary.Daily = append(summary.Daily, domain.DailyPoint{
			Day:         day,
			Qty:         qty,
			NetRevenue:  b.revenue,
			GrossProfit: b.profit,
		})
	}

	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := months - 1; i >= 0; i-- {
		month := monthKey(firstOfMonth.AddDate(0, -i, 0))
		b := byMonth[month]
		if b == nil {
			b = &bucket{}
		}
		expense := expenseByMonth[month]
		qty := max(0, b.qty)
		if qty == 0 && abs(b.revenue) < epsilon && abs(b.profit) < epsilon && abs(expense) < epsilon {
			continue
		}
		summary.Monthly = append(summary.Monthly, domain.MonthlyPoint{
			Month:       month,
			Qty:         qty,
			NetRevenue:  b.revenue,
			GrossProfit: b.profit,
			Expense:     expense,
			NetProfit:   b.profit - expense,
		})
	}

	return summary, nil
}

func (s *Store) GetCashReport(_ context.Context, days int, now time.Time) (*domain.CashReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now = now.UTC()
	since := dayKey(now.AddDate(0, 0, -(days - 1)))
	rows := make(map[string]*domain.CashReportRow)
	get := func(day string) *domain.CashReportRow {
		r, ok := rows[day]
		if !ok {
			r = &domain.CashReportRow{Day: day}
			rows[day] = r
		}
		return r
	}

	for _, l := range s.sales {
		if l.Voided {
			continue
		}
		day := dayKey(l.SoldAt)
		if day < since {
			continue
		}
		if l.PaymentMethod == domain.PaymentCash {
			get(day).CashSales += l.Total
		} else {
			get(day).CardSales += l.Total
		}
	}
	for _, l := range s.returns {
		day := dayKey(l.CreatedAt)
		if day < since {
			continue
		}
		switch l.Mode {
		case domain.ReturnModeRefund:
			get(day).CashRefunds += l.ReturnedTotal
		case domain.ReturnModeExchange:
			switch {
			case l.Diff > epsilon:
				if l.DiffPaymentMethod == domain.PaymentCash {
					get(day).CashSales += l.Diff
				} else {
					get(day).CardSales += l.Diff
				}
			case l.Diff < -epsilon:
				get(day).CashRefunds += -l.Diff
			}
		}
	}

	report := &domain.CashReport{Days: make([]domain.CashReportRow, 0, len(rows))}
	for _, r := range rows {
		r.NetCash = r.CashSales - r.CashRefunds
		r.NetCard = r.CardSales - r.CardRefunds
		r.NetTotal = r.NetCash + r.NetCard
		report.Days = append(report.Days, *r)
	}
	slices.SortFunc(report.Days, func(a, b domain.CashReportRow) int {
		return cmpString(a.Day, b.Day)
	})
	return report, nil
}

func (s *Store) ListSalesByBarcode(_ context.Context, barcode string, days int, now time.Time) ([]domain.SaleHistoryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	barcode = strings.TrimSpace(barcode)
	since := dayKey(now.UTC().AddDate(0, 0, -(days - 1)))
	result := make([]domain.SaleHistoryRow, 0, 32)
	for _, l := range s.sales {
		if l.Voided || l.Barcode != barcode || dayKey(l.SoldAt) < since {
			continue
		}
		result = append(result, domain.SaleHistoryRow{
			SaleLine:    l,
			RefundedQty: s.refundedQty(l.ID),
		})
	}
	slices.SortFunc(result, func(a, b domain.SaleHistoryRow) int {
		if a.ID == b.ID {
			return 0
		}
		if a.ID > b.ID {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) refundedQty(saleID int64) int {
	total := 0
	for _, r := range s.returns {
		if r.RefSaleID != nil && *r.RefSaleID == saleID {
			total += r.Qty
		}
	}
	return total
}

// refundKind reports how a sale line was (partially) undone: the
// exchange kind wins over a plain refund when both exist.
func (s *Store) refundKind(saleID int64) string {
	kind := ""
	for _, r := range s.returns {
		if r.RefSaleID == nil || *r.RefSaleID != saleID {
			continue
		}
		if r.Mode == domain.ReturnModeExchange {
			return domain.ReturnModeExchange
		}
		kind = domain.ReturnModeRefund
	}
	return kind
}

func (s *Store) ListSaleGroups(_ context.Context, days int, search string, now time.Time) ([]domain.SaleGroupRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	since := dayKey(now.UTC().AddDate(0, 0, -(days - 1)))
	search = strings.ToLower(strings.TrimSpace(search))

	type groupAgg struct {
		row     domain.SaleGroupRow
		matched bool
	}
	groups := make(map[string]*groupAgg)
	get := func(id string, kind string) *groupAgg {
		g, ok := groups[id]
		if !ok {
			g = &groupAgg{row: domain.SaleGroupRow{GroupID: id, Kind: kind}}
			groups[id] = g
		}
		return g
	}
	matches := func(barcode string, name string) bool {
		if search == "" {
			return true
		}
		return strings.Contains(strings.ToLower(barcode), search) ||
			strings.Contains(strings.ToLower(name), search)
	}

	for _, l := range s.sales {
		if l.Voided || dayKey(l.SoldAt) < since {
			continue
		}
		g := get(l.GroupID, domain.GroupKindSale)
		g.row.Qty += l.Qty
		g.row.Total += l.Total
		g.row.PaymentMethod = l.PaymentMethod
		if l.SoldAt.After(g.row.CreatedAt) {
			g.row.CreatedAt = l.SoldAt
		}
		if matches(l.Barcode, l.Name) {
			g.matched = true
		}
	}
	for _, l := range s.exchanges {
		if dayKey(l.CreatedAt) < since {
			continue
		}
		g := get(l.GroupID, domain.GroupKindExchange)
		g.row.Qty += l.Qty
		g.row.Total += l.Total
		if l.CreatedAt.After(g.row.CreatedAt) {
			g.row.CreatedAt = l.CreatedAt
		}
		if matches(l.Barcode, l.Name) {
			g.matched = true
		}
	}
	for _, l := range s.returns {
		if l.Mode != domain.ReturnModeExchange || dayKey(l.CreatedAt) < since {
			continue
		}
		g, ok := groups[l.GroupID]
		if !ok {
			continue
		}
		// Exchanges without a difference payment settle as CARD.
		if l.DiffPaymentMethod != "" {
			g.row.PaymentMethod = l.DiffPaymentMethod
		} else {
			g.row.PaymentMethod = domain.PaymentCard
		}
		if matches(l.Barcode, l.Name) {
			g.matched = true
		}
	}

	result := make([]domain.SaleGroupRow, 0, len(groups))
	for _, g := range groups {
		if !g.matched {
			continue
		}
		result = append(result, g.row)
	}
	slices.SortFunc(result, func(a, b domain.SaleGroupRow) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.GroupID, a.GroupID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) ListSalesByGroup(_ context.Context, groupID string) ([]domain.SaleGroupLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.SaleGroupLine
	switch groupid.Kind(groupID) {
	case groupid.PrefixSale:
		for _, l := range s.sales {
			if l.GroupID != groupID {
				continue
			}
			result = append(result, domain.SaleGroupLine{
				ID:             l.ID,
				Barcode:        l.Barcode,
				Name:           l.Name,
				Qty:            l.Qty,
				UnitPrice:      l.UnitPrice,
				ListPrice:      l.ListPrice,
				DiscountAmount: l.DiscountAmount,
				Total:          l.Total,
				Location:       l.Location,
				RefundedQty:    s.refundedQty(l.ID),
				RefundKind:     s.refundKind(l.ID),
				SoldAt:         l.SoldAt,
			})
		}
	case groupid.PrefixExchange:
		for _, l := range s.exchanges {
			if l.GroupID != groupID {
				continue
			}
			result = append(result, domain.SaleGroupLine{
				ID:        l.ID,
				Barcode:   l.Barcode,
				Name:      l.Name,
				Qty:       l.Qty,
				UnitPrice: l.UnitPrice,
				Total:     l.Total,
				Location:  l.Location,
				SoldAt:    l.CreatedAt,
			})
		}
	default:
		return nil, fmt.Errorf("%w: unknown receipt group %s", store.ErrValidation, groupID)
	}
	if len(result) == 0 {
		return nil, store.ErrNotFound
	}
	return result, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
