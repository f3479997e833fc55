package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ilaydakx/pos-system/internal/domain"
	"github.com/ilaydakx/pos-system/internal/groupid"
	"github.com/ilaydakx/pos-system/internal/store"
)

const epsilon = 0.0001

// movementsSQL flattens sales, exchange lines and return lines into a
// single (bucket, qty, revenue, profit) stream. Voided sales stay
// revenue-eligible when the return half of an exchange references them.
// Only plain refunds pull quantity and margin back out; the returned
// half of an exchange contributes its diff to revenue alone.
// Profit is taken against the current buy price of the product.
const movementsSQL = `
	SELECT to_char(s.sold_at AT TIME ZONE 'UTC', %[1]s) AS bucket,
		s.qty AS qty,
		s.total AS revenue,
		(s.unit_price - COALESCE(p.buy_price, 0)) * s.qty AS profit,
		s.group_id AS group_id
	FROM sales s
	LEFT JOIN products p ON p.barcode = s.barcode
	WHERE s.voided = false
		OR EXISTS (
			SELECT 1 FROM return_items r
			WHERE r.mode = 'EXCHANGE' AND r.ref_sale_id = s.id
		)
	UNION ALL
	SELECT to_char(e.created_at AT TIME ZONE 'UTC', %[1]s),
		e.qty, 0,
		(e.unit_price - COALESCE(p.buy_price, 0)) * e.qty,
		''
	FROM exchange_items e
	LEFT JOIN products p ON p.barcode = e.barcode
	UNION ALL
	SELECT to_char(r.created_at AT TIME ZONE 'UTC', %[1]s),
		CASE WHEN r.mode = 'REFUND' THEN -r.qty ELSE 0 END,
		r.diff,
		CASE WHEN r.mode = 'REFUND' THEN -(r.unit_price - COALESCE(p.buy_price, 0)) * r.qty ELSE 0 END,
		''
	FROM return_items r
	LEFT JOIN products p ON p.barcode = r.barcode
`

type reportBucket struct {
	qty     int
	revenue float64
	profit  float64
}

func (s *Store) queryBuckets(ctx context.Context, format string, since string) (map[string]reportBucket, error) {
	query := fmt.Sprintf(`
		SELECT bucket, SUM(qty), SUM(revenue), SUM(profit)
		FROM (`+movementsSQL+`) m
		WHERE bucket >= $1
		GROUP BY bucket
	`, format)
	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	buckets := make(map[string]reportBucket)
	for rows.Next() {
		var key string
		var b reportBucket
		if err := rows.Scan(&key, &b.qty, &b.revenue, &b.profit); err != nil {
			return nil, err
		}
		buckets[key] = b
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return buckets, nil
}

func (s *Store) GetDashboardSummary(ctx context.Context, days int, months int, now time.Time) (*domain.DashboardSummary, error) {
	now = now.UTC()
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	daySince := now.AddDate(0, 0, -(days - 1)).Format("2006-01-02")
	monthSince := firstOfMonth.AddDate(0, -(months - 1), 0).Format("2006-01")

	byDay, err := s.queryBuckets(ctx, `'YYYY-MM-DD'`, daySince)
	if err != nil {
		return nil, err
	}
	byMonth, err := s.queryBuckets(ctx, `'YYYY-MM'`, monthSince)
	if err != nil {
		return nil, err
	}

	expenseByMonth := make(map[string]float64)
	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(spent_at, 'YYYY-MM'), SUM(amount)
		FROM expenses
		GROUP BY 1
	`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var month string
		var amount float64
		if err := rows.Scan(&month, &amount); err != nil {
			_ = rows.Close()
			return nil, err
		}
		expenseByMonth[month] = amount
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	thisMonth := now.Format("2006-01")
	var monthGroups int
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(DISTINCT group_id)
		FROM (`+movementsSQL+`) m
		WHERE bucket = $1 AND group_id <> ''
	`, `'YYYY-MM'`), thisMonth).Scan(&monthGroups)
	if err != nil {
		return nil, err
	}

	summary := &domain.DashboardSummary{
		Daily:   make([]domain.DailyPoint, 0, days),
		Monthly: make([]domain.MonthlyPoint, 0, months),
	}

	if b, ok := byDay[now.Format("2006-01-02")]; ok {
		summary.TodayQty = max(0, b.qty)
		summary.TodayNetRevenue = b.revenue
	}
	if b, ok := byMonth[thisMonth]; ok {
		summary.MonthGrossProfit = b.profit
		if monthGroups > 0 {
			summary.MonthAvgBasket = b.revenue / float64(monthGroups)
		}
	}
	summary.MonthExpense = expenseByMonth[thisMonth]
	summary.MonthNetProfit = summary.MonthGrossProfit - summary.MonthExpense

	for i := days - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i).Format("2006-01-02")
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

	for i := months - 1; i >= 0; i-- {
		month := firstOfMonth.AddDate(0, -i, 0).Format("2006-01")
		b := byMonth[month]
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

func (s *Store) GetCashReport(ctx context.Context, days int, now time.Time) (*domain.CashReport, error) {
	since := now.UTC().AddDate(0, 0, -(days - 1)).Format("2006-01-02")

	// Refunds always leave through the till, so the card refund column
	// stays zero; it is carried so the per-method nets line up.
	rows, err := s.db.QueryContext(ctx, `
		SELECT day, SUM(cash_sales), SUM(card_sales), SUM(cash_refunds), SUM(card_refunds)
		FROM (
			SELECT to_char(sold_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
				CASE WHEN payment_method = 'CASH' THEN total ELSE 0 END AS cash_sales,
				CASE WHEN payment_method = 'CASH' THEN 0 ELSE total END AS card_sales,
				0::double precision AS cash_refunds,
				0::double precision AS card_refunds
			FROM sales
			WHERE voided = false
			UNION ALL
			SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD'),
				CASE WHEN mode = 'EXCHANGE' AND diff > 0.0001 AND diff_payment_method = 'CASH' THEN diff ELSE 0 END,
				CASE WHEN mode = 'EXCHANGE' AND diff > 0.0001 AND COALESCE(diff_payment_method, '') <> 'CASH' THEN diff ELSE 0 END,
				CASE WHEN mode = 'REFUND' THEN returned_total
					WHEN mode = 'EXCHANGE' AND diff < -0.0001 THEN -diff
					ELSE 0 END,
				0::double precision
			FROM return_items
		) t
		WHERE day >= $1
		GROUP BY day
		ORDER BY day
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	report := &domain.CashReport{Days: make([]domain.CashReportRow, 0, days)}
	for rows.Next() {
		var r domain.CashReportRow
		if err := rows.Scan(&r.Day, &r.CashSales, &r.CardSales, &r.CashRefunds, &r.CardRefunds); err != nil {
			return nil, err
		}
		r.NetCash = r.CashSales - r.CashRefunds
		r.NetCard = r.CardSales - r.CardRefunds
		r.NetTotal = r.NetCash + r.NetCard
		report.Days = append(report.Days, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Store) ListSalesByBarcode(ctx context.Context, barcode string, days int, now time.Time) ([]domain.SaleHistoryRow, error) {
	since := now.UTC().AddDate(0, 0, -(days - 1)).Format("2006-01-02")

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.group_id, s.barcode, COALESCE(p.name, ''), s.qty, s.unit_price, s.total,
			s.payment_method, s.location, s.voided, s.sold_at,
			COALESCE((SELECT SUM(r.qty) FROM return_items r WHERE r.ref_sale_id = s.id), 0)
		FROM sales s
		LEFT JOIN products p ON p.barcode = s.barcode
		WHERE s.voided = false
			AND s.barcode = $1
			AND to_char(s.sold_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') >= $2
		ORDER BY s.id DESC
	`, barcode, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.SaleHistoryRow, 0, 32)
	for rows.Next() {
		var row domain.SaleHistoryRow
		var loc string
		if err := rows.Scan(&row.ID, &row.GroupID, &row.Barcode, &row.Name, &row.Qty, &row.UnitPrice,
			&row.Total, &row.PaymentMethod, &loc, &row.Voided, &row.SoldAt, &row.RefundedQty); err != nil {
			return nil, err
		}
		row.Location = domain.ParseLocation(loc)
		row.SoldAt = row.SoldAt.UTC()
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ListSaleGroups(ctx context.Context, days int, search string, now time.Time) ([]domain.SaleGroupRow, error) {
	since := now.UTC().AddDate(0, 0, -(days - 1)).Format("2006-01-02")
	pattern := "%" + search + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.group_id, 'SALE', SUM(s.qty), SUM(s.total), MAX(s.payment_method), MAX(s.sold_at)
		FROM sales s
		LEFT JOIN products p ON p.barcode = s.barcode
		WHERE s.voided = false
			AND to_char(s.sold_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') >= $1
			AND ($2 = '' OR s.barcode ILIKE $3 OR COALESCE(p.name, '') ILIKE $3)
		GROUP BY s.group_id
		UNION ALL
		SELECT e.group_id, 'EXCHANGE', SUM(e.qty), SUM(e.total),
			COALESCE(MAX(r.diff_payment_method), 'CARD'), MAX(e.created_at)
		FROM exchange_items e
		LEFT JOIN products p ON p.barcode = e.barcode
		LEFT JOIN return_items r ON r.group_id = e.group_id AND r.mode = 'EXCHANGE'
		WHERE to_char(e.created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') >= $1
			AND ($2 = '' OR e.barcode ILIKE $3 OR COALESCE(p.name, '') ILIKE $3
				OR r.barcode ILIKE $3)
		GROUP BY e.group_id
		ORDER BY 6 DESC, 1 DESC
	`, since, search, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.SaleGroupRow, 0, 64)
	for rows.Next() {
		var row domain.SaleGroupRow
		if err := rows.Scan(&row.GroupID, &row.Kind, &row.Qty, &row.Total, &row.PaymentMethod, &row.CreatedAt); err != nil {
			return nil, err
		}
		row.CreatedAt = row.CreatedAt.UTC()
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ListSalesByGroup(ctx context.Context, groupID string) ([]domain.SaleGroupLine, error) {
	var rows *sql.Rows
	var err error
	switch groupid.Kind(groupID) {
	case groupid.PrefixSale:
		rows, err = s.db.QueryContext(ctx, `
			SELECT s.id, s.barcode, COALESCE(p.name, ''), s.qty, s.unit_price,
				COALESCE(s.list_price, 0), COALESCE(s.discount_amount, 0), s.total, s.location,
				COALESCE((SELECT SUM(r.qty) FROM return_items r WHERE r.ref_sale_id = s.id), 0),
				COALESCE((SELECT CASE WHEN bool_or(r.mode = 'EXCHANGE') THEN 'EXCHANGE' ELSE 'REFUND' END
					FROM return_items r WHERE r.ref_sale_id = s.id), ''),
				s.sold_at
			FROM sales s
			LEFT JOIN products p ON p.barcode = s.barcode
			WHERE s.group_id = $1
			ORDER BY s.id
		`, groupID)
	case groupid.PrefixExchange:
		rows, err = s.db.QueryContext(ctx, `
			SELECT e.id, e.barcode, COALESCE(p.name, ''), e.qty, e.unit_price,
				0::double precision, 0::double precision, e.total, e.location,
				0, '', e.created_at
			FROM exchange_items e
			LEFT JOIN products p ON p.barcode = e.barcode
			WHERE e.group_id = $1
			ORDER BY e.id
		`, groupID)
	default:
		return nil, fmt.Errorf("%w: unknown receipt group %s", store.ErrValidation, groupID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.SaleGroupLine, 0, 8)
	for rows.Next() {
		var line domain.SaleGroupLine
		var loc string
		if err := rows.Scan(&line.ID, &line.Barcode, &line.Name, &line.Qty, &line.UnitPrice,
			&line.ListPrice, &line.DiscountAmount, &line.Total, &loc,
			&line.RefundedQty, &line.RefundKind, &line.SoldAt); err != nil {
			return nil, err
		}
		line.Location = domain.ParseLocation(loc)
		line.SoldAt = line.SoldAt.UTC()
		result = append(result, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
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
