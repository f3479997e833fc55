package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilaydakx/pos-system/internal/domain"
	"github.com/ilaydakx/pos-system/internal/store"
)

type stockKey struct {
	barcode  string
	location domain.Location
}

type lockedProduct struct {
	name           string
	sellPrice      float64
	stockStore     int
	stockWarehouse int
	active         bool
}

func (p lockedProduct) at(loc domain.Location) int {
	if loc == domain.LocationWarehouse {
		return p.stockWarehouse
	}
	return p.stockStore
}

// lockProducts reads and row-locks every product in the basket so the
// check-then-mutate sequence cannot race a concurrent movement.
func lockProducts(ctx context.Context, tx *sql.Tx, barcodes []string) (map[string]lockedProduct, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT barcode, name, sell_price, stock_store, stock_warehouse, active
		FROM products
		WHERE barcode = ANY($1)
		FOR UPDATE
	`, barcodes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make(map[string]lockedProduct, len(barcodes))
	for rows.Next() {
		var barcode string
		var p lockedProduct
		if err := rows.Scan(&barcode, &p.name, &p.sellPrice, &p.stockStore, &p.stockWarehouse, &p.active); err != nil {
			return nil, err
		}
		products[barcode] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func uniqueBarcodes(keys map[stockKey]int) []string {
	seen := make(map[string]struct{}, len(keys))
	barcodes := make([]string, 0, len(keys))
	for key := range keys {
		if _, ok := seen[key.barcode]; ok {
			continue
		}
		seen[key.barcode] = struct{}{}
		barcodes = append(barcodes, key.barcode)
	}
	return barcodes
}

func (s *Store) CreateSale(ctx context.Context, groupID string, req domain.SaleRequest, at time.Time) (*domain.SaleReceipt, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: sale has no items", store.ErrValidation)
	}

	need := make(map[stockKey]int)
	for _, item := range req.Items {
		barcode := strings.TrimSpace(item.Barcode)
		if barcode == "" {
			return nil, fmt.Errorf("%w: item barcode required", store.ErrValidation)
		}
		qty := item.Qty
		if qty < 1 {
			qty = 1
		}
		need[stockKey{barcode, domain.ParseLocation(item.Location)}] += qty
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	products, err := lockProducts(ctx, tx, uniqueBarcodes(need))
	if err != nil {
		return nil, err
	}
	for key, qty := range need {
		p, ok := products[key.barcode]
		if !ok || !p.active {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, key.barcode)
		}
		if available := p.at(key.location); available < qty {
			return nil, &store.InsufficientStockError{
				Barcode:   key.barcode,
				Location:  key.location,
				Available: available,
				Requested: qty,
			}
		}
	}

	receipt := &domain.SaleReceipt{GroupID: groupID, PaymentMethod: req.PaymentMethod}
	for _, item := range req.Items {
		barcode := strings.TrimSpace(item.Barcode)
		loc := domain.ParseLocation(item.Location)
		qty := item.Qty
		if qty < 1 {
			qty = 1
		}
		p := products[barcode]
		unit := p.sellPrice
		if item.UnitPrice != nil {
			unit = *item.UnitPrice
		}

		col := stockColumn(loc)
		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET `+col+` = `+col+` - $1, stock = stock - $1, updated_at = now()
			WHERE barcode = $2
		`, qty, barcode)
		if err != nil {
			return nil, err
		}

		line := domain.SaleLine{
			GroupID:        groupID,
			Barcode:        barcode,
			Name:           p.name,
			Qty:            qty,
			UnitPrice:      unit,
			ListPrice:      item.ListPrice,
			DiscountAmount: item.DiscountAmount,
			Total:          unit * float64(qty),
			PaymentMethod:  req.PaymentMethod,
			Location:       loc,
			SoldAt:         at,
		}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO sales (group_id, barcode, qty, unit_price, list_price, discount_amount, total, payment_method, location, voided, sold_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,false,$10)
			RETURNING id
		`, groupID, barcode, qty, unit, item.ListPrice, item.DiscountAmount, line.Total, req.PaymentMethod, string(loc), at).Scan(&line.ID)
		if err != nil {
			return nil, err
		}
		receipt.Lines = append(receipt.Lines, line)
		receipt.Total += line.Total
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrIntegrity, err)
	}
	return receipt, nil
}

func (s *Store) UndoLastSale(ctx context.Context) (*domain.UndoResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var groupID string
	err = tx.QueryRowContext(ctx, `
		SELECT group_id FROM sales WHERE voided = false ORDER BY id DESC LIMIT 1
	`).Scan(&groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT barcode, qty, location FROM sales WHERE group_id = $1 FOR UPDATE
	`, groupID)
	if err != nil {
		return nil, err
	}
	type undoLine struct {
		barcode  string
		qty      int
		location domain.Location
	}
	lines := make([]undoLine, 0, 8)
	for rows.Next() {
		var l undoLine
		var loc string
		if err := rows.Scan(&l.barcode, &l.qty, &loc); err != nil {
			_ = rows.Close()
			return nil, err
		}
		l.location = domain.ParseLocation(loc)
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for _, l := range lines {
		col := stockColumn(l.location)
		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET `+col+` = `+col+` + $1, stock = stock + $1, updated_at = now()
			WHERE barcode = $2
		`, l.qty, l.barcode)
		if err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE group_id = $1`, groupID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrIntegrity, err)
	}
	return &domain.UndoResult{GroupID: groupID, Lines: len(lines)}, nil
}

// resolveReturnLine validates a return inside an open transaction and
// builds the line to insert, without mutating anything yet.
func resolveReturnLine(ctx context.Context, tx *sql.Tx, groupID string, req domain.ReturnRequest, mode string, at time.Time) (domain.ReturnLine, error) {
	var zero domain.ReturnLine
	barcode := strings.TrimSpace(req.Barcode)
	if barcode == "" {
		return zero, fmt.Errorf("%w: return barcode required", store.ErrValidation)
	}
	if req.Qty < 1 {
		return zero, fmt.Errorf("%w: return quantity must be positive", store.ErrValidation)
	}

	var name string
	var sellPrice float64
	err := tx.QueryRowContext(ctx, `
		SELECT name, sell_price FROM products WHERE barcode = $1 FOR UPDATE
	`, barcode).Scan(&name, &sellPrice)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, fmt.Errorf("%w: product %s", store.ErrNotFound, barcode)
		}
		return zero, err
	}

	unit := sellPrice
	var refSaleID *int64
	if req.SoldAt != nil {
		var saleID int64
		var soldQty int
		var soldUnit float64
		err := tx.QueryRowContext(ctx, `
			SELECT id, qty, unit_price
			FROM sales
			WHERE barcode = $1 AND voided = false AND sold_at = $2
			ORDER BY id DESC
			LIMIT 1
		`, barcode, *req.SoldAt).Scan(&saleID, &soldQty, &soldUnit)
		switch {
		case err == nil:
			var refunded int
			err = tx.QueryRowContext(ctx, `
				SELECT COALESCE(SUM(qty), 0) FROM return_items WHERE ref_sale_id = $1
			`, saleID).Scan(&refunded)
			if err != nil {
				return zero, err
			}
			remaining := soldQty - refunded
			if remaining <= 0 || req.Qty > remaining {
				return zero, &store.RefundConflictError{
					Barcode:   barcode,
					Sold:      soldQty,
					Refunded:  refunded,
					Remaining: remaining,
					Requested: req.Qty,
				}
			}
			unit = soldUnit
			refSaleID = &saleID
		case errors.Is(err, sql.ErrNoRows):
			// No matching sale: the return is still accepted at the
			// current sell price.
		default:
			return zero, err
		}
	}
	if req.UnitPrice != nil {
		unit = *req.UnitPrice
	}

	return domain.ReturnLine{
		GroupID:       groupID,
		Barcode:       barcode,
		Name:          name,
		Qty:           req.Qty,
		UnitPrice:     unit,
		ReturnedTotal: unit * float64(req.Qty),
		Mode:          mode,
		RefSaleID:     refSaleID,
		SoldFrom:      strings.TrimSpace(req.SoldFrom),
		Location:      domain.ParseLocation(req.Location),
		CreatedAt:     at,
	}, nil
}

func insertReturnLine(ctx context.Context, tx *sql.Tx, line *domain.ReturnLine) error {
	var refSaleID any
	if line.RefSaleID != nil {
		refSaleID = *line.RefSaleID
	}
	return tx.QueryRowContext(ctx, `
		INSERT INTO return_items (group_id, barcode, qty, unit_price, returned_total, mode, ref_sale_id, ref_sold_from, diff, diff_payment_method, location, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id
	`, line.GroupID, line.Barcode, line.Qty, line.UnitPrice, line.ReturnedTotal, line.Mode,
		refSaleID, nullIfEmpty(line.SoldFrom), line.Diff, nullIfEmpty(line.DiffPaymentMethod), string(line.Location), line.CreatedAt).
		Scan(&line.ID)
}

func restock(ctx context.Context, tx *sql.Tx, barcode string, loc domain.Location, qty int) error {
	col := stockColumn(loc)
	_, err := tx.ExecContext(ctx, `
		UPDATE products
		SET `+col+` = `+col+` + $1, stock = stock + $1, updated_at = now()
		WHERE barcode = $2
	`, qty, barcode)
	return err
}

func (s *Store) CreateReturn(ctx context.Context, groupID string, req domain.ReturnRequest, at time.Time) (*domain.ReturnReceipt, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	line, err := resolveReturnLine(ctx, tx, groupID, req, domain.ReturnModeRefund, at)
	if err != nil {
		return nil, err
	}
	line.Diff = -line.ReturnedTotal

	if err := restock(ctx, tx, line.Barcode, line.Location, line.Qty); err != nil {
		return nil, err
	}
	if err := insertReturnLine(ctx, tx, &line); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrIntegrity, err)
	}
	return &domain.ReturnReceipt{
		GroupID:       groupID,
		ReturnedTotal: line.ReturnedTotal,
		Diff:          line.Diff,
		Line:          line,
	}, nil
}

func (s *Store) CreateExchange(ctx context.Context, groupID string, req domain.ExchangeRequest, at time.Time) (*domain.ExchangeReceipt, error) {
	if len(req.Given) == 0 {
		return nil, fmt.Errorf("%w: exchange has no given items", store.ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	returned, err := resolveReturnLine(ctx, tx, groupID, req.Returned, domain.ReturnModeExchange, at)
	if err != nil {
		return nil, err
	}

	// Given-line checks run against the shelf as it stands; the returned
	// item is credited back only after every check passes.
	type givenProduct struct {
		name      string
		sellPrice float64
	}
	levels := make(map[stockKey]int)
	names := make(map[string]givenProduct)
	for _, item := range req.Given {
		if item.Qty < 1 {
			continue
		}
		barcode := strings.TrimSpace(item.Barcode)
		if barcode == "" {
			return nil, fmt.Errorf("%w: item barcode required", store.ErrValidation)
		}
		loc := domain.ParseLocation(item.Location)
		key := stockKey{barcode, loc}

		if _, seen := names[barcode]; !seen {
			var p lockedProduct
			err := tx.QueryRowContext(ctx, `
				SELECT name, sell_price, stock_store, stock_warehouse, active
				FROM products WHERE barcode = $1 FOR UPDATE
			`, barcode).Scan(&p.name, &p.sellPrice, &p.stockStore, &p.stockWarehouse, &p.active)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, barcode)
				}
				return nil, err
			}
			if !p.active {
				return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, barcode)
			}
			names[barcode] = givenProduct{name: p.name, sellPrice: p.sellPrice}
			levels[stockKey{barcode, domain.LocationStore}] = p.stockStore
			levels[stockKey{barcode, domain.LocationWarehouse}] = p.stockWarehouse
		}
		if available := levels[key]; available < item.Qty {
			return nil, &store.InsufficientStockError{
				Barcode:   barcode,
				Location:  loc,
				Available: available,
				Requested: item.Qty,
			}
		}
		levels[key] -= item.Qty
	}

	if err := restock(ctx, tx, returned.Barcode, returned.Location, returned.Qty); err != nil {
		return nil, err
	}

	givenTotal := 0.0
	given := make([]domain.ExchangeLine, 0, len(req.Given))
	for _, item := range req.Given {
		if item.Qty < 1 {
			continue
		}
		barcode := strings.TrimSpace(item.Barcode)
		loc := domain.ParseLocation(item.Location)
		p := names[barcode]

		col := stockColumn(loc)
		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET `+col+` = `+col+` - $1, stock = stock - $1, updated_at = now()
			WHERE barcode = $2
		`, item.Qty, barcode)
		if err != nil {
			return nil, err
		}

		unit := p.sellPrice
		if item.UnitPrice != nil {
			unit = *item.UnitPrice
		}
		line := domain.ExchangeLine{
			GroupID:   groupID,
			Barcode:   barcode,
			Name:      p.name,
			Qty:       item.Qty,
			UnitPrice: unit,
			Total:     unit * float64(item.Qty),
			Location:  loc,
			CreatedAt: at,
		}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO exchange_items (group_id, barcode, qty, unit_price, total, location, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			RETURNING id
		`, groupID, barcode, item.Qty, unit, line.Total, string(loc), at).Scan(&line.ID)
		if err != nil {
			return nil, err
		}
		given = append(given, line)
		givenTotal += line.Total
	}

	diff := givenTotal - returned.ReturnedTotal
	diffPM := ""
	if diff > 0.0001 {
		pm, ok := domain.NormalizeDiffPaymentMethod(req.DiffPaymentMethod)
		if !ok {
			return nil, fmt.Errorf("%w: difference payment method must be cash or card", store.ErrValidation)
		}
		diffPM = pm
	}
	returned.Diff = diff
	returned.DiffPaymentMethod = diffPM
	if err := insertReturnLine(ctx, tx, &returned); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrIntegrity, err)
	}
	return &domain.ExchangeReceipt{
		GroupID:           groupID,
		ReturnedTotal:     returned.ReturnedTotal,
		GivenTotal:        givenTotal,
		Diff:              diff,
		DiffPaymentMethod: diffPM,
		Returned:          returned,
		Given:             given,
	}, nil
}

func (s *Store) DeleteReturnGroup(ctx context.Context, groupID string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM exchange_items WHERE group_id = $1`, groupID)
	if err != nil {
		return err
	}
	exchanged, err := res.RowsAffected()
	if err != nil {
		return err
	}
	res, err = tx.ExecContext(ctx, `DELETE FROM return_items WHERE group_id = $1`, groupID)
	if err != nil {
		return err
	}
	returned, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if exchanged+returned == 0 {
		return store.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrIntegrity, err)
	}
	return nil
}

func (s *Store) CreateTransfer(ctx context.Context, groupID string, req domain.TransferRequest, at time.Time) (*domain.TransferReceipt, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: transfer has no items", store.ErrValidation)
	}
	note := strings.TrimSpace(req.Note)

	// Direction is per item, so one basket can move goods both ways.
	// Source demand aggregates per (barcode, source).
	type transferLine struct {
		barcode string
		qty     int
		from    domain.Location
		to      domain.Location
	}
	lines := make([]transferLine, 0, len(req.Items))
	need := make(map[stockKey]int)
	for _, item := range req.Items {
		barcode := strings.TrimSpace(item.Barcode)
		if barcode == "" {
			return nil, fmt.Errorf("%w: item barcode required", store.ErrValidation)
		}
		from := domain.ParseLocation(item.FromLocation)
		to := domain.ParseLocation(item.ToLocation)
		if from == to {
			return nil, fmt.Errorf("%w: transfer source and destination are the same", store.ErrValidation)
		}
		qty := item.Qty
		if qty < 1 {
			qty = 1
		}
		lines = append(lines, transferLine{barcode: barcode, qty: qty, from: from, to: to})
		need[stockKey{barcode, from}] += qty
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	products, err := lockProducts(ctx, tx, uniqueBarcodes(need))
	if err != nil {
		return nil, err
	}
	for key, qty := range need {
		p, ok := products[key.barcode]
		if !ok {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, key.barcode)
		}
		if available := p.at(key.location); available < qty {
			return nil, &store.InsufficientStockError{
				Barcode:   key.barcode,
				Location:  key.location,
				Available: available,
				Requested: qty,
			}
		}
	}

	receipt := &domain.TransferReceipt{GroupID: groupID}
	for _, l := range lines {
		fromCol := stockColumn(l.from)
		toCol := stockColumn(l.to)
		// Relocation only: the mirror total is unchanged.
		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET `+fromCol+` = `+fromCol+` - $1, `+toCol+` = `+toCol+` + $1, updated_at = now()
			WHERE barcode = $2
		`, l.qty, l.barcode)
		if err != nil {
			return nil, err
		}

		line := domain.TransferLine{
			GroupID:      groupID,
			Barcode:      l.barcode,
			Name:         products[l.barcode].name,
			Qty:          l.qty,
			FromLocation: l.from,
			ToLocation:   l.to,
			Note:         note,
			CreatedAt:    at,
		}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO transfers (group_id, barcode, qty, from_location, to_location, note, voided, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,false,$7)
			RETURNING id
		`, groupID, l.barcode, l.qty, string(l.from), string(l.to), nullIfEmpty(note), at).Scan(&line.ID)
		if err != nil {
			return nil, err
		}
		receipt.Lines = append(receipt.Lines, line)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrIntegrity, err)
	}
	return receipt, nil
}

func (s *Store) UndoLastTransfer(ctx context.Context) (*domain.UndoResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var groupID string
	err = tx.QueryRowContext(ctx, `
		SELECT group_id FROM transfers WHERE voided = false ORDER BY id DESC LIMIT 1
	`).Scan(&groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT barcode, qty, from_location, to_location
		FROM transfers
		WHERE group_id = $1 AND voided = false
		FOR UPDATE
	`, groupID)
	if err != nil {
		return nil, err
	}
	type transferLine struct {
		barcode string
		qty     int
		from    domain.Location
		to      domain.Location
	}
	lines := make([]transferLine, 0, 8)
	need := make(map[stockKey]int)
	for rows.Next() {
		var l transferLine
		var from, to string
		if err := rows.Scan(&l.barcode, &l.qty, &from, &to); err != nil {
			_ = rows.Close()
			return nil, err
		}
		l.from = domain.ParseLocation(from)
		l.to = domain.ParseLocation(to)
		lines = append(lines, l)
		need[stockKey{l.barcode, l.to}] += l.qty
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	products, err := lockProducts(ctx, tx, uniqueBarcodes(need))
	if err != nil {
		return nil, err
	}
	// Undoing needs the goods still present at the destination.
	for key, qty := range need {
		p, ok := products[key.barcode]
		if !ok {
			continue
		}
		if available := p.at(key.location); available < qty {
			return nil, &store.InsufficientStockError{
				Barcode:   key.barcode,
				Location:  key.location,
				Available: available,
				Requested: qty,
			}
		}
	}

	for _, l := range lines {
		fromCol := stockColumn(l.to)
		toCol := stockColumn(l.from)
		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET `+fromCol+` = `+fromCol+` - $1, `+toCol+` = `+toCol+` + $1, updated_at = now()
			WHERE barcode = $2
		`, l.qty, l.barcode)
		if err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE transfers SET voided = true WHERE group_id = $1
	`, groupID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrIntegrity, err)
	}
	return &domain.UndoResult{GroupID: groupID, Lines: len(lines)}, nil
}
