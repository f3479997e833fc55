package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ilaydakx/pos-system/internal/domain"
	"github.com/ilaydakx/pos-system/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, barcode, product_code, name, category, COALESCE(size,''), COALESCE(color,''),
	buy_price, sell_price, stock, stock_store, stock_warehouse, store_opening, warehouse_opening,
	active, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Barcode, &p.ProductCode, &p.Name, &p.Category, &p.Size, &p.Color,
		&p.BuyPrice, &p.SellPrice, &p.Stock, &p.StockStore, &p.StockWarehouse,
		&p.StoreOpening, &p.WarehouseOpening, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true
		ORDER BY (barcode ~ '^[0-9]+$') DESC,
			CASE WHEN barcode ~ '^[0-9]+$' THEN barcode::bigint END ASC,
			barcode ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE barcode = $1
	`, strings.TrimSpace(barcode)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: product name required", store.ErrValidation)
	}
	if req.BuyPrice < 0 || req.SellPrice < 0 {
		return nil, fmt.Errorf("%w: prices cannot be negative", store.ErrValidation)
	}
	if req.StockStore < 0 || req.StockWarehouse < 0 {
		return nil, fmt.Errorf("%w: initial stock cannot be negative", store.ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	barcode := strings.TrimSpace(req.Barcode)
	if barcode == "" {
		var maxNumeric int64
		err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(barcode::bigint), 0)
			FROM products
			WHERE barcode ~ '^[0-9]+$'
		`).Scan(&maxNumeric)
		if err != nil {
			return nil, err
		}
		barcode = store.NextBarcode(maxNumeric)
	}

	code := store.NormalizeProductCode(req.ProductCode)
	if code == "" {
		prefix := store.CodePrefix(req.Category)
		rows, err := tx.QueryContext(ctx, `
			SELECT product_code FROM products WHERE product_code LIKE $1
		`, prefix+"%")
		if err != nil {
			return nil, err
		}
		maxSeq := 0
		for rows.Next() {
			var existing string
			if err := rows.Scan(&existing); err != nil {
				_ = rows.Close()
				return nil, err
			}
			if seq, ok := store.CodeSeq(existing, prefix); ok && seq > maxSeq {
				maxSeq = seq
			}
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, err
		}
		_ = rows.Close()
		code, err = store.NextProductCode(prefix, maxSeq)
		if err != nil {
			return nil, err
		}
	}

	p, err := scanProduct(tx.QueryRowContext(ctx, `
		INSERT INTO products (barcode, product_code, name, category, size, color,
			buy_price, sell_price, stock, stock_store, stock_warehouse,
			store_opening, warehouse_opening, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$10,$11,true,now(),now())
		RETURNING `+productColumns+`
	`, barcode, code, name, strings.TrimSpace(req.Category),
		nullIfEmpty(strings.TrimSpace(req.Size)), nullIfEmpty(strings.TrimSpace(req.Color)),
		req.BuyPrice, req.SellPrice, req.StockStore+req.StockWarehouse, req.StockStore, req.StockWarehouse))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: barcode %s already exists", store.ErrValidation, barcode)
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrIntegrity, err)
	}
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, req domain.ProductUpdateRequest) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	p, err := scanProduct(tx.QueryRowContext(ctx, `
		SELECT `+productColumns+` FROM products WHERE barcode = $1 FOR UPDATE
	`, strings.TrimSpace(req.Barcode)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: product name required", store.ErrValidation)
		}
		p.Name = name
	}
	if code := store.NormalizeProductCode(req.ProductCode); code != "" {
		p.ProductCode = code
	}
	if req.Category != nil {
		p.Category = strings.TrimSpace(*req.Category)
	}
	if req.Size != nil {
		p.Size = strings.TrimSpace(*req.Size)
	}
	if req.Color != nil {
		p.Color = strings.TrimSpace(*req.Color)
	}
	if req.BuyPrice != nil {
		if *req.BuyPrice < 0 {
			return nil, fmt.Errorf("%w: prices cannot be negative", store.ErrValidation)
		}
		p.BuyPrice = *req.BuyPrice
	}
	if req.SellPrice != nil {
		if *req.SellPrice < 0 {
			return nil, fmt.Errorf("%w: prices cannot be negative", store.ErrValidation)
		}
		p.SellPrice = *req.SellPrice
	}
	if req.StockStore != nil {
		if *req.StockStore < 0 {
			return nil, fmt.Errorf("%w: stock cannot be negative", store.ErrValidation)
		}
		p.StockStore = *req.StockStore
	}
	if req.StockWarehouse != nil {
		if *req.StockWarehouse < 0 {
			return nil, fmt.Errorf("%w: stock cannot be negative", store.ErrValidation)
		}
		p.StockWarehouse = *req.StockWarehouse
	}
	if req.Active != nil {
		p.Active = *req.Active
	}
	p.Stock = p.StockStore + p.StockWarehouse

	updated, err := scanProduct(tx.QueryRowContext(ctx, `
		UPDATE products
		SET product_code = $2, name = $3, category = $4, size = $5, color = $6,
			buy_price = $7, sell_price = $8, stock = $9, stock_store = $10, stock_warehouse = $11,
			active = $12, updated_at = now()
		WHERE barcode = $1
		RETURNING `+productColumns+`
	`, p.Barcode, p.ProductCode, p.Name, p.Category, nullIfEmpty(p.Size), nullIfEmpty(p.Color),
		p.BuyPrice, p.SellPrice, p.Stock, p.StockStore, p.StockWarehouse, p.Active))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrIntegrity, err)
	}
	return &updated, nil
}

// DeleteProduct removes the row outright. When history rows still
// reference the barcode the delete trips the foreign key, and the
// product is deactivated with its stock zeroed instead.
func (s *Store) DeleteProduct(ctx context.Context, barcode string) (*domain.DeleteProductResult, error) {
	barcode = strings.TrimSpace(barcode)

	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE barcode = $1`, barcode)
	if err == nil {
		affected, raErr := res.RowsAffected()
		if raErr != nil {
			return nil, raErr
		}
		if affected == 0 {
			return nil, store.ErrNotFound
		}
		return &domain.DeleteProductResult{Barcode: barcode, Deleted: true}, nil
	}
	if !isForeignKeyViolation(err) {
		return nil, err
	}

	res, err = s.db.ExecContext(ctx, `
		UPDATE products
		SET active = false, stock = 0, stock_store = 0, stock_warehouse = 0, updated_at = now()
		WHERE barcode = $1
	`, barcode)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return &domain.DeleteProductResult{Barcode: barcode, Deactivated: true}, nil
}

func (s *Store) ListExpenses(ctx context.Context) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, amount, COALESCE(category,''), COALESCE(period,''), COALESCE(note,''), spent_at, created_at
		FROM expenses
		ORDER BY spent_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 64)
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.Amount, &e.Category, &e.Period, &e.Note, &e.SpentAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.SpentAt = e.SpentAt.UTC()
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) AddExpense(ctx context.Context, req domain.ExpenseCreateRequest) (*domain.Expense, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: expense amount must be positive", store.ErrValidation)
	}
	spentAt, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(req.SpentAt), time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: expense date must be YYYY-MM-DD", store.ErrValidation)
	}

	var e domain.Expense
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO expenses (amount, category, period, note, spent_at, created_at)
		VALUES ($1,$2,$3,$4,$5,now())
		RETURNING id, amount, COALESCE(category,''), COALESCE(period,''), COALESCE(note,''), spent_at, created_at
	`, req.Amount, nullIfEmpty(strings.TrimSpace(req.Category)), nullIfEmpty(strings.TrimSpace(req.Period)),
		nullIfEmpty(strings.TrimSpace(req.Note)), spentAt).
		Scan(&e.ID, &e.Amount, &e.Category, &e.Period, &e.Note, &e.SpentAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.SpentAt = e.SpentAt.UTC()
	return &e, nil
}

func (s *Store) DeleteExpense(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// dictionaryTable maps a dictionary kind onto its table and the product
// column guarded against deactivation and deletion while in use.
func dictionaryTable(kind string) (table string, productColumn string, hasSort bool, err error) {
	switch kind {
	case domain.DictCategories:
		return "categories", "category", false, nil
	case domain.DictColors:
		return "colors", "color", false, nil
	case domain.DictSizes:
		return "sizes", "size", true, nil
	default:
		return "", "", false, fmt.Errorf("%w: unknown dictionary %s", store.ErrValidation, kind)
	}
}

func (s *Store) ListDictionary(ctx context.Context, kind string, includeInactive bool) ([]domain.DictionaryEntry, error) {
	table, _, hasSort, err := dictionaryTable(kind)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, name, active, 0 FROM ` + table
	if hasSort {
		query = `SELECT id, name, active, sort_order FROM ` + table
	}
	if !includeInactive {
		query += ` WHERE active = true`
	}
	if hasSort {
		query += ` ORDER BY sort_order, name`
	} else {
		query += ` ORDER BY name`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.DictionaryEntry, 0, 32)
	for rows.Next() {
		var e domain.DictionaryEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.Active, &e.SortOrder); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) CreateDictionaryEntry(ctx context.Context, kind string, req domain.DictionaryCreateRequest) (*domain.DictionaryEntry, error) {
	table, _, hasSort, err := dictionaryTable(kind)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name required", store.ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var entry domain.DictionaryEntry
	err = tx.QueryRowContext(ctx, `SELECT id, name FROM `+table+` WHERE lower(name) = lower($1)`, name).
		Scan(&entry.ID, &entry.Name)
	switch {
	case err == nil:
		// Re-creating an existing name reactivates it.
		if hasSort && req.SortOrder != 0 {
			_, err = tx.ExecContext(ctx, `UPDATE `+table+` SET active = true, sort_order = $2 WHERE id = $1`, entry.ID, req.SortOrder)
			entry.SortOrder = req.SortOrder
		} else {
			_, err = tx.ExecContext(ctx, `UPDATE `+table+` SET active = true WHERE id = $1`, entry.ID)
		}
		if err != nil {
			return nil, err
		}
		entry.Active = true
	case errors.Is(err, sql.ErrNoRows):
		if hasSort {
			err = tx.QueryRowContext(ctx, `
				INSERT INTO `+table+` (name, active, sort_order) VALUES ($1, true, $2) RETURNING id
			`, name, req.SortOrder).Scan(&entry.ID)
		} else {
			err = tx.QueryRowContext(ctx, `
				INSERT INTO `+table+` (name, active) VALUES ($1, true) RETURNING id
			`, name).Scan(&entry.ID)
		}
		if err != nil {
			return nil, err
		}
		entry.Name = name
		entry.Active = true
		entry.SortOrder = req.SortOrder
	default:
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrIntegrity, err)
	}
	return &entry, nil
}

func (s *Store) UpdateDictionaryEntry(ctx context.Context, kind string, id int64, req domain.DictionaryUpdateRequest) (*domain.DictionaryEntry, error) {
	table, productColumn, hasSort, err := dictionaryTable(kind)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var entry domain.DictionaryEntry
	query := `SELECT id, name, active, 0 FROM ` + table + ` WHERE id = $1 FOR UPDATE`
	if hasSort {
		query = `SELECT id, name, active, sort_order FROM ` + table + ` WHERE id = $1 FOR UPDATE`
	}
	err = tx.QueryRowContext(ctx, query, id).Scan(&entry.ID, &entry.Name, &entry.Active, &entry.SortOrder)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if req.Active != nil && !*req.Active {
		used, err := s.dictionaryUsage(ctx, tx, productColumn, entry.Name)
		if err != nil {
			return nil, err
		}
		if used > 0 {
			return nil, fmt.Errorf("%w: %s %q is still used by products", store.ErrValidation, productColumn, entry.Name)
		}
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name required", store.ErrValidation)
		}
		entry.Name = name
	}
	if req.Active != nil {
		entry.Active = *req.Active
	}
	if req.SortOrder != nil && hasSort {
		entry.SortOrder = *req.SortOrder
	}

	if hasSort {
		_, err = tx.ExecContext(ctx, `UPDATE `+table+` SET name = $2, active = $3, sort_order = $4 WHERE id = $1`,
			entry.ID, entry.Name, entry.Active, entry.SortOrder)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE `+table+` SET name = $2, active = $3 WHERE id = $1`,
			entry.ID, entry.Name, entry.Active)
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrIntegrity, err)
	}
	return &entry, nil
}

func (s *Store) DeleteDictionaryEntry(ctx context.Context, kind string, id int64) error {
	table, productColumn, _, err := dictionaryTable(kind)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var name string
	err = tx.QueryRowContext(ctx, `SELECT name FROM `+table+` WHERE id = $1 FOR UPDATE`, id).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	used, err := s.dictionaryUsage(ctx, tx, productColumn, name)
	if err != nil {
		return err
	}
	if used > 0 {
		return fmt.Errorf("%w: %s %q is still used by products", store.ErrValidation, productColumn, name)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrIntegrity, err)
	}
	return nil
}

func (s *Store) dictionaryUsage(ctx context.Context, tx *sql.Tx, productColumn string, name string) (int, error) {
	var count int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE `+productColumn+` = $1`, name).Scan(&count)
	return count, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

// stockColumn picks the per-location counter. Callers only ever pass a
// parsed Location, so interpolating it is safe.
func stockColumn(loc domain.Location) string {
	if loc == domain.LocationWarehouse {
		return "stock_warehouse"
	}
	return "stock_store"
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
