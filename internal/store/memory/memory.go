package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ilaydakx/pos-system/internal/domain"
	"github.com/ilaydakx/pos-system/internal/store"
)

const epsilon = 0.0001

// Store keeps the whole ledger in process memory. Every mutating method
// takes the write lock for its full duration, which gives the same
// all-or-nothing behavior the Postgres store gets from transactions.
type Store struct {
	mu             sync.RWMutex
	products       map[string]domain.Product
	sales          []domain.SaleLine
	returns        []domain.ReturnLine
	exchanges      []domain.ExchangeLine
	transfers      []domain.TransferLine
	expenses       []domain.Expense
	dictionaries   map[string][]domain.DictionaryEntry
	nextProductID  int64
	nextSaleID     int64
	nextReturnID   int64
	nextExchangeID int64
	nextTransferID int64
	nextExpenseID  int64
	nextDictID     int64
}

func New() *Store {
	return &Store{
		products: make(map[string]domain.Product),
		dictionaries: map[string][]domain.DictionaryEntry{
			domain.DictCategories: {},
			domain.DictColors:     {},
			domain.DictSizes:      {},
		},
	}
}

// NewSeeded returns a store preloaded with a small boutique inventory
// for dev/demo mode.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	seed := []domain.Product{
		{Barcode: "1000001", ProductCode: "GOM001", Name: "Beyaz Gömlek", Category: "Gömlek", Size: "M", Color: "Beyaz", BuyPrice: 250, SellPrice: 499.9, StockStore: 12, StockWarehouse: 8},
		{Barcode: "1000002", ProductCode: "GOM002", Name: "Mavi Gömlek", Category: "Gömlek", Size: "L", Color: "Mavi", BuyPrice: 250, SellPrice: 499.9, StockStore: 9, StockWarehouse: 6},
		{Barcode: "1000003", ProductCode: "PAN001", Name: "Siyah Pantolon", Category: "Pantolon", Size: "32", Color: "Siyah", BuyPrice: 400, SellPrice: 799.9, StockStore: 7, StockWarehouse: 10},
		{Barcode: "1000004", ProductCode: "TIS001", Name: "Basic Tişört", Category: "Tişört", Size: "S", Color: "Beyaz", BuyPrice: 120, SellPrice: 249.9, StockStore: 20, StockWarehouse: 15},
		{Barcode: "1000005", ProductCode: "CEK001", Name: "Kot Ceket", Category: "Ceket", Size: "M", Color: "Mavi", BuyPrice: 650, SellPrice: 1299.9, StockStore: 4, StockWarehouse: 5},
	}
	for _, p := range seed {
		s.nextProductID++
		p.ID = s.nextProductID
		p.Active = true
		p.Stock = p.StockStore + p.StockWarehouse
		p.StoreOpening = p.StockStore
		p.WarehouseOpening = p.StockWarehouse
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.Barcode] = p
	}
	for _, name := range []string{"Gömlek", "Pantolon", "Tişört", "Ceket"} {
		s.nextDictID++
		s.dictionaries[domain.DictCategories] = append(s.dictionaries[domain.DictCategories],
			domain.DictionaryEntry{ID: s.nextDictID, Name: name, Active: true})
	}
	for _, name := range []string{"Beyaz", "Siyah", "Mavi"} {
		s.nextDictID++
		s.dictionaries[domain.DictColors] = append(s.dictionaries[domain.DictColors],
			domain.DictionaryEntry{ID: s.nextDictID, Name: name, Active: true})
	}
	for i, name := range []string{"S", "M", "L", "XL", "32"} {
		s.nextDictID++
		s.dictionaries[domain.DictSizes] = append(s.dictionaries[domain.DictSizes],
			domain.DictionaryEntry{ID: s.nextDictID, Name: name, Active: true, SortOrder: i + 1})
	}
	return s
}

func locQty(p domain.Product, loc domain.Location) int {
	if loc == domain.LocationWarehouse {
		return p.StockWarehouse
	}
	return p.StockStore
}

// adjustStock moves a location counter and, unless the movement is a
// pure relocation, the mirror counter with it.
func (s *Store) adjustStock(barcode string, loc domain.Location, delta int, mirror bool) {
	p, ok := s.products[barcode]
	if !ok {
		return
	}
	if loc == domain.LocationWarehouse {
		p.StockWarehouse += delta
	} else {
		p.StockStore += delta
	}
	if mirror {
		p.Stock += delta
	}
	s.products[barcode] = p
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		an, aok := store.NumericBarcode(a.Barcode)
		bn, bok := store.NumericBarcode(b.Barcode)
		switch {
		case aok && bok:
			if an == bn {
				return 0
			}
			if an < bn {
				return -1
			}
			return 1
		case aok:
			return -1
		case bok:
			return 1
		default:
			return cmpString(a.Barcode, b.Barcode)
		}
	})
	return products, nil
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[strings.TrimSpace(barcode)]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyProduct := p
	return &copyProduct, nil
}

func (s *Store) CreateProduct(_ context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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

	barcode := strings.TrimSpace(req.Barcode)
	if barcode == "" {
		var maxNumeric int64
		for bc := range s.products {
			if n, ok := store.NumericBarcode(bc); ok && n > maxNumeric {
				maxNumeric = n
			}
		}
		barcode = store.NextBarcode(maxNumeric)
	} else if _, exists := s.products[barcode]; exists {
		return nil, fmt.Errorf("%w: barcode %s already exists", store.ErrValidation, barcode)
	}

	code := store.NormalizeProductCode(req.ProductCode)
	if code == "" {
		prefix := store.CodePrefix(req.Category)
		maxSeq := 0
		for _, p := range s.products {
			if seq, ok := store.CodeSeq(p.ProductCode, prefix); ok && seq > maxSeq {
				maxSeq = seq
			}
		}
		var err error
		code, err = store.NextProductCode(prefix, maxSeq)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	s.nextProductID++
	product := domain.Product{
		ID:             s.nextProductID,
		Barcode:        barcode,
		ProductCode:    code,
		Name:           name,
		Category:       strings.TrimSpace(req.Category),
		Size:           strings.TrimSpace(req.Size),
		Color:          strings.TrimSpace(req.Color),
		BuyPrice:       req.BuyPrice,
		SellPrice:      req.SellPrice,
		StockStore:     req.StockStore,
		StockWarehouse: req.StockWarehouse,
		Stock:          req.StockStore + req.StockWarehouse,
		// Opening counters freeze the initial levels.
		StoreOpening:     req.StockStore,
		WarehouseOpening: req.StockWarehouse,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.products[barcode] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, req domain.ProductUpdateRequest) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[strings.TrimSpace(req.Barcode)]
	if !ok {
		return nil, store.ErrNotFound
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
	p.UpdatedAt = time.Now().UTC()

	s.products[p.Barcode] = p
	updated := p
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, barcode string) (*domain.DeleteProductResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	barcode = strings.TrimSpace(barcode)
	p, ok := s.products[barcode]
	if !ok {
		return nil, store.ErrNotFound
	}

	if s.barcodeReferenced(barcode) {
		p.Active = false
		p.StockStore = 0
		p.StockWarehouse = 0
		p.Stock = 0
		p.UpdatedAt = time.Now().UTC()
		s.products[barcode] = p
		return &domain.DeleteProductResult{Barcode: barcode, Deactivated: true}, nil
	}

	delete(s.products, barcode)
	return &domain.DeleteProductResult{Barcode: barcode, Deleted: true}, nil
}

func (s *Store) barcodeReferenced(barcode string) bool {
	for _, l := range s.sales {
		if l.Barcode == barcode {
			return true
		}
	}
	for _, l := range s.returns {
		if l.Barcode == barcode {
			return true
		}
	}
	for _, l := range s.exchanges {
		if l.Barcode == barcode {
			return true
		}
	}
	for _, l := range s.transfers {
		if l.Barcode == barcode {
			return true
		}
	}
	return false
}

type stockKey struct {
	barcode  string
	location domain.Location
}

func (s *Store) CreateSale(_ context.Context, groupID string, req domain.SaleRequest, at time.Time) (*domain.SaleReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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
	for key, qty := range need {
		p, ok := s.products[key.barcode]
		if !ok || !p.Active {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, key.barcode)
		}
		if available := locQty(p, key.location); available < qty {
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
		p := s.products[barcode]
		unit := p.SellPrice
		if item.UnitPrice != nil {
			unit = *item.UnitPrice
		}
		s.adjustStock(barcode, loc, -qty, true)
		s.nextSaleID++
		line := domain.SaleLine{
			ID:             s.nextSaleID,
			GroupID:        groupID,
			Barcode:        barcode,
			Name:           p.Name,
			Qty:            qty,
			UnitPrice:      unit,
			ListPrice:      item.ListPrice,
			DiscountAmount: item.DiscountAmount,
			Total:          unit * float64(qty),
			PaymentMethod:  req.PaymentMethod,
			Location:       loc,
			SoldAt:         at,
		}
		s.sales = append(s.sales, line)
		receipt.Lines = append(receipt.Lines, line)
		receipt.Total += line.Total
	}
	return receipt, nil
}

func (s *Store) UndoLastSale(_ context.Context) (*domain.UndoResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	groupID := ""
	var maxID int64
	for _, l := range s.sales {
		if l.Voided {
			continue
		}
		if l.ID > maxID {
			maxID = l.ID
			groupID = l.GroupID
		}
	}
	if groupID == "" {
		return nil, store.ErrNotFound
	}

	kept := s.sales[:0]
	removed := 0
	for _, l := range s.sales {
		if l.GroupID != groupID {
			kept = append(kept, l)
			continue
		}
		s.adjustStock(l.Barcode, l.Location, l.Qty, true)
		removed++
	}
	s.sales = kept
	return &domain.UndoResult{GroupID: groupID, Lines: removed}, nil
}

// matchSaleLine finds the newest non-voided sale of the barcode at the
// exact sold-at timestamp, or nil when nothing matches.
func (s *Store) matchSaleLine(barcode string, soldAt time.Time) *domain.SaleLine {
	for i := len(s.sales) - 1; i >= 0; i-- {
		l := s.sales[i]
		if l.Voided || l.Barcode != barcode || !l.SoldAt.Equal(soldAt) {
			continue
		}
		match := l
		return &match
	}
	return nil
}

// resolveReturnLine validates a return against the refund ledger and
// builds the line to persist. It does not mutate anything.
func (s *Store) resolveReturnLine(groupID string, req domain.ReturnRequest, mode string, at time.Time) (domain.ReturnLine, error) {
	var zero domain.ReturnLine
	barcode := strings.TrimSpace(req.Barcode)
	if barcode == "" {
		return zero, fmt.Errorf("%w: return barcode required", store.ErrValidation)
	}
	if req.Qty < 1 {
		return zero, fmt.Errorf("%w: return quantity must be positive", store.ErrValidation)
	}
	p, ok := s.products[barcode]
	if !ok {
		return zero, fmt.Errorf("%w: product %s", store.ErrNotFound, barcode)
	}

	unit := p.SellPrice
	var refSaleID *int64
	if req.SoldAt != nil {
		if match := s.matchSaleLine(barcode, *req.SoldAt); match != nil {
			refunded := 0
			for _, r := range s.returns {
				if r.RefSaleID != nil && *r.RefSaleID == match.ID {
					refunded += r.Qty
				}
			}
			remaining := match.Qty - refunded
			if remaining <= 0 || req.Qty > remaining {
				return zero, &store.RefundConflictError{
					Barcode:   barcode,
					Sold:      match.Qty,
					Refunded:  refunded,
					Remaining: remaining,
					Requested: req.Qty,
				}
			}
			unit = match.UnitPrice
			id := match.ID
			refSaleID = &id
		}
	}
	if req.UnitPrice != nil {
		unit = *req.UnitPrice
	}

	return domain.ReturnLine{
		GroupID:       groupID,
		Barcode:       barcode,
		Name:          p.Name,
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

func (s *Store) CreateReturn(_ context.Context, groupID string, req domain.ReturnRequest, at time.Time) (*domain.ReturnReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := s.resolveReturnLine(groupID, req, domain.ReturnModeRefund, at)
	if err != nil {
		return nil, err
	}
	line.Diff = -line.ReturnedTotal

	s.adjustStock(line.Barcode, line.Location, line.Qty, true)
	s.nextReturnID++
	line.ID = s.nextReturnID
	s.returns = append(s.returns, line)

	return &domain.ReturnReceipt{
		GroupID:       groupID,
		ReturnedTotal: line.ReturnedTotal,
		Diff:          line.Diff,
		Line:          line,
	}, nil
}

func (s *Store) CreateExchange(_ context.Context, groupID string, req domain.ExchangeRequest, at time.Time) (*domain.ExchangeReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(req.Given) == 0 {
		return nil, fmt.Errorf("%w: exchange has no given items", store.ErrValidation)
	}

	returned, err := s.resolveReturnLine(groupID, req.Returned, domain.ReturnModeExchange, at)
	if err != nil {
		return nil, err
	}

	type givenLine struct {
		barcode string
		qty     int
		unit    float64
		loc     domain.Location
		name    string
	}
	// Given-item checks run against the shelf as it stands; the returned
	// item is credited back only after every check passes.
	staged := map[stockKey]int{}
	level := func(key stockKey) int {
		if v, ok := staged[key]; ok {
			return v
		}
		return locQty(s.products[key.barcode], key.location)
	}

	given := make([]givenLine, 0, len(req.Given))
	givenTotal := 0.0
	for _, item := range req.Given {
		if item.Qty < 1 {
			continue
		}
		barcode := strings.TrimSpace(item.Barcode)
		if barcode == "" {
			return nil, fmt.Errorf("%w: item barcode required", store.ErrValidation)
		}
		p, ok := s.products[barcode]
		if !ok || !p.Active {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, barcode)
		}
		loc := domain.ParseLocation(item.Location)
		key := stockKey{barcode, loc}
		available := level(key)
		if available < item.Qty {
			return nil, &store.InsufficientStockError{
				Barcode:   barcode,
				Location:  loc,
				Available: available,
				Requested: item.Qty,
			}
		}
		staged[key] = available - item.Qty
		unit := p.SellPrice
		if item.UnitPrice != nil {
			unit = *item.UnitPrice
		}
		given = append(given, givenLine{barcode: barcode, qty: item.Qty, unit: unit, loc: loc, name: p.Name})
		givenTotal += unit * float64(item.Qty)
	}

	diff := givenTotal - returned.ReturnedTotal
	diffPM := ""
	if diff > epsilon {
		pm, ok := domain.NormalizeDiffPaymentMethod(req.DiffPaymentMethod)
		if !ok {
			return nil, fmt.Errorf("%w: difference payment method must be cash or card", store.ErrValidation)
		}
		diffPM = pm
	}
	returned.Diff = diff
	returned.DiffPaymentMethod = diffPM

	// Commit.
	s.adjustStock(returned.Barcode, returned.Location, returned.Qty, true)
	s.nextReturnID++
	returned.ID = s.nextReturnID
	s.returns = append(s.returns, returned)

	receipt := &domain.ExchangeReceipt{
		GroupID:           groupID,
		ReturnedTotal:     returned.ReturnedTotal,
		GivenTotal:        givenTotal,
		Diff:              diff,
		DiffPaymentMethod: diffPM,
		Returned:          returned,
	}
	for _, g := range given {
		s.adjustStock(g.barcode, g.loc, -g.qty, true)
		s.nextExchangeID++
		line := domain.ExchangeLine{
			ID:        s.nextExchangeID,
			GroupID:   groupID,
			Barcode:   g.barcode,
			Name:      g.name,
			Qty:       g.qty,
			UnitPrice: g.unit,
			Total:     g.unit * float64(g.qty),
			Location:  g.loc,
			CreatedAt: at,
		}
		s.exchanges = append(s.exchanges, line)
		receipt.Given = append(receipt.Given, line)
	}
	return receipt, nil
}

func (s *Store) DeleteReturnGroup(_ context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	keptReturns := s.returns[:0]
	for _, l := range s.returns {
		if l.GroupID == groupID {
			removed++
			continue
		}
		keptReturns = append(keptReturns, l)
	}
	s.returns = keptReturns

	keptExchanges := s.exchanges[:0]
	for _, l := range s.exchanges {
		if l.GroupID == groupID {
			removed++
			continue
		}
		keptExchanges = append(keptExchanges, l)
	}
	s.exchanges = keptExchanges

	if removed == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateTransfer(_ context.Context, groupID string, req domain.TransferRequest, at time.Time) (*domain.TransferReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: transfer has no items", store.ErrValidation)
	}
	note := strings.TrimSpace(req.Note)

	// Direction is per item, so one basket can move goods both ways.
	// Source demand aggregates per (barcode, source).
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
		need[stockKey{barcode, from}] += qty
	}
	for key, qty := range need {
		p, ok := s.products[key.barcode]
		if !ok {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, key.barcode)
		}
		if available := locQty(p, key.location); available < qty {
			return nil, &store.InsufficientStockError{
				Barcode:   key.barcode,
				Location:  key.location,
				Available: available,
				Requested: qty,
			}
		}
	}

	receipt := &domain.TransferReceipt{GroupID: groupID}
	for _, item := range req.Items {
		barcode := strings.TrimSpace(item.Barcode)
		from := domain.ParseLocation(item.FromLocation)
		to := domain.ParseLocation(item.ToLocation)
		qty := item.Qty
		if qty < 1 {
			qty = 1
		}
		p := s.products[barcode]
		// Relocation only: the mirror total is unchanged.
		s.adjustStock(barcode, from, -qty, false)
		s.adjustStock(barcode, to, qty, false)
		s.nextTransferID++
		line := domain.TransferLine{
			ID:           s.nextTransferID,
			GroupID:      groupID,
			Barcode:      barcode,
			Name:         p.Name,
			Qty:          qty,
			FromLocation: from,
			ToLocation:   to,
			Note:         note,
			CreatedAt:    at,
		}
		s.transfers = append(s.transfers, line)
		receipt.Lines = append(receipt.Lines, line)
	}
	return receipt, nil
}

func (s *Store) UndoLastTransfer(_ context.Context) (*domain.UndoResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	groupID := ""
	var maxID int64
	for _, l := range s.transfers {
		if l.Voided {
			continue
		}
		if l.ID > maxID {
			maxID = l.ID
			groupID = l.GroupID
		}
	}
	if groupID == "" {
		return nil, store.ErrNotFound
	}

	need := make(map[stockKey]int)
	for _, l := range s.transfers {
		if l.GroupID != groupID || l.Voided {
			continue
		}
		need[stockKey{l.Barcode, l.ToLocation}] += l.Qty
	}
	for key, qty := range need {
		p, ok := s.products[key.barcode]
		if !ok {
			continue
		}
		if available := locQty(p, key.location); available < qty {
			return nil, &store.InsufficientStockError{
				Barcode:   key.barcode,
				Location:  key.location,
				Available: available,
				Requested: qty,
			}
		}
	}

	reversed := 0
	for i := range s.transfers {
		l := s.transfers[i]
		if l.GroupID != groupID || l.Voided {
			continue
		}
		s.adjustStock(l.Barcode, l.ToLocation, -l.Qty, false)
		s.adjustStock(l.Barcode, l.FromLocation, l.Qty, false)
		s.transfers[i].Voided = true
		reversed++
	}
	return &domain.UndoResult{GroupID: groupID, Lines: reversed}, nil
}

func (s *Store) ListExpenses(_ context.Context) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Expense, len(s.expenses))
	copy(result, s.expenses)
	slices.SortFunc(result, func(a, b domain.Expense) int {
		if a.SpentAt.Equal(b.SpentAt) {
			if a.ID == b.ID {
				return 0
			}
			if a.ID > b.ID {
				return -1
			}
			return 1
		}
		if a.SpentAt.After(b.SpentAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) AddExpense(_ context.Context, req domain.ExpenseCreateRequest) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: expense amount must be positive", store.ErrValidation)
	}
	spentAt, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(req.SpentAt), time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: expense date must be YYYY-MM-DD", store.ErrValidation)
	}

	s.nextExpenseID++
	expense := domain.Expense{
		ID:        s.nextExpenseID,
		Amount:    req.Amount,
		Category:  strings.TrimSpace(req.Category),
		Period:    strings.TrimSpace(req.Period),
		Note:      strings.TrimSpace(req.Note),
		SpentAt:   spentAt,
		CreatedAt: time.Now().UTC(),
	}
	s.expenses = append(s.expenses, expense)
	created := expense
	return &created, nil
}

func (s *Store) DeleteExpense(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.expenses {
		if e.ID == id {
			s.expenses = append(s.expenses[:i], s.expenses[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) ListDictionary(_ context.Context, kind string, includeInactive bool) ([]domain.DictionaryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, ok := s.dictionaries[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown dictionary %s", store.ErrValidation, kind)
	}
	result := make([]domain.DictionaryEntry, 0, len(entries))
	for _, e := range entries {
		if !includeInactive && !e.Active {
			continue
		}
		result = append(result, e)
	}
	if kind == domain.DictSizes {
		slices.SortFunc(result, func(a, b domain.DictionaryEntry) int {
			if a.SortOrder == b.SortOrder {
				return cmpString(a.Name, b.Name)
			}
			if a.SortOrder < b.SortOrder {
				return -1
			}
			return 1
		})
	} else {
		slices.SortFunc(result, func(a, b domain.DictionaryEntry) int {
			return cmpString(a.Name, b.Name)
		})
	}
	return result, nil
}

func (s *Store) CreateDictionaryEntry(_ context.Context, kind string, req domain.DictionaryCreateRequest) (*domain.DictionaryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.dictionaries[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown dictionary %s", store.ErrValidation, kind)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name required", store.ErrValidation)
	}

	// Creating an existing name reactivates it rather than duplicating.
	for i, e := range entries {
		if strings.EqualFold(e.Name, name) {
			entries[i].Active = true
			if kind == domain.DictSizes && req.SortOrder != 0 {
				entries[i].SortOrder = req.SortOrder
			}
			existing := entries[i]
			return &existing, nil
		}
	}

	s.nextDictID++
	entry := domain.DictionaryEntry{ID: s.nextDictID, Name: name, Active: true}
	if kind == domain.DictSizes {
		entry.SortOrder = req.SortOrder
	}
	s.dictionaries[kind] = append(entries, entry)
	created := entry
	return &created, nil
}

func (s *Store) UpdateDictionaryEntry(_ context.Context, kind string, id int64, req domain.DictionaryUpdateRequest) (*domain.DictionaryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.dictionaries[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown dictionary %s", store.ErrValidation, kind)
	}
	for i, e := range entries {
		if e.ID != id {
			continue
		}
		if req.Active != nil && !*req.Active && s.dictionaryUsage(kind, e.Name) > 0 {
			return nil, fmt.Errorf("%w: %s %q is still used by products", store.ErrValidation, kindLabel(kind), e.Name)
		}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return nil, fmt.Errorf("%w: name required", store.ErrValidation)
			}
			entries[i].Name = name
		}
		if req.Active != nil {
			entries[i].Active = *req.Active
		}
		if req.SortOrder != nil && kind == domain.DictSizes {
			entries[i].SortOrder = *req.SortOrder
		}
		updated := entries[i]
		return &updated, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) DeleteDictionaryEntry(_ context.Context, kind string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.dictionaries[kind]
	if !ok {
		return fmt.Errorf("%w: unknown dictionary %s", store.ErrValidation, kind)
	}
	for i, e := range entries {
		if e.ID != id {
			continue
		}
		if s.dictionaryUsage(kind, e.Name) > 0 {
			return fmt.Errorf("%w: %s %q is still used by products", store.ErrValidation, kindLabel(kind), e.Name)
		}
		s.dictionaries[kind] = append(entries[:i], entries[i+1:]...)
		return nil
	}
	return store.ErrNotFound
}

func (s *Store) dictionaryUsage(kind string, name string) int {
	count := 0
	for _, p := range s.products {
		var field string
		switch kind {
		case domain.DictCategories:
			field = p.Category
		case domain.DictColors:
			field = p.Color
		case domain.DictSizes:
			field = p.Size
		}
		if field == name {
			count++
		}
	}
	return count
}

func kindLabel(kind string) string {
	switch kind {
	case domain.DictCategories:
		return "category"
	case domain.DictColors:
		return "color"
	case domain.DictSizes:
		return "size"
	default:
		return kind
	}
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}
