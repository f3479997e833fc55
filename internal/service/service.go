package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ilaydakx/pos-system/internal/cache"
	"github.com/ilaydakx/pos-system/internal/domain"
	"github.com/ilaydakx/pos-system/internal/groupid"
	"github.com/ilaydakx/pos-system/internal/store"
)

// Service normalizes requests at the boundary (payment spellings,
// location defaults, window clamps, group ids) and hands whole atomic
// operations to the repository.
type Service struct {
	repo            store.Repository
	reports         cache.ReportCache
	reportTTL       time.Duration
	defaultLocation string
}

func New(repo store.Repository, reports cache.ReportCache, defaultLocation string, reportTTL time.Duration) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if reportTTL <= 0 {
		reportTTL = 30 * time.Second
	}
	if defaultLocation == "" {
		defaultLocation = string(domain.LocationStore)
	}

	return &Service{
		repo:            repo,
		reports:         reports,
		reportTTL:       reportTTL,
		defaultLocation: defaultLocation,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, barcode string) (domain.Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return domain.Product{}, store.ErrValidation
	}
	p, err := s.repo.GetProductByBarcode(ctx, barcode)
	if err != nil {
		return domain.Product{}, err
	}
	return *p, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	created, err := s.repo.CreateProduct(ctx, req)
	if err != nil {
		return domain.Product{}, err
	}
	s.invalidateReports(ctx)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, barcode string, req domain.ProductUpdateRequest) (domain.Product, error) {
	req.Barcode = strings.TrimSpace(barcode)
	if req.Barcode == "" {
		return domain.Product{}, store.ErrValidation
	}
	updated, err := s.repo.UpdateProduct(ctx, req)
	if err != nil {
		return domain.Product{}, err
	}
	s.invalidateReports(ctx)
	return *updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, barcode string) (domain.DeleteProductResult, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return domain.DeleteProductResult{}, store.ErrValidation
	}
	result, err := s.repo.DeleteProduct(ctx, barcode)
	if err != nil {
		return domain.DeleteProductResult{}, err
	}
	s.invalidateReports(ctx)
	return *result, nil
}

// resolveItems fills each line's location from the basket default and
// coerces non-positive quantities to one item.
func (s *Service) resolveItems(items []domain.SaleItemRequest, basketLocation string) []domain.SaleItemRequest {
	if basketLocation == "" {
		basketLocation = s.defaultLocation
	}
	resolved := make([]domain.SaleItemRequest, len(items))
	for i, item := range items {
		if item.Location == "" {
			item.Location = basketLocation
		}
		if item.Qty < 1 {
			item.Qty = 1
		}
		resolved[i] = item
	}
	return resolved
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (domain.SaleReceipt, error) {
	if len(req.Items) == 0 {
		return domain.SaleReceipt{}, store.ErrValidation
	}
	req.PaymentMethod = domain.NormalizePaymentMethod(req.PaymentMethod)
	req.Items = s.resolveItems(req.Items, req.Location)

	receipt, err := s.repo.CreateSale(ctx, groupid.New(groupid.PrefixSale), req, time.Now().UTC())
	if err != nil {
		return domain.SaleReceipt{}, err
	}
	s.invalidateReports(ctx)
	return *receipt, nil
}

func (s *Service) UndoLastSale(ctx context.Context) (domain.UndoResult, error) {
	result, err := s.repo.UndoLastSale(ctx)
	if err != nil {
		return domain.UndoResult{}, err
	}
	s.invalidateReports(ctx)
	return *result, nil
}

func (s *Service) CreateReturn(ctx context.Context, req domain.ReturnRequest) (domain.ReturnReceipt, error) {
	if req.Location == "" {
		req.Location = s.defaultLocation
	}
	receipt, err := s.repo.CreateReturn(ctx, groupid.New(groupid.PrefixRefund), req, time.Now().UTC())
	if err != nil {
		return domain.ReturnReceipt{}, err
	}
	s.invalidateReports(ctx)
	return *receipt, nil
}

func (s *Service) CreateExchange(ctx context.Context, req domain.ExchangeRequest) (domain.ExchangeReceipt, error) {
	if len(req.Given) == 0 {
		return domain.ExchangeReceipt{}, fmt.Errorf("%w: exchange has no given items", store.ErrValidation)
	}
	if req.Returned.Location == "" {
		if req.Location != "" {
			req.Returned.Location = req.Location
		} else {
			req.Returned.Location = s.defaultLocation
		}
	}
	// Only locations are defaulted here. Non-positive given quantities
	// are skipped by the store, not coerced like sale lines.
	basketLocation := req.Location
	if basketLocation == "" {
		basketLocation = s.defaultLocation
	}
	for i := range req.Given {
		if req.Given[i].Location == "" {
			req.Given[i].Location = basketLocation
		}
	}

	receipt, err := s.repo.CreateExchange(ctx, groupid.New(groupid.PrefixExchange), req, time.Now().UTC())
	if err != nil {
		return domain.ExchangeReceipt{}, err
	}
	s.invalidateReports(ctx)
	return *receipt, nil
}

func (s *Service) DeleteReturnGroup(ctx context.Context, groupID string) error {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return store.ErrValidation
	}
	if err := s.repo.DeleteReturnGroup(ctx, groupID); err != nil {
		return err
	}
	s.invalidateReports(ctx)
	return nil
}

func (s *Service) CreateTransfer(ctx context.Context, req domain.TransferRequest) (domain.TransferReceipt, error) {
	if len(req.Items) == 0 {
		return domain.TransferReceipt{}, store.ErrValidation
	}
	receipt, err := s.repo.CreateTransfer(ctx, groupid.New(groupid.PrefixTransfer), req, time.Now().UTC())
	if err != nil {
		return domain.TransferReceipt{}, err
	}
	s.invalidateReports(ctx)
	return *receipt, nil
}

func (s *Service) UndoLastTransfer(ctx context.Context) (domain.UndoResult, error) {
	result, err := s.repo.UndoLastTransfer(ctx)
	if err != nil {
		return domain.UndoResult{}, err
	}
	s.invalidateReports(ctx)
	return *result, nil
}

func (s *Service) GetDashboardSummary(ctx context.Context, days int, months int) (domain.DashboardSummary, error) {
	if days == 0 {
		days = 30
	}
	if months == 0 {
		months = 12
	}
	days = clamp(days, 1, 90)
	months = clamp(months, 1, 24)
	now := time.Now().UTC()

	key := fmt.Sprintf("dashboard:%s:%d:%d", now.Format("2006-01-02"), days, months)
	var summary domain.DashboardSummary
	if s.getCachedReport(ctx, key, &summary) {
		return summary, nil
	}

	result, err := s.repo.GetDashboardSummary(ctx, days, months, now)
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	s.putCachedReport(ctx, key, result)
	return *result, nil
}

func (s *Service) GetCashReport(ctx context.Context, days int) (domain.CashReport, error) {
	if days == 0 {
		days = 30
	}
	days = clamp(days, 1, 365)
	now := time.Now().UTC()

	key := fmt.Sprintf("cash:%s:%d", now.Format("2006-01-02"), days)
	var report domain.CashReport
	if s.getCachedReport(ctx, key, &report) {
		return report, nil
	}

	result, err := s.repo.GetCashReport(ctx, days, now)
	if err != nil {
		return domain.CashReport{}, err
	}
	s.putCachedReport(ctx, key, result)
	return *result, nil
}

func (s *Service) ListSalesByBarcode(ctx context.Context, barcode string, days int) ([]domain.SaleHistoryRow, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, store.ErrValidation
	}
	if days == 0 {
		days = 90
	}
	days = clamp(days, 1, 365)
	return s.repo.ListSalesByBarcode(ctx, barcode, days, time.Now().UTC())
}

func (s *Service) ListSaleGroups(ctx context.Context, days int, search string) ([]domain.SaleGroupRow, error) {
	if days == 0 {
		days = 30
	}
	days = clamp(days, 1, 365)
	return s.repo.ListSaleGroups(ctx, days, strings.TrimSpace(search), time.Now().UTC())
}

func (s *Service) ListSalesByGroup(ctx context.Context, groupID string) ([]domain.SaleGroupLine, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return nil, store.ErrValidation
	}
	return s.repo.ListSalesByGroup(ctx, groupID)
}

func (s *Service) ListExpenses(ctx context.Context) ([]domain.Expense, error) {
	return s.repo.ListExpenses(ctx)
}

func (s *Service) AddExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	if strings.TrimSpace(req.SpentAt) == "" {
		req.SpentAt = time.Now().UTC().Format("2006-01-02")
	}
	expense, err := s.repo.AddExpense(ctx, req)
	if err != nil {
		return domain.Expense{}, err
	}
	s.invalidateReports(ctx)
	return *expense, nil
}

func (s *Service) DeleteExpense(ctx context.Context, id int64) error {
	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		return err
	}
	s.invalidateReports(ctx)
	return nil
}

func (s *Service) ListDictionary(ctx context.Context, kind string, includeInactive bool) ([]domain.DictionaryEntry, error) {
	return s.repo.ListDictionary(ctx, kind, includeInactive)
}

func (s *Service) CreateDictionaryEntry(ctx context.Context, kind string, req domain.DictionaryCreateRequest) (domain.DictionaryEntry, error) {
	entry, err := s.repo.CreateDictionaryEntry(ctx, kind, req)
	if err != nil {
		return domain.DictionaryEntry{}, err
	}
	return *entry, nil
}

func (s *Service) UpdateDictionaryEntry(ctx context.Context, kind string, id int64, req domain.DictionaryUpdateRequest) (domain.DictionaryEntry, error) {
	entry, err := s.repo.UpdateDictionaryEntry(ctx, kind, id, req)
	if err != nil {
		return domain.DictionaryEntry{}, err
	}
	return *entry, nil
}

func (s *Service) DeleteDictionaryEntry(ctx context.Context, kind string, id int64) error {
	return s.repo.DeleteDictionaryEntry(ctx, kind, id)
}

func (s *Service) getCachedReport(ctx context.Context, key string, out any) bool {
	payload, ok, err := s.reports.Get(ctx, key)
	if err != nil {
		log.Printf("[service] WARN: report cache get %s: %v", key, err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(payload, out); err != nil {
		log.Printf("[service] WARN: report cache decode %s: %v", key, err)
		return false
	}
	return true
}

func (s *Service) putCachedReport(ctx context.Context, key string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		log.Printf("[service] WARN: report cache encode %s: %v", key, err)
		return
	}
	if err := s.reports.Set(ctx, key, payload, s.reportTTL); err != nil {
		log.Printf("[service] WARN: report cache set %s: %v", key, err)
	}
}

func (s *Service) invalidateReports(ctx context.Context) {
	if err := s.reports.Invalidate(ctx); err != nil {
		log.Printf("[service] WARN: report cache invalidate: %v", err)
	}
}

func clamp(v int, lo int, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
