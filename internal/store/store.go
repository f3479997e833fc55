package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ilaydakx/pos-system/internal/domain"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("invalid request")
	ErrIntegrity  = errors.New("integrity failure")
)

// InsufficientStockError reports exactly which basket line could not be
// covered. The whole operation it belongs to is rolled back.
type InsufficientStockError struct {
	Barcode   string
	Location  domain.Location
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s at %s: have %d, need %d",
		e.Barcode, e.Location, e.Available, e.Requested)
}

// RefundConflictError reports an over-refund attempt against a matched
// sale line, carrying the full running tally.
type RefundConflictError struct {
	Barcode   string
	Sold      int
	Refunded  int
	Remaining int
	Requested int
}

func (e *RefundConflictError) Error() string {
	return fmt.Sprintf("refund for %s exceeds remaining quantity: sold %d, refunded %d, remaining %d, requested %d",
		e.Barcode, e.Sold, e.Refunded, e.Remaining, e.Requested)
}

// Repository is the persistence contract. Every mutating method is a
// single atomic unit: it either applies all of its stock movements and
// record writes, or none of them.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error)
	UpdateProduct(ctx context.Context, req domain.ProductUpdateRequest) (*domain.Product, error)
	DeleteProduct(ctx context.Context, barcode string) (*domain.DeleteProductResult, error)

	CreateSale(ctx context.Context, groupID string, req domain.SaleRequest, at time.Time) (*domain.SaleReceipt, error)
	UndoLastSale(ctx context.Context) (*domain.UndoResult, error)
	CreateReturn(ctx context.Context, groupID string, req domain.ReturnRequest, at time.Time) (*domain.ReturnReceipt, error)
	CreateExchange(ctx context.Context, groupID string, req domain.ExchangeRequest, at time.Time) (*domain.ExchangeReceipt, error)
	DeleteReturnGroup(ctx context.Context, groupID string) error

	CreateTransfer(ctx context.Context, groupID string, req domain.TransferRequest, at time.Time) (*domain.TransferReceipt, error)
	UndoLastTransfer(ctx context.Context) (*domain.UndoResult, error)

	GetDashboardSummary(ctx context.Context, days int, months int, now time.Time) (*domain.DashboardSummary, error)
	GetCashReport(ctx context.Context, days int, now time.Time) (*domain.CashReport, error)
	ListSalesByBarcode(ctx context.Context, barcode string, days int, now time.Time) ([]domain.SaleHistoryRow, error)
	ListSaleGroups(ctx context.Context, days int, search string, now time.Time) ([]domain.SaleGroupRow, error)
	ListSalesByGroup(ctx context.Context, groupID string) ([]domain.SaleGroupLine, error)

	ListExpenses(ctx context.Context) ([]domain.Expense, error)
	AddExpense(ctx context.Context, req domain.ExpenseCreateRequest) (*domain.Expense, error)
	DeleteExpense(ctx context.Context, id int64) error

	ListDictionary(ctx context.Context, kind string, includeInactive bool) ([]domain.DictionaryEntry, error)
	CreateDictionaryEntry(ctx context.Context, kind string, req domain.DictionaryCreateRequest) (*domain.DictionaryEntry, error)
	UpdateDictionaryEntry(ctx context.Context, kind string, id int64, req domain.DictionaryUpdateRequest) (*domain.DictionaryEntry, error)
	DeleteDictionaryEntry(ctx context.Context, kind string, id int64) error
}
