package domain

import "time"

type Product struct {
	ID             int64   `json:"id"`
	Barcode        string  `json:"barcode"`
	ProductCode    string  `json:"product_code"`
	Name           string  `json:"name"`
	Category       string  `json:"category"`
	Size           string  `json:"size,omitempty"`
	Color          string  `json:"color,omitempty"`
	BuyPrice       float64 `json:"buy_price"`
	SellPrice      float64 `json:"sell_price"`
	Stock          int     `json:"stock"`
	StockStore     int     `json:"stock_store"`
	StockWarehouse int     `json:"stock_warehouse"`
	// Opening counters are frozen at creation time; movements never
	// touch them.
	StoreOpening     int       `json:"store_opening"`
	WarehouseOpening int       `json:"warehouse_opening"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	Barcode        string  `json:"barcode,omitempty"`
	ProductCode    string  `json:"product_code,omitempty"`
	Name           string  `json:"name"`
	Category       string  `json:"category"`
	Size           string  `json:"size,omitempty"`
	Color          string  `json:"color,omitempty"`
	BuyPrice       float64 `json:"buy_price"`
	SellPrice      float64 `json:"sell_price"`
	StockStore     int     `json:"stock_store"`
	StockWarehouse int     `json:"stock_warehouse"`
}

type ProductUpdateRequest struct {
	Barcode        string   `json:"barcode"`
	ProductCode    string   `json:"product_code,omitempty"`
	Name           *string  `json:"name,omitempty"`
	Category       *string  `json:"category,omitempty"`
	Size           *string  `json:"size,omitempty"`
	Color          *string  `json:"color,omitempty"`
	BuyPrice       *float64 `json:"buy_price,omitempty"`
	SellPrice      *float64 `json:"sell_price,omitempty"`
	StockStore     *int     `json:"stock_store,omitempty"`
	StockWarehouse *int     `json:"stock_warehouse,omitempty"`
	Active         *bool    `json:"active,omitempty"`
}

type DeleteProductResult struct {
	Barcode     string `json:"barcode"`
	Deleted     bool   `json:"deleted"`
	Deactivated bool   `json:"deactivated"`
}

type SaleItemRequest struct {
	Barcode        string   `json:"barcode"`
	Qty            int      `json:"qty"`
	UnitPrice      *float64 `json:"unit_price,omitempty"`
	ListPrice      float64  `json:"list_price,omitempty"`
	DiscountAmount float64  `json:"discount_amount,omitempty"`
	Location       string   `json:"location,omitempty"`
}

type SaleRequest struct {
	PaymentMethod string            `json:"payment_method"`
	Location      string            `json:"location,omitempty"`
	Items         []SaleItemRequest `json:"items"`
}

// SaleLine is a single persisted sale row. One receipt (group) spans
// every line sharing the same GroupID.
type SaleLine struct {
	ID             int64     `json:"id"`
	GroupID        string    `json:"group_id"`
	Barcode        string    `json:"barcode"`
	Name           string    `json:"name"`
	Qty            int       `json:"qty"`
	UnitPrice      float64   `json:"unit_price"`
	ListPrice      float64   `json:"list_price"`
	DiscountAmount float64   `json:"discount_amount"`
	Total          float64   `json:"total"`
	PaymentMethod  string    `json:"payment_method"`
	Location       Location  `json:"location"`
	Voided         bool      `json:"voided"`
	SoldAt         time.Time `json:"sold_at"`
}

type SaleReceipt struct {
	GroupID       string     `json:"group_id"`
	PaymentMethod string     `json:"payment_method"`
	Total         float64    `json:"total"`
	Lines         []SaleLine `json:"lines"`
}

type ReturnRequest struct {
	Barcode   string     `json:"barcode"`
	Qty       int        `json:"qty"`
	UnitPrice *float64   `json:"unit_price,omitempty"`
	SoldAt    *time.Time `json:"sold_at,omitempty"`
	SoldFrom  string     `json:"sold_from,omitempty"`
	Location  string     `json:"location,omitempty"`
}

type ExchangeRequest struct {
	Returned          ReturnRequest     `json:"returned"`
	Given             []SaleItemRequest `json:"given"`
	DiffPaymentMethod string            `json:"diff_payment_method,omitempty"`
	Location          string            `json:"location,omitempty"`
}

// ReturnLine records one returned item. Mode distinguishes plain refunds
// from the return half of an exchange; RefSaleID links back to the sale
// line the refund accounting is charged against, when one matched.
type ReturnLine struct {
	ID                int64     `json:"id"`
	GroupID           string    `json:"group_id"`
	Barcode           string    `json:"barcode"`
	Name              string    `json:"name"`
	Qty               int       `json:"qty"`
	UnitPrice         float64   `json:"unit_price"`
	ReturnedTotal     float64   `json:"returned_total"`
	Mode              string    `json:"mode"`
	RefSaleID         *int64    `json:"ref_sale_id,omitempty"`
	SoldFrom          string    `json:"sold_from,omitempty"`
	Diff              float64   `json:"diff"`
	DiffPaymentMethod string    `json:"diff_payment_method,omitempty"`
	Location          Location  `json:"location"`
	CreatedAt         time.Time `json:"created_at"`
}

type ExchangeLine struct {
	ID        int64     `json:"id"`
	GroupID   string    `json:"group_id"`
	Barcode   string    `json:"barcode"`
	Name      string    `json:"name"`
	Qty       int       `json:"qty"`
	UnitPrice float64   `json:"unit_price"`
	Total     float64   `json:"total"`
	Location  Location  `json:"location"`
	CreatedAt time.Time `json:"created_at"`
}

type ReturnReceipt struct {
	GroupID       string     `json:"group_id"`
	ReturnedTotal float64    `json:"returned_total"`
	Diff          float64    `json:"diff"`
	Line          ReturnLine `json:"line"`
}

type ExchangeReceipt struct {
	GroupID           string         `json:"group_id"`
	ReturnedTotal     float64        `json:"returned_total"`
	GivenTotal        float64        `json:"given_total"`
	Diff              float64        `json:"diff"`
	DiffPaymentMethod string         `json:"diff_payment_method,omitempty"`
	Returned          ReturnLine     `json:"returned"`
	Given             []ExchangeLine `json:"given"`
}

// TransferItemRequest carries its own direction so one basket can move
// goods both ways.
type TransferItemRequest struct {
	Barcode      string `json:"barcode"`
	Qty          int    `json:"qty"`
	FromLocation string `json:"from_location"`
	ToLocation   string `json:"to_location"`
}

type TransferRequest struct {
	Items []TransferItemRequest `json:"items"`
	Note  string                `json:"note,omitempty"`
}

type TransferLine struct {
	ID           int64     `json:"id"`
	GroupID      string    `json:"group_id"`
	Barcode      string    `json:"barcode"`
	Name         string    `json:"name"`
	Qty          int       `json:"qty"`
	FromLocation Location  `json:"from_location"`
	ToLocation   Location  `json:"to_location"`
	Note         string    `json:"note,omitempty"`
	Voided       bool      `json:"voided"`
	CreatedAt    time.Time `json:"created_at"`
}

type TransferReceipt struct {
	GroupID string         `json:"group_id"`
	Lines   []TransferLine `json:"lines"`
}

type UndoResult struct {
	GroupID string `json:"group_id"`
	Lines   int    `json:"lines"`
}

type DailyPoint struct {
	Day         string  `json:"day"`
	Qty         int     `json:"qty"`
	NetRevenue  float64 `json:"net_revenue"`
	GrossProfit float64 `json:"gross_profit"`
}

type MonthlyPoint struct {
	Month       string  `json:"month"`
	Qty         int     `json:"qty"`
	NetRevenue  float64 `json:"net_revenue"`
	GrossProfit float64 `json:"gross_profit"`
	Expense     float64 `json:"expense"`
	NetProfit   float64 `json:"net_profit"`
}

type DashboardSummary struct {
	TodayQty         int            `json:"today_qty"`
	TodayNetRevenue  float64        `json:"today_net_revenue"`
	MonthGrossProfit float64        `json:"month_gross_profit"`
	MonthNetProfit   float64        `json:"month_net_profit"`
	MonthAvgBasket   float64        `json:"month_avg_basket"`
	MonthExpense     float64        `json:"month_expense"`
	Daily            []DailyPoint   `json:"daily"`
	Monthly          []MonthlyPoint `json:"monthly"`
}

type CashReportRow struct {
	Day         string  `json:"day"`
	CashSales   float64 `json:"cash_sales"`
	CardSales   float64 `json:"card_sales"`
	CashRefunds float64 `json:"cash_refunds"`
	CardRefunds float64 `json:"card_refunds"`
	NetCash     float64 `json:"net_cash"`
	NetCard     float64 `json:"net_card"`
	NetTotal    float64 `json:"net_total"`
}

type CashReport struct {
	Days []CashReportRow `json:"days"`
}

type SaleHistoryRow struct {
	SaleLine
	RefundedQty int `json:"refunded_qty"`
}

type SaleGroupRow struct {
	GroupID       string    `json:"group_id"`
	Kind          string    `json:"kind"`
	Qty           int       `json:"qty"`
	Total         float64   `json:"total"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type SaleGroupLine struct {
	ID             int64     `json:"id"`
	Barcode        string    `json:"barcode"`
	Name           string    `json:"name"`
	Qty            int       `json:"qty"`
	UnitPrice      float64   `json:"unit_price"`
	ListPrice      float64   `json:"list_price"`
	DiscountAmount float64   `json:"discount_amount"`
	Total          float64   `json:"total"`
	Location       Location  `json:"location"`
	RefundedQty    int       `json:"refunded_qty"`
	RefundKind     string    `json:"refund_kind,omitempty"`
	SoldAt         time.Time `json:"sold_at"`
}

type Expense struct {
	ID        int64     `json:"id"`
	Amount    float64   `json:"amount"`
	Category  string    `json:"category,omitempty"`
	Period    string    `json:"period,omitempty"`
	Note      string    `json:"note,omitempty"`
	SpentAt   time.Time `json:"spent_at"`
	CreatedAt time.Time `json:"created_at"`
}

type ExpenseCreateRequest struct {
	Amount   float64 `json:"amount"`
	Category string  `json:"category,omitempty"`
	Period   string  `json:"period,omitempty"`
	Note     string  `json:"note,omitempty"`
	SpentAt  string  `json:"spent_at"`
}

type DictionaryEntry struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	SortOrder int    `json:"sort_order,omitempty"`
}

type DictionaryCreateRequest struct {
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order,omitempty"`
}

type DictionaryUpdateRequest struct {
	Name      *string `json:"name,omitempty"`
	Active    *bool   `json:"active,omitempty"`
	SortOrder *int    `json:"sort_order,omitempty"`
}

const (
	ReturnModeRefund   = "REFUND"
	ReturnModeExchange = "EXCHANGE"
)

const (
	GroupKindSale     = "SALE"
	GroupKindExchange = "EXCHANGE"
)

const (
	DictCategories = "categories"
	DictColors     = "colors"
	DictSizes      = "sizes"
)
