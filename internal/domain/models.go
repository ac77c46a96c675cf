package domain

import "time"

type Product struct {
	ID         string `json:"id"`
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	Barcode    string `json:"barcode,omitempty"`
	PriceCents int64  `json:"price_cents"`
	Stock      int    `json:"stock"`
	Active     bool   `json:"active"`
}

// CartLine is one product's quantity in the active cart. It references the
// product by ID so the stock ceiling stays live; SubtotalCents is derived and
// recomputed by the ledger on every mutation.
type CartLine struct {
	ID             string `json:"id"`
	ProductID      string `json:"product_id"`
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Qty            int    `json:"qty"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}

type PricingRates struct {
	DiscountPercent float64 `json:"discount_percent"`
	TaxRatePercent  float64 `json:"tax_rate_percent"`
}

type PricingBreakdown struct {
	SubtotalCents int64 `json:"subtotal_cents"`
	DiscountCents int64 `json:"discount_cents"`
	TaxCents      int64 `json:"tax_cents"`
	TotalCents    int64 `json:"total_cents"`
}

type TransactionLine struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}

// Transaction is the immutable record of one finalized payment. Lines are
// snapshots decoupled from live products.
type Transaction struct {
	ID                string            `json:"id"`
	StoreID           string            `json:"store_id"`
	TerminalID        string            `json:"terminal_id"`
	CashierUsername   string            `json:"cashier_username"`
	PaymentMethod     string            `json:"payment_method"`
	PaymentReference  string            `json:"payment_reference,omitempty"`
	SubtotalCents     int64             `json:"subtotal_cents"`
	DiscountCents     int64             `json:"discount_cents"`
	TaxCents          int64             `json:"tax_cents"`
	TotalCents        int64             `json:"total_cents"`
	CashReceivedCents int64             `json:"cash_received_cents"`
	ChangeCents       int64             `json:"change_cents"`
	CreatedAt         time.Time         `json:"created_at"`
	Items             []TransactionLine `json:"items"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type ReceiptSettings struct {
	StoreName    string `json:"store_name"`
	StoreAddress string `json:"store_address"`
	StorePhone   string `json:"store_phone"`
	Footer       string `json:"footer"`
	PaperWidthMM int    `json:"paper_width_mm"`
}

type ScannerSettings struct {
	DeviceName        string `json:"device_name"`
	ManualModeDefault bool   `json:"manual_mode_default"`
}

// Settings is the single configuration blob the engine reads at session
// start. It is stored as one JSON document.
type Settings struct {
	Receipt           ReceiptSettings `json:"receipt"`
	Scanner           ScannerSettings `json:"scanner"`
	DiscountPercent   float64         `json:"discount_percent"`
	TaxRatePercent    float64         `json:"tax_rate_percent"`
	QRISWindowSeconds int             `json:"qris_window_seconds"`
}

type PopularProduct struct {
	Product   Product `json:"product"`
	SoldQty   int     `json:"sold_qty"`
	SalesRank int     `json:"sales_rank"`
}

type PopularResponse struct {
	StoreID     string           `json:"store_id"`
	GeneratedAt string           `json:"generated_at"`
	Products    []PopularProduct `json:"products"`
}

const (
	PaymentMethodCash = "cash"
	PaymentMethodQRIS = "qris"
)

const (
	EventItemAdded         = "item-added"
	EventOutOfStock        = "out-of-stock"
	EventInsufficientStock = "insufficient-stock"
	EventScanNotFound      = "scan-not-found"
	EventEmptyCart         = "empty-cart"
	EventCartCleared       = "cart-cleared"
	EventPaymentSuccess    = "payment-success"
	EventPaymentRejected   = "payment-rejected"
	EventQRISExpired       = "qris-expired"
)
