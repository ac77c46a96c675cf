package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"smartpos/engine/internal/cart"
	"smartpos/engine/internal/catalog"
	"smartpos/engine/internal/clock"
	"smartpos/engine/internal/domain"
	"smartpos/engine/internal/payment"
	"smartpos/engine/internal/pricing"
	"smartpos/engine/internal/receipt"
	"smartpos/engine/internal/scan"
	"smartpos/engine/internal/settings"
	"smartpos/engine/internal/store"
	"smartpos/engine/internal/xid"
)

// cashProcessingDelay simulates the drawer interaction before a validated
// cash payment finalizes.
const cashProcessingDelay = 2 * time.Second

// Event is a user-facing notification emitted by the controller. Code is one
// of the domain.Event constants.
type Event struct {
	Code    string
	Message string
}

// Notifier receives session events for the host UI. Implementations must not
// call back into the controller from Notify.
type Notifier interface {
	Notify(evt Event)
}

type NoopNotifier struct{}

func (NoopNotifier) Notify(Event) {}

// Config carries the per-terminal identity and timing the controller needs.
type Config struct {
	StoreID    string
	TerminalID string
	Cashier    string
}

// Controller runs one cashier session on one terminal: it classifies
// keyboard input, resolves scans against the catalog snapshot, maintains the
// cart, and drives payment through to a persisted transaction. One mutex
// guards all state; expiry and processing timers are owned here, never by
// the payment machine.
type Controller struct {
	mu sync.Mutex

	cfg      Config
	repo     store.Repository
	settings settings.Store
	sched    clock.Scheduler
	notifier Notifier

	classifier *scan.Classifier
	ledger     *cart.Ledger
	machine    *payment.Machine

	products []domain.Product
	rates    domain.PricingRates
	blob     domain.Settings

	cashTimer clock.Timer
	qrisTimer clock.Timer

	lastReceipt *receipt.Document
}

// New loads the catalog snapshot and settings blob and returns a ready
// controller. The snapshot is refreshed after every finalized transaction.
func New(ctx context.Context, cfg Config, repo store.Repository, settingsStore settings.Store, sched clock.Scheduler, notifier Notifier) (*Controller, error) {
	if repo == nil {
		return nil, errors.New("session: repository is required")
	}
	if settingsStore == nil {
		settingsStore = settings.NewMemory()
	}
	if sched == nil {
		sched = clock.System{}
	}
	if notifier == nil {
		notifier = NoopNotifier{}
	}

	blob, found, err := settingsStore.Load(ctx)
	if err != nil {
		log.Printf("[session] WARN: settings load failed, using defaults: %v", err)
	}
	if !found {
		blob = domain.Settings{}
	}
	blob = settings.Merge(blob)

	c := &Controller{
		cfg:        cfg,
		repo:       repo,
		settings:   settingsStore,
		sched:      sched,
		notifier:   notifier,
		classifier: scan.NewClassifier(),
		ledger:     cart.NewLedger(),
		machine:    payment.NewMachine(),
		blob:       blob,
		rates: domain.PricingRates{
			DiscountPercent: blob.DiscountPercent,
			TaxRatePercent:  blob.TaxRatePercent,
		},
	}
	if err := c.refreshCatalog(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// HandleKey feeds one printable character through the scan classifier. It
// returns true when the character was diverted into the scan buffer.
func (c *Controller) HandleKey(ch rune, inTextField bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.classifier.Key(ch, c.sched.Now(), inTextField)
}

// HandleEnter completes a pending scan, if any, and routes the token through
// catalog lookup into the cart.
func (c *Controller) HandleEnter(ctx context.Context) (domain.CartLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	token, ok := c.classifier.Terminator(c.sched.Now())
	if !ok {
		return domain.CartLine{}, nil
	}
	return c.addByToken(ctx, token)
}

// Scan resolves an explicit token (manual search box submit) into the cart.
func (c *Controller) Scan(ctx context.Context, token string) (domain.CartLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addByToken(ctx, token)
}

func (c *Controller) addByToken(_ context.Context, token string) (domain.CartLine, error) {
	product, err := catalog.Resolve(token, c.products)
	if err != nil {
		var nf *catalog.NotFoundError
		if errors.As(err, &nf) {
			c.notify(domain.EventScanNotFound, fmt.Sprintf("Produk tidak ditemukan: %s", nf.Token))
		}
		return domain.CartLine{}, err
	}
	return c.addProduct(product)
}

// AddProductID adds one unit from the quick-pick grid.
func (c *Controller) AddProductID(productID string) (domain.CartLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range c.products {
		if p.ID == productID {
			return c.addProduct(p)
		}
	}
	return domain.CartLine{}, store.ErrNotFound
}

func (c *Controller) addProduct(p domain.Product) (domain.CartLine, error) {
	line, err := c.ledger.AddProduct(p)
	if err != nil {
		var ise *cart.InsufficientStockError
		switch {
		case errors.Is(err, cart.ErrOutOfStock):
			c.notify(domain.EventOutOfStock, fmt.Sprintf("Stok habis: %s", p.Name))
		case errors.As(err, &ise):
			c.notify(domain.EventInsufficientStock, fmt.Sprintf("Stok %s tinggal %d", ise.SKU, ise.MaxQty))
		}
		return domain.CartLine{}, err
	}
	c.notify(domain.EventItemAdded, fmt.Sprintf("%s x%d", line.Name, line.Qty))
	return line, nil
}

func (c *Controller) SetQuantity(lineID string, qty int) (domain.CartLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	line, err := c.ledger.SetQuantity(lineID, qty)
	var ise *cart.InsufficientStockError
	if errors.As(err, &ise) {
		c.notify(domain.EventInsufficientStock, fmt.Sprintf("Stok %s tinggal %d", ise.SKU, ise.MaxQty))
	}
	return line, err
}

func (c *Controller) RemoveLine(lineID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ledger.RemoveLine(lineID)
}

// ClearCart empties the cart and aborts any in-flight payment attempt.
func (c *Controller) ClearCart() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTimers()
	_ = c.machine.Cancel()
	c.ledger.Clear()
	c.notify(domain.EventCartCleared, "Keranjang dikosongkan")
}

func (c *Controller) Lines() []domain.CartLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.Lines()
}

// Totals recomputes the pricing breakdown for the current cart.
func (c *Controller) Totals() domain.PricingBreakdown {
	c.mu.Lock()
	defer c.mu.Unlock()
	return pricing.Compute(c.ledger.SubtotalCents(), c.rates)
}

// PayCash validates the tendered amount and, when accepted, finalizes after
// the drawer delay. The resulting transaction is persisted from the timer
// callback.
func (c *Controller) PayCash(ctx context.Context, tenderedCents int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	breakdown := pricing.Compute(c.ledger.SubtotalCents(), c.rates)
	if err := c.machine.BeginCash(breakdown, c.ledger.Len(), tenderedCents); err != nil {
		c.rejectPayment(err, breakdown, tenderedCents)
		return err
	}

	c.cashTimer = c.sched.AfterFunc(cashProcessingDelay, func() {
		c.completeCash(ctx)
	})
	return nil
}

func (c *Controller) completeCash(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cashTimer = nil
	if err := c.machine.CompleteCash(); err != nil {
		// Attempt was cancelled between scheduling and firing.
		return
	}
	if err := c.finalize(ctx); err != nil {
		log.Printf("[session] WARN: cash finalize failed: %v", err)
		c.notify(domain.EventPaymentRejected, "Transaksi gagal disimpan")
		c.machine.Reset()
	}
}

// PayQRIS issues a payment reference and arms the expiry countdown. The
// attempt finalizes on ConfirmQRIS or auto-cancels at the deadline.
func (c *Controller) PayQRIS(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	window := time.Duration(c.blob.QRISWindowSeconds) * time.Second
	breakdown := pricing.Compute(c.ledger.SubtotalCents(), c.rates)
	ref, err := c.machine.BeginQRIS(breakdown, c.ledger.Len(), c.sched.Now(), window)
	if err != nil {
		c.rejectPayment(err, breakdown, breakdown.TotalCents)
		return "", err
	}

	c.qrisTimer = c.sched.AfterFunc(window, func() {
		c.expireQRIS()
	})
	return ref, nil
}

func (c *Controller) expireQRIS() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.qrisTimer = nil
	if c.machine.Expire(c.sched.Now()) {
		c.notify(domain.EventQRISExpired, "Pembayaran QRIS kedaluwarsa")
	}
}

// ConfirmQRIS settles a pending QRIS attempt on acquirer confirmation.
func (c *Controller) ConfirmQRIS(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.machine.ConfirmExternal(); err != nil {
		return err
	}
	c.stopTimers()
	if err := c.finalize(ctx); err != nil {
		log.Printf("[session] WARN: qris finalize failed: %v", err)
		c.notify(domain.EventPaymentRejected, "Transaksi gagal disimpan")
		c.machine.Reset()
		return err
	}
	return nil
}

// QRISSecondsRemaining reports the countdown the UI renders next to the code.
func (c *Controller) QRISSecondsRemaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.SecondsRemaining(c.sched.Now())
}

// CancelPayment aborts any non-finalized attempt; the cart survives.
func (c *Controller) CancelPayment() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.machine.Cancel(); err != nil {
		return err
	}
	c.stopTimers()
	return nil
}

func (c *Controller) PaymentState() payment.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.State()
}

// LastReceipt returns the receipt document of the most recently finalized
// transaction.
func (c *Controller) LastReceipt() (receipt.Document, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastReceipt == nil {
		return receipt.Document{}, false
	}
	return *c.lastReceipt, true
}

// Products returns the current catalog snapshot.
func (c *Controller) Products() []domain.Product {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.Product, len(c.products))
	copy(out, c.products)
	return out
}

// Settings returns the merged settings blob the session runs with.
func (c *Controller) Settings() domain.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blob
}

// UpdateSettings persists a new blob and applies it to the running session.
func (c *Controller) UpdateSettings(ctx context.Context, blob domain.Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	blob = settings.Merge(blob)
	if err := c.settings.Save(ctx, blob); err != nil {
		return err
	}
	c.blob = blob
	c.rates = domain.PricingRates{
		DiscountPercent: blob.DiscountPercent,
		TaxRatePercent:  blob.TaxRatePercent,
	}
	return nil
}

// finalize persists the machine's result as a transaction, rebuilds the
// catalog snapshot with decremented stock, renders the receipt, and resets
// cart and machine for the next customer. Callers hold the mutex.
func (c *Controller) finalize(ctx context.Context) error {
	result, err := c.machine.Result()
	if err != nil {
		return err
	}

	lines := c.ledger.Lines()
	items := make([]domain.TransactionLine, 0, len(lines))
	for _, line := range lines {
		items = append(items, domain.TransactionLine{
			SKU:            line.SKU,
			Name:           line.Name,
			Qty:            line.Qty,
			UnitPriceCents: line.UnitPriceCents,
			SubtotalCents:  line.SubtotalCents,
		})
	}

	tx := domain.Transaction{
		ID:               xid.New("tx"),
		StoreID:          c.cfg.StoreID,
		TerminalID:       c.cfg.TerminalID,
		CashierUsername:  c.cfg.Cashier,
		PaymentMethod:    result.Method,
		PaymentReference: result.ReferenceID,
		SubtotalCents:    result.Breakdown.SubtotalCents,
		DiscountCents:    result.Breakdown.DiscountCents,
		TaxCents:         result.Breakdown.TaxCents,
		TotalCents:       result.Breakdown.TotalCents,
		CreatedAt:        c.sched.Now().UTC(),
		Items:            items,
	}
	if result.Method == domain.PaymentMethodCash {
		tx.CashReceivedCents = result.TenderedCents
		tx.ChangeCents = result.ChangeCents
	}

	saved, err := c.repo.RecordTransaction(ctx, tx)
	if err != nil {
		return err
	}

	doc := receipt.Build(*saved, c.blob.Receipt)
	c.lastReceipt = &doc

	c.ledger.Clear()
	c.machine.Reset()
	if err := c.refreshCatalog(ctx); err != nil {
		log.Printf("[session] WARN: catalog refresh failed: %v", err)
	}

	c.notify(domain.EventPaymentSuccess, fmt.Sprintf("Pembayaran %s berhasil: %d", saved.PaymentMethod, saved.TotalCents))
	return nil
}

func (c *Controller) rejectPayment(err error, breakdown domain.PricingBreakdown, tenderedCents int64) {
	switch {
	case errors.Is(err, payment.ErrEmptyCart):
		c.notify(domain.EventEmptyCart, "Keranjang kosong")
	case errors.Is(err, payment.ErrInsufficientTender):
		c.notify(domain.EventPaymentRejected, fmt.Sprintf("Uang kurang: %d dari %d", tenderedCents, breakdown.TotalCents))
	}
}

func (c *Controller) refreshCatalog(ctx context.Context) error {
	products, err := c.repo.ListProducts(ctx)
	if err != nil {
		return err
	}
	c.products = products
	return nil
}

func (c *Controller) stopTimers() {
	if c.cashTimer != nil {
		c.cashTimer.Stop()
		c.cashTimer = nil
	}
	if c.qrisTimer != nil {
		c.qrisTimer.Stop()
		c.qrisTimer = nil
	}
}

func (c *Controller) notify(code string, message string) {
	c.notifier.Notify(Event{Code: code, Message: message})
}
