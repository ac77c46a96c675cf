package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"smartpos/engine/internal/clock"
	"smartpos/engine/internal/domain"
	"smartpos/engine/internal/payment"
	"smartpos/engine/internal/settings"
	"smartpos/engine/internal/store/memory"
)

type recorder struct {
	events []Event
}

func (r *recorder) Notify(evt Event) {
	r.events = append(r.events, evt)
}

func (r *recorder) has(code string) bool {
	for _, evt := range r.events {
		if evt.Code == code {
			return true
		}
	}
	return false
}

func newController(t *testing.T) (*Controller, *memory.Store, *clock.Manual, *recorder) {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "x")
	t.Setenv("SEED_CASHIER_PASSWORD", "x")

	repo := memory.NewSeeded()
	sched := clock.NewManual(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	rec := &recorder{}

	c, err := New(context.Background(), Config{
		StoreID:    "main-store",
		TerminalID: "kasir-1",
		Cashier:    "budi",
	}, repo, settings.NewMemory(), sched, rec)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	return c, repo, sched, rec
}

func feedScan(c *Controller, sched *clock.Manual, token string) {
	for _, ch := range token {
		c.HandleKey(ch, false)
		sched.Advance(20 * time.Millisecond)
	}
}

func TestScanRoundTrip(t *testing.T) {
	c, _, sched, rec := newController(t)

	feedScan(c, sched, "8992388123456")
	line, err := c.HandleEnter(context.Background())
	if err != nil {
		t.Fatalf("handle enter: %v", err)
	}
	if line.SKU != "IDM001" || line.Qty != 1 {
		t.Fatalf("unexpected line: %+v", line)
	}
	if !rec.has(domain.EventItemAdded) {
		t.Fatalf("expected item-added notification")
	}

	totals := c.Totals()
	if totals.TotalCents != 350000 {
		t.Fatalf("expected total 350000, got %d", totals.TotalCents)
	}
}

func TestScanUnknownToken(t *testing.T) {
	c, _, sched, rec := newController(t)

	feedScan(c, sched, "0000000000999")
	if _, err := c.HandleEnter(context.Background()); err == nil {
		t.Fatalf("expected lookup failure")
	}
	if !rec.has(domain.EventScanNotFound) {
		t.Fatalf("expected scan-not-found notification")
	}
	if len(c.Lines()) != 0 {
		t.Fatalf("failed scan must not touch the cart")
	}
}

func TestManualSearchBySKU(t *testing.T) {
	c, _, _, _ := newController(t)

	line, err := c.Scan(context.Background(), "aqu001")
	if err != nil {
		t.Fatalf("manual search: %v", err)
	}
	if line.Name != "Aqua 600ml" {
		t.Fatalf("unexpected product: %s", line.Name)
	}
}

func TestAddProductIDFromGrid(t *testing.T) {
	c, _, _, _ := newController(t)

	line, err := c.AddProductID("prd-tbs001")
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if line.SKU != "TBS001" {
		t.Fatalf("unexpected line: %+v", line)
	}
	if _, err := c.AddProductID("prd-ghost"); err == nil {
		t.Fatalf("expected not-found for unknown product id")
	}
}

func TestCashPaymentFinalizesAfterDelay(t *testing.T) {
	c, repo, sched, rec := newController(t)
	ctx := context.Background()

	c.Scan(ctx, "IDM001")
	c.Scan(ctx, "IDM001")

	if err := c.PayCash(ctx, 1000000); err != nil {
		t.Fatalf("pay cash: %v", err)
	}
	if c.PaymentState() != payment.StateValidating {
		t.Fatalf("expected validating during drawer delay, got %s", c.PaymentState())
	}

	sched.Advance(2 * time.Second)

	if c.PaymentState() != payment.StateIdle {
		t.Fatalf("expected idle after finalize, got %s", c.PaymentState())
	}
	if len(c.Lines()) != 0 {
		t.Fatalf("cart must clear after a finalized sale")
	}
	if !rec.has(domain.EventPaymentSuccess) {
		t.Fatalf("expected payment-success notification")
	}

	// Stock decremented and transaction persisted.
	p, _ := repo.GetProductBySKU(ctx, "IDM001")
	if p.Stock != 118 {
		t.Fatalf("expected stock 118 after selling 2, got %d", p.Stock)
	}
	txs, _ := repo.ListTransactions(ctx, "main-store", 10)
	if len(txs) != 1 {
		t.Fatalf("expected 1 persisted transaction, got %d", len(txs))
	}
	if txs[0].CashierUsername != "budi" || txs[0].ChangeCents != 300000 {
		t.Fatalf("unexpected transaction: %+v", txs[0])
	}

	doc, ok := c.LastReceipt()
	if !ok {
		t.Fatalf("expected a receipt after finalize")
	}
	if !strings.Contains(doc.PreviewText, "Kembali  : 300000") {
		t.Fatalf("receipt missing change line:\n%s", doc.PreviewText)
	}
}

func TestCashInsufficientTender(t *testing.T) {
	c, _, _, rec := newController(t)
	ctx := context.Background()

	c.Scan(ctx, "BRS001") // 6500000

	err := c.PayCash(ctx, 5000000)
	if !errors.Is(err, payment.ErrInsufficientTender) {
		t.Fatalf("expected ErrInsufficientTender, got %v", err)
	}
	if !rec.has(domain.EventPaymentRejected) {
		t.Fatalf("expected payment-rejected notification")
	}
	if len(c.Lines()) != 1 {
		t.Fatalf("rejected payment must keep the cart")
	}

	// Corrected amount succeeds.
	if err := c.PayCash(ctx, 7000000); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestPayWithEmptyCart(t *testing.T) {
	c, _, _, rec := newController(t)

	if err := c.PayCash(context.Background(), 100000); !errors.Is(err, payment.ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
	if _, err := c.PayQRIS(context.Background()); !errors.Is(err, payment.ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart for qris, got %v", err)
	}
	if !rec.has(domain.EventEmptyCart) {
		t.Fatalf("expected empty-cart notification")
	}
}

func TestQRISConfirmFinalizes(t *testing.T) {
	c, repo, sched, rec := newController(t)
	ctx := context.Background()

	c.Scan(ctx, "TBS001")

	ref, err := c.PayQRIS(ctx)
	if err != nil {
		t.Fatalf("pay qris: %v", err)
	}
	if ref == "" {
		t.Fatalf("expected payment reference")
	}

	sched.Advance(30 * time.Second)
	if got := c.QRISSecondsRemaining(); got != 270 {
		t.Fatalf("expected 270s remaining, got %d", got)
	}

	if err := c.ConfirmQRIS(ctx); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !rec.has(domain.EventPaymentSuccess) {
		t.Fatalf("expected payment-success notification")
	}

	txs, _ := repo.ListTransactions(ctx, "main-store", 10)
	if len(txs) != 1 || txs[0].PaymentReference != ref {
		t.Fatalf("expected persisted qris transaction with reference %s", ref)
	}

	// The armed expiry timer must not fire after confirmation.
	sched.Advance(10 * time.Minute)
	if rec.has(domain.EventQRISExpired) {
		t.Fatalf("expiry fired after successful confirmation")
	}
}

func TestQRISExpiresAndCartSurvives(t *testing.T) {
	c, repo, sched, rec := newController(t)
	ctx := context.Background()

	c.Scan(ctx, "CHT001")
	if _, err := c.PayQRIS(ctx); err != nil {
		t.Fatalf("pay qris: %v", err)
	}

	sched.Advance(5 * time.Minute)

	if !rec.has(domain.EventQRISExpired) {
		t.Fatalf("expected qris-expired notification")
	}
	if c.PaymentState() != payment.StateIdle {
		t.Fatalf("expected idle after expiry, got %s", c.PaymentState())
	}
	if len(c.Lines()) != 1 {
		t.Fatalf("expired payment must keep the cart")
	}
	if txs, _ := repo.ListTransactions(ctx, "main-store", 10); len(txs) != 0 {
		t.Fatalf("expired attempt must not persist a transaction")
	}

	// The same cart can retry with cash.
	if err := c.PayCash(ctx, 850000); err != nil {
		t.Fatalf("cash retry after expiry: %v", err)
	}
	sched.Advance(2 * time.Second)
	if txs, _ := repo.ListTransactions(ctx, "main-store", 10); len(txs) != 1 {
		t.Fatalf("expected retry to persist")
	}
}

func TestCancelPaymentKeepsCart(t *testing.T) {
	c, _, sched, _ := newController(t)
	ctx := context.Background()

	c.Scan(ctx, "AQU001")
	if _, err := c.PayQRIS(ctx); err != nil {
		t.Fatalf("pay qris: %v", err)
	}
	if err := c.CancelPayment(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if c.PaymentState() != payment.StateIdle {
		t.Fatalf("expected idle after cancel")
	}
	if len(c.Lines()) != 1 {
		t.Fatalf("cancel must keep the cart")
	}

	// The stopped expiry timer stays quiet.
	sched.Advance(10 * time.Minute)
	if c.PaymentState() != payment.StateIdle {
		t.Fatalf("stopped timer must not disturb state")
	}
}

func TestClearCartNotifies(t *testing.T) {
	c, _, _, rec := newController(t)
	ctx := context.Background()

	c.Scan(ctx, "IDM001")
	c.ClearCart()

	if len(c.Lines()) != 0 {
		t.Fatalf("expected empty cart")
	}
	if !rec.has(domain.EventCartCleared) {
		t.Fatalf("expected cart-cleared notification")
	}
}

func TestSettingsRatesApplyToTotals(t *testing.T) {
	c, _, _, _ := newController(t)
	ctx := context.Background()

	blob := c.Settings()
	blob.DiscountPercent = 10
	if err := c.UpdateSettings(ctx, blob); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	c.Scan(ctx, "IDM001") // 350000
	totals := c.Totals()
	if totals.DiscountCents != 35000 || totals.TotalCents != 315000 {
		t.Fatalf("expected 10%% discount applied, got %+v", totals)
	}
}

func TestSnapshotReflectsSoldOutAfterSale(t *testing.T) {
	c, repo, sched, rec := newController(t)
	ctx := context.Background()

	// Drain the product to zero stock via the repository, then sell the
	// remaining unit through the session.
	p, _ := repo.GetProductBySKU(ctx, "CHT001")
	if err := repo.SetStock(ctx, p.ID, 1); err != nil {
		t.Fatalf("set stock: %v", err)
	}
	if _, err := c.Scan(ctx, "CHT001"); err == nil {
		// Snapshot still shows old stock; the add is fine. Pay it out.
	}
	if err := c.PayCash(ctx, 850000); err != nil {
		t.Fatalf("pay: %v", err)
	}
	sched.Advance(2 * time.Second)

	// After finalize the snapshot is refreshed; the product is now sold out.
	if _, err := c.Scan(ctx, "CHT001"); err == nil {
		t.Fatalf("expected out-of-stock on refreshed snapshot")
	}
	if !rec.has(domain.EventOutOfStock) {
		t.Fatalf("expected out-of-stock notification")
	}
}
