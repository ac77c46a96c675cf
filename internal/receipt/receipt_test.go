package receipt

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"smartpos/engine/internal/domain"
)

func sampleTx(method string) domain.Transaction {
	return domain.Transaction{
		ID:                "tx-abc123",
		StoreID:           "main-store",
		TerminalID:        "kasir-1",
		CashierUsername:   "budi",
		PaymentMethod:     method,
		PaymentReference:  "qris-ref-1",
		SubtotalCents:     1100000,
		DiscountCents:     100000,
		TaxCents:          0,
		TotalCents:        1000000,
		CashReceivedCents: 1500000,
		ChangeCents:       500000,
		CreatedAt:         time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
		Items: []domain.TransactionLine{
			{SKU: "IDM001", Name: "Indomie Goreng", Qty: 2, UnitPriceCents: 350000, SubtotalCents: 700000},
			{SKU: "AQU001", Name: "Aqua 600ml", Qty: 1, UnitPriceCents: 400000, SubtotalCents: 400000},
		},
	}
}

func settings() domain.ReceiptSettings {
	return domain.ReceiptSettings{
		StoreName:    "Warung Bu Sri",
		Footer:       "Terima kasih",
		PaperWidthMM: 58,
	}
}

func TestBuildCashReceipt(t *testing.T) {
	doc := Build(sampleTx(domain.PaymentMethodCash), settings())

	if doc.TransactionID != "tx-abc123" {
		t.Fatalf("unexpected transaction id %s", doc.TransactionID)
	}
	for _, want := range []string{"Warung Bu Sri", "Indomie Goreng x2", "Diskon   : -100000", "Tunai    : 1500000", "Kembali  : 500000", "Terima kasih"} {
		if !strings.Contains(doc.PreviewText, want) {
			t.Fatalf("preview missing %q:\n%s", want, doc.PreviewText)
		}
	}
	if strings.Contains(doc.PreviewText, "QRIS") {
		t.Fatalf("cash receipt must not show a QRIS reference")
	}
}

func TestBuildQRISReceipt(t *testing.T) {
	doc := Build(sampleTx(domain.PaymentMethodQRIS), settings())

	if !strings.Contains(doc.PreviewText, "QRIS     : qris-ref-1") {
		t.Fatalf("qris receipt must carry the payment reference:\n%s", doc.PreviewText)
	}
	if strings.Contains(doc.PreviewText, "Kembali") {
		t.Fatalf("qris receipt must not show change")
	}
}

func TestEscposPayloadFraming(t *testing.T) {
	doc := Build(sampleTx(domain.PaymentMethodCash), settings())

	raw, err := base64.StdEncoding.DecodeString(doc.EscposBase64)
	if err != nil {
		t.Fatalf("decode escpos: %v", err)
	}
	if len(raw) < 6 || raw[0] != 0x1b || raw[1] != 0x40 {
		t.Fatalf("payload must start with ESC @ initialize")
	}
	tail := raw[len(raw)-4:]
	if tail[0] != 0x1d || tail[1] != 0x56 {
		t.Fatalf("payload must end with a cut command, got % x", tail)
	}
}

func TestZeroDiscountOmitted(t *testing.T) {
	tx := sampleTx(domain.PaymentMethodCash)
	tx.DiscountCents = 0
	doc := Build(tx, settings())
	if strings.Contains(doc.PreviewText, "Diskon") {
		t.Fatalf("zero discount must not print a discount row")
	}
}

func TestCenterCountsRunesNotBytes(t *testing.T) {
	// Same visible width, but the accented name is longer in bytes.
	plain := center("Warung Kenang", 32)
	accented := center("Warung Kénàng", 32)

	if utf8.RuneCountInString(plain) != utf8.RuneCountInString(accented) {
		t.Fatalf("centering drifted: %q vs %q", plain, accented)
	}
	if !strings.HasPrefix(accented, strings.Repeat(" ", 9)) {
		t.Fatalf("expected 9 leading spaces, got %q", accented)
	}
}

func TestDrawerKick(t *testing.T) {
	raw, err := base64.StdEncoding.DecodeString(DrawerKick())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(raw) != 5 || raw[0] != 0x1b || raw[1] != 0x70 {
		t.Fatalf("unexpected drawer kick command % x", raw)
	}
}
