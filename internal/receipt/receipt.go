package receipt

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"smartpos/engine/internal/domain"
)

// Document is a rendered receipt: a plain-text preview plus the raw ESC/POS
// payload a local printer bridge can send to a thermal printer.
type Document struct {
	TransactionID string `json:"transaction_id"`
	PreviewText   string `json:"preview_text"`
	EscposBase64  string `json:"escpos_base64"`
	FileName      string `json:"file_name"`
}

// Build renders the receipt for a finalized transaction using the terminal's
// receipt settings.
func Build(tx domain.Transaction, cfg domain.ReceiptSettings) Document {
	width := columns(cfg.PaperWidthMM)
	sep := strings.Repeat("=", width)
	rule := strings.Repeat("-", width)

	lines := []string{
		center(cfg.StoreName, width),
	}
	if cfg.StoreAddress != "" {
		lines = append(lines, center(cfg.StoreAddress, width))
	}
	if cfg.StorePhone != "" {
		lines = append(lines, center(cfg.StorePhone, width))
	}
	lines = append(lines,
		sep,
		"TX: "+tx.ID,
		"Kasir: "+tx.CashierUsername,
		"Terminal: "+tx.TerminalID,
		"Tanggal: "+tx.CreatedAt.Format("2006-01-02 15:04:05"),
		rule,
	)

	for _, item := range tx.Items {
		lines = append(lines, fmt.Sprintf("%s x%d", item.Name, item.Qty))
		lines = append(lines, fmt.Sprintf("  %d @ %d", item.SubtotalCents, item.UnitPriceCents))
	}

	lines = append(lines,
		rule,
		fmt.Sprintf("Subtotal : %d", tx.SubtotalCents),
	)
	if tx.DiscountCents > 0 {
		lines = append(lines, fmt.Sprintf("Diskon   : -%d", tx.DiscountCents))
	}
	if tx.TaxCents > 0 {
		lines = append(lines, fmt.Sprintf("Pajak    : %d", tx.TaxCents))
	}
	lines = append(lines, fmt.Sprintf("Total    : %d", tx.TotalCents))

	if tx.PaymentMethod == domain.PaymentMethodCash {
		lines = append(lines,
			fmt.Sprintf("Tunai    : %d", tx.CashReceivedCents),
			fmt.Sprintf("Kembali  : %d", tx.ChangeCents),
		)
	} else {
		lines = append(lines, "QRIS     : "+tx.PaymentReference)
	}

	lines = append(lines, sep)
	if cfg.Footer != "" {
		lines = append(lines, center(cfg.Footer, width))
	}
	lines = append(lines, "")

	return Document{
		TransactionID: tx.ID,
		PreviewText:   strings.Join(lines, "\n"),
		EscposBase64:  base64.StdEncoding.EncodeToString(escpos(lines)),
		FileName:      fmt.Sprintf("receipt-%s.bin", tx.ID),
	}
}

// escpos wraps the text lines in initialize and partial-cut commands.
func escpos(lines []string) []byte {
	payload := []byte{0x1b, 0x40}
	for _, line := range lines {
		payload = append(payload, []byte(line)...)
		payload = append(payload, '\n')
	}
	payload = append(payload, []byte{0x1d, 0x56, 0x41, 0x10}...)
	return payload
}

// DrawerKick returns the ESC/POS pulse command for drawer kick on pin2,
// base64-encoded for the printer bridge.
func DrawerKick() string {
	command := []byte{0x1b, 0x70, 0x00, 0x19, 0xfa}
	return base64.StdEncoding.EncodeToString(command)
}

// columns maps thermal paper width to a printable character count. 58mm
// paper fits 32 columns, 80mm fits 48.
func columns(paperWidthMM int) int {
	if paperWidthMM >= 80 {
		return 48
	}
	return 32
}

// center pads by rune count so multi-byte store names line up on the column
// grid.
func center(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	pad := (width - n) / 2
	return strings.Repeat(" ", pad) + s
}
