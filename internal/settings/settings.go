package settings

import (
	"context"
	"sync"

	"smartpos/engine/internal/domain"
)

// Key is the single document under which the whole settings blob lives.
const Key = "app_settings_v1"

// Store persists the terminal settings blob. Implementations return the raw
// stored document; callers merge defaults via Merge.
type Store interface {
	Load(ctx context.Context) (domain.Settings, bool, error)
	Save(ctx context.Context, s domain.Settings) error
}

// Defaults returns the settings a fresh terminal runs with before anyone
// saves an override.
func Defaults() domain.Settings {
	return domain.Settings{
		Receipt: domain.ReceiptSettings{
			StoreName:    "SmartPOS",
			Footer:       "Terima kasih atas kunjungan Anda",
			PaperWidthMM: 58,
		},
		Scanner: domain.ScannerSettings{
			DeviceName:        "usb-hid",
			ManualModeDefault: false,
		},
		DiscountPercent:   0,
		TaxRatePercent:    0,
		QRISWindowSeconds: 300,
	}
}

// Merge fills the gaps in a stored blob with defaults. Saved zero rates are
// legitimate values and survive the merge; only structurally empty sections
// fall back.
func Merge(saved domain.Settings) domain.Settings {
	def := Defaults()
	if saved.Receipt.StoreName == "" {
		saved.Receipt.StoreName = def.Receipt.StoreName
	}
	if saved.Receipt.Footer == "" {
		saved.Receipt.Footer = def.Receipt.Footer
	}
	if saved.Receipt.PaperWidthMM == 0 {
		saved.Receipt.PaperWidthMM = def.Receipt.PaperWidthMM
	}
	if saved.Scanner.DeviceName == "" {
		saved.Scanner.DeviceName = def.Scanner.DeviceName
	}
	if saved.QRISWindowSeconds <= 0 {
		saved.QRISWindowSeconds = def.QRISWindowSeconds
	}
	if saved.DiscountPercent < 0 || saved.DiscountPercent > 100 {
		saved.DiscountPercent = def.DiscountPercent
	}
	if saved.TaxRatePercent < 0 || saved.TaxRatePercent > 100 {
		saved.TaxRatePercent = def.TaxRatePercent
	}
	return saved
}

// Memory keeps the blob in process, for tests and offline demo mode.
type Memory struct {
	mu    sync.RWMutex
	blob  domain.Settings
	saved bool
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load(_ context.Context) (domain.Settings, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.blob, m.saved, nil
}

func (m *Memory) Save(_ context.Context, s domain.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blob = s
	m.saved = true
	return nil
}
