package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"smartpos/engine/internal/auth"
	"smartpos/engine/internal/clock"
	"smartpos/engine/internal/config"
	"smartpos/engine/internal/domain"
	"smartpos/engine/internal/popular"
	"smartpos/engine/internal/session"
	"smartpos/engine/internal/settings"
	"smartpos/engine/internal/store"
	"smartpos/engine/internal/store/memory"
	pgstore "smartpos/engine/internal/store/postgres"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("loaded .env")
	}
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	settingsStore := settings.Store(settings.NewMemory())
	popularCache := popular.Cache(popular.NoopCache{})
	if cfg.RedisAddr != "" {
		redisSettings := settings.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisSettings.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), settings kept in memory", err)
		} else {
			settingsStore = redisSettings
			popularCache = popular.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
			closers = append(closers, redisSettings.Close)
			log.Println("settings and popular cache: redis")
		}
	} else {
		log.Println("settings: in-memory, popular cache: noop")
	}
	if err := seedSettings(ctx, settingsStore, cfg); err != nil {
		log.Printf("settings seed failed: %v", err)
	}

	authManager := auth.NewManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	popularEngine := popular.NewEngine(popularCache, time.Duration(cfg.PopularTTLSeconds)*time.Second)

	in := bufio.NewScanner(os.Stdin)
	actor, err := login(in, authManager)
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}
	fmt.Printf("signed in as %s (%s)\n", actor.Username, actor.Role)

	ctrl, err := session.New(context.Background(), session.Config{
		StoreID:    cfg.StoreID,
		TerminalID: cfg.TerminalID,
		Cashier:    actor.Username,
	}, repo, settingsStore, clock.System{}, consoleNotifier{})
	if err != nil {
		log.Fatalf("session start failed: %v", err)
	}

	fmt.Println("type 'help' for commands")
	repl(in, ctrl, repo, popularEngine, cfg.StoreID)

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}
}

type consoleNotifier struct{}

func (consoleNotifier) Notify(evt session.Event) {
	fmt.Printf("  [%s] %s\n", evt.Code, evt.Message)
}

func login(in *bufio.Scanner, m *auth.Manager) (domain.Actor, error) {
	for attempt := 0; attempt < 3; attempt++ {
		fmt.Print("username: ")
		if !in.Scan() {
			return domain.Actor{}, fmt.Errorf("input closed")
		}
		username := strings.TrimSpace(in.Text())
		fmt.Print("password: ")
		if !in.Scan() {
			return domain.Actor{}, fmt.Errorf("input closed")
		}
		password := in.Text()

		resp, err := m.Login(domain.LoginRequest{Username: username, Password: password})
		if err != nil {
			fmt.Printf("login rejected: %v\n", err)
			continue
		}
		return m.ParseToken(resp.AccessToken)
	}
	return domain.Actor{}, fmt.Errorf("too many attempts")
}

func repl(in *bufio.Scanner, ctrl *session.Controller, repo store.Repository, popularEngine *popular.Engine, storeID string) {
	ctx := context.Background()

	for {
		fmt.Print("> ")
		if !in.Scan() {
			return
		}
		fields := strings.Fields(in.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]

		switch cmd {
		case "help":
			printHelp()
		case "scan":
			if len(args) != 1 {
				fmt.Println("usage: scan <barcode-or-sku>")
				continue
			}
			if _, err := ctrl.Scan(ctx, args[0]); err != nil {
				fmt.Printf("scan failed: %v\n", err)
			}
		case "type":
			// Simulates a hardware scanner burst keystroke by keystroke.
			if len(args) != 1 {
				fmt.Println("usage: type <chars>")
				continue
			}
			for _, ch := range args[0] {
				ctrl.HandleKey(ch, false)
			}
			if _, err := ctrl.HandleEnter(ctx); err != nil {
				fmt.Printf("scan failed: %v\n", err)
			}
		case "pick":
			if len(args) != 1 {
				fmt.Println("usage: pick <product-id>")
				continue
			}
			if _, err := ctrl.AddProductID(args[0]); err != nil {
				fmt.Printf("pick failed: %v\n", err)
			}
		case "lines":
			for _, line := range ctrl.Lines() {
				fmt.Printf("  %s  %s x%d  %d\n", line.ID, line.Name, line.Qty, line.SubtotalCents)
			}
		case "qty":
			if len(args) != 2 {
				fmt.Println("usage: qty <line-id> <qty>")
				continue
			}
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				fmt.Println("qty must be a number")
				continue
			}
			if _, err := ctrl.SetQuantity(args[0], qty); err != nil {
				fmt.Printf("update failed: %v\n", err)
			}
		case "rm":
			if len(args) != 1 {
				fmt.Println("usage: rm <line-id>")
				continue
			}
			ctrl.RemoveLine(args[0])
		case "clear":
			ctrl.ClearCart()
		case "totals":
			b := ctrl.Totals()
			fmt.Printf("  subtotal %d  discount %d  tax %d  total %d\n", b.SubtotalCents, b.DiscountCents, b.TaxCents, b.TotalCents)
		case "cash":
			if len(args) != 1 {
				fmt.Println("usage: cash <amount>")
				continue
			}
			amount, err := parseAmountCents(args[0])
			if err != nil {
				fmt.Printf("bad amount: %v\n", err)
				continue
			}
			if err := ctrl.PayCash(ctx, amount); err != nil {
				fmt.Printf("payment rejected: %v\n", err)
				continue
			}
			fmt.Println("processing cash payment...")
		case "qris":
			ref, err := ctrl.PayQRIS(ctx)
			if err != nil {
				fmt.Printf("payment rejected: %v\n", err)
				continue
			}
			fmt.Printf("QRIS reference: %s (%ds to pay)\n", ref, ctrl.QRISSecondsRemaining())
		case "confirm":
			if err := ctrl.ConfirmQRIS(ctx); err != nil {
				fmt.Printf("confirm failed: %v\n", err)
			}
		case "cancel":
			if err := ctrl.CancelPayment(); err != nil {
				fmt.Printf("cancel failed: %v\n", err)
			}
		case "receipt":
			doc, ok := ctrl.LastReceipt()
			if !ok {
				fmt.Println("no finalized transaction yet")
				continue
			}
			fmt.Println(doc.PreviewText)
		case "popular":
			resp := popularEngine.Rank(ctx, storeID, ctrl.Products(), recentTransactions(ctx, repo, storeID), 8)
			for _, p := range resp.Products {
				fmt.Printf("  #%d %s (%s) sold %d\n", p.SalesRank, p.Product.Name, p.Product.SKU, p.SoldQty)
			}
		case "history":
			for _, tx := range recentTransactions(ctx, repo, storeID) {
				fmt.Printf("  %s %s %s total %d\n", tx.CreatedAt.Format(time.RFC3339), tx.ID, tx.PaymentMethod, tx.TotalCents)
			}
		case "quit", "exit":
			return
		default:
			fmt.Printf("unknown command %q, try 'help'\n", cmd)
		}
	}
}

// seedSettings writes the env-configured rates and QRIS window as the initial
// settings blob. A blob saved by a previous run wins; env values only apply to
// a fresh store.
func seedSettings(ctx context.Context, settingsStore settings.Store, cfg config.Config) error {
	_, saved, err := settingsStore.Load(ctx)
	if err != nil || saved {
		return err
	}
	blob := settings.Defaults()
	blob.DiscountPercent = cfg.DiscountPercent
	blob.TaxRatePercent = cfg.TaxRatePercent
	if cfg.QRISWindowSeconds > 0 {
		blob.QRISWindowSeconds = cfg.QRISWindowSeconds
	}
	return settingsStore.Save(ctx, blob)
}

func recentTransactions(ctx context.Context, repo store.Repository, storeID string) []domain.Transaction {
	txs, err := repo.ListTransactions(ctx, storeID, 50)
	if err != nil {
		log.Printf("[possim] WARN: list transactions failed: %v", err)
		return nil
	}
	return txs
}

// parseAmountCents converts an operator-typed rupiah amount ("15000" or
// "15000.50") to cents.
func parseAmountCents(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	whole, frac, hasFrac := strings.Cut(s, ".")
	amount, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || amount < 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	cents := amount * 100
	if hasFrac {
		if len(frac) > 2 {
			frac = frac[:2]
		}
		for len(frac) < 2 {
			frac += "0"
		}
		f, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
		cents += f
	}
	return cents, nil
}

func printHelp() {
	fmt.Println(`commands:
  scan <token>      resolve a barcode or SKU into the cart
  type <chars>      simulate a scanner keystroke burst
  pick <id>         add a product from the quick-pick grid
  lines             show cart lines
  qty <id> <n>      change a line quantity (0 removes)
  rm <id>           remove a line
  clear             empty the cart
  totals            show the pricing breakdown
  cash <amount>     pay cash
  qris              start a QRIS payment
  confirm           confirm the pending QRIS payment
  cancel            cancel the pending payment
  receipt           reprint the last receipt
  popular           show the quick-pick ranking
  history           show recent transactions
  quit              exit`)
}
