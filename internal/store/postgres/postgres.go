package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"smartpos/engine/internal/domain"
	"smartpos/engine/internal/store"
	"smartpos/engine/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, category, COALESCE(barcode, ''), price_cents, stock, active
		FROM products
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.Barcode, &p.PriceCents, &p.Stock, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	return s.getProduct(ctx, `id = $1`, id)
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	return s.getProduct(ctx, `upper(sku) = upper($1)`, sku)
}

func (s *Store) getProduct(ctx context.Context, where string, arg any) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sku, name, category, COALESCE(barcode, ''), price_cents, stock, active
		FROM products
		WHERE `+where, arg).Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.Barcode, &p.PriceCents, &p.Stock, &p.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || product.PriceCents < 1 || product.Stock < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}

	product.Active = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, category, barcode, price_cents, stock, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,$7,$8,now(),now())
	`, product.ID, product.SKU, product.Name, product.Category, product.Barcode, product.PriceCents, product.Stock, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.SKU == "" || product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET sku = $2, name = $3, category = $4, barcode = NULLIF($5,''), price_cents = $6, stock = $7, active = $8, updated_at = now()
		WHERE id = $1
	`, product.ID, product.SKU, product.Name, product.Category, product.Barcode, product.PriceCents, product.Stock, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) SetStock(ctx context.Context, productID string, qty int) error {
	if productID == "" || qty < 0 {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET stock = $2, updated_at = now() WHERE id = $1
	`, productID, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// RecordTransaction persists the sale and decrements stock in one
// serializable transaction. Rows are locked FOR UPDATE so two terminals
// finalizing the same product cannot oversell.
func (s *Store) RecordTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if len(tx.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if tx.PaymentMethod != domain.PaymentMethodCash && tx.PaymentMethod != domain.PaymentMethodQRIS {
		return nil, store.ErrInvalidTransaction
	}
	if tx.TotalCents < 0 || tx.DiscountCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	dbTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = dbTx.Rollback() }()

	for _, item := range tx.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidTransaction
		}
		var stock int
		err := dbTx.QueryRowContext(ctx, `
			SELECT stock FROM products WHERE upper(sku) = upper($1) AND active = true FOR UPDATE
		`, item.SKU).Scan(&stock)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		if stock < item.Qty {
			return nil, store.ErrInsufficientStock
		}
		_, err = dbTx.ExecContext(ctx, `
			UPDATE products SET stock = stock - $2, updated_at = now() WHERE upper(sku) = upper($1)
		`, item.SKU, item.Qty)
		if err != nil {
			return nil, err
		}
	}

	items, err := json.Marshal(tx.Items)
	if err != nil {
		return nil, err
	}

	_, err = dbTx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, store_id, terminal_id, cashier_username, payment_method, payment_reference,
			subtotal_cents, discount_cents, tax_cents, total_cents,
			cash_received_cents, change_cents, items, created_at
		)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7,$8,$9,$10,$11,$12,$13,$14)
	`, tx.ID, tx.StoreID, tx.TerminalID, tx.CashierUsername, tx.PaymentMethod, tx.PaymentReference,
		tx.SubtotalCents, tx.DiscountCents, tx.TaxCents, tx.TotalCents,
		tx.CashReceivedCents, tx.ChangeCents, items, tx.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}

	if err := dbTx.Commit(); err != nil {
		return nil, err
	}
	saved := tx
	return &saved, nil
}

func (s *Store) GetTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, terminal_id, cashier_username, payment_method, COALESCE(payment_reference, ''),
			subtotal_cents, discount_cents, tax_cents, total_cents,
			cash_received_cents, change_cents, items, created_at
		FROM transactions
		WHERE id = $1
	`, id)

	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, storeID string, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, terminal_id, cashier_username, payment_method, COALESCE(payment_reference, ''),
			subtotal_cents, discount_cents, tax_cents, total_cents,
			cash_received_cents, change_cents, items, created_at
		FROM transactions
		WHERE ($1 = '' OR store_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, storeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Transaction, 0, limit)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES (lower($1),$2,$3,true,$4)
	`, user.Username, user.Password, user.Role, user.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrInvalidTransaction
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	if username == "" || password == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = lower($1)
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var items []byte
	err := row.Scan(&tx.ID, &tx.StoreID, &tx.TerminalID, &tx.CashierUsername, &tx.PaymentMethod, &tx.PaymentReference,
		&tx.SubtotalCents, &tx.DiscountCents, &tx.TaxCents, &tx.TotalCents,
		&tx.CashReceivedCents, &tx.ChangeCents, &items, &tx.CreatedAt)
	if err != nil {
		return nil, err
	}
	tx.CreatedAt = tx.CreatedAt.UTC()
	if len(items) > 0 {
		if err := json.Unmarshal(items, &tx.Items); err != nil {
			return nil, err
		}
	}
	return &tx, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
