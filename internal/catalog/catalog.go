package catalog

import (
	"errors"
	"fmt"
	"strings"

	"smartpos/engine/internal/domain"
)

var ErrEmptyToken = errors.New("empty lookup token")

// NotFoundError carries the offending token so the caller can surface it in
// the scan feedback.
type NotFoundError struct {
	Token string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no product matches %q", e.Token)
}

// Resolve maps a scan or search token onto a product. Match precedence is
// exact barcode, then case-insensitive SKU, then barcode substring; the first
// hit in catalog order wins at each tier. Substring matching covers scanners
// that chop leading digits off long EAN codes.
func Resolve(token string, products []domain.Product) (domain.Product, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Product{}, ErrEmptyToken
	}

	for _, p := range products {
		if p.Barcode != "" && p.Barcode == token {
			return p, nil
		}
	}
	for _, p := range products {
		if strings.EqualFold(p.SKU, token) {
			return p, nil
		}
	}
	for _, p := range products {
		if p.Barcode != "" && strings.Contains(p.Barcode, token) {
			return p, nil
		}
	}
	return domain.Product{}, &NotFoundError{Token: token}
}
