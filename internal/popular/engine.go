package popular

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"smartpos/engine/internal/domain"
)

const defaultLimit = 8

// Engine ranks products by recent sales volume for the quick-pick grid.
// Results are cached per store; the fallback for a store with no history is
// plain catalog order.
type Engine struct {
	cache    Cache
	cacheTTL time.Duration
}

func NewEngine(cacheStore Cache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = NoopCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

func (e *Engine) Rank(
	ctx context.Context,
	storeID string,
	products []domain.Product,
	transactions []domain.Transaction,
	limit int,
) domain.PopularResponse {
	if limit < 1 {
		limit = defaultLimit
	}

	cacheKey := buildCacheKey(storeID, limit)
	if cached, ok, err := e.cache.Get(ctx, cacheKey); err == nil && ok {
		return *cached
	}

	soldBySKU := make(map[string]int)
	for _, tx := range transactions {
		if storeID != "" && tx.StoreID != storeID {
			continue
		}
		for _, item := range tx.Items {
			soldBySKU[strings.ToUpper(item.SKU)] += item.Qty
		}
	}

	ranked := make([]domain.PopularProduct, 0, len(products))
	for _, p := range products {
		if !p.Active || p.Stock <= 0 {
			continue
		}
		ranked = append(ranked, domain.PopularProduct{
			Product: p,
			SoldQty: soldBySKU[strings.ToUpper(p.SKU)],
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].SoldQty == ranked[j].SoldQty {
			return ranked[i].Product.Name < ranked[j].Product.Name
		}
		return ranked[i].SoldQty > ranked[j].SoldQty
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	for i := range ranked {
		ranked[i].SalesRank = i + 1
	}

	resp := domain.PopularResponse{
		StoreID:     storeID,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Products:    ranked,
	}
	_ = e.cache.Set(ctx, cacheKey, &resp, e.cacheTTL)
	return resp
}

func buildCacheKey(storeID string, limit int) string {
	return fmt.Sprintf("pos:popular:%s:%d", storeID, limit)
}
