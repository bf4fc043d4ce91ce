package report

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gudangku/backend/internal/cache"
	"gudangku/backend/internal/domain"
)

type Engine struct {
	cache              cache.ReportCache
	cacheTTL           time.Duration
	defaultOutlookDays int
}

func NewEngine(cacheStore cache.ReportCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopReportCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 20 * time.Second
	}

	return &Engine{
		cache:              cacheStore,
		cacheTTL:           cacheTTL,
		defaultOutlookDays: 7,
	}
}

// Revenue prices the sales ledger per product and lists the non-expired
// stock that runs out of shelf life within the outlook window. Results
// are cached against the ledger contents, so a repeated call between
// sales comes back from the cache.
func (e *Engine) Revenue(
	ctx context.Context,
	today time.Time,
	sales []domain.SoldEntry,
	inventory []domain.InventoryLot,
	outlookDays int,
) domain.RevenueReport {
	startedAt := time.Now()
	if outlookDays < 1 {
		outlookDays = e.defaultOutlookDays
	}

	cacheKey := buildCacheKey(today, sales, inventory, outlookDays)
	if cached, ok, err := e.cache.Get(ctx, cacheKey); err == nil && ok {
		cached.FromCache = true
		cached.LatencyMillis = time.Since(startedAt).Milliseconds()
		return *cached
	}

	lines := make([]domain.RevenueLine, 0, len(sales))
	total := decimal.Zero
	for _, entry := range sales {
		revenue := entry.SellPrice.Mul(decimal.NewFromInt(int64(entry.SellAmount)))
		total = total.Add(revenue)
		lines = append(lines, domain.RevenueLine{
			ProductName: entry.ProductName,
			UnitsSold:   entry.SellAmount,
			SellPrice:   entry.SellPrice,
			Revenue:     revenue,
		})
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].Revenue.Equal(lines[j].Revenue) {
			return lines[i].ProductName < lines[j].ProductName
		}
		return lines[i].Revenue.GreaterThan(lines[j].Revenue)
	})

	horizon := domain.DateOf(today).AddDate(0, 0, outlookDays)
	expiring := make([]domain.ExpiryOutlookLine, 0)
	for _, lot := range inventory {
		if lot.IsExpired || lot.Amount < 1 {
			continue
		}
		if domain.DateOf(lot.ExpireDate).After(horizon) {
			continue
		}
		expiring = append(expiring, domain.ExpiryOutlookLine{
			ProductName: lot.ProductName,
			ExpireDate:  domain.FormatDate(lot.ExpireDate),
			Amount:      lot.Amount,
		})
	}
	sort.Slice(expiring, func(i, j int) bool {
		if expiring[i].ExpireDate == expiring[j].ExpireDate {
			return expiring[i].ProductName < expiring[j].ProductName
		}
		return expiring[i].ExpireDate < expiring[j].ExpireDate
	})

	result := domain.RevenueReport{
		Date:         domain.FormatDate(today),
		TotalRevenue: total,
		Lines:        lines,
		ExpiringSoon: expiring,
		OutlookDays:  outlookDays,
		GeneratedAt:  time.Now().UTC().Format(time.RFC3339),
	}

	result.LatencyMillis = time.Since(startedAt).Milliseconds()
	_ = e.cache.Set(ctx, cacheKey, &result, e.cacheTTL)
	return result
}

func buildCacheKey(today time.Time, sales []domain.SoldEntry, inventory []domain.InventoryLot, outlookDays int) string {
	parts := make([]string, 0, len(sales)+len(inventory)+2)
	parts = append(parts, domain.FormatDate(today), fmt.Sprintf("o:%d", outlookDays))
	for _, entry := range sales {
		parts = append(parts, fmt.Sprintf("s:%d:%d:%s", entry.SellID, entry.SellAmount, entry.SellPrice.String()))
	}
	for _, lot := range inventory {
		parts = append(parts, fmt.Sprintf("i:%d:%d:%s", lot.InventoryID, lot.Amount, domain.FormatDate(lot.ExpireDate)))
	}

	hash := sha1.Sum([]byte(strings.Join(parts, "|")))
	return "gudangku:revenue:" + hex.EncodeToString(hash[:])
}
