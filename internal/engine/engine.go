// Package engine holds the pure ledger arithmetic: expiry
// classification, inventory reconciliation, sales replay and the
// all-or-nothing sale allocator. Nothing here touches storage; callers
// pass snapshots in and persist the results.
package engine

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gudangku/backend/internal/domain"
)

var (
	ErrOutOfStock        = errors.New("out of stock")
	ErrAllStockExpired   = errors.New("all stock expired")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// SaleError reports why a sale was rejected. Kind is one of the
// sentinel errors above, so errors.Is works on the wrapped value.
type SaleError struct {
	Kind              error
	Product           string
	Requested         int
	QuantityAvailable int
	QuantityExpired   int
}

func (e *SaleError) Error() string {
	switch e.Kind {
	case ErrAllStockExpired:
		return fmt.Sprintf("%s: %v (%d units expired)", e.Product, e.Kind, e.QuantityExpired)
	case ErrInsufficientStock:
		return fmt.Sprintf("%s: %v (requested %d, available %d)", e.Product, e.Kind, e.Requested, e.QuantityAvailable)
	default:
		return fmt.Sprintf("%s: %v", e.Product, e.Kind)
	}
}

func (e *SaleError) Unwrap() error { return e.Kind }

// Purchasable reports whether a lot with the given expire date may still
// be bought or sold on refDate. The boundary is inclusive: a lot that
// expires today is still good today.
func Purchasable(expireDate time.Time, refDate time.Time) bool {
	return !domain.DateOf(refDate).After(domain.DateOf(expireDate))
}

// RefreshExpiry returns a copy of lots with IsExpired recomputed against
// refDate. A lot is expired only when its expire date is strictly before
// refDate.
func RefreshExpiry(lots []domain.InventoryLot, refDate time.Time) []domain.InventoryLot {
	ref := domain.DateOf(refDate)
	out := slices.Clone(lots)
	for i := range out {
		out[i].IsExpired = domain.DateOf(out[i].ExpireDate).Before(ref)
	}
	return out
}

// ExpiredLots returns the lots flagged expired.
func ExpiredLots(lots []domain.InventoryLot) []domain.InventoryLot {
	out := make([]domain.InventoryLot, 0)
	for _, lot := range lots {
		if lot.IsExpired {
			out = append(out, lot)
		}
	}
	return out
}

// Reconcile rebuilds the inventory snapshot from the current snapshot
// plus the full purchase ledger. Purchase rows are appended after the
// existing inventory rows, then rows are deduplicated by product name
// and expire date keeping the last occurrence (so the purchase ledger,
// the source of truth, wins). Rows keep first-occurrence order; rows
// with a non-positive amount are dropped; expiry flags are refreshed
// against refDate.
//
// Callers must replay the sales ledger over the result (ReplaySales)
// before persisting, so each reconciliation re-derives
// inventory = purchases - sales.
func Reconcile(inventory []domain.InventoryLot, purchases []domain.PurchaseLot, refDate time.Time) []domain.InventoryLot {
	combined := make([]domain.InventoryLot, 0, len(inventory)+len(purchases))
	combined = append(combined, inventory...)
	for _, p := range purchases {
		combined = append(combined, domain.InventoryLot{
			InventoryID: p.BuyID,
			BuyDate:     p.BuyDate,
			ProductName: p.ProductName,
			Amount:      p.Amount,
			UnitPrice:   p.UnitPrice,
			ExpireDate:  p.ExpireDate,
		})
	}

	type lotKey struct {
		name   string
		expire string
	}

	position := make(map[lotKey]int, len(combined))
	deduped := make([]domain.InventoryLot, 0, len(combined))
	for _, lot := range combined {
		key := lotKey{name: lot.ProductName, expire: domain.FormatDate(lot.ExpireDate)}
		if idx, seen := position[key]; seen {
			deduped[idx] = lot
			continue
		}
		position[key] = len(deduped)
		deduped = append(deduped, lot)
	}

	result := deduped[:0]
	for _, lot := range deduped {
		if lot.Amount <= 0 {
			continue
		}
		result = append(result, lot)
	}
	return RefreshExpiry(result, refDate)
}

// ReplaySales deducts the full sales ledger from a reconciled inventory
// snapshot. Each sold entry walks the matching non-expired lots in row
// order, draining lots until the entry's amount is covered. Demand the
// remaining stock cannot cover is dropped; amounts never go negative.
func ReplaySales(inventory []domain.InventoryLot, ledger []domain.SoldEntry) []domain.InventoryLot {
	out := slices.Clone(inventory)
	for _, sold := range ledger {
		remaining := sold.SellAmount
		name := strings.TrimSpace(sold.ProductName)
		for i := range out {
			if remaining < 1 {
				break
			}
			if out[i].IsExpired || strings.TrimSpace(out[i].ProductName) != name {
				continue
			}
			if out[i].Amount >= remaining {
				out[i].Amount -= remaining
				remaining = 0
				break
			}
			remaining -= out[i].Amount
			out[i].Amount = 0
		}
	}
	return out
}

// PruneDepleted drops lots with less than one unit left, then removes
// every lot of any product whose total stock fell below one unit.
func PruneDepleted(inventory []domain.InventoryLot) []domain.InventoryLot {
	kept := make([]domain.InventoryLot, 0, len(inventory))
	totals := make(map[string]int)
	for _, lot := range inventory {
		if lot.Amount < 1 {
			continue
		}
		kept = append(kept, lot)
		totals[lot.ProductName] += lot.Amount
	}

	out := kept[:0]
	for _, lot := range kept {
		if totals[lot.ProductName] < 1 {
			continue
		}
		out = append(out, lot)
	}
	return out
}

// Sell allocates an all-or-nothing sale against the inventory snapshot
// and records it in the sales ledger. On success it returns the updated
// inventory, the updated ledger and the ledger entry the sale landed on.
// On failure it returns a *SaleError and leaves both snapshots
// untouched.
//
// When the ledger already holds an entry for the product, the sold
// amount is added to that entry and the offered price is discarded; the
// first recorded price stands. Stock is consumed first-expiring-first:
// matching non-expired lots ordered by expire date ascending, original
// row order breaking ties.
func Sell(
	inventory []domain.InventoryLot,
	ledger []domain.SoldEntry,
	product string,
	amount int,
	price decimal.Decimal,
	refDate time.Time,
	nextSellID int,
) ([]domain.InventoryLot, []domain.SoldEntry, domain.SoldEntry, error) {
	name := strings.TrimSpace(product)
	lots := RefreshExpiry(inventory, refDate)

	available := 0
	expired := 0
	matched := false
	for _, lot := range lots {
		if strings.TrimSpace(lot.ProductName) != name || lot.Amount <= 0 {
			continue
		}
		matched = true
		if lot.IsExpired {
			expired += lot.Amount
		} else {
			available += lot.Amount
		}
	}

	if !matched {
		return nil, nil, domain.SoldEntry{}, &SaleError{Kind: ErrOutOfStock, Product: name, Requested: amount}
	}
	if available == 0 {
		return nil, nil, domain.SoldEntry{}, &SaleError{
			Kind:            ErrAllStockExpired,
			Product:         name,
			Requested:       amount,
			QuantityExpired: expired,
		}
	}
	if available < amount {
		return nil, nil, domain.SoldEntry{}, &SaleError{
			Kind:              ErrInsufficientStock,
			Product:           name,
			Requested:         amount,
			QuantityAvailable: available,
		}
	}

	newLedger := slices.Clone(ledger)
	entryIdx := -1
	for i, e := range newLedger {
		if strings.TrimSpace(e.ProductName) == name {
			entryIdx = i
			break
		}
	}
	if entryIdx >= 0 {
		newLedger[entryIdx].SellAmount += amount
	} else {
		newLedger = append(newLedger, domain.SoldEntry{
			SellID:      nextSellID,
			SellDate:    domain.DateOf(refDate),
			ProductName: name,
			SellAmount:  amount,
			SellPrice:   price,
		})
		entryIdx = len(newLedger) - 1
	}

	// First-expiring-first: order candidate lot indexes by expire date,
	// keeping row order for equal dates.
	candidates := make([]int, 0, len(lots))
	for i, lot := range lots {
		if !lot.IsExpired && lot.Amount > 0 && strings.TrimSpace(lot.ProductName) == name {
			candidates = append(candidates, i)
		}
	}
	slices.SortFunc(candidates, func(a, b int) int {
		if c := lots[a].ExpireDate.Compare(lots[b].ExpireDate); c != 0 {
			return c
		}
		return a - b
	})

	remaining := amount
	for _, idx := range candidates {
		if remaining < 1 {
			break
		}
		if lots[idx].Amount >= remaining {
			lots[idx].Amount -= remaining
			remaining = 0
			break
		}
		remaining -= lots[idx].Amount
		lots[idx].Amount = 0
	}

	return PruneDepleted(lots), newLedger, newLedger[entryIdx], nil
}

// NextID returns the next ledger ID: one past the highest existing ID,
// or 1 for an empty ledger.
func NextID(existing []int) int {
	next := 1
	for _, id := range existing {
		if id >= next {
			next = id + 1
		}
	}
	return next
}
