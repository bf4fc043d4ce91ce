package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"gudangku/backend/internal/clock"
	"gudangku/backend/internal/domain"
	"gudangku/backend/internal/engine"
	"gudangku/backend/internal/report"
	"gudangku/backend/internal/store"
	"gudangku/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo     store.Repository
	clock    *clock.Clock
	reporter *report.Engine
}

func New(repo store.Repository, clk *clock.Clock, reporter *report.Engine) *Service {
	if clk == nil {
		clk = clock.New(repo, time.Time{})
	}
	if reporter == nil {
		reporter = report.NewEngine(nil, 0)
	}

	return &Service{
		repo:     repo,
		clock:    clk,
		reporter: reporter,
	}
}

// Today returns the current simulated date.
func (s *Service) Today(ctx context.Context) (time.Time, error) {
	return s.clock.Today(ctx)
}

// AdvanceTime moves the simulated date forward and refreshes the expiry
// flags on the stored inventory against the new date.
func (s *Service) AdvanceTime(ctx context.Context, days int) (time.Time, error) {
	next, err := s.clock.Advance(ctx, days)
	if err != nil {
		return time.Time{}, err
	}
	if err := s.refreshStoredExpiry(ctx, next); err != nil {
		return time.Time{}, err
	}

	s.logAudit(ctx, "clock_advance", "clock", domain.FormatDate(next), fmt.Sprintf("days=%d", days))
	return next, nil
}

// SetDate jumps the simulated date. Admin only: rewinding time changes
// which lots count as expired, so clerks cannot do it.
func (s *Service) SetDate(ctx context.Context, date time.Time) (time.Time, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return time.Time{}, fmt.Errorf("admin role required")
	}

	day, err := s.clock.Set(ctx, date)
	if err != nil {
		return time.Time{}, err
	}
	if err := s.refreshStoredExpiry(ctx, day); err != nil {
		return time.Time{}, err
	}

	s.logAudit(ctx, "clock_set", "clock", domain.FormatDate(day), "")
	return day, nil
}

// Buy records a purchase in the purchase ledger and rebuilds the
// inventory snapshot from the ledgers. A purchase of an already-expired
// lot is rejected; a lot expiring today is still accepted.
func (s *Service) Buy(ctx context.Context, req domain.BuyRequest) (domain.BuyResponse, error) {
	name := strings.TrimSpace(req.ProductName)
	if name == "" || req.Amount < 1 {
		return domain.BuyResponse{}, store.ErrInvalidTransaction
	}

	price, err := decimal.NewFromString(strings.TrimSpace(req.UnitPrice))
	if err != nil || price.Sign() <= 0 {
		return domain.BuyResponse{}, fmt.Errorf("%w: unit price must be a positive amount", store.ErrInvalidTransaction)
	}
	expire, err := domain.ParseDate(strings.TrimSpace(req.ExpireDate))
	if err != nil {
		return domain.BuyResponse{}, fmt.Errorf("%w: expire date must be YYYY-MM-DD", store.ErrInvalidTransaction)
	}

	today, err := s.clock.Today(ctx)
	if err != nil {
		return domain.BuyResponse{}, err
	}
	if !engine.Purchasable(expire, today) {
		return domain.BuyResponse{}, fmt.Errorf("%w: product expired on %s", store.ErrInvalidTransaction, domain.FormatDate(expire))
	}

	purchases, err := s.repo.ListPurchases(ctx)
	if err != nil {
		return domain.BuyResponse{}, err
	}

	// Same product and expire date land on the existing ledger row.
	recorded := -1
	for i := range purchases {
		if purchases[i].ProductName == name && domain.DateOf(purchases[i].ExpireDate).Equal(expire) {
			purchases[i].Amount += req.Amount
			recorded = i
			break
		}
	}
	if recorded < 0 {
		nextID, err := s.repo.NextPurchaseID(ctx)
		if err != nil {
			return domain.BuyResponse{}, err
		}
		purchases = append(purchases, domain.PurchaseLot{
			BuyID:       nextID,
			BuyDate:     today,
			ProductName: name,
			Amount:      req.Amount,
			UnitPrice:   price,
			ExpireDate:  expire,
		})
		recorded = len(purchases) - 1
	}

	if err := s.repo.SavePurchases(ctx, purchases); err != nil {
		return domain.BuyResponse{}, err
	}

	inventory, err := s.rebuildInventory(ctx, today)
	if err != nil {
		return domain.BuyResponse{}, err
	}

	s.logAudit(ctx, "buy", "purchase", fmt.Sprintf("%d", purchases[recorded].BuyID),
		fmt.Sprintf("product=%s,amount=%d,expire=%s", name, req.Amount, domain.FormatDate(expire)))

	return domain.BuyResponse{Purchase: purchases[recorded], Inventory: inventory}, nil
}

// Sell allocates a sale against the inventory and records it in the
// sales ledger. The allocation is all-or-nothing; rejection reasons
// come back as *engine.SaleError.
func (s *Service) Sell(ctx context.Context, req domain.SellRequest) (domain.SellResponse, error) {
	name := strings.TrimSpace(req.ProductName)
	if name == "" || req.Amount < 1 {
		return domain.SellResponse{}, store.ErrInvalidTransaction
	}
	price, err := decimal.NewFromString(strings.TrimSpace(req.SellPrice))
	if err != nil || price.Sign() <= 0 {
		return domain.SellResponse{}, fmt.Errorf("%w: sell price must be a positive amount", store.ErrInvalidTransaction)
	}

	today, err := s.clock.Today(ctx)
	if err != nil {
		return domain.SellResponse{}, err
	}
	inventory, err := s.repo.ListInventory(ctx)
	if err != nil {
		return domain.SellResponse{}, err
	}
	ledger, err := s.repo.ListSales(ctx)
	if err != nil {
		return domain.SellResponse{}, err
	}
	nextID, err := s.repo.NextSaleID(ctx)
	if err != nil {
		return domain.SellResponse{}, err
	}

	newInventory, newLedger, entry, err := engine.Sell(inventory, ledger, name, req.Amount, price, today, nextID)
	if err != nil {
		return domain.SellResponse{}, err
	}

	if err := s.repo.SaveSales(ctx, newLedger); err != nil {
		return domain.SellResponse{}, err
	}
	if err := s.repo.ReplaceInventory(ctx, newInventory); err != nil {
		return domain.SellResponse{}, err
	}

	s.logAudit(ctx, "sell", "sale", fmt.Sprintf("%d", entry.SellID),
		fmt.Sprintf("product=%s,amount=%d", name, req.Amount))

	return domain.SellResponse{Sale: entry, Inventory: newInventory}, nil
}

// Inventory returns the stored lots with expiry flags refreshed at the
// simulated today.
func (s *Service) Inventory(ctx context.Context) (domain.InventoryListResponse, error) {
	today, err := s.clock.Today(ctx)
	if err != nil {
		return domain.InventoryListResponse{}, err
	}
	lots, err := s.repo.ListInventory(ctx)
	if err != nil {
		return domain.InventoryListResponse{}, err
	}

	refreshed := engine.RefreshExpiry(lots, today)
	total := 0
	for _, lot := range refreshed {
		total += lot.Amount
	}
	return domain.InventoryListResponse{
		Date:  domain.FormatDate(today),
		Lots:  refreshed,
		Total: total,
	}, nil
}

// ExpiredProducts returns the lots that are past their expire date.
func (s *Service) ExpiredProducts(ctx context.Context) (domain.InventoryListResponse, error) {
	inv, err := s.Inventory(ctx)
	if err != nil {
		return domain.InventoryListResponse{}, err
	}

	expired := engine.ExpiredLots(inv.Lots)
	total := 0
	for _, lot := range expired {
		total += lot.Amount
	}
	return domain.InventoryListResponse{Date: inv.Date, Lots: expired, Total: total}, nil
}

func (s *Service) Purchases(ctx context.Context) ([]domain.PurchaseLot, error) {
	return s.repo.ListPurchases(ctx)
}

func (s *Service) Sales(ctx context.Context) ([]domain.SoldEntry, error) {
	return s.repo.ListSales(ctx)
}

// ReconcileInventory rebuilds the inventory snapshot from the full
// purchase and sales ledgers at the simulated today. Run at startup and
// after every purchase; safe to run any number of times.
func (s *Service) ReconcileInventory(ctx context.Context) ([]domain.InventoryLot, error) {
	today, err := s.clock.Today(ctx)
	if err != nil {
		return nil, err
	}
	return s.rebuildInventory(ctx, today)
}

// RevenueReport prices the sales ledger and lists the stock that will
// expire within the outlook window.
func (s *Service) RevenueReport(ctx context.Context, outlookDays int) (domain.RevenueReport, error) {
	today, err := s.clock.Today(ctx)
	if err != nil {
		return domain.RevenueReport{}, err
	}
	sales, err := s.repo.ListSales(ctx)
	if err != nil {
		return domain.RevenueReport{}, err
	}
	inventory, err := s.repo.ListInventory(ctx)
	if err != nil {
		return domain.RevenueReport{}, err
	}

	return s.reporter.Revenue(ctx, today, sales, engine.RefreshExpiry(inventory, today), outlookDays), nil
}

// CreateClerk registers a clerk account. Admin only.
func (s *Service) CreateClerk(ctx context.Context, req domain.ClerkCreateRequest) (domain.ClerkUser, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.ClerkUser{}, fmt.Errorf("admin role required")
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" || len(req.Password) < 8 {
		return domain.ClerkUser{}, store.ErrInvalidTransaction
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.ClerkUser{}, err
	}

	user := domain.UserAccount{
		Username:  username,
		Password:  string(hash),
		Role:      domain.RoleClerk,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return domain.ClerkUser{}, err
	}

	s.logAudit(ctx, "clerk_create", "user", username, "")
	return domain.ClerkUser{
		Username:  user.Username,
		Role:      user.Role,
		Active:    user.Active,
		CreatedAt: user.CreatedAt,
	}, nil
}

// AuditLogs lists recent audit entries. Admin only.
func (s *Service) AuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("admin role required")
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) rebuildInventory(ctx context.Context, today time.Time) ([]domain.InventoryLot, error) {
	purchases, err := s.repo.ListPurchases(ctx)
	if err != nil {
		return nil, err
	}
	inventory, err := s.repo.ListInventory(ctx)
	if err != nil {
		return nil, err
	}
	sales, err := s.repo.ListSales(ctx)
	if err != nil {
		return nil, err
	}

	rebuilt := engine.PruneDepleted(engine.ReplaySales(engine.Reconcile(inventory, purchases, today), sales))
	if err := s.repo.ReplaceInventory(ctx, rebuilt); err != nil {
		return nil, err
	}
	return rebuilt, nil
}

func (s *Service) refreshStoredExpiry(ctx context.Context, today time.Time) error {
	lots, err := s.repo.ListInventory(ctx)
	if err != nil {
		return err
	}
	return s.repo.ReplaceInventory(ctx, engine.RefreshExpiry(lots, today))
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[service] WARN: failed to write audit log action=%s: %v", action, err)
	}
}

// IsSaleRejection reports whether err is a business rejection rather
// than an infrastructure failure.
func IsSaleRejection(err error) bool {
	return errors.Is(err, engine.ErrOutOfStock) ||
		errors.Is(err, engine.ErrAllStockExpired) ||
		errors.Is(err, engine.ErrInsufficientStock)
}
