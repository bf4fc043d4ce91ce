package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"gudangku/backend/internal/cache"
	"gudangku/backend/internal/clock"
	"gudangku/backend/internal/domain"
	"gudangku/backend/internal/engine"
	"gudangku/backend/internal/report"
	"gudangku/backend/internal/store"
	"gudangku/backend/internal/store/memory"
)

func newTestService() *Service {
	repo := memory.New()
	reporter := report.NewEngine(cache.NoopReportCache{}, 5*time.Second)
	return New(repo, clock.New(repo, time.Time{}), reporter)
}

func adminContext() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func TestBuyRecordsPurchaseAndRebuildsInventory(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	resp, err := svc.Buy(ctx, domain.BuyRequest{
		ProductName: "  rice ",
		Amount:      5,
		UnitPrice:   "1.50",
		ExpireDate:  "2023-08-01",
	})
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	if resp.Purchase.BuyID != 1 {
		t.Fatalf("expected first buy id 1, got %d", resp.Purchase.BuyID)
	}
	if resp.Purchase.ProductName != "rice" {
		t.Fatalf("expected trimmed product name, got %q", resp.Purchase.ProductName)
	}
	if len(resp.Inventory) != 1 || resp.Inventory[0].Amount != 5 {
		t.Fatalf("expected one lot of 5, got %+v", resp.Inventory)
	}
	if resp.Inventory[0].InventoryID != 1 {
		t.Fatalf("inventory id should mirror buy id, got %d", resp.Inventory[0].InventoryID)
	}
}

func TestBuyMergesSameProductAndExpireDate(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	if _, err := svc.Buy(ctx, domain.BuyRequest{ProductName: "rice", Amount: 5, UnitPrice: "1.50", ExpireDate: "2023-08-01"}); err != nil {
		t.Fatalf("first buy: %v", err)
	}
	resp, err := svc.Buy(ctx, domain.BuyRequest{ProductName: "rice", Amount: 3, UnitPrice: "1.80", ExpireDate: "2023-08-01"})
	if err != nil {
		t.Fatalf("second buy: %v", err)
	}

	purchases, err := svc.Purchases(ctx)
	if err != nil {
		t.Fatalf("list purchases: %v", err)
	}
	if len(purchases) != 1 {
		t.Fatalf("expected merged purchase row, got %+v", purchases)
	}
	if purchases[0].Amount != 8 || purchases[0].BuyID != 1 {
		t.Fatalf("expected accumulated amount 8 on buy 1, got %+v", purchases[0])
	}
	if len(resp.Inventory) != 1 || resp.Inventory[0].Amount != 8 {
		t.Fatalf("expected single lot of 8, got %+v", resp.Inventory)
	}
}

func TestBuyRejectsExpiredButAllowsToday(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	// The simulation starts at 2023-07-01.
	_, err := svc.Buy(ctx, domain.BuyRequest{ProductName: "milk", Amount: 2, UnitPrice: "2.00", ExpireDate: "2023-06-30"})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected rejection of expired product, got %v", err)
	}

	if _, err := svc.Buy(ctx, domain.BuyRequest{ProductName: "milk", Amount: 2, UnitPrice: "2.00", ExpireDate: "2023-07-01"}); err != nil {
		t.Fatalf("product expiring today must be buyable: %v", err)
	}
}

func TestBuyValidatesInput(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	cases := []domain.BuyRequest{
		{ProductName: "", Amount: 1, UnitPrice: "1.00", ExpireDate: "2023-08-01"},
		{ProductName: "rice", Amount: 0, UnitPrice: "1.00", ExpireDate: "2023-08-01"},
		{ProductName: "rice", Amount: 1, UnitPrice: "-1.00", ExpireDate: "2023-08-01"},
		{ProductName: "rice", Amount: 1, UnitPrice: "abc", ExpireDate: "2023-08-01"},
		{ProductName: "rice", Amount: 1, UnitPrice: "1.00", ExpireDate: "01-08-2023"},
	}
	for i, req := range cases {
		if _, err := svc.Buy(ctx, req); !errors.Is(err, store.ErrInvalidTransaction) {
			t.Fatalf("case %d: expected ErrInvalidTransaction, got %v", i, err)
		}
	}
}

func TestSellConsumesEarliestExpiryFirst(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	if _, err := svc.Buy(ctx, domain.BuyRequest{ProductName: "rice", Amount: 10, UnitPrice: "1.40", ExpireDate: "2023-09-01"}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := svc.Buy(ctx, domain.BuyRequest{ProductName: "rice", Amount: 5, UnitPrice: "1.50", ExpireDate: "2023-07-15"}); err != nil {
		t.Fatalf("buy: %v", err)
	}

	resp, err := svc.Sell(ctx, domain.SellRequest{ProductName: "rice", Amount: 7, SellPrice: "3.00"})
	if err != nil {
		t.Fatalf("sell: %v", err)
	}

	if resp.Sale.SellID != 1 || resp.Sale.SellAmount != 7 {
		t.Fatalf("unexpected sale entry: %+v", resp.Sale)
	}
	if len(resp.Inventory) != 1 {
		t.Fatalf("expected only the later lot to survive, got %+v", resp.Inventory)
	}
	if resp.Inventory[0].Amount != 8 {
		t.Fatalf("expected 8 units left in the later lot, got %d", resp.Inventory[0].Amount)
	}
	if !resp.Inventory[0].ExpireDate.Equal(mustDate(t, "2023-09-01")) {
		t.Fatalf("earliest-expiring lot should be drained first, got %+v", resp.Inventory[0])
	}
}

func TestSellRejectionsLeaveLedgersUntouched(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	if _, err := svc.Buy(ctx, domain.BuyRequest{ProductName: "milk", Amount: 3, UnitPrice: "2.00", ExpireDate: "2023-07-20"}); err != nil {
		t.Fatalf("buy: %v", err)
	}

	_, err := svc.Sell(ctx, domain.SellRequest{ProductName: "beans", Amount: 1, SellPrice: "1.00"})
	if !errors.Is(err, engine.ErrOutOfStock) {
		t.Fatalf("expected out of stock, got %v", err)
	}
	if !IsSaleRejection(err) {
		t.Fatalf("out of stock should classify as a rejection")
	}

	_, err = svc.Sell(ctx, domain.SellRequest{ProductName: "milk", Amount: 9, SellPrice: "1.00"})
	var saleErr *engine.SaleError
	if !errors.As(err, &saleErr) || !errors.Is(err, engine.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if saleErr.QuantityAvailable != 3 {
		t.Fatalf("expected 3 units reported available, got %d", saleErr.QuantityAvailable)
	}

	sales, _ := svc.Sales(ctx)
	if len(sales) != 0 {
		t.Fatalf("failed sales must not reach the ledger: %+v", sales)
	}
	inv, _ := svc.Inventory(ctx)
	if inv.Total != 3 {
		t.Fatalf("failed sales must not touch inventory, got %d units", inv.Total)
	}
}

func TestSellMergesLedgerAndKeepsFirstPrice(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	if _, err := svc.Buy(ctx, domain.BuyRequest{ProductName: "rice", Amount: 10, UnitPrice: "1.40", ExpireDate: "2023-09-01"}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := svc.Sell(ctx, domain.SellRequest{ProductName: "rice", Amount: 2, SellPrice: "3.00"}); err != nil {
		t.Fatalf("first sell: %v", err)
	}
	resp, err := svc.Sell(ctx, domain.SellRequest{ProductName: "rice", Amount: 3, SellPrice: "9.99"})
	if err != nil {
		t.Fatalf("second sell: %v", err)
	}

	sales, _ := svc.Sales(ctx)
	if len(sales) != 1 {
		t.Fatalf("expected one merged ledger entry, got %+v", sales)
	}
	if sales[0].SellAmount != 5 {
		t.Fatalf("expected cumulative amount 5, got %d", sales[0].SellAmount)
	}
	if sales[0].SellPrice.String() != "3" {
		t.Fatalf("first recorded price must stand, got %s", sales[0].SellPrice)
	}
	if resp.Sale.SellAmount != 5 {
		t.Fatalf("response should surface the merged entry, got %+v", resp.Sale)
	}
}

func TestAdvanceTimeExpiresLots(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	if _, err := svc.Buy(ctx, domain.BuyRequest{ProductName: "yoghurt", Amount: 4, UnitPrice: "1.00", ExpireDate: "2023-07-03"}); err != nil {
		t.Fatalf("buy: %v", err)
	}

	next, err := svc.AdvanceTime(ctx, 5)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !next.Equal(mustDate(t, "2023-07-06")) {
		t.Fatalf("expected 2023-07-06, got %v", next)
	}

	expired, err := svc.ExpiredProducts(ctx)
	if err != nil {
		t.Fatalf("expired products: %v", err)
	}
	if len(expired.Lots) != 1 || expired.Lots[0].ProductName != "yoghurt" {
		t.Fatalf("expected yoghurt flagged expired, got %+v", expired.Lots)
	}

	_, err = svc.Sell(ctx, domain.SellRequest{ProductName: "yoghurt", Amount: 1, SellPrice: "2.00"})
	var saleErr *engine.SaleError
	if !errors.As(err, &saleErr) || !errors.Is(err, engine.ErrAllStockExpired) {
		t.Fatalf("expected all stock expired, got %v", err)
	}
	if saleErr.QuantityExpired != 4 {
		t.Fatalf("expected 4 expired units reported, got %d", saleErr.QuantityExpired)
	}
}

func TestSetDateRequiresAdmin(t *testing.T) {
	svc := newTestService()

	clerkCtx := WithActor(context.Background(), domain.Actor{Username: "clerk", Role: domain.RoleClerk})
	if _, err := svc.SetDate(clerkCtx, mustDate(t, "2024-01-01")); err == nil {
		t.Fatalf("clerk must not set the date")
	}

	got, err := svc.SetDate(adminContext(), mustDate(t, "2024-01-01"))
	if err != nil {
		t.Fatalf("admin set date: %v", err)
	}
	if !got.Equal(mustDate(t, "2024-01-01")) {
		t.Fatalf("unexpected date %v", got)
	}
}

func TestReconcileInventoryIsIdempotent(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	if _, err := svc.Buy(ctx, domain.BuyRequest{ProductName: "rice", Amount: 10, UnitPrice: "1.40", ExpireDate: "2023-09-01"}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := svc.Sell(ctx, domain.SellRequest{ProductName: "rice", Amount: 4, SellPrice: "3.00"}); err != nil {
		t.Fatalf("sell: %v", err)
	}

	first, err := svc.ReconcileInventory(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	second, err := svc.ReconcileInventory(ctx)
	if err != nil {
		t.Fatalf("reconcile again: %v", err)
	}

	if len(first) != 1 || first[0].Amount != 6 {
		t.Fatalf("expected 6 units after rebuild, got %+v", first)
	}
	if len(second) != 1 || second[0].Amount != first[0].Amount {
		t.Fatalf("rebuild is not idempotent: %+v vs %+v", first, second)
	}
}

func TestRevenueReportPricesLedger(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	if _, err := svc.Buy(ctx, domain.BuyRequest{ProductName: "rice", Amount: 10, UnitPrice: "1.40", ExpireDate: "2023-07-05"}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := svc.Sell(ctx, domain.SellRequest{ProductName: "rice", Amount: 4, SellPrice: "3.00"}); err != nil {
		t.Fatalf("sell: %v", err)
	}

	got, err := svc.RevenueReport(ctx, 7)
	if err != nil {
		t.Fatalf("revenue report: %v", err)
	}
	if got.TotalRevenue.String() != "12" {
		t.Fatalf("expected total 12, got %s", got.TotalRevenue)
	}
	if len(got.ExpiringSoon) != 1 || got.ExpiringSoon[0].Amount != 6 {
		t.Fatalf("expected remaining 6 units expiring soon, got %+v", got.ExpiringSoon)
	}
}

func TestCreateClerkRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateClerk(context.Background(), domain.ClerkCreateRequest{Username: "budi", Password: "rahasia-123"})
	if err == nil {
		t.Fatalf("anonymous clerk creation must fail")
	}

	created, err := svc.CreateClerk(adminContext(), domain.ClerkCreateRequest{Username: " Budi ", Password: "rahasia-123"})
	if err != nil {
		t.Fatalf("create clerk: %v", err)
	}
	if created.Username != "budi" || created.Role != domain.RoleClerk {
		t.Fatalf("unexpected clerk: %+v", created)
	}

	_, err = svc.CreateClerk(adminContext(), domain.ClerkCreateRequest{Username: "budi", Password: "rahasia-123"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate, got %v", err)
	}

	_, err = svc.CreateClerk(adminContext(), domain.ClerkCreateRequest{Username: "siti", Password: "short"})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction for weak password, got %v", err)
	}
}

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := domain.ParseDate(value)
	if err != nil {
		t.Fatalf("parse date %q: %v", value, err)
	}
	return d
}
