package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/shopspring/decimal"

	"gudangku/backend/internal/domain"
)

func TestLedgerRoundTrip(t *testing.T) {
	databaseURL := os.Getenv("GUDANGKU_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set GUDANGKU_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM purchases`)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory`)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales`)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sim_clock`)
		_ = s.Close()
	})

	buyDate, _ := domain.ParseDate("2023-07-01")
	expire, _ := domain.ParseDate("2023-08-15")
	price, _ := decimal.NewFromString("2.35")

	purchases := []domain.PurchaseLot{
		{BuyID: 1, BuyDate: buyDate, ProductName: "rice", Amount: 12, UnitPrice: price, ExpireDate: expire},
		{BuyID: 2, BuyDate: buyDate, ProductName: "milk", Amount: 4, UnitPrice: price, ExpireDate: expire},
	}
	if err := s.SavePurchases(ctx, purchases); err != nil {
		t.Fatalf("save purchases: %v", err)
	}

	got, err := s.ListPurchases(ctx)
	if err != nil {
		t.Fatalf("list purchases: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 purchases, got %d", len(got))
	}
	if !got[0].UnitPrice.Equal(price) {
		t.Fatalf("price did not round-trip: %s", got[0].UnitPrice)
	}
	if !got[0].ExpireDate.Equal(expire) {
		t.Fatalf("expire date did not round-trip: %v", got[0].ExpireDate)
	}

	next, err := s.NextPurchaseID(ctx)
	if err != nil || next != 3 {
		t.Fatalf("expected next purchase id 3, got %d (%v)", next, err)
	}

	lots := []domain.InventoryLot{
		{InventoryID: 2, BuyDate: buyDate, ProductName: "milk", Amount: 4, UnitPrice: price, ExpireDate: expire},
		{InventoryID: 1, BuyDate: buyDate, ProductName: "rice", Amount: 12, UnitPrice: price, ExpireDate: expire},
	}
	if err := s.ReplaceInventory(ctx, lots); err != nil {
		t.Fatalf("replace inventory: %v", err)
	}
	gotLots, err := s.ListInventory(ctx)
	if err != nil {
		t.Fatalf("list inventory: %v", err)
	}
	// Row order is part of the snapshot and must survive storage.
	if len(gotLots) != 2 || gotLots[0].InventoryID != 2 || gotLots[1].InventoryID != 1 {
		t.Fatalf("inventory order not preserved: %+v", gotLots)
	}

	simDate, _ := domain.ParseDate("2023-07-09")
	if err := s.SetCurrentDate(ctx, simDate); err != nil {
		t.Fatalf("set current date: %v", err)
	}
	if err := s.SetLastRunDay(ctx, buyDate); err != nil {
		t.Fatalf("set last run day: %v", err)
	}
	gotDate, err := s.CurrentDate(ctx)
	if err != nil || !gotDate.Equal(simDate) {
		t.Fatalf("current date round-trip failed: %v (%v)", gotDate, err)
	}
	gotRun, err := s.LastRunDay(ctx)
	if err != nil || !gotRun.Equal(buyDate) {
		t.Fatalf("last run day round-trip failed: %v (%v)", gotRun, err)
	}
}
