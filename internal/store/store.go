package store

import (
	"context"
	"errors"
	"time"

	"gudangku/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrConflict           = errors.New("conflict")
)

// Repository persists the three ledgers, the simulated clock and the
// supporting auth/audit records. Implementations must return deep copies
// so callers can mutate results freely.
type Repository interface {
	ListPurchases(ctx context.Context) ([]domain.PurchaseLot, error)
	SavePurchases(ctx context.Context, purchases []domain.PurchaseLot) error
	NextPurchaseID(ctx context.Context) (int, error)

	ListInventory(ctx context.Context) ([]domain.InventoryLot, error)
	ReplaceInventory(ctx context.Context, lots []domain.InventoryLot) error

	ListSales(ctx context.Context) ([]domain.SoldEntry, error)
	SaveSales(ctx context.Context, sales []domain.SoldEntry) error
	NextSaleID(ctx context.Context) (int, error)

	CurrentDate(ctx context.Context) (time.Time, error)
	SetCurrentDate(ctx context.Context, date time.Time) error
	LastRunDay(ctx context.Context) (time.Time, error)
	SetLastRunDay(ctx context.Context, day time.Time) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
