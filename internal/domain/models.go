package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage format for all ledger dates.
const DateLayout = "2006-01-02"

// ParseDate parses a ledger date string into a UTC-midnight time.
func ParseDate(value string) (time.Time, error) {
	return time.Parse(DateLayout, value)
}

// FormatDate renders a date in the ledger format.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DateOf truncates a timestamp to its UTC calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// PurchaseLot is a row of the purchase ledger. Rows with the same product
// name and expire date are merged by accumulating Amount.
type PurchaseLot struct {
	BuyID       int             `json:"buy_id"`
	BuyDate     time.Time       `json:"buy_date"`
	ProductName string          `json:"product_name"`
	Amount      int             `json:"amount"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	ExpireDate  time.Time       `json:"expire_date"`
}

// InventoryLot is a sellable batch of one product. Inventory is fully
// re-derived from the purchase ledger minus the sales ledger, so
// InventoryID mirrors the BuyID of the purchase row the lot came from.
type InventoryLot struct {
	InventoryID int             `json:"inventory_id"`
	BuyDate     time.Time       `json:"buy_date"`
	ProductName string          `json:"product_name"`
	Amount      int             `json:"amount"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	ExpireDate  time.Time       `json:"expire_date"`
	IsExpired   bool            `json:"is_expired"`
}

// SoldEntry is a row of the sales ledger. Entries for the same product
// are merged by accumulating SellAmount; the first recorded SellPrice
// stands for all later units of that product.
type SoldEntry struct {
	SellID      int             `json:"sell_id"`
	SellDate    time.Time       `json:"sell_date"`
	ProductName string          `json:"product_name"`
	SellAmount  int             `json:"sell_amount"`
	SellPrice   decimal.Decimal `json:"sell_price"`
}

type BuyRequest struct {
	ProductName string `json:"product_name"`
	Amount      int    `json:"amount"`
	UnitPrice   string `json:"unit_price"`
	ExpireDate  string `json:"expire_date"`
}

type BuyResponse struct {
	Purchase  PurchaseLot    `json:"purchase"`
	Inventory []InventoryLot `json:"inventory"`
}

type SellRequest struct {
	ProductName string `json:"product_name"`
	Amount      int    `json:"amount"`
	SellPrice   string `json:"sell_price"`
}

type SellResponse struct {
	Sale      SoldEntry      `json:"sale"`
	Inventory []InventoryLot `json:"inventory"`
}

type InventoryListResponse struct {
	Date  string         `json:"date"`
	Lots  []InventoryLot `json:"lots"`
	Total int            `json:"total_units"`
}

type PurchaseListResponse struct {
	Purchases []PurchaseLot `json:"purchases"`
}

type SalesListResponse struct {
	Sales []SoldEntry `json:"sales"`
}

type ClockResponse struct {
	Today string `json:"today"`
}

type ClockAdvanceRequest struct {
	Days int `json:"days"`
}

type ClockSetRequest struct {
	Date string `json:"date"`
}

type RevenueLine struct {
	ProductName string          `json:"product_name"`
	UnitsSold   int             `json:"units_sold"`
	SellPrice   decimal.Decimal `json:"sell_price"`
	Revenue     decimal.Decimal `json:"revenue"`
}

type ExpiryOutlookLine struct {
	ProductName string `json:"product_name"`
	ExpireDate  string `json:"expire_date"`
	Amount      int    `json:"amount"`
}

type RevenueReport struct {
	Date          string              `json:"date"`
	TotalRevenue  decimal.Decimal     `json:"total_revenue"`
	Lines         []RevenueLine       `json:"lines"`
	ExpiringSoon  []ExpiryOutlookLine `json:"expiring_soon"`
	OutlookDays   int                 `json:"outlook_days"`
	GeneratedAt   string              `json:"generated_at"`
	FromCache     bool                `json:"from_cache"`
	LatencyMillis int64               `json:"latency_ms"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type ClerkCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ClerkUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	RoleAdmin = "admin"
	RoleClerk = "clerk"
)
