package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gudangku/backend/internal/domain"
	"gudangku/backend/internal/engine"
	"gudangku/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	purchases       []domain.PurchaseLot
	inventory       []domain.InventoryLot
	sales           []domain.SoldEntry
	currentDate     time.Time
	hasCurrentDate  bool
	lastRunDay      time.Time
	hasLastRunDay   bool
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// New returns an empty in-memory store with no user accounts.
func New() *Store {
	return &Store{
		purchases:       make([]domain.PurchaseLot, 0, 32),
		inventory:       make([]domain.InventoryLot, 0, 32),
		sales:           make([]domain.SoldEntry, 0, 32),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store pre-loaded with the dev/demo user accounts.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()
	return s
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CLERK_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	clerkPwd := envOr("SEED_CLERK_PASSWORD", "clerk123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CLERK_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CLERK_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"clerk", clerkPwd, domain.RoleClerk},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) ListPurchases(_ context.Context) ([]domain.PurchaseLot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.purchases), nil
}

func (s *Store) SavePurchases(_ context.Context, purchases []domain.PurchaseLot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchases = slices.Clone(purchases)
	return nil
}

func (s *Store) NextPurchaseID(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int, 0, len(s.purchases))
	for _, p := range s.purchases {
		ids = append(ids, p.BuyID)
	}
	return engine.NextID(ids), nil
}

func (s *Store) ListInventory(_ context.Context) ([]domain.InventoryLot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.inventory), nil
}

func (s *Store) ReplaceInventory(_ context.Context, lots []domain.InventoryLot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventory = slices.Clone(lots)
	return nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.SoldEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.sales), nil
}

func (s *Store) SaveSales(_ context.Context, sales []domain.SoldEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales = slices.Clone(sales)
	return nil
}

func (s *Store) NextSaleID(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int, 0, len(s.sales))
	for _, e := range s.sales {
		ids = append(ids, e.SellID)
	}
	return engine.NextID(ids), nil
}

func (s *Store) CurrentDate(_ context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.hasCurrentDate {
		return time.Time{}, store.ErrNotFound
	}
	return s.currentDate, nil
}

func (s *Store) SetCurrentDate(_ context.Context, date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentDate = domain.DateOf(date)
	s.hasCurrentDate = true
	return nil
}

func (s *Store) LastRunDay(_ context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.hasLastRunDay {
		return time.Time{}, store.ErrNotFound
	}
	return s.lastRunDay, nil
}

func (s *Store) SetLastRunDay(_ context.Context, day time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRunDay = domain.DateOf(day)
	s.hasLastRunDay = true
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && entry.CreatedAt.After(to) {
			continue
		}
		logs = append(logs, entry)
		if limit > 0 && len(logs) >= limit {
			break
		}
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.TrimSpace(user.Username)
	if username == "" || user.Password == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
