// Package csv is a file-backed Repository. Ledgers live as CSV files in
// a data directory, the simulated clock as small text files. The layout
// is the classic shop-tool one: bought.csv, inventory.csv, sold.csv,
// time.txt and last_run_day.txt.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gudangku/backend/internal/domain"
	"gudangku/backend/internal/engine"
	"gudangku/backend/internal/store"
)

const (
	purchasesFile  = "bought.csv"
	inventoryFile  = "inventory.csv"
	salesFile      = "sold.csv"
	usersFile      = "users.csv"
	auditFile      = "audit.csv"
	clockFile      = "time.txt"
	lastRunFile    = "last_run_day.txt"
	timestampParse = time.RFC3339
)

type Store struct {
	mu  sync.Mutex
	dir string
}

// Open prepares the data directory and returns a store over it.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// readRows loads a CSV file, skipping the header. A missing file reads
// as empty. Rows with the wrong column count are dropped with a log
// line rather than failing the whole ledger.
func (s *Store) readRows(name string, wantCols int) ([][]string, error) {
	f, err := os.Open(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	rows := make([][]string, 0, len(records)-1)
	for i, record := range records[1:] {
		if len(record) != wantCols {
			log.Printf("[csv-store] %s: skipping malformed row %d (%d columns)", name, i+2, len(record))
			continue
		}
		rows = append(rows, record)
	}
	return rows, nil
}

// writeRows writes header+rows through a temp file and renames it into
// place, so a crash mid-write never leaves a truncated ledger.
func (s *Store) writeRows(name string, header []string, rows [][]string) error {
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()

	writer := csv.NewWriter(tmp)
	if err := writer.Write(header); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s header: %w", name, err)
	}
	if err := writer.WriteAll(rows); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s rows: %w", name, err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("flush %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", name, err)
	}
	if err := os.Rename(tmpName, s.path(name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

func (s *Store) readDateFile(name string) (time.Time, error) {
	raw, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, store.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read %s: %w", name, err)
	}
	value := string(raw)
	for len(value) > 0 && (value[len(value)-1] == '\n' || value[len(value)-1] == '\r') {
		value = value[:len(value)-1]
	}
	date, err := domain.ParseDate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s: %w", name, err)
	}
	return date, nil
}

func (s *Store) writeDateFile(name string, date time.Time) error {
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(domain.FormatDate(date) + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", name, err)
	}
	if err := os.Rename(tmpName, s.path(name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

var purchaseHeader = []string{"buy_id", "buy_date", "product_name", "amount", "unit_price", "expire_date"}

func (s *Store) ListPurchases(_ context.Context) ([]domain.PurchaseLot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listPurchasesLocked()
}

func (s *Store) listPurchasesLocked() ([]domain.PurchaseLot, error) {
	rows, err := s.readRows(purchasesFile, len(purchaseHeader))
	if err != nil {
		return nil, err
	}

	purchases := make([]domain.PurchaseLot, 0, len(rows))
	for _, row := range rows {
		id, err1 := strconv.Atoi(row[0])
		buyDate, err2 := domain.ParseDate(row[1])
		amount, err3 := strconv.Atoi(row[3])
		price, err4 := decimal.NewFromString(row[4])
		expire, err5 := domain.ParseDate(row[5])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			log.Printf("[csv-store] %s: skipping unparseable row for %q", purchasesFile, row[2])
			continue
		}
		purchases = append(purchases, domain.PurchaseLot{
			BuyID:       id,
			BuyDate:     buyDate,
			ProductName: row[2],
			Amount:      amount,
			UnitPrice:   price,
			ExpireDate:  expire,
		})
	}
	return purchases, nil
}

func (s *Store) SavePurchases(_ context.Context, purchases []domain.PurchaseLot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([][]string, 0, len(purchases))
	for _, p := range purchases {
		rows = append(rows, []string{
			strconv.Itoa(p.BuyID),
			domain.FormatDate(p.BuyDate),
			p.ProductName,
			strconv.Itoa(p.Amount),
			p.UnitPrice.String(),
			domain.FormatDate(p.ExpireDate),
		})
	}
	return s.writeRows(purchasesFile, purchaseHeader, rows)
}

func (s *Store) NextPurchaseID(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purchases, err := s.listPurchasesLocked()
	if err != nil {
		return 0, err
	}
	ids := make([]int, 0, len(purchases))
	for _, p := range purchases {
		ids = append(ids, p.BuyID)
	}
	return engine.NextID(ids), nil
}

var inventoryHeader = []string{"inventory_id", "buy_date", "product_name", "amount", "unit_price", "expire_date", "is_expired"}

func (s *Store) ListInventory(_ context.Context) ([]domain.InventoryLot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readRows(inventoryFile, len(inventoryHeader))
	if err != nil {
		return nil, err
	}

	lots := make([]domain.InventoryLot, 0, len(rows))
	for _, row := range rows {
		id, err1 := strconv.Atoi(row[0])
		buyDate, err2 := domain.ParseDate(row[1])
		amount, err3 := strconv.Atoi(row[3])
		price, err4 := decimal.NewFromString(row[4])
		expire, err5 := domain.ParseDate(row[5])
		expired, err6 := strconv.ParseBool(row[6])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil || err6 != nil {
			log.Printf("[csv-store] %s: skipping unparseable row for %q", inventoryFile, row[2])
			continue
		}
		lots = append(lots, domain.InventoryLot{
			InventoryID: id,
			BuyDate:     buyDate,
			ProductName: row[2],
			Amount:      amount,
			UnitPrice:   price,
			ExpireDate:  expire,
			IsExpired:   expired,
		})
	}
	return lots, nil
}

func (s *Store) ReplaceInventory(_ context.Context, lots []domain.InventoryLot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([][]string, 0, len(lots))
	for _, lot := range lots {
		rows = append(rows, []string{
			strconv.Itoa(lot.InventoryID),
			domain.FormatDate(lot.BuyDate),
			lot.ProductName,
			strconv.Itoa(lot.Amount),
			lot.UnitPrice.String(),
			domain.FormatDate(lot.ExpireDate),
			strconv.FormatBool(lot.IsExpired),
		})
	}
	return s.writeRows(inventoryFile, inventoryHeader, rows)
}

var salesHeader = []string{"sell_id", "sell_date", "product_name", "sell_amount", "sell_price"}

func (s *Store) ListSales(_ context.Context) ([]domain.SoldEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listSalesLocked()
}

func (s *Store) listSalesLocked() ([]domain.SoldEntry, error) {
	rows, err := s.readRows(salesFile, len(salesHeader))
	if err != nil {
		return nil, err
	}

	sales := make([]domain.SoldEntry, 0, len(rows))
	for _, row := range rows {
		id, err1 := strconv.Atoi(row[0])
		sellDate, err2 := domain.ParseDate(row[1])
		amount, err3 := strconv.Atoi(row[3])
		price, err4 := decimal.NewFromString(row[4])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			log.Printf("[csv-store] %s: skipping unparseable row for %q", salesFile, row[2])
			continue
		}
		sales = append(sales, domain.SoldEntry{
			SellID:      id,
			SellDate:    sellDate,
			ProductName: row[2],
			SellAmount:  amount,
			SellPrice:   price,
		})
	}
	return sales, nil
}

func (s *Store) SaveSales(_ context.Context, sales []domain.SoldEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([][]string, 0, len(sales))
	for _, e := range sales {
		rows = append(rows, []string{
			strconv.Itoa(e.SellID),
			domain.FormatDate(e.SellDate),
			e.ProductName,
			strconv.Itoa(e.SellAmount),
			e.SellPrice.String(),
		})
	}
	return s.writeRows(salesFile, salesHeader, rows)
}

func (s *Store) NextSaleID(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sales, err := s.listSalesLocked()
	if err != nil {
		return 0, err
	}
	ids := make([]int, 0, len(sales))
	for _, e := range sales {
		ids = append(ids, e.SellID)
	}
	return engine.NextID(ids), nil
}

func (s *Store) CurrentDate(_ context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readDateFile(clockFile)
}

func (s *Store) SetCurrentDate(_ context.Context, date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeDateFile(clockFile, domain.DateOf(date))
}

func (s *Store) LastRunDay(_ context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readDateFile(lastRunFile)
}

func (s *Store) SetLastRunDay(_ context.Context, day time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeDateFile(lastRunFile, domain.DateOf(day))
}

var auditHeader = []string{"id", "actor_username", "actor_role", "action", "entity_type", "entity_id", "detail", "created_at"}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	rows, err := s.readRows(auditFile, len(auditHeader))
	if err != nil {
		return err
	}
	rows = append(rows, []string{
		entry.ID,
		entry.ActorUsername,
		entry.ActorRole,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		entry.Detail,
		entry.CreatedAt.Format(timestampParse),
	})
	return s.writeRows(auditFile, auditHeader, rows)
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readRows(auditFile, len(auditHeader))
	if err != nil {
		return nil, err
	}

	logs := make([]domain.AuditLog, 0, limit)
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		createdAt, err := time.Parse(timestampParse, row[7])
		if err != nil {
			log.Printf("[csv-store] %s: skipping unparseable timestamp %q", auditFile, row[7])
			continue
		}
		if !from.IsZero() && createdAt.Before(from) {
			continue
		}
		if !to.IsZero() && createdAt.After(to) {
			continue
		}
		logs = append(logs, domain.AuditLog{
			ID:            row[0],
			ActorUsername: row[1],
			ActorRole:     row[2],
			Action:        row[3],
			EntityType:    row[4],
			EntityID:      row[5],
			Detail:        row[6],
			CreatedAt:     createdAt,
		})
		if limit > 0 && len(logs) >= limit {
			break
		}
	}
	return logs, nil
}

var usersHeader = []string{"username", "password", "role", "active", "created_at"}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidTransaction
	}
	users, err := s.listUsersLocked()
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.Username == user.Username {
			return store.ErrConflict
		}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	users = append(users, user)
	return s.writeUsersLocked(users)
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listUsersLocked()
}

func (s *Store) listUsersLocked() ([]domain.UserAccount, error) {
	rows, err := s.readRows(usersFile, len(usersHeader))
	if err != nil {
		return nil, err
	}

	users := make([]domain.UserAccount, 0, len(rows))
	for _, row := range rows {
		active, err1 := strconv.ParseBool(row[3])
		createdAt, err2 := time.Parse(timestampParse, row[4])
		if err1 != nil || err2 != nil {
			log.Printf("[csv-store] %s: skipping unparseable row for %q", usersFile, row[0])
			continue
		}
		users = append(users, domain.UserAccount{
			Username:  row[0],
			Password:  row[1],
			Role:      row[2],
			Active:    active,
			CreatedAt: createdAt,
		})
	}
	return users, nil
}

func (s *Store) writeUsersLocked(users []domain.UserAccount) error {
	rows := make([][]string, 0, len(users))
	for _, u := range users {
		rows = append(rows, []string{
			u.Username,
			u.Password,
			u.Role,
			strconv.FormatBool(u.Active),
			u.CreatedAt.Format(timestampParse),
		})
	}
	return s.writeRows(usersFile, usersHeader, rows)
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.listUsersLocked()
	if err != nil {
		return err
	}
	for i := range users {
		if users[i].Username == username {
			users[i].Password = password
			return s.writeUsersLocked(users)
		}
	}
	return store.ErrNotFound
}
