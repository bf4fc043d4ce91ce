package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"gudangku/backend/internal/domain"
	"gudangku/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS purchases (
			buy_id       INT PRIMARY KEY,
			buy_date     DATE NOT NULL,
			product_name TEXT NOT NULL,
			amount       INT NOT NULL,
			unit_price   NUMERIC(12,2) NOT NULL,
			expire_date  DATE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS inventory (
			position     INT PRIMARY KEY,
			inventory_id INT NOT NULL,
			buy_date     DATE NOT NULL,
			product_name TEXT NOT NULL,
			amount       INT NOT NULL,
			unit_price   NUMERIC(12,2) NOT NULL,
			expire_date  DATE NOT NULL,
			is_expired   BOOLEAN NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			sell_id      INT PRIMARY KEY,
			sell_date    DATE NOT NULL,
			product_name TEXT NOT NULL,
			sell_amount  INT NOT NULL,
			sell_price   NUMERIC(12,2) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sim_clock (
			singleton    BOOLEAN PRIMARY KEY DEFAULT TRUE,
			sim_date     DATE,
			last_run_day DATE
		)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id             TEXT PRIMARY KEY,
			actor_username TEXT NOT NULL,
			actor_role     TEXT NOT NULL,
			action         TEXT NOT NULL,
			entity_type    TEXT NOT NULL,
			entity_id      TEXT NOT NULL,
			detail         TEXT NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			username   TEXT PRIMARY KEY,
			password   TEXT NOT NULL,
			role       TEXT NOT NULL,
			active     BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListPurchases(ctx context.Context) ([]domain.PurchaseLot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT buy_id, buy_date, product_name, amount, unit_price, expire_date
		FROM purchases
		ORDER BY buy_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]domain.PurchaseLot, 0, 64)
	for rows.Next() {
		var p domain.PurchaseLot
		if err := rows.Scan(&p.BuyID, &p.BuyDate, &p.ProductName, &p.Amount, &p.UnitPrice, &p.ExpireDate); err != nil {
			return nil, err
		}
		p.BuyDate = domain.DateOf(p.BuyDate)
		p.ExpireDate = domain.DateOf(p.ExpireDate)
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return purchases, nil
}

func (s *Store) SavePurchases(ctx context.Context, purchases []domain.PurchaseLot) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM purchases`); err != nil {
		return err
	}
	for _, p := range purchases {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO purchases (buy_id, buy_date, product_name, amount, unit_price, expire_date)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, p.BuyID, domain.DateOf(p.BuyDate), p.ProductName, p.Amount, p.UnitPrice, domain.DateOf(p.ExpireDate))
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrConflict
			}
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) NextPurchaseID(ctx context.Context) (int, error) {
	var next int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(buy_id), 0) + 1 FROM purchases`).Scan(&next)
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Store) ListInventory(ctx context.Context) ([]domain.InventoryLot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT inventory_id, buy_date, product_name, amount, unit_price, expire_date, is_expired
		FROM inventory
		ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lots := make([]domain.InventoryLot, 0, 64)
	for rows.Next() {
		var lot domain.InventoryLot
		if err := rows.Scan(&lot.InventoryID, &lot.BuyDate, &lot.ProductName, &lot.Amount, &lot.UnitPrice, &lot.ExpireDate, &lot.IsExpired); err != nil {
			return nil, err
		}
		lot.BuyDate = domain.DateOf(lot.BuyDate)
		lot.ExpireDate = domain.DateOf(lot.ExpireDate)
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lots, nil
}

func (s *Store) ReplaceInventory(ctx context.Context, lots []domain.InventoryLot) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM inventory`); err != nil {
		return err
	}
	for position, lot := range lots {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO inventory (position, inventory_id, buy_date, product_name, amount, unit_price, expire_date, is_expired)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, position, lot.InventoryID, domain.DateOf(lot.BuyDate), lot.ProductName, lot.Amount, lot.UnitPrice, domain.DateOf(lot.ExpireDate), lot.IsExpired)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListSales(ctx context.Context) ([]domain.SoldEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sell_id, sell_date, product_name, sell_amount, sell_price
		FROM sales
		ORDER BY sell_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.SoldEntry, 0, 64)
	for rows.Next() {
		var e domain.SoldEntry
		if err := rows.Scan(&e.SellID, &e.SellDate, &e.ProductName, &e.SellAmount, &e.SellPrice); err != nil {
			return nil, err
		}
		e.SellDate = domain.DateOf(e.SellDate)
		sales = append(sales, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) SaveSales(ctx context.Context, sales []domain.SoldEntry) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sales`); err != nil {
		return err
	}
	for _, e := range sales {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sales (sell_id, sell_date, product_name, sell_amount, sell_price)
			VALUES ($1,$2,$3,$4,$5)
		`, e.SellID, domain.DateOf(e.SellDate), e.ProductName, e.SellAmount, e.SellPrice)
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrConflict
			}
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) NextSaleID(ctx context.Context) (int, error) {
	var next int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(sell_id), 0) + 1 FROM sales`).Scan(&next)
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Store) CurrentDate(ctx context.Context) (time.Time, error) {
	var date sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT sim_date FROM sim_clock WHERE singleton`).Scan(&date)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, store.ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	if !date.Valid {
		return time.Time{}, store.ErrNotFound
	}
	return domain.DateOf(date.Time), nil
}

func (s *Store) SetCurrentDate(ctx context.Context, date time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sim_clock (singleton, sim_date) VALUES (TRUE, $1)
		ON CONFLICT (singleton) DO UPDATE SET sim_date = EXCLUDED.sim_date
	`, domain.DateOf(date))
	return err
}

func (s *Store) LastRunDay(ctx context.Context) (time.Time, error) {
	var day sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT last_run_day FROM sim_clock WHERE singleton`).Scan(&day)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, store.ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	if !day.Valid {
		return time.Time{}, store.ErrNotFound
	}
	return domain.DateOf(day.Time), nil
}

func (s *Store) SetLastRunDay(ctx context.Context, day time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sim_clock (singleton, last_run_day) VALUES (TRUE, $1)
		ON CONFLICT (singleton) DO UPDATE SET last_run_day = EXCLUDED.last_run_day
	`, domain.DateOf(day))
	return err
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	if from.IsZero() {
		from = time.Unix(0, 0).UTC()
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(24 * time.Hour)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidTransaction
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
