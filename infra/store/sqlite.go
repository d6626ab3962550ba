// Package store provides persistent order store implementations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/whr-sorting/simbridge/core/model"
	corestore "github.com/whr-sorting/simbridge/core/store"
)

// SQLiteStore persists orders in a SQLite database. Connections are limited to
// one so that Update transactions are serialized within a process. Every
// connection waits on a locked database and takes the write lock when a
// transaction begins, so processes sharing the file queue instead of failing.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database and ensures schema.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	schema := `CREATE TABLE IF NOT EXISTS orders (
        id           TEXT PRIMARY KEY,
        customer     TEXT NOT NULL DEFAULT '',
        items        TEXT NOT NULL DEFAULT '[]',
        total        REAL NOT NULL DEFAULT 0,
        status       TEXT NOT NULL,
        priority     INTEGER NOT NULL DEFAULT 0,
        crate_number INTEGER,
        created_at   INTEGER NOT NULL,
        updated_at   INTEGER NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);`
	if _, err := db.ExecContext(pctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// busyTimeoutMillis bounds how long a connection waits on another writer.
const busyTimeoutMillis = 5000

// dsn applies per-connection settings through the driver's query parameters,
// which run on every connection the pool opens.
func dsn(path string) string {
	return fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_txlock=immediate", path, busyTimeoutMillis)
}

const selectOrder = `SELECT id, customer, items, total, status, priority, crate_number, created_at, updated_at FROM orders`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(r rowScanner) (model.Order, error) {
	var (
		o       model.Order
		items   string
		status  string
		crate   sql.NullInt64
		created int64
		updated int64
	)
	if err := r.Scan(&o.ID, &o.Customer, &items, &o.Total, &status, &o.Priority, &crate, &created, &updated); err != nil {
		return model.Order{}, err
	}
	if err := json.Unmarshal([]byte(items), &o.Items); err != nil {
		return model.Order{}, fmt.Errorf("decode items for %s: %w", o.ID, err)
	}
	o.Status = model.OrderStatus(status)
	if crate.Valid {
		n := int(crate.Int64)
		o.CrateNumber = &n
	}
	o.CreatedAt = time.Unix(0, created).UTC()
	o.UpdatedAt = time.Unix(0, updated).UTC()
	return o, nil
}

func (s *SQLiteStore) FindByID(ctx context.Context, id string) (model.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, selectOrder+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, corestore.ErrNotFound
	}
	return o, err
}

func (s *SQLiteStore) FindByStatusIn(ctx context.Context, statuses ...model.OrderStatus) ([]model.Order, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	q := selectOrder + ` WHERE status IN (?` + strings.Repeat(",?", len(statuses)-1) + `) ORDER BY rowid`
	return s.query(ctx, q, args...)
}

func (s *SQLiteStore) List(ctx context.Context) ([]model.Order, error) {
	return s.query(ctx, selectOrder+` ORDER BY rowid`)
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]model.Order, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsert(ctx context.Context, ex execer, o model.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	if o.Items == nil {
		items = []byte("[]")
	}
	var crate sql.NullInt64
	if o.CrateNumber != nil {
		crate = sql.NullInt64{Int64: int64(*o.CrateNumber), Valid: true}
	}
	_, err = ex.ExecContext(ctx, `INSERT INTO orders (id, customer, items, total, status, priority, crate_number, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            customer = excluded.customer,
            items = excluded.items,
            total = excluded.total,
            status = excluded.status,
            priority = excluded.priority,
            crate_number = excluded.crate_number,
            updated_at = excluded.updated_at`,
		o.ID, o.Customer, string(items), o.Total, string(o.Status), o.Priority, crate,
		o.CreatedAt.UnixNano(), o.UpdatedAt.UnixNano())
	return err
}

func (s *SQLiteStore) Save(ctx context.Context, o model.Order) error {
	if o.ID == "" {
		return errors.New("order id is required")
	}
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	return upsert(ctx, s.db, o)
}

func (s *SQLiteStore) Update(ctx context.Context, id string, fn corestore.UpdateFunc) (model.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Order{}, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := scanOrder(tx.QueryRowContext(ctx, selectOrder+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, corestore.ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	if err := fn(&cur); err != nil {
		return model.Order{}, err
	}
	cur.ID = id
	cur.UpdatedAt = time.Now().UTC()
	if err := upsert(ctx, tx, cur); err != nil {
		return model.Order{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Order{}, err
	}
	return cur, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
