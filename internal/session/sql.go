package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/faucetdb/quotagate/internal/model"
)

// driverNames maps configured driver names to database/sql driver names.
var driverNames = map[string]string{
	"sqlite":   "sqlite",
	"postgres": "pgx",
	"mysql":    "mysql",
}

// SQLBackend stores sessions in a SQL table. It works unchanged against
// SQLite, PostgreSQL and MySQL; queries are written with ? placeholders and
// rebound per driver by sqlx.
type SQLBackend struct {
	db  *sqlx.DB
	now func() time.Time
}

// SQLiteDSN returns the DSN for a sessions database under dataDir, or an
// in-memory database when dataDir is empty.
func SQLiteDSN(dataDir string) (string, error) {
	if dataDir == "" {
		return ":memory:?_journal_mode=WAL", nil
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return filepath.Join(dataDir, "sessions.db") + "?_journal_mode=WAL&_busy_timeout=5000", nil
}

// OpenSQL connects to the database and applies the session schema.
func OpenSQL(driver, dsn string) (*SQLBackend, error) {
	name, ok := driverNames[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported session sql driver %q", driver)
	}

	db, err := sqlx.Connect(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}

	if driver == "sqlite" {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	b := &SQLBackend{db: db, now: time.Now}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate session database: %w", err)
	}
	return b, nil
}

func (b *SQLBackend) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS quotagate_sessions (
			id VARCHAR(64) NOT NULL PRIMARY KEY,
			payload TEXT NOT NULL,
			expires_at BIGINT NOT NULL DEFAULT 0
		)`,

		`CREATE INDEX idx_quotagate_sessions_expires ON quotagate_sessions(expires_at)`,
	}

	for _, m := range migrations {
		if _, err := b.db.Exec(m); err != nil {
			// MySQL has no CREATE INDEX IF NOT EXISTS; treat an existing
			// index as a no-op on every driver.
			lower := strings.ToLower(err.Error())
			if strings.Contains(lower, "already exists") || strings.Contains(lower, "duplicate key name") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

func (b *SQLBackend) Load(ctx context.Context, id string) (string, error) {
	var rec model.SessionRecord
	err := b.db.GetContext(ctx, &rec,
		b.db.Rebind(`SELECT id, payload, expires_at FROM quotagate_sessions WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errNotFound
	}
	if err != nil {
		return "", err
	}

	if rec.Expired(b.now()) {
		// Best effort; Sweep catches anything left behind.
		b.Delete(ctx, id)
		return "", errNotFound
	}
	return rec.Payload, nil
}

func (b *SQLBackend) Save(ctx context.Context, id, payload string, ttl time.Duration) error {
	rec := model.SessionRecord{ID: id, Payload: payload}
	if ttl > 0 {
		rec.ExpiresAt = b.now().Add(ttl).Unix()
	}

	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM quotagate_sessions WHERE id = ?`), rec.ID); err != nil {
		return err
	}
	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO quotagate_sessions (id, payload, expires_at) VALUES (:id, :payload, :expires_at)`, rec); err != nil {
		return err
	}
	return tx.Commit()
}

func (b *SQLBackend) Delete(ctx context.Context, id string) error {
	_, err := b.db.ExecContext(ctx, b.db.Rebind(`DELETE FROM quotagate_sessions WHERE id = ?`), id)
	return err
}

// Sweep deletes every expired session row.
func (b *SQLBackend) Sweep(ctx context.Context) (int64, error) {
	res, err := b.db.ExecContext(ctx,
		b.db.Rebind(`DELETE FROM quotagate_sessions WHERE expires_at <> 0 AND expires_at <= ?`), b.now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (b *SQLBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *SQLBackend) Close() error {
	return b.db.Close()
}
