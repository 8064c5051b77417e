package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"nimp/internal/logging"
)

// SQLStore persists the knowledge base in a SQLite database. The "sqlite3"
// driver is mattn/go-sqlite3 (cgo); "sqlite" is modernc.org/sqlite (pure Go).
type SQLStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// OpenSQLStore creates or opens the database at dbPath with the named driver.
func OpenSQLStore(driver, dbPath string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	var dsn string
	switch driver {
	case "sqlite3":
		dsn = dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	case "sqlite":
		dsn = "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLStore{db: db, dbPath: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLStore) Path() string {
	return s.dbPath
}

// initSchema creates the database schema.
func (s *SQLStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS classifications (
		name TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		value TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_classifications_kind ON classifications(kind);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load implements Store.
func (s *SQLStore) Load(ctx context.Context) (*Base, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := logging.StartTimer(logging.CategoryStore, "SQLStore.Load")
	defer timer.Stop()

	var schema string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&schema)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("read schema version: %w", err)
	}
	if err := checkSchema(schema); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name, kind, value FROM classifications ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query classifications: %w", err)
	}
	defer rows.Close()

	b := NewBase()
	for rows.Next() {
		var name, kind, value string
		if err := rows.Scan(&name, &kind, &value); err != nil {
			return nil, fmt.Errorf("scan classification: %w", err)
		}
		c := Classification{Kind: Kind(kind), Value: value}
		if !c.Kind.Valid() {
			logging.StoreWarn("skipping %s with unknown kind %q", name, kind)
			continue
		}
		b.put(name, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate classifications: %w", err)
	}

	var version string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'version'`).Scan(&version)
	if err == nil {
		if v, perr := strconv.ParseUint(version, 10, 64); perr == nil {
			b.Version = v
		}
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("read version: %w", err)
	}

	logging.StoreDebug("loaded %d classifications from %s", b.Len(), s.dbPath)
	return b, nil
}

// Save implements Store.
func (s *SQLStore) Save(ctx context.Context, b *Base) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM classifications`); err != nil {
		return fmt.Errorf("clear classifications: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO classifications (name, kind, value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range b.Entries() {
		if _, err := stmt.ExecContext(ctx, e.Name, string(e.Kind), e.Value); err != nil {
			return fmt.Errorf("insert %s: %w", e.Name, err)
		}
	}

	upsert := `INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := tx.ExecContext(ctx, upsert, "schema_version", SchemaVersion); err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, "version", strconv.FormatUint(b.Version, 10)); err != nil {
		return fmt.Errorf("write version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	logging.Store("saved %d classifications (v%d) to %s", b.Len(), b.Version, s.dbPath)
	return nil
}
