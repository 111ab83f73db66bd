package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/RichardoC/deeptok/internal/identity"
	"github.com/RichardoC/deeptok/internal/models"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const schemaVersion = 1

const busyTimeout = "5000"

const schema = `
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    role TEXT NOT NULL,
    text TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS identity (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);`

var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrWriteFailed        = errors.New("write failed")
	ErrReadFailed         = errors.New("read failed")
)

// Database is the durable message log. It keeps no open handle between calls;
// every operation opens the file, runs one transaction and closes it again.
type Database struct {
	path       string
	logger     *zap.Logger
	identities identity.Store
	now        func() time.Time
}

type Option func(*Database)

// WithIdentityStore replaces the sqlite identity table with another store.
// WipeAll clears whichever store is configured.
func WithIdentityStore(s identity.Store) Option {
	return func(db *Database) { db.identities = s }
}

// WithClock overrides the time source used when a message has no timestamp.
func WithClock(now func() time.Time) Option {
	return func(db *Database) { db.now = now }
}

func New(path string, logger *zap.Logger, opts ...Option) *Database {
	if logger == nil {
		logger = zap.NewNop()
	}
	db := &Database{path: path, logger: logger, now: time.Now}
	db.identities = &IdentityStore{db: db}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Identity returns the identity store wiped together with the messages.
func (db *Database) Identity() identity.Store {
	return db.identities
}

// Open makes sure the schema exists. It is safe to call any number of times.
func (db *Database) Open(ctx context.Context) error {
	conn, err := db.open(ctx)
	if err != nil {
		return err
	}
	return conn.Close()
}

// IsMemoryPath reports whether path names an in-memory sqlite database,
// which would lose everything between operations.
func IsMemoryPath(path string) bool {
	file, query, _ := strings.Cut(path, "?")
	if file == ":memory:" || strings.HasPrefix(file, "file::memory:") {
		return true
	}
	params, err := url.ParseQuery(query)
	return err == nil && params.Get("mode") == "memory"
}

// dsn adds the busy timeout to the path, keeping any query it already has.
func (db *Database) dsn() (string, error) {
	file, query, _ := strings.Cut(db.path, "?")
	params, err := url.ParseQuery(query)
	if err != nil {
		return "", fmt.Errorf("parse database path %q: %w", db.path, err)
	}
	if params.Get("_busy_timeout") == "" {
		params.Set("_busy_timeout", busyTimeout)
	}
	return file + "?" + params.Encode(), nil
}

func (db *Database) open(ctx context.Context) (*sql.DB, error) {
	if IsMemoryPath(db.path) {
		return nil, fmt.Errorf("%w: in-memory database %q", ErrStorageUnavailable, db.path)
	}
	dsn, err := db.dsn()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	var version int
	if err := conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if version > schemaVersion {
		conn.Close()
		return nil, fmt.Errorf("%w: schema version %d is newer than %d", ErrStorageUnavailable, version, schemaVersion)
	}

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if version < schemaVersion {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
	}
	return conn, nil
}

// Append stores msg and fills in its ID. A zero Timestamp is set to now.
func (db *Database) Append(ctx context.Context, msg *models.Message) error {
	if msg.Text == "" || (msg.Role != models.RoleUser && msg.Role != models.RoleBot) {
		return fmt.Errorf("%w: invalid message (role %q)", ErrWriteFailed, msg.Role)
	}

	conn, err := db.open(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = db.now()
	}
	msg.Timestamp = msg.Timestamp.UTC()

	query := `
        INSERT INTO messages (role, text, created_at)
        VALUES (?, ?, ?)
        RETURNING id`

	err = conn.QueryRowContext(ctx, query, string(msg.Role), msg.Text, msg.Timestamp.Format(time.RFC3339Nano)).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

// ReadAll returns every stored message, oldest first.
func (db *Database) ReadAll(ctx context.Context) ([]models.Message, error) {
	conn, err := db.open(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, `
        SELECT id, role, text, created_at
        FROM messages
        ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var (
			msg  models.Message
			role string
			ts   string
		)
		if err := rows.Scan(&msg.ID, &role, &msg.Text, &ts); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReadFailed, err)
		}
		msg.Role = models.Role(role)
		msg.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("%w: bad timestamp on message %d: %w", ErrReadFailed, msg.ID, err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	return messages, nil
}

// WipeAll drops the message table and clears the identity. Failures are
// logged only; the caller resets its view regardless.
func (db *Database) WipeAll(ctx context.Context) {
	if conn, err := db.open(ctx); err != nil {
		db.logger.Error("failed to open database for wipe", zap.Error(err), zap.String("dbPath", db.path))
	} else {
		if _, err := conn.ExecContext(ctx, "DROP TABLE IF EXISTS messages"); err != nil {
			db.logger.Error("failed to drop messages", zap.Error(err), zap.String("dbPath", db.path))
		} else {
			db.logger.Info("message store deleted", zap.String("dbPath", db.path))
		}
		conn.Close()
	}

	if err := db.identities.Clear(ctx); err != nil {
		db.logger.Error("failed to clear identity", zap.Error(err))
	}
}
