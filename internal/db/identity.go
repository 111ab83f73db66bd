package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/RichardoC/deeptok/internal/identity"
)

// IdentityStore keeps the identity in the same file as the messages, in its
// own table, so dropping the message table leaves it alone.
type IdentityStore struct {
	db *Database
}

func (s *IdentityStore) Get(ctx context.Context) (string, bool, error) {
	conn, err := s.db.open(ctx)
	if err != nil {
		return "", false, err
	}
	defer conn.Close()

	var name string
	err = conn.QueryRowContext(ctx, "SELECT value FROM identity WHERE key = ?", identity.Key).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	return name, true, nil
}

func (s *IdentityStore) Set(ctx context.Context, name string) error {
	conn, err := s.db.open(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.ExecContext(ctx, `
        INSERT INTO identity (key, value) VALUES (?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value`, identity.Key, name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

func (s *IdentityStore) Clear(ctx context.Context) error {
	conn, err := s.db.open(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "DELETE FROM identity WHERE key = ?", identity.Key); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}
