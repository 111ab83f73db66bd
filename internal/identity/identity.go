// Package identity keeps the display name of the person using the widget.
package identity

import (
	"context"
	"errors"
	"strings"
)

// Key is the name the identity value is stored under.
const Key = "username"

// DefaultName labels user messages while nobody has logged in.
const DefaultName = "Anda"

// ErrEmptyName is returned for a blank login name. The message is shown to users as is.
var ErrEmptyName = errors.New("Nama tidak boleh kosong!")

// Store persists a single identity value.
type Store interface {
	// Get returns the stored name and whether one is set.
	Get(ctx context.Context) (string, bool, error)
	Set(ctx context.Context, name string) error
	// Clear removes the name. Clearing an unset name is not an error.
	Clear(ctx context.Context) error
}

// Normalize trims a login name and rejects empty input.
func Normalize(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	return name, nil
}

// DisplayName falls back to DefaultName when no name is set.
func DisplayName(name string, ok bool) string {
	if !ok || name == "" {
		return DefaultName
	}
	return name
}
