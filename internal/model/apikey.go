package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxKeyLength and MaxClientNameLength match the VARCHAR(255) columns, counted
// in characters.
const (
	MaxKeyLength        = 255
	MaxClientNameLength = 255
)

var (
	ErrKeyRequired          = errors.New("key is required")
	ErrClientNameRequired   = errors.New("client_name is required")
	ErrKeyTooLong           = errors.New("key must be at most 255 characters")
	ErrClientNameTooLong    = errors.New("client_name must be at most 255 characters")
	ErrKeyWhitespace        = errors.New("key must not start or end with whitespace")
	ErrClientNameWhitespace = errors.New("client_name must not start or end with whitespace")
)

// APIKey is a single row of the api_keys table. Rows are never updated except
// to set DeactivatedAt once, and never deleted.
type APIKey struct {
	ID            int64      `json:"id" db:"id"`
	Key           string     `json:"-" db:"key"` // presented by clients, never echoed in listings
	ClientName    string     `json:"client_name" db:"client_name"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty" db:"deactivated_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// IsActive reports whether the key can still be used to authenticate.
func (k *APIKey) IsActive() bool {
	return k.DeactivatedAt == nil
}

// Prefix returns the redacted key shown in logs and listings.
func (k *APIKey) Prefix() string {
	return KeyPrefix(k.Key)
}

// Validate checks the fields required before a key can be issued. Keys and
// client names must not carry surrounding whitespace: MySQL and SQL Server
// ignore trailing spaces when comparing strings.
func (k *APIKey) Validate() error {
	switch {
	case strings.TrimSpace(k.Key) == "":
		return ErrKeyRequired
	case utf8.RuneCountInString(k.Key) > MaxKeyLength:
		return ErrKeyTooLong
	case strings.TrimSpace(k.Key) != k.Key:
		return ErrKeyWhitespace
	}
	switch {
	case strings.TrimSpace(k.ClientName) == "":
		return ErrClientNameRequired
	case utf8.RuneCountInString(k.ClientName) > MaxClientNameLength:
		return ErrClientNameTooLong
	case strings.TrimSpace(k.ClientName) != k.ClientName:
		return ErrClientNameWhitespace
	}
	return nil
}

// IsInvalidKey reports whether err is one of the validation failures above.
func IsInvalidKey(err error) bool {
	for _, target := range []error{
		ErrKeyRequired, ErrClientNameRequired,
		ErrKeyTooLong, ErrClientNameTooLong,
		ErrKeyWhitespace, ErrClientNameWhitespace,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// WellFormedKey reports whether key could have passed Validate. Lookups skip
// keys that fail it.
func WellFormedKey(key string) bool {
	return key != "" && strings.TrimSpace(key) == key &&
		utf8.RuneCountInString(key) <= MaxKeyLength
}

// keyPrefixMax caps how many characters of a key KeyPrefix reveals.
const keyPrefixMax = 8

// KeyPrefix returns a redacted form of key for logs and listings: at most 8
// characters and never more than half the key, followed by an ellipsis.
func KeyPrefix(key string) string {
	if key == "" {
		return ""
	}
	r := []rune(key)
	n := min(keyPrefixMax, len(r)/2)
	return string(r[:n]) + "…"
}

// AuthResult is the outcome of checking a presented key against the active
// key set. A failed check is a normal result, not an error.
type AuthResult struct {
	Key *APIKey
}

// AuthInvalid is the result for a key that is unknown or deactivated.
var AuthInvalid = AuthResult{}

// Valid reports whether the presented key matched an active record.
func (r AuthResult) Valid() bool {
	return r.Key != nil && r.Key.IsActive()
}
