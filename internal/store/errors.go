package store

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when an issued key already exists, whether
	// or not that key has since been deactivated.
	ErrDuplicateKey = errors.New("api key already exists")

	// ErrDuplicateClient is returned when the client already holds an active key.
	ErrDuplicateClient = errors.New("client already has an active api key")

	// ErrAlreadyDeactivated is returned when deactivating a key a second time.
	ErrAlreadyDeactivated = errors.New("api key already deactivated")

	// ErrUnsupportedDriver is returned by Open for an unknown database driver.
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)
