package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/faucetdb/widgets/internal/model"
)

// deactivateAttempts bounds the compare-and-set loop in DeactivateAPIKey. A
// retry only happens when the key is inserted between the UPDATE and the
// follow-up lookup.
const deactivateAttempts = 3

func (s *Store) apiKeyColumns() string {
	return "id, " + s.dialect.quote("key") + ", client_name, deactivated_at, created_at"
}

// IssueAPIKey inserts a new active key for clientName. It fails with
// ErrDuplicateKey if key was ever issued before and with ErrDuplicateClient if
// clientName already holds an active key. When both hold, ErrDuplicateKey is
// reported.
//
// The lookups inside the transaction only decide which error to report; the
// unique indexes are what guarantee a single winner between concurrent calls.
func (s *Store) IssueAPIKey(ctx context.Context, key, clientName string) (*model.APIKey, error) {
	rec := &model.APIKey{Key: key, ClientName: clientName}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	rec.CreatedAt = s.timestamp()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	keyCol := s.dialect.quote("key")

	var n int
	if err := sqlx.GetContext(ctx, tx, &n,
		tx.Rebind("SELECT COUNT(*) FROM api_keys WHERE "+keyCol+" = ?"), key); err != nil {
		return nil, fmt.Errorf("check api key: %w", err)
	}
	if n > 0 {
		return nil, ErrDuplicateKey
	}

	if err := sqlx.GetContext(ctx, tx, &n,
		tx.Rebind("SELECT COUNT(*) FROM api_keys WHERE client_name = ? AND deactivated_at IS NULL"), clientName); err != nil {
		return nil, fmt.Errorf("check client name: %w", err)
	}
	if n > 0 {
		return nil, ErrDuplicateClient
	}

	id, err := s.insert(ctx, tx, "api_keys",
		[]string{"key", "client_name", "created_at"},
		rec.Key, rec.ClientName, rec.CreatedAt)
	if err != nil {
		if conflict, ok := s.dialect.apiKeyConflict(err); ok {
			return nil, conflict
		}
		return nil, fmt.Errorf("insert api key: %w", err)
	}
	if err := tx.Commit(); err != nil {
		if conflict, ok := s.dialect.apiKeyConflict(err); ok {
			return nil, conflict
		}
		return nil, fmt.Errorf("commit api key: %w", err)
	}
	rec.ID = id

	s.logger.Info("api key issued", "client_name", clientName, "key_prefix", rec.Prefix())
	return rec, nil
}

// DeactivateAPIKey permanently invalidates key. Deactivation happens at most
// once: a second call fails with ErrAlreadyDeactivated. Unknown keys fail
// with ErrNotFound.
func (s *Store) DeactivateAPIKey(ctx context.Context, key string) error {
	if !model.WellFormedKey(key) {
		return ErrNotFound
	}
	q := s.db.Rebind("UPDATE api_keys SET deactivated_at = ? WHERE " +
		s.dialect.quote("key") + " = ? AND deactivated_at IS NULL")

	for attempt := 0; attempt < deactivateAttempts; attempt++ {
		result, err := s.db.ExecContext(ctx, q, s.timestamp(), key)
		if err != nil {
			return fmt.Errorf("deactivate api key: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("deactivate api key rows affected: %w", err)
		}
		if n == 1 {
			s.logger.Info("api key deactivated", "key_prefix", model.KeyPrefix(key))
			return nil
		}

		// Nothing matched: the key is either unknown or already deactivated.
		// Rows are never deleted, so the lookup below is conclusive unless the
		// key was issued in between, in which case the UPDATE is retried.
		rec, err := s.GetAPIKey(ctx, key)
		if err != nil {
			return err
		}
		if !rec.IsActive() {
			return ErrAlreadyDeactivated
		}
	}
	return fmt.Errorf("deactivate api key: gave up after %d attempts", deactivateAttempts)
}

// AuthenticateAPIKey checks key against the active key set. Unknown and
// deactivated keys yield model.AuthInvalid with a nil error; an error is only
// returned when the database cannot be queried. It never writes.
func (s *Store) AuthenticateAPIKey(ctx context.Context, key string) (model.AuthResult, error) {
	if !model.WellFormedKey(key) {
		return model.AuthInvalid, nil
	}
	rec, err := s.GetAPIKey(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.AuthInvalid, nil
		}
		return model.AuthInvalid, err
	}
	if !rec.IsActive() {
		return model.AuthInvalid, nil
	}
	return model.AuthResult{Key: rec}, nil
}

// GetAPIKey returns the record for key, active or not. The match is exact even
// on backends whose string comparison pads or folds.
func (s *Store) GetAPIKey(ctx context.Context, key string) (*model.APIKey, error) {
	if !model.WellFormedKey(key) {
		return nil, ErrNotFound
	}
	var rec model.APIKey
	q := s.db.Rebind("SELECT " + s.apiKeyColumns() + " FROM api_keys WHERE " + s.dialect.quote("key") + " = ?")
	if err := s.db.GetContext(ctx, &rec, q, key); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	if rec.Key != key {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// ListAPIKeys returns keys newest first. Deactivated keys are included unless
// activeOnly is set, since the table doubles as an audit trail.
func (s *Store) ListAPIKeys(ctx context.Context, activeOnly bool) ([]model.APIKey, error) {
	q := "SELECT " + s.apiKeyColumns() + " FROM api_keys"
	if activeOnly {
		q += " WHERE deactivated_at IS NULL"
	}
	q += " ORDER BY created_at DESC, id DESC"

	keys := []model.APIKey{}
	if err := s.db.SelectContext(ctx, &keys, q); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}
