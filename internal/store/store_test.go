package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/faucetdb/widgets/internal/model"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{Driver: "sqlite", DSN: ":memory:"}, opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fakeClock returns a clock that advances by one second per call.
func fakeClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle", DSN: "x"})
	if !errors.Is(err, ErrUnsupportedDriver) {
		t.Fatalf("expected ErrUnsupportedDriver, got %v", err)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if s.Driver() != "sqlite" {
		t.Errorf("Driver() = %q, want sqlite", s.Driver())
	}
}

func TestIssueAndAuthenticate(t *testing.T) {
	start := time.Date(2023, 1, 29, 0, 22, 59, 123456789, time.UTC)
	s := newTestStore(t, WithClock(fakeClock(start)))
	ctx := context.Background()

	rec, err := s.IssueAPIKey(ctx, "abc123", "acme")
	if err != nil {
		t.Fatalf("IssueAPIKey: %v", err)
	}
	if rec.ID == 0 {
		t.Error("expected non-zero ID after issue")
	}
	if rec.DeactivatedAt != nil {
		t.Error("expected new key to be active")
	}
	wantCreated := start.Add(time.Second).Truncate(time.Microsecond)
	if !rec.CreatedAt.Equal(wantCreated) {
		t.Errorf("CreatedAt = %v, want %v", rec.CreatedAt, wantCreated)
	}

	res, err := s.AuthenticateAPIKey(ctx, "abc123")
	if err != nil {
		t.Fatalf("AuthenticateAPIKey: %v", err)
	}
	if !res.Valid() {
		t.Fatal("expected valid result")
	}
	if res.Key.Key != "abc123" || res.Key.ClientName != "acme" {
		t.Errorf("got key=%q client=%q, want abc123/acme", res.Key.Key, res.Key.ClientName)
	}
	if res.Key.DeactivatedAt != nil {
		t.Error("expected deactivated_at to be absent")
	}
	if !res.Key.CreatedAt.Equal(wantCreated) {
		t.Errorf("stored CreatedAt = %v, want %v", res.Key.CreatedAt, wantCreated)
	}
}

func TestIssueValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.IssueAPIKey(ctx, "", "acme"); !errors.Is(err, model.ErrKeyRequired) {
		t.Errorf("blank key: got %v, want ErrKeyRequired", err)
	}
	if _, err := s.IssueAPIKey(ctx, "abc123", " "); !errors.Is(err, model.ErrClientNameRequired) {
		t.Errorf("blank client: got %v, want ErrClientNameRequired", err)
	}
	long := strings.Repeat("k", model.MaxKeyLength+1)
	if _, err := s.IssueAPIKey(ctx, long, "acme"); !errors.Is(err, model.ErrKeyTooLong) {
		t.Errorf("long key: got %v, want ErrKeyTooLong", err)
	}
	if _, err := s.IssueAPIKey(ctx, "abc123 ", "acme"); !errors.Is(err, model.ErrKeyWhitespace) {
		t.Errorf("padded key: got %v, want ErrKeyWhitespace", err)
	}

	keys, err := s.ListAPIKeys(ctx, false)
	if err != nil {
		t.Fatalf("ListAPIKeys: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("rejected keys were stored: %+v", keys)
	}
}

func TestKeyLookupsAreExact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.IssueAPIKey(ctx, "abc123", "acme"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	for _, variant := range []string{"ABC123", "abc123 ", " abc123", "Abc123"} {
		res, err := s.AuthenticateAPIKey(ctx, variant)
		if err != nil {
			t.Fatalf("AuthenticateAPIKey(%q): %v", variant, err)
		}
		if res.Valid() {
			t.Errorf("AuthenticateAPIKey(%q) matched abc123", variant)
		}
		if _, err := s.GetAPIKey(ctx, variant); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetAPIKey(%q): got %v, want ErrNotFound", variant, err)
		}
		if err := s.DeactivateAPIKey(ctx, variant); !errors.Is(err, ErrNotFound) {
			t.Errorf("DeactivateAPIKey(%q): got %v, want ErrNotFound", variant, err)
		}
	}

	if _, err := s.IssueAPIKey(ctx, "ABC123", "ACME"); err != nil {
		t.Fatalf("case variants are distinct keys and clients: %v", err)
	}
	res, err := s.AuthenticateAPIKey(ctx, "abc123")
	if err != nil || !res.Valid() {
		t.Fatalf("original key stopped authenticating: valid=%v err=%v", res.Valid(), err)
	}
}

func TestIssueDuplicateKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.IssueAPIKey(ctx, "abc123", "acme"); err != nil {
		t.Fatalf("first issue: %v", err)
	}
	if _, err := s.IssueAPIKey(ctx, "abc123", "globex"); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	// Same key and same client: the key conflict wins.
	if _, err := s.IssueAPIKey(ctx, "abc123", "acme"); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestIssueDuplicateKeyAfterDeactivation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.IssueAPIKey(ctx, "abc123", "acme"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := s.DeactivateAPIKey(ctx, "abc123"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	// Keys are unique for the lifetime of the store, active or not.
	if _, err := s.IssueAPIKey(ctx, "abc123", "acme"); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestIssueDuplicateClient(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.IssueAPIKey(ctx, "abc123", "acme"); err != nil {
		t.Fatalf("first issue: %v", err)
	}
	if _, err := s.IssueAPIKey(ctx, "def456", "acme"); !errors.Is(err, ErrDuplicateClient) {
		t.Fatalf("expected ErrDuplicateClient, got %v", err)
	}

	if err := s.DeactivateAPIKey(ctx, "abc123"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := s.IssueAPIKey(ctx, "def456", "acme"); err != nil {
		t.Fatalf("reissue after deactivation: %v", err)
	}
}

// The partial unique index must reject an active duplicate client even when
// the application-level check is bypassed.
func TestPartialIndexEnforcedByDatabase(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.IssueAPIKey(ctx, "abc123", "acme"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	now := time.Now().UTC()
	_, err := s.insert(ctx, s.db, "api_keys", []string{"key", "client_name", "created_at"}, "raw-1", "acme", now)
	if conflict, ok := s.dialect.apiKeyConflict(err); !ok || conflict != ErrDuplicateClient {
		t.Fatalf("expected client conflict from index, got %v", err)
	}
	_, err = s.insert(ctx, s.db, "api_keys", []string{"key", "client_name", "created_at"}, "abc123", "other", now)
	if conflict, ok := s.dialect.apiKeyConflict(err); !ok || conflict != ErrDuplicateKey {
		t.Fatalf("expected key conflict from index, got %v", err)
	}

	// Deactivated rows do not participate in the client index.
	if err := s.DeactivateAPIKey(ctx, "abc123"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := s.insert(ctx, s.db, "api_keys", []string{"key", "client_name", "created_at"}, "raw-2", "acme", now); err != nil {
		t.Fatalf("insert after deactivation: %v", err)
	}
}

func TestDeactivate(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s := newTestStore(t, WithClock(fakeClock(start)))
	ctx := context.Background()

	issued, err := s.IssueAPIKey(ctx, "abc123", "acme")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if err := s.DeactivateAPIKey(ctx, "abc123"); err != nil {
		t.Fatalf("first deactivate: %v", err)
	}
	if err := s.DeactivateAPIKey(ctx, "abc123"); !errors.Is(err, ErrAlreadyDeactivated) {
		t.Errorf("second deactivate: got %v, want ErrAlreadyDeactivated", err)
	}

	rec, err := s.GetAPIKey(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	if rec.DeactivatedAt == nil {
		t.Fatal("expected deactivated_at to be set")
	}
	if want := start.Add(2 * time.Second); !rec.DeactivatedAt.Equal(want) {
		t.Errorf("DeactivatedAt = %v, want %v", rec.DeactivatedAt, want)
	}
	// Nothing but deactivated_at may change.
	if !rec.CreatedAt.Equal(issued.CreatedAt) || rec.ClientName != "acme" || rec.ID != issued.ID {
		t.Errorf("record changed beyond deactivated_at: %+v vs %+v", rec, issued)
	}
}

func TestDeactivateUnknown(t *testing.T) {
	s := newTestStore(t)
	if err := s.DeactivateAPIKey(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAuthenticateInvalid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"", "missing"} {
		res, err := s.AuthenticateAPIKey(ctx, key)
		if err != nil {
			t.Fatalf("AuthenticateAPIKey(%q): %v", key, err)
		}
		if res.Valid() {
			t.Errorf("AuthenticateAPIKey(%q) should be invalid", key)
		}
	}

	if _, err := s.IssueAPIKey(ctx, "abc123", "acme"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := s.DeactivateAPIKey(ctx, "abc123"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	res, err := s.AuthenticateAPIKey(ctx, "abc123")
	if err != nil {
		t.Fatalf("AuthenticateAPIKey: %v", err)
	}
	if res != model.AuthInvalid {
		t.Errorf("expected AuthInvalid for deactivated key, got %+v", res)
	}
}

func TestKeyLifecycleScenario(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.IssueAPIKey(ctx, "abc123", "acme"); err != nil {
		t.Fatalf("issue abc123: %v", err)
	}

	res, err := s.AuthenticateAPIKey(ctx, "abc123")
	if err != nil || !res.Valid() {
		t.Fatalf("authenticate abc123: valid=%v err=%v", res.Valid(), err)
	}
	if res.Key.ClientName != "acme" {
		t.Errorf("client = %q, want acme", res.Key.ClientName)
	}

	if err := s.DeactivateAPIKey(ctx, "abc123"); err != nil {
		t.Fatalf("deactivate abc123: %v", err)
	}

	res, err = s.AuthenticateAPIKey(ctx, "abc123")
	if err != nil {
		t.Fatalf("authenticate after deactivate: %v", err)
	}
	if res.Valid() {
		t.Error("expected abc123 to be invalid after deactivation")
	}

	if _, err := s.IssueAPIKey(ctx, "xyz999", "acme"); err != nil {
		t.Fatalf("reissue for acme: %v", err)
	}
}

func TestListAPIKeys(t *testing.T) {
	s := newTestStore(t, WithClock(fakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))
	ctx := context.Background()

	for i, client := range []string{"acme", "globex", "initech"} {
		if _, err := s.IssueAPIKey(ctx, fmt.Sprintf("key-%d", i), client); err != nil {
			t.Fatalf("issue %s: %v", client, err)
		}
	}
	if err := s.DeactivateAPIKey(ctx, "key-1"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	all, err := s.ListAPIKeys(ctx, false)
	if err != nil {
		t.Fatalf("ListAPIKeys: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d keys, want 3", len(all))
	}
	if all[0].ClientName != "initech" {
		t.Errorf("expected newest first, got %q", all[0].ClientName)
	}

	active, err := s.ListAPIKeys(ctx, true)
	if err != nil {
		t.Fatalf("ListAPIKeys(active): %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("got %d active keys, want 2", len(active))
	}
	for _, k := range active {
		if k.ClientName == "globex" {
			t.Error("deactivated key listed as active")
		}
	}
}

func TestConcurrentIssueSameKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.IssueAPIKey(ctx, "shared-key", fmt.Sprintf("client-%d", i))
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrDuplicateKey):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != workers-1 {
		t.Errorf("got %d successes and %d duplicates, want 1 and %d", ok, dup, workers-1)
	}
}

func TestConcurrentIssueSameClient(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.IssueAPIKey(ctx, fmt.Sprintf("key-%d", i), "acme")
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrDuplicateClient):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != workers-1 {
		t.Errorf("got %d successes and %d duplicates, want 1 and %d", ok, dup, workers-1)
	}
}

func TestConcurrentDeactivate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.IssueAPIKey(ctx, "abc123", "acme"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.DeactivateAPIKey(ctx, "abc123")
		}(i)
	}
	wg.Wait()

	var ok, already int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyDeactivated):
			already++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || already != workers-1 {
		t.Errorf("got %d successes and %d already-deactivated, want 1 and %d", ok, already, workers-1)
	}
}

func TestFileBackedStore(t *testing.T) {
	dsn := t.TempDir() + "/data/widgets.db"
	ctx := context.Background()

	s, err := Open(ctx, Config{Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.IssueAPIKey(ctx, "abc123", "acme"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	s.Close()

	reopened, err := Open(ctx, Config{Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	res, err := reopened.AuthenticateAPIKey(ctx, "abc123")
	if err != nil || !res.Valid() {
		t.Fatalf("expected key to survive reopen: valid=%v err=%v", res.Valid(), err)
	}
}
