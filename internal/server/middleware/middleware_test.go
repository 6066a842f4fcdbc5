package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/faucetdb/widgets/internal/model"
	"github.com/faucetdb/widgets/internal/service"
)

// fakeKeys is an in-memory KeyAuthenticator.
type fakeKeys struct {
	keys map[string]*model.APIKey
	err  error
}

func (f *fakeKeys) AuthenticateAPIKey(ctx context.Context, key string) (model.AuthResult, error) {
	if f.err != nil {
		return model.AuthInvalid, f.err
	}
	k, ok := f.keys[key]
	if !ok || !k.IsActive() {
		return model.AuthInvalid, nil
	}
	return model.AuthResult{Key: k}, nil
}

func newFakeAuth(err error) *service.AuthService {
	deactivated := time.Now()
	keys := &fakeKeys{
		keys: map[string]*model.APIKey{
			"abc123": {ID: 1, Key: "abc123", ClientName: "acme"},
			"old999": {ID: 2, Key: "old999", ClientName: "globex", DeactivatedAt: &deactivated},
		},
		err: err,
	}
	return service.NewAuthService(keys, "middleware-test-secret", nil)
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var resp model.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rr.Body.String(), err)
	}
	return resp
}

// ---------------------------------------------------------------------------
// RequestID middleware tests
// ---------------------------------------------------------------------------

func TestRequestIDGeneratesUUID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetRequestID(r.Context()) == "" {
			t.Error("expected non-empty request ID in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-ID")
	// UUID v7 format check: 36 chars with dashes
	if len(respID) != 36 {
		t.Errorf("expected UUID-length request ID, got %q (len=%d)", respID, len(respID))
	}
}

func TestRequestIDPreservesClientID(t *testing.T) {
	clientID := "my-custom-trace-id-123"

	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := GetRequestID(r.Context()); id != clientID {
			t.Errorf("expected context ID %q, got %q", clientID, id)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", clientID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if respID := rr.Header().Get("X-Request-ID"); respID != clientID {
		t.Errorf("expected response X-Request-ID %q, got %q", clientID, respID)
	}
}

func TestRequestIDReplacesUnsafeClientID(t *testing.T) {
	for _, id := range []string{strings.Repeat("a", 200), "has space", "tab\there"} {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Request-ID", id)
		rr := httptest.NewRecorder()
		RequestID(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)

		if got := rr.Header().Get("X-Request-ID"); got == id || len(got) != 36 {
			t.Errorf("client ID %q was not replaced, got %q", id, got)
		}
	}
}

func TestGetRequestIDEmptyContext(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("expected empty string from bare context, got %q", id)
	}
}

// ---------------------------------------------------------------------------
// RequireAPIKey middleware tests
// ---------------------------------------------------------------------------

func TestRequireAPIKeyAllowsActiveKey(t *testing.T) {
	handler := RequireAPIKey(newFakeAuth(nil), "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		k := GetAPIKey(r.Context())
		if k == nil || k.ClientName != "acme" {
			t.Errorf("expected acme key in context, got %+v", k)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/widgets", nil)
	req.Header.Set("X-API-Key", "abc123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestRequireAPIKeyRejects(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"missing", ""},
		{"unknown", "nope"},
		{"deactivated", "old999"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireAPIKey(newFakeAuth(nil), "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("inner handler should not be called")
			}))

			req := httptest.NewRequest("GET", "/widgets", nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
			if resp := decodeError(t, rr); resp.Error.Code != http.StatusUnauthorized {
				t.Errorf("error code = %d, want 401", resp.Error.Code)
			}
		})
	}
}

func TestRequireAPIKeyCustomHeader(t *testing.T) {
	handler := RequireAPIKey(newFakeAuth(nil), "X-Widgets-Key")(http.HandlerFunc(okHandler))

	req := httptest.NewRequest("GET", "/widgets", nil)
	req.Header.Set("X-API-Key", "abc123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("default header should be ignored, got %d", rr.Code)
	}

	req = httptest.NewRequest("GET", "/widgets", nil)
	req.Header.Set("X-Widgets-Key", "abc123")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 with custom header, got %d", rr.Code)
	}
}

func TestRequireAPIKeyStoreFailure(t *testing.T) {
	handler := RequireAPIKey(newFakeAuth(errors.New("db down")), "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("inner handler should not be called")
	}))

	req := httptest.NewRequest("GET", "/widgets", nil)
	req.Header.Set("X-API-Key", "abc123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// RequireAdmin middleware tests
// ---------------------------------------------------------------------------

func TestRequireAdminAllowsAdmins(t *testing.T) {
	auth := newFakeAuth(nil)
	token, err := auth.IssueJWT(context.Background(), "ops", time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}

	handler := RequireAdmin(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := GetAdmin(r.Context()); p == nil || p.Subject != "ops" {
			t.Errorf("expected admin principal in context, got %+v", p)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/v1/system/api-key", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestRequireAdminBlocksAPIKeys(t *testing.T) {
	handler := RequireAdmin(newFakeAuth(nil))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("inner handler should not be called for API key callers")
	}))

	req := httptest.NewRequest("GET", "/api/v1/system/api-key", nil)
	req.Header.Set("X-API-Key", "abc123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestRequireAdminBlocksInvalidToken(t *testing.T) {
	handler := RequireAdmin(newFakeAuth(nil))(http.HandlerFunc(okHandler))

	req := httptest.NewRequest("GET", "/api/v1/system/api-key", nil)
	req.Header.Set("Authorization", "Bearer garbage.token.here")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestGetAPIKeyWithoutValue(t *testing.T) {
	if GetAPIKey(context.Background()) != nil {
		t.Error("expected nil key from bare context")
	}
	if GetAdmin(context.Background()) != nil {
		t.Error("expected nil admin from bare context")
	}
}

// ---------------------------------------------------------------------------
// Logger and rate limit tests
// ---------------------------------------------------------------------------

func TestLoggerRecordsClientNotKey(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := Logger(logger)(RequireAPIKey(newFakeAuth(nil), "")(http.HandlerFunc(okHandler)))

	req := httptest.NewRequest("GET", "/widgets", nil)
	req.Header.Set("X-API-Key", "abc123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if !strings.Contains(out, `"client_name":"acme"`) {
		t.Errorf("expected client_name in log line, got %q", out)
	}
	if strings.Contains(out, "abc123") {
		t.Errorf("raw key leaked into log line: %q", out)
	}
	if !strings.Contains(out, `"status":200`) {
		t.Errorf("expected status in log line, got %q", out)
	}
}

func TestRateLimitByClient(t *testing.T) {
	handler := RequireAPIKey(newFakeAuth(nil), "")(RateLimitByClient(2)(http.HandlerFunc(okHandler)))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/widgets", nil)
		req.Header.Set("X-API-Key", "abc123")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("first two requests should pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third request should be limited, got %v", codes)
	}
}
