package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/faucetdb/widgets/internal/model"
	"github.com/faucetdb/widgets/internal/openapi"
	"github.com/faucetdb/widgets/internal/service"
	"github.com/faucetdb/widgets/internal/store"
)

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	store  *store.Store
	router chi.Router
}

// newTestEnv creates a fresh test environment with an in-memory store and a
// Chi router with every handler mounted (no auth middleware).
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s, err := store.Open(context.Background(), store.Config{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	widgetHandler := NewWidgetHandler(s)
	sysHandler := NewSystemHandler(s, service.NewWidgetCreator(s, nil))
	openAPIHandler := NewOpenAPIHandler(openapi.Options{IncludeSystem: true})

	r := chi.NewRouter()
	r.Get("/openapi.json", openAPIHandler.ServeSpec)
	r.Get("/widgets", widgetHandler.ListWidgets)
	r.Get("/widgets/{id}", widgetHandler.GetWidget)
	r.Post("/widget_ratings", widgetHandler.CreateRating)
	r.Route("/api/v1/system", func(r chi.Router) {
		r.Get("/api-key", sysHandler.ListAPIKeys)
		r.Post("/api-key", sysHandler.CreateAPIKey)
		r.Post("/api-key/deactivate", sysHandler.DeactivateAPIKey)
		r.Post("/widget", sysHandler.CreateWidget)
	})

	return &testEnv{store: s, router: r}
}

// seedWidget stores a Fresh widget and returns it.
func (e *testEnv) seedWidget(t *testing.T, name string, price int64) *model.Widget {
	t.Helper()
	ctx := context.Background()
	st, err := e.store.EnsureWidgetStatus(ctx, model.StatusFresh)
	if err != nil {
		t.Fatalf("EnsureWidgetStatus: %v", err)
	}
	w := &model.Widget{Name: name, PriceCents: price, WidgetStatusID: st.ID}
	if err := e.store.CreateWidget(ctx, w); err != nil {
		t.Fatalf("CreateWidget: %v", err)
	}
	return w
}

// do executes an HTTP request against the test router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}
