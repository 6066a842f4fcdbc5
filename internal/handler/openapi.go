package handler

import (
	"net/http"
	"strings"

	"github.com/faucetdb/widgets/internal/openapi"
)

// OpenAPIHandler serves the OpenAPI 3.1 document for this server.
type OpenAPIHandler struct {
	opts openapi.Options
}

// NewOpenAPIHandler creates a new OpenAPIHandler. BaseURL is filled in per
// request when opts leaves it empty.
func NewOpenAPIHandler(opts openapi.Options) *OpenAPIHandler {
	return &OpenAPIHandler{opts: opts}
}

// ServeSpec returns the OpenAPI document.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	opts := h.opts
	if opts.BaseURL == "" {
		opts.BaseURL = baseURL(r)
	}
	writeJSON(w, http.StatusOK, openapi.Generate(opts))
}

// baseURL reconstructs the externally visible base URL of the request.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	return scheme + "://" + r.Host
}
