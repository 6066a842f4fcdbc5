package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/faucetdb/widgets/internal/model"
	"github.com/faucetdb/widgets/internal/service"
	"github.com/faucetdb/widgets/internal/store"
)

// SystemHandler is the admin provisioning API: issuing and deactivating API
// keys and creating widgets.
type SystemHandler struct {
	store   *store.Store
	creator *service.WidgetCreator
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(store *store.Store, creator *service.WidgetCreator) *SystemHandler {
	return &SystemHandler{store: store, creator: creator}
}

// ---------------------------------------------------------------------------
// API Key management
// ---------------------------------------------------------------------------

// apiKeyToMap renders a key record without the raw key.
func apiKeyToMap(k *model.APIKey) map[string]interface{} {
	return map[string]interface{}{
		"id":             k.ID,
		"client_name":    k.ClientName,
		"key_prefix":     k.Prefix(),
		"active":         k.IsActive(),
		"created_at":     k.CreatedAt,
		"deactivated_at": k.DeactivatedAt,
	}
}

// ListAPIKeys returns all API keys, newest first. Deactivated keys are kept
// for audit; pass ?active=true to hide them.
// GET /api/v1/system/api-key
func (h *SystemHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListAPIKeys(r.Context(), queryBool(r, "active"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list API keys: "+err.Error())
		return
	}

	resources := make([]map[string]interface{}, 0, len(keys))
	for i := range keys {
		resources = append(resources, apiKeyToMap(&keys[i]))
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resources,
		Meta:     &model.ResponseMeta{Count: len(resources)},
	})
}

// createAPIKeyRequest is the expected payload for CreateAPIKey. Key is
// optional; a random one is generated when it is empty.
type createAPIKeyRequest struct {
	ClientName string `json:"client_name"`
	Key        string `json:"key"`
}

// createAPIKeyResponse includes the plaintext key.
type createAPIKeyResponse struct {
	ID         int64     `json:"id"`
	Key        string    `json:"api_key"`
	KeyPrefix  string    `json:"key_prefix"`
	ClientName string    `json:"client_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateAPIKey issues a key for a client.
// POST /api/v1/system/api-key
func (h *SystemHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	key := req.Key
	if key == "" {
		generated, err := service.GenerateAPIKey()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		key = generated
	}

	rec, err := h.store.IssueAPIKey(r.Context(), key, req.ClientName)
	if err != nil {
		switch {
		case model.IsInvalidKey(err):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrDuplicateKey):
			writeError(w, http.StatusConflict, "API key already exists")
		case errors.Is(err, store.ErrDuplicateClient):
			writeError(w, http.StatusConflict, "Client already has an active API key",
				map[string]interface{}{"client_name": req.ClientName})
		default:
			writeError(w, http.StatusInternalServerError, "Failed to issue API key: "+err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, createAPIKeyResponse{
		ID:         rec.ID,
		Key:        rec.Key,
		KeyPrefix:  rec.Prefix(),
		ClientName: rec.ClientName,
		CreatedAt:  rec.CreatedAt,
	})
}

type deactivateAPIKeyRequest struct {
	Key string `json:"key"`
}

// DeactivateAPIKey permanently invalidates a key. The key travels in the body
// rather than the path so it does not end up in access logs.
// POST /api/v1/system/api-key/deactivate
func (h *SystemHandler) DeactivateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req deactivateAPIKeyRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, model.ErrKeyRequired.Error())
		return
	}

	if err := h.store.DeactivateAPIKey(r.Context(), req.Key); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "API key not found")
		case errors.Is(err, store.ErrAlreadyDeactivated):
			writeError(w, http.StatusConflict, "API key already deactivated")
		default:
			writeError(w, http.StatusInternalServerError, "Failed to deactivate API key: "+err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"key_prefix": model.KeyPrefix(req.Key),
	})
}

// ---------------------------------------------------------------------------
// Widget management
// ---------------------------------------------------------------------------

type createWidgetRequest struct {
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
}

// CreateWidget creates a widget in the Fresh status.
// POST /api/v1/system/widget
func (h *SystemHandler) CreateWidget(w http.ResponseWriter, r *http.Request) {
	var req createWidgetRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res, err := h.creator.CreateWidget(r.Context(), &model.Widget{Name: req.Name, PriceCents: req.PriceCents})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusInternalServerError,
				"Widget status "+model.StatusFresh+" is missing; run 'widgets db seed'")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create widget: "+err.Error())
		return
	}
	if !res.Created {
		writeError(w, http.StatusUnprocessableEntity, "Widget is invalid",
			map[string]interface{}{"errors": errorStrings(res.Widget.Validate())})
		return
	}
	writeJSON(w, http.StatusCreated, res.Widget)
}
