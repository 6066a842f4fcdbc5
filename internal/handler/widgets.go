package handler

import (
	"errors"
	"net/http"

	"github.com/faucetdb/widgets/internal/model"
	"github.com/faucetdb/widgets/internal/store"
)

// WidgetHandler serves the API-key gated widget endpoints.
type WidgetHandler struct {
	store *store.Store
}

// NewWidgetHandler creates a new WidgetHandler.
func NewWidgetHandler(store *store.Store) *WidgetHandler {
	return &WidgetHandler{store: store}
}

// ListWidgets returns every widget.
// GET /widgets
func (h *WidgetHandler) ListWidgets(w http.ResponseWriter, r *http.Request) {
	widgets, err := h.store.ListWidgets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list widgets: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: widgets,
		Meta:     &model.ResponseMeta{Count: len(widgets)},
	})
}

// GetWidget returns a single widget.
// GET /widgets/{id}
func (h *WidgetHandler) GetWidget(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	widget, err := h.store.GetWidget(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Widget not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get widget: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, widget)
}

type createRatingRequest struct {
	WidgetID int64 `json:"widget_id"`
	Rating   int   `json:"rating"`
}

// CreateRating records a rating for an existing widget.
// POST /widget_ratings
func (h *WidgetHandler) CreateRating(w http.ResponseWriter, r *http.Request) {
	var req createRatingRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	rating := &model.WidgetRating{WidgetID: req.WidgetID, Rating: req.Rating}
	if err := h.store.CreateWidgetRating(r.Context(), rating); err != nil {
		switch {
		case errors.Is(err, model.ErrWidgetIDRequired), errors.Is(err, model.ErrRatingOutOfRange):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "Widget not found")
		default:
			writeError(w, http.StatusInternalServerError, "Failed to create rating: "+err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, rating)
}
