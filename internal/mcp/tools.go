package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/faucetdb/widgets/internal/model"
	"github.com/faucetdb/widgets/internal/store"
)

// registerTools registers all widgets MCP tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- API keys -----

	srv.AddTool(
		mcp.NewTool("widgets_check_api_key",
			mcp.WithDescription(
				"Check whether an API key is currently accepted by the widgets API. "+
					"Returns the owning client name and creation time for an active key, "+
					"or valid=false for an unknown or deactivated key.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("key",
				mcp.Required(),
				mcp.Description("The API key exactly as a client would present it"),
			),
		),
		s.handleCheckAPIKey,
	)

	srv.AddTool(
		mcp.NewTool("widgets_list_api_keys",
			mcp.WithDescription(
				"List issued API keys, newest first. Deactivated keys are kept forever "+
					"and included unless active_only is set. Raw keys are never returned, "+
					"only an 8 character prefix.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithBoolean("active_only",
				mcp.Description("Only return keys that can still authenticate"),
			),
		),
		s.handleListAPIKeys,
	)

	// ----- Widgets -----

	srv.AddTool(
		mcp.NewTool("widgets_list_widgets",
			mcp.WithDescription(
				"List widgets with their price in cents and status name.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of widgets to return (default 100, max 1000)"),
			),
		),
		s.handleListWidgets,
	)

	srv.AddTool(
		mcp.NewTool("widgets_get_widget",
			mcp.WithDescription(
				"Get a single widget by ID, including its ratings.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithNumber("id",
				mcp.Required(),
				mcp.Description("Widget ID"),
			),
		),
		s.handleGetWidget,
	)
}

type apiKeyInfo struct {
	ID            int64      `json:"id"`
	KeyPrefix     string     `json:"key_prefix"`
	ClientName    string     `json:"client_name"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

func toAPIKeyInfo(k *model.APIKey) apiKeyInfo {
	return apiKeyInfo{
		ID:            k.ID,
		KeyPrefix:     k.Prefix(),
		ClientName:    k.ClientName,
		Active:        k.IsActive(),
		CreatedAt:     k.CreatedAt,
		DeactivatedAt: k.DeactivatedAt,
	}
}

// handleCheckAPIKey authenticates a key the same way the HTTP middleware does.
func (s *MCPServer) handleCheckAPIKey(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	key, err := requireString(request, "key")
	if err != nil {
		return toolError("%v", err)
	}

	result, err := s.store.AuthenticateAPIKey(ctx, key)
	if err != nil {
		return toolError("Key store unavailable: %v", err)
	}
	if !result.Valid() {
		return successJSON(map[string]interface{}{
			"valid":      false,
			"key_prefix": model.KeyPrefix(key),
		})
	}

	return successJSON(map[string]interface{}{
		"valid":   true,
		"api_key": toAPIKeyInfo(result.Key),
	})
}

// handleListAPIKeys returns the key audit trail without raw keys.
func (s *MCPServer) handleListAPIKeys(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	keys, err := s.store.ListAPIKeys(ctx, request.GetBool("active_only", false))
	if err != nil {
		return toolError("Failed to list API keys: %v", err)
	}

	items := make([]apiKeyInfo, len(keys))
	for i := range keys {
		items[i] = toAPIKeyInfo(&keys[i])
	}
	return successJSON(items)
}

// handleListWidgets returns up to limit widgets.
func (s *MCPServer) handleListWidgets(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	limit := clamp(optionalInt(request, "limit", 100), 1, 1000)

	widgets, err := s.store.ListWidgets(ctx)
	if err != nil {
		return toolError("Failed to list widgets: %v", err)
	}
	if len(widgets) > limit {
		widgets = widgets[:limit]
	}
	return successJSON(map[string]interface{}{
		"widgets": widgets,
		"count":   len(widgets),
	})
}

// handleGetWidget returns one widget and its ratings.
func (s *MCPServer) handleGetWidget(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	id := optionalInt(request, "id", 0)
	if id <= 0 {
		return toolError("missing required parameter %q", "id")
	}

	widget, err := s.store.GetWidget(ctx, int64(id))
	if errors.Is(err, store.ErrNotFound) {
		return toolError("Widget %d not found. Use widgets_list_widgets to see available IDs.", id)
	}
	if err != nil {
		return toolError("Failed to get widget %d: %v", id, err)
	}

	ratings, err := s.store.ListWidgetRatings(ctx, widget.ID)
	if err != nil {
		return toolError("Failed to list ratings for widget %d: %v", id, err)
	}
	return successJSON(map[string]interface{}{
		"widget":  widget,
		"ratings": ratings,
	})
}
