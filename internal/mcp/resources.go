package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	clientsURI        = "widgets://clients"
	widgetURIPrefix   = "widgets://widget/"
	widgetURITemplate = widgetURIPrefix + "{id}"
)

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that LLM clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {

	srv.AddResource(
		mcp.NewResource(
			clientsURI,
			"Active API Clients",
			mcp.WithResourceDescription(
				"Client names that currently hold an active API key.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleClientsResource,
	)

	srv.AddResourceTemplate(
		mcp.NewResourceTemplate(
			widgetURITemplate,
			"Widget",
			mcp.WithTemplateDescription("A single widget by ID."),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleWidgetResource,
	)
}

// handleClientsResource returns the sorted names of clients with an active key.
func (s *MCPServer) handleClientsResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	keys, err := s.store.ListAPIKeys(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}

	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.ClientName
	}
	return jsonContents(clientsURI, names)
}

// handleWidgetResource returns the widget named by a widgets://widget/{id} URI.
func (s *MCPServer) handleWidgetResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	uri := request.Params.URI
	raw := strings.TrimPrefix(uri, widgetURIPrefix)
	id, err := strconv.ParseInt(raw, 10, 64)
	if raw == uri || err != nil || id <= 0 {
		return nil, fmt.Errorf("invalid widget URI %q: expected %s", uri, widgetURITemplate)
	}

	widget, err := s.store.GetWidget(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("widget %d: %w", id, err)
	}
	return jsonContents(uri, widget)
}

func jsonContents(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
