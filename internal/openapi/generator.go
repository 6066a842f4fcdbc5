package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// Options controls what the generated document describes.
type Options struct {
	BaseURL      string
	Version      string
	APIKeyHeader string // defaults to X-API-Key
	// IncludeSystem adds the admin provisioning endpoints. The server only
	// mounts them when a JWT secret is configured.
	IncludeSystem bool
}

var widgetColumns = []Column{
	{Name: "id", SQLType: "bigint"},
	{Name: "name", SQLType: "varchar(255)"},
	{Name: "price_cents", SQLType: "bigint", Description: "Price in cents."},
	{Name: "widget_status_id", SQLType: "bigint"},
	{Name: "status", SQLType: "varchar(255)", Description: "Name of the widget status."},
	{Name: "created_at", SQLType: "timestamp(6)"},
	{Name: "updated_at", SQLType: "timestamp(6)"},
}

var ratingColumns = []Column{
	{Name: "id", SQLType: "bigint"},
	{Name: "widget_id", SQLType: "bigint"},
	{Name: "rating", SQLType: "integer", Description: "Between 1 and 5."},
	{Name: "created_at", SQLType: "timestamp(6)"},
}

var apiKeyColumns = []Column{
	{Name: "id", SQLType: "bigint"},
	{Name: "client_name", SQLType: "varchar(255)"},
	{Name: "key_prefix", SQLType: "varchar(8)", Description: "First characters of the key."},
	{Name: "active", SQLType: "boolean"},
	{Name: "created_at", SQLType: "timestamp(6)"},
	{Name: "deactivated_at", SQLType: "timestamp(6)", Nullable: true},
}

// Generate builds the OpenAPI 3.1 document for the widgets HTTP API.
func Generate(opts Options) *openapi3.T {
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}
	if opts.APIKeyHeader == "" {
		opts.APIKeyHeader = "X-API-Key"
	}

	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Widgets API",
			Description: "Widgets and widget ratings, gated by API keys.",
			Version:     opts.Version,
		},
	}
	if opts.BaseURL != "" {
		doc.Servers = openapi3.Servers{{URL: opts.BaseURL}}
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["apiKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "header",
			Name: opts.APIKeyHeader,
		},
	}
	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}

	doc.Components.Schemas["ErrorResponse"] = errorSchema()
	doc.Components.Schemas["Widget"] = columnsToSchema(widgetColumns)
	doc.Components.Schemas["WidgetRating"] = columnsToSchema(ratingColumns)
	doc.Components.Schemas["APIKey"] = columnsToSchema(apiKeyColumns)

	doc.Paths = openapi3.NewPaths()
	apiKeyAuth := &openapi3.SecurityRequirements{{"apiKey": {}}}
	adminAuth := &openapi3.SecurityRequirements{{"bearerAuth": {}}}

	doc.Paths.Set("/widgets", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"widgets"},
			Summary:     "List widgets",
			OperationID: "listWidgets",
			Security:    apiKeyAuth,
			Responses:   newResponses("200", "List of widgets", listSchema("#/components/schemas/Widget")),
		},
	})
	doc.Paths.Set("/widgets/{id}", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"widgets"},
			Summary:     "Get a widget",
			OperationID: "getWidget",
			Security:    apiKeyAuth,
			Parameters:  openapi3.Parameters{idParameter()},
			Responses:   newResponses("200", "The widget", openapi3.NewSchemaRef("#/components/schemas/Widget", nil)),
		},
	})
	doc.Paths.Set("/widget_ratings", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"widget ratings"},
			Summary:     "Rate a widget",
			OperationID: "createWidgetRating",
			Security:    apiKeyAuth,
			RequestBody: jsonBody("Rating to record", objectSchema(map[string]*openapi3.Schema{
				"widget_id": columnTypeSchema(MapDBType("bigint")),
				"rating":    columnTypeSchema(MapDBType("integer")),
			}, "widget_id", "rating")),
			Responses: newResponses("201", "Rating created", openapi3.NewSchemaRef("#/components/schemas/WidgetRating", nil)),
		},
	})

	noAuth := &openapi3.SecurityRequirements{}
	doc.Paths.Set("/healthz", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags: []string{"health"}, Summary: "Liveness probe", OperationID: "healthz", Security: noAuth,
			Responses: newResponses("200", "Process is running", statusSchema()),
		},
	})
	doc.Paths.Set("/readyz", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags: []string{"health"}, Summary: "Readiness probe", OperationID: "readyz", Security: noAuth,
			Responses: newResponses("200", "Key store is reachable", statusSchema()),
		},
	})

	if opts.IncludeSystem {
		addSystemPaths(doc, adminAuth)
	}
	return doc
}

// addSystemPaths documents the admin provisioning API under /api/v1/system.
func addSystemPaths(doc *openapi3.T, security *openapi3.SecurityRequirements) {
	doc.Paths.Set("/api/v1/system/api-key", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "List API keys, including deactivated ones",
			OperationID: "listAPIKeys",
			Security:    security,
			Parameters: openapi3.Parameters{{Value: openapi3.NewQueryParameter("active").
				WithDescription("Only list active keys.").
				WithSchema(openapi3.NewBoolSchema())}},
			Responses: newResponses("200", "List of API keys", listSchema("#/components/schemas/APIKey")),
		},
		Post: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "Issue an API key",
			Description: "Issues a key for client_name. A random key is generated when key is omitted. Fails with 409 when the key was ever issued or the client already holds an active key.",
			OperationID: "issueAPIKey",
			Security:    security,
			RequestBody: jsonBody("Key to issue", objectSchema(map[string]*openapi3.Schema{
				"client_name": columnTypeSchema(MapDBType("varchar")),
				"key":         columnTypeSchema(MapDBType("varchar")),
			}, "client_name")),
			Responses: withConflict(newResponses("201", "Key issued", objectSchema(map[string]*openapi3.Schema{
				"id":          columnTypeSchema(MapDBType("bigint")),
				"api_key":     columnTypeSchema(MapDBType("varchar")),
				"key_prefix":  columnTypeSchema(MapDBType("varchar")),
				"client_name": columnTypeSchema(MapDBType("varchar")),
				"created_at":  columnTypeSchema(MapDBType("timestamp")),
			}).NewRef())),
		},
	})
	doc.Paths.Set("/api/v1/system/api-key/deactivate", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "Deactivate an API key",
			Description: "Permanently invalidates the key. Deactivating a key twice fails with 409.",
			OperationID: "deactivateAPIKey",
			Security:    security,
			RequestBody: jsonBody("Key to deactivate", objectSchema(map[string]*openapi3.Schema{
				"key": columnTypeSchema(MapDBType("varchar")),
			}, "key")),
			Responses: withConflict(newResponses("200", "Key deactivated", statusSchema())),
		},
	})
	doc.Paths.Set("/api/v1/system/widget", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "Create a widget in the Fresh status",
			OperationID: "createWidget",
			Security:    security,
			RequestBody: jsonBody("Widget to create", objectSchema(map[string]*openapi3.Schema{
				"name":        columnTypeSchema(MapDBType("varchar")),
				"price_cents": columnTypeSchema(MapDBType("bigint")),
			}, "name", "price_cents")),
			Responses: newResponses("201", "Widget created", openapi3.NewSchemaRef("#/components/schemas/Widget", nil)),
		},
	})
}

// columnsToSchema converts resource columns into an object schema.
func columnsToSchema(columns []Column) *openapi3.SchemaRef {
	props := openapi3.Schemas{}
	var required []string
	for _, col := range columns {
		s := columnTypeSchema(MapDBType(col.SQLType))
		s.Description = col.Description
		if col.Nullable {
			s.Type = &openapi3.Types{s.Type.Slice()[0], "null"}
		} else {
			required = append(required, col.Name)
		}
		props[col.Name] = s.NewRef()
	}
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:       &openapi3.Types{"object"},
			Properties: props,
			Required:   required,
		},
	}
}

func columnTypeSchema(m TypeMapping) *openapi3.Schema {
	s := &openapi3.Schema{
		Type: &openapi3.Types{m.Type},
	}
	if m.Format != "" {
		s.Format = m.Format
	}
	return s
}

func objectSchema(props map[string]*openapi3.Schema, required ...string) *openapi3.Schema {
	s := &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: openapi3.Schemas{},
		Required:   required,
	}
	for name, p := range props {
		s.Properties[name] = p.NewRef()
	}
	return s
}

func jsonBody(description string, schema *openapi3.Schema) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Description: description,
			Required:    true,
			Content:     openapi3.NewContentWithJSONSchema(schema),
		},
	}
}

func idParameter() *openapi3.ParameterRef {
	return &openapi3.ParameterRef{
		Value: openapi3.NewPathParameter("id").
			WithDescription("Widget ID").
			WithSchema(columnTypeSchema(MapDBType("bigint"))),
	}
}

// listSchema describes the {"resource": [...], "meta": {"count": n}} envelope.
func listSchema(itemRef string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"resource": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:  &openapi3.Types{"array"},
						Items: openapi3.NewSchemaRef(itemRef, nil),
					},
				},
				"meta": metaSchema(),
			},
		},
	}
}

func statusSchema() *openapi3.SchemaRef {
	return objectSchema(map[string]*openapi3.Schema{
		"status": columnTypeSchema(MapDBType("text")),
	}).NewRef()
}

func errorSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"error": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: openapi3.Schemas{
							"code":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
							"message": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
							"context": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
						},
					},
				},
			},
		},
	}
}

// newResponses builds a Responses map with a success response and standard error responses.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: openapi3.NewResponse().
			WithDescription(description).
			WithContent(openapi3.NewContentWithJSONSchemaRef(schema)),
	})

	errorRef := openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil)
	for _, e := range []struct{ code, desc string }{
		{"400", "Bad request"},
		{"401", "Unauthorized"},
		{"404", "Not found"},
		{"503", "Key store unavailable"},
	} {
		responses.Set(e.code, &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription(e.desc).
				WithContent(openapi3.NewContentWithJSONSchemaRef(errorRef)),
		})
	}
	return responses
}

func withConflict(responses *openapi3.Responses) *openapi3.Responses {
	responses.Set("409", &openapi3.ResponseRef{
		Value: openapi3.NewResponse().
			WithDescription("Conflict").
			WithContent(openapi3.NewContentWithJSONSchemaRef(
				openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil))),
	})
	return responses
}

// metaSchema returns the schema for the "meta" field in list responses.
func metaSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"count": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:        &openapi3.Types{"integer"},
						Format:      "int64",
						Description: "Number of records returned.",
					},
				},
			},
		},
	}
}
