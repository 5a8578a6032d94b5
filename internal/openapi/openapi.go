// Package openapi generates the OpenAPI 3.1 document describing the gateway
// surface, served at /openapi.json.
package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// Version is the API document version; kept in lockstep with releases.
const Version = "1.0.0"

// Generate builds the OpenAPI document for the public gateway and operator
// surfaces.
func Generate(baseURL string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Zapgate API",
			Description: "Multi-tenant WhatsApp messaging gateway.",
			Version:     Version,
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["apiKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			Description:  "Connection API key (zpg_…), issued by an operator.",
			BearerFormat: "opaque",
		},
	}
	doc.Components.SecuritySchemes["sessionAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
			Description:  "Operator session token from POST /admin/v1/session.",
		},
	}

	doc.Components.Schemas["ErrorResponse"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"success": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
				"error":   &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Description: "Machine-readable error kind."}},
				"message": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
			},
		},
	}
	doc.Components.Schemas["SuccessResponse"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"success":   &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
				"message":   &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"data":      &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
				"timestamp": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}},
			},
		},
	}
	doc.Components.Schemas["SendTextRequest"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:     &openapi3.Types{"object"},
			Required: []string{"number", "message"},
			Properties: openapi3.Schemas{
				"number":                   &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Description: "Destination phone number in E.164-ish form."}},
				"message":                  &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"delay":                    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Description: "Typing simulation delay in milliseconds."}},
				"forward":                  &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
				"link_preview":             &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
				"link_preview_title":       &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"link_preview_description": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"link_preview_image":       &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"link_preview_large":       &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
				"mentions":                 &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Description: "Comma-separated phone numbers to mention."}},
				"read":                     &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
				"read_messages":            &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
			},
		},
	}

	doc.Paths = openapi3.NewPaths()

	successRef := openapi3.NewSchemaRef("#/components/schemas/SuccessResponse", nil)

	doc.Paths.Set("/v1/messages/send-text", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"messages"},
			Summary:     "Send a text message",
			OperationID: "send_text",
			Security:    &openapi3.SecurityRequirements{{"apiKey": {}}},
			RequestBody: &openapi3.RequestBodyRef{
				Value: &openapi3.RequestBody{
					Required: true,
					Content: openapi3.NewContentWithJSONSchemaRef(
						openapi3.NewSchemaRef("#/components/schemas/SendTextRequest", nil)),
				},
			},
			Responses: newResponses("200", "Message accepted by the provider", successRef),
		},
	})

	doc.Paths.Set("/v1/messages/status/{messageId}", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"messages"},
			Summary:     "Fetch message delivery status",
			OperationID: "message_status",
			Security:    &openapi3.SecurityRequirements{{"apiKey": {}}},
			Parameters: openapi3.Parameters{
				&openapi3.ParameterRef{Value: openapi3.NewPathParameter("messageId").
					WithSchema(openapi3.NewStringSchema())},
			},
			Responses: newResponses("200", "Delivery status", successRef),
		},
	})

	doc.Paths.Set("/v1/connection/info", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"connection"},
			Summary:     "Connection metadata and usage counters",
			OperationID: "connection_info",
			Security:    &openapi3.SecurityRequirements{{"apiKey": {}}},
			Responses:   newResponses("200", "Connection info", successRef),
		},
	})

	doc.Paths.Set("/health", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "Liveness probe",
			OperationID: "health",
			Responses:   newResponses("200", "Service is up", successRef),
		},
	})

	doc.Paths.Set("/webhooks/billing", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"billing"},
			Summary:     "Billing subscription event callback",
			OperationID: "billing_webhook",
			Responses:   newResponses("200", "Event accepted", successRef),
		},
	})

	doc.Paths.Set("/admin/v1/session", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"admin"},
			Summary:     "Operator login",
			OperationID: "admin_login",
			Responses:   newResponses("200", "Session token issued", successRef),
		},
	})

	doc.Paths.Set("/admin/v1/connections", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"admin"},
			Summary:     "List tenant connections",
			OperationID: "admin_list_connections",
			Security:    &openapi3.SecurityRequirements{{"sessionAuth": {}}},
			Responses:   newResponses("200", "Connections", successRef),
		},
		Post: &openapi3.Operation{
			Tags:        []string{"admin"},
			Summary:     "Provision a new connection",
			OperationID: "admin_create_connection",
			Security:    &openapi3.SecurityRequirements{{"sessionAuth": {}}},
			Responses:   newResponses("201", "Connection created", successRef),
		},
	})

	doc.Paths.Set("/admin/v1/connections/{id}/key", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"admin"},
			Summary:     "Issue a new API key",
			Description: "Generates a fresh key for the connection; the raw key appears in this response only.",
			OperationID: "admin_issue_key",
			Security:    &openapi3.SecurityRequirements{{"sessionAuth": {}}},
			Parameters: openapi3.Parameters{
				&openapi3.ParameterRef{Value: openapi3.NewPathParameter("id").
					WithSchema(openapi3.NewInt64Schema())},
			},
			Responses: newResponses("201", "API key issued", successRef),
		},
	})

	doc.Paths.Set("/admin/v1/audit-logs", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"admin"},
			Summary:     "List tenant audit logs",
			OperationID: "admin_list_audit_logs",
			Security:    &openapi3.SecurityRequirements{{"sessionAuth": {}}},
			Parameters: openapi3.Parameters{
				&openapi3.ParameterRef{Value: openapi3.NewQueryParameter("limit").
					WithSchema(openapi3.NewIntegerSchema())},
				&openapi3.ParameterRef{Value: openapi3.NewQueryParameter("offset").
					WithSchema(openapi3.NewIntegerSchema())},
			},
			Responses: newResponses("200", "Audit log entries", successRef),
		},
	})

	return doc
}

// newResponses builds the standard response set: one success status plus the
// shared error envelope for the common failure codes.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	errorRef := openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil)
	for code, desc := range map[string]string{
		"401": "Unauthorized",
		"422": "Validation failed",
		"429": "Rate limit exceeded",
		"500": "Internal error",
		"503": "Connection not ready",
	} {
		d := desc
		responses.Set(code, &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &d,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}

	return responses
}
