// Package docs registers the OpenAPI document served at /swagger.
// Regenerate with: swag init -g cmd/server/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/events": {
            "post": {
                "description": "Validates and stores an event. A retried event_id is not an error: it returns 200 with duplicate=true and the stored row is unchanged.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Events"],
                "summary": "Ingest one event",
                "operationId": "ingestEvent",
                "parameters": [
                    {"type": "string", "example": "loc-123", "description": "Used as event_id when the body omits it", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Event", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/domain.EventInput"}}
                ],
                "responses": {
                    "200": {"description": "Duplicate event", "schema": {"$ref": "#/definitions/handlers.EventResponse"}, "headers": {"Idempotency-Replayed": {"type": "string", "description": "true when served as a replay"}}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.EventResponse"}},
                    "400": {"description": "Invalid event", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Too many requests", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/events/batch": {
            "post": {
                "description": "Validates and stores up to 100 events independently. Invalid items are reported in place and do not block the rest.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Events"],
                "summary": "Ingest a batch of events",
                "operationId": "ingestBatch",
                "parameters": [
                    {"description": "Events", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.BatchRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.BatchResponse"}},
                    "400": {"description": "Empty or oversized batch", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/digests": {
            "get": {
                "description": "Returns digests newest first. Supports weak ETag via If-None-Match and may return 304.",
                "produces": ["application/json"],
                "tags": ["Digests"],
                "summary": "List digests (paginated)",
                "operationId": "listDigests",
                "parameters": [
                    {"type": "string", "example": "W/\"digests:3:1735779600:2\"", "description": "Return 304 if ETag matches", "name": "If-None-Match", "in": "header"},
                    {"minimum": 1, "type": "integer", "default": 1, "description": "Page number", "name": "page", "in": "query"},
                    {"maximum": 100, "minimum": 1, "type": "integer", "default": 20, "description": "Items per page", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListDigestsResponse"}, "headers": {"ETag": {"type": "string", "description": "Weak ETag for current result"}}},
                    "304": {"description": "Not Modified", "schema": {"type": "string"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/digests/run": {
            "post": {
                "description": "Aggregates the pending events into one digest and dispatches it. Returns 204 when nothing was pending.",
                "produces": ["application/json"],
                "tags": ["Digests"],
                "summary": "Run an aggregation now",
                "operationId": "runDigest",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.RunDigestResponse"}},
                    "204": {"description": "No pending events", "schema": {"type": "string"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "A run is already in progress", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/digests/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Digests"],
                "summary": "Get a digest",
                "operationId": "getDigest",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Digest ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Digest"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Health check",
                "operationId": "health",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}},
                    "503": {"description": "Storage unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.FieldError": {
            "type": "object",
            "properties": {
                "field": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "domain.EventInput": {
            "type": "object",
            "properties": {
                "event_id": {"type": "string"},
                "type": {"type": "string"},
                "ts": {"type": "string"},
                "payload": {"type": "object"},
                "device_id": {"type": "string"},
                "meta": {"type": "object", "additionalProperties": true}
            }
        },
        "domain.StaySegment": {
            "type": "object",
            "properties": {
                "place_id": {"type": "string"},
                "enter_at": {"type": "string"},
                "exit_at": {"type": "string"},
                "duration_minutes": {"type": "integer"}
            }
        },
        "domain.DigestSummary": {
            "type": "object",
            "properties": {
                "segments": {"type": "array", "items": {"$ref": "#/definitions/domain.StaySegment"}},
                "text": {"type": "string"},
                "event_ids": {"type": "array", "items": {"type": "string"}}
            }
        },
        "domain.Digest": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "period_start": {"type": "string"},
                "period_end": {"type": "string"},
                "type": {"type": "string"},
                "summary": {"$ref": "#/definitions/domain.DigestSummary"},
                "sent_at": {"type": "string"},
                "send_attempts": {"type": "integer"},
                "last_error": {"type": "string"},
                "failed_at": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"},
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string", "example": "resource not found"},
                "details": {"type": "array", "items": {"$ref": "#/definitions/domain.FieldError"}}
            }
        },
        "handlers.EventResponse": {
            "type": "object",
            "properties": {
                "event_id": {"type": "string", "example": "loc-123"},
                "type": {"type": "string", "example": "location"},
                "ts": {"type": "string"},
                "duplicate": {"type": "boolean", "example": false}
            }
        },
        "handlers.BatchRequest": {
            "type": "object",
            "properties": {
                "events": {"type": "array", "items": {"$ref": "#/definitions/domain.EventInput"}}
            }
        },
        "handlers.BatchItemResponse": {
            "type": "object",
            "properties": {
                "index": {"type": "integer"},
                "event_id": {"type": "string"},
                "status": {"type": "string", "example": "created"},
                "errors": {"type": "array", "items": {"$ref": "#/definitions/domain.FieldError"}}
            }
        },
        "handlers.BatchResponse": {
            "type": "object",
            "properties": {
                "results": {"type": "array", "items": {"$ref": "#/definitions/handlers.BatchItemResponse"}},
                "created": {"type": "integer"},
                "duplicates": {"type": "integer"},
                "invalid": {"type": "integer"}
            }
        },
        "handlers.Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"},
                "has_next": {"type": "boolean"}
            }
        },
        "handlers.ListDigestsResponse": {
            "type": "object",
            "properties": {
                "digests": {"type": "array", "items": {"$ref": "#/definitions/domain.Digest"}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        },
        "handlers.RunDigestResponse": {
            "type": "object",
            "properties": {
                "digest": {"$ref": "#/definitions/domain.Digest"},
                "events": {"type": "integer", "example": 12},
                "delivered": {"type": "boolean", "example": true},
                "retried": {"type": "integer", "example": 0}
            }
        },
        "handlers.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "ok"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Location Digest API",
	Description:      "Ingests location events and serves the periodic stay digests built from them.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
