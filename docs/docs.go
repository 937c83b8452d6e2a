// Package docs registers the OpenAPI description served under /swagger.
// Regenerate with `swag init -g cmd/api/main.go` after changing handler annotations.
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
        "/entitlement": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Entitlement"],
                "summary": "Get entitlement",
                "responses": {
                    "200": {"description": "Current entitlement", "schema": {"$ref": "#/definitions/dto.EntitlementDTO"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}},
                    "503": {"description": "Entitlement store unavailable", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}}
                }
            }
        },
        "/entitlement/consume": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Entitlement"],
                "summary": "Consume a credit",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/dto.ConsumeRequest"}}],
                "responses": {
                    "200": {"description": "Consume decision", "schema": {"$ref": "#/definitions/dto.ConsumeDTO"}},
                    "400": {"description": "Unknown action type", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}},
                    "503": {"description": "Entitlement store unavailable", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}}
                }
            }
        },
        "/entitlement/redeem": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Entitlement"],
                "summary": "Redeem a code",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/dto.RedeemRequest"}}],
                "responses": {
                    "200": {"description": "Code accepted", "schema": {"$ref": "#/definitions/dto.RedeemDTO"}},
                    "400": {"description": "Invalid code", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}}
                }
            }
        },
        "/entitlement/events": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Entitlement"],
                "summary": "List credit events",
                "parameters": [
                    {"type": "integer", "description": "Page number (default: 1)", "name": "page", "in": "query"},
                    {"type": "integer", "description": "Page size (default: 20, max: 100)", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Credit events", "schema": {"$ref": "#/definitions/utils.PaginatedResponse"}}
                }
            }
        },
        "/billing/checkout": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Billing"],
                "summary": "Create checkout session",
                "responses": {
                    "200": {"description": "Checkout session", "schema": {"$ref": "#/definitions/dto.CheckoutDTO"}},
                    "502": {"description": "Payment processor error", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}},
                    "503": {"description": "Billing not configured", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}}
                }
            }
        },
        "/billing/webhook": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Billing"],
                "summary": "Payment webhook",
                "parameters": [{"type": "string", "description": "Webhook signature", "name": "Stripe-Signature", "in": "header", "required": true}],
                "responses": {
                    "200": {"description": "Event acknowledged", "schema": {"$ref": "#/definitions/dto.WebhookAckDTO"}},
                    "400": {"description": "Invalid signature or payload", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}}
                }
            }
        },
        "/chat": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Chat"],
                "summary": "Chat reply",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/dto.ChatRequest"}}],
                "responses": {
                    "200": {"description": "Assistant reply", "schema": {"$ref": "#/definitions/dto.ChatDTO"}},
                    "402": {"description": "No credits left today", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}},
                    "502": {"description": "Language model error", "schema": {"$ref": "#/definitions/utils.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "chat.Message": {
            "type": "object",
            "required": ["content", "role"],
            "properties": {
                "content": {"type": "string", "maxLength": 4000},
                "role": {"type": "string", "enum": ["user", "assistant"]}
            }
        },
        "dto.ChatDTO": {
            "type": "object",
            "properties": {
                "daily_credits_remaining": {"type": "integer"},
                "message": {"$ref": "#/definitions/chat.Message"},
                "unlimited": {"type": "boolean"}
            }
        },
        "dto.ChatRequest": {
            "type": "object",
            "required": ["messages"],
            "properties": {
                "messages": {"type": "array", "maxItems": 50, "minItems": 1, "items": {"$ref": "#/definitions/chat.Message"}}
            }
        },
        "dto.CheckoutDTO": {
            "type": "object",
            "properties": {"session_id": {"type": "string"}, "url": {"type": "string"}}
        },
        "dto.ConsumeDTO": {
            "type": "object",
            "properties": {
                "daily_credits_remaining": {"type": "integer"},
                "ok": {"type": "boolean"},
                "reason": {"type": "string"},
                "unlimited": {"type": "boolean"}
            }
        },
        "dto.ConsumeRequest": {
            "type": "object",
            "required": ["action_type"],
            "properties": {"action_type": {"type": "string", "maxLength": 64}}
        },
        "dto.EntitlementDTO": {
            "type": "object",
            "properties": {
                "action_types": {"type": "array", "items": {"type": "string"}},
                "daily_allowance": {"type": "integer"},
                "daily_credits_remaining": {"type": "integer"},
                "last_reset_date": {"type": "string"},
                "pro_expires_at": {"type": "string"},
                "tier": {"type": "string"},
                "unlimited": {"type": "boolean"}
            }
        },
        "dto.RedeemDTO": {
            "type": "object",
            "properties": {"ok": {"type": "boolean"}, "pro_expires_at": {"type": "string"}, "tier": {"type": "string"}}
        },
        "dto.RedeemRequest": {
            "type": "object",
            "required": ["code"],
            "properties": {"code": {"type": "string", "maxLength": 64}}
        },
        "dto.WebhookAckDTO": {
            "type": "object",
            "properties": {"handled": {"type": "boolean"}, "received": {"type": "boolean"}, "type": {"type": "string"}}
        },
        "utils.ErrorDetail": {
            "type": "object",
            "properties": {"code": {"type": "string"}, "details": {}, "message": {"type": "string"}}
        },
        "utils.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"$ref": "#/definitions/utils.ErrorDetail"}, "success": {"type": "boolean"}}
        },
        "utils.PaginatedResponse": {
            "type": "object",
            "properties": {
                "data": {},
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_items": {"type": "integer"},
                "total_pages": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Bible Plan API",
	Description:      "Daily credits, paid tier and promotional codes for the Bible study app.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
