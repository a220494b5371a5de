// Package docs holds the OpenAPI description served under /swagger in dev mode.
// Layout follows swag's generated output so `swag init` can regenerate it.
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
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "paths": {
        "/assignments": {
            "get": {
                "tags": ["assignments"],
                "summary": "割当一覧",
                "parameters": [
                    {"type": "string", "name": "state", "in": "query"},
                    {"type": "string", "name": "assignee_id", "in": "query"},
                    {"type": "string", "name": "asset_id", "in": "query"},
                    {"type": "string", "description": "YYYY-MM-DD", "name": "from", "in": "query"},
                    {"type": "string", "description": "YYYY-MM-DD", "name": "to", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"},
                    {"type": "integer", "name": "offset", "in": "query"},
                    {"type": "string", "enum": ["asc", "desc"], "name": "order", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/assignments.ListAssignmentsResult"}}}
            },
            "post": {
                "tags": ["assignments"],
                "summary": "資産を割り当てる",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/assignments.CreateAssignmentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/assignments.AssignmentResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/assignments.errorDTO"}}
                }
            }
        },
        "/assignments/{id}": {
            "get": {
                "tags": ["assignments"],
                "summary": "割当を取得する",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/assignments.AssignmentResponse"}}}
            },
            "put": {
                "tags": ["assignments"],
                "summary": "割当を編集する（WAITING_FOR_ACCEPTANCE / DECLINED のみ）",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/assignments.EditAssignmentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/assignments.AssignmentResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/assignments.errorDTO"}}
                }
            },
            "delete": {
                "tags": ["assignments"],
                "summary": "割当を削除する（WAITING_FOR_ACCEPTANCE / DECLINED のみ）",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "RFC3339 timestamp last read by the client", "name": "updated_at", "in": "query"}
                ],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/assignments/{id}/response": {
            "post": {
                "tags": ["assignments"],
                "summary": "割当を承諾または辞退する",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/assignments.RespondAssignmentRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/assignments.AssignmentResponse"}}}
            }
        },
        "/assignments/{id}/returning-requests": {
            "post": {
                "tags": ["returning-requests"],
                "summary": "返却を申請する",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/assignments.RequestReturnResult"}}}
            }
        },
        "/returning-requests/{id}": {
            "get": {
                "tags": ["returning-requests"],
                "summary": "返却申請を取得する",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/assignments.ReturningRequestResponse"}}}
            }
        },
        "/returning-requests/{id}/resolution": {
            "post": {
                "tags": ["returning-requests"],
                "summary": "返却申請を完了または取消する",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/assignments.ResolveReturnRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/assignments.ResolveReturnResult"}}}
            }
        }
    },
    "definitions": {
        "assignments.CreateAssignmentRequest": {
            "type": "object",
            "required": ["asset_code", "assignee_id", "assigned_on"],
            "properties": {
                "asset_code": {"type": "string"},
                "assignee_id": {"type": "string"},
                "assigned_on": {"type": "string", "example": "2026-01-31"},
                "note": {"type": "string"}
            }
        },
        "assignments.EditAssignmentRequest": {
            "type": "object",
            "properties": {
                "asset_code": {"type": "string"},
                "assignee_id": {"type": "string"},
                "assigned_on": {"type": "string"},
                "note": {"type": "string"},
                "updated_at": {"type": "string", "format": "date-time"}
            }
        },
        "assignments.RespondAssignmentRequest": {
            "type": "object",
            "required": ["accept"],
            "properties": {
                "accept": {"type": "boolean"},
                "updated_at": {"type": "string", "format": "date-time"}
            }
        },
        "assignments.ResolveReturnRequest": {
            "type": "object",
            "required": ["confirm"],
            "properties": {"confirm": {"type": "boolean"}}
        },
        "assignments.AssignmentResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "asset_id": {"type": "string"},
                "assignee_id": {"type": "string"},
                "assigner_id": {"type": "string"},
                "assigned_on": {"type": "string"},
                "note": {"type": "string"},
                "state": {"type": "string", "enum": ["WAITING_FOR_ACCEPTANCE", "ACCEPTED", "DECLINED", "IS_REQUESTED", "RETURNED"]},
                "created_at": {"type": "string", "format": "date-time"},
                "updated_at": {"type": "string", "format": "date-time"}
            }
        },
        "assignments.ReturningRequestResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "assignment_id": {"type": "string"},
                "requested_by_id": {"type": "string"},
                "accepted_by_id": {"type": "string"},
                "state": {"type": "string", "enum": ["WAITING_FOR_RETURNING", "COMPLETED"]},
                "returned_on": {"type": "string"},
                "created_at": {"type": "string", "format": "date-time"},
                "updated_at": {"type": "string", "format": "date-time"}
            }
        },
        "assignments.RequestReturnResult": {
            "type": "object",
            "properties": {
                "returning_request": {"$ref": "#/definitions/assignments.ReturningRequestResponse"},
                "assignment": {"$ref": "#/definitions/assignments.AssignmentResponse"}
            }
        },
        "assignments.ResolveReturnResult": {
            "type": "object",
            "properties": {
                "returning_request": {"$ref": "#/definitions/assignments.ReturningRequestResponse"},
                "assignment": {"$ref": "#/definitions/assignments.AssignmentResponse"},
                "cancelled": {"type": "boolean"}
            }
        },
        "assignments.ListAssignmentsResult": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"$ref": "#/definitions/assignments.AssignmentResponse"}},
                "total": {"type": "integer"},
                "next_offset": {"type": "integer"}
            }
        },
        "assignments.errorDTO": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "object",
                    "properties": {
                        "code": {"type": "string"},
                        "reason": {"type": "string"},
                        "message": {"type": "string"}
                    }
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "2.0",
	Host:             "",
	BasePath:         "/api/v2",
	Schemes:          []string{"https"},
	Title:            "ASSET backend API",
	Description:      "Asset assignment lifecycle: assign, accept/decline, return.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
