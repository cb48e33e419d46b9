package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Extension Workflow API",
        "description": "Deadline extension requests with two stage instructor and lecturer approval",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Workflows", "description": "Extension workflow configuration"},
        {"name": "Extension Requests", "description": "Student extension requests"},
        {"name": "Reviews", "description": "Instructor and lecturer decisions"},
        {"name": "System", "description": "Probes and metrics"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["System"],
                "summary": "Liveness probe",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "tags": ["System"],
                "summary": "Readiness probe",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Degraded"}
                }
            }
        },
        "/metrics": {
            "get": {
                "tags": ["System"],
                "summary": "Prometheus metrics",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/workflows": {
            "get": {
                "tags": ["Workflows"],
                "summary": "List workflow configurations",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "course_id", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Workflows"],
                "summary": "Create workflow configuration",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/WorkflowRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed"},
                    "403": {"description": "Forbidden"}
                }
            }
        },
        "/workflows/{id}": {
            "get": {
                "tags": ["Workflows"],
                "summary": "Get workflow configuration",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            },
            "put": {
                "tags": ["Workflows"],
                "summary": "Update workflow configuration",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/WorkflowRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed"},
                    "403": {"description": "Forbidden"},
                    "404": {"description": "Not found"}
                }
            },
            "delete": {
                "tags": ["Workflows"],
                "summary": "Delete workflow configuration",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deleted"},
                    "403": {"description": "Forbidden"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/workflows/{id}/requests": {
            "post": {
                "tags": ["Extension Requests"],
                "summary": "Submit extension request",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitExtensionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed"},
                    "403": {"description": "Forbidden"},
                    "404": {"description": "Not found"},
                    "409": {"description": "Active request exists"}
                }
            },
            "get": {
                "tags": ["Extension Requests"],
                "summary": "List requests of a workflow",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "description": "Comma separated statuses"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden"}
                }
            }
        },
        "/workflows/{id}/review-queue": {
            "get": {
                "tags": ["Reviews"],
                "summary": "Reviewer queue for the caller",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden"}
                }
            }
        },
        "/workflows/{id}/review-queue/export": {
            "get": {
                "tags": ["Reviews"],
                "summary": "Export reviewer queue",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File"},
                    "400": {"description": "Unsupported format"},
                    "403": {"description": "Forbidden"}
                }
            }
        },
        "/requests/mine": {
            "get": {
                "tags": ["Extension Requests"],
                "summary": "List own requests",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "description": "Comma separated statuses"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/requests/{id}": {
            "get": {
                "tags": ["Extension Requests"],
                "summary": "Get extension request",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden"},
                    "404": {"description": "Not found"}
                }
            },
            "delete": {
                "tags": ["Extension Requests"],
                "summary": "Withdraw pending request",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Withdrawn"},
                    "403": {"description": "Forbidden"},
                    "409": {"description": "Already handled"}
                }
            }
        },
        "/requests/{id}/instructor/approve": {
            "post": {
                "tags": ["Reviews"],
                "summary": "Approve as instructor",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/ReviewDecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed"},
                    "403": {"description": "Forbidden"},
                    "404": {"description": "Not found"},
                    "409": {"description": "Already handled"}
                }
            }
        },
        "/requests/{id}/instructor/decline": {
            "post": {
                "tags": ["Reviews"],
                "summary": "Decline as instructor",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/ReviewDecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed"},
                    "403": {"description": "Forbidden"},
                    "404": {"description": "Not found"},
                    "409": {"description": "Already handled"}
                }
            }
        },
        "/requests/{id}/lecturer/approve": {
            "post": {
                "tags": ["Reviews"],
                "summary": "Approve as lecturer",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/ReviewDecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed"},
                    "403": {"description": "Forbidden"},
                    "404": {"description": "Not found"},
                    "409": {"description": "Already handled"}
                }
            }
        },
        "/requests/{id}/lecturer/decline": {
            "post": {
                "tags": ["Reviews"],
                "summary": "Decline as lecturer",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/ReviewDecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed"},
                    "403": {"description": "Forbidden"},
                    "404": {"description": "Not found"},
                    "409": {"description": "Already handled"}
                }
            }
        }
    },
    "definitions": {
        "WorkflowRequest": {
            "type": "object",
            "required": ["course_id", "name", "target_type", "instructor_id", "lecturer_id"],
            "properties": {
                "course_id": {"type": "string"},
                "name": {"type": "string"},
                "intro": {"type": "string"},
                "target_type": {"type": "string", "enum": ["assignment", "quiz", "other"]},
                "target_activity_id": {"type": "string"},
                "instructor_id": {"type": "string"},
                "lecturer_id": {"type": "string"},
                "allow_submissions_from": {"type": "string", "format": "date-time"},
                "due_date": {"type": "string", "format": "date-time"},
                "cutoff_date": {"type": "string", "format": "date-time"}
            }
        },
        "SubmitExtensionRequest": {
            "type": "object",
            "required": ["reason", "requested_deadline"],
            "properties": {
                "reason": {"type": "string", "enum": ["medical", "university_related", "forgot", "other"]},
                "other_reason": {"type": "string"},
                "student_comment": {"type": "string"},
                "requested_deadline": {"type": "string", "format": "date-time"},
                "attachments": {"type": "array", "items": {"type": "string"}}
            }
        },
        "ReviewDecisionRequest": {
            "type": "object",
            "properties": {
                "comment": {"type": "string"},
                "extend_to": {"type": "string", "format": "date-time"}
            }
        },
        "ExtensionRequest": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "workflow_id": {"type": "string"},
                "student_id": {"type": "string"},
                "reason": {"type": "string"},
                "other_reason": {"type": "string"},
                "student_comment": {"type": "string"},
                "attachments": {"type": "array", "items": {"type": "string"}},
                "requested_deadline": {"type": "string", "format": "date-time"},
                "approved_deadline": {"type": "string", "format": "date-time"},
                "submitted_at": {"type": "string", "format": "date-time"},
                "status": {"type": "string", "enum": ["pending", "instructor_approved", "lecturer_approved", "declined"]},
                "instructor_comment": {"type": "string"},
                "lecturer_comment": {"type": "string"},
                "decided_by": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "array", "items": {"type": "string"}}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
