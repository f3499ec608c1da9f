package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Room Allocation API",
        "description": "Assigns university rooms to course sections for a semester",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Allocation", "description": "Allocation runs, decision logs and exports"},
        {"name": "Scoring", "description": "Compatibility scoring weights"},
        {"name": "Schedule", "description": "Schedule code tooling"},
        {"name": "Observability", "description": "Runtime counters"}
    ],
    "paths": {
        "/allocation-runs": {
            "post": {
                "tags": ["Allocation"],
                "summary": "Start an allocation run",
                "description": "Runs synchronously and returns the result, or queues the run when async is true.",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AllocationRunRequest"}}
                ],
                "responses": {
                    "200": {"description": "Run finished", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Run queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Run already in progress for the semester", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Malformed schedule or missing reference data", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/allocation-runs/{id}": {
            "get": {
                "tags": ["Allocation"],
                "summary": "Get allocation run status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/allocation-runs/{id}/log": {
            "get": {
                "tags": ["Allocation"],
                "summary": "Download the decision log of a run",
                "produces": ["text/plain"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Decision log"}
                }
            }
        },
        "/allocation-runs/{id}/log-url": {
            "get": {
                "tags": ["Allocation"],
                "summary": "Sign a temporary download link for a decision log",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/allocation-runs/{id}/export": {
            "get": {
                "tags": ["Allocation"],
                "summary": "Export the outcome table of a finished run",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"], "default": "csv"}
                ],
                "responses": {
                    "200": {"description": "Export file"},
                    "412": {"description": "Run has not finished", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/downloads/{token}": {
            "get": {
                "tags": ["Allocation"],
                "summary": "Download a file through a signed token",
                "security": [],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File content"},
                    "403": {"description": "Invalid or expired token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/semesters/{id}/allocations": {
            "get": {
                "tags": ["Allocation"],
                "summary": "List committed allocations of a semester",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scoring-weights": {
            "get": {
                "tags": ["Scoring"],
                "summary": "Get the scoring weights in force",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Scoring"],
                "summary": "Replace the scoring weights",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ScoringWeights"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid weights", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scoring-weights/reload": {
            "post": {
                "tags": ["Scoring"],
                "summary": "Reload scoring weights from the profile store",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedule-codes/decode": {
            "post": {
                "tags": ["Schedule"],
                "summary": "Decode a schedule code",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DecodeScheduleRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Malformed schedule code", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/stats": {
            "get": {
                "tags": ["Observability"],
                "summary": "Runtime counters of the allocation service",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "AllocationRunRequest": {
            "type": "object",
            "properties": {
                "semesterId": {"type": "string"},
                "includeHardRules": {"type": "boolean", "default": true},
                "includeSoftPreferences": {"type": "boolean", "default": true},
                "maxIterations": {"type": "integer", "minimum": 1},
                "async": {"type": "boolean"}
            },
            "required": ["semesterId"]
        },
        "ScoringWeights": {
            "type": "object",
            "properties": {
                "capacity": {"type": "integer"},
                "hardRule": {"type": "integer"},
                "preferredRoom": {"type": "integer"},
                "preferredCharacteristic": {"type": "integer"},
                "historicalPerAllocation": {"type": "integer"},
                "historicalMaxCap": {"type": "integer"},
                "enrollmentDivisor": {"type": "integer"},
                "enrollmentCap": {"type": "integer"},
                "specificRoomPriority": {"type": "integer"}
            }
        },
        "DecodeScheduleRequest": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "24M12 35T34"}
            },
            "required": ["code"]
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
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
