package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Sheets ETL trigger API",
        "description": "Starts daily spreadsheet loads and reports past runs",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Runs", "description": "Pipeline runs"},
        {"name": "Ops", "description": "Probes and metrics"}
    ],
    "securityDefinitions": {
        "Bearer": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/health": {
            "get": {
                "tags": ["Ops"],
                "summary": "Liveness probe",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "tags": ["Ops"],
                "summary": "Readiness probe, pings the datastore",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Datastore unreachable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/metrics": {
            "get": {
                "tags": ["Ops"],
                "summary": "Prometheus metrics",
                "produces": ["text/plain"],
                "responses": {
                    "200": {"description": "Metrics in text exposition format"}
                }
            }
        },
        "/api/v1/runs": {
            "post": {
                "tags": ["Runs"],
                "summary": "Run the pipeline",
                "description": "Runs synchronously. Without a body the run processes yesterday in UTC-5.",
                "security": [{"Bearer": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "payload", "required": false, "schema": {"$ref": "#/definitions/TriggerRunRequest"}}
                ],
                "responses": {
                    "200": {"description": "Every table loaded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid target date", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Missing or invalid token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "A run is already in progress", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "500": {"description": "At least one table failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Run aborted by a connection or credential error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/runs/{date}": {
            "get": {
                "tags": ["Runs"],
                "summary": "List runs recorded for a target date",
                "produces": ["application/json"],
                "parameters": [
                    {"in": "path", "name": "date", "type": "string", "format": "date", "required": true}
                ],
                "responses": {
                    "200": {"description": "Run summaries, oldest first", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No run recorded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "TriggerRunRequest": {
            "type": "object",
            "properties": {
                "target_date": {"type": "string", "format": "date"}
            }
        },
        "TableResult": {
            "type": "object",
            "properties": {
                "table": {"type": "string", "enum": ["courses", "students", "enrollments", "payments"]},
                "status": {"type": "string", "enum": ["succeeded", "failed"]},
                "count": {"type": "integer"},
                "extracted": {"type": "integer"},
                "rejected": {"type": "integer"},
                "excluded": {"type": "integer"},
                "reason": {"type": "string"},
                "error_code": {"type": "string"},
                "duration_ns": {"type": "integer"},
                "reject_file": {"type": "string"}
            }
        },
        "RunResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "tables_succeeded": {"type": "integer"},
                "tables_failed": {"type": "integer"},
                "run_id": {"type": "string"},
                "target_date": {"type": "string", "format": "date"},
                "started_at": {"type": "string", "format": "date-time"},
                "finished_at": {"type": "string", "format": "date-time"},
                "driver": {"type": "string"},
                "fatal": {"type": "string"},
                "previous_runs": {"type": "integer"},
                "tables": {"type": "array", "items": {"$ref": "#/definitions/TableResult"}}
            }
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
