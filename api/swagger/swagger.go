package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "TutorHive Scheduling API",
        "description": "Lesson scheduling and booking core for the TutorHive marketplace",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Availability", "description": "Tutor weekly rules and schedule exceptions"},
        {"name": "Slots", "description": "Bookable slot lookup"},
        {"name": "Requests", "description": "Lesson request workflow"},
        {"name": "Lessons", "description": "Lesson ledger and session access"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/availability/rules": {
            "get": {
                "tags": ["Availability"],
                "summary": "List the caller's weekly availability rules",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Availability"],
                "summary": "Add a weekly availability rule",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpsertRuleRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Overlaps an existing rule"}
                }
            }
        },
        "/availability/rules/{id}": {
            "put": {
                "tags": ["Availability"],
                "summary": "Update a weekly availability rule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpsertRuleRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Availability"],
                "summary": "Remove a weekly availability rule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/availability/exceptions": {
            "get": {
                "tags": ["Availability"],
                "summary": "List the caller's schedule exceptions",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Availability"],
                "summary": "Block a date",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateExceptionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/tutors/{tutorID}/slots": {
            "get": {
                "tags": ["Slots"],
                "summary": "List bookable slots for a tutor on a date",
                "parameters": [
                    {"name": "tutorID", "in": "path", "required": true, "type": "string"},
                    {"name": "date", "in": "query", "required": true, "type": "string", "format": "date"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/requests": {
            "get": {
                "tags": ["Requests"],
                "summary": "List the caller's lesson requests",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Requests"],
                "summary": "Submit a lesson request",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitRequestPayload"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Interval overlaps an existing lesson"},
                    "422": {"description": "Interval outside the tutor's availability"}
                }
            }
        },
        "/requests/{id}/confirm": {
            "post": {
                "tags": ["Requests"],
                "summary": "Confirm a pending request and reserve the lesson",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Interval no longer available or invalid transition"}
                }
            }
        },
        "/requests/{id}/reject": {
            "post": {
                "tags": ["Requests"],
                "summary": "Reject a lesson request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/requests/{id}/propose": {
            "post": {
                "tags": ["Requests"],
                "summary": "Propose alternative slots",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ProposePayload"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/requests/{id}/accept": {
            "post": {
                "tags": ["Requests"],
                "summary": "Accept one of the proposed slots",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/requests/{id}/cancel": {
            "post": {
                "tags": ["Requests"],
                "summary": "Cancel a lesson request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lessons": {
            "get": {
                "tags": ["Lessons"],
                "summary": "List the caller's lessons",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string", "format": "date-time"},
                    {"name": "to", "in": "query", "type": "string", "format": "date-time"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Lessons"],
                "summary": "Reserve a lesson directly",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReserveLessonRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Interval overlaps an existing lesson"}
                }
            }
        },
        "/lessons/{id}/can-join": {
            "get": {
                "tags": ["Lessons"],
                "summary": "Check whether the caller may join the session now",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lessons/{id}/cancel": {
            "post": {
                "tags": ["Lessons"],
                "summary": "Cancel a lesson",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lessons/{id}/complete": {
            "post": {
                "tags": ["Lessons"],
                "summary": "Mark a lesson completed",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lessons/export": {
            "get": {
                "tags": ["Lessons"],
                "summary": "Export the caller's upcoming schedule",
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/relationships": {
            "get": {
                "tags": ["Lessons"],
                "summary": "List the caller's student relationships",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "UpsertRuleRequest": {
            "type": "object",
            "properties": {
                "day_of_week": {"type": "integer", "minimum": 1, "maximum": 7},
                "start_minute": {"type": "integer", "minimum": 0, "maximum": 1439},
                "end_minute": {"type": "integer", "minimum": 1, "maximum": 1440},
                "is_available": {"type": "boolean"}
            },
            "required": ["day_of_week", "end_minute"]
        },
        "CreateExceptionRequest": {
            "type": "object",
            "properties": {
                "date": {"type": "string", "format": "date"},
                "is_full_day": {"type": "boolean"}
            },
            "required": ["date"]
        },
        "SubmitRequestPayload": {
            "type": "object",
            "properties": {
                "tutor_id": {"type": "string"},
                "subject_id": {"type": "string"},
                "requested_start": {"type": "string", "format": "date-time"},
                "requested_end": {"type": "string", "format": "date-time"},
                "message": {"type": "string"}
            },
            "required": ["tutor_id", "subject_id", "requested_start", "requested_end"]
        },
        "ProposePayload": {
            "type": "object",
            "properties": {
                "slots": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/ProposedSlot"}
                },
                "response": {"type": "string"}
            },
            "required": ["slots"]
        },
        "ProposedSlot": {
            "type": "object",
            "properties": {
                "start_time": {"type": "string", "format": "date-time"},
                "end_time": {"type": "string", "format": "date-time"}
            }
        },
        "ReserveLessonRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "subject_id": {"type": "string"},
                "start_time": {"type": "string", "format": "date-time"},
                "end_time": {"type": "string", "format": "date-time"}
            },
            "required": ["student_id", "subject_id", "start_time", "end_time"]
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
                "status": {"type": "integer"}
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
