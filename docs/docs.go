// Package docs registers the OpenAPI description served at /api/v1/swagger.json
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
        "/api/v1/click-logs/generate": {
            "post": {
                "tags": ["ClickLogs"],
                "summary": "Generate tracked link",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "responses": {"201": {"description": "Tracked link created"}, "400": {"description": "Validation error"}}
            }
        },
        "/api/v1/click-logs/daily": {
            "get": {
                "tags": ["ClickLogs"],
                "summary": "Daily click series",
                "produces": ["application/json"],
                "responses": {"200": {"description": "Daily series"}}
            }
        },
        "/api/v1/conversations/{customerRef}/register-sale": {
            "post": {
                "tags": ["Conversations"],
                "summary": "Register manual sale",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "responses": {"201": {"description": "Sale registered"}, "400": {"description": "Validation error"}}
            }
        },
        "/api/v1/analytics/correlate-conversions": {
            "post": {
                "tags": ["Analytics"],
                "summary": "Correlate conversions",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "responses": {"200": {"description": "Correlation result"}, "409": {"description": "Already running"}, "502": {"description": "Marketplace fetch failed"}}
            }
        },
        "/api/v1/analytics/correlation-runs": {
            "get": {"tags": ["Analytics"], "summary": "List correlation runs", "responses": {"200": {"description": "Runs"}}}
        },
        "/api/v1/analytics/conversions": {
            "get": {"tags": ["Analytics"], "summary": "Conversion stats", "responses": {"200": {"description": "Stats"}}}
        },
        "/api/v1/analytics/conversions/recent": {
            "get": {"tags": ["Analytics"], "summary": "Recent conversions", "responses": {"200": {"description": "Recent conversions"}}}
        },
        "/api/v1/analytics/conversions/export": {
            "get": {"tags": ["Analytics"], "summary": "Export conversions", "responses": {"200": {"description": "Workbook"}}}
        },
        "/api/v1/analytics/top-products": {
            "get": {"tags": ["Analytics"], "summary": "Top products", "responses": {"200": {"description": "Top products"}}}
        },
        "/api/v1/analytics/top-region": {
            "get": {"tags": ["Analytics"], "summary": "Top regions", "responses": {"200": {"description": "Top regions"}}}
        },
        "/r/{uid}": {
            "get": {"tags": ["Redirect"], "summary": "Visit tracked link", "responses": {"302": {"description": "Redirect"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Orochi Attribution API",
	Description:      "Click-to-order attribution engine: tracked links, correlation runs and conversion analytics.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
