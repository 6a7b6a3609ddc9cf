package swagger

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
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "paths": {
        "/api/v1/eop/status": {
            "get": {
                "description": "State of the cached EOP table and the last refresh job",
                "produces": ["application/json"],
                "tags": ["eop"],
                "summary": "EOP table status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.StatusResponse"}}
                }
            }
        },
        "/api/v1/eop/pole": {
            "get": {
                "description": "Interpolated pole coordinates at a UTC time or MJD",
                "produces": ["application/json"],
                "tags": ["eop"],
                "summary": "Pole coordinates",
                "parameters": [
                    {"type": "string", "description": "RFC 3339 time", "name": "time", "in": "query"},
                    {"type": "number", "description": "Modified Julian Date (UTC)", "name": "mjd", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.PoleResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "502": {"description": "Bulletin could not be parsed", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "503": {"description": "No table available", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/api/v1/eop/pole/batch": {
            "post": {
                "description": "Pole coordinates for many times against a single table",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["eop"],
                "summary": "Batch pole coordinates",
                "parameters": [
                    {"description": "Times", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.BatchRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.BatchResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/api/v1/eop/refresh": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Fetch the bulletin now, replacing the cached table on success",
                "produces": ["application/json"],
                "tags": ["eop"],
                "summary": "Force refresh",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.StatusResponse"}},
                    "401": {"description": "Unauthorized"},
                    "403": {"description": "Forbidden"},
                    "503": {"description": "Source unavailable", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/api/v1/settings/refresh-schedule": {
            "get": {
                "tags": ["settings"],
                "summary": "Refresh schedule",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.ScheduleSetting"}}
                }
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "tags": ["settings"],
                "summary": "Update refresh schedule",
                "description": "Seconds between runs or a five-field cron expression",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"description": "Schedule", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.ScheduleSetting"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.ScheduleSetting"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/api/v1/corrections/polar": {
            "get": {
                "description": "Pole tide correction for a station, from the EOP table or explicit xp/yp",
                "produces": ["application/json"],
                "tags": ["corrections"],
                "summary": "Polar motion correction",
                "parameters": [
                    {"type": "string", "description": "RFC 3339 time (required without xp/yp)", "name": "time", "in": "query"},
                    {"type": "string", "description": "Latitude, default unit deg", "name": "lat", "in": "query", "required": true},
                    {"type": "string", "description": "Longitude, default unit deg", "name": "lon", "in": "query", "required": true},
                    {"type": "string", "description": "Geocentric radius, default unit m", "name": "radius", "in": "query"},
                    {"type": "number", "description": "Gravimetric amplitude factor", "name": "amplitude", "in": "query"},
                    {"type": "string", "description": "Pole x, default unit arcsec", "name": "xp", "in": "query"},
                    {"type": "string", "description": "Pole y, default unit arcsec", "name": "yp", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.CorrectionResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "503": {"description": "No table available", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/api/v1/corrections/atmosphere": {
            "get": {
                "description": "Atmospheric pressure correction relative to the standard atmosphere",
                "produces": ["application/json"],
                "tags": ["corrections"],
                "summary": "Atmospheric correction",
                "parameters": [
                    {"type": "string", "description": "Height, default unit m", "name": "height", "in": "query", "required": true},
                    {"type": "string", "description": "Observed pressure, default unit hPa", "name": "pressure", "in": "query", "required": true},
                    {"type": "string", "description": "Barometric factor, default unit uGal / mbar", "name": "factor", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.CorrectionResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "units.Quantity": {
            "type": "object",
            "properties": {
                "value": {"type": "number"},
                "unit": {"type": "string"}
            }
        },
        "eop.Pole": {
            "type": "object",
            "properties": {
                "time": {"type": "string"},
                "mjd": {"type": "number"},
                "x": {"$ref": "#/definitions/units.Quantity"},
                "y": {"$ref": "#/definitions/units.Quantity"},
                "provenance": {"type": "string", "enum": ["unavailable", "predicted", "preliminary", "final"]}
            }
        },
        "api.PoleResponse": {
            "type": "object",
            "properties": {
                "pole": {"$ref": "#/definitions/eop.Pole"},
                "bulletin": {"type": "string"}
            }
        },
        "api.BatchRequest": {
            "type": "object",
            "properties": {
                "times": {"type": "array", "items": {"type": "string"}},
                "mjds": {"type": "array", "items": {"type": "number"}}
            }
        },
        "api.BatchResponse": {
            "type": "object",
            "properties": {
                "poles": {"type": "array", "items": {"$ref": "#/definitions/eop.Pole"}},
                "provenance": {"type": "object", "additionalProperties": {"type": "integer"}}
            }
        },
        "api.StatusResponse": {
            "type": "object",
            "properties": {
                "table": {"type": "object"},
                "job": {"type": "object"}
            }
        },
        "api.ScheduleSetting": {
            "type": "object",
            "properties": {
                "schedule": {"type": "string"},
                "source": {"type": "string"}
            }
        },
        "api.CorrectionResponse": {
            "type": "object",
            "properties": {
                "correction": {"$ref": "#/definitions/units.Quantity"},
                "pole": {"$ref": "#/definitions/eop.Pole"},
                "provenance": {"type": "string"},
                "normal_pressure": {"$ref": "#/definitions/units.Quantity"}
            }
        },
        "api.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"}
            }
        }
    }
}`
