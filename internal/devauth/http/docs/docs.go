// Package docs holds the OpenAPI document served under /swagger/. It
// mirrors the swag annotations on the devauth handlers; regenerate with
//
//	swag init -g internal/devauth/http/router.go -o internal/devauth/http/docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "AussieBroadWAN Team",
            "url": "https://github.com/aussiebroadwan/consoleauth"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/.well-known/jwks.json": {
            "get": {
                "produces": ["application/json"],
                "tags": ["well-known"],
                "summary": "Get JWKS",
                "responses": {
                    "200": {
                        "description": "The JSON Web Key Set",
                        "schema": {"$ref": "#/definitions/jwtx.JWKS"}
                    }
                }
            }
        },
        "/api/auth/login": {
            "post": {
                "description": "Verifies email and password. The refresh token is set as an HttpOnly cookie scoped to /api/auth.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Log in",
                "parameters": [
                    {
                        "description": "Credentials",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/authsdk.LoginRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.LoginResponse"}},
                    "400": {"description": "VALIDATION_ERROR", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "401": {"description": "INVALID_CREDENTIALS", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "429": {"description": "RATE_LIMITED", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/api/auth/logout": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Log out",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.MessageResponse"}},
                    "401": {"description": "MISSING_TOKEN, TOKEN_EXPIRED or INVALID_TOKEN", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/api/auth/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Current user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.User"}},
                    "401": {"description": "MISSING_TOKEN, TOKEN_EXPIRED or INVALID_TOKEN", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/api/auth/refresh": {
            "post": {
                "description": "Reads the refresh_token cookie. The cookie is not rotated.",
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Refresh access token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.RefreshResponse"}},
                    "401": {"description": "NO_REFRESH_COOKIE or INVALID_REFRESH_TOKEN", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/api/auth/register": {
            "post": {
                "description": "Creates an account with role USER and no authorities. It does not log in.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Register",
                "parameters": [
                    {
                        "description": "Account",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/authsdk.RegisterRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/authsdk.RegisterResponse"}},
                    "400": {"description": "VALIDATION_ERROR", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "409": {"description": "EMAIL_TAKEN", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/api/challenges": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Requires the CHALLENGE_VIEW_ALL authority or the ADMIN role. Retired challenges are included for admins with ?all=true.",
                "produces": ["application/json"],
                "tags": ["Challenges"],
                "summary": "List challenges",
                "parameters": [
                    {
                        "type": "boolean",
                        "description": "Include retired challenges (admin only)",
                        "name": "all",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.ChallengeList"}},
                    "401": {"description": "MISSING_TOKEN, TOKEN_EXPIRED or INVALID_TOKEN", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "403": {"description": "FORBIDDEN", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/livez": {
            "get": {
                "description": "Always 200 while the process is serving.",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Liveness probe",
                "responses": {
                    "200": {"description": "status, uptime, version", "schema": {"$ref": "#/definitions/authsdk.HealthResponse"}}
                }
            }
        }
    },
    "definitions": {
        "authsdk.Challenge": {
            "type": "object",
            "properties": {
                "active": {"type": "boolean"},
                "description": {"type": "string"},
                "id": {"type": "integer"},
                "reward": {"type": "integer"},
                "title": {"type": "string"}
            }
        },
        "authsdk.ChallengeList": {
            "type": "object",
            "properties": {
                "challenges": {"type": "array", "items": {"$ref": "#/definitions/authsdk.Challenge"}}
            }
        },
        "authsdk.ErrorResponse": {
            "type": "object",
            "properties": {
                "details": {"type": "array", "items": {"type": "string"}},
                "errorCode": {"type": "string"},
                "message": {"type": "string"},
                "success": {"type": "boolean"},
                "timestamp": {"type": "string"}
            }
        },
        "authsdk.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "uptime": {"type": "string"},
                "version": {"type": "string"}
            }
        },
        "authsdk.LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "authsdk.LoginResponse": {
            "type": "object",
            "properties": {
                "authorities": {"type": "array", "items": {"type": "string"}},
                "email": {"type": "string"},
                "expiresIn": {"type": "integer"},
                "id": {"type": "integer"},
                "message": {"type": "string"},
                "role": {"type": "string"},
                "token": {"type": "string"},
                "username": {"type": "string"}
            }
        },
        "authsdk.MessageResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "success": {"type": "boolean"}
            }
        },
        "authsdk.RefreshResponse": {
            "type": "object",
            "properties": {
                "accessToken": {"type": "string"},
                "expiresIn": {"type": "integer"}
            }
        },
        "authsdk.RegisterRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"},
                "username": {"type": "string"}
            }
        },
        "authsdk.RegisterResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "success": {"type": "boolean"},
                "user": {"$ref": "#/definitions/authsdk.User"}
            }
        },
        "authsdk.User": {
            "type": "object",
            "properties": {
                "authorities": {"type": "array", "items": {"type": "string"}},
                "email": {"type": "string"},
                "id": {"type": "integer"},
                "role": {"type": "string"},
                "username": {"type": "string"}
            }
        },
        "jwtx.JWK": {
            "type": "object",
            "properties": {
                "alg": {"type": "string"},
                "crv": {"type": "string"},
                "kid": {"type": "string"},
                "kty": {"type": "string"},
                "use": {"type": "string"},
                "x": {"type": "string"}
            }
        },
        "jwtx.JWKS": {
            "type": "object",
            "properties": {
                "keys": {"type": "array", "items": {"$ref": "#/definitions/jwtx.JWK"}}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "JWT access token. Format: \"Bearer {token}\".",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Console Auth Reference API",
	Description:      "Reference backend for the admin console session SDK.\n\nAccess tokens are EdDSA-signed JWTs verifiable through the JWKS endpoint.\nRefresh tokens travel only in the HttpOnly refresh_token cookie.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
