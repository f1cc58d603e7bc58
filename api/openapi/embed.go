// Package openapi carries the HTTP API description served at /api/openapi.yaml.
package openapi

import _ "embed"

// Document is the OpenAPI 3 description of the incident API.
//
//go:embed openapi.yaml
var Document []byte
