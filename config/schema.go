package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/bridgekit/errors"
)

// documentSchema is the JSON Schema the merged configuration document must
// satisfy before it is unmarshaled. It pins the top-level shape so typos in
// section names fail loudly; field-level rules live in the component
// Validate methods.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "bridgekit host configuration",
  "type": "object",
  "additionalProperties": false,
  "required": ["host", "namespaces"],
  "properties": {
    "version": {"type": "string"},
    "host": {
      "type": "object",
      "additionalProperties": false,
      "required": ["org"],
      "properties": {
        "org": {"type": "string", "minLength": 1},
        "instance": {"type": "string"},
        "environment": {"type": "string"}
      }
    },
    "namespaces": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "minLength": 1}
    },
    "modules": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "settings": {"type": "object"},
        "orientation": {"type": "object"},
        "permissions": {"type": "object"},
        "geolocation": {"type": "object"},
        "custom": {
          "type": "object",
          "additionalProperties": {"type": "object"}
        }
      }
    },
    "bridge": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "default_timeout": {"type": "integer", "minimum": 0},
        "max_timeout": {"type": "integer", "minimum": 0},
        "workers": {"type": "integer", "minimum": 0},
        "queue_size": {"type": "integer", "minimum": 0}
      }
    },
    "script": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "call_timeout": {"type": "integer", "minimum": 0},
        "exec_timeout": {"type": "integer", "minimum": 0},
        "queue_capacity": {"type": "integer", "minimum": 0}
      }
    },
    "gateway": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "port": {"type": "integer", "minimum": 0, "maximum": 65535},
        "path": {"type": "string"},
        "allowed_origins": {"type": "array", "items": {"type": "string"}},
        "max_frame_bytes": {"type": "integer", "minimum": 0},
        "frame_rate": {"type": "number", "minimum": 0},
        "frame_burst": {"type": "integer", "minimum": 0},
        "write_timeout": {"type": "integer", "minimum": 0},
        "pong_timeout": {"type": "integer", "minimum": 0},
        "ping_interval": {"type": "integer", "minimum": 0},
        "queue_capacity": {"type": "integer", "minimum": 0}
      }
    },
    "metrics": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "port": {"type": "integer", "minimum": 0, "maximum": 65535},
        "path": {"type": "string"}
      }
    },
    "nats": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "urls": {"type": "array", "items": {"type": "string"}},
        "max_reconnects": {"type": "integer"},
        "reconnect_wait": {"type": "integer", "minimum": 0},
        "username": {"type": "string"},
        "password": {"type": "string"},
        "token": {"type": "string"},
        "tls": {"type": "object"}
      }
    },
    "security": {"type": "object"}
  }
}`

// validateDocument checks the merged raw document against the embedded
// schema. Errors carry every violation, one per line.
func validateDocument(doc map[string]any) error {
	schemaLoader := gojsonschema.NewStringLoader(documentSchema)
	documentLoader := gojsonschema.NewGoLoader(doc)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return errors.WrapFatal(err, "Loader", "Load", "run schema validation")
	}
	if result.Valid() {
		return nil
	}

	var b strings.Builder
	for i, desc := range result.Errors() {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %s", desc.Field(), desc.Description())
	}
	return errors.WrapInvalid(errors.ErrInvalidConfig, "Loader", "Load",
		fmt.Sprintf("config document rejected by schema: %s", b.String()))
}
