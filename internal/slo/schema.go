package slo

// definitionSchema is the JSON schema SLO definition files are validated
// against before they are accepted into the registry. Structural rules live
// here; cross-field rules (window ordering, fingerprint collisions) live in
// the validator.
const definitionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "title": "SLO definition",
  "type": "object",
  "required": ["id", "tenantId", "name", "target"],
  "properties": {
    "id": {
      "type": "string",
      "minLength": 1,
      "pattern": "^[a-z0-9][a-z0-9-]*$"
    },
    "tenantId": {
      "type": "string",
      "minLength": 1
    },
    "name": {
      "type": "string",
      "minLength": 1
    },
    "service": {
      "type": "string"
    },
    "description": {
      "type": "string"
    },
    "target": {
      "type": "number",
      "exclusiveMinimum": 0,
      "exclusiveMaximum": 1
    },
    "goodQuery": {
      "type": "string",
      "minLength": 1
    },
    "totalQuery": {
      "type": "string",
      "minLength": 1
    },
    "errorRatioQuery": {
      "type": "string",
      "minLength": 1
    },
    "windowDays": {
      "type": "integer",
      "minimum": 1
    },
    "fastBurnThreshold": {
      "type": "number",
      "exclusiveMinimum": 0
    },
    "slowBurnThreshold": {
      "type": "number",
      "exclusiveMinimum": 0
    },
    "fastWindow": {
      "type": "string",
      "pattern": "^[0-9]+(s|m|h|d)$"
    },
    "slowWindow": {
      "type": "string",
      "pattern": "^[0-9]+(s|m|h|d)$"
    },
    "disabled": {
      "type": "boolean"
    }
  },
  "anyOf": [
    {"required": ["errorRatioQuery"]},
    {"required": ["goodQuery", "totalQuery"]}
  ],
  "additionalProperties": false
}`
