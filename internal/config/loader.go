package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// scenarioSchema validates the shape of a scenario document before it is
// decoded, so typos surface as clear messages instead of zero values.
const scenarioSchema = `{
  "type": "object",
  "properties": {
    "target": {
      "type": "object",
      "properties": {
        "base_url": {"type": "string"},
        "endpoint": {"type": "string"},
        "timeout": {"type": "string"}
      }
    },
    "log_level": {"type": "string", "enum": ["debug", "info", "warn", "error"]},
    "cooldown": {"type": "string"},
    "simulation": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "global_error_rate": {"type": "number", "minimum": 0, "maximum": 1},
        "network_condition": {"type": "string"},
        "seed": {"type": "integer"},
        "scenarios": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["name", "type"],
            "properties": {
              "name": {"type": "string", "minLength": 1},
              "probability": {"type": "number", "minimum": 0, "maximum": 1},
              "type": {"type": "string", "enum": ["network", "timeout", "server", "client", "custom"]},
              "status_code": {"type": "integer", "minimum": 100, "maximum": 599}
            }
          }
        }
      }
    },
    "rate_limit": {
      "type": "object",
      "properties": {
        "max_requests": {"type": "integer", "minimum": 0},
        "burst_size": {"type": "integer", "minimum": 0},
        "backoff": {"type": "string", "enum": ["fixed", "linear", "exponential"]}
      }
    },
    "tests": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "pattern"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "pattern": {
            "type": "object",
            "required": ["type", "request_count"],
            "properties": {
              "type": {"type": "string", "enum": ["burst", "sustained", "gradual", "spike", "custom"]},
              "request_count": {"type": "integer", "minimum": 1}
            }
          }
        }
      }
    },
    "stress": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "duration", "concurrency", "target_rps"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "concurrency": {"type": "integer", "minimum": 1},
          "target_rps": {"type": "integer", "minimum": 1}
        }
      }
    }
  }
}`

// Load reads, validates and decodes a scenario file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 - caller-chosen scenario file
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	return Parse(data)
}

// Parse validates and decodes scenario yaml.
func Parse(data []byte) (*Config, error) {
	if err := validateDocument(data); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode scenario file: %w", err)
	}
	applyEnv(&cfg)
	return &cfg, nil
}

// validateDocument checks the yaml against the JSON schema.
func validateDocument(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse scenario file: %w", err)
	}
	if doc == nil {
		return nil // empty files fall back to defaults
	}

	jsonDoc, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("convert scenario file for validation: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(scenarioSchema),
		gojsonschema.NewBytesLoader(jsonDoc),
	)
	if err != nil {
		return fmt.Errorf("validate scenario file: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("invalid scenario file: %s", strings.Join(msgs, "; "))
	}
	return nil
}
