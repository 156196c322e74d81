package bank

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// profileSchema guards operator-supplied profile files before any
// field reaches the database. Structural mistakes (a string port, a
// misspelled file_format) fail here with a position, not at the first
// upload attempt.
const profileSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": [
			"bank_code", "host", "port", "username",
			"upload_path", "download_path", "archive_path",
			"file_format", "encoding", "payment_pattern", "recon_pattern"
		],
		"properties": {
			"bank_code": {"type": "string", "minLength": 1},
			"host": {"type": "string", "minLength": 1},
			"port": {"type": "integer", "minimum": 1, "maximum": 65535},
			"username": {"type": "string", "minLength": 1},
			"password": {"type": "string"},
			"private_key": {"type": "string"},
			"host_key": {"type": "string"},
			"upload_path": {"type": "string", "minLength": 1},
			"download_path": {"type": "string", "minLength": 1},
			"archive_path": {"type": "string", "minLength": 1},
			"file_format": {"enum": ["fixed_width", "csv"]},
			"encoding": {"type": "string", "minLength": 1},
			"delimiter": {"type": "string", "maxLength": 1},
			"payment_pattern": {"type": "string", "minLength": 1},
			"recon_pattern": {"type": "string", "minLength": 1},
			"retry_attempts": {"type": "integer", "minimum": 0},
			"retry_delay_minutes": {"type": "integer", "minimum": 0},
			"failure_threshold": {"type": "integer", "minimum": 0},
			"cooldown_seconds": {"type": "integer", "minimum": 0},
			"cutoff_time": {"type": "string", "pattern": "^[0-2][0-9]:[0-5][0-9]$"},
			"is_active": {"type": "boolean"}
		}
	}
}`

var compiledProfileSchema = jsonschema.MustCompileString("profiles.json", profileSchema)

// ParseProfiles validates and decodes a bank profile file (a JSON
// array of configs). Every config also passes Validate.
func ParseProfiles(data []byte) ([]Config, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	if err := compiledProfileSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid profiles: %w", err)
	}

	var configs []Config
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	for i := range configs {
		if err := configs[i].Validate(); err != nil {
			return nil, err
		}
	}
	return configs, nil
}
