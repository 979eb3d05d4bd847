package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const configSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "poll_interval": {"type": ["string", "number"]},
    "delete_files": {"type": "boolean"},
    "manifest_filename": {"type": "string", "minLength": 1, "pattern": "^[^/\\\\]+$"},
    "tools": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "verify": {"type": "string", "minLength": 1},
        "assemble": {"type": "string", "minLength": 1},
        "ocr": {"type": "string", "minLength": 1}
      }
    },
    "ocr": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "rotate_pages": {"type": "boolean"},
        "rotate_pages_threshold": {"type": "number", "minimum": 0},
        "deskew": {"type": "boolean"},
        "clean": {"type": "boolean"},
        "language": {"type": "string"}
      }
    },
    "notify": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "debounce": {"type": ["string", "number"]}
      }
    },
    "history": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "dsn": {"type": "string"}
      }
    },
    "log": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "level": {"enum": ["debug", "info", "warn", "error"]},
        "format": {"enum": ["text", "json"]}
      }
    }
  }
}`

// Duration decodes either a Go duration string or a number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseDurationOrSeconds(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// FileConfig mirrors the YAML config file. Nil fields leave defaults untouched.
type FileConfig struct {
	PollInterval     *Duration `yaml:"poll_interval"`
	DeleteFiles      *bool     `yaml:"delete_files"`
	ManifestFilename *string   `yaml:"manifest_filename"`
	Tools            struct {
		Verify   *string `yaml:"verify"`
		Assemble *string `yaml:"assemble"`
		OCR      *string `yaml:"ocr"`
	} `yaml:"tools"`
	OCR struct {
		RotatePages          *bool    `yaml:"rotate_pages"`
		RotatePagesThreshold *float64 `yaml:"rotate_pages_threshold"`
		Deskew               *bool    `yaml:"deskew"`
		Clean                *bool    `yaml:"clean"`
		Language             *string  `yaml:"language"`
	} `yaml:"ocr"`
	Notify struct {
		Enabled  *bool     `yaml:"enabled"`
		Debounce *Duration `yaml:"debounce"`
	} `yaml:"notify"`
	History struct {
		DSN *string `yaml:"dsn"`
	} `yaml:"history"`
	Log struct {
		Level  *string `yaml:"level"`
		Format *string `yaml:"format"`
	} `yaml:"log"`
}

// LoadConfigFile reads a YAML config file and validates it against the config schema.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfigFile(data)
}

// ParseConfigFile validates and decodes YAML config bytes.
func ParseConfigFile(data []byte) (*FileConfig, error) {
	var fc FileConfig
	if len(bytes.TrimSpace(data)) == 0 {
		return &fc, nil
	}
	if err := validateConfigDocument(data); err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &fc, nil
}

func validateConfigDocument(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if doc == nil {
		return nil
	}
	// round-trip through JSON so the validator sees plain JSON values
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("convert yaml: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("convert yaml: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.schema.json", strings.NewReader(configSchema)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("config.schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}
	return nil
}

// Apply copies every field set in the file onto cfg.
func (fc *FileConfig) Apply(cfg *Config) {
	setDuration(&cfg.Watch.PollInterval, fc.PollInterval)
	setBool(&cfg.Watch.DeleteFiles, fc.DeleteFiles)
	setString(&cfg.Watch.ManifestFilename, fc.ManifestFilename)

	setString(&cfg.Tools.Verify, fc.Tools.Verify)
	setString(&cfg.Tools.Assemble, fc.Tools.Assemble)
	setString(&cfg.Tools.OCR, fc.Tools.OCR)

	setBool(&cfg.OCR.RotatePages, fc.OCR.RotatePages)
	if fc.OCR.RotatePagesThreshold != nil {
		cfg.OCR.RotatePagesThreshold = *fc.OCR.RotatePagesThreshold
	}
	setBool(&cfg.OCR.Deskew, fc.OCR.Deskew)
	setBool(&cfg.OCR.Clean, fc.OCR.Clean)
	setString(&cfg.OCR.Language, fc.OCR.Language)

	setBool(&cfg.Watch.Notify, fc.Notify.Enabled)
	setDuration(&cfg.Watch.NotifyDebounce, fc.Notify.Debounce)

	setString(&cfg.History.DSN, fc.History.DSN)
	setString(&cfg.Log.Level, fc.Log.Level)
	setString(&cfg.Log.Format, fc.Log.Format)
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *Duration) {
	if src != nil {
		*dst = time.Duration(*src)
	}
}
