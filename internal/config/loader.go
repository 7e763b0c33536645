package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/JonMunkholm/docstream/internal/stream"
)

// FileEnv names the environment variable that points at a TOML config file.
const FileEnv = "DOCSTREAM_CONFIG"

// Load reads configuration from environment variables and, when path (or
// $DOCSTREAM_CONFIG) names one, a TOML file. Environment variables win over
// the file, which wins over defaults. The result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(FileEnv)
	}

	file, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	cfg := &Config{}
	if err := loadStruct(reflect.ValueOf(cfg).Elem(), file); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// fileValues maps "section.key" to the raw value found in the TOML file.
type fileValues map[string]any

func readFile(path string) (fileValues, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	values := fileValues{}
	for section, v := range raw {
		table, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("parse %s: %q must be a table", path, section)
		}
		for key, val := range table {
			values[section+"."+key] = val
		}
	}
	return values, nil
}

// loadStruct populates the sections of cfg from the environment, the file
// values and the default tags, in that order of precedence.
func loadStruct(v reflect.Value, file fileValues) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		sectionVal := v.Field(i)
		if !sectionVal.CanSet() || section.Type.Kind() != reflect.Struct {
			continue
		}
		if err := loadSection(sectionVal, section.Tag.Get("toml"), file); err != nil {
			return err
		}
	}
	return nil
}

func loadSection(v reflect.Value, sectionName string, file fileValues) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		tomlKey := field.Tag.Get("toml")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		// Try primary env var, then alternate, then the file
		source := envName
		value := os.Getenv(envName)
		if value == "" && envAlt != "" {
			value = os.Getenv(envAlt)
		}
		if value == "" && tomlKey != "" {
			if raw, ok := file[sectionName+"."+tomlKey]; ok {
				s, err := fileString(raw)
				if err != nil {
					return fmt.Errorf("invalid value for %s.%s: %w", sectionName, tomlKey, err)
				}
				value = s
				source = sectionName + "." + tomlKey
			}
		}

		// Apply default if not set
		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", source, value, err)
		}
	}

	return nil
}

// fileString renders a TOML value in the same textual form an environment
// variable would carry, so both go through setField.
func fileString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			s, err := fileString(item)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return strings.Join(parts, ","), nil
	default:
		return "", fmt.Errorf("unsupported TOML value of type %T", v)
	}
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		// Split comma-separated values, trim whitespace
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Decode validation
	if len(c.Decode.Encodings) == 0 {
		errs = append(errs, "DECODE_ENCODINGS must list at least one encoding")
	} else if _, err := stream.EncodingsByName(c.Decode.Encodings); err != nil {
		errs = append(errs, fmt.Sprintf("DECODE_ENCODINGS: %v", err))
	}
	if c.Decode.MaxBytes < 0 {
		errs = append(errs, "DECODE_MAX_BYTES must be non-negative")
	}

	// Upload validation
	if c.Upload.BatchSize <= 0 {
		errs = append(errs, "UPLOAD_BATCH_SIZE must be positive")
	}
	if c.Upload.MaxConcurrent <= 0 {
		errs = append(errs, "UPLOAD_MAX_CONCURRENT must be positive")
	}
	if c.Upload.Timeout <= 0 {
		errs = append(errs, "UPLOAD_TIMEOUT must be positive")
	}
	if c.Upload.PollInterval <= 0 {
		errs = append(errs, "UPLOAD_POLL_INTERVAL must be positive")
	}

	// API validation
	if c.API.Timeout <= 0 {
		errs = append(errs, "API_TIMEOUT must be positive")
	}

	// Preview validation
	if c.Preview.Port <= 0 || c.Preview.Port > 65535 {
		errs = append(errs, fmt.Sprintf("PREVIEW_PORT (%d) must be 1-65535", c.Preview.Port))
	}
	if c.Preview.ReadTimeout < 0 {
		errs = append(errs, "PREVIEW_READ_TIMEOUT must be non-negative")
	}
	if c.Preview.ShutdownTimeout <= 0 {
		errs = append(errs, "PREVIEW_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Preview.MaxFileSize <= 0 {
		errs = append(errs, "PREVIEW_MAX_FILE_SIZE must be positive")
	}
	if c.Preview.SampleSize <= 0 {
		errs = append(errs, "PREVIEW_SAMPLE_SIZE must be positive")
	}
	if c.Preview.MaxConcurrent <= 0 {
		errs = append(errs, "PREVIEW_MAX_CONCURRENT must be positive")
	}
	if c.Preview.MaxWaitTime <= 0 {
		errs = append(errs, "PREVIEW_MAX_WAIT_TIME must be positive")
	}
	if c.Preview.RateLimit < 0 {
		errs = append(errs, "PREVIEW_RATE_LIMIT must be non-negative")
	}

	// Database validation
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.Table == "" {
		errs = append(errs, "DB_STAGING_TABLE must not be empty")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// ErrMissingSetting is returned by the Require helpers.
var ErrMissingSetting = errors.New("missing setting")

// RequireAPI reports what the upload commands still need. An empty API_URL
// is allowed and means the default API host.
func (c *Config) RequireAPI() error {
	var missing []string
	if !c.API.HasCredentials() {
		missing = append(missing, "API_PASSWORD or API_TOKEN")
	}
	if c.Upload.Database == "" {
		missing = append(missing, "UPLOAD_DATABASE")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSetting, strings.Join(missing, ", "))
	}
	return nil
}

// RequireDatabase reports whether staging can connect.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return fmt.Errorf("%w: DATABASE_URL", ErrMissingSetting)
	}
	return nil
}
