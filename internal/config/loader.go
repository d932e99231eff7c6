package config

import (
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// identRegex restricts table names, which are interpolated into SQL.
var identRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		// Get tags
		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		// Try primary env var, then alternate
		value := os.Getenv(envName)
		if value == "" && envAlt != "" {
			value = os.Getenv(envAlt)
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

		// Set the field value
		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
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

	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			// Split comma-separated values, trim whitespace
			parts := strings.Split(value, ",")
			result := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					result = append(result, p)
				}
			}
			field.Set(reflect.ValueOf(result))
		} else {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if !identRegex.MatchString(c.Database.ProductsTable) {
		errs = append(errs, fmt.Sprintf("PRODUCTS_TABLE (%q) must be a plain SQL identifier", c.Database.ProductsTable))
	}
	if !identRegex.MatchString(c.Database.StocksTable) {
		errs = append(errs, fmt.Sprintf("STOCKS_TABLE (%q) must be a plain SQL identifier", c.Database.StocksTable))
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "RATE_LIMIT_PER_MINUTE cannot be negative")
	}

	// Storage validation
	if c.Storage.Bucket == "" {
		errs = append(errs, "BUCKET_NAME is required")
	}
	if !strings.HasSuffix(c.Storage.UploadPrefix, "/") || !strings.HasSuffix(c.Storage.ParsedPrefix, "/") {
		errs = append(errs, "STORAGE_UPLOAD_PREFIX and STORAGE_PARSED_PREFIX must end with /")
	}
	if c.Storage.UploadPrefix == c.Storage.ParsedPrefix {
		errs = append(errs, "STORAGE_UPLOAD_PREFIX and STORAGE_PARSED_PREFIX must differ")
	}
	if c.Storage.PresignExpiry <= 0 {
		errs = append(errs, "STORAGE_PRESIGN_EXPIRY must be positive")
	}

	// Queue validation
	if c.Queue.Name == "" {
		errs = append(errs, "CATALOG_ITEMS_QUEUE is required")
	}
	if c.Queue.DeadLetter != "" && c.Queue.DeadLetter == c.Queue.Name {
		errs = append(errs, "QUEUE_DEAD_LETTER must differ from CATALOG_ITEMS_QUEUE")
	}
	if c.Queue.ConfirmTimeout <= 0 {
		errs = append(errs, "QUEUE_CONFIRM_TIMEOUT must be positive")
	}
	if c.Queue.Prefetch <= 0 {
		errs = append(errs, "QUEUE_PREFETCH must be positive")
	}

	// Import validation
	if c.Import.BatchSize <= 0 {
		errs = append(errs, "IMPORT_BATCH_SIZE must be positive")
	}
	if c.Import.Delimiter != `\t` && utf8.RuneCountInString(c.Import.Delimiter) != 1 {
		errs = append(errs, fmt.Sprintf("IMPORT_DELIMITER (%q) must be a single character", c.Import.Delimiter))
	}
	if q := c.Import.Quote; q != "none" && q != "\"" {
		errs = append(errs, fmt.Sprintf("IMPORT_QUOTE (%q) must be \" or none", q))
	}
	if c.Import.MaxConcurrent <= 0 {
		errs = append(errs, "IMPORT_MAX_CONCURRENT must be positive")
	}
	if c.Import.FileTimeout <= 0 {
		errs = append(errs, "IMPORT_FILE_TIMEOUT must be positive")
	}
	if c.Import.SweepInterval < 0 {
		errs = append(errs, "IMPORT_SWEEP_INTERVAL must be non-negative")
	}

	// Auth validation
	if c.Auth.Enabled && len(c.Auth.CredentialMap()) == 0 {
		errs = append(errs, "AUTH_ENABLED is true but AUTH_CREDENTIALS has no login=password pairs")
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

// String returns a safe string representation of the config for logging.
// Database URL, storage secret, broker URL and credentials are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Database: {URL: [MASKED], Products: %q, Stocks: %q}, ",
		c.Database.ProductsTable, c.Database.StocksTable)
	fmt.Fprintf(&b, "Storage: {Endpoint: %q, Bucket: %q, SecretKey: [MASKED]}, ",
		c.Storage.Endpoint, c.Storage.Bucket)
	fmt.Fprintf(&b, "Queue: {URL: [MASKED], Name: %q, DeadLetter: %q}, ",
		c.Queue.Name, c.Queue.DeadLetter)
	fmt.Fprintf(&b, "Import: {BatchSize: %d, Delimiter: %q, Quote: %q}, ",
		c.Import.BatchSize, c.Import.Delimiter, c.Import.Quote)
	fmt.Fprintf(&b, "Auth: {Enabled: %v, Credentials: %d}, ", c.Auth.Enabled, len(c.Auth.Credentials))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
