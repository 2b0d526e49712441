package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) addError(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) addWarning(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}
	c.Database.validate(result)
	c.Catalog.validate(result)
	c.Sync.validate(result)
	c.Observability.validate(result)
	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	driver, err := d.DriverName()
	if err != nil {
		result.addError("database.driver", err.Error(), "valid values are: mysql, postgres, pq, sqlite3")
		return
	}

	switch driver {
	case "sqlite3":
		if d.ConnectionString == "" && d.Database == "" {
			result.addError("database.database", "sqlite3 needs a database file", "set database.database to a file path or database.dsn")
		}
		if d.TLS.Mode != "" {
			result.addWarning("database.tls.mode", "TLS settings are ignored for sqlite3", "")
		}
	default:
		if d.ConnectionString == "" {
			if strings.TrimSpace(d.Host) == "" {
				result.addError("database.host", "host is required when database.dsn is not set", "")
			}
			if d.Port < 1 || d.Port > 65535 {
				result.addError("database.port", fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port), "")
			}
			if strings.TrimSpace(d.Database) == "" {
				result.addError("database.database", "database name is required when database.dsn is not set", "set database.database or include /<database> in database.dsn")
			}
		}
		if driver == "mysql" && d.ConnectionString != "" {
			if _, err := d.mysqlDSN(); err != nil {
				result.addError("database.dsn", err.Error(), "set a valid go-sql-driver/mysql DSN")
			}
		}
		d.TLS.validate(result)
	}

	if d.Pool.MaxOpen < 0 {
		result.addError("database.pool.max_open", "max_open cannot be negative", "")
	}
	if d.Pool.MaxIdle < 0 {
		result.addError("database.pool.max_idle", "max_idle cannot be negative", "")
	}
	if d.Pool.MaxIdle > d.Pool.MaxOpen && d.Pool.MaxOpen > 0 {
		result.addWarning("database.pool.max_idle", "max_idle is greater than max_open", "idle connections will be limited to max_open")
	}
	if d.ConnectionTimeout < 0 {
		result.addError("database.connection_timeout", "connection_timeout cannot be negative", "")
	}
}

func (t *DatabaseTLSConfig) validate(result *ValidationResult) {
	validModes := map[string]bool{"": true, "off": true, "skip-verify": true, "verify-ca": true, "verify-full": true}
	if !validModes[t.Mode] {
		result.addError("database.tls.mode", fmt.Sprintf("invalid TLS mode %q", t.Mode), "valid values are: off, skip-verify, verify-ca, verify-full")
	}
	if (t.Mode == "verify-ca" || t.Mode == "verify-full") && t.CAFile == "" {
		result.addError("database.tls.ca_file", "CA file is required for verify-ca and verify-full modes", "set ca_file to the CA certificate")
	}
	if (t.CertFile != "") != (t.KeyFile != "") {
		result.addError("database.tls.cert_file", "both cert_file and key_file must be specified for client certificate authentication", "provide both cert_file and key_file, or neither")
	}
	if t.Mode == "skip-verify" {
		result.addWarning("database.tls.mode", "skip-verify mode does not verify server certificates", "use verify-ca or verify-full in production")
	}
}

func (c *CatalogConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(c.Path) == "" {
		result.addError("catalog.path", "catalog path is required", "set catalog.path or --catalog.path to a yaml or json catalog")
		return
	}
	switch strings.ToLower(filepath.Ext(c.Path)) {
	case ".yaml", ".yml", ".json":
	default:
		result.addError("catalog.path", fmt.Sprintf("unsupported catalog format %q", filepath.Ext(c.Path)), "use a .yaml, .yml or .json file")
		return
	}
	if _, err := os.Stat(c.Path); err != nil {
		result.addError("catalog.path", fmt.Sprintf("catalog file is not readable: %v", err), "")
	}
}

func (s *SyncConfig) validate(result *ValidationResult) {
	if s.ExistsBatchSize < 1 {
		result.addError("sync.exists_batch_size", "exists_batch_size must be at least 1", "")
	}
	if !s.ValidateExists {
		result.addWarning("sync.validate_exists", "existence checks are disabled by default", "missing targets will surface as foreign-key errors, or not at all without constraints")
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.addError("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level), "valid values are: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.addError("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format), "valid values are: json, text")
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.addError("observability.trace_sample_ratio", fmt.Sprintf("trace_sample_ratio %v is outside [0, 1]", o.TraceSampleRatio), "")
	}

	if o.MetricsTextfile != "" {
		if !o.MetricsEnabled {
			result.addWarning("observability.metrics_textfile", "metrics textfile is set but metrics are disabled", "enable observability.metrics_enabled")
		}
		if filepath.Ext(o.MetricsTextfile) != ".prom" {
			result.addWarning("observability.metrics_textfile", "the node-exporter textfile collector only reads *.prom files", "")
		}
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.addError(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol), "valid values are: grpc, http/protobuf")
	}
	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.addError(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint), "use host:port or a full URL")
	}
	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.addError(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression), "valid values are: none, gzip")
	}
	if o.RetryMaxAttempts < 0 {
		result.addError(prefix+".retry_max_attempts", "retry_max_attempts cannot be negative", "")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
