package config

import (
	"crypto/aes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/language"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s=%s]: %s", e.Field, e.Value, e.Message)
}

// ValidationResult holds the results of configuration validation
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
	Valid    bool
}

// AddError adds a validation error
func (r *ValidationResult) AddError(field, value, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Value: value, Message: message})
	r.Valid = false
}

// AddWarning adds a validation warning
func (r *ValidationResult) AddWarning(field, value, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Value: value, Message: message})
}

var validBackends = []string{"memory", "file", "bbolt", "redis"}

// Validate validates the configuration and returns validation results
func (c *Config) Validate() ValidationResult {
	result := ValidationResult{Valid: true}

	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		result.AddError("api.base_url", c.API.BaseURL, "must be an absolute http(s) URL")
	} else if u.Scheme != "http" && u.Scheme != "https" {
		result.AddError("api.base_url", c.API.BaseURL, "scheme must be http or https")
	}

	if strings.TrimSpace(c.API.CredentialHeader) == "" {
		result.AddError("api.credential_header", c.API.CredentialHeader, "must not be empty")
	}
	if !strings.HasPrefix(c.API.SessionPath, "/") {
		result.AddError("api.session_path", c.API.SessionPath, "must start with /")
	}

	// AES-128/192/256 are all accepted by crypto/aes; the deployed backend uses 16 bytes.
	switch n := len(c.Session.BootstrapKey); n {
	case 16:
	case 24, 32:
		result.AddWarning("session.bootstrap_key", "", fmt.Sprintf("%d-byte key differs from the 16-byte backend default", n))
	default:
		result.AddError("session.bootstrap_key", "", aes.KeySizeError(n).Error())
	}

	if !contains(validBackends, c.Storage.Backend) {
		result.AddError("storage.backend", c.Storage.Backend,
			fmt.Sprintf("must be one of: %s", strings.Join(validBackends, ", ")))
	}
	switch c.Storage.Backend {
	case "redis":
		if c.Storage.RedisAddr == "" {
			result.AddError("storage.redis_addr", c.Storage.RedisAddr, "required when using redis backend")
		}
	case "file", "bbolt":
		if c.Storage.Path == "" {
			result.AddError("storage.path", c.Storage.Path, "required when using "+c.Storage.Backend+" backend")
		}
	}

	if c.Transport.ProxyURL != "" {
		if _, err := url.Parse(c.Transport.ProxyURL); err != nil {
			result.AddError("transport.proxy_url", c.Transport.ProxyURL, err.Error())
		}
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		result.AddError("tracing.sample_ratio", fmt.Sprint(c.Tracing.SampleRatio), "must be between 0 and 1")
	}

	if c.UI.Language != "" {
		if _, err := language.Parse(c.UI.Language); err != nil {
			result.AddError("ui.language", c.UI.Language, "not a BCP 47 language tag")
		}
	}

	return result
}

// ValidateAndExpandPaths expands ~ and environment variables in path settings.
func (c *Config) ValidateAndExpandPaths() error {
	var err error
	if c.Storage.Path != "" {
		c.Storage.Path, err = expandPath(c.Storage.Path)
		if err != nil {
			return fmt.Errorf("invalid storage.path: %v", err)
		}
	}
	if c.Security.LogFile != "" {
		c.Security.LogFile, err = expandPath(c.Security.LogFile)
		if err != nil {
			return fmt.Errorf("invalid log_file path: %v", err)
		}
	}
	return nil
}

// expandPath expands ~ and environment variables in file paths
func expandPath(path string) (string, error) {
	if path == "" {
		return path, nil
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot get home directory: %v", err)
		}
		path = filepath.Join(home, path[2:])
	}
	path = os.ExpandEnv(path)
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot convert to absolute path: %v", err)
	}
	return absPath, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
