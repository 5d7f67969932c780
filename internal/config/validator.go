package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"crmdash-go/internal/constants"
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

// Validate checks the configuration. Missing OAuth client credentials are
// warnings only: the affected routes answer with a config error instead.
func (c *Config) Validate() ValidationResult {
	result := ValidationResult{Valid: true}

	if err := validatePort(c.Server.Port); err != nil {
		result.AddError("server.port", c.Server.Port, err.Error())
	}
	if c.Provider.Name == "" {
		result.AddError("provider.name", "", "provider name is required")
	}
	for field, raw := range map[string]string{
		"provider.api_base":  c.Provider.APIBase,
		"provider.token_url": c.Provider.TokenURL,
		"provider.auth_url":  c.Provider.AuthURL,
	} {
		if err := validateHTTPURL(raw); err != nil {
			result.AddError(field, raw, err.Error())
		}
	}
	if c.Provider.ClientID == "" {
		result.AddWarning("provider.client_id", "", "CLIENT_ID not set; /auth will fail")
	}
	if c.Provider.ClientSecret == "" {
		result.AddWarning("provider.client_secret", "", "CLIENT_SECRET not set; token exchange will fail")
	}
	if c.Crawl.PageSize <= 0 || c.Crawl.PageSize > 100 {
		result.AddError("crawl.page_size", strconv.Itoa(c.Crawl.PageSize), "page size must be between 1 and 100")
	}
	if c.Crawl.MaxPages <= 0 {
		result.AddError("crawl.max_pages", strconv.Itoa(c.Crawl.MaxPages), "page ceiling must be positive")
	}
	if c.Dashboard.SubscriberBuffer <= 0 {
		result.AddWarning("dashboard.subscriber_buffer", strconv.Itoa(c.Dashboard.SubscriberBuffer), fmt.Sprintf("non-positive buffer; using %d", constants.DefaultSubscriberBuffer))
	}
	if !c.Cookies.Secure && strings.HasPrefix(c.Provider.RedirectURI, "https://") {
		result.AddWarning("cookies.secure", "false", "redirect URI is https but token cookies are not marked Secure")
	}
	return result
}

func validatePort(port string) error {
	n, err := strconv.Atoi(strings.TrimSpace(port))
	if err != nil {
		return fmt.Errorf("port must be numeric")
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

func validateHTTPURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("url host is required")
	}
	return nil
}
