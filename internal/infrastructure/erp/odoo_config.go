package erp

import (
	"fmt"
	"strings"

	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
)

// OdooConfig holds configuration for the Odoo JSON-RPC integration
type OdooConfig struct {
	// URL is the base URL of the Odoo instance, e.g. https://erp.example.com
	URL string
	// Database is the Odoo database name
	Database string
	// Username is the login of the integration user
	Username string
	// APIKey is the API key (or password) of the integration user
	APIKey string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
	// RateLimit caps requests per second; 0 disables pacing
	RateLimit float64
	// RateBurst is the number of requests allowed in a burst
	RateBurst int
}

const (
	defaultOdooTimeoutSeconds = 30
	jsonRPCPath               = "/jsonrpc"
)

// NewOdooConfig creates a new Odoo configuration with defaults
func NewOdooConfig(url, database, username, apiKey string) *OdooConfig {
	return &OdooConfig{
		URL:            url,
		Database:       database,
		Username:       username,
		APIKey:         apiKey,
		TimeoutSeconds: defaultOdooTimeoutSeconds,
	}
}

// Validate validates the configuration and fills defaults.
// Missing credentials are reported as integration.ErrERPNotConfigured.
func (c *OdooConfig) Validate() error {
	c.URL = strings.TrimRight(strings.TrimSpace(c.URL), "/")
	switch {
	case c.URL == "":
		return fmt.Errorf("%w: odoo url is required", integration.ErrERPNotConfigured)
	case c.Database == "":
		return fmt.Errorf("%w: odoo database is required", integration.ErrERPNotConfigured)
	case c.Username == "":
		return fmt.Errorf("%w: odoo username is required", integration.ErrERPNotConfigured)
	case c.APIKey == "":
		return fmt.Errorf("%w: odoo api key is required", integration.ErrERPNotConfigured)
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = defaultOdooTimeoutSeconds
	}
	if c.RateLimit < 0 {
		c.RateLimit = 0
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		c.RateBurst = 1
	}
	return nil
}

// Endpoint returns the JSON-RPC endpoint
func (c *OdooConfig) Endpoint() string {
	return c.URL + jsonRPCPath
}
