package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultCorsMaxAge is the preflight cache lifetime in seconds.
const DefaultCorsMaxAge = 300

// CorsConfig is the stored browser-origin policy for the API.
type CorsConfig struct {
	ConfigKey        string    `json:"config_key"`
	AllowedOrigins   string    `json:"allowed_origins"` // comma separated
	AllowCredentials bool      `json:"allow_credentials"`
	MaxAge           int       `json:"max_age"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Origins returns the allowed origins, trimmed and de-duplicated.
func (c *CorsConfig) Origins() []string {
	return ParseOrigins(c.AllowedOrigins)
}

// Validate checks every origin is "*" or a bare scheme://host[:port].
func (c *CorsConfig) Validate() error {
	origins := c.Origins()
	if len(origins) == 0 {
		return fmt.Errorf("allowed_origins cannot be empty")
	}
	for _, o := range origins {
		if err := validateOrigin(o); err != nil {
			return err
		}
	}
	if c.MaxAge < 0 {
		return fmt.Errorf("max_age must not be negative, got %d", c.MaxAge)
	}
	return nil
}

// ParseOrigins splits a comma-separated origin list. Trailing slashes are dropped.
func ParseOrigins(raw string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range strings.Split(raw, ",") {
		s := strings.TrimRight(strings.TrimSpace(p), "/")
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func validateOrigin(o string) error {
	if o == "*" {
		return nil
	}
	u, err := url.Parse(o)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("origin %q must look like https://host[:port]", o)
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("origin %q must not carry a path or query", o)
	}
	return nil
}
