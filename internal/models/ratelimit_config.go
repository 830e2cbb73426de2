package models

import (
	"fmt"
	"time"
)

// RatelimitConfig holds the generation admission policy: Limit requests per WindowMs.
type RatelimitConfig struct {
	ConfigKey string    `json:"config_key"`
	Limit     int       `json:"limit"`
	WindowMs  int64     `json:"window_ms"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Window returns WindowMs as a duration.
func (c *RatelimitConfig) Window() time.Duration {
	return time.Duration(c.WindowMs) * time.Millisecond
}

// Validate rejects non-positive values.
func (c *RatelimitConfig) Validate() error {
	if c.Limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", c.Limit)
	}
	if c.WindowMs <= 0 {
		return fmt.Errorf("window_ms must be positive, got %d", c.WindowMs)
	}
	return nil
}
