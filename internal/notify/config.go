package notify

import (
	"errors"
	"fmt"
)

// Config holds ntfy notification configuration.
type Config struct {
	Enabled  bool   `mapstructure:"enabled"`
	Server   string `mapstructure:"server"`   // ntfy server URL (default: https://ntfy.sh)
	Topic    string `mapstructure:"topic"`    // Topic name (required if enabled)
	Priority string `mapstructure:"priority"` // min, low, default, high, urgent
	Tags     string `mapstructure:"tags"`     // Comma-separated emoji tags
	Token    string `mapstructure:"token"`    // Optional access token for private topics

	// FailureThreshold is how many consecutive delivery failures a
	// session accumulates before a notification is sent.
	FailureThreshold int `mapstructure:"failure_threshold"`
}

// Validate checks configuration is valid when enabled.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Topic == "" {
		return errors.New("notify.topic is required when notifications are enabled")
	}

	validPriorities := map[string]bool{
		"min": true, "low": true, "default": true, "high": true, "urgent": true,
	}
	if !validPriorities[c.Priority] {
		return fmt.Errorf("invalid notify.priority: %s (valid: min, low, default, high, urgent)", c.Priority)
	}

	if c.FailureThreshold < 1 {
		return fmt.Errorf("notify.failure_threshold must be >= 1, got %d", c.FailureThreshold)
	}

	return nil
}
