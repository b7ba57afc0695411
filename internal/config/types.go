package config

import (
	"fmt"
	"time"
)

// Duration is a time.Duration written as "90s" or "15m" in YAML and
// environment variables.
type Duration time.Duration

// UnmarshalText parses a Go duration string. Negative values are rejected.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText renders d the way UnmarshalText reads it.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// redacted stands in for a configured credential in any printed or encoded
// form.
const redacted = "[REDACTED]"

// Secret is a credential read from configuration. Only Value exposes it;
// fmt, JSON and zap reflection all see a placeholder.
type Secret string

func (s Secret) Value() string {
	return string(s)
}

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
