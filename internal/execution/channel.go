// internal/execution/channel.go
package execution

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/kwdriver/internal/fault"
)

// Channel selects how an action's outcome reaches the caller.
type Channel int

const (
	// Hard reports start, success and failure events and returns failures as errors.
	Hard Channel = iota
	// Soft reports events but never returns an error for a failed action, only a negative
	// outcome. Validation errors are the exception.
	Soft
	// Silent reports nothing and returns failures as errors.
	Silent
)

func (c Channel) String() string {
	switch c {
	case Hard:
		return "hard"
	case Soft:
		return "soft"
	case Silent:
		return "silent"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// ParseChannel parses "hard", "soft" or "silent", case-insensitively. An empty string is Hard.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hard":
		return Hard, nil
	case "soft":
		return Soft, nil
	case "silent":
		return Silent, nil
	default:
		return Hard, fault.Validation("unknown failure channel %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Channel) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Channel) UnmarshalText(b []byte) error {
	parsed, err := ParseChannel(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
