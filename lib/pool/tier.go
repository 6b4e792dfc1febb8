package pool

import (
	"fmt"
	"strings"

	apperrors "github.com/go-i2p/regionpool/lib/errors"
)

// Tier is a caller priority class. Any tier with a positive priority is
// queued ahead of Standard requests.
type Tier int

const (
	// Standard requests queue behind every prioritized request.
	Standard Tier = iota
	// Advanced requests join the priority band.
	Advanced
	// Elite requests join the priority band.
	Elite
)

// Priority returns the numeric priority of the tier.
func (t Tier) Priority() int {
	switch t {
	case Elite:
		return 10
	case Advanced:
		return 5
	default:
		return 0
	}
}

func (t Tier) String() string {
	switch t {
	case Standard:
		return "standard"
	case Advanced:
		return "advanced"
	case Elite:
		return "elite"
	default:
		return "unknown"
	}
}

// ParseTier parses a case-insensitive tier name. The empty string is Standard.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard":
		return Standard, nil
	case "advanced":
		return Advanced, nil
	case "elite":
		return Elite, nil
	default:
		return Standard, fmt.Errorf("%w: %q", apperrors.ErrInvalidTier, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
