// Package validation provides reusable input validation for the regionpool
// gateway. Validators return nil on success and a *Result on failure whose
// message is safe to return to clients.
package validation

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Common validation errors, checkable with errors.Is().
var (
	ErrRequired      = errors.New("field is required")
	ErrTooLong       = errors.New("value exceeds maximum length")
	ErrInvalidFormat = errors.New("invalid format")
	ErrOutOfRange    = errors.New("value out of range")
	ErrDuplicate     = errors.New("duplicate value")
)

// Constraints for common field types.
const (
	// MaxRegionLength is the maximum length for region names.
	MaxRegionLength = 63

	// MaxRequesterIDLength is the maximum length for requester ids.
	MaxRequesterIDLength = 128

	// MaxConnectionsLimit caps per-region max connections.
	MaxConnectionsLimit = 100_000

	// MinTimeout is the smallest accepted connection timeout.
	MinTimeout = time.Millisecond
)

// regionPattern matches lowercase DNS-label style names such as "eu-west-1".
var regionPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// requesterPattern rejects whitespace and control characters.
var requesterPattern = regexp.MustCompile(`^[\w.:@/+-]+$`)

// Result represents a validation failure with field context.
type Result struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (r *Result) Error() string {
	if r.Field != "" {
		return fmt.Sprintf("%s: %s", r.Field, r.Message)
	}
	return r.Message
}

// Unwrap returns the underlying error for errors.Is() support.
func (r *Result) Unwrap() error {
	return r.Err
}

// NewResult creates a validation result.
func NewResult(field, message string, err error) *Result {
	return &Result{
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// Required validates that a string is non-empty.
func Required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return NewResult(field, "is required", ErrRequired)
	}
	return nil
}

// MaxLength validates that a string doesn't exceed max runes.
func MaxLength(field, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return NewResult(field, fmt.Sprintf("exceeds maximum length of %d characters", max), ErrTooLong)
	}
	return nil
}

// IntRange validates that an integer is within [min, max].
func IntRange(field string, value, min, max int) error {
	if value < min || value > max {
		return NewResult(field, fmt.Sprintf("must be between %d and %d", min, max), ErrOutOfRange)
	}
	return nil
}

// Positive validates that an integer is > 0.
func Positive(field string, value int) error {
	if value <= 0 {
		return NewResult(field, "must be positive", ErrOutOfRange)
	}
	return nil
}

// NonNegative validates that an integer is >= 0.
func NonNegative(field string, value int) error {
	if value < 0 {
		return NewResult(field, "must be non-negative", ErrOutOfRange)
	}
	return nil
}

// PositiveDuration validates that d is > 0.
func PositiveDuration(field string, d time.Duration) error {
	if d <= 0 {
		return NewResult(field, "must be a positive duration", ErrOutOfRange)
	}
	return nil
}

// Percent validates a percentage in [0, 100].
func Percent(field string, value float64) error {
	if value < 0 || value > 100 {
		return NewResult(field, "must be between 0 and 100", ErrOutOfRange)
	}
	return nil
}

// RegionName validates a region identifier.
func RegionName(field, value string) error {
	if err := Required(field, value); err != nil {
		return err
	}
	if err := MaxLength(field, value, MaxRegionLength); err != nil {
		return err
	}
	if !regionPattern.MatchString(value) {
		return NewResult(field, "must be lowercase letters, digits and dashes", ErrInvalidFormat)
	}
	return nil
}

// Regions validates a region list: non-empty, each valid, no duplicates.
func Regions(field string, regions []string) error {
	if len(regions) == 0 {
		return NewResult(field, "at least one region is required", ErrRequired)
	}
	seen := make(map[string]struct{}, len(regions))
	for i, r := range regions {
		if err := RegionName(fmt.Sprintf("%s[%d]", field, i), r); err != nil {
			return err
		}
		if _, dup := seen[r]; dup {
			return NewResult(field, fmt.Sprintf("region %q listed twice", r), ErrDuplicate)
		}
		seen[r] = struct{}{}
	}
	return nil
}

// RequesterID validates a caller identity.
func RequesterID(field, value string) error {
	if err := Required(field, value); err != nil {
		return err
	}
	if err := MaxLength(field, value, MaxRequesterIDLength); err != nil {
		return err
	}
	if !requesterPattern.MatchString(value) {
		return NewResult(field, "contains invalid characters", ErrInvalidFormat)
	}
	return nil
}

// PoolBounds validates a min/max connection pair.
func PoolBounds(minField string, min int, maxField string, max int) error {
	if err := NonNegative(minField, min); err != nil {
		return err
	}
	if err := IntRange(maxField, max, 1, MaxConnectionsLimit); err != nil {
		return err
	}
	if min > max {
		return NewResult(minField, fmt.Sprintf("must not exceed %s (%d)", maxField, max), ErrOutOfRange)
	}
	return nil
}

// HostPort validates a host:port address.
func HostPort(field, value string) error {
	if err := Required(field, value); err != nil {
		return err
	}
	if _, _, err := net.SplitHostPort(value); err != nil {
		return NewResult(field, "must be in host:port format", ErrInvalidFormat)
	}
	return nil
}

// All runs validators in order and returns the first error.
func All(validators ...func() error) error {
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

// Errors collects multiple validation errors.
type Errors []error

// Add appends an error to the collection (nil errors are ignored).
func (e *Errors) Add(err error) {
	if err != nil {
		*e = append(*e, err)
	}
}

// HasErrors returns true if any errors were collected.
func (e Errors) HasErrors() bool {
	return len(e) > 0
}

// Error returns all errors as a single error message.
func (e Errors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var b strings.Builder
	b.WriteString("multiple validation errors: ")
	for i, err := range e {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(err.Error())
	}
	return b.String()
}

// Err returns e as an error, or nil when empty.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Unwrap exposes the collected errors to errors.Is.
func (e Errors) Unwrap() []error {
	return e
}
