// Package validate provides shared validation functions.
package validate

import (
	"fmt"
	"strings"

	"github.com/hay-kot/criterio"
)

// Required validates a value is non-empty after trimming whitespace.
func Required(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("is required")
	}
	return nil
}

// RequiredField returns a criterio validator for required values.
func RequiredField(field, s string) error {
	return criterio.Run(field, s, Required)
}

// Identifier validates collection, view, field and sort ids: lowercase
// letters, digits, underscores and hyphens, starting with a letter.
func Identifier(s string) error {
	if s == "" {
		return fmt.Errorf("is required")
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case i > 0 && (r >= '0' && r <= '9' || r == '_' || r == '-'):
		default:
			return fmt.Errorf("invalid identifier %q: use lowercase letters, digits, '_' or '-'", s)
		}
	}
	return nil
}

// IdentifierField returns a criterio validator for identifiers.
func IdentifierField(field, s string) error {
	return criterio.Run(field, s, Identifier)
}

// OneOf validates s is one of allowed.
func OneOf(s string, allowed ...string) error {
	for _, a := range allowed {
		if s == a {
			return nil
		}
	}
	return fmt.Errorf("must be one of %s, got %q", strings.Join(allowed, ", "), s)
}
