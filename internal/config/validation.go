package config

import (
	"fmt"
	"strings"
)

// InvalidField is one rejected config value with the accepted range.
type InvalidField struct {
	Name   string
	Reason string
}

// ValidationErrors collects all validation errors
type ValidationErrors struct {
	InvalidCurrencies []string
	InvalidFields     []InvalidField
}

// HasErrors returns true if any validation errors exist
func (e *ValidationErrors) HasErrors() bool {
	return len(e.InvalidCurrencies) > 0 || len(e.InvalidFields) > 0
}

// Error formats all validation errors into a clear message
func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")

	if len(e.InvalidCurrencies) > 0 {
		sb.WriteString("\nInvalid currencies:\n")
		for _, c := range e.InvalidCurrencies {
			sb.WriteString(fmt.Sprintf("  - %s\n", c))
		}
		sb.WriteString(fmt.Sprintf("\nValid currencies: %s\n", strings.Join(SupportedCurrencies, ", ")))
	}

	if len(e.InvalidFields) > 0 {
		sb.WriteString("\nInvalid values:\n")
		for _, f := range e.InvalidFields {
			sb.WriteString(fmt.Sprintf("  - %s (%s)\n", f.Name, f.Reason))
		}
	}

	return sb.String()
}
