package sweep

import (
	"errors"
	"fmt"
)

// DefinitionError reports a sweep rule that cannot resolve to a non-empty
// sequence of values. It always names the offending parameter.
type DefinitionError struct {
	// Param is the parameter whose rule is invalid.
	Param string

	// Reason is a human-readable description.
	Reason string
}

// Error implements the error interface.
func (e *DefinitionError) Error() string {
	return fmt.Sprintf("value of parameter `%s` invalid: %s", e.Param, e.Reason)
}

// IsDefinitionError returns true if err is or wraps a DefinitionError.
func IsDefinitionError(err error) bool {
	var de *DefinitionError
	return errors.As(err, &de)
}

func definitionErrorf(param, format string, args ...any) *DefinitionError {
	return &DefinitionError{Param: param, Reason: fmt.Sprintf(format, args...)}
}
