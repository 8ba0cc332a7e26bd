package sweep

import (
	"errors"
	"fmt"
)

// Error classes raised by the sweep core. Callers match them with errors.Is;
// the returned errors carry the parameter or strategy context.
var (
	// ErrAddressing means a node path did not resolve to exactly one node.
	ErrAddressing = errors.New("addressing error")

	// ErrAmbiguous is raised instead of a warning when a locator runs in
	// strict mode and several candidates match. It wraps ErrAddressing.
	ErrAmbiguous = fmt.Errorf("%w: ambiguous node path", ErrAddressing)

	// ErrTypeMismatch means a value does not match a declared parameter type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrConfiguration covers invalid sampling info, duplicate names and
	// references to undeclared parameters or strategies.
	ErrConfiguration = errors.New("configuration error")

	// ErrDerivation means a derivation function failed while a sweep was
	// being generated.
	ErrDerivation = errors.New("derivation runtime error")

	// ErrParse means node text could not be parsed as the declared type.
	ErrParse = errors.New("parse error")
)

func configErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

func addressingErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrAddressing, fmt.Sprintf(format, args...))
}

func typeErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrTypeMismatch, fmt.Sprintf(format, args...))
}
