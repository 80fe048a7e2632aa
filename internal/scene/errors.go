package scene

import (
	"errors"
	"fmt"
	"strings"
)

// ErrContainerNotFound is returned (possibly wrapped) by an Engine when the
// view container reference cannot be resolved.
var ErrContainerNotFound = errors.New("container not found")

// ConfigurationError reports a local validation failure. It is fatal to the
// step that raised it and leaves already completed steps untouched.
type ConfigurationError struct {
	Step  string // view, widgets, overlays, layers, style
	Field string // path of the offending value, e.g. overlays[2].symbol.kind
	Msg   string
	Err   error
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")
	if e.Step != "" {
		b.WriteString(" in ")
		b.WriteString(e.Step)
	}
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	return b.String()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ViewLoadError reports that the engine could not initialize the view.
// Every step that depends on the view fails with it from then on.
type ViewLoadError struct {
	Err error
}

func (e *ViewLoadError) Error() string {
	return fmt.Sprintf("view failed to load: %v", e.Err)
}

func (e *ViewLoadError) Unwrap() error { return e.Err }

func invalidf(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// scoped attaches a step and a field prefix to a validation error.
func scoped(err error, step, prefix string) error {
	if err == nil {
		return nil
	}
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		return &ConfigurationError{Step: step, Field: prefix, Msg: err.Error(), Err: err}
	}
	c := *ce
	if c.Step == "" {
		c.Step = step
	}
	switch {
	case prefix == "":
	case c.Field == "":
		c.Field = prefix
	default:
		c.Field = prefix + "." + c.Field
	}
	return &c
}
