// Package ncerr defines the error taxonomy shared across the n-cube core:
// axes, cubes, the reference-axis loader, the registry, and the permission
// engine all fail through one of these types so that callers at the
// boundary can type-switch once instead of per package.
package ncerr

import "fmt"

// IllegalArgument signals an input validation failure caught before any
// side effect took place.
type IllegalArgument struct {
	Entity  string
	Name    string
	Field   string
	Message string
}

func (e *IllegalArgument) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("illegal argument for %s %q field %q: %s", e.Entity, e.Name, e.Field, e.Message)
	}
	if e.Name != "" {
		return fmt.Sprintf("illegal argument for %s %q: %s", e.Entity, e.Name, e.Message)
	}
	return fmt.Sprintf("illegal argument: %s", e.Message)
}

// NewIllegalArgument builds an IllegalArgument naming the offending entity.
func NewIllegalArgument(entity, name, message string) *IllegalArgument {
	return &IllegalArgument{Entity: entity, Name: name, Message: message}
}

// AxisOverlap signals that a column's value conflicts with an existing
// column under the axis type's overlap predicate.
type AxisOverlap struct {
	AxisName string
	Value    string
	Message  string
}

func (e *AxisOverlap) Error() string {
	return fmt.Sprintf("axis %q: column %s overlaps an existing column: %s", e.AxisName, e.Value, e.Message)
}

// CoordinateNotFound signals that a coordinate map failed to bind to a
// column on some axis that has no default column.
type CoordinateNotFound struct {
	AxisName string
	Value    string
}

func (e *CoordinateNotFound) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("no column bound for axis %q and no default column exists", e.AxisName)
	}
	return fmt.Sprintf("value %s did not bind to any column on axis %q and no default column exists", e.Value, e.AxisName)
}

// IllegalState signals that an operation cannot proceed because of the
// current shape of the system: a reference axis whose source or transform
// cube/axis is missing, a persister that was never configured, a cyclic
// reference chain.
type IllegalState struct {
	Message string
}

func (e *IllegalState) Error() string { return "illegal state: " + e.Message }

// NewIllegalState builds an IllegalState error.
func NewIllegalState(format string, args ...any) *IllegalState {
	return &IllegalState{Message: fmt.Sprintf(format, args...)}
}

// Security signals a permission denial or app-lock contention.
type Security struct {
	Message string
}

func (e *Security) Error() string { return "security: " + e.Message }

// NewSecurity builds a Security error.
func NewSecurity(format string, args ...any) *Security {
	return &Security{Message: fmt.Sprintf(format, args...)}
}
