package gatt

import "fmt"

// StateKind classifies resolution and operation failures surfaced by the tree.
type StateKind string

const (
	// NotConnected: the device has no registered connection.
	NotConnected StateKind = "not_connected"
	// ServiceChanged: the connection is alive but the resource is no longer
	// present, typically after the remote's GATT database changed.
	ServiceChanged StateKind = "service_changed"
	// NotReady: a cached value was requested before any completed operation.
	NotReady StateKind = "not_ready"
	// AlreadyRegistered: a second registration for the same device id.
	AlreadyRegistered StateKind = "already_registered"
)

// StateError is a typed, recoverable resolution failure. Invalidation of
// cached handles is surfaced through these, never as a crash.
type StateError struct {
	Kind StateKind
	Msg  string
}

func (e *StateError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is allows errors.Is to compare StateError values by Kind.
func (e *StateError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*StateError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors for resolution failures.
var (
	ErrNotConnected      = &StateError{Kind: NotConnected}
	ErrServiceChanged    = &StateError{Kind: ServiceChanged}
	ErrNotReady          = &StateError{Kind: NotReady}
	ErrAlreadyRegistered = &StateError{Kind: AlreadyRegistered}
)
