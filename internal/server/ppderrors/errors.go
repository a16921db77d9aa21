// Package ppderrors implements the error taxonomy of spec §7. Each
// kind is a distinct type so the bus layer can map it to the right
// D-Bus error name with errors.As, while internal-event callers
// (firmware callbacks, file watches) can tell at a glance which kinds
// are meant to be logged and absorbed rather than surfaced.
package ppderrors

import "fmt"

// InvalidArgs is surfaced verbatim to the calling client.
type InvalidArgs struct {
	Msg string
}

func (e *InvalidArgs) Error() string { return e.Msg }

// NewInvalidArgs builds an InvalidArgs from a format string.
func NewInvalidArgs(format string, args ...any) *InvalidArgs {
	return &InvalidArgs{Msg: fmt.Sprintf(format, args...)}
}

// AccessDenied is surfaced with the polkit action name embedded.
type AccessDenied struct {
	Action string
}

func (e *AccessDenied) Error() string {
	return fmt.Sprintf("not authorized for action %s", e.Action)
}

// DriverFailure means a driver refused to apply a profile. Surfaced
// to the client that triggered it; on the internal/reset path it's
// logged and the previous CPU state is rolled back instead.
type DriverFailure struct {
	Driver string
	Kind   string
	Err    error
}

func (e *DriverFailure) Error() string {
	return fmt.Sprintf("%s driver %q failed to apply profile: %v", e.Kind, e.Driver, e.Err)
}

func (e *DriverFailure) Unwrap() error { return e.Err }

// PersistenceWarning is logged only, never surfaced; the caller keeps
// going with defaults.
type PersistenceWarning struct {
	Err error
}

func (e *PersistenceWarning) Error() string {
	return fmt.Sprintf("persistence: %v", e.Err)
}

func (e *PersistenceWarning) Unwrap() error { return e.Err }

// ActionFailure is logged per-action, never surfaced, never aborts a
// transition.
type ActionFailure struct {
	Action string
	Err    error
}

func (e *ActionFailure) Error() string {
	return fmt.Sprintf("action %q failed: %v", e.Action, e.Err)
}

func (e *ActionFailure) Unwrap() error { return e.Err }

// Fatal means a required driver is missing at startup; the process
// should exit with status 1.
type Fatal struct {
	Msg string
}

func (e *Fatal) Error() string { return e.Msg }

// NewFatal builds a Fatal from a format string.
func NewFatal(format string, args ...any) *Fatal {
	return &Fatal{Msg: fmt.Sprintf(format, args...)}
}
