package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDispatch   Phase = "dispatch"   // op lookup and invocation
	PhaseResource   Phase = "resource"   // resource table
	PhasePermission Phase = "permission" // capability checks
	PhaseDecode     Phase = "decode"     // control payload to Go
	PhaseEncode     Phase = "encode"     // Go to control payload
	PhaseConfig     Phase = "config"     // configuration loading
	PhaseHost       Phase = "host"       // op registration
	PhasePlugin     Phase = "plugin"     // plugin loading and calls
	PhaseRuntime    Phase = "runtime"    // isolate lifecycle
)

// Kind categorizes the error
type Kind string

const (
	KindPermissionDenied Kind = "permission_denied"
	KindBadResource      Kind = "bad_resource"
	KindNotFound         Kind = "not_found"
	KindTypeMismatch     Kind = "type_mismatch"
	KindNotSupported     Kind = "not_supported"
	KindGeneric          Kind = "generic"
	KindInvalidInput     Kind = "invalid_input"

	// Never surfaced to scripts.
	KindDispatchFault Kind = "dispatch_fault"
	KindRegistration  Kind = "registration"
	KindInternal      Kind = "internal"
)

// Class is the script-visible error name.
type Class string

const (
	ClassPermissionDenied Class = "PermissionDenied"
	ClassBadResource      Class = "BadResource"
	ClassNotFound         Class = "NotFound"
	ClassTypeMismatch     Class = "TypeMismatch"
	ClassNotSupported     Class = "NotSupported"
	ClassGeneric          Class = "Error"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Op     string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Message is the text shown to scripts: the detail if present, otherwise the full error.
func (e *Error) Message() string {
	if e.Detail == "" {
		if e.Cause != nil {
			return e.Cause.Error()
		}
		return string(e.Kind)
	}
	if e.Cause != nil {
		return e.Detail + ": " + e.Cause.Error()
	}
	return e.Detail
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. An empty Phase on the
// target matches any phase.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return (t.Phase == "" || e.Phase == t.Phase) && e.Kind == t.Kind
	}
	return false
}

// Fatal reports whether the error must never reach script code.
func (e *Error) Fatal() bool {
	switch e.Kind {
	case KindDispatchFault, KindRegistration, KindInternal:
		return true
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Op sets the operation name
func (b *Builder) Op(name string) *Builder {
	b.err.Op = name
	return b
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Kind sentinels for errors.Is matching regardless of phase.
var (
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
	ErrBadResource      = &Error{Kind: KindBadResource}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrTypeMismatch     = &Error{Kind: KindTypeMismatch}
	ErrNotSupported     = &Error{Kind: KindNotSupported}
	ErrDispatchFault    = &Error{Kind: KindDispatchFault}
)

// Convenience constructors for the script-visible taxonomy

// PermissionDenied creates a permission error for an API requiring a capability
func PermissionDenied(what, api string) *Error {
	detail := fmt.Sprintf("requires %s access", what)
	if api != "" {
		detail = fmt.Sprintf("requires %s access to %s", what, api)
	}
	return &Error{
		Phase:  PhasePermission,
		Kind:   KindPermissionDenied,
		Detail: detail,
	}
}

// BadResource creates an error for an unknown or already-closed rid
func BadResource(rid uint32) *Error {
	return &Error{
		Phase:  PhaseResource,
		Kind:   KindBadResource,
		Detail: fmt.Sprintf("bad resource id %d", rid),
		Value:  rid,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// TypeMismatch creates an error for a malformed control payload
func TypeMismatch(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   path,
		Detail: detail,
	}
}

// NotSupported creates an unsupported operation error
func NotSupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotSupported,
		Detail: what,
	}
}

// Generic creates a catch-all error carrying a message
func Generic(phase Phase, msg string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindGeneric,
		Detail: msg,
		Cause:  cause,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Internal fatal constructors

// DispatchFault creates a protocol mismatch error
func DispatchFault(op, detail string) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindDispatchFault,
		Op:     op,
		Detail: detail,
	}
}

// UnknownOp creates the dispatch fault for an unregistered op name
func UnknownOp(name string) *Error {
	return DispatchFault(name, fmt.Sprintf("unknown op %q", name))
}

// Registration creates a registration error
func Registration(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindRegistration,
		Op:     name,
		Detail: fmt.Sprintf("register op %q", name),
		Cause:  cause,
	}
}

// Internal creates a wiring error
func Internal(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInternal,
		Detail: detail,
	}
}

// ClassOf maps any error to its script-visible class.
func ClassOf(err error) Class {
	var e *Error
	if stderrors.As(err, &e) {
		switch e.Kind {
		case KindPermissionDenied:
			return ClassPermissionDenied
		case KindBadResource:
			return ClassBadResource
		case KindNotFound:
			return ClassNotFound
		case KindTypeMismatch, KindInvalidInput:
			return ClassTypeMismatch
		case KindNotSupported:
			return ClassNotSupported
		}
		if e.Cause != nil && e.Kind == KindGeneric {
			if c := classOfNative(e.Cause); c != "" {
				return c
			}
		}
		return ClassGeneric
	}
	if c := classOfNative(err); c != "" {
		return c
	}
	return ClassGeneric
}

func classOfNative(err error) Class {
	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		return ClassNotFound
	case stderrors.Is(err, fs.ErrPermission):
		return ClassPermissionDenied
	case stderrors.Is(err, os.ErrClosed), stderrors.Is(err, net.ErrClosed):
		return ClassBadResource
	case stderrors.Is(err, context.Canceled):
		return ClassGeneric
	}
	return ""
}

// MessageOf returns the text delivered to scripts for err.
func MessageOf(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Message()
	}
	return err.Error()
}

// IsFatal reports whether err carries a kind that must never reach script code.
func IsFatal(err error) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Fatal()
}
