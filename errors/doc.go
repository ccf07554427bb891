// Package errors provides structured error types for opcore.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). Kinds split into two groups:
//
//   - Script-visible: permission_denied, bad_resource, not_found,
//     type_mismatch, not_supported, generic. These travel back to the
//     calling script as a named, catchable failure (see ClassOf).
//   - Fatal: dispatch_fault, registration, internal. These indicate that the
//     native and script sides disagree about the op surface, or that the host
//     was wired incorrectly. They never become script exceptions.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
//		Op("fsOpen").
//		Path("path").
//		Detail("expected string").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.PermissionDenied("read", "/etc/hosts")
//	err := errors.BadResource(rid)
//
// All errors implement the standard error interface and support errors.Is/As.
// Kind sentinels (ErrBadResource, ErrPermissionDenied, ...) match any phase.
package errors
