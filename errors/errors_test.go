package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseDecode,
				Kind:   KindTypeMismatch,
				Op:     "fsOpen",
				Path:   []string{"options", "mode"},
				Detail: "expected number",
			},
			contains: []string{"[decode]", "type_mismatch", "in fsOpen", "options.mode", "expected number"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseResource,
				Kind:  KindBadResource,
			},
			contains: []string{"[resource]", "bad_resource"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseRuntime,
				Kind:   KindGeneric,
				Detail: "shutdown",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[runtime]", "generic", "shutdown", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Message(t *testing.T) {
	if got := BadResource(7).Message(); got != "bad resource id 7" {
		t.Errorf("Message() = %q", got)
	}
	cause := errors.New("disk full")
	if got := Generic(PhaseHost, "write", cause).Message(); got != "write: disk full" {
		t.Errorf("Message() = %q", got)
	}
	if got := (&Error{Kind: KindGeneric, Cause: cause}).Message(); got != "disk full" {
		t.Errorf("Message() = %q", got)
	}
	if got := (&Error{Kind: KindNotSupported}).Message(); got != "not_supported" {
		t.Errorf("Message() = %q", got)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseHost,
		Kind:  KindGeneric,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhasePermission,
		Kind:  KindPermissionDenied,
	}

	if !err.Is(&Error{Phase: PhasePermission, Kind: KindPermissionDenied}) {
		t.Error("Is should match same phase and kind")
	}

	if err.Is(&Error{Phase: PhaseResource, Kind: KindPermissionDenied}) {
		t.Error("Is should not match different phase")
	}

	if err.Is(&Error{Phase: PhasePermission, Kind: KindBadResource}) {
		t.Error("Is should not match different kind")
	}

	if !errors.Is(err, ErrPermissionDenied) {
		t.Error("errors.Is should match phase-less sentinel")
	}

	wrapped := fmt.Errorf("open: %w", err)
	if !errors.Is(wrapped, ErrPermissionDenied) {
		t.Error("errors.Is should see through fmt wrapping")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseDecode, KindTypeMismatch).
		Op("fsRead").
		Path("rid").
		Value(-1).
		Cause(cause).
		Detail("expected %s, got %s", "u32", "negative").
		Build()

	if err.Phase != PhaseDecode {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseDecode)
	}
	if err.Kind != KindTypeMismatch {
		t.Errorf("Kind = %v, want %v", err.Kind, KindTypeMismatch)
	}
	if err.Op != "fsRead" {
		t.Errorf("Op = %v, want fsRead", err.Op)
	}
	if len(err.Path) != 1 || err.Path[0] != "rid" {
		t.Errorf("Path = %v, want [rid]", err.Path)
	}
	if err.Value != -1 {
		t.Errorf("Value = %v, want -1", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected u32, got negative" {
		t.Errorf("Detail = %v", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("PermissionDenied", func(t *testing.T) {
		err := PermissionDenied("read", "/etc/passwd")
		if err.Kind != KindPermissionDenied {
			t.Errorf("Kind = %v, want %v", err.Kind, KindPermissionDenied)
		}
		if !strings.Contains(err.Detail, "/etc/passwd") {
			t.Errorf("Detail = %v, should name the api", err.Detail)
		}
	})

	t.Run("BadResource", func(t *testing.T) {
		err := BadResource(42)
		if err.Kind != KindBadResource || err.Value != uint32(42) {
			t.Errorf("Kind=%v Value=%v", err.Kind, err.Value)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		err := NotFound(PhaseHost, "file", "a.txt")
		if err.Kind != KindNotFound {
			t.Errorf("Kind = %v, want %v", err.Kind, KindNotFound)
		}
	})

	t.Run("UnknownOp", func(t *testing.T) {
		err := UnknownOp("opMissing")
		if err.Kind != KindDispatchFault || err.Op != "opMissing" {
			t.Errorf("Kind=%v Op=%v", err.Kind, err.Op)
		}
		if !err.Fatal() {
			t.Error("dispatch fault must be fatal")
		}
	})

	t.Run("Registration", func(t *testing.T) {
		err := Registration("close", errors.New("duplicate"))
		if err.Kind != KindRegistration || !err.Fatal() {
			t.Errorf("Kind=%v Fatal=%v", err.Kind, err.Fatal())
		}
	})

	t.Run("Internal", func(t *testing.T) {
		if !IsFatal(fmt.Errorf("x: %w", Internal(PhaseRuntime, "no state"))) {
			t.Error("internal must be fatal through wrapping")
		}
	})
}

func TestClassOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"permission", PermissionDenied("net", "example.com"), ClassPermissionDenied},
		{"bad resource", BadResource(3), ClassBadResource},
		{"not found", NotFound(PhaseHost, "env", "HOME"), ClassNotFound},
		{"type mismatch", TypeMismatch(PhaseDecode, nil, "bad"), ClassTypeMismatch},
		{"invalid input", InvalidInput(PhaseDecode, "bad"), ClassTypeMismatch},
		{"not supported", NotSupported(PhaseHost, "udp"), ClassNotSupported},
		{"generic", Generic(PhaseHost, "boom", nil), ClassGeneric},
		{"generic wrapping not exist", Generic(PhaseHost, "open", fs.ErrNotExist), ClassNotFound},
		{"native not exist", &fs.PathError{Op: "open", Path: "x", Err: fs.ErrNotExist}, ClassNotFound},
		{"native permission", fs.ErrPermission, ClassPermissionDenied},
		{"native closed", os.ErrClosed, ClassBadResource},
		{"plain", errors.New("plain"), ClassGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassOf(tt.err); got != tt.want {
				t.Errorf("ClassOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMessageOf(t *testing.T) {
	if got := MessageOf(errors.New("plain")); got != "plain" {
		t.Errorf("MessageOf() = %q", got)
	}
	if got := MessageOf(fmt.Errorf("ctx: %w", BadResource(1))); got != "bad resource id 1" {
		t.Errorf("MessageOf() = %q", got)
	}
}
