package apperror

import (
	"errors"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "without field",
			err:      New(CodeConnectionLost, "connection lost"),
			expected: "[CONNECTION_LOST] connection lost",
		},
		{
			name:     "with field",
			err:      NewWithField(CodeInvalidAddress, "address malformed", "address"),
			expected: "[INVALID_ADDRESS] address malformed (field: address)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, CodeInternal, "wrapped error")

	if unwrapped := err.Unwrap(); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should see through the wrapped cause")
	}
}

func TestNew(t *testing.T) {
	err := New(CodeDeviceNotReady, "device not ready")

	if err.Code != CodeDeviceNotReady {
		t.Errorf("Code = %v, want %v", err.Code, CodeDeviceNotReady)
	}
	if err.Message != "device not ready" {
		t.Errorf("Message = %v, want %v", err.Message, "device not ready")
	}
	if err.Severity != SeverityError {
		t.Errorf("Severity = %v, want %v", err.Severity, SeverityError)
	}
}

func TestNewWarning(t *testing.T) {
	err := NewWarning(CodeAlarm, "minor alarm")

	if err.Severity != SeverityWarning {
		t.Errorf("Severity = %v, want %v", err.Severity, SeverityWarning)
	}
}

func TestNewCritical(t *testing.T) {
	err := NewCritical(CodeAlarm, "global alarm")

	if err.Severity != SeverityCritical {
		t.Errorf("Severity = %v, want %v", err.Severity, SeverityCritical)
	}
}

func TestWithDetails(t *testing.T) {
	err := New(CodeCommandFailed, "command failed").
		WithDetails("command_id", "cmd-1").
		WithDetails("slot_id", 2)

	if err.Details["command_id"] != "cmd-1" {
		t.Errorf("Details[command_id] = %v, want cmd-1", err.Details["command_id"])
	}
	if err.Details["slot_id"] != 2 {
		t.Errorf("Details[slot_id] = %v, want 2", err.Details["slot_id"])
	}
}

func TestWithField(t *testing.T) {
	err := New(CodeValidation, "bad input").WithField("device_id")

	if err.Field != "device_id" {
		t.Errorf("Field = %v, want device_id", err.Field)
	}
}

func TestWithSeverity(t *testing.T) {
	err := New(CodeCommandFailed, "failed").WithSeverity(SeverityCritical)

	if err.Severity != SeverityCritical {
		t.Errorf("Severity = %v, want %v", err.Severity, SeverityCritical)
	}
}

func TestIs(t *testing.T) {
	err := New(CodeConnectionLost, "lost")

	if !Is(err, CodeConnectionLost) {
		t.Error("Is() should return true for matching code")
	}
	if Is(err, CodeTimeout) {
		t.Error("Is() should return false for non-matching code")
	}
	if Is(errors.New("regular error"), CodeConnectionLost) {
		t.Error("Is() should return false for non-Error")
	}
}

func TestCode(t *testing.T) {
	err := New(CodeNotFound, "missing")

	if Code(err) != CodeNotFound {
		t.Errorf("Code() = %v, want %v", Code(err), CodeNotFound)
	}

	regularErr := errors.New("regular error")
	if Code(regularErr) != CodeInternal {
		t.Errorf("Code() for regular error = %v, want %v", Code(regularErr), CodeInternal)
	}
}

func TestIsWarning(t *testing.T) {
	warning := NewWarning(CodeAlarm, "bottleneck")
	err := New(CodeConnectionLost, "lost")

	if !IsWarning(warning) {
		t.Error("IsWarning() should return true for warning")
	}
	if IsWarning(err) {
		t.Error("IsWarning() should return false for error")
	}
}

func TestIsCritical(t *testing.T) {
	critical := NewCritical(CodeAlarm, "critical")
	err := New(CodeConnectionLost, "lost")

	if !IsCritical(critical) {
		t.Error("IsCritical() should return true for critical")
	}
	if IsCritical(err) {
		t.Error("IsCritical() should return false for error")
	}
}

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		expected string
	}{
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.severity.String(); got != tt.expected {
			t.Errorf("Severity.String() = %v, want %v", got, tt.expected)
		}
	}
}

func TestValidationErrors(t *testing.T) {
	t.Run("new validation errors", func(t *testing.T) {
		ve := NewValidationErrors()
		if ve.HasErrors() {
			t.Error("new ValidationErrors should not have errors")
		}
		if ve.HasWarnings() {
			t.Error("new ValidationErrors should not have warnings")
		}
		if !ve.IsValid() {
			t.Error("new ValidationErrors should be valid")
		}
	})

	t.Run("add error", func(t *testing.T) {
		ve := NewValidationErrors()
		ve.AddError(CodeValidation, "invalid address")

		if !ve.HasErrors() {
			t.Error("should have errors")
		}
		if ve.IsValid() {
			t.Error("should not be valid")
		}
		if len(ve.Errors) != 1 {
			t.Errorf("errors count = %d, want 1", len(ve.Errors))
		}
	})

	t.Run("add warning", func(t *testing.T) {
		ve := NewValidationErrors()
		ve.AddWarning(CodeAlarm, "minor alarm")

		if !ve.HasWarnings() {
			t.Error("should have warnings")
		}
		if !ve.IsValid() {
			t.Error("should be valid (warnings don't affect validity)")
		}
	})

	t.Run("add error with field", func(t *testing.T) {
		ve := NewValidationErrors()
		ve.AddErrorWithField(CodeInvalidAddress, "invalid", "address")

		if ve.Errors[0].Field != "address" {
			t.Errorf("Field = %v, want address", ve.Errors[0].Field)
		}
	})

	t.Run("add via Add method", func(t *testing.T) {
		ve := NewValidationErrors()
		ve.Add(NewWarning(CodeAlarm, "warning"))
		ve.Add(New(CodeValidation, "error"))

		if len(ve.Warnings) != 1 {
			t.Errorf("warnings count = %d, want 1", len(ve.Warnings))
		}
		if len(ve.Errors) != 1 {
			t.Errorf("errors count = %d, want 1", len(ve.Errors))
		}
	})

	t.Run("merge", func(t *testing.T) {
		ve1 := NewValidationErrors()
		ve1.AddError(CodeValidation, "error1")

		ve2 := NewValidationErrors()
		ve2.AddError(CodeInvalidAddress, "error2")
		ve2.AddWarning(CodeAlarm, "warning")

		ve1.Merge(ve2)

		if len(ve1.Errors) != 2 {
			t.Errorf("errors count = %d, want 2", len(ve1.Errors))
		}
		if len(ve1.Warnings) != 1 {
			t.Errorf("warnings count = %d, want 1", len(ve1.Warnings))
		}
	})

	t.Run("merge nil", func(t *testing.T) {
		ve := NewValidationErrors()
		ve.Merge(nil) // should not panic
	})

	t.Run("error messages", func(t *testing.T) {
		ve := NewValidationErrors()
		ve.AddError(CodeValidation, "error1")
		ve.AddError(CodeInvalidAddress, "error2")

		messages := ve.ErrorMessages()
		if len(messages) != 2 {
			t.Errorf("messages count = %d, want 2", len(messages))
		}
	})

	t.Run("warning messages", func(t *testing.T) {
		ve := NewValidationErrors()
		ve.AddWarning(CodeAlarm, "warning1")

		messages := ve.WarningMessages()
		if len(messages) != 1 {
			t.Errorf("messages count = %d, want 1", len(messages))
		}
		if messages[0] != "warning1" {
			t.Errorf("message = %v, want warning1", messages[0])
		}
	})
}

func TestPredefinedErrors(t *testing.T) {
	predefinedErrors := []*Error{
		ErrConnectionLost,
		ErrTimeout,
		ErrLinkNotEstablished,
		ErrDeviceNotReady,
		ErrNotFound,
		ErrCancelled,
	}

	for _, err := range predefinedErrors {
		if err == nil {
			t.Error("predefined error should not be nil")
			continue
		}
		if err.Code == "" {
			t.Error("predefined error should have a code")
		}
		if err.Message == "" {
			t.Error("predefined error should have a message")
		}
	}
}
