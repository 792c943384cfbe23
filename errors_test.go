package recordcache

import (
	"errors"
	"strings"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ErrFieldMissing", ErrFieldMissing, "required field missing from record"},
		{"ErrDuplicateKey", ErrDuplicateKey, "duplicate primary key"},
		{"ErrDuplicateIndex", ErrDuplicateIndex, "index already exists for field"},
		{"ErrNotFound", ErrNotFound, "record not found"},
		{"ErrConsistency", ErrConsistency, "store consistency violated"},
		{"ErrAlreadyBound", ErrAlreadyBound, "store name already bound"},
		{"ErrInvalidConfig", ErrInvalidConfig, "invalid configuration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.want {
				t.Errorf("error message = %q, want %q", tt.err.Error(), tt.want)
			}
		})
	}
}

func TestWithContext(t *testing.T) {
	baseErr := errors.New("base error")
	ctx := map[string]interface{}{
		"field": "email",
		"key":   "alice@example.com",
	}

	err := WithContext(baseErr, ctx)

	var errWithCtx *ErrorWithContext
	if !errors.As(err, &errWithCtx) {
		t.Fatalf("expected ErrorWithContext, got %T", err)
	}

	if !errors.Is(err, baseErr) {
		t.Error("expected error to wrap base error")
	}

	msg := err.Error()
	if !strings.Contains(msg, "base error") {
		t.Errorf("message should contain base error, got %q", msg)
	}
	if !strings.Contains(msg, "email") {
		t.Errorf("message should contain context, got %q", msg)
	}
}

func TestWithContextNil(t *testing.T) {
	if err := WithContext(nil, map[string]interface{}{"k": "v"}); err != nil {
		t.Errorf("WithContext(nil) should be nil, got %v", err)
	}
}

func TestWithContextEmptyContext(t *testing.T) {
	err := WithContext(ErrNotFound, nil)
	if err.Error() != ErrNotFound.Error() {
		t.Errorf("empty context should not change the message, got %q", err.Error())
	}
}

func TestErrorHelpers(t *testing.T) {
	wrapped := WithContext(ErrNotFound, map[string]interface{}{"key": "u1"})
	if !IsNotFound(wrapped) {
		t.Error("IsNotFound should see through ErrorWithContext")
	}
	if IsNotFound(ErrDuplicateKey) {
		t.Error("IsNotFound should be false for other sentinels")
	}

	if !IsFieldMissing(WithContext(ErrFieldMissing, nil)) {
		t.Error("IsFieldMissing should see through ErrorWithContext")
	}
	if !IsDuplicateKey(WithContext(ErrDuplicateKey, nil)) {
		t.Error("IsDuplicateKey should see through ErrorWithContext")
	}
	if !IsConsistency(WithContext(ErrConsistency, nil)) {
		t.Error("IsConsistency should see through ErrorWithContext")
	}
}
