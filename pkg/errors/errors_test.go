package errors

import (
	stderr "errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewError(t *testing.T) {
	t.Parallel()

	t.Run("derives category from code", func(t *testing.T) {
		tests := []struct {
			code ErrorCode
			want Category
		}{
			{ErrCodePathInvalid, CategoryPath},
			{ErrCodeNotFound, CategoryTree},
			{ErrCodeInvalidMove, CategoryTree},
			{ErrCodeQuotaExceeded, CategoryResource},
			{ErrCodeNotInitialized, CategoryState},
			{ErrCodeStorageWrite, CategoryStorage},
			{ErrCodeInvalidConfig, CategoryConfiguration},
			{ErrCodeFSError, CategoryInternal},
		}
		for _, tt := range tests {
			if got := NewError(tt.code, "x").Category; got != tt.want {
				t.Errorf("%v: Category = %v, want %v", tt.code, got, tt.want)
			}
		}
	})

	t.Run("error string includes operation, code and path", func(t *testing.T) {
		err := NotFound("/home/a.txt").WithOperation("readFile")
		msg := err.Error()
		for _, part := range []string{"readFile", "NOT_FOUND", "/home/a.txt"} {
			if !strings.Contains(msg, part) {
				t.Errorf("Error() = %q, missing %q", msg, part)
			}
		}
	})
}

func TestErrorsIsAndAs(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("disk on fire")
	err := NewError(ErrCodeStorageWrite, "put failed").WithCause(cause)
	wrapped := fmt.Errorf("sync: %w", err)

	if !stderr.Is(wrapped, NewError(ErrCodeStorageWrite, "")) {
		t.Error("errors.Is should match on code through wrapping")
	}
	if stderr.Is(wrapped, NewError(ErrCodeNotFound, "")) {
		t.Error("errors.Is should not match a different code")
	}
	if !stderr.Is(wrapped, cause) {
		t.Error("errors.Is should reach the cause through Unwrap")
	}
	if CodeOf(wrapped) != ErrCodeStorageWrite {
		t.Errorf("CodeOf = %v, want %v", CodeOf(wrapped), ErrCodeStorageWrite)
	}
}

func TestPredicates(t *testing.T) {
	t.Parallel()

	if !IsNotFound(NotFound("/x")) {
		t.Error("IsNotFound false for NotFound")
	}
	if IsNotFound(Exists("/x")) {
		t.Error("IsNotFound true for Exists")
	}
	if IsNotFound(nil) {
		t.Error("IsNotFound true for nil")
	}
	if !IsNotInitialized(NotInitialized()) {
		t.Error("IsNotInitialized false")
	}
	if CodeOf(fmt.Errorf("plain")) != "" {
		t.Error("CodeOf plain error should be empty")
	}
}

func TestWrap(t *testing.T) {
	t.Parallel()

	if Wrap(nil, ErrCodeFSError, "op") != nil {
		t.Fatal("Wrap(nil) should be nil")
	}

	original := Exists("/a")
	if got := Wrap(original, ErrCodeFSError, "op"); got != error(original) {
		t.Error("Wrap should leave *VFSError untouched")
	}

	plain := fmt.Errorf("boom")
	got := Wrap(plain, ErrCodeStorageRead, "get")
	if CodeOf(got) != ErrCodeStorageRead {
		t.Errorf("CodeOf = %v, want %v", CodeOf(got), ErrCodeStorageRead)
	}
	if !stderr.Is(got, plain) {
		t.Error("wrapped error should unwrap to the original")
	}
}
