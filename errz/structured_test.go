package errz

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSourceLocationString(t *testing.T) {
	require.Equal(t, "main.monty:10:5", SourceLocation{Filename: "main.monty", Line: 10, Column: 5}.String())
	require.Equal(t, "10:5", SourceLocation{Line: 10, Column: 5}.String())
}

func TestSourceLocationIsZero(t *testing.T) {
	require.True(t, SourceLocation{}.IsZero())
	require.False(t, SourceLocation{Line: 1}.IsZero())
}

func TestErrorKindString(t *testing.T) {
	require.Equal(t, "ZeroDivisionError", ZeroDivisionError.String())
	require.Equal(t, "Exception", UserDefined.String())
}

func TestStructuredErrorMessage(t *testing.T) {
	err := New(ZeroDivisionError, "division by zero", SourceLocation{Line: 2, Column: 3}, nil)
	require.Equal(t, "ZeroDivisionError: division by zero (2:3)", err.Error())
}

func TestStructuredErrorUserDefinedUsesTypeID(t *testing.T) {
	err := NewUserDefined("MyError", "boom", SourceLocation{}, nil)
	require.Equal(t, "MyError: boom", err.Error())
}

func TestStructuredErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := New(ExternalError, "fetch failed", SourceLocation{}, nil).WithCause(cause)
	require.Equal(t, cause, err.Unwrap())
	require.ErrorIs(t, err, cause)
}

func TestStructuredErrorIsFatal(t *testing.T) {
	require.True(t, New(SyntaxError, "bad token", SourceLocation{}, nil).IsFatal())
	require.False(t, New(TypeError, "bad type", SourceLocation{}, nil).IsFatal())
}

func TestFormatStackTraceOrdersInnermostFirst(t *testing.T) {
	frames := []StackFrame{
		{Function: "<module>", Location: SourceLocation{Line: 1}},
		{Function: "f", Location: SourceLocation{Line: 2}},
	}
	out := FormatStackTrace(frames)
	require.Contains(t, out, "at f")
	require.Less(t, indexOf(out, "at f"), indexOf(out, "at <module>"))
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
