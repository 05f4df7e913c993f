package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.class.String())
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"no connection", ErrNoConnection, true},
		{"publish failed", fmt.Errorf("wrap: %w", ErrPublishFailed), true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"invalid data", ErrInvalidData, false},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("x")}, true},
		{"classified invalid", &ClassifiedError{Class: ErrorInvalid, Err: fmt.Errorf("connection field")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsTransient(test.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.True(t, IsFatal(ErrInvalidConfig))
	assert.True(t, IsFatal(fmt.Errorf("load: %w", ErrMissingConfig)))
	assert.False(t, IsFatal(ErrInvalidData))
	assert.True(t, IsFatal(WrapFatal(errors.New("boom"), "Registry", "Register", "schema check")))
}

func TestIsInvalid(t *testing.T) {
	assert.False(t, IsInvalid(nil))
	assert.True(t, IsInvalid(ErrInvalidData))
	assert.True(t, IsInvalid(ErrUnknownType))
	assert.True(t, IsInvalid(WrapInvalid(errors.New("bad"), "Codec", "Decode", "parse")))
	assert.False(t, IsInvalid(ErrConnectionLost))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorInvalid, Classify(ErrInvalidData))
	assert.Equal(t, ErrorFatal, Classify(ErrInvalidConfig))
	assert.Equal(t, ErrorTransient, Classify(ErrConnectionLost))
	assert.Equal(t, ErrorTransient, Classify(errors.New("something odd")))

	// a validation failure whose text mentions a connection is still invalid
	invalid := fmt.Errorf("connection id missing: %w", ErrInvalidData)
	assert.Equal(t, ErrorInvalid, Classify(invalid))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "A", "B", "c"))
	assert.Nil(t, WrapTransient(nil, "A", "B", "c"))

	base := errors.New("root cause")
	err := Wrap(base, "Machine", "ProcessEpoch", "publish")
	assert.Equal(t, "Machine.ProcessEpoch: publish failed: root cause", err.Error())
	assert.ErrorIs(t, err, base)
}

func TestWrapClassified(t *testing.T) {
	base := errors.New("no route")
	err := WrapTransient(base, "Client", "Publish", "send")

	var ce *ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrorTransient, ce.Class)
	assert.Equal(t, "Client", ce.Component)
	assert.Equal(t, "Publish", ce.Operation)
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "Client.Publish: send failed")
}
