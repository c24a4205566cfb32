package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithCauseKeepsKindAndMessage(t *testing.T) {
	cause := errors.New("dial tcp 127.0.0.1:8188: connect: connection refused")
	err := WithCause(ErrEngineUnreachable, cause)

	assert.True(t, errors.Is(err, ErrEngineUnreachable))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, ErrEngineUnreachable.UserMsg, GetUserMessage(err))
	assert.Equal(t, cause.Error(), err.Error())
}

func TestGetUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "predefined",
			err:  ErrValidation,
			want: ErrValidation.UserMsg,
		},
		{
			name: "wrapped with fmt",
			err:  fmt.Errorf("submit: %w", WithCause(ErrValidation, errors.New("400"))),
			want: ErrValidation.UserMsg,
		},
		{
			name: "plain error falls back to generic message",
			err:  errors.New("boom"),
			want: ErrUnknownTransport.UserMsg,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetUserMessage(tt.err))
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindEngineUnreachable, KindOf(fmt.Errorf("x: %w", ErrEngineUnreachable)))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(Wrap(errors.New("custom"), "msg", false)))
}

func TestUnreachableAndValidationMessagesDiffer(t *testing.T) {
	assert.NotEqual(t, ErrEngineUnreachable.UserMsg, ErrValidation.UserMsg)
	assert.True(t, IsRetryable(ErrEngineUnreachable))
	assert.False(t, IsRetryable(ErrValidation))
}
