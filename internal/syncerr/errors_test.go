package syncerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassification(t *testing.T) {
	cause := errors.New("connection reset")

	err := Transient("submit_batch", cause)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, KindTransient, KindOf(err))
	assert.ErrorIs(t, err, cause)

	verr := Validation("apply", errors.New("missing title"))
	assert.False(t, IsRetryable(verr))
	assert.Equal(t, KindValidation, KindOf(verr))
}

func TestKindSurvivesWrapping(t *testing.T) {
	inner := Auth("submit_batch", errors.New("token expired"))
	wrapped := fmt.Errorf("round failed: %w", inner)

	assert.Equal(t, KindAuth, KindOf(wrapped))
	assert.False(t, IsRetryable(wrapped))
}

func TestUnclassified(t *testing.T) {
	err := errors.New("plain")
	require.False(t, IsRetryable(err))
	assert.Equal(t, Kind(""), KindOf(err))
}

func TestErrorString(t *testing.T) {
	err := Storage("put", errors.New("disk full"))
	assert.Equal(t, "put: storage: disk full", err.Error())
}
