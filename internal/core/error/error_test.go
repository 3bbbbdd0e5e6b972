package errx

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindsMatchWithErrorsIs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", InvalidMethod("bogus"))

	assert.True(t, errors.Is(err, ErrInvalidMethod))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "method must be mmr or similarity")
}

func TestTokenizerIsDistinctFromUnsupportedModel(t *testing.T) {
	cause := errors.New("no such host")
	err := Tokenizer("cl100k_base", cause)

	assert.True(t, errors.Is(err, ErrTokenizer))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrUnsupportedModel))
	assert.Equal(t, http.StatusServiceUnavailable, StatusOf(err))
}

func TestRequestFailedKeepsCause(t *testing.T) {
	cause := Upstream("completion stream failed", errors.New("boom"))
	err := RequestFailed("streaming", cause)

	assert.True(t, errors.Is(err, ErrRequestFailed))
	assert.True(t, errors.Is(err, ErrUpstream))
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
	assert.Equal(t, "completion stream failed", MessageOf(err))

	var ae *AppError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, ErrRequestFailed, ae.Kind)
}

func TestStatusOfPlainError(t *testing.T) {
	err := errors.New("plain")
	assert.Equal(t, http.StatusInternalServerError, StatusOf(err))
	assert.Equal(t, SystemErrorMessage, MessageOf(err))
}

func TestWrapRedis(t *testing.T) {
	assert.Nil(t, WrapRedis(nil))

	notFound := WrapRedis(redis.Nil)
	assert.True(t, errors.Is(notFound, ErrNotFound))
	assert.True(t, errors.Is(notFound, redis.Nil))
	assert.Equal(t, http.StatusNotFound, StatusOf(notFound))

	other := WrapRedis(errors.New("conn refused"))
	assert.True(t, errors.Is(other, ErrRedis))
	assert.Equal(t, http.StatusBadGateway, StatusOf(other))
}
