package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
)

// Error kinds. Match them with errors.Is against any error produced by this package.
var (
	ErrValidation       = errors.New("validation error")
	ErrUnsupportedModel = errors.New("unsupported model")
	ErrTokenizer        = errors.New("tokenizer unavailable")
	ErrInvalidMethod    = errors.New("invalid retrieval method")
	ErrConnection       = errors.New("vector store connection error")
	ErrUpstream         = errors.New("upstream completion error")
	ErrNotFound         = errors.New("not found")
	ErrRequestFailed    = errors.New("request failed")
	ErrRedis            = errors.New("redis error")
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Kind    error
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

func newKind(kind error, err error, status int, message string) *AppError {
	return &AppError{Kind: kind, Err: err, Status: status, Message: message}
}

// Validation reports malformed caller input.
func Validation(message string) *AppError {
	return newKind(ErrValidation, nil, http.StatusBadRequest, message)
}

// UnsupportedModel reports a tokenizer model identifier with no known encoding.
func UnsupportedModel(model string, err error) *AppError {
	return newKind(ErrUnsupportedModel, err, http.StatusInternalServerError, fmt.Sprintf("unsupported model %q", model))
}

// Tokenizer reports an encoding that exists but could not be loaded, for
// example when its BPE file cannot be fetched.
func Tokenizer(encoding string, err error) *AppError {
	return newKind(ErrTokenizer, err, http.StatusServiceUnavailable, fmt.Sprintf("tokenizer encoding %q could not be loaded", encoding))
}

// InvalidMethod reports a retrieval method other than similarity or mmr.
func InvalidMethod(method string) *AppError {
	return newKind(ErrInvalidMethod, nil, http.StatusInternalServerError,
		fmt.Sprintf("method must be mmr or similarity, got %q", method))
}

// Connection reports an inaccessible vector store location or a missing collection.
func Connection(message string, err error) *AppError {
	return newKind(ErrConnection, err, http.StatusServiceUnavailable, message)
}

// Upstream reports a failure of the completion or embedding service.
func Upstream(message string, err error) *AppError {
	return newKind(ErrUpstream, err, http.StatusBadGateway, message)
}

// NotFound reports a missing resource such as a prompt file.
func NotFound(message string, err error) *AppError {
	return newKind(ErrNotFound, err, http.StatusNotFound, message)
}

// RequestFailed marks a pipeline failure at the given stage. The status of
// the cause is kept so the HTTP boundary can report it faithfully.
func RequestFailed(stage string, err error) *AppError {
	status := http.StatusInternalServerError
	var ae *AppError
	if errors.As(err, &ae) && ae.Status != 0 {
		status = ae.Status
	}
	return newKind(ErrRequestFailed, err, status, fmt.Sprintf("request failed during %s", stage))
}

// StatusOf returns the HTTP status carried by err, or 500.
func StatusOf(err error) int {
	var ae *AppError
	if errors.As(err, &ae) && ae.Status != 0 {
		return ae.Status
	}
	return http.StatusInternalServerError
}

// MessageOf returns the innermost safe message carried by err.
func MessageOf(err error) string {
	msg := SystemErrorMessage
	for err != nil {
		if ae, ok := err.(*AppError); ok && ae.Message != "" {
			msg = ae.Message
			if ae.Kind != ErrRequestFailed {
				return msg
			}
		}
		err = errors.Unwrap(err)
	}
	return msg
}

// Is reports whether the target matches the error kind or the underlying error.
func (e *AppError) Is(target error) bool {
	if e.Kind != nil && e.Kind == target {
		return true
	}
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return errors.As(e.Err, target)
}
