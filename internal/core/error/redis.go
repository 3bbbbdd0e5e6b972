package errx

import (
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"
)

// WrapRedis maps Redis errors to an AppError with an appropriate status code.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, redis.Nil) {
		return newKind(ErrNotFound, err, http.StatusNotFound, RedisNotFoundMessage)
	}

	return newKind(ErrRedis, err, http.StatusBadGateway, RedisErrorMessage)
}
