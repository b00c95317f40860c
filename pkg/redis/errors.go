package redis

import "errors"

var (
	ErrEmptyConnectionURL = errors.New("redis: REDIS_URL is not set")
	ErrParseURL           = errors.New("redis: invalid connection URL")
	ErrNotReady           = errors.New("redis: server did not answer PING")
)
