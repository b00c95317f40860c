package mongo

import "errors"

var (
	ErrEmptyConnectionURL = errors.New("mongo: MONGODB_URL is not set")
	ErrConnect            = errors.New("mongo: could not connect")
	ErrNotReady           = errors.New("mongo: primary is not reachable")
)
