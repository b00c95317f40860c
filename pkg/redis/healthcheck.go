package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Healthcheck expects PONG from the server that holds the shared rate-limit
// counters.
func Healthcheck(client redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		pong, err := client.Ping(ctx).Result()
		if err != nil {
			return errors.Join(ErrNotReady, err)
		}
		if pong != "PONG" {
			return errors.Join(ErrNotReady, fmt.Errorf("unexpected reply %q", pong))
		}
		return nil
	}
}
