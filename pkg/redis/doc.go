// Package redis connects to Redis with retries. The client backs the shared
// rate limit counters when the service runs as several replicas.
package redis
