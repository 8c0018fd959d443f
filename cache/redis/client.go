package redis

import (
	"fmt"

	"github.com/go-redis/redis"
)

// NewClient connects lazily; the first command dials the server.
func NewClient(config *RedisConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.port()),
		Password: config.Password,
		DB:       int(config.Database),
	})

	return client
}

// Ping checks that the configured server answers.
func Ping(client *redis.Client) error {
	if err := client.Ping().Err(); err != nil {
		return fmt.Errorf("redis at '%s' unreachable: %w", client.Options().Addr, err)
	}
	return nil
}
