package cache

import "github.com/hhubb22/herald/cache/redis"

type CacheConfig struct {
	Redis redis.RedisConfig `yaml:"redis"`
}
