package redis

type RedisConfig struct {
	Host      string `yaml:"host" env:"HERALD_REDIS_HOST,overwrite"`
	Port      uint16 `yaml:"port" env:"HERALD_REDIS_PORT,overwrite"`
	Password  string `yaml:"password" env:"HERALD_REDIS_PASSWORD,overwrite"`
	Database  uint8  `yaml:"database"`
	KeyPrefix string `yaml:"key_prefix"`
}

// Enabled reports whether a redis server is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

func (c *RedisConfig) port() uint16 {
	if c.Port == 0 {
		return 6379
	}
	return c.Port
}

func (c *RedisConfig) Prefix() string {
	if c.KeyPrefix == "" {
		return "herald"
	}
	return c.KeyPrefix
}
