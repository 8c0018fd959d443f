package configuration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v2"

	"github.com/hhubb22/herald/cache"
	"github.com/hhubb22/herald/configurator"
	"github.com/hhubb22/herald/dhcp/config"
)

// DefaultPath is read when no config file is given. It may be absent.
const DefaultPath = "/etc/herald.conf.yaml"

type Configuration struct {
	Daemon config.DaemonConfig        `yaml:"daemon"`
	DHCP   config.DHCPConfig          `yaml:"dhcp"`
	Cache  cache.CacheConfig          `yaml:"cache"`
	Hook   configurator.WebhookConfig `yaml:"hook"`
	NATS   configurator.NATSConfig    `yaml:"nats"`
}

func ReadConfig(filename string) (conf Configuration, err error) {
	rawFile, err := os.ReadFile(filename)
	if err != nil {
		return conf, fmt.Errorf("can't read config file: %w", err)
	}

	err = yaml.UnmarshalStrict(rawFile, &conf)
	if err != nil {
		return conf, fmt.Errorf("can't parse config file '%s': %w", filename, err)
	}

	return conf, nil
}

// Load reads filename, applies the HERALD_* variables found by lookuper
// on top and validates the result. An empty filename skips the file, and a
// missing DefaultPath is not an error; both start from built-in defaults.
func Load(ctx context.Context, filename string, lookuper envconfig.Lookuper) (Configuration, error) {
	var conf Configuration
	if filename != "" {
		var err error
		conf, err = ReadConfig(filename)
		if err != nil {
			if !(filename == DefaultPath && errors.Is(err, fs.ErrNotExist)) {
				return conf, err
			}
			conf = Configuration{}
		}
	}

	if lookuper == nil {
		lookuper = envconfig.OsLookuper()
	}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &conf,
		Lookuper: lookuper,
	}); err != nil {
		return conf, fmt.Errorf("can't apply environment: %w", err)
	}

	if err := conf.Validate(); err != nil {
		return conf, err
	}
	return conf, nil
}

func (c *Configuration) Validate() error {
	if err := c.Daemon.Validate(); err != nil {
		return err
	}
	return c.DHCP.Validate()
}
