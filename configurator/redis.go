package configurator

import (
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis"
	"github.com/rs/zerolog"

	"github.com/hhubb22/herald/dhcp/v4"
)

// Redis keeps the current lease of every interface in redis, so that
// other processes on the host can read it. Entries expire together with
// the lease.
type Redis struct {
	Client *redis.Client
	Prefix string
	Logger zerolog.Logger
}

// REDIS STRUCTURE
// -------------------------------------
// key:                     value:
// -------------------------------------
// {prefix};v4;{interface}  {json}
// -------------------------------------

func (r Redis) Apply(iface string, lease *v4.Lease) error {
	infoAsJson, err := json.Marshal(NewLeasePayload(EventBound, iface, lease))
	if err != nil {
		return fmt.Errorf("can't convert lease of '%s': %w", iface, err)
	}

	key := r.key(iface)
	r.Logger.Debug().Str("key", key).Msg("writing lease to the cache")

	status := r.Client.Set(key, infoAsJson, lease.Timeouts.Lease)
	if status.Err() != nil {
		return fmt.Errorf("can't write lease to '%s': %w", key, status.Err())
	}
	return nil
}

func (r Redis) Revoke(iface string, lease *v4.Lease) error {
	key := r.key(iface)
	r.Logger.Debug().Str("key", key).Msg("removing lease from the cache")

	if err := r.Client.Del(key).Err(); err != nil {
		return fmt.Errorf("can't remove '%s': %w", key, err)
	}
	return nil
}

// Lookup returns the cached lease of iface, or nil if there is none.
func (r Redis) Lookup(iface string) (*LeasePayload, error) {
	key := r.key(iface)

	rawInfo, err := r.Client.Get(key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to receive '%s': %w", key, err)
	}

	var payload LeasePayload
	if err := json.Unmarshal(rawInfo, &payload); err != nil {
		return nil, fmt.Errorf("unable to reconstruct lease from '%s': %w", key, err)
	}
	return &payload, nil
}

func (r Redis) key(iface string) string {
	return fmt.Sprintf("%s;v4;%s", r.Prefix, iface)
}
