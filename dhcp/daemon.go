package dhcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hhubb22/herald/configuration"
	"github.com/hhubb22/herald/configurator"
	"github.com/hhubb22/herald/dhcp/config"
	"github.com/hhubb22/herald/dhcp/v4"
)

// Daemon runs one ClientV4 per interface.
type Daemon struct {
	Configuration *configuration.Configuration

	clients map[string]*ClientV4
	log     zerolog.Logger
}

// Listener opens the transport of an interface.
type Listener func(iface *net.Interface, transport string, logger zerolog.Logger) (v4.Conn, error)

// Listen opens the transport named in the daemon configuration.
func Listen(iface *net.Interface, transport string, logger zerolog.Logger) (v4.Conn, error) {
	switch transport {
	case config.TransportRaw:
		return v4.ListenRaw(*iface, logger)
	case config.TransportUDP, "":
		return v4.ListenUDP(iface.Name, logger)
	default:
		return nil, fmt.Errorf("unknown transport '%s'", transport)
	}
}

// links resolves interface names and opens their transports.
type links struct {
	lookup func(name string) (*net.Interface, error)
	listen Listener
}

func NewDaemon(conf *configuration.Configuration, ifaces []string, cfg configurator.Configurator, observer Observer, logger zerolog.Logger) (*Daemon, error) {
	return newDaemon(conf, ifaces, cfg, observer, logger, links{lookup: net.InterfaceByName, listen: Listen})
}

func newDaemon(conf *configuration.Configuration, ifaces []string, cfg configurator.Configurator, observer Observer, logger zerolog.Logger, l links, opts ...ClientOption) (*Daemon, error) {
	d := &Daemon{
		Configuration: conf,
		clients:       make(map[string]*ClientV4),
		log:           logger,
	}

	for _, name := range ifaces {
		if _, ok := d.clients[name]; ok {
			continue
		}

		dhcpConfig := conf.Daemon.ForInterface(name, conf.DHCP)
		iface, err := l.lookup(name)
		if err != nil {
			d.Shutdown()
			return nil, fmt.Errorf("can't find interface '%s': %w", name, err)
		}
		identity, err := identityFor(name, iface.HardwareAddr, &dhcpConfig)
		if err != nil {
			d.Shutdown()
			return nil, err
		}

		conn, err := l.listen(iface, conf.Daemon.Transport, logger)
		if err != nil {
			d.Shutdown()
			return nil, fmt.Errorf("can't listen on interface '%s': %w", name, err)
		}

		clientOpts := append([]ClientOption{WithObserver(observer), WithConfigurator(cfg)}, opts...)
		d.clients[name] = NewClientV4(conn, identity, &dhcpConfig, clientOpts...)
		d.log.Debug().Str("interface", name).Stringer("mac", identity.HardwareAddr).Msg("client created")
	}

	if len(d.clients) == 0 {
		return nil, errors.New("no interface to configure")
	}
	return d, nil
}

// Run runs every client until ctx is done. A client that fails does not
// stop the others; Run returns the first failure once all have stopped.
func (d *Daemon) Run(ctx context.Context) error {
	d.log.Info().Strs("interfaces", d.Interfaces()).Msg("starting daemon")

	var g errgroup.Group
	for name, client := range d.clients {
		name, client := name, client
		g.Go(func() error {
			err := client.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				d.log.Error().Err(err).Str("interface", name).Msg("client stopped")
				return fmt.Errorf("interface '%s': %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// AcquireAll acquires a lease on every interface concurrently.
func (d *Daemon) AcquireAll(ctx context.Context) (map[string]*v4.Lease, error) {
	var mu sync.Mutex
	leases := make(map[string]*v4.Lease, len(d.clients))

	g, gctx := errgroup.WithContext(ctx)
	for name, client := range d.clients {
		name, client := name, client
		g.Go(func() error {
			lease, err := client.Acquire(gctx)
			if err != nil {
				return fmt.Errorf("interface '%s': %w", name, err)
			}
			mu.Lock()
			leases[name] = lease
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return leases, err
	}
	return leases, nil
}

// Ready reports whether every interface holds a lease.
func (d *Daemon) Ready() bool {
	for _, client := range d.clients {
		if client.Lease() == nil {
			return false
		}
	}
	return true
}

func (d *Daemon) Interfaces() []string {
	names := make([]string, 0, len(d.clients))
	for name := range d.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Daemon) Client(iface string) *ClientV4 {
	return d.clients[iface]
}

// Shutdown releases the leases if configured to and closes every client.
// Run must have returned.
func (d *Daemon) Shutdown() {
	d.log.Info().Msg("stopping daemon")

	for name, client := range d.clients {
		if d.Configuration.Daemon.ReleaseOnExit {
			if err := client.Release(); err != nil {
				d.log.Warn().Err(err).Str("interface", name).Msg("can't release lease")
			}
		}
		if err := client.Close(); err != nil {
			d.log.Debug().Err(err).Str("interface", name).Msg("closing connection")
		}
	}

	d.log.Info().Msg("stopped daemon")
}
