package configurator

import (
	"errors"

	"github.com/hhubb22/herald/dhcp/v4"
)

// Chain runs every configurator in order. A failing configurator does not
// stop the ones after it.
type Chain []Configurator

func (c Chain) Apply(iface string, lease *v4.Lease) error {
	var errs []error
	for _, cfg := range c {
		if err := cfg.Apply(iface, lease); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c Chain) Revoke(iface string, lease *v4.Lease) error {
	var errs []error
	for _, cfg := range c {
		if err := cfg.Revoke(iface, lease); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
