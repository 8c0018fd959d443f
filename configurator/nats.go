package configurator

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/hhubb22/herald/dhcp/v4"
)

type NATSConfig struct {
	URL     string `yaml:"url" env:"HERALD_NATS_URL,overwrite"`
	Subject string `yaml:"subject" env:"HERALD_NATS_SUBJECT,overwrite"`
}

func (c *NATSConfig) Enabled() bool {
	return c.URL != ""
}

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes lease changes on <subject>.bound and <subject>.revoked.
type NATS struct {
	conn    publisher
	subject string
	log     zerolog.Logger
	close   func()
}

func NewNATS(config *NATSConfig, logger zerolog.Logger) (*NATS, error) {
	nc, err := nats.Connect(config.URL, nats.Name("herald"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect to nats at '%s': %w", config.URL, err)
	}

	n := newNATS(nc, config.Subject, logger)
	n.close = nc.Close
	return n, nil
}

func newNATS(conn publisher, subject string, logger zerolog.Logger) *NATS {
	if subject == "" {
		subject = "herald.leases"
	}
	return &NATS{
		conn:    conn,
		subject: subject,
		log:     logger.With().Str("configurator", "nats").Logger(),
		close:   func() {},
	}
}

func (n *NATS) Apply(iface string, lease *v4.Lease) error {
	return n.publish(NewLeasePayload(EventBound, iface, lease))
}

func (n *NATS) Revoke(iface string, lease *v4.Lease) error {
	return n.publish(NewLeasePayload(EventRevoked, iface, lease))
}

func (n *NATS) Close() {
	n.close()
}

func (n *NATS) publish(payload LeasePayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	subject := n.subject + "." + payload.Event
	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to '%s': %w", subject, err)
	}
	n.log.Debug().Str("subject", subject).Str("interface", payload.Interface).Msg("lease published")
	return nil
}
