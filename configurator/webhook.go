package configurator

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/resty.v1"

	"github.com/hhubb22/herald/dhcp/v4"
)

type WebhookConfig struct {
	URL     string `yaml:"url" env:"HERALD_WEBHOOK_URL,overwrite"`
	Token   string `yaml:"token" env:"HERALD_WEBHOOK_TOKEN,overwrite"`
	Timeout string `yaml:"timeout"`
}

func (c *WebhookConfig) Enabled() bool {
	return c.URL != ""
}

// Webhook POSTs every lease change as JSON to a URL.
type Webhook struct {
	Config *WebhookConfig
	client *resty.Client
	log    zerolog.Logger
}

func NewWebhook(config *WebhookConfig, logger zerolog.Logger) *Webhook {
	timeout, err := time.ParseDuration(config.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Webhook{
		Config: config,
		client: resty.New().SetTimeout(timeout),
		log:    logger.With().Str("configurator", "webhook").Logger(),
	}
}

func (w *Webhook) Apply(iface string, lease *v4.Lease) error {
	return w.post(NewLeasePayload(EventBound, iface, lease))
}

func (w *Webhook) Revoke(iface string, lease *v4.Lease) error {
	return w.post(NewLeasePayload(EventRevoked, iface, lease))
}

func (w *Webhook) post(payload LeasePayload) error {
	response, err := w.request().
		SetBody(payload).
		Post(w.Config.URL)
	if err != nil {
		return fmt.Errorf("webhook '%s': %w", w.Config.URL, err)
	}
	if response.IsError() {
		return fmt.Errorf("webhook '%s' answered '%s'", w.Config.URL, response.Status())
	}

	w.log.Debug().Str("event", payload.Event).Str("interface", payload.Interface).Int("status", response.StatusCode()).Msg("webhook delivered")
	return nil
}

func (w *Webhook) request() *resty.Request {
	r := w.client.R().
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	if w.Config.Token != "" {
		r.SetHeader("Authorization", fmt.Sprintf("Token %s", w.Config.Token))
	}
	return r
}
