package config

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/satori/go.uuid"
)

// duidTypeUUID is the DUID-UUID type of RFC 6355.
const duidTypeUUID = 4

const (
	TransportUDP = "udp"
	TransportRaw = "raw"
)

type DHCPConfig struct {
	ClientIDUUID      string   `yaml:"client_id_uuid" env:"HERALD_CLIENT_ID_UUID,overwrite"`
	Hostname          string   `yaml:"hostname" env:"HERALD_HOSTNAME,overwrite"`
	RequestedOptions  []uint8  `yaml:"requested_options"`
	RejectServers     []string `yaml:"reject_servers"`
	RetransmitInitial string   `yaml:"retransmit_initial"`
	RetransmitMax     string   `yaml:"retransmit_max"`
	RetransmitJitter  *float64 `yaml:"retransmit_jitter"`
	DiscoverTimeout   string   `yaml:"discover_timeout"`
	RequestTimeout    string   `yaml:"request_timeout"`
	RenewMinInterval  string   `yaml:"renew_min_interval"`
	FailureBackoff    string   `yaml:"failure_backoff"`
	MaxAttempts       int      `yaml:"max_attempts" env:"HERALD_MAX_ATTEMPTS,overwrite"`
}

// Timing holds the parsed timer settings of a client.
type Timing struct {
	RetransmitInitial time.Duration
	RetransmitMax     time.Duration
	RetransmitJitter  float64
	DiscoverTimeout   time.Duration
	RequestTimeout    time.Duration
	RenewMinInterval  time.Duration
	FailureBackoff    time.Duration
	// MaxAttempts bounds the failed acquisitions in a row; zero retries
	// forever.
	MaxAttempts int
}

// Timing parses the configured durations. Empty or unparsable values fall
// back to their defaults; Validate reports the unparsable ones.
func (d DHCPConfig) Timing() Timing {
	t := Timing{
		RetransmitInitial: parseDuration(d.RetransmitInitial, 4*time.Second),
		RetransmitMax:     parseDuration(d.RetransmitMax, 64*time.Second),
		RetransmitJitter:  0.1,
		DiscoverTimeout:   parseDuration(d.DiscoverTimeout, 60*time.Second),
		RequestTimeout:    parseDuration(d.RequestTimeout, 30*time.Second),
		RenewMinInterval:  parseDuration(d.RenewMinInterval, 60*time.Second),
		FailureBackoff:    parseDuration(d.FailureBackoff, 10*time.Second),
		MaxAttempts:       d.MaxAttempts,
	}
	if d.RetransmitJitter != nil {
		t.RetransmitJitter = *d.RetransmitJitter
	}
	if t.RetransmitMax < t.RetransmitInitial {
		t.RetransmitMax = t.RetransmitInitial
	}
	return t
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func (d DHCPConfig) Validate() error {
	for name, value := range map[string]string{
		"retransmit_initial": d.RetransmitInitial,
		"retransmit_max":     d.RetransmitMax,
		"discover_timeout":   d.DiscoverTimeout,
		"request_timeout":    d.RequestTimeout,
		"renew_min_interval": d.RenewMinInterval,
		"failure_backoff":    d.FailureBackoff,
	} {
		if value == "" {
			continue
		}
		if parsed, err := time.ParseDuration(value); err != nil || parsed <= 0 {
			return fmt.Errorf("dhcp.%s: '%s' is not a positive duration", name, value)
		}
	}
	if d.RetransmitJitter != nil && (*d.RetransmitJitter < 0 || *d.RetransmitJitter >= 1) {
		return fmt.Errorf("dhcp.retransmit_jitter: %v is not within [0, 1)", *d.RetransmitJitter)
	}
	if d.MaxAttempts < 0 {
		return fmt.Errorf("dhcp.max_attempts: %d is negative", d.MaxAttempts)
	}
	if len(d.Hostname) > 255 {
		return fmt.Errorf("dhcp.hostname: longer than 255 bytes")
	}
	for _, server := range d.RejectServers {
		if ip := net.ParseIP(server); ip == nil || ip.To4() == nil {
			return fmt.Errorf("dhcp.reject_servers: '%s' is not an IPv4 address", server)
		}
	}
	if d.ClientIDUUID != "" {
		if _, err := uuid.FromString(d.ClientIDUUID); err != nil {
			return fmt.Errorf("dhcp.client_id_uuid: invalid UUID '%s'", d.ClientIDUUID)
		}
	}
	return nil
}

// ClientIdentifier returns the value of option 61 for the interface with
// the given hardware address. Without a configured UUID it returns nil and
// the hardware address based default applies. With one it returns the
// RFC 4361 form: type 255, an IAID taken from the last four bytes of the
// hardware address and a DUID-UUID (RFC 6355).
func (d DHCPConfig) ClientIdentifier(mac net.HardwareAddr) ([]byte, error) {
	if d.ClientIDUUID == "" {
		return nil, nil
	}
	u, err := uuid.FromString(d.ClientIDUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID '%s'", d.ClientIDUUID)
	}

	buf := make([]byte, 1+4+2+16)
	buf[0] = 0xff
	if len(mac) >= 4 {
		copy(buf[1:5], mac[len(mac)-4:])
	}
	binary.BigEndian.PutUint16(buf[5:7], duidTypeUUID)
	copy(buf[7:], u.Bytes())
	return buf, nil
}

type DaemonConfig struct {
	Transport     string `yaml:"transport" env:"HERALD_TRANSPORT,overwrite"`
	ReleaseOnExit bool   `yaml:"release_on_exit" env:"HERALD_RELEASE_ON_EXIT,overwrite"`
	Log           struct {
		Level  string `yaml:"level" env:"HERALD_LOG_LEVEL,overwrite"`
		Format string `yaml:"format" env:"HERALD_LOG_FORMAT,overwrite"`
		Path   string `yaml:"path"`
	} `yaml:"log"`
	Metrics struct {
		Listen string `yaml:"listen" env:"HERALD_METRICS_LISTEN,overwrite"`
	} `yaml:"metrics"`
	Interfaces map[string]InterfaceConfig `yaml:"interfaces"`
}

func (d DaemonConfig) Validate() error {
	switch d.Transport {
	case "", TransportUDP, TransportRaw:
	default:
		return fmt.Errorf("daemon.transport: '%s' is neither '%s' nor '%s'", d.Transport, TransportUDP, TransportRaw)
	}
	switch d.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("daemon.log.format: '%s' is neither 'json' nor 'console'", d.Log.Format)
	}
	return nil
}

// InterfaceConfig overrides the dhcp section for one interface.
type InterfaceConfig struct {
	Hostname     string `yaml:"hostname"`
	ClientIDUUID string `yaml:"client_id_uuid"`
}

// ForInterface returns the dhcp settings with the overrides of iface
// applied.
func (d DaemonConfig) ForInterface(iface string, dhcp DHCPConfig) DHCPConfig {
	override, ok := d.Interfaces[iface]
	if !ok {
		return dhcp
	}
	if override.Hostname != "" {
		dhcp.Hostname = override.Hostname
	}
	if override.ClientIDUUID != "" {
		dhcp.ClientIDUUID = override.ClientIDUUID
	}
	return dhcp
}
