package dhcp

import (
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/hhubb22/herald/dhcp/v4"
)

type EventKind int

const (
	// EventTransition is emitted once per state change.
	EventTransition EventKind = iota
	// EventTransmit is emitted for every datagram handed to the transport.
	EventTransmit
	// EventDiscard is emitted for every received datagram that was ignored.
	EventDiscard
	// EventHandoffFailed is emitted when a configurator rejects a lease.
	EventHandoffFailed
	// EventRelease is emitted when a lease is given back to the server.
	EventRelease
)

func (k EventKind) String() string {
	switch k {
	case EventTransition:
		return "transition"
	case EventTransmit:
		return "transmit"
	case EventDiscard:
		return "discard"
	case EventHandoffFailed:
		return "handoff_failed"
	case EventRelease:
		return "release"
	default:
		return "unknown"
	}
}

// Discard reasons. They are stable and suitable as metric labels.
const (
	DiscardDecode       = "decode"
	DiscardNotReply     = "not_reply"
	DiscardXID          = "xid_mismatch"
	DiscardType         = "unexpected_type"
	DiscardServer       = "server_mismatch"
	DiscardRejected     = "rejected_server"
	DiscardIncomplete   = "incomplete_offer"
	DiscardInvalidLease = "invalid_lease"
)

// Event describes something the client did. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind        EventKind
	Interface   string
	Time        time.Time
	From        State
	To          State
	XID         uint32
	MessageType v4.MessageType
	Destination net.IP
	Reason      string
	Err         error
	Lease       *v4.Lease
}

// An Observer receives the events of a client. It is called synchronously
// from the client's goroutine and must not block. Configurators are not
// observers; see WithConfigurator.
type Observer func(Event)

// Observers fans every event out to all observers.
func Observers(observers ...Observer) Observer {
	return func(e Event) {
		for _, o := range observers {
			if o != nil {
				o(e)
			}
		}
	}
}

// LogObserver writes events to logger. Discards and transmissions are
// logged at debug level.
func LogObserver(logger zerolog.Logger) Observer {
	return func(e Event) {
		switch e.Kind {
		case EventTransition:
			ev := logger.Info()
			if e.To == StateInit && e.From != StateInit {
				ev = logger.Warn()
			}
			ev = ev.Str("interface", e.Interface).
				Stringer("from", e.From).
				Stringer("to", e.To).
				Str("reason", e.Reason).
				Str("xid", formatXID(e.XID))
			if e.Lease != nil && e.To == StateBound {
				ev = ev.Stringer("address", e.Lease.Network()).
					Time("renew_at", e.Lease.RenewAt()).
					Time("expires_at", e.Lease.ExpiresAt())
			}
			ev.Msg("state changed")
		case EventTransmit:
			logger.Debug().
				Str("interface", e.Interface).
				Stringer("type", e.MessageType).
				Str("xid", formatXID(e.XID)).
				Stringer("dst", e.Destination).
				Msg("message sent")
		case EventDiscard:
			logger.Debug().
				Str("interface", e.Interface).
				Str("reason", e.Reason).
				Str("xid", formatXID(e.XID)).
				Err(e.Err).
				Msg("datagram discarded")
		case EventHandoffFailed:
			logger.Error().
				Str("interface", e.Interface).
				Str("reason", e.Reason).
				Err(e.Err).
				Msg("lease handoff failed")
		case EventRelease:
			ev := logger.Info().Str("interface", e.Interface).Err(e.Err)
			if e.Lease != nil {
				ev = ev.Stringer("address", e.Lease.Network())
			}
			ev.Msg("lease released")
		}
	}
}

func formatXID(xid uint32) string {
	return fmt.Sprintf("0x%08x", xid)
}
