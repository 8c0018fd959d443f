package dhcp

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hhubb22/herald/configurator"
	"github.com/hhubb22/herald/dhcp/config"
	"github.com/hhubb22/herald/dhcp/retry"
	"github.com/hhubb22/herald/dhcp/v4"
	"github.com/hhubb22/herald/util"
)

// inboundQueue is the number of received datagrams buffered between the
// reader goroutine and the state machine.
const inboundQueue = 16

var (
	// ErrAttemptsExhausted is returned by Run when max_attempts acquisitions
	// failed in a row.
	ErrAttemptsExhausted = errors.New("dhcp: too many failed acquisitions")
	// ErrProtocolViolation marks replies that match the transaction but
	// break RFC 2131, such as a DHCPACK without lease time.
	ErrProtocolViolation = errors.New("dhcp: protocol violation")
	// ErrNak is reported on transitions caused by a DHCPNAK.
	ErrNak = errors.New("dhcp: server declined the request")
	// ErrRunning is returned when Run, Acquire or Release is called while
	// the client is already running.
	ErrRunning = errors.New("dhcp: client is already running")
)

// TransportError wraps a failure of the underlying connection. The client
// cannot continue after one.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("dhcp transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type State int32

const (
	StateInit State = iota
	StateSelecting
	StateRequesting
	StateBound
	StateRenewing
	StateRebinding
)

var allStates = []State{StateInit, StateSelecting, StateRequesting, StateBound, StateRenewing, StateRebinding}

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSelecting:
		return "selecting"
	case StateRequesting:
		return "requesting"
	case StateBound:
		return "bound"
	case StateRenewing:
		return "renewing"
	case StateRebinding:
		return "rebinding"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// state is one variant of the client state machine. Each variant carries
// exactly the data that is valid while the client is in it.
type state interface {
	tag() State
	run(ctx context.Context, c *ClientV4) (transition, error)
}

// transition is the outcome of a state. err explains the transition and
// is reported on the event; it does not stop the client.
type transition struct {
	next   state
	reason string
	err    error
}

type initState struct{}

type selectingState struct {
	xid uint32
}

type requestingState struct {
	xid   uint32
	offer *v4.Message
}

type boundState struct {
	lease *v4.Lease
}

type renewingState struct {
	xid   uint32
	lease *v4.Lease
}

type rebindingState struct {
	xid   uint32
	lease *v4.Lease
}

func (initState) tag() State       { return StateInit }
func (selectingState) tag() State  { return StateSelecting }
func (requestingState) tag() State { return StateRequesting }
func (boundState) tag() State      { return StateBound }
func (renewingState) tag() State   { return StateRenewing }
func (rebindingState) tag() State  { return StateRebinding }

func xidOf(s state) uint32 {
	switch s := s.(type) {
	case selectingState:
		return s.xid
	case requestingState:
		return s.xid
	case renewingState:
		return s.xid
	case rebindingState:
		return s.xid
	default:
		return 0
	}
}

// ClientV4 runs the DHCPv4 client state machine for one interface.
type ClientV4 struct {
	identity      v4.ClientIdentity
	conn          v4.Conn
	timing        config.Timing
	buildOpts     []v4.BuildOption
	rejectServers []net.IP
	scheduler     *retry.Scheduler
	observer      Observer
	configurator  configurator.Configurator
	newXID        func() uint32

	inbound   chan []byte
	readErr   error
	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}

	running  atomic.Bool
	current  atomic.Int32
	lease    atomic.Pointer[v4.Lease]
	machine  state
	failures int
}

type ClientOption func(*ClientV4)

func WithObserver(observer Observer) ClientOption {
	return func(c *ClientV4) {
		if observer != nil {
			c.observer = observer
		}
	}
}

// WithConfigurator sets who is told about granted and lost leases. Apply
// and Revoke run on the client's goroutine, so the state machine waits for
// them: Acquire returns only after Apply has finished, and no timer or
// reply is handled meanwhile. A configurator that talks to a remote system
// bounds its own calls with a timeout.
func WithConfigurator(cfg configurator.Configurator) ClientOption {
	return func(c *ClientV4) {
		if cfg != nil {
			c.configurator = cfg
		}
	}
}

func WithClock(clock retry.Clock) ClientOption {
	return func(c *ClientV4) {
		c.scheduler = retry.NewScheduler(clock)
	}
}

// WithXIDSource replaces the random transaction id generator.
func WithXIDSource(next func() uint32) ClientOption {
	return func(c *ClientV4) {
		c.newXID = next
	}
}

func NewClientV4(conn v4.Conn, identity v4.ClientIdentity, dhcpConfig *config.DHCPConfig, opts ...ClientOption) *ClientV4 {
	c := &ClientV4{
		identity:      identity,
		conn:          conn,
		timing:        dhcpConfig.Timing(),
		rejectServers: util.ParseIP4s(dhcpConfig.RejectServers),
		scheduler:     retry.NewScheduler(nil),
		observer:      func(Event) {},
		configurator:  configurator.Chain{},
		newXID:        rand.Uint32,
		inbound:       make(chan []byte, inboundQueue),
		done:          make(chan struct{}),
		machine:       initState{},
	}

	if dhcpConfig.Hostname != "" {
		c.buildOpts = append(c.buildOpts, v4.WithHostname(dhcpConfig.Hostname))
	}
	if len(dhcpConfig.RequestedOptions) > 0 {
		codes := make([]v4.OptionCode, 0, len(dhcpConfig.RequestedOptions))
		for _, code := range dhcpConfig.RequestedOptions {
			codes = append(codes, v4.OptionCode(code))
		}
		c.buildOpts = append(c.buildOpts, v4.WithRequestedOptions(codes...))
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ClientV4) Interface() string {
	return c.identity.Interface
}

// State returns the current state. It is safe to call from any goroutine.
func (c *ClientV4) State() State {
	return State(c.current.Load())
}

// Lease returns the lease currently held, or nil.
func (c *ClientV4) Lease() *v4.Lease {
	return c.lease.Load()
}

// Run drives the state machine until ctx is done or an unrecoverable error
// occurs: a *TransportError, ErrAttemptsExhausted or a build failure. A
// lease held when Run returns stays held; see Release.
func (c *ClientV4) Run(ctx context.Context) error {
	return c.drive(ctx, nil)
}

// Acquire drives the state machine until the client holds a lease and
// returns it. Run continues from there.
func (c *ClientV4) Acquire(ctx context.Context) (*v4.Lease, error) {
	err := c.drive(ctx, func(s state) bool {
		return s.tag() == StateBound
	})
	if err != nil {
		return nil, err
	}
	return c.Lease(), nil
}

func (c *ClientV4) drive(ctx context.Context, stop func(state) bool) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer c.running.Store(false)

	c.startOnce.Do(func() {
		go c.readLoop()
	})

	for {
		if stop != nil && stop(c.machine) {
			return nil
		}
		t, err := c.machine.run(ctx, c)
		if err != nil {
			return err
		}
		c.enter(t)
	}
}

// Release sends a DHCPRELEASE for the current lease and revokes it. It must
// not be called while Run is active.
func (c *ClientV4) Release() error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer c.running.Store(false)

	lease := c.lease.Swap(nil)
	if lease == nil {
		return nil
	}
	c.machine = initState{}
	c.current.Store(int32(StateInit))

	dst := serverOrBroadcast(lease)
	msg, err := v4.NewRelease(c.identity, c.newXID(), lease)
	if err == nil {
		if werr := c.conn.WriteTo(v4.Encode(msg), dst); werr != nil {
			err = &TransportError{Op: "write", Err: werr}
		}
	}

	c.revoke(lease)
	ev := Event{Kind: EventRelease, Destination: dst, Err: err, Lease: lease}
	if msg != nil {
		ev.XID = msg.XID
	}
	c.emit(ev)
	return err
}

// Close stops the reader goroutine and closes the connection.
func (c *ClientV4) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *ClientV4) readLoop() {
	defer close(c.inbound)

	for {
		p, _, err := c.conn.ReadFrom()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.readErr = err
			}
			return
		}

		select {
		case c.inbound <- p:
		case <-c.done:
			return
		}
	}
}

// enter applies a transition: it swaps the state, keeps the lease in sync
// and notifies the observer and the configurator.
func (c *ClientV4) enter(t transition) {
	from := c.machine.tag()
	c.machine = t.next
	c.current.Store(int32(t.next.tag()))

	ev := Event{
		Kind:   EventTransition,
		From:   from,
		To:     t.next.tag(),
		XID:    xidOf(t.next),
		Reason: t.reason,
		Err:    t.err,
	}

	switch next := t.next.(type) {
	case boundState:
		c.failures = 0
		c.lease.Store(next.lease)
		ev.Lease = next.lease
		c.emit(ev)
		c.apply(next.lease)
	case initState:
		lost := c.lease.Swap(nil)
		ev.Lease = lost
		c.emit(ev)
		if lost != nil {
			c.revoke(lost)
		}
	default:
		ev.Lease = c.lease.Load()
		c.emit(ev)
	}
}

func (c *ClientV4) apply(lease *v4.Lease) {
	if err := c.configurator.Apply(c.identity.Interface, lease); err != nil {
		c.emit(Event{Kind: EventHandoffFailed, Reason: "apply", Err: err, Lease: lease})
	}
}

func (c *ClientV4) revoke(lease *v4.Lease) {
	if err := c.configurator.Revoke(c.identity.Interface, lease); err != nil {
		c.emit(Event{Kind: EventHandoffFailed, Reason: "revoke", Err: err, Lease: lease})
	}
}

func (c *ClientV4) emit(e Event) {
	e.Interface = c.identity.Interface
	e.Time = c.scheduler.Clock().Now()
	c.observer(e)
}

func (c *ClientV4) discard(reason string, xid uint32, err error) {
	c.emit(Event{Kind: EventDiscard, Reason: reason, XID: xid, Err: err})
}

func (c *ClientV4) now() time.Time {
	return c.scheduler.Clock().Now()
}

// exchange sends msg to dst until accept approves a reply carrying the same
// xid. accept also receives the time of the latest transmission.
func (c *ClientV4) exchange(ctx context.Context, policy retry.Policy, msg *v4.Message, dst net.IP, accept func(reply *v4.Message, sentAt time.Time) bool) error {
	payload := v4.Encode(msg)
	var sentAt time.Time

	_, err := c.scheduler.Exchange(ctx, policy, func() error {
		sentAt = c.now()
		if err := c.conn.WriteTo(payload, dst); err != nil {
			return &TransportError{Op: "write", Err: err}
		}
		c.emit(Event{Kind: EventTransmit, XID: msg.XID, MessageType: msg.MessageType(), Destination: dst})
		return nil
	}, c.inbound, func(p []byte) bool {
		reply, err := v4.Decode(p)
		if err != nil {
			c.discard(DiscardDecode, 0, err)
			return false
		}
		if reply.Op != v4.OpCodeBootReply {
			c.discard(DiscardNotReply, reply.XID, nil)
			return false
		}
		if reply.XID != msg.XID {
			c.discard(DiscardXID, reply.XID, nil)
			return false
		}
		return accept(reply, sentAt)
	})

	if errors.Is(err, retry.ErrInboundClosed) {
		readErr := c.readErr
		if readErr == nil {
			readErr = net.ErrClosed
		}
		return &TransportError{Op: "read", Err: readErr}
	}
	return err
}

func (c *ClientV4) acquirePolicy(timeout time.Duration) retry.Policy {
	return retry.Policy{
		InitialInterval: c.timing.RetransmitInitial,
		MaxInterval:     c.timing.RetransmitMax,
		Jitter:          c.timing.RetransmitJitter,
		Timeout:         timeout,
	}
}

// refreshPolicy retransmits every half of the remaining time, but not more
// often than renew_min_interval.
func (c *ClientV4) refreshPolicy(remaining time.Duration) retry.Policy {
	interval := remaining / 2
	if interval < c.timing.RenewMinInterval {
		interval = c.timing.RenewMinInterval
	}
	if interval > remaining {
		interval = remaining
	}
	return retry.Policy{
		InitialInterval: interval,
		MaxInterval:     interval,
		Timeout:         remaining,
	}
}

func (initState) run(ctx context.Context, c *ClientV4) (transition, error) {
	if c.failures > 0 {
		if c.timing.MaxAttempts > 0 && c.failures >= c.timing.MaxAttempts {
			failures := c.failures
			c.failures = 0
			return transition{}, fmt.Errorf("%w: %d in a row", ErrAttemptsExhausted, failures)
		}
		if err := c.scheduler.Sleep(ctx, c.timing.FailureBackoff); err != nil {
			return transition{}, err
		}
	}
	return transition{next: selectingState{xid: c.newXID()}, reason: "starting acquisition"}, nil
}

func (s selectingState) run(ctx context.Context, c *ClientV4) (transition, error) {
	discover, err := v4.NewDiscover(c.identity, s.xid, c.buildOpts...)
	if err != nil {
		return transition{}, err
	}

	var offer *v4.Message
	var serverID net.IP
	err = c.exchange(ctx, c.acquirePolicy(c.timing.DiscoverTimeout), discover, net.IPv4bcast, func(m *v4.Message, _ time.Time) bool {
		if m.MessageType() != v4.MessageTypeOffer {
			c.discard(DiscardType, m.XID, nil)
			return false
		}
		sid, ok := m.Options.ServerIdentifier()
		if !ok || m.YourIP.Equal(net.IPv4zero) {
			c.discard(DiscardIncomplete, m.XID, v4.ErrIncompleteOffer)
			return false
		}
		if util.ContainsIP(c.rejectServers, sid) {
			c.discard(DiscardRejected, m.XID, nil)
			return false
		}
		offer, serverID = m, sid
		return true
	})

	switch {
	case err == nil:
		return transition{
			next:   requestingState{xid: s.xid, offer: offer},
			reason: fmt.Sprintf("offer of %v from %v", offer.YourIP, serverID),
		}, nil
	case errors.Is(err, retry.ErrTimeout):
		c.failures++
		return transition{next: initState{}, reason: "no usable offer", err: err}, nil
	default:
		return transition{}, err
	}
}

func (s requestingState) run(ctx context.Context, c *ClientV4) (transition, error) {
	request, err := v4.NewRequest(c.identity, s.xid, s.offer, c.buildOpts...)
	if err != nil {
		return transition{}, err
	}
	serverID, _ := s.offer.Options.ServerIdentifier()

	var lease *v4.Lease
	var nak *v4.Message
	err = c.exchange(ctx, c.acquirePolicy(c.timing.RequestTimeout), request, net.IPv4bcast, func(m *v4.Message, sentAt time.Time) bool {
		mt := m.MessageType()
		if mt != v4.MessageTypeAck && mt != v4.MessageTypeNak {
			c.discard(DiscardType, m.XID, nil)
			return false
		}
		if sid, ok := m.Options.ServerIdentifier(); !ok || !sid.Equal(serverID) {
			c.discard(DiscardServer, m.XID, nil)
			return false
		}
		if mt == v4.MessageTypeNak {
			nak = m
			return true
		}
		l, err := v4.NewLease(m, sentAt)
		if err != nil {
			c.discard(DiscardInvalidLease, m.XID, fmt.Errorf("%w: %v", ErrProtocolViolation, err))
			return false
		}
		lease = l
		return true
	})

	switch {
	case err == nil && lease != nil:
		return transition{next: boundState{lease: lease}, reason: "request acknowledged"}, nil
	case err == nil:
		c.failures++
		return transition{next: initState{}, reason: nakReason(nak), err: ErrNak}, nil
	case errors.Is(err, retry.ErrTimeout):
		c.failures++
		return transition{next: initState{}, reason: "request not acknowledged", err: err}, nil
	default:
		return transition{}, err
	}
}

func (s boundState) run(ctx context.Context, c *ClientV4) (transition, error) {
	if err := c.scheduler.Sleep(ctx, s.lease.TimeUntilRenew(c.now())); err != nil {
		return transition{}, err
	}
	return transition{
		next:   renewingState{xid: c.newXID(), lease: s.lease},
		reason: "renewal time reached",
	}, nil
}

func (s renewingState) run(ctx context.Context, c *ClientV4) (transition, error) {
	remaining := s.lease.TimeUntilRebind(c.now())
	if remaining <= 0 {
		return transition{
			next:   rebindingState{xid: c.newXID(), lease: s.lease},
			reason: "rebinding time reached",
		}, nil
	}

	msg, err := v4.NewRenewal(c.identity, s.xid, s.lease, c.buildOpts...)
	if err != nil {
		return transition{}, err
	}
	return c.extend(ctx, msg, serverOrBroadcast(s.lease), remaining, func() transition {
		return transition{
			next:   rebindingState{xid: c.newXID(), lease: s.lease},
			reason: "no reply before rebinding time",
		}
	})
}

func (s rebindingState) run(ctx context.Context, c *ClientV4) (transition, error) {
	expired := transition{next: initState{}, reason: "lease expired"}

	remaining := s.lease.TimeUntilExpiry(c.now())
	if remaining <= 0 {
		return expired, nil
	}

	msg, err := v4.NewRenewal(c.identity, s.xid, s.lease, c.buildOpts...)
	if err != nil {
		return transition{}, err
	}
	return c.extend(ctx, msg, net.IPv4bcast, remaining, func() transition {
		return expired
	})
}

// extend runs the request of Renewing and Rebinding. Any server may answer.
func (c *ClientV4) extend(ctx context.Context, msg *v4.Message, dst net.IP, remaining time.Duration, onTimeout func() transition) (transition, error) {
	var lease *v4.Lease
	var nak *v4.Message
	err := c.exchange(ctx, c.refreshPolicy(remaining), msg, dst, func(m *v4.Message, sentAt time.Time) bool {
		switch m.MessageType() {
		case v4.MessageTypeAck:
			l, err := v4.NewLease(m, sentAt)
			if err != nil {
				c.discard(DiscardInvalidLease, m.XID, fmt.Errorf("%w: %v", ErrProtocolViolation, err))
				return false
			}
			lease = l
			return true
		case v4.MessageTypeNak:
			nak = m
			return true
		default:
			c.discard(DiscardType, m.XID, nil)
			return false
		}
	})

	switch {
	case err == nil && lease != nil:
		return transition{next: boundState{lease: lease}, reason: "lease extended"}, nil
	case err == nil:
		return transition{next: initState{}, reason: nakReason(nak), err: ErrNak}, nil
	case errors.Is(err, retry.ErrTimeout):
		t := onTimeout()
		t.err = err
		return t, nil
	default:
		return transition{}, err
	}
}

func nakReason(nak *v4.Message) string {
	if msg := nak.Options.ServerMessage(); msg != "" {
		return fmt.Sprintf("nak: %s", msg)
	}
	return "nak"
}

func serverOrBroadcast(lease *v4.Lease) net.IP {
	if lease.ServerID == nil {
		return net.IPv4bcast
	}
	return lease.ServerID
}
