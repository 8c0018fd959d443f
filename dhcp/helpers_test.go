package dhcp

import (
	"encoding/binary"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/stretchr/testify/require"

	"github.com/hhubb22/herald/dhcp/config"
	"github.com/hhubb22/herald/dhcp/v4"
)

var (
	testMAC   = net.HardwareAddr{0x02, 0x42, 0xac, 0x11, 0x00, 0x02}
	serverIP  = net.IPv4(192, 168, 1, 1).To4()
	offeredIP = net.IPv4(192, 168, 1, 100).To4()
)

type sentMessage struct {
	msg *v4.Message
	dst net.IP
}

// responder plays the server: it returns the datagrams to deliver in
// answer to a client message.
type responder func(req *v4.Message, dst net.IP) [][]byte

type fakeConn struct {
	mu        sync.Mutex
	sent      []sentMessage
	respond   responder
	replies   chan []byte
	readErrs  chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn(respond responder) *fakeConn {
	return &fakeConn{
		respond:  respond,
		replies:  make(chan []byte, 64),
		readErrs: make(chan error, 1),
		closed:   make(chan struct{}),
	}
}

func (f *fakeConn) ReadFrom() ([]byte, net.IP, error) {
	select {
	case p := <-f.replies:
		return p, serverIP, nil
	case err := <-f.readErrs:
		return nil, nil, err
	case <-f.closed:
		return nil, nil, net.ErrClosed
	}
}

func (f *fakeConn) WriteTo(p []byte, dst net.IP) error {
	m, err := v4.Decode(p)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.sent = append(f.sent, sentMessage{msg: m, dst: dst})
	respond := f.respond
	f.mu.Unlock()

	if respond != nil {
		for _, r := range respond(m, dst) {
			f.replies <- r
		}
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) Sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeConn) SentOfType(mt v4.MessageType) []sentMessage {
	var out []sentMessage
	for _, s := range f.Sent() {
		if s.msg.MessageType() == mt {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeConn) inject(p []byte) {
	f.replies <- p
}

func (f *fakeConn) failRead(err error) {
	f.readErrs <- err
}

// isRefresh reports whether req is a Renewing or Rebinding request.
func isRefresh(req *v4.Message) bool {
	return req.MessageType() == v4.MessageTypeRequest && !req.ClientIP.Equal(net.IPv4zero)
}

func reply(t *testing.T, req *v4.Message, mt dhcpv4.MessageType, mods ...dhcpv4.Modifier) []byte {
	parsed, err := dhcpv4.FromBytes(v4.Encode(req))
	if err != nil {
		t.Errorf("can't parse client message: %v", err)
		return nil
	}
	r, err := dhcpv4.NewReplyFromRequest(parsed, append([]dhcpv4.Modifier{dhcpv4.WithMessageType(mt)}, mods...)...)
	if err != nil {
		t.Errorf("can't build reply: %v", err)
		return nil
	}
	return r.ToBytes()
}

func offerFrom(t *testing.T, req *v4.Message, server net.IP, lease time.Duration) []byte {
	return reply(t, req, dhcpv4.MessageTypeOffer,
		dhcpv4.WithYourIP(offeredIP),
		dhcpv4.WithServerIP(server),
		dhcpv4.WithOption(dhcpv4.OptServerIdentifier(server)),
		dhcpv4.WithOption(dhcpv4.OptIPAddressLeaseTime(lease)),
	)
}

func ackFor(t *testing.T, req *v4.Message, lease time.Duration, mods ...dhcpv4.Modifier) []byte {
	base := []dhcpv4.Modifier{
		dhcpv4.WithYourIP(offeredIP),
		dhcpv4.WithServerIP(serverIP),
		dhcpv4.WithOption(dhcpv4.OptServerIdentifier(serverIP)),
		dhcpv4.WithOption(dhcpv4.OptSubnetMask(net.IPv4Mask(255, 255, 255, 0))),
		dhcpv4.WithOption(dhcpv4.OptRouter(serverIP)),
	}
	if lease > 0 {
		base = append(base, dhcpv4.WithOption(dhcpv4.OptIPAddressLeaseTime(lease)))
	}
	return reply(t, req, dhcpv4.MessageTypeAck, append(base, mods...)...)
}

func nakFor(t *testing.T, req *v4.Message, message string) []byte {
	return reply(t, req, dhcpv4.MessageTypeNak,
		dhcpv4.WithOption(dhcpv4.OptServerIdentifier(serverIP)),
		dhcpv4.WithOption(dhcpv4.OptMessage(message)),
	)
}

func withXID(p []byte, xid uint32) []byte {
	out := append([]byte(nil), p...)
	binary.BigEndian.PutUint32(out[4:8], xid)
	return out
}

// dora answers Discover with an Offer and the selecting Request with an
// Ack. Renewing and Rebinding requests stay unanswered.
func dora(t *testing.T, lease time.Duration) responder {
	return func(req *v4.Message, _ net.IP) [][]byte {
		switch {
		case req.MessageType() == v4.MessageTypeDiscover:
			return [][]byte{offerFrom(t, req, serverIP, lease)}
		case req.MessageType() == v4.MessageTypeRequest && !isRefresh(req):
			return [][]byte{ackFor(t, req, lease)}
		}
		return nil
	}
}

type recorder struct {
	mu          sync.Mutex
	events      []Event
	transitions chan Event
}

func newRecorder() *recorder {
	return &recorder{transitions: make(chan Event, 256)}
}

func (r *recorder) observe(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	if e.Kind == EventTransition {
		r.transitions <- e
	}
}

// waitFor consumes transitions until one into to arrives.
func (r *recorder) waitFor(t *testing.T, to State) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case e := <-r.transitions:
			if e.To == to {
				return e
			}
		case <-deadline:
			t.Fatalf("no transition to %v", to)
		}
	}
}

func (r *recorder) Events(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) Path() []State {
	path := []State{StateInit}
	for _, e := range r.Events(EventTransition) {
		path = append(path, e.To)
	}
	return path
}

func (r *recorder) Discards(reason string) int {
	n := 0
	for _, e := range r.Events(EventDiscard) {
		if e.Reason == reason {
			n++
		}
	}
	return n
}

type recordingConfigurator struct {
	mu      sync.Mutex
	applied []*v4.Lease
	revoked []*v4.Lease
}

func (r *recordingConfigurator) Apply(_ string, lease *v4.Lease) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, lease)
	return nil
}

func (r *recordingConfigurator) Revoke(_ string, lease *v4.Lease) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked = append(r.revoked, lease)
	return nil
}

func (r *recordingConfigurator) Counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.applied), len(r.revoked)
}

func sequentialXIDs() func() uint32 {
	var next atomic.Uint32
	next.Store(0x1000)
	return func() uint32 {
		return next.Add(1)
	}
}

func testIdentity(t *testing.T) v4.ClientIdentity {
	t.Helper()
	id, err := v4.NewClientIdentity("eth0", testMAC)
	require.NoError(t, err)
	return id
}

// fastConfig keeps real-clock tests short.
func fastConfig() *config.DHCPConfig {
	jitter := 0.0
	return &config.DHCPConfig{
		RetransmitInitial: "10ms",
		RetransmitMax:     "20ms",
		RetransmitJitter:  &jitter,
		DiscoverTimeout:   "50ms",
		RequestTimeout:    "50ms",
		FailureBackoff:    "1ms",
		MaxAttempts:       1,
	}
}
