package v4

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	// HeaderSize is the size of the fixed BOOTP header.
	HeaderSize = 236
	// MinMessageSize is the smallest datagram a BOOTP relay must accept.
	MinMessageSize = 300

	hardwareTypeEthernet = 1
	flagBroadcast        = 0x8000
	maxHWAddrLen         = 16

	// optionsStart follows the fixed header and the magic cookie.
	optionsStart = HeaderSize + 4
)


var (
	ErrShortPacket   = errors.New("packet shorter than the fixed header")
	ErrBadCookie     = errors.New("magic cookie mismatch")
	ErrOptionOverrun = errors.New("option length runs past the end of the packet")
)

// DecodeError describes why a datagram could not be decoded.
type DecodeError struct {
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode dhcpv4 message at offset %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Message is one BOOTP/DHCP message. IP fields are always 4 bytes long;
// unset addresses are 0.0.0.0.
type Message struct {
	Op           OpCode
	HType        uint8
	HLen         uint8
	Hops         uint8
	XID          uint32
	Secs         uint16
	Flags        uint16
	ClientIP     net.IP
	YourIP       net.IP
	ServerIP     net.IP
	GatewayIP    net.IP
	ClientHWAddr net.HardwareAddr
	ServerName   [64]byte
	BootFile     [128]byte
	Options      Options
}

// IsBroadcast reports whether the broadcast flag is set.
func (m *Message) IsBroadcast() bool {
	return m.Flags&flagBroadcast != 0
}

func (m *Message) SetBroadcast(broadcast bool) {
	if broadcast {
		m.Flags |= flagBroadcast
	} else {
		m.Flags &^= flagBroadcast
	}
}

// MessageType returns the DHCP message type, or zero if the option is
// missing or malformed.
func (m *Message) MessageType() MessageType {
	mt, _ := m.Options.MessageType()
	return mt
}

func (m *Message) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%v xid=0x%08x type=%v", m.Op, m.XID, m.MessageType())
	fmt.Fprintf(&sb, " ciaddr=%v yiaddr=%v siaddr=%v giaddr=%v chaddr=%v",
		m.ClientIP, m.YourIP, m.ServerIP, m.GatewayIP, m.ClientHWAddr)
	return sb.String()
}

// Encode serializes m in RFC 2131 wire format through gopacket's DHCPv4
// layer. Options are written in list order followed by End, and the result
// is zero padded to MinMessageSize. Pad and End entries in m.Options are
// skipped, and a value longer than MaxOptionLength is split into
// consecutive options of the same code (RFC 3396).
func Encode(m *Message) []byte {
	d := &layers.DHCPv4{
		Operation:    layers.DHCPOp(m.Op),
		HardwareType: layers.LinkType(m.HType),
		HardwareLen:  m.HLen,
		HardwareOpts: m.Hops,
		Xid:          m.XID,
		Secs:         m.Secs,
		Flags:        m.Flags,
		ClientIP:     m.ClientIP,
		YourClientIP: m.YourIP,
		NextServerIP: m.ServerIP,
		RelayAgentIP: m.GatewayIP,
		ClientHWAddr: m.ClientHWAddr,
		ServerName:   m.ServerName[:],
		File:         m.BootFile[:],
	}
	for _, opt := range m.Options {
		if opt.Code == OptionPad || opt.Code == OptionEnd {
			continue
		}
		data := opt.Data
		for len(data) > MaxOptionLength {
			d.Options = append(d.Options, layers.NewDHCPOption(layers.DHCPOpt(opt.Code), data[:MaxOptionLength]))
			data = data[MaxOptionLength:]
		}
		d.Options = append(d.Options, layers.NewDHCPOption(layers.DHCPOpt(opt.Code), data))
	}

	buf := gopacket.NewSerializeBufferExpectedSize(MinMessageSize, 0)
	if err := d.SerializeTo(buf, gopacket.SerializeOptions{}); err != nil {
		// a fresh serialize buffer always grows
		panic(err)
	}
	b := buf.Bytes()
	if len(d.Options) == 0 {
		// gopacket only writes End after at least one option
		b[optionsStart] = byte(OptionEnd)
	}
	if len(b) < MinMessageSize {
		tail, _ := buf.AppendBytes(MinMessageSize - len(b))
		for i := range tail {
			tail[i] = 0
		}
		b = buf.Bytes()
	}
	return b
}

// Decode parses a datagram. Pad options are skipped, parsing stops at End,
// and a missing End is tolerated. The returned message never aliases b.
func Decode(b []byte) (*Message, error) {
	if len(b) < optionsStart {
		return nil, &DecodeError{Offset: len(b), Err: ErrShortPacket}
	}

	hlen := b[2]
	if hlen > maxHWAddrLen {
		// gopacket slices chaddr by the advertised length
		b = append([]byte(nil), b...)
		b[2] = maxHWAddrLen
	}

	var d layers.DHCPv4
	if err := d.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
		if errors.Is(err, layers.InvalidMagicCookie) {
			return nil, &DecodeError{Offset: HeaderSize, Err: ErrBadCookie}
		}
		return nil, &DecodeError{
			Offset: optionsEnd(d.Options),
			Err:    fmt.Errorf("%w: %v", ErrOptionOverrun, err),
		}
	}

	m := &Message{
		Op:           OpCode(d.Operation),
		HType:        uint8(d.HardwareType),
		HLen:         hlen,
		Hops:         d.HardwareOpts,
		XID:          d.Xid,
		Secs:         d.Secs,
		Flags:        d.Flags,
		ClientIP:     copyIP(d.ClientIP),
		YourIP:       copyIP(d.YourClientIP),
		ServerIP:     copyIP(d.NextServerIP),
		GatewayIP:    copyIP(d.RelayAgentIP),
		ClientHWAddr: make(net.HardwareAddr, len(d.ClientHWAddr)),
	}
	copy(m.ClientHWAddr, d.ClientHWAddr)
	copy(m.ServerName[:], d.ServerName)
	copy(m.BootFile[:], d.File)

	for _, o := range d.Options {
		if o.Type == layers.DHCPOptPad {
			continue
		}
		value := make([]byte, len(o.Data))
		copy(value, o.Data)
		m.Options = append(m.Options, Option{Code: OptionCode(o.Type), Data: value})
	}

	return m, nil
}

// optionsEnd returns the offset just past the options gopacket accepted.
func optionsEnd(opts layers.DHCPOptions) int {
	i := optionsStart
	for _, o := range opts {
		if o.Type == layers.DHCPOptPad {
			i++
		} else {
			i += 2 + len(o.Data)
		}
	}
	return i
}

func copyIP(b []byte) net.IP {
	ip := make(net.IP, net.IPv4len)
	copy(ip, b)
	return ip
}
