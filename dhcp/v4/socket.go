package v4

import (
	"net"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/mdlayher/raw"
	"github.com/rs/zerolog"
)

// This is the aprox. minimal size of a frame carrying a DHCP message
const MinPackSize = 14 + // ethernet header
	5*4 + // minimal IPv4 header size
	2*4 + // UDP header size
	HeaderSize + 4 // fixed DHCP header and magic cookie

var broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// RawConn sends and receives DHCP messages as complete Ethernet frames. It
// works before the interface has any address configured.
type RawConn struct {
	conn  *raw.Conn
	iface net.Interface
	log   zerolog.Logger

	mu    sync.Mutex
	peers map[string]net.HardwareAddr
}

var _ Conn = (*RawConn)(nil)

func ListenRaw(iface net.Interface, logger zerolog.Logger) (*RawConn, error) {
	conn, err := raw.ListenPacket(&iface, uint16(layers.EthernetTypeIPv4), &raw.Config{})
	if err != nil {
		return nil, err
	}

	return &RawConn{
		conn:  conn,
		iface: iface,
		log:   logger.With().Str("transport", "raw").Str("interface", iface.Name).Logger(),
		peers: map[string]net.HardwareAddr{},
	}, nil
}

func (c *RawConn) ReadFrom() ([]byte, net.IP, error) {
	eth, ip4, p, err := c.readFrom()
	if err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	c.peers[ip4.SrcIP.String()] = append(net.HardwareAddr(nil), eth.SrcMAC...)
	c.mu.Unlock()

	payload := make([]byte, len(p))
	copy(payload, p)
	return payload, ip4.SrcIP.To4(), nil
}

// WriteTo frames p and sends it. Unicast destinations use the hardware
// address learned from that server's earlier replies and fall back to
// the broadcast address.
func (c *RawConn) WriteTo(p []byte, dstIP net.IP) error {
	srcIP := net.IPv4zero.To4()
	if len(p) >= 16 {
		srcIP = net.IP(append([]byte(nil), p[12:16]...))
	}

	dstMAC := broadcastMAC
	if !dstIP.Equal(net.IPv4bcast) {
		c.mu.Lock()
		if mac, ok := c.peers[dstIP.String()]; ok {
			dstMAC = mac
		}
		c.mu.Unlock()
	}

	c.log.Debug().
		Int("bytes", len(p)).
		Stringer("dst", dstIP).
		Stringer("dst_mac", dstMAC).
		Stringer("src", srcIP).
		Msg("sending frame")

	udp := layers.UDP{ // RFC 768
		SrcPort: ClientPort,
		DstPort: ServerPort,
		// Length is fixed by the serializer,
		// Checksum is fixed by the serializer,
	}

	ip4 := layers.IPv4{ // RFC 760
		Version: 4,
		// HeaderLength is fixed by the serializer,
		TOS: 0x0,
		// TotalLength is fixed by the serializer,
		Id:         0x00,
		Flags:      0x0,
		FragOffset: 0x00,
		TTL:        0x40,
		Protocol:   layers.IPProtocolUDP,
		// HeaderChecksum is fixed by the serializer,
		DstIP: dstIP.To4(),
		SrcIP: srcIP,
	}

	if err := udp.SetNetworkLayerForChecksum(&ip4); err != nil {
		return err
	}

	eth := layers.Ethernet{ // IEEE 802.3
		DstMAC:       dstMAC,
		SrcMAC:       c.iface.HardwareAddr,
		EthernetType: layers.EthernetTypeIPv4,
	}

	return c.writeTo(&eth, &ip4, &udp, p, &raw.Addr{HardwareAddr: dstMAC})
}

func (c *RawConn) Close() error {
	return c.conn.Close()
}

func (c *RawConn) readFrom() (*layers.Ethernet, *layers.IPv4, []byte, error) {
	p := make([]byte, maxDatagramSize)

	for {
		l, _, err := c.conn.ReadFrom(p)
		if err != nil {
			return nil, nil, nil, err
		}

		if l < MinPackSize {
			continue
		}

		pack := gopacket.NewPacket(p[:l], layers.LayerTypeEthernet, gopacket.Default)

		ethLayer, ok := pack.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
		if !ok || ethLayer.EthernetType != layers.EthernetTypeIPv4 {
			continue
		}

		ip4Layer, ok := pack.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		if !ok || ip4Layer.Protocol != layers.IPProtocolUDP {
			continue
		}

		udpLayer, ok := pack.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || udpLayer.DstPort != ClientPort {
			continue
		}

		return ethLayer, ip4Layer, udpLayer.Payload, nil
	}
}

func (c *RawConn) writeTo(eth *layers.Ethernet, ip4 *layers.IPv4, udp *layers.UDP, payload []byte, addr *raw.Addr) error {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		ComputeChecksums: true,
		FixLengths:       true,
	}

	if err := gopacket.SerializeLayers(buf, opts, eth, ip4, udp, gopacket.Payload(payload)); err != nil {
		return err
	}

	_, err := c.conn.WriteTo(buf.Bytes(), addr)
	return err
}
