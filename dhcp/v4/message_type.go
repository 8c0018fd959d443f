package v4

import (
	"github.com/insomniacslk/dhcp/dhcpv4"
)

// MessageType is the value of the DHCP Message Type option (53).
type MessageType uint8

const (
	MessageTypeDiscover MessageType = 1
	MessageTypeOffer    MessageType = 2
	MessageTypeRequest  MessageType = 3
	MessageTypeDecline  MessageType = 4
	MessageTypeAck      MessageType = 5
	MessageTypeNak      MessageType = 6
	MessageTypeRelease  MessageType = 7
	MessageTypeInform   MessageType = 8
)

func (t MessageType) String() string {
	return dhcpv4.MessageType(t).String()
}

// OpCode is the BOOTP operation of a message.
type OpCode uint8

const (
	OpCodeBootRequest OpCode = 1
	OpCodeBootReply   OpCode = 2
)

func (o OpCode) String() string {
	return dhcpv4.OpcodeType(o).String()
}
