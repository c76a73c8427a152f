package icmp

import (
	"net"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// Kind identifies the variant of an inbound ICMP message.
type Kind int

const (
	// KindMalformed is a datagram that does not decode as ICMP.
	KindMalformed Kind = iota
	// KindEchoReply is an echo reply (type 0).
	KindEchoReply
	// KindEchoRequest is an echo request (type 8), e.g. our own looped back
	// request on a raw socket.
	KindEchoRequest
	// KindDestinationUnreachable is a destination unreachable error (type 3).
	KindDestinationUnreachable
	// KindTimeExceeded is a time exceeded error (type 11).
	KindTimeExceeded
	// KindOther is any other ICMP type.
	KindOther
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "MALFORMED"
	case KindEchoReply:
		return "ECHO_REPLY"
	case KindEchoRequest:
		return "ECHO_REQUEST"
	case KindDestinationUnreachable:
		return "DESTINATION_UNREACHABLE"
	case KindTimeExceeded:
		return "TIME_EXCEEDED"
	case KindOther:
		return "OTHER"
	default:
		return "UNKNOWN"
	}
}

// Message is a decoded inbound ICMP message.
type Message interface {
	Kind() Kind
}

// Echo is the body shared by echo requests and replies.
type Echo struct {
	ID      uint16
	Seq     uint16
	Payload []byte
}

// EchoReply is an ICMP echo reply.
type EchoReply struct{ Echo }

// Kind implements Message.
func (EchoReply) Kind() Kind { return KindEchoReply }

// EchoRequest is an ICMP echo request.
type EchoRequest struct{ Echo }

// Kind implements Message.
func (EchoRequest) Kind() Kind { return KindEchoRequest }

// DestinationUnreachable is an ICMP destination unreachable message.
type DestinationUnreachable struct {
	Code int
}

// Kind implements Message.
func (DestinationUnreachable) Kind() Kind { return KindDestinationUnreachable }

// TimeExceeded is an ICMP time exceeded message.
type TimeExceeded struct {
	Code int
}

// Kind implements Message.
func (TimeExceeded) Kind() Kind { return KindTimeExceeded }

// Other is an ICMP message of a type the echo loop does not care about.
type Other struct {
	Type int
	Code int
}

// Kind implements Message.
func (Other) Kind() Kind { return KindOther }

// Malformed is a datagram that could not be parsed.
type Malformed struct {
	Err error
}

// Kind implements Message.
func (Malformed) Kind() Kind { return KindMalformed }

// Inbound is one datagram read from the socket.
type Inbound struct {
	Message    Message
	Source     net.Addr
	ReceivedAt time.Time
}

// ParseMessage decodes an ICMPv4 message without its IP header.
func ParseMessage(b []byte) Message {
	msg, err := icmp.ParseMessage(ICMPv4ProtocolNumber, b)
	if err != nil {
		return Malformed{Err: err}
	}

	typ, ok := msg.Type.(ipv4.ICMPType)
	if !ok {
		return Other{Type: -1, Code: msg.Code}
	}

	switch typ {
	case ipv4.ICMPTypeEchoReply, ipv4.ICMPTypeEcho:
		body, ok := msg.Body.(*icmp.Echo)
		if !ok {
			return Other{Type: int(typ), Code: msg.Code}
		}
		echo := Echo{
			ID:      uint16(body.ID),
			Seq:     uint16(body.Seq),
			Payload: body.Data,
		}
		if typ == ipv4.ICMPTypeEchoReply {
			return EchoReply{echo}
		}
		return EchoRequest{echo}
	case ipv4.ICMPTypeDestinationUnreachable:
		return DestinationUnreachable{Code: msg.Code}
	case ipv4.ICMPTypeTimeExceeded:
		return TimeExceeded{Code: msg.Code}
	default:
		return Other{Type: int(typ), Code: msg.Code}
	}
}

// EchoReplyOf returns the echo reply carried by msg. When wantID is non-nil
// the reply must also carry that identifier.
func EchoReplyOf(msg Message, wantID *uint16) (EchoReply, bool) {
	reply, ok := msg.(EchoReply)
	if !ok {
		return EchoReply{}, false
	}
	if wantID != nil && reply.ID != *wantID {
		return EchoReply{}, false
	}
	return reply, true
}
