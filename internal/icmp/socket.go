package icmp

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// ICMPv4ProtocolNumber is the IANA protocol number for ICMP.
const ICMPv4ProtocolNumber = 1

const (
	// echoHeaderLen is the ICMP header size of an echo message.
	echoHeaderLen = 8

	// MaxEchoPayload is the largest echo payload that fits an IPv4 datagram.
	MaxEchoPayload = 65535 - 20 - echoHeaderLen

	// readBufferSize fits any ICMP message on a standard MTU link.
	readBufferSize = 1500
)

var (
	// ErrPacketBuilding is returned when an echo request cannot be framed.
	ErrPacketBuilding = errors.New("echo request cannot be framed")

	// ErrNotIPv4 is returned when a destination is not an IPv4 address.
	ErrNotIPv4 = errors.New("destination is not an IPv4 address")
)

// PacketConn is the subset of *icmp.PacketConn used by the echo loop.
type PacketConn interface {
	ReadFrom(b []byte) (int, net.Addr, error)
	WriteTo(b []byte, dst net.Addr) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// Socket is an IPv4 ICMP endpoint bound to the wildcard address.
type Socket struct {
	conn         PacketConn
	unprivileged bool
}

// NewSocket creates an ICMP socket bound to 0.0.0.0.
//
// A privileged socket is a raw "ip4:icmp" socket and sees every ICMP
// message that reaches the host. An unprivileged socket uses "udp4", which
// Linux allows for non-root users when net.ipv4.ping_group_range is set:
//
//	sysctl -w net.ipv4.ping_group_range="0 65535"
//
// The kernel rewrites the identifier of echo requests sent through an
// unprivileged socket and only delivers the matching replies to it.
func NewSocket(unprivileged bool) (*Socket, error) {
	network := "ip4:icmp"
	if unprivileged {
		network = "udp4"
	}

	conn, err := icmp.ListenPacket(network, "0.0.0.0")
	if err != nil {
		return nil, fmt.Errorf("create ICMP socket (%s): %w", network, classifySocketError(err, unprivileged))
	}
	return &Socket{conn: conn, unprivileged: unprivileged}, nil
}

// NewSocketWithConn wraps an existing connection, e.g. a simulated transport.
func NewSocketWithConn(conn PacketConn, unprivileged bool) *Socket {
	return &Socket{conn: conn, unprivileged: unprivileged}
}

// Unprivileged reports whether the socket is a datagram ICMP socket.
func (s *Socket) Unprivileged() bool {
	return s.unprivileged
}

// MatchesIdentifier reports whether replies on this socket carry the
// identifier the caller put in its requests.
func (s *Socket) MatchesIdentifier() bool {
	return !s.unprivileged
}

// Close releases the underlying socket.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// SetReadDeadline sets the deadline for subsequent reads.
func (s *Socket) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

// MarshalEchoRequest encodes an ICMPv4 echo request.
func MarshalEchoRequest(id, seq uint16, payload []byte) ([]byte, error) {
	if len(payload) > MaxEchoPayload {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrPacketBuilding, len(payload), MaxEchoPayload)
	}

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   int(id),
			Seq:  int(seq),
			Data: payload,
		},
	}

	b, err := msg.Marshal(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPacketBuilding, err)
	}
	return b, nil
}

// SendEchoRequest sends an already encoded echo request to dest.
func (s *Socket) SendEchoRequest(dest netip.Addr, packet []byte) error {
	if !dest.Is4() {
		return ErrNotIPv4
	}

	// Datagram ICMP sockets take a UDP address, raw sockets an IP address.
	var dst net.Addr
	if s.unprivileged {
		dst = &net.UDPAddr{IP: dest.AsSlice()}
	} else {
		dst = &net.IPAddr{IP: dest.AsSlice()}
	}

	if _, err := s.conn.WriteTo(packet, dst); err != nil {
		return fmt.Errorf("send ICMP: %w", err)
	}
	return nil
}

// Receive reads one datagram and decodes it. The returned error is either a
// deadline error (see IsTimeout) or a socket failure; a datagram that does
// not decode is returned as an Inbound carrying a Malformed message.
func (s *Socket) Receive() (*Inbound, error) {
	buf := make([]byte, readBufferSize)
	n, peer, err := s.conn.ReadFrom(buf)
	if err != nil {
		return nil, err
	}
	return &Inbound{
		Message:    ParseMessage(buf[:n]),
		Source:     peer,
		ReceivedAt: time.Now(),
	}, nil
}

// IsTimeout reports whether err came from an expired read deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// SourceIPv4 extracts the IPv4 address from a socket address. It returns
// false for any other address shape.
func SourceIPv4(addr net.Addr) (netip.Addr, bool) {
	var ip net.IP
	switch a := addr.(type) {
	case *net.IPAddr:
		ip = a.IP
	case *net.UDPAddr:
		ip = a.IP
	default:
		return netip.Addr{}, false
	}

	v4 := ip.To4()
	if v4 == nil {
		return netip.Addr{}, false
	}
	out, ok := netip.AddrFromSlice(v4)
	return out, ok
}
