// Package icmp provides the IPv4 ICMP echo transport used by echoprobe.
//
// # Sockets
//
// Two socket flavors are supported, both bound to 0.0.0.0:
//
//   - raw ("ip4:icmp"): requires root or CAP_NET_RAW and receives every ICMP
//     message reaching the host, so replies must be filtered by identifier.
//   - datagram ("udp4"): allowed for unprivileged users on Linux when the
//     ping_group_range sysctl covers the caller's group. The kernel assigns
//     the identifier and only delivers replies for this socket.
//
// # Inbound messages
//
// Every datagram read from the socket decodes into one Message variant
// (EchoReply, EchoRequest, DestinationUnreachable, TimeExceeded, Other or
// Malformed). EchoReplyOf is the filter the echo loop applies to each of
// them; everything it rejects is skipped without ending the wait.
package icmp
