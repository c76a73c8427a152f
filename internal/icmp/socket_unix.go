//go:build unix

package icmp

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrPermission is returned when the kernel refuses to create the socket.
var ErrPermission = errors.New("permission denied")

// classifySocketError annotates permission failures with a hint on how to
// open the socket without root.
func classifySocketError(err error, unprivileged bool) error {
	if !errors.Is(err, unix.EPERM) && !errors.Is(err, unix.EACCES) {
		return err
	}
	if unprivileged {
		return fmt.Errorf("%w (check net.ipv4.ping_group_range): %v", ErrPermission, err)
	}
	return fmt.Errorf("%w (raw sockets need CAP_NET_RAW, or use --unprivileged): %v", ErrPermission, err)
}
