//go:build !unix

package icmp

import "errors"

// ErrPermission is returned when the kernel refuses to create the socket.
var ErrPermission = errors.New("permission denied")

func classifySocketError(err error, _ bool) error {
	return err
}
