package session

import (
	"fmt"
	"time"
)

const (
	// DefaultIdentifier is the echo identifier put in every request.
	DefaultIdentifier uint16 = 5091

	// DefaultEchoTimeout is how long each request waits for its reply.
	DefaultEchoTimeout = 5 * time.Second
)

// DefaultPayload is the data carried by every echo request.
var DefaultPayload = []byte("test packet")

// Config holds configuration for an echo session.
type Config struct {
	// Identifier is the echo identifier. On unprivileged sockets the kernel
	// replaces it and replies are not filtered by it.
	Identifier uint16

	// Payload is the echo data.
	Payload []byte

	// EchoTimeout bounds the wait for each reply. A reply that does not
	// arrive in time is a miss, not an error.
	EchoTimeout time.Duration

	// MatchSequence discards replies whose sequence number differs from
	// the request just sent. When false any echo reply ends the wait and is
	// reported with the sequence it carries.
	MatchSequence bool
}

// DefaultConfig returns a Config with the fixed identifier, payload and
// five second wait window.
func DefaultConfig() Config {
	return Config{
		Identifier:    DefaultIdentifier,
		Payload:       DefaultPayload,
		EchoTimeout:   DefaultEchoTimeout,
		MatchSequence: true,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.EchoTimeout <= 0 {
		return fmt.Errorf("echo timeout must be positive, got %v", c.EchoTimeout)
	}
	return nil
}
