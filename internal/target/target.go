// Package target parses the echoprobe command-line argument.
package target

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

const (
	// MaxRequests is the largest accepted request count.
	MaxRequests = 10

	// MaxInterval is the largest accepted interval.
	MaxInterval = 1000 * time.Millisecond
)

// Usage describes the expected argument.
const Usage = "argument must be a comma-delimited list of IPv4 address, number of requests, and interval in milliseconds (e.g. 192.0.2.1,4,250)"

var (
	// ErrUsage is returned when the argument has fewer than three fields.
	ErrUsage = errors.New(Usage)

	// ErrNotIPv4 is returned for addresses that parse but are not IPv4.
	ErrNotIPv4 = errors.New("not an IPv4 address")

	ErrCountZero        = errors.New("at least one request required")
	ErrCountTooLarge    = errors.New("at most ten requests supported")
	ErrIntervalZero     = errors.New("interval must be positive")
	ErrIntervalTooLarge = errors.New("interval capped at one second")
)

// Kind classifies a parse failure.
type Kind int

const (
	KindUsage Kind = iota
	KindAddress
	KindNumber
	KindRange
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "usage"
	case KindAddress:
		return "address parsing"
	case KindNumber:
		return "number parsing"
	case KindRange:
		return "out of range"
	default:
		return "unknown"
	}
}

// Error is returned by Parse.
type Error struct {
	Kind  Kind
	Field string // "address", "count", "interval"; empty for usage errors
	Input string
	Err   error
}

func (e *Error) Error() string {
	if e.Kind == KindUsage {
		return e.Err.Error()
	}
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Input, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Target is a validated echo session request.
type Target struct {
	Destination netip.Addr
	Count       int
	Interval    time.Duration
}

// String formats the target in the same form Parse accepts.
func (t Target) String() string {
	return fmt.Sprintf("%s,%d,%d", t.Destination, t.Count, t.Interval.Milliseconds())
}

// Parse parses "<ipv4>,<count>,<interval-ms>". Fields beyond the third are
// ignored.
func Parse(raw string) (Target, error) {
	fields := strings.SplitN(raw, ",", 4)
	if len(fields) < 3 {
		return Target{}, &Error{Kind: KindUsage, Input: raw, Err: ErrUsage}
	}

	dest, err := parseDestination(fields[0])
	if err != nil {
		return Target{}, err
	}

	count, err := parseCount(fields[1])
	if err != nil {
		return Target{}, err
	}

	interval, err := parseInterval(fields[2])
	if err != nil {
		return Target{}, err
	}

	return Target{
		Destination: dest,
		Count:       count,
		Interval:    interval,
	}, nil
}

func parseDestination(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, &Error{Kind: KindAddress, Field: "address", Input: s, Err: err}
	}
	if !addr.Is4() {
		return netip.Addr{}, &Error{Kind: KindAddress, Field: "address", Input: s, Err: ErrNotIPv4}
	}
	return addr, nil
}

func parseCount(s string) (int, error) {
	n, err := parseUint16("count", s)
	if err != nil {
		return 0, err
	}
	switch {
	case n == 0:
		return 0, &Error{Kind: KindRange, Field: "count", Input: s, Err: ErrCountZero}
	case n > MaxRequests:
		return 0, &Error{Kind: KindRange, Field: "count", Input: s, Err: ErrCountTooLarge}
	}
	return int(n), nil
}

func parseInterval(s string) (time.Duration, error) {
	n, err := parseUint16("interval", s)
	if err != nil {
		return 0, err
	}
	d := time.Duration(n) * time.Millisecond
	switch {
	case n == 0:
		return 0, &Error{Kind: KindRange, Field: "interval", Input: s, Err: ErrIntervalZero}
	case d > MaxInterval:
		return 0, &Error{Kind: KindRange, Field: "interval", Input: s, Err: ErrIntervalTooLarge}
	}
	return d, nil
}

func parseUint16(field, s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, &Error{Kind: KindNumber, Field: field, Input: s, Err: err}
	}
	return uint16(n), nil
}
