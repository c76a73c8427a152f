package session

import (
	"errors"
	"net"
	"os"
	"sync"
	"time"

	xicmp "golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// datagram is one packet queued for delivery by fakeConn.
type datagram struct {
	data  []byte
	src   net.Addr
	delay time.Duration
}

// fakeConn is a simulated ICMP transport. It honors read deadlines the way
// a real socket does and lets each test decide how to answer a request.
type fakeConn struct {
	mu       sync.Mutex
	deadline time.Time
	changed  chan struct{}
	written  []written
	closed   bool

	inbox chan datagram

	// respond is called for every written packet; the returned datagrams
	// are delivered after their delay.
	respond func(req *xicmp.Echo, dst net.Addr) []datagram

	writeErr error
	readErr  error
}

type written struct {
	echo *xicmp.Echo
	dst  net.Addr
	at   time.Time
}

func newFakeConn(respond func(req *xicmp.Echo, dst net.Addr) []datagram) *fakeConn {
	return &fakeConn{
		changed: make(chan struct{}),
		inbox:   make(chan datagram, 64),
		respond: respond,
	}
}

func (c *fakeConn) WriteTo(b []byte, dst net.Addr) (int, error) {
	c.mu.Lock()
	if c.writeErr != nil {
		err := c.writeErr
		c.mu.Unlock()
		return 0, err
	}
	msg, err := xicmp.ParseMessage(1, b)
	if err != nil {
		c.mu.Unlock()
		return 0, err
	}
	echo, _ := msg.Body.(*xicmp.Echo)
	c.written = append(c.written, written{echo: echo, dst: dst, at: time.Now()})
	respond := c.respond
	c.mu.Unlock()

	if respond != nil {
		for _, dg := range respond(echo, dst) {
			c.deliver(dg)
		}
	}
	return len(b), nil
}

func (c *fakeConn) deliver(dg datagram) {
	if dg.delay <= 0 {
		c.inbox <- dg
		return
	}
	time.AfterFunc(dg.delay, func() { c.inbox <- dg })
}

func (c *fakeConn) ReadFrom(b []byte) (int, net.Addr, error) {
	for {
		c.mu.Lock()
		if c.readErr != nil {
			err := c.readErr
			c.mu.Unlock()
			return 0, nil, err
		}
		if c.closed {
			c.mu.Unlock()
			return 0, nil, net.ErrClosed
		}
		deadline := c.deadline
		changed := c.changed
		c.mu.Unlock()

		var timer *time.Timer
		var timeout <-chan time.Time
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return 0, nil, &net.OpError{Op: "read", Net: "ip4:icmp", Err: os.ErrDeadlineExceeded}
			}
			timer = time.NewTimer(remaining)
			timeout = timer.C
		}

		select {
		case dg := <-c.inbox:
			if timer != nil {
				timer.Stop()
			}
			n := copy(b, dg.data)
			return n, dg.src, nil
		case <-timeout:
		case <-changed:
			if timer != nil {
				timer.Stop()
			}
		}
	}
}

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deadline = t
	close(c.changed)
	c.changed = make(chan struct{})
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	return nil
}

func (c *fakeConn) requests() []written {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]written(nil), c.written...)
}

func (c *fakeConn) setReadErr(err error) {
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
}

// echoReply encodes an ICMPv4 echo reply.
func echoReply(id, seq int, payload []byte) []byte {
	msg := xicmp.Message{
		Type: ipv4.ICMPTypeEchoReply,
		Body: &xicmp.Echo{ID: id, Seq: seq, Data: payload},
	}
	b, err := msg.Marshal(nil)
	if err != nil {
		panic(err)
	}
	return b
}

// unreachable encodes an ICMPv4 destination unreachable message.
func unreachable() []byte {
	msg := xicmp.Message{
		Type: ipv4.ICMPTypeDestinationUnreachable,
		Code: 1,
		Body: &xicmp.DstUnreach{Data: make([]byte, 28)},
	}
	b, err := msg.Marshal(nil)
	if err != nil {
		panic(err)
	}
	return b
}

// replyTo answers every request with a matching reply from the destination.
func replyTo(delay time.Duration) func(req *xicmp.Echo, dst net.Addr) []datagram {
	return func(req *xicmp.Echo, dst net.Addr) []datagram {
		return []datagram{{
			data:  echoReply(req.ID, req.Seq, req.Data),
			src:   srcOf(dst),
			delay: delay,
		}}
	}
}

func srcOf(dst net.Addr) net.Addr {
	switch a := dst.(type) {
	case *net.IPAddr:
		return &net.IPAddr{IP: a.IP}
	case *net.UDPAddr:
		return &net.UDPAddr{IP: a.IP}
	}
	return dst
}

var errBoom = errors.New("boom")

// recorder collects reported replies.
type recorder struct {
	mu      sync.Mutex
	replies []reported
}

type reported struct {
	Source  string
	Seq     uint16
	Elapsed time.Duration
}

func (r *recorder) Report(src net.Addr, seq uint16, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := ""
	if src != nil {
		s = src.String()
	}
	r.replies = append(r.replies, reported{Source: s, Seq: seq, Elapsed: elapsed})
}

func (r *recorder) all() []reported {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]reported(nil), r.replies...)
}
