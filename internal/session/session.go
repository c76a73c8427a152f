package session

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/postalsys/echoprobe/internal/icmp"
	"github.com/postalsys/echoprobe/internal/logging"
	"github.com/postalsys/echoprobe/internal/metrics"
	"github.com/postalsys/echoprobe/internal/target"
)

// Reporter receives every matched reply.
type Reporter interface {
	Report(src net.Addr, seq uint16, elapsed time.Duration)
}

// IOError is a socket failure that ends the session.
type IOError struct {
	Op  string // "send" or "receive"
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("i/o error during %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Stats counts what happened during a run.
type Stats struct {
	Sent      int
	Received  int
	Missed    int
	Discarded int
}

// Session sends echo requests one at a time on a single socket and waits
// for each reply before pacing the next request.
type Session struct {
	config   Config
	sock     *icmp.Socket
	reporter Reporter
	metrics  *metrics.Metrics
	logger   *slog.Logger

	stats Stats
}

// New creates a session on sock. The session does not close sock.
// m may be nil.
func New(cfg Config, sock *icmp.Socket, reporter Reporter, m *metrics.Metrics, logger *slog.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	return &Session{
		config:   cfg,
		sock:     sock,
		reporter: reporter,
		metrics:  m,
		logger:   logger.With(slog.String(logging.KeyComponent, "session")),
	}, nil
}

// Stats returns the counters of the last run.
func (s *Session) Stats() Stats {
	return s.stats
}

// Run sends t.Count echo requests to t.Destination with sequence numbers
// 0..Count-1, waiting t.Interval before each one. It returns nil once every
// request has been sent and waited for, whether or not replies arrived.
// A socket error or packet building failure ends the run immediately, as
// does cancellation of ctx.
func (s *Session) Run(ctx context.Context, t target.Target) error {
	s.stats = Stats{}

	s.logger.Debug("session started",
		logging.KeyDestination, t.Destination.String(),
		logging.KeyCount, t.Count,
		logging.KeyInterval, t.Interval,
		logging.KeyIdentifier, s.config.Identifier)

	for i := 0; i < t.Count; i++ {
		seq := uint16(i)

		if err := pace(ctx, t.Interval); err != nil {
			return err
		}

		if err := s.echo(ctx, t.Destination, seq); err != nil {
			s.logger.Debug("session aborted",
				logging.KeySequence, seq,
				logging.KeyError, err)
			return err
		}
	}

	s.logger.Debug("session complete",
		"sent", s.stats.Sent,
		"received", s.stats.Received,
		"missed", s.stats.Missed,
		"discarded", s.stats.Discarded)

	return nil
}

// pace waits d, or until ctx is done.
func pace(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// echo performs one send and wait-for-reply round.
func (s *Session) echo(ctx context.Context, dest netip.Addr, seq uint16) error {
	packet, err := icmp.MarshalEchoRequest(s.config.Identifier, seq, s.config.Payload)
	if err != nil {
		return fmt.Errorf("build echo request %d: %w", seq, err)
	}

	if err := s.sock.SendEchoRequest(dest, packet); err != nil {
		s.recordError("send")
		return &IOError{Op: "send", Err: err}
	}
	sentAt := time.Now()

	s.stats.Sent++
	if s.metrics != nil {
		s.metrics.RecordSend(len(packet))
	}
	s.logger.Debug("echo request sent",
		logging.KeyDestination, dest.String(),
		logging.KeySequence, seq,
		logging.KeySize, humanize.Bytes(uint64(len(packet))))

	if err := s.sock.SetReadDeadline(sentAt.Add(s.config.EchoTimeout)); err != nil {
		s.recordError("receive")
		return &IOError{Op: "receive", Err: err}
	}

	// Cancellation pulls the deadline in so the blocked read returns now.
	stop := context.AfterFunc(ctx, func() {
		_ = s.sock.SetReadDeadline(time.Now())
	})
	defer stop()

	in, reply, err := s.await(seq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.recordError("receive")
		return &IOError{Op: "receive", Err: err}
	}
	if in == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.stats.Missed++
		if s.metrics != nil {
			s.metrics.RecordMiss()
		}
		s.logger.Debug("no reply within wait window",
			logging.KeySequence, seq,
			logging.KeyElapsed, s.config.EchoTimeout)
		return nil
	}

	elapsed := in.ReceivedAt.Sub(sentAt)
	if elapsed < 0 {
		elapsed = 0
	}

	s.stats.Received++
	if s.metrics != nil {
		s.metrics.RecordReply(elapsed.Seconds())
	}
	s.logger.Debug("echo reply received",
		logging.KeySource, addrString(in.Source),
		logging.KeySequence, reply.Seq,
		logging.KeyElapsed, elapsed)

	s.reporter.Report(in.Source, reply.Seq, elapsed)
	return nil
}

// await reads datagrams until one is accepted for seq or the read deadline
// expires. A nil Inbound with a nil error means the deadline expired.
func (s *Session) await(seq uint16) (*icmp.Inbound, icmp.EchoReply, error) {
	for {
		in, err := s.sock.Receive()
		if err != nil {
			if icmp.IsTimeout(err) {
				return nil, icmp.EchoReply{}, nil
			}
			return nil, icmp.EchoReply{}, err
		}

		reply, reason := s.accept(in.Message, seq)
		if reason != "" {
			s.stats.Discarded++
			if s.metrics != nil {
				s.metrics.RecordDiscard(reason)
			}
			s.logger.Debug("skipping datagram",
				logging.KeySource, addrString(in.Source),
				logging.KeyKind, in.Message.Kind().String(),
				logging.KeyReason, reason)
			continue
		}
		return in, reply, nil
	}
}

// accept applies the reply filter to msg. It returns a non-empty discard
// reason when msg does not answer the request with sequence seq.
func (s *Session) accept(msg icmp.Message, seq uint16) (icmp.EchoReply, string) {
	if msg.Kind() == icmp.KindMalformed {
		return icmp.EchoReply{}, metrics.DiscardMalformed
	}
	if _, ok := icmp.EchoReplyOf(msg, nil); !ok {
		return icmp.EchoReply{}, metrics.DiscardNotReply
	}

	var wantID *uint16
	if s.sock.MatchesIdentifier() {
		wantID = &s.config.Identifier
	}
	reply, ok := icmp.EchoReplyOf(msg, wantID)
	if !ok {
		return icmp.EchoReply{}, metrics.DiscardIdentifier
	}

	if s.config.MatchSequence && reply.Seq != seq {
		return icmp.EchoReply{}, metrics.DiscardStaleSeq
	}
	return reply, ""
}

func (s *Session) recordError(op string) {
	if s.metrics != nil {
		s.metrics.RecordError(op)
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
