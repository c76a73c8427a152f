// Package report writes matched echo replies as comma-separated lines.
package report

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/postalsys/echoprobe/internal/icmp"
)

// Writer formats one "<source>,<sequence>,<elapsed_micros>" line per reply.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	err error
}

// New creates a Writer on w.
func New(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Report writes one line. Write failures are kept for Err and never
// returned, so a broken output cannot stop the echo loop.
func (r *Writer) Report(src net.Addr, seq uint16, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if elapsed < 0 {
		elapsed = 0
	}

	if _, err := fmt.Fprintf(r.w, "%s,%d,%d\n", FormatSource(src), seq, elapsed.Microseconds()); err != nil && r.err == nil {
		r.err = err
	}
}

// Err returns the first write error, if any.
func (r *Writer) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.err
}

// FormatSource renders an IPv4 source address; other shapes render empty.
func FormatSource(src net.Addr) string {
	ip, ok := icmp.SourceIPv4(src)
	if !ok {
		return ""
	}
	return ip.String()
}
