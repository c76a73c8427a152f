package report

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"
)

type failingWriter struct {
	calls int
}

func (f *failingWriter) Write(p []byte) (int, error) {
	f.calls++
	return 0, errors.New("broken pipe")
}

func TestWriter_Report(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Report(&net.IPAddr{IP: net.ParseIP("192.0.2.1")}, 0, 1234*time.Microsecond)
	w.Report(&net.UDPAddr{IP: net.ParseIP("192.0.2.1")}, 1, 1500*time.Nanosecond)

	want := "192.0.2.1,0,1234\n192.0.2.1,1,1\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
	if w.Err() != nil {
		t.Errorf("Err() = %v, want nil", w.Err())
	}
}

func TestWriter_NegativeElapsedClampsToZero(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Report(&net.IPAddr{IP: net.ParseIP("10.0.0.1")}, 7, -time.Millisecond)

	if buf.String() != "10.0.0.1,7,0\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestWriter_WriteErrorIsRecorded(t *testing.T) {
	fw := &failingWriter{}
	w := New(fw)

	w.Report(&net.IPAddr{IP: net.ParseIP("10.0.0.1")}, 0, time.Millisecond)
	w.Report(&net.IPAddr{IP: net.ParseIP("10.0.0.1")}, 1, time.Millisecond)

	if fw.calls != 2 {
		t.Errorf("writes attempted = %d, want 2", fw.calls)
	}
	if w.Err() == nil {
		t.Error("Err() should report the write failure")
	}
}

func TestFormatSource(t *testing.T) {
	tests := []struct {
		name string
		addr net.Addr
		want string
	}{
		{"ip addr", &net.IPAddr{IP: net.ParseIP("8.8.8.8")}, "8.8.8.8"},
		{"udp addr", &net.UDPAddr{IP: net.ParseIP("1.1.1.1"), Port: 9}, "1.1.1.1"},
		{"ipv4 in 16 bytes", &net.IPAddr{IP: net.IPv4(10, 0, 0, 1).To16()}, "10.0.0.1"},
		{"ipv6", &net.IPAddr{IP: net.ParseIP("2001:db8::1")}, ""},
		{"tcp addr", &net.TCPAddr{IP: net.ParseIP("8.8.8.8")}, ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatSource(tt.addr); got != tt.want {
				t.Errorf("FormatSource() = %q, want %q", got, tt.want)
			}
		})
	}
}
