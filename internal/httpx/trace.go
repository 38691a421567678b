package httpx

import (
	"crypto/tls"
	"net/http/httptrace"
	"sync"
	"time"
)

// tracer collects httptrace timestamps. Callbacks may arrive from transport
// goroutines, hence the lock.
type tracer struct {
	mu sync.Mutex

	start        time.Time
	dnsStart     time.Time
	dnsDone      time.Time
	connectStart time.Time
	connectDone  time.Time
	tlsStart     time.Time
	tlsDone      time.Time
	gotConn      time.Time
	wroteRequest time.Time
	gotFirstByte time.Time
	connReused   bool
}

func (t *tracer) stamp(field *time.Time, keepFirst bool) {
	t.mu.Lock()
	if !keepFirst || field.IsZero() {
		*field = time.Now()
	}
	t.mu.Unlock()
}

func (t *tracer) trace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) { t.stamp(&t.dnsStart, true) },
		DNSDone:  func(httptrace.DNSDoneInfo) { t.stamp(&t.dnsDone, false) },
		ConnectStart: func(string, string) {
			t.stamp(&t.connectStart, true)
		},
		ConnectDone: func(string, string, error) {
			t.stamp(&t.connectDone, false)
		},
		TLSHandshakeStart: func() { t.stamp(&t.tlsStart, true) },
		TLSHandshakeDone:  func(tls.ConnectionState, error) { t.stamp(&t.tlsDone, false) },
		GotConn: func(info httptrace.GotConnInfo) {
			t.mu.Lock()
			t.gotConn = time.Now()
			t.connReused = info.Reused
			t.mu.Unlock()
		},
		WroteRequest:         func(httptrace.WroteRequestInfo) { t.stamp(&t.wroteRequest, false) },
		GotFirstResponseByte: func() { t.stamp(&t.gotFirstByte, true) },
	}
}

func span(from, to time.Time) time.Duration {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return 0
	}
	return to.Sub(from)
}

// timings turns the timestamps into phases, end being when the body was read
// or the request failed.
func (t *tracer) timings(end time.Time) Timings {
	t.mu.Lock()
	defer t.mu.Unlock()

	tm := Timings{
		Blocked:        span(t.start, t.gotConn),
		DNS:            span(t.dnsStart, t.dnsDone),
		Connecting:     span(t.connectStart, t.connectDone),
		TLSHandshaking: span(t.tlsStart, t.tlsDone),
		Sending:        span(t.gotConn, t.wroteRequest),
		Waiting:        span(t.wroteRequest, t.gotFirstByte),
		Receiving:      span(t.gotFirstByte, end),
	}
	if t.gotConn.IsZero() {
		// never connected: the whole attempt counts
		tm.Duration = span(t.start, end)
		return tm
	}
	tm.Duration = tm.Sending + tm.Waiting + tm.Receiving
	if tm.Duration == 0 {
		tm.Duration = span(t.gotConn, end)
	}
	return tm
}
