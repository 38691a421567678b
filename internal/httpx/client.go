package httpx

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"fxload/internal/metrics"
)

const (
	DefaultTimeout   = 60 * time.Second
	DefaultUserAgent = "fxload/1.0"
)

// Options configure a Client for the whole run.
type Options struct {
	Insecure  bool
	Timeout   time.Duration
	Headers   map[string]string
	UserAgent string
	MaxConns  int
}

// Params tune a single request.
type Params struct {
	Headers map[string]string
	Tags    metrics.Tags
	Timeout time.Duration
	// Name replaces the URL in the name tag so dynamic URLs group together
	Name string
	// Trend is an extra time trend fed with the request duration
	Trend string
	// Expected decides which statuses count as success; default 200-399
	Expected func(status int) bool
}

// Client issues requests and records every one of them into the collector.
type Client struct {
	HTTP      *http.Client
	Collector *metrics.Collector
	Opts      Options
	Log       zerolog.Logger
}

func NewClient(c *metrics.Collector, opts Options, log zerolog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxConns <= 0 {
		opts.MaxConns = 2000
	}

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = opts.MaxConns
	t.MaxConnsPerHost = opts.MaxConns
	t.MaxIdleConnsPerHost = opts.MaxConns
	if opts.Insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		HTTP:      &http.Client{Transport: t},
		Collector: c,
		Opts:      opts,
		Log:       log,
	}
}

func (c *Client) Get(ctx context.Context, url string, p *Params) *Response {
	return c.Request(ctx, http.MethodGet, url, nil, p)
}

func (c *Client) Post(ctx context.Context, url string, body any, p *Params) *Response {
	return c.Request(ctx, http.MethodPost, url, body, p)
}

// Request sends one HTTP request and blocks until the body is read, the
// timeout fires or ctx is done. body may be nil, []byte, string, an io.Reader
// or any value to encode as JSON. Metrics are recorded unless ctx was done.
func (c *Client) Request(ctx context.Context, method, url string, body any, p *Params) *Response {
	if p == nil {
		p = &Params{}
	}
	res := &Response{Method: method, URL: url}

	payload, isJSON, err := encodeBody(body)
	if err != nil {
		res.Error = fmt.Errorf("encode request body: %w", err)
		res.ErrorCode = "encode"
		return res
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = c.Opts.Timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tr := &tracer{}
	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(reqCtx, tr.trace()), method, url, bytes.NewReader(payload))
	if err != nil {
		res.Error = err
		res.ErrorCode = "request"
		return res
	}
	for k, v := range c.Opts.Headers {
		req.Header.Set(k, v)
	}
	if isJSON {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("User-Agent", c.Opts.UserAgent)

	tr.start = time.Now()
	resp, err := c.HTTP.Do(req)
	if err == nil {
		res.Status = resp.StatusCode
		res.Proto = resp.Proto
		res.Header = resp.Header
		res.Body, err = io.ReadAll(resp.Body)
		resp.Body.Close()
	}
	end := time.Now()
	res.Timings = tr.timings(end)
	if err != nil {
		res.Error = err
		res.ErrorCode = errorCode(err)
		c.Log.Debug().Err(err).Str("method", method).Str("url", url).Msg("Request failed")
	}

	c.record(ctx, req, res, p, len(payload))
	return res
}

func (c *Client) record(ctx context.Context, req *http.Request, res *Response, p *Params, sent int) {
	if ctx.Err() != nil || c.Collector == nil {
		return
	}

	expected := p.Expected
	if expected == nil {
		expected = defaultExpected
	}
	ok := res.Error == nil && expected(res.Status)

	name := p.Name
	if name == "" {
		name = res.URL
	}
	tags := metrics.Tags{
		"method":            res.Method,
		"url":               res.URL,
		"name":              name,
		"status":            strconv.Itoa(res.Status),
		"expected_response": strconv.FormatBool(ok),
	}
	if res.ErrorCode != "" {
		tags["error_code"] = res.ErrorCode
	}
	for k, v := range p.Tags {
		tags[k] = v
	}

	col := c.Collector
	col.Counter(metrics.HTTPReqs).Emit(ctx, 1, tags)
	col.Rate(metrics.HTTPReqFailed).Emit(ctx, boolValue(!ok), tags)

	t := res.Timings
	col.Trend(metrics.HTTPReqDuration, true).Emit(ctx, ms(t.Duration), tags)
	col.Trend(metrics.HTTPReqBlocked, true).Emit(ctx, ms(t.Blocked), tags)
	col.Trend(metrics.HTTPReqConnecting, true).Emit(ctx, ms(t.Connecting), tags)
	col.Trend(metrics.HTTPReqTLSHandshaking, true).Emit(ctx, ms(t.TLSHandshaking), tags)
	col.Trend(metrics.HTTPReqSending, true).Emit(ctx, ms(t.Sending), tags)
	col.Trend(metrics.HTTPReqWaiting, true).Emit(ctx, ms(t.Waiting), tags)
	col.Trend(metrics.HTTPReqReceiving, true).Emit(ctx, ms(t.Receiving), tags)
	if p.Trend != "" {
		col.Trend(p.Trend, true).Emit(ctx, ms(t.Duration), tags)
	}

	col.Counter(metrics.DataSent).Emit(ctx, float64(sent+headerSize(req.Header)+len(req.Method)+len(res.URL)), tags)
	if res.Error == nil {
		col.Counter(metrics.DataReceived).Emit(ctx, float64(len(res.Body)+headerSize(res.Header)), tags)
	}
}

func defaultExpected(status int) bool {
	return status >= 200 && status < 400
}

func encodeBody(body any) ([]byte, bool, error) {
	switch b := body.(type) {
	case nil:
		return nil, false, nil
	case []byte:
		return b, false, nil
	case string:
		return []byte(b), false, nil
	case io.Reader:
		data, err := io.ReadAll(b)
		return data, false, err
	default:
		data, err := json.Marshal(b)
		return data, true, err
	}
}

// errorCode buckets transport errors for the error_code tag.
func errorCode(err error) string {
	var (
		netErr    net.Error
		opErr     *net.OpError
		dnsErr    *net.DNSError
		certErr   *tls.CertificateVerificationError
		unknownCA x509.UnknownAuthorityError
		hostErr   x509.HostnameError
		recordErr tls.RecordHeaderError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &certErr), errors.As(err, &unknownCA), errors.As(err, &hostErr), errors.As(err, &recordErr):
		return "tls"
	case errors.As(err, &dnsErr):
		return "dns"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.As(err, &opErr):
		return "connection"
	}
	return "other"
}

func headerSize(h http.Header) int {
	n := 0
	for k, vs := range h {
		for _, v := range vs {
			n += len(k) + len(v) + 4
		}
	}
	return n
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
