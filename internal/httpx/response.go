package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/PaesslerAG/jsonpath"
)

// Timings is the phase breakdown of one request. Duration covers sending,
// waiting and receiving, the time the server is responsible for.
type Timings struct {
	Blocked        time.Duration `json:"blocked"`
	DNS            time.Duration `json:"dns"`
	Connecting     time.Duration `json:"connecting"`
	TLSHandshaking time.Duration `json:"tlsHandshaking"`
	Sending        time.Duration `json:"sending"`
	Waiting        time.Duration `json:"waiting"`
	Receiving      time.Duration `json:"receiving"`
	Duration       time.Duration `json:"duration"`
}

// Response is the normalized result handed back to scenarios. Network
// failures are reported through Error with Status 0, never as a Go error.
type Response struct {
	Method    string
	URL       string
	Status    int
	Proto     string
	Header    http.Header
	Body      []byte
	Timings   Timings
	Error     error
	ErrorCode string

	once   sync.Once
	doc    any
	docErr error
}

// ParseError means the body was requested as structured data but is not JSON.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse response body of %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// OK reports a 2xx status without a transport error.
func (r *Response) OK() bool {
	return r.Error == nil && r.Status >= 200 && r.Status < 300
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if len(r.Body) == 0 {
		return &ParseError{URL: r.URL, Err: fmt.Errorf("empty body")}
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &ParseError{URL: r.URL, Err: err}
	}
	return nil
}

// JSONPath evaluates expr (e.g. "$.token") against the decoded body. The body
// is decoded once per response.
func (r *Response) JSONPath(expr string) (any, error) {
	r.once.Do(func() {
		var doc any
		if err := r.JSON(&doc); err != nil {
			r.docErr = err
			return
		}
		r.doc = doc
	})
	if r.docErr != nil {
		return nil, r.docErr
	}
	return jsonpath.Get(expr, r.doc)
}

// Field is JSONPath for scalar string fields; missing or non-string values yield "".
func (r *Response) Field(expr string) string {
	v, err := r.JSONPath(expr)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
