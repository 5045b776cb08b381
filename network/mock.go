package network

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Reply is a canned answer served by Routes.
type Reply struct {
	Status int
	Body   string
	Header http.Header
	// Err makes the request fail at the transport level.
	Err error
}

// Routes is an http.RoundTripper answering requests from a fixed table.
// Keys are either "METHOD URL" or a bare URL matching any method. Requests
// without a route fail like an unreachable host.
type Routes map[string]Reply

// RoundTrip implements http.RoundTripper.
func (r Routes) RoundTrip(req *http.Request) (*http.Response, error) {
	u := req.URL.String()
	reply, ok := r[req.Method+" "+u]
	if !ok {
		reply, ok = r[u]
	}
	if !ok {
		return nil, fmt.Errorf("no route for %s %s", req.Method, u)
	}
	if reply.Err != nil {
		return nil, reply.Err
	}

	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	header := reply.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", "text/html; charset=utf-8")
	}
	body := reply.Body
	if req.Method == http.MethodHead {
		body = ""
	}

	return &http.Response{
		StatusCode:    status,
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}, nil
}
