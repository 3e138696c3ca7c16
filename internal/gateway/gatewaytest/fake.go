// Package gatewaytest provides a scripted Requester for tests.
package gatewaytest

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/rexlx/vexmarket/internal/gateway"
)

// Call is one request seen by a Fake.
type Call struct {
	Method string
	Path   string
	Body   json.RawMessage
	File   string
}

// Handler answers a request. body is the JSON encoding of what the caller
// sent, or nil.
type Handler func(body json.RawMessage) gateway.Result

// Fake routes requests by "METHOD path" to handlers and records every
// call. Unrouted requests get a 404.
type Fake struct {
	mu     sync.Mutex
	routes map[string]Handler
	calls  []Call
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{routes: make(map[string]Handler)}
}

// Handle routes method and path to h.
func (f *Fake) Handle(method, path string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+path] = h
}

// JSON routes method and path to a fixed 200 response.
func (f *Fake) JSON(method, path string, v any) {
	f.Handle(method, path, func(json.RawMessage) gateway.Result { return OK(v) })
}

// Send implements gateway.Requester.
func (f *Fake) Send(ctx context.Context, method, path string, body any) gateway.Result {
	var raw json.RawMessage
	if body != nil && method != http.MethodGet {
		raw, _ = json.Marshal(body)
	}
	return f.dispatch(Call{Method: method, Path: path, Body: raw})
}

// SendFile implements gateway.Requester.
func (f *Fake) SendFile(ctx context.Context, path, name string, data []byte) gateway.Result {
	return f.dispatch(Call{Method: http.MethodPost, Path: path, File: name})
}

func (f *Fake) dispatch(c Call) gateway.Result {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	h, ok := f.routes[c.Method+" "+c.Path]
	f.mu.Unlock()
	if !ok {
		return Status(http.StatusNotFound, map[string]any{"success": false, "error": "Not found"})
	}
	return h(c.Body)
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Count is how many times method and path were requested.
func (f *Fake) Count(method, path string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

// OK is a fetched 200 result carrying v.
func OK(v any) gateway.Result {
	return Status(http.StatusOK, v)
}

// Status is a fetched result with the given status carrying v.
func Status(code int, v any) gateway.Result {
	b, _ := json.Marshal(v)
	return gateway.Result{
		Fetched: true,
		OK:      code >= 200 && code < 300,
		Status:  code,
		Data:    b,
	}
}

// Offline is a request that never completed.
func Offline() gateway.Result {
	return gateway.Result{Err: errOffline}
}

type offlineError struct{}

func (offlineError) Error() string { return "dial tcp: connection refused" }

var errOffline error = offlineError{}
