package ports

import (
	"context"
	"net/http"
)

// Request is a fully built outgoing HTTP call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is the status and raw body of a completed call.
type Response struct {
	Status int
	Body   []byte
}

// Transport executes HTTP calls on behalf of the dispatcher.
// A non-2xx status is not an error; only failures to complete the exchange are.
type Transport interface {
	Do(ctx context.Context, req Request) (Response, error)
}
