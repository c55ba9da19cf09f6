package httpclient

import "net/http"

// RoundTripper is http.RoundTripper under a name mockery can generate from.
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}
