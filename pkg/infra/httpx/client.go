package httpx

import "net/http"

// Client abstracts the outbound HTTP transport so the oracle gateway can be
// exercised with a mock in tests.
type Client interface {
	Do(req *http.Request) (*http.Response, error)
}
