package segment

import (
	"net/http"
	"time"
)

// NewHTTPClient builds the fetcher's client. headerTimeout bounds the wait for an
// origin's response headers only; body copies run in the background with no
// deadline. Zero disables the limit.
func NewHTTPClient(headerTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: transport}
}
