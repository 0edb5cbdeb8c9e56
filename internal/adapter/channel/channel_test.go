package channel

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// mockHTTPClient implements HTTPClient for testing.
type mockHTTPClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.doFunc(req)
}

func respond(status int, body string) *mockHTTPClient {
	return &mockHTTPClient{doFunc: func(_ *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}, nil
	}}
}

func unreachable() *mockHTTPClient {
	return &mockHTTPClient{doFunc: func(_ *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}}
}

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}
