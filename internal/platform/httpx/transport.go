package httpx

import (
	"net/http"
	"time"

	"github.com/GoCodeAlone/modular"
)

// LoggingTransport logs one line per outbound request. Query strings and
// headers are never logged since they can carry credentials.
type LoggingTransport struct {
	Base   http.RoundTripper
	Logger modular.Logger
}

// RoundTrip implements http.RoundTripper.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	start := time.Now()
	resp, err := base.RoundTrip(req)
	elapsed := time.Since(start)
	if err != nil {
		t.Logger.Warn("Outbound request failed", "method", req.Method, "host", req.URL.Host,
			"path", req.URL.Path, "duration", elapsed, "error", err)
		return nil, err
	}
	t.Logger.Debug("Outbound request", "method", req.Method, "host", req.URL.Host,
		"path", req.URL.Path, "status", resp.StatusCode, "duration", elapsed)
	return resp, nil
}

// WithLogging returns a copy of client whose transport logs through logger.
// The shared client is left untouched.
func WithLogging(client *http.Client, logger modular.Logger) *http.Client {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		return client
	}
	wrapped := *client
	wrapped.Transport = &LoggingTransport{Base: client.Transport, Logger: logger}
	return &wrapped
}
