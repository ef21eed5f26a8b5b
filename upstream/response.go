package upstream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const maxUpstreamBody = 1 << 20

// Response is an authorization server reply relayed as-is to the caller.
type Response struct {
	StatusCode int
	Body       []byte
	// JSON reports whether Body is a JSON document and may be relayed verbatim.
	JSON bool
}

// OK reports a 2xx upstream status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ErrorBody is the wrapper sent when the upstream body is not JSON.
func (r *Response) ErrorBody() map[string]any {
	return map[string]any{
		"error":   fmt.Sprintf("HTTP error: %d", r.StatusCode),
		"details": string(r.Body),
	}
}

// StatusError is returned when the authorization server answers a registration with a
// non-2xx status.
type StatusError struct {
	Response
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("authorization server returned HTTP %d", e.StatusCode)
}

func readResponse(resp *http.Response) (*Response, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		JSON:       len(body) > 0 && json.Valid(body),
	}, nil
}
