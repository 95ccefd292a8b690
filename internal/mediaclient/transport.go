package mediaclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/keyxmakerx/atlas/internal/mediaapi"
)

// maxErrorBody caps how much of an unparseable error body is kept.
const maxErrorBody = 512

// envelope is the response shape of every non-bulk endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	headers := http.Header{"Content-Type": []string{"application/json"}}
	return c.do(ctx, method, path, headers, bytes.NewReader(payload), out)
}

// do sends one request and decodes the envelope's data into out (when out
// is non-nil).
func (c *Client) do(ctx context.Context, method, path string, headers http.Header, body io.Reader, out any) error {
	raw, status, err := c.send(ctx, method, path, headers, body)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &TransportError{Method: method, Path: path, Status: status, Err: unreadable(status, raw, err)}
	}
	if !env.Success {
		return &APIError{Status: status, Message: failureMessage(env.Error, status)}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &TransportError{Method: method, Path: path, Status: status, Err: fmt.Errorf("decoding data: %w", err)}
	}
	return nil
}

// bulk posts body to a bulk endpoint. A 2xx bulk response is returned even
// when some items failed; the caller inspects Failed.
func (c *Client) bulk(ctx context.Context, path string, body any) (mediaapi.BulkResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return mediaapi.BulkResponse{}, fmt.Errorf("encoding request: %w", err)
	}
	headers := http.Header{"Content-Type": []string{"application/json"}}
	raw, status, err := c.send(ctx, http.MethodPost, path, headers, bytes.NewReader(payload))
	if err != nil {
		return mediaapi.BulkResponse{}, err
	}

	var resp mediaapi.BulkResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mediaapi.BulkResponse{}, &TransportError{Method: http.MethodPost, Path: path, Status: status, Err: unreadable(status, raw, err)}
	}
	if !resp.Success {
		return resp, &APIError{Status: status, Message: failureMessage(resp.Error, status)}
	}
	return resp, nil
}

// send performs the request and returns the body. Non-2xx responses are
// returned with their body so the caller can look for an envelope; a
// non-2xx response without one becomes a TransportError in do.
func (c *Client) send(ctx context.Context, method, path string, headers http.Header, body io.Reader) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return nil, 0, &TransportError{Method: method, Path: path, Err: err}
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &TransportError{Method: method, Path: path, Status: resp.StatusCode, Err: err}
	}
	return raw, resp.StatusCode, nil
}

// unreadable describes a response body that is not an envelope.
func unreadable(status int, raw []byte, cause error) error {
	if status >= 200 && status < 300 {
		return fmt.Errorf("decoding response: %w", cause)
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	if text == "" {
		return errors.New(http.StatusText(status))
	}
	return errors.New(text)
}

func failureMessage(msg string, status int) string {
	if msg != "" {
		return msg
	}
	if status >= 400 {
		return http.StatusText(status)
	}
	return "request failed"
}
