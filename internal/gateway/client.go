package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
)

const maxResponseBytes = 1 << 20

// NewHTTPClient returns a traced client whose every call is bounded by
// timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// apiClient sends JSON requests to one processor's API with a bearer
// secret. Transport failures, timeouts and non-2xx answers come back as
// *domain.GatewayError.
type apiClient struct {
	gateway string
	baseURL string
	secret  string
	client  *http.Client
}

func newAPIClient(gateway, baseURL, secret string, client *http.Client) *apiClient {
	return &apiClient{
		gateway: gateway,
		baseURL: baseURL,
		secret:  secret,
		client:  client,
	}
}

type messageBody struct {
	Message string `json:"message"`
}

// do sends body (nil for none) and decodes the answer into out, returning
// the raw response bytes.
func (c *apiClient) do(ctx context.Context, op, method, path string, body, out any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &domain.GatewayError{Gateway: c.gateway, Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &domain.GatewayError{Gateway: c.gateway, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		gwErr := &domain.GatewayError{Gateway: c.gateway, Op: op, Err: err}
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			gwErr.Message = "gateway timed out"
		}
		return nil, gwErr
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &domain.GatewayError{Gateway: c.gateway, Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var msg messageBody
		_ = json.Unmarshal(raw, &msg)
		return raw, &domain.GatewayError{Gateway: c.gateway, Op: op, StatusCode: resp.StatusCode, Message: msg.Message}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return raw, &domain.GatewayError{Gateway: c.gateway, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
	}

	return raw, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
