package piston

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dontdude/coderoom/internal/domain"
)

// Ceilings sent with every request. Callers cannot raise them.
const (
	CompileTimeoutMillis = 10000
	RunTimeoutMillis     = 3000
	UnlimitedMemory      = -1
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 1 << 20

// Client talks to a Piston-compatible execution service.
type Client struct {
	endpoint string
	http     *http.Client
}

// New returns a client posting to endpoint. A zero timeout leaves the request
// bounded only by the caller's context.
func New(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

// NewRequest builds the wire body for req.
func NewRequest(req domain.ExecutionRequest) domain.ServiceRequest {
	return domain.ServiceRequest{
		Language: req.ServiceLanguage,
		Version:  req.RuntimeVersion,
		Files: []domain.ServiceFile{
			{Name: req.FileName, Content: req.SourceContent},
		},
		Stdin:              req.Stdin,
		Args:               []string{},
		CompileTimeout:     CompileTimeoutMillis,
		RunTimeout:         RunTimeoutMillis,
		CompileMemoryLimit: UnlimitedMemory,
		RunMemoryLimit:     UnlimitedMemory,
	}
}

// Execute posts one request and decodes the response. Any failure to get a
// decodable 2xx answer is returned as *domain.TransportError.
func (c *Client) Execute(ctx context.Context, req domain.ExecutionRequest) (*domain.ServiceResponse, error) {
	body, err := json.Marshal(NewRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execution request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &domain.TransportError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &domain.TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &domain.TransportError{Status: resp.StatusCode, Err: err}
	}

	slog.Debug("execution service answered", "status", resp.StatusCode, "language", req.ServiceLanguage, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.TransportError{
			Status:  resp.StatusCode,
			Message: errorMessage(raw),
		}
	}

	var out domain.ServiceResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &domain.TransportError{Status: resp.StatusCode, Err: fmt.Errorf("malformed response body: %w", err)}
	}
	return &out, nil
}

// errorMessage extracts the service's {"message": ...} text, if any.
func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return body.Message
}
