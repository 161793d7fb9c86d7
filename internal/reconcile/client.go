package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobclock/pkg/models"
)

// Sentinel errors for reconciliation failures. Every error returned by
// Send or PageState wraps ErrReconciliationFailed; transport failures also
// wrap ErrServerUnreachable or ErrServerTimeout.
var (
	ErrReconciliationFailed = errors.New("reconciliation failed")
	ErrServerUnreachable    = errors.New("server unreachable")
	ErrServerTimeout        = errors.New("server timeout")
)

// DefaultTimeout bounds a single reconciliation round trip.
const DefaultTimeout = 10 * time.Second

// Client is the interface for talking to the job server of record.
type Client interface {
	Send(ctx context.Context, jobID uuid.UUID, action models.Action, req models.ActionRequest) (*models.ServerState, error)
	PageState(ctx context.Context, jobID uuid.UUID) (*models.PageState, error)
}

// ServerError is a non-2xx response from the job server. Code and Message
// come from the error envelope when the body carries one.
type ServerError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServerError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// HTTPClient implements Client over the job server's HTTP API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a new job server client. A non-positive timeout
// falls back to DefaultTimeout.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Send posts a control action and decodes the server's view of the clock.
func (c *HTTPClient) Send(ctx context.Context, jobID uuid.UUID, action models.Action, req models.ActionRequest) (*models.ServerState, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: unknown action %q", ErrReconciliationFailed, action)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %v", ErrReconciliationFailed, err)
	}

	u := fmt.Sprintf("%s/api/v1/jobs/%s/%s", c.baseURL, jobID, action)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrReconciliationFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setHeaders(httpReq)

	var state models.ServerState
	if err := c.do(httpReq, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// PageState fetches the persisted clock a session is seeded from.
func (c *HTTPClient) PageState(ctx context.Context, jobID uuid.UUID) (*models.PageState, error) {
	u := fmt.Sprintf("%s/api/v1/jobs/%s/page-state", c.baseURL, jobID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrReconciliationFailed, err)
	}
	c.setHeaders(httpReq)

	var ps models.PageState
	if err := c.do(httpReq, &ps); err != nil {
		return nil, err
	}
	return &ps, nil
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %w", ErrReconciliationFailed, decodeServerError(resp))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrReconciliationFailed, err)
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeServerError(resp *http.Response) *ServerError {
	se := &ServerError{StatusCode: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(raw) == 0 {
		return se
	}
	var env errorEnvelope
	if json.Unmarshal(raw, &env) == nil {
		se.Code = env.Error.Code
		se.Message = env.Error.Message
	}
	return se
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w: %v", ErrReconciliationFailed, ErrServerTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w: %v", ErrReconciliationFailed, ErrServerTimeout, err)
	}

	return fmt.Errorf("%w: %w: %v", ErrReconciliationFailed, ErrServerUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
