// Package dispenser is the HTTP client for the external dispenser-control
// endpoint. The endpoint's contract is a plain generate/validate/cancel
// exchange with no ordering, replay, or idempotency guarantees, so the
// client makes exactly one attempt per call and treats every failure as
// terminal for the current dispense attempt.
package dispenser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cafezao-da-computacao/cafezao/internal/model"
)

// Client is the surface the dispense flow needs. Tests substitute a fake.
type Client interface {
	GenerateSequence(ctx context.Context) ([]int, error)
	ValidateSequence(ctx context.Context, code string, quantity model.Quantity) error
	CancelSequence(ctx context.Context) error
}

// ErrUnavailable wraps transport-level failures: the machine is off, the
// network is down, or the endpoint answered with garbage.
var ErrUnavailable = errors.New("dispenser unavailable")

// RejectedError is a definitive non-success answer from the endpoint: the
// code was wrong, expired, or already consumed.
type RejectedError struct {
	Detail string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("dispenser rejected request: %s", e.Detail)
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// New builds a Client against the given base URL.
func New(baseURL string, timeout time.Duration) Client {
	return &httpClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type generateResponse struct {
	Sequence []int  `json:"sequence"`
	Detail   string `json:"detail"`
}

type validateRequest struct {
	Sequence string         `json:"sequence"`
	Quantity model.Quantity `json:"quantity"`
}

type validateResponse struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// GenerateSequence asks the machine for a fresh one-time code.
func (c *httpClient) GenerateSequence(ctx context.Context) ([]int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/generate-sequence", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var body generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RejectedError{Detail: body.Detail}
	}
	if len(body.Sequence) == 0 {
		return nil, fmt.Errorf("%w: empty sequence", ErrUnavailable)
	}
	return body.Sequence, nil
}

// ValidateSequence submits the operator-entered code and quantity.
func (c *httpClient) ValidateSequence(ctx context.Context, code string, quantity model.Quantity) error {
	payload, err := json.Marshal(validateRequest{Sequence: code, Quantity: quantity})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/validate-sequence", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var body validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RejectedError{Detail: body.Detail}
	}
	return nil
}

// CancelSequence tells the machine to drop the outstanding code. Callers
// treat failures as advisory.
func (c *httpClient) CancelSequence(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/cancel-sequence", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("cancel-sequence returned status %d", resp.StatusCode)
	}
	return nil
}
