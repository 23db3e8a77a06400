package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/alfredjeanlab/nego/internal/model"
)

// APIError represents an error response from the platform.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// HTTPDirectory implements Directory against the platform's JSON API. Calls
// go through a circuit breaker that opens after consecutive server-side
// failures; client errors (4xx) do not count against it.
type HTTPDirectory struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// BreakerSettings tunes the circuit breaker.
type BreakerSettings struct {
	MaxFailures uint32        // consecutive failures before opening (default 5)
	OpenTimeout time.Duration // how long to stay open before probing (default 30s)
}

// NewHTTPDirectory creates a directory client for the given base URL. When
// token is non-empty, an Authorization header is set on every request.
func NewHTTPDirectory(baseURL, token string, bs BreakerSettings) *HTTPDirectory {
	if bs.MaxFailures == 0 {
		bs.MaxFailures = 5
	}
	if bs.OpenTimeout == 0 {
		bs.OpenTimeout = 30 * time.Second
	}
	return &HTTPDirectory{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "workers",
			Timeout: bs.OpenTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= bs.MaxFailures
			},
			IsSuccessful: func(err error) bool {
				var apiErr *APIError
				if errors.As(err, &apiErr) {
					return apiErr.StatusCode < 500
				}
				return err == nil
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("workers: circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

func (d *HTTPDirectory) Approve(ctx context.Context, p *model.Participant) error {
	path := "/v1/assignments/" + url.PathEscape(p.AssignmentID) + "/approve"
	return d.call(ctx, http.MethodPost, path, map[string]string{"worker_id": p.WorkerID}, nil)
}

func (d *HTTPDirectory) PayBonus(ctx context.Context, p *model.Participant, amount float64, reason string) (*Receipt, error) {
	body := map[string]any{
		"assignment_id":        p.AssignmentID,
		"amount":               amount,
		"reason":               reason,
		"unique_request_token": uuid.NewString(),
	}
	var receipt Receipt
	if err := d.call(ctx, http.MethodPost, "/v1/workers/"+url.PathEscape(p.WorkerID)+"/bonus", body, &receipt); err != nil {
		return nil, err
	}
	if receipt.Token == "" {
		receipt.Token = body["unique_request_token"].(string)
	}
	return &receipt, nil
}

func (d *HTTPDirectory) GrantBlockingQualification(ctx context.Context, p *model.Participant, qualificationID string) error {
	body := map[string]any{
		"qualification_id": qualificationID,
		"value":            1,
	}
	return d.call(ctx, http.MethodPost, "/v1/workers/"+url.PathEscape(p.WorkerID)+"/qualifications", body, nil)
}

// call runs doJSON through the circuit breaker.
func (d *HTTPDirectory) call(ctx context.Context, method, path string, body, result any) error {
	_, err := d.breaker.Execute(func() (interface{}, error) {
		return nil, d.doJSON(ctx, method, path, body, result)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s %s", ErrCircuitOpen, method, path)
	}
	return err
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded.
func (d *HTTPDirectory) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
