package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kiranshivaraju/livewatch/pkg/models"
)

// Sentinel errors for snapshot fetch failures.
var (
	ErrUpstreamUnreachable = errors.New("status endpoint unreachable")
	ErrUpstreamStatus      = errors.New("status endpoint returned non-success status")
	ErrUpstreamTimeout     = errors.New("status endpoint timeout")
	ErrDecode              = errors.New("malformed status payload")
)

// JobIDPlaceholder is substituted with the job id in a job status URL template.
const JobIDPlaceholder = "{job_id}"

// Client fetches status payloads for a job.
type Client interface {
	Result(ctx context.Context, jobID string) (*models.JobSnapshot, error)
	JobStatus(ctx context.Context, jobID string) (*models.JobStatusReport, error)
}

// HTTPClient implements Client against the ContaMiner HTTP API.
type HTTPClient struct {
	apiURL    string
	statusURL string
	client    *http.Client
}

// NewHTTPClient creates a new status client. statusURL may contain
// JobIDPlaceholder; when empty it defaults to {apiURL}/status/{job_id}.
func NewHTTPClient(apiURL, statusURL string, timeout time.Duration) *HTTPClient {
	apiURL = strings.TrimRight(apiURL, "/")
	if statusURL == "" {
		statusURL = apiURL + "/status/" + JobIDPlaceholder
	}
	return &HTTPClient{
		apiURL:    apiURL,
		statusURL: statusURL,
		client:    &http.Client{Timeout: timeout},
	}
}

// Result fetches GET {apiURL}/result/{jobID} and decodes the snapshot.
func (c *HTTPClient) Result(ctx context.Context, jobID string) (*models.JobSnapshot, error) {
	u := fmt.Sprintf("%s/result/%s", c.apiURL, url.PathEscape(jobID))

	var payload wireSnapshot
	if err := c.getJSON(ctx, u, &payload); err != nil {
		return nil, err
	}

	snap, err := payload.toModel()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return snap, nil
}

// JobStatus fetches the job-level status from the status URL.
func (c *HTTPClient) JobStatus(ctx context.Context, jobID string) (*models.JobStatusReport, error) {
	u := strings.ReplaceAll(c.statusURL, JobIDPlaceholder, url.PathEscape(jobID))

	var payload wireJobStatus
	if err := c.getJSON(ctx, u, &payload); err != nil {
		return nil, err
	}
	if payload.Status == nil {
		return nil, fmt.Errorf("%w: missing status", ErrDecode)
	}
	return &models.JobStatusReport{Status: models.JobStatus(*payload.Status)}, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, u string, v any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUpstreamStatus, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) {
			return classifyError(err)
		}
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// classifyError maps transport-level errors to sentinel errors. The cause
// stays in the chain so callers can still tell a cancelled poll apart.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrUpstreamTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrUpstreamTimeout, err)
	}

	return fmt.Errorf("%w: %w", ErrUpstreamUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
