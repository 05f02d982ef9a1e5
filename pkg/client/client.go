// Package client provides the Go SDK for the trust chain service: submitting
// signed data records to the ledger, auditing the submission history, and
// (with an admin token) managing verifiers and DSM devices.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is returned for any non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("trustchain: %d %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsConflict reports whether err is an APIError with status 409.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// Client is the trust chain SDK entry point.
type Client struct {
	baseURL    string
	httpClient *http.Client
	adminToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAdminToken attaches an admin capability token to every request.
// Required for the verifier/device management and registry-repoint calls.
func WithAdminToken(token string) Option {
	return func(c *Client) { c.adminToken = token }
}

// New creates a Client for the service at baseURL (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// do performs a JSON round trip. out may be nil to discard the body.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/v1"+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Error string `json:"error"`
		}
		msg := resp.Status
		if data, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<16)); readErr == nil {
			if json.Unmarshal(data, &errBody) == nil && errBody.Error != "" {
				msg = errBody.Error
			}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Submit records a signed, content-addressed submission on the ledger.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*Submission, error) {
	var sub Submission
	if err := c.do(ctx, http.MethodPost, "/submissions", req, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetSubmission fetches the ledger record for a data hash.
func (c *Client) GetSubmission(ctx context.Context, dataHash string) (*Submission, error) {
	var sub Submission
	if err := c.do(ctx, http.MethodGet, "/submissions/"+url.PathEscape(dataHash), nil, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetSubmissionDetails fetches a ledger record joined with the current
// registry snapshot of its device and verifier.
func (c *Client) GetSubmissionDetails(ctx context.Context, dataHash string) (*SubmissionDetails, error) {
	var details SubmissionDetails
	if err := c.do(ctx, http.MethodGet, "/submissions/"+url.PathEscape(dataHash)+"/details", nil, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// VerifyIntegrity checks raw data against the hash recorded for dataHash.
func (c *Client) VerifyIntegrity(ctx context.Context, dataHash string, data []byte) (bool, error) {
	var resp struct {
		Valid bool `json:"valid"`
	}
	in := map[string][]byte{"data": data}
	if err := c.do(ctx, http.MethodPost, "/submissions/"+url.PathEscape(dataHash)+"/integrity", in, &resp); err != nil {
		return false, err
	}
	return resp.Valid, nil
}

// History returns a page of the submission audit log in commit order.
func (c *Client) History(ctx context.Context, start, count uint64) (*HistoryPage, error) {
	var page HistoryPage
	path := fmt.Sprintf("/submissions?start=%d&count=%d", start, count)
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// TotalSubmissions returns the ledger size.
func (c *Client) TotalSubmissions(ctx context.Context) (uint64, error) {
	var resp struct {
		Total uint64 `json:"total_submissions"`
	}
	if err := c.do(ctx, http.MethodGet, "/submissions/stats", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Total, nil
}

// DeviceSubmissions lists all data hashes submitted by a device.
func (c *Client) DeviceSubmissions(ctx context.Context, deviceID string) ([]string, error) {
	var resp hashList
	if err := c.do(ctx, http.MethodGet, "/devices/"+url.PathEscape(deviceID)+"/submissions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Hashes, nil
}

// VerifierSubmissions lists all data hashes attributed to a verifier.
func (c *Client) VerifierSubmissions(ctx context.Context, address string) ([]string, error) {
	var resp hashList
	if err := c.do(ctx, http.MethodGet, "/verifiers/"+url.PathEscape(address)+"/submissions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Hashes, nil
}

type hashList struct {
	Hashes []string `json:"hashes"`
}
