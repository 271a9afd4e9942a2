// Package backend is the HTTP client for the remote e2e test service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	v1 "github.com/loopback-labs/e2e-agent/api/v1"
	srvErrors "github.com/loopback-labs/e2e-agent/pkg/errors"
)

const (
	commitSuitesPath = "/e2e/commit-suites"

	defaultRequestTimeout = 30 * time.Second
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type ClientOption func(*Client)

// WithHTTPClient replaces the underlying transport, mainly for tests.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateCommitSuite submits a suite creation request.
// POST /e2e/commit-suites
func (c *Client) CreateCommitSuite(ctx context.Context, req v1.CommitSuiteRequest) (uuid.UUID, error) {
	zap.S().Named("backend").Debugw("creating commit suite",
		"tunnelUrl", req.TunnelURL, "commit", req.CommitSHA, "kind", req.SuiteKind)

	body, err := json.Marshal(req)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode suite request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, commitSuitesPath, bytes.NewReader(body))
	if err != nil {
		return uuid.Nil, srvErrors.NewNetworkTransientError("suite creation", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var out v1.CommitSuiteResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return uuid.Nil, fmt.Errorf("failed to decode suite response: %w", err)
		}
		return out.SuiteID, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return uuid.Nil, srvErrors.NewBackendAuthError(resp.Status)
	default:
		if resp.StatusCode >= http.StatusInternalServerError {
			return uuid.Nil, srvErrors.NewNetworkTransientError("suite creation", fmt.Errorf("backend returned %s", resp.Status))
		}
		return uuid.Nil, fmt.Errorf("failed to create suite: %s", resp.Status)
	}
}

// GetSuite fetches the current status of a suite.
// GET /e2e/commit-suites/{suiteId}
func (c *Client) GetSuite(ctx context.Context, suiteID uuid.UUID) (v1.SuiteStatusResponse, error) {
	var out v1.SuiteStatusResponse

	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/%s", commitSuitesPath, suiteID), nil)
	if err != nil {
		return out, srvErrors.NewNetworkTransientError("suite status", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return out, fmt.Errorf("failed to decode suite status: %w", err)
		}
		return out, nil
	case http.StatusNotFound:
		return out, srvErrors.NewSuiteNotFoundError(suiteID.String())
	case http.StatusUnauthorized, http.StatusForbidden:
		return out, srvErrors.NewBackendAuthError(resp.Status)
	default:
		if resp.StatusCode >= http.StatusInternalServerError {
			return out, srvErrors.NewNetworkTransientError("suite status", fmt.Errorf("backend returned %s", resp.Status))
		}
		return out, fmt.Errorf("failed to get suite status: %s", resp.Status)
	}
}

// DownloadArtifact streams one artifact of a completed suite into w.
// GET /e2e/commit-suites/{suiteId}/artifacts/{artifactId}
func (c *Client) DownloadArtifact(ctx context.Context, suiteID uuid.UUID, artifactID string, w io.Writer) error {
	path := fmt.Sprintf("%s/%s/artifacts/%s", commitSuitesPath, suiteID, artifactID)
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return srvErrors.NewNetworkTransientError("artifact download", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if _, err := io.Copy(w, resp.Body); err != nil {
			return fmt.Errorf("failed to read artifact %s: %w", artifactID, err)
		}
		return nil
	case http.StatusNotFound:
		return srvErrors.NewArtifactNotFoundError(suiteID.String(), artifactID)
	case http.StatusUnauthorized, http.StatusForbidden:
		return srvErrors.NewBackendAuthError(resp.Status)
	default:
		return fmt.Errorf("failed to download artifact %s: %s", artifactID, resp.Status)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}
