package tunnel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const providerRequestTimeout = 30 * time.Second

// HTTPProvider implements Provider against a tunnel vendor's control API.
// Vendor specifics (region, proxy) are baked into the base URL and handled
// server side.
type HTTPProvider struct {
	baseURL    string
	httpClient *http.Client

	token string
}

func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: providerRequestTimeout},
	}
}

type connectRequest struct {
	LocalPort     int    `json:"local_port"`
	SubdomainHint string `json:"subdomain_hint,omitempty"`
}

type connectResponse struct {
	URL string `json:"url"`
}

type listResponse struct {
	Tunnels []struct {
		URL string `json:"url"`
	} `json:"tunnels"`
}

// Authenticate validates the token against the provider session endpoint.
func (p *HTTPProvider) Authenticate(ctx context.Context, token string) error {
	p.token = token
	resp, err := p.do(ctx, http.MethodPost, "/session", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("provider rejected the auth token: %s", resp.Status)
	default:
		return fmt.Errorf("provider session failed: %s", resp.Status)
	}
}

// Connect requests a tunnel and returns its public URL once live.
func (p *HTTPProvider) Connect(ctx context.Context, localPort int, subdomainHint string) (string, error) {
	body, err := json.Marshal(connectRequest{LocalPort: localPort, SubdomainHint: subdomainHint})
	if err != nil {
		return "", err
	}
	resp, err := p.do(ctx, http.MethodPost, "/tunnels", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("tunnel request failed: %s", resp.Status)
	}
	var out connectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode tunnel response: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("provider returned an empty tunnel url")
	}
	return out.URL, nil
}

// Disconnect tears one tunnel down.
func (p *HTTPProvider) Disconnect(ctx context.Context, tunnelURL string) error {
	path := "/tunnels/" + url.PathEscape(tunnelURL)
	resp, err := p.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		// Not found means it is already gone, which is what we wanted.
		return nil
	default:
		return fmt.Errorf("tunnel disconnect failed: %s", resp.Status)
	}
}

// ListActive returns the public URLs of all tunnels in the session.
func (p *HTTPProvider) ListActive(ctx context.Context) ([]string, error) {
	resp, err := p.do(ctx, http.MethodGet, "/tunnels", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to list tunnels: %s", resp.Status)
	}
	var out listResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode tunnel list: %w", err)
	}
	urls := make([]string, 0, len(out.Tunnels))
	for _, t := range out.Tunnels {
		urls = append(urls, t.URL)
	}
	return urls, nil
}

func (p *HTTPProvider) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if p.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.token))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return p.httpClient.Do(req)
}
