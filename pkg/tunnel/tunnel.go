// Package tunnel manages one ephemeral public tunnel bound to a local port.
//
// The manager owns provider authentication and the single active tunnel for
// a run. Cleanup is idempotent and safe to call even when no tunnel was ever
// opened, so callers can defer it unconditionally.
package tunnel

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loopback-labs/e2e-agent/internal/models"
	srvErrors "github.com/loopback-labs/e2e-agent/pkg/errors"
)

// Provider is the tunnel vendor surface the manager depends on. Provider
// specific settings (region, proxy) live behind the implementation.
type Provider interface {
	Authenticate(ctx context.Context, token string) error
	Connect(ctx context.Context, localPort int, subdomainHint string) (url string, err error)
	Disconnect(ctx context.Context, url string) error
	ListActive(ctx context.Context) ([]string, error)
}

// Manager tracks at most one tunnel. A second Open while one is active is an
// error, never silently replaced state.
type Manager struct {
	provider  Provider
	authToken string

	mu            sync.Mutex
	authenticated bool
	active        *models.TunnelInfo
}

func NewManager(provider Provider, authToken string) *Manager {
	return &Manager{
		provider:  provider,
		authToken: authToken,
	}
}

// Open authenticates on first use, requests a tunnel for localPort and
// returns once the provider reports it live. The subdomain hint is best
// effort; the provider may substitute its own.
func (m *Manager) Open(ctx context.Context, localPort int, subdomainHint string) (*models.TunnelInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	log := zap.S().Named("tunnel")

	if m.active != nil {
		return nil, srvErrors.NewTunnelConflictError(m.active.URL)
	}

	if !m.authenticated {
		if err := m.provider.Authenticate(ctx, m.authToken); err != nil {
			log.Errorw("provider authentication failed", "error", err)
			return nil, srvErrors.NewTunnelAuthError(err.Error())
		}
		m.authenticated = true
	}

	log.Infow("opening tunnel", "port", localPort, "subdomainHint", subdomainHint)
	url, err := m.provider.Connect(ctx, localPort, subdomainHint)
	if err != nil {
		log.Errorw("tunnel connect failed", "port", localPort, "error", err)
		return nil, srvErrors.NewTunnelProvisionError(err.Error())
	}

	info := &models.TunnelInfo{
		URL:       url,
		Subdomain: subdomainHint,
		Port:      localPort,
		CreatedAt: time.Now(),
	}
	m.active = info
	log.Infow("tunnel is live", "url", url, "port", localPort)
	return info, nil
}

// Active returns the tracked tunnel, or nil.
func (m *Manager) Active() *models.TunnelInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Cleanup disconnects the tracked tunnel and, when this was the last active
// tunnel for the provider session, drops the session so the next Open
// re-authenticates. Calling it twice, or without a prior Open, is a no-op.
func (m *Manager) Cleanup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	log := zap.S().Named("tunnel")

	if m.active == nil {
		log.Debug("cleanup: no active tunnel")
		return nil
	}

	url := m.active.URL
	if err := m.provider.Disconnect(ctx, url); err != nil {
		// The tunnel stops being tracked either way; a leaked provider-side
		// tunnel is reported, not retried.
		m.active = nil
		log.Errorw("tunnel disconnect failed", "url", url, "error", err)
		return err
	}
	m.active = nil
	log.Infow("tunnel closed", "url", url)

	remaining, err := m.provider.ListActive(ctx)
	if err != nil {
		log.Warnw("could not list active tunnels after cleanup", "error", err)
		return nil
	}
	if len(remaining) == 0 {
		m.authenticated = false
		log.Debug("last tunnel closed, provider session released")
	}
	return nil
}
