// Package proxy is the Reverse-Proxy Route Manager (component F). It keeps
// the external HTTP surface consistent with the set of running
// applications by talking to an admin HTTP endpoint exposed by the
// TLS-terminating proxy daemon, rather than writing local config files the
// way internal/nginx.Manager did. The declarative apply/reconcile shape of
// that manager — stage desired state, diff against current state, apply
// only the delta — is kept; only the transport changes.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/GLINCKER/glinrdock/internal/apperror"
	"github.com/rs/zerolog/log"
)

// CertStatus is the certificate state the proxy reports for a hostname.
type CertStatus string

const (
	CertActive  CertStatus = "active"
	CertPending CertStatus = "pending"
	CertNone    CertStatus = "none"
)

// Route is a single hostname-to-backend mapping as the proxy sees it.
type Route struct {
	Hostname    string `json:"hostname"`
	BackendHost string `json:"backend_host"`
	BackendPort int    `json:"backend_port"`
}

// Adapter is the declarative client for the proxy's admin API. Callers
// describe desired routes; Adapter issues the HTTP calls and normalizes
// failures into apperror.Upstream so callers (the reconciler, the fleet
// controller) can apply the same retry/log policy everywhere.
type Adapter struct {
	baseURL string
	client  *http.Client
}

// NewAdapter creates an Adapter targeting the proxy admin endpoint at
// baseURL (spec's proxy_admin_url config value).
func NewAdapter(baseURL string) *Adapter {
	return &Adapter{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				DisableKeepAlives:   true,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// SetRoute declaratively installs or replaces the route for hostname.
func (a *Adapter) SetRoute(ctx context.Context, hostname, backendHost string, backendPort int) error {
	body, err := json.Marshal(Route{Hostname: hostname, BackendHost: backendHost, BackendPort: backendPort})
	if err != nil {
		return apperror.Wrap(apperror.Internal, "failed to encode route", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/routes", bytes.NewReader(body))
	if err != nil {
		return apperror.Wrap(apperror.Internal, "failed to build set_route request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := a.do(req); err != nil {
		return err
	}

	log.Info().Str("hostname", hostname).Str("backend", fmt.Sprintf("%s:%d", backendHost, backendPort)).
		Msg("proxy route set")
	return nil
}

// RemoveRoute removes any route for hostname. Removing a route that does
// not exist is not an error.
func (a *Adapter) RemoveRoute(ctx context.Context, hostname string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, a.baseURL+"/routes/"+hostname, nil)
	if err != nil {
		return apperror.Wrap(apperror.Internal, "failed to build remove_route request", err)
	}

	if err := a.do(req); err != nil {
		return err
	}

	log.Info().Str("hostname", hostname).Msg("proxy route removed")
	return nil
}

// ListRoutes returns the proxy's current route set, the "actual" side of
// the reconciler's desired-vs-actual diff.
func (a *Adapter) ListRoutes(ctx context.Context) ([]Route, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/routes", nil)
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, "failed to build list_routes request", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, apperror.Wrap(apperror.Upstream, "proxy admin endpoint unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, apperror.New(apperror.Upstream, fmt.Sprintf("list_routes returned status %d", resp.StatusCode))
	}

	var routes []Route
	if err := json.NewDecoder(resp.Body).Decode(&routes); err != nil {
		return nil, apperror.Wrap(apperror.Upstream, "failed to decode route list", err)
	}
	return routes, nil
}

// CertStatus reports whether hostname currently has an active, pending, or
// absent TLS certificate.
func (a *Adapter) CertStatus(ctx context.Context, hostname string) (CertStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/certificates/"+hostname, nil)
	if err != nil {
		return CertNone, apperror.Wrap(apperror.Internal, "failed to build cert_status request", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return CertNone, apperror.Wrap(apperror.Upstream, "proxy admin endpoint unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return CertNone, nil
	}
	if resp.StatusCode >= 300 {
		return CertNone, apperror.New(apperror.Upstream, fmt.Sprintf("cert_status returned status %d", resp.StatusCode))
	}

	var out struct {
		Status CertStatus `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return CertNone, apperror.Wrap(apperror.Upstream, "failed to decode cert status", err)
	}
	return out.Status, nil
}

func (a *Adapter) do(req *http.Request) error {
	resp, err := a.client.Do(req)
	if err != nil {
		return apperror.Wrap(apperror.Upstream, "proxy admin endpoint unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return apperror.New(apperror.Upstream, fmt.Sprintf("proxy admin endpoint returned status %d", resp.StatusCode))
	}
	return nil
}
