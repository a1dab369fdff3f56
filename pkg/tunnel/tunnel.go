// Package tunnel resolves the public hostname under which this service is
// reachable by the telephony carrier. In development this is typically a
// tunnel (ngrok or similar) in front of localhost; in production it is the
// deployed hostname.
package tunnel

import (
	"fmt"
	"os"
	"strings"
)

// Provider resolves the externally routable host for webhook URLs.
type Provider interface {
	TunnelURL() (string, error)
}

// EnvProvider reads the public hostname from the environment.
// PUBLIC_HOSTNAME takes precedence over BACKEND_HOST.
type EnvProvider struct{}

// NewEnvProvider creates an environment-backed tunnel provider.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{}
}

// TunnelURL returns the bare hostname (no scheme, no trailing slash).
func (p *EnvProvider) TunnelURL() (string, error) {
	host := os.Getenv("PUBLIC_HOSTNAME")
	if host == "" {
		host = os.Getenv("BACKEND_HOST")
	}
	if host == "" {
		return "", fmt.Errorf("no public hostname configured: set PUBLIC_HOSTNAME or BACKEND_HOST")
	}

	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimSuffix(host, "/")
	return host, nil
}

// Static is a fixed-hostname provider, mainly for tests.
type Static string

// TunnelURL returns the fixed hostname.
func (s Static) TunnelURL() (string, error) {
	return string(s), nil
}
