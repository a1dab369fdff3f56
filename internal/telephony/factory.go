package telephony

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jperram92/dograh/internal/domain"
	"github.com/jperram92/dograh/internal/repository"
	"github.com/jperram92/dograh/pkg/logger"
	"github.com/jperram92/dograh/pkg/tunnel"
	"go.uber.org/zap"
)

// ProviderAcquirer resolves and constructs a configured provider for an
// organization. It is the only entry point the domain layer uses.
type ProviderAcquirer interface {
	AcquireProvider(ctx context.Context, organizationID string) (Provider, error)
}

// Factory resolves telephony configuration from either the per-organization
// configuration store or process environment variables, and constructs
// credential-bound providers. Nothing is cached: organization configuration
// may change between calls, so every acquisition re-resolves.
type Factory struct {
	orgConfigs repository.OrganizationConfigurationRepository
	tunnel     tunnel.Provider
}

// NewFactory creates a provider factory.
func NewFactory(orgConfigs repository.OrganizationConfigurationRepository, tun tunnel.Provider) *Factory {
	return &Factory{orgConfigs: orgConfigs, tunnel: tun}
}

// LoadConfig loads telephony configuration from the appropriate source.
// A non-empty organizationID selects the stored per-organization
// configuration; an empty one selects process environment variables.
func (f *Factory) LoadConfig(ctx context.Context, organizationID string) (*Config, error) {
	if organizationID != "" {
		logger.Base().Debug("loading telephony config from store",
			zap.String("organization_id", organizationID))
		return f.loadStoredConfig(ctx, organizationID)
	}

	logger.Base().Debug("loading telephony config from environment")
	return loadEnvConfig()
}

// AcquireProvider resolves configuration and constructs the matching
// credential-bound provider instance.
func (f *Factory) AcquireProvider(ctx context.Context, organizationID string) (Provider, error) {
	cfg, err := f.LoadConfig(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case ProviderTwilio:
		return NewTwilioProvider(cfg.Twilio, f.tunnel), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}

func (f *Factory) loadStoredConfig(ctx context.Context, organizationID string) (*Config, error) {
	conf, err := f.orgConfigs.GetByKey(ctx, organizationID, domain.ConfigKeyTelephony)
	if err != nil {
		if repositoryNotFound(err) {
			return nil, fmt.Errorf("%w for organization %s", ErrConfigurationNotFound, organizationID)
		}
		return nil, fmt.Errorf("failed to load telephony configuration: %w", err)
	}
	if conf == nil || len(conf.Value) == 0 {
		return nil, fmt.Errorf("%w for organization %s", ErrConfigurationNotFound, organizationID)
	}

	provider := ProviderTag(stringValue(conf.Value, "provider"))
	if provider == "" {
		provider = ProviderTwilio
	}

	return &Config{
		Provider: provider,
		Twilio: &TwilioCredentials{
			AccountSID:  stringValue(conf.Value, "account_sid"),
			AuthToken:   stringValue(conf.Value, "auth_token"),
			FromNumbers: conf.Value.StringList("from_numbers"),
		},
	}, nil
}

func loadEnvConfig() (*Config, error) {
	provider := ProviderTag(strings.ToLower(os.Getenv("TELEPHONY_PROVIDER")))
	if provider == "" {
		provider = ProviderTwilio
	}

	switch provider {
	case ProviderTwilio:
		accountSID := os.Getenv("TWILIO_ACCOUNT_SID")
		authToken := os.Getenv("TWILIO_AUTH_TOKEN")
		fromNumber := os.Getenv("TWILIO_FROM_NUMBER")

		var missing []string
		if accountSID == "" {
			missing = append(missing, "TWILIO_ACCOUNT_SID")
		}
		if authToken == "" {
			missing = append(missing, "TWILIO_AUTH_TOKEN")
		}
		if fromNumber == "" {
			missing = append(missing, "TWILIO_FROM_NUMBER")
		}
		if len(missing) > 0 {
			return nil, &ConfigInvalidError{Provider: ProviderTwilio, Missing: missing}
		}

		return &Config{
			Provider: ProviderTwilio,
			Twilio: &TwilioCredentials{
				AccountSID:  accountSID,
				AuthToken:   authToken,
				FromNumbers: []string{fromNumber},
			},
		}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
}

func stringValue(m domain.JSONB, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func repositoryNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
