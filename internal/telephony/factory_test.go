package telephony

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jperram92/dograh/internal/domain"
	"github.com/jperram92/dograh/internal/repository"
	"github.com/jperram92/dograh/pkg/tunnel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrgConfigs struct {
	configs map[string]*domain.OrganizationConfiguration
}

func (f *fakeOrgConfigs) GetByKey(ctx context.Context, organizationID, key string) (*domain.OrganizationConfiguration, error) {
	conf, ok := f.configs[organizationID+"/"+key]
	if !ok {
		return nil, fmt.Errorf("configuration %s for organization %s: %w", key, organizationID, repository.ErrNotFound)
	}
	return conf, nil
}

func setTwilioEnv(t *testing.T) {
	t.Setenv("TELEPHONY_PROVIDER", "twilio")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC00000000000000000000000000000000")
	t.Setenv("TWILIO_AUTH_TOKEN", "secret-token")
	t.Setenv("TWILIO_FROM_NUMBER", "+15550001111")
}

func TestLoadConfigFromEnv(t *testing.T) {
	setTwilioEnv(t)

	factory := NewFactory(&fakeOrgConfigs{}, tunnel.Static("example.test"))
	cfg, err := factory.LoadConfig(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, ProviderTwilio, cfg.Provider)
	assert.Equal(t, "AC00000000000000000000000000000000", cfg.Twilio.AccountSID)
	assert.Equal(t, []string{"+15550001111"}, cfg.Twilio.FromNumbers)
}

func TestLoadConfigDefaultsToTwilio(t *testing.T) {
	setTwilioEnv(t)
	t.Setenv("TELEPHONY_PROVIDER", "")

	factory := NewFactory(&fakeOrgConfigs{}, tunnel.Static("example.test"))
	cfg, err := factory.LoadConfig(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, ProviderTwilio, cfg.Provider)
}

func TestLoadConfigNamesEachMissingVariable(t *testing.T) {
	cases := []string{"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_FROM_NUMBER"}

	for _, missing := range cases {
		t.Run(missing, func(t *testing.T) {
			setTwilioEnv(t)
			t.Setenv(missing, "")

			factory := NewFactory(&fakeOrgConfigs{}, tunnel.Static("example.test"))
			_, err := factory.LoadConfig(context.Background(), "")
			require.Error(t, err)

			var invalid *ConfigInvalidError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, []string{missing}, invalid.Missing)
			assert.Contains(t, err.Error(), missing)
		})
	}
}

func TestLoadConfigUnknownEnvProvider(t *testing.T) {
	t.Setenv("TELEPHONY_PROVIDER", "vonage")

	factory := NewFactory(&fakeOrgConfigs{}, tunnel.Static("example.test"))
	_, err := factory.LoadConfig(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestLoadConfigFromStore(t *testing.T) {
	orgConfigs := &fakeOrgConfigs{configs: map[string]*domain.OrganizationConfiguration{
		"org-1/" + domain.ConfigKeyTelephony: {
			OrganizationID: "org-1",
			Key:            domain.ConfigKeyTelephony,
			Value: domain.JSONB{
				"provider":     "twilio",
				"account_sid":  "AC-stored",
				"auth_token":   "stored-token",
				"from_numbers": []interface{}{"+15550002222", "+15550003333"},
			},
		},
	}}

	factory := NewFactory(orgConfigs, tunnel.Static("example.test"))
	cfg, err := factory.LoadConfig(context.Background(), "org-1")
	require.NoError(t, err)

	assert.Equal(t, ProviderTwilio, cfg.Provider)
	assert.Equal(t, "AC-stored", cfg.Twilio.AccountSID)
	assert.Equal(t, "stored-token", cfg.Twilio.AuthToken)
	assert.Equal(t, []string{"+15550002222", "+15550003333"}, cfg.Twilio.FromNumbers)
}

func TestLoadConfigStoreMissing(t *testing.T) {
	factory := NewFactory(&fakeOrgConfigs{}, tunnel.Static("example.test"))
	_, err := factory.LoadConfig(context.Background(), "org-unknown")
	assert.ErrorIs(t, err, ErrConfigurationNotFound)
}

func TestLoadConfigStoreEmptyValue(t *testing.T) {
	orgConfigs := &fakeOrgConfigs{configs: map[string]*domain.OrganizationConfiguration{
		"org-1/" + domain.ConfigKeyTelephony: {
			OrganizationID: "org-1",
			Key:            domain.ConfigKeyTelephony,
			Value:          domain.JSONB{},
		},
	}}

	factory := NewFactory(orgConfigs, tunnel.Static("example.test"))
	_, err := factory.LoadConfig(context.Background(), "org-1")
	assert.ErrorIs(t, err, ErrConfigurationNotFound)
}

func TestAcquireProviderConstructsTwilio(t *testing.T) {
	setTwilioEnv(t)

	factory := NewFactory(&fakeOrgConfigs{}, tunnel.Static("example.test"))
	provider, err := factory.AcquireProvider(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, "twilio", provider.Name())
	assert.True(t, provider.ValidateConfig())
}

func TestAcquireProviderUnknownTag(t *testing.T) {
	orgConfigs := &fakeOrgConfigs{configs: map[string]*domain.OrganizationConfiguration{
		"org-1/" + domain.ConfigKeyTelephony: {
			OrganizationID: "org-1",
			Key:            domain.ConfigKeyTelephony,
			Value:          domain.JSONB{"provider": "carrier-pigeon"},
		},
	}}

	factory := NewFactory(orgConfigs, tunnel.Static("example.test"))
	_, err := factory.AcquireProvider(context.Background(), "org-1")
	assert.True(t, errors.Is(err, ErrUnknownProvider))
}
