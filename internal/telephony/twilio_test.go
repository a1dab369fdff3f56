package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"testing"

	"github.com/jperram92/dograh/pkg/tunnel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCredentials() *TwilioCredentials {
	return &TwilioCredentials{
		AccountSID:  "AC00000000000000000000000000000000",
		AuthToken:   "secret-token",
		FromNumbers: []string{"+15550001111"},
	}
}

func TestTwilioValidateConfig(t *testing.T) {
	cases := []struct {
		name  string
		creds *TwilioCredentials
		valid bool
	}{
		{"complete", testCredentials(), true},
		{"missing account sid", &TwilioCredentials{AuthToken: "t", FromNumbers: []string{"+1"}}, false},
		{"missing auth token", &TwilioCredentials{AccountSID: "AC", FromNumbers: []string{"+1"}}, false},
		{"no from numbers", &TwilioCredentials{AccountSID: "AC", AuthToken: "t"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider := NewTwilioProvider(tc.creds, tunnel.Static("example.test"))
			assert.Equal(t, tc.valid, provider.ValidateConfig())
		})
	}
}

func TestTwilioWebhookResponse(t *testing.T) {
	provider := NewTwilioProvider(testCredentials(), tunnel.Static("example.test"))

	twiml, err := provider.WebhookResponse("wf-1", "user-1", "run-1")
	require.NoError(t, err)

	assert.Contains(t, twiml, `<?xml version="1.0" encoding="UTF-8"?>`)
	assert.Contains(t, twiml, "<Connect>")
	assert.Contains(t, twiml, `<Stream url="wss://example.test/api/v1/telephony/ws/wf-1/user-1/run-1" />`)
}

func TestTwilioWebhookResponseTunnelFailure(t *testing.T) {
	provider := NewTwilioProvider(testCredentials(), tunnel.NewEnvProvider())
	t.Setenv("PUBLIC_HOSTNAME", "")
	t.Setenv("BACKEND_HOST", "")

	_, err := provider.WebhookResponse("wf-1", "user-1", "run-1")
	require.Error(t, err)

	var providerErr *ProviderError
	assert.ErrorAs(t, err, &providerErr)
}

// twilioSign reproduces Twilio's documented signing scheme: the full URL
// concatenated with each form key and value in key-sorted order, HMAC-SHA1
// with the auth token, base64 encoded.
func twilioSign(authToken, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for key := range form {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	payload := fullURL
	for _, key := range keys {
		payload += key + form.Get(key)
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestTwilioVerifySignature(t *testing.T) {
	provider := NewTwilioProvider(testCredentials(), tunnel.Static("example.test"))

	fullURL := "https://example.test/api/v1/telephony/status-callback/run-1"
	form := url.Values{}
	form.Set("CallSid", "CA123")
	form.Set("CallStatus", "completed")
	form.Set("CallDuration", "37")

	signature := twilioSign("secret-token", fullURL, form)
	assert.True(t, provider.VerifySignature(fullURL, form, signature))
}

func TestTwilioVerifySignatureRejectsTampering(t *testing.T) {
	provider := NewTwilioProvider(testCredentials(), tunnel.Static("example.test"))

	fullURL := "https://example.test/api/v1/telephony/status-callback/run-1"
	form := url.Values{}
	form.Set("CallSid", "CA123")
	form.Set("CallStatus", "completed")

	signature := twilioSign("secret-token", fullURL, form)

	tampered := url.Values{}
	tampered.Set("CallSid", "CA123")
	tampered.Set("CallStatus", "failed")
	assert.False(t, provider.VerifySignature(fullURL, tampered, signature))

	assert.False(t, provider.VerifySignature(fullURL, form, "bogus-signature"))
}
