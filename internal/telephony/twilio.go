package telephony

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jperram92/dograh/pkg/logger"
	"github.com/jperram92/dograh/pkg/tunnel"
	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// Twilio status callback events requested for every outbound call.
var twilioStatusCallbackEvents = []string{"initiated", "ringing", "answered", "completed"}

// TwilioProvider implements Provider against the Twilio REST API and
// Media Streams.
type TwilioProvider struct {
	creds     *TwilioCredentials
	client    *twilio.RestClient
	validator twilioclient.RequestValidator
	tunnel    tunnel.Provider
}

// NewTwilioProvider creates a credential-bound Twilio provider.
func NewTwilioProvider(creds *TwilioCredentials, tun tunnel.Provider) *TwilioProvider {
	return &TwilioProvider{
		creds: creds,
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: creds.AccountSID,
			Password: creds.AuthToken,
		}),
		validator: twilioclient.NewRequestValidator(creds.AuthToken),
		tunnel:    tun,
	}
}

// Name returns the backend tag.
func (p *TwilioProvider) Name() string {
	return string(ProviderTwilio)
}

// ValidateConfig reports whether account SID, auth token and at least one
// originating number are present.
func (p *TwilioProvider) ValidateConfig() bool {
	return p.creds.AccountSID != "" && p.creds.AuthToken != "" && len(p.creds.FromNumbers) > 0
}

// InitiateCall places an outbound call via the Twilio REST API. The carrier
// fetches TwiML from webhookURL once the call is answered and posts lifecycle
// status callbacks for the run.
func (p *TwilioProvider) InitiateCall(ctx context.Context, toNumber, webhookURL, workflowRunID string) error {
	statusCallbackURL, err := p.statusCallbackURL(workflowRunID)
	if err != nil {
		return &ProviderError{Provider: ProviderTwilio, Op: "initiate_call", Err: err}
	}

	params := &twilioapi.CreateCallParams{}
	params.SetTo(toNumber)
	params.SetFrom(p.creds.FromNumbers[0])
	params.SetUrl(webhookURL)
	params.SetMethod("POST")
	params.SetStatusCallback(statusCallbackURL)
	params.SetStatusCallbackEvent(twilioStatusCallbackEvents)
	params.SetStatusCallbackMethod("POST")

	resp, err := p.client.Api.CreateCall(params)
	if err != nil {
		return &ProviderError{Provider: ProviderTwilio, Op: "initiate_call", Err: err}
	}

	callSID := ""
	if resp.Sid != nil {
		callSID = *resp.Sid
	}
	logger.Base().Info("twilio call initiated",
		zap.String("workflow_run_id", workflowRunID),
		zap.String("call_sid", callSID),
	)
	return nil
}

// WebhookResponse returns TwiML telling Twilio to open a bidirectional media
// stream to this service's websocket endpoint for the run.
func (p *TwilioProvider) WebhookResponse(workflowID, userID, workflowRunID string) (string, error) {
	host, err := p.tunnel.TunnelURL()
	if err != nil {
		return "", &ProviderError{Provider: ProviderTwilio, Op: "webhook_response", Err: err}
	}

	streamURL := fmt.Sprintf("wss://%s/api/v1/telephony/ws/%s/%s/%s",
		host, workflowID, userID, workflowRunID)

	twiml := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Connect>
        <Stream url="%s" />
    </Connect>
</Response>`, streamURL)

	return twiml, nil
}

// VerifySignature verifies an X-Twilio-Signature header over the reconstructed
// callback URL and form payload using Twilio's HMAC-SHA1 scheme.
func (p *TwilioProvider) VerifySignature(fullURL string, form url.Values, signature string) bool {
	params := make(map[string]string, len(form))
	for key := range form {
		params[key] = form.Get(key)
	}
	return p.validator.Validate(fullURL, params, signature)
}

func (p *TwilioProvider) statusCallbackURL(workflowRunID string) (string, error) {
	host, err := p.tunnel.TunnelURL()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("https://%s/api/v1/telephony/status-callback/%s", host, workflowRunID), nil
}
