// Package telephony abstracts the carrier backend used to place and control
// phone calls. The call/workflow domain layer depends only on the Provider
// interface; backend specifics (credential shapes, call-control markup,
// signature schemes) stay behind it.
package telephony

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ProviderTag identifies a telephony backend.
type ProviderTag string

const (
	ProviderTwilio ProviderTag = "twilio"
)

// Provider is the capability set every telephony backend implements.
type Provider interface {
	// Name returns the backend tag.
	Name() string

	// ValidateConfig reports whether all credential fields required by this
	// backend are present.
	ValidateConfig() bool

	// InitiateCall places an outbound call that will fetch call-control
	// instructions from webhookURL. No deduplication is performed here;
	// retrying is the caller's decision.
	InitiateCall(ctx context.Context, toNumber, webhookURL, workflowRunID string) error

	// WebhookResponse returns the backend-native call-control document that
	// instructs the carrier to open a media stream for this run.
	WebhookResponse(workflowID, userID, workflowRunID string) (string, error)

	// VerifySignature checks a webhook signature over the exact callback URL
	// and form payload. It returns false on any mismatch and never errors for
	// merely invalid signatures.
	VerifySignature(fullURL string, form url.Values, signature string) bool
}

// TwilioCredentials holds the credential shape for the Twilio backend.
type TwilioCredentials struct {
	AccountSID  string
	AuthToken   string
	FromNumbers []string
}

// Config is the resolved provider selection plus credentials. Exactly one
// provider tag is active; only the matching credential field is set.
type Config struct {
	Provider ProviderTag
	Twilio   *TwilioCredentials
}

// Error taxonomy. Handlers map these onto stable HTTP detail codes.
var (
	// ErrConfigurationNotFound means an organization has no stored telephony
	// configuration.
	ErrConfigurationNotFound = errors.New("telephony configuration not found")

	// ErrUnknownProvider means the resolved provider tag has no registered
	// implementation.
	ErrUnknownProvider = errors.New("unknown telephony provider")
)

// ConfigInvalidError reports environment configuration with missing required
// variables, naming each one.
type ConfigInvalidError struct {
	Provider ProviderTag
	Missing  []string
}

func (e *ConfigInvalidError) Error() string {
	return fmt.Sprintf("missing %s configuration: please set %s",
		e.Provider, strings.Join(e.Missing, ", "))
}

// ProviderError wraps an upstream carrier API failure.
type ProviderError struct {
	Provider ProviderTag
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
