// Package call orchestrates outbound call initiation and reconciles carrier
// status callbacks into workflow run state.
package call

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"time"

	"github.com/jperram92/dograh/internal/campaign"
	"github.com/jperram92/dograh/internal/domain"
	"github.com/jperram92/dograh/internal/repository"
	"github.com/jperram92/dograh/internal/telephony"
	"github.com/jperram92/dograh/pkg/logger"
	"github.com/jperram92/dograh/pkg/tunnel"
	"go.uber.org/zap"
)

// Caller-facing errors with stable detail codes.
var (
	// ErrNotConfigured means the organization's telephony provider is missing
	// required credentials.
	ErrNotConfigured = errors.New("telephony_not_configured")

	// ErrRunNotFound means the supplied workflow run ID does not exist for
	// this user.
	ErrRunNotFound = errors.New("workflow run not found")

	// ErrNoDestinationNumber means the user has no test phone number
	// configured.
	ErrNoDestinationNumber = errors.New("test phone number not set")
)

// Service drives the telephony call lifecycle: initiation, and the status
// callback state machine including campaign slot release and event fan-out.
type Service struct {
	providers   telephony.ProviderAcquirer
	workflows   repository.WorkflowRepository
	runs        repository.WorkflowRunRepository
	userConfigs repository.UserConfigurationRepository
	dispatcher  campaign.Dispatcher
	publisher   campaign.EventPublisher
	tunnel      tunnel.Provider
}

// NewService creates the call service. dispatcher and publisher may be nil
// when the campaign subsystem is not deployed; campaign side effects are then
// skipped with a warning.
func NewService(
	providers telephony.ProviderAcquirer,
	workflows repository.WorkflowRepository,
	runs repository.WorkflowRunRepository,
	userConfigs repository.UserConfigurationRepository,
	dispatcher campaign.Dispatcher,
	publisher campaign.EventPublisher,
	tun tunnel.Provider,
) *Service {
	return &Service{
		providers:   providers,
		workflows:   workflows,
		runs:        runs,
		userConfigs: userConfigs,
		dispatcher:  dispatcher,
		publisher:   publisher,
		tunnel:      tun,
	}
}

// InitiateCall places an outbound call for the user's workflow. When no run
// ID is supplied a fresh workflow run is created, seeded with the destination
// number; otherwise the existing run is reused. It returns the run name used
// in the confirmation message.
func (s *Service) InitiateCall(ctx context.Context, userID, organizationID string, req InitiateCallRequest) (string, error) {
	provider, err := s.providers.AcquireProvider(ctx, organizationID)
	if err != nil {
		return "", fmt.Errorf("failed to acquire telephony provider: %w", err)
	}
	if !provider.ValidateConfig() {
		return "", ErrNotConfigured
	}

	toNumber, err := s.destinationNumber(ctx, userID)
	if err != nil {
		return "", err
	}

	runID := req.WorkflowRunID
	var runName string
	if runID == "" {
		runName = fmt.Sprintf("WR-TEL-%04d", rand.Intn(9000)+1000)
		run, err := s.runs.Create(ctx, &domain.WorkflowRun{
			WorkflowID: req.WorkflowID,
			UserID:     userID,
			Name:       runName,
			Mode:       domain.WorkflowRunMode(provider.Name()),
			InitialContext: domain.JSONB{
				"phone_number": toNumber,
			},
		})
		if err != nil {
			return "", fmt.Errorf("failed to create workflow run: %w", err)
		}
		runID = run.ID
	} else {
		run, err := s.runs.GetByIDForUser(ctx, runID, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return "", ErrRunNotFound
			}
			return "", fmt.Errorf("failed to load workflow run: %w", err)
		}
		runName = run.Name
	}

	webhookURL, err := s.callControlURL(req.WorkflowID, userID, runID, organizationID)
	if err != nil {
		return "", err
	}

	if err := provider.InitiateCall(ctx, toNumber, webhookURL, runID); err != nil {
		return "", err
	}

	logger.Base().Info("call initiated",
		zap.String("workflow_run_id", runID),
		zap.String("run_name", runName),
		zap.String("provider", provider.Name()),
	)
	return runName, nil
}

// HandleStatusCallback drives the call lifecycle state machine for one
// carrier status callback. It never fails outward: every outcome is a
// CallbackResult so the endpoint can always answer 200 and the carrier never
// retries into a redelivery storm.
func (s *Service) HandleStatusCallback(ctx context.Context, runID string, form url.Values, signature string) CallbackResult {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Base().Warn("status callback for unknown workflow run",
				zap.String("workflow_run_id", runID))
			return CallbackResult{Status: CallbackStatusIgnored, Reason: "workflow_run_not_found"}
		}
		logger.Base().Error("failed to load workflow run for status callback",
			zap.String("workflow_run_id", runID), zap.Error(err))
		return CallbackResult{Status: CallbackStatusError, Reason: "internal_error"}
	}

	if signature != "" {
		if result, ok := s.verifyCallback(ctx, run, form, signature); !ok {
			return result
		}
	}

	event := StatusEventFromTwilio(form)
	logger.Base().Info("status callback received",
		zap.String("workflow_run_id", runID),
		zap.String("status", string(event.Status)),
		zap.String("call_id", event.CallID),
	)

	if err := s.appendCallbackLog(ctx, run, event); err != nil {
		logger.Base().Error("failed to persist status callback log",
			zap.String("workflow_run_id", runID), zap.Error(err))
		return CallbackResult{Status: CallbackStatusError, Reason: "persistence_failed"}
	}

	return s.applyTransition(ctx, run, event)
}

// verifyCallback authenticates a signed callback against the run's owning
// organization. A failed verification is a hard stop; a failed organization
// lookup only skips verification, matching the carrier's at-least-once
// semantics for runs whose workflow has since been removed.
func (s *Service) verifyCallback(ctx context.Context, run *domain.WorkflowRun, form url.Values, signature string) (CallbackResult, bool) {
	workflow, err := s.workflows.GetByID(ctx, run.WorkflowID)
	if err != nil {
		logger.Base().Warn("skipping signature verification, workflow not resolvable",
			zap.String("workflow_run_id", run.ID), zap.Error(err))
		return CallbackResult{}, true
	}

	provider, err := s.providers.AcquireProvider(ctx, workflow.OrganizationID)
	if err != nil {
		logger.Base().Warn("skipping signature verification, provider not resolvable",
			zap.String("workflow_run_id", run.ID), zap.Error(err))
		return CallbackResult{}, true
	}

	fullURL, err := s.statusCallbackURL(run.ID)
	if err != nil {
		logger.Base().Warn("skipping signature verification, callback URL not resolvable",
			zap.String("workflow_run_id", run.ID), zap.Error(err))
		return CallbackResult{}, true
	}

	if !provider.VerifySignature(fullURL, form, signature) {
		logger.Base().Warn("invalid status callback signature",
			zap.String("workflow_run_id", run.ID))
		return CallbackResult{Status: CallbackStatusError, Reason: "invalid_signature"}, false
	}

	return CallbackResult{}, true
}

// appendCallbackLog appends the event to the run's append-only status
// callback log stream and persists it.
func (s *Service) appendCallbackLog(ctx context.Context, run *domain.WorkflowRun, event StatusEvent) error {
	entry := map[string]interface{}{
		"status":    string(event.Status),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"call_id":   event.CallID,
		"duration":  event.Duration,
	}
	for key, value := range event.Extra {
		entry[key] = value
	}

	if run.Logs == nil {
		run.Logs = domain.JSONB{}
	}
	entries, _ := run.Logs[domain.StatusCallbackLogKey].([]interface{})
	entries = append(entries, entry)
	run.Logs[domain.StatusCallbackLogKey] = entries

	return s.runs.Update(ctx, run.ID, &domain.WorkflowRunUpdate{Logs: run.Logs})
}

// applyTransition performs the status-driven state transition. Terminal
// statuses are guarded: once a run is completed, redelivered or out-of-order
// terminal callbacks only land in the log and perform no further side
// effects. Side effects run before the completion write, so a failure leaves
// the run incomplete and a redelivered callback can safely re-execute them
// (slot release is idempotent; events are at-least-once).
func (s *Service) applyTransition(ctx context.Context, run *domain.WorkflowRun, event StatusEvent) CallbackResult {
	if !event.Status.Terminal() {
		return CallbackResult{Status: CallbackStatusSuccess}
	}

	if run.IsCompleted {
		logger.Base().Info("duplicate terminal status callback, run already completed",
			zap.String("workflow_run_id", run.ID),
			zap.String("status", string(event.Status)),
		)
		return CallbackResult{Status: CallbackStatusSuccess, Reason: "duplicate_terminal_status"}
	}

	if event.Status == StatusCompleted {
		return s.completeRun(ctx, run, event)
	}
	return s.failRun(ctx, run, event)
}

func (s *Service) completeRun(ctx context.Context, run *domain.WorkflowRun, event StatusEvent) CallbackResult {
	logger.Base().Info("call completed",
		zap.String("workflow_run_id", run.ID),
		zap.String("duration", event.Duration),
	)

	if run.CampaignID != nil {
		if result, ok := s.releaseSlot(ctx, run); !ok {
			return result
		}
		if s.publisher != nil {
			err := s.publisher.PublishCallCompleted(ctx, campaign.CallCompletedEvent{
				CampaignID:    *run.CampaignID,
				WorkflowRunID: run.ID,
				QueuedRunID:   stringOrEmpty(run.QueuedRunID),
				CallDuration:  event.DurationSeconds(),
			})
			if err != nil {
				logger.Base().Error("failed to publish call completed event",
					zap.String("workflow_run_id", run.ID), zap.Error(err))
				return CallbackResult{Status: CallbackStatusError, Reason: "event_publish_failed"}
			}
		} else {
			logger.Base().Warn("campaign event publisher not configured, completion event dropped",
				zap.String("workflow_run_id", run.ID))
		}
	}

	if err := s.markCompleted(ctx, run, nil); err != nil {
		logger.Base().Error("failed to mark workflow run completed",
			zap.String("workflow_run_id", run.ID), zap.Error(err))
		return CallbackResult{Status: CallbackStatusError, Reason: "persistence_failed"}
	}

	return CallbackResult{Status: CallbackStatusSuccess}
}

func (s *Service) failRun(ctx context.Context, run *domain.WorkflowRun, event StatusEvent) CallbackResult {
	logger.Base().Warn("call ended without connecting",
		zap.String("workflow_run_id", run.ID),
		zap.String("status", string(event.Status)),
	)

	if run.CampaignID != nil {
		if result, ok := s.releaseSlot(ctx, run); !ok {
			return result
		}
		if event.Status.RetryEligible() {
			if s.publisher != nil {
				err := s.publisher.PublishRetryNeeded(ctx, campaign.RetryNeededEvent{
					WorkflowRunID: run.ID,
					Reason:        event.Status.RetryReason(),
					CampaignID:    *run.CampaignID,
					QueuedRunID:   stringOrEmpty(run.QueuedRunID),
				})
				if err != nil {
					logger.Base().Error("failed to publish retry needed event",
						zap.String("workflow_run_id", run.ID), zap.Error(err))
					return CallbackResult{Status: CallbackStatusError, Reason: "event_publish_failed"}
				}
			} else {
				logger.Base().Warn("campaign event publisher not configured, retry event dropped",
					zap.String("workflow_run_id", run.ID))
			}
		}
	}

	if run.GatheredContext == nil {
		run.GatheredContext = domain.JSONB{}
	}
	tags := run.GatheredContext.StringList("call_tags")
	tags = append(tags, "not_connected", "telephony_"+string(event.Status))
	run.GatheredContext["call_tags"] = tags

	if err := s.markCompleted(ctx, run, run.GatheredContext); err != nil {
		logger.Base().Error("failed to mark workflow run completed",
			zap.String("workflow_run_id", run.ID), zap.Error(err))
		return CallbackResult{Status: CallbackStatusError, Reason: "persistence_failed"}
	}

	return CallbackResult{Status: CallbackStatusSuccess}
}

func (s *Service) releaseSlot(ctx context.Context, run *domain.WorkflowRun) (CallbackResult, bool) {
	if s.dispatcher == nil {
		logger.Base().Warn("campaign dispatcher not configured, slot not released",
			zap.String("workflow_run_id", run.ID))
		return CallbackResult{}, true
	}
	if err := s.dispatcher.ReleaseCallSlot(ctx, run.ID); err != nil {
		logger.Base().Error("failed to release campaign dialing slot",
			zap.String("workflow_run_id", run.ID), zap.Error(err))
		return CallbackResult{Status: CallbackStatusError, Reason: "slot_release_failed"}, false
	}
	return CallbackResult{}, true
}

func (s *Service) markCompleted(ctx context.Context, run *domain.WorkflowRun, gathered domain.JSONB) error {
	completed := true
	return s.runs.Update(ctx, run.ID, &domain.WorkflowRunUpdate{
		GatheredContext: gathered,
		IsCompleted:     &completed,
	})
}

func (s *Service) destinationNumber(ctx context.Context, userID string) (string, error) {
	conf, err := s.userConfigs.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrNoDestinationNumber
		}
		return "", fmt.Errorf("failed to load user configuration: %w", err)
	}
	if conf.TestPhoneNumber == "" {
		return "", ErrNoDestinationNumber
	}
	return conf.TestPhoneNumber, nil
}

// callControlURL builds the fully qualified call-control webhook URL with all
// identifiers later stages need to resolve tenant context without a session.
func (s *Service) callControlURL(workflowID, userID, runID, organizationID string) (string, error) {
	host, err := s.tunnel.TunnelURL()
	if err != nil {
		return "", fmt.Errorf("failed to resolve public endpoint: %w", err)
	}

	query := url.Values{}
	query.Set("workflow_id", workflowID)
	query.Set("user_id", userID)
	query.Set("workflow_run_id", runID)
	query.Set("organization_id", organizationID)

	return fmt.Sprintf("https://%s/api/v1/telephony/twiml?%s", host, query.Encode()), nil
}

func (s *Service) statusCallbackURL(runID string) (string, error) {
	host, err := s.tunnel.TunnelURL()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("https://%s/api/v1/telephony/status-callback/%s", host, runID), nil
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
