package call

import (
	"net/url"
	"strconv"
	"strings"
)

// Status is the provider-agnostic call lifecycle status.
type Status string

const (
	StatusInitiated  Status = "initiated"
	StatusRinging    Status = "ringing"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusBusy       Status = "busy"
	StatusNoAnswer   Status = "no-answer"
	StatusCanceled   Status = "canceled"
)

// Terminal reports whether the status ends the call.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusBusy, StatusNoAnswer, StatusCanceled:
		return true
	}
	return false
}

// RetryEligible reports whether a failed campaign call with this status
// should be requeued.
func (s Status) RetryEligible() bool {
	return s == StatusBusy || s == StatusNoAnswer
}

// RetryReason normalizes the status into an event reason, replacing hyphens
// with underscores (no-answer becomes no_answer).
func (s Status) RetryReason() string {
	return strings.ReplaceAll(string(s), "-", "_")
}

// StatusEvent is a normalized carrier status callback. Known fields are
// mapped; everything the provider sent passes through untouched in Extra.
type StatusEvent struct {
	CallID     string
	Status     Status
	FromNumber string
	ToNumber   string
	Direction  string
	Duration   string
	Extra      map[string]string
}

// StatusEventFromTwilio converts a Twilio status callback form into the
// generic event shape.
func StatusEventFromTwilio(form url.Values) StatusEvent {
	extra := make(map[string]string, len(form))
	for key := range form {
		extra[key] = form.Get(key)
	}

	duration := form.Get("CallDuration")
	if duration == "" {
		duration = form.Get("Duration")
	}

	return StatusEvent{
		CallID:     form.Get("CallSid"),
		Status:     Status(strings.ToLower(form.Get("CallStatus"))),
		FromNumber: form.Get("From"),
		ToNumber:   form.Get("To"),
		Direction:  form.Get("Direction"),
		Duration:   duration,
		Extra:      extra,
	}
}

// DurationSeconds parses the duration field, defaulting to 0 when missing or
// unparseable.
func (e StatusEvent) DurationSeconds() int {
	if e.Duration == "" {
		return 0
	}
	seconds, err := strconv.Atoi(e.Duration)
	if err != nil {
		return 0
	}
	return seconds
}

// Callback response statuses. Callback endpoints always answer HTTP 200 with
// one of these so the carrier never retries into a redelivery storm.
const (
	CallbackStatusSuccess = "success"
	CallbackStatusIgnored = "ignored"
	CallbackStatusError   = "error"
)

// CallbackResult is the response body for a status callback.
type CallbackResult struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// InitiateCallRequest is the initiate-call endpoint body. WorkflowRunID is
// optional; when absent a fresh run is created.
type InitiateCallRequest struct {
	WorkflowID    string `json:"workflow_id"`
	WorkflowRunID string `json:"workflow_run_id,omitempty"`
}
