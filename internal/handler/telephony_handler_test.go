package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/jperram92/dograh/internal/domain"
	"github.com/jperram92/dograh/internal/repository"
	"github.com/jperram92/dograh/internal/services/call"
	"github.com/jperram92/dograh/internal/telephony"
	"github.com/jperram92/dograh/pkg/tunnel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	valid bool
}

func (p *stubProvider) Name() string         { return "twilio" }
func (p *stubProvider) ValidateConfig() bool { return p.valid }

func (p *stubProvider) InitiateCall(ctx context.Context, toNumber, webhookURL, workflowRunID string) error {
	return nil
}

func (p *stubProvider) WebhookResponse(workflowID, userID, workflowRunID string) (string, error) {
	return fmt.Sprintf("<Response><!-- %s/%s/%s --></Response>", workflowID, userID, workflowRunID), nil
}

func (p *stubProvider) VerifySignature(fullURL string, form url.Values, signature string) bool {
	return true
}

type stubAcquirer struct {
	provider telephony.Provider
}

func (a *stubAcquirer) AcquireProvider(ctx context.Context, organizationID string) (telephony.Provider, error) {
	return a.provider, nil
}

type stubRuns struct {
	runs map[string]*domain.WorkflowRun
}

func (s *stubRuns) Create(ctx context.Context, run *domain.WorkflowRun) (*domain.WorkflowRun, error) {
	if run.ID == "" {
		run.ID = "run-created"
	}
	s.runs[run.ID] = run
	return run, nil
}

func (s *stubRuns) GetByID(ctx context.Context, id string) (*domain.WorkflowRun, error) {
	run, ok := s.runs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return run, nil
}

func (s *stubRuns) GetByIDForUser(ctx context.Context, id, userID string) (*domain.WorkflowRun, error) {
	run, ok := s.runs[id]
	if !ok || run.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return run, nil
}

func (s *stubRuns) Update(ctx context.Context, id string, upd *domain.WorkflowRunUpdate) error {
	run, ok := s.runs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if upd.Logs != nil {
		run.Logs = upd.Logs
	}
	if upd.GatheredContext != nil {
		run.GatheredContext = upd.GatheredContext
	}
	if upd.IsCompleted != nil {
		run.IsCompleted = *upd.IsCompleted
	}
	return nil
}

type stubWorkflows struct{}

func (s *stubWorkflows) GetByID(ctx context.Context, id string) (*domain.Workflow, error) {
	return &domain.Workflow{ID: id, OrganizationID: "org-1"}, nil
}

type stubUserConfigs struct {
	number string
}

func (s *stubUserConfigs) GetByUserID(ctx context.Context, userID string) (*domain.UserConfiguration, error) {
	return &domain.UserConfiguration{UserID: userID, TestPhoneNumber: s.number}, nil
}

type telephonyFixture struct {
	provider *stubProvider
	runs     *stubRuns
	server   *httptest.Server
}

func newTelephonyServer(t *testing.T) *telephonyFixture {
	t.Helper()

	provider := &stubProvider{valid: true}
	runs := &stubRuns{runs: map[string]*domain.WorkflowRun{}}
	acquirer := &stubAcquirer{provider: provider}

	service := call.NewService(
		acquirer,
		&stubWorkflows{},
		runs,
		&stubUserConfigs{number: "+15550009999"},
		nil,
		nil,
		tunnel.Static("example.test"),
	)

	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()
	NewTelephonyHandler(service, acquirer).SetupTelephonyRoutes(api, "")

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &telephonyFixture{provider: provider, runs: runs, server: server}
}

func (f *telephonyFixture) initiateCall(t *testing.T, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost,
		f.server.URL+"/api/v1/telephony/initiate-call", bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestInitiateCallEndpoint(t *testing.T) {
	f := newTelephonyServer(t)

	resp := f.initiateCall(t, `{"workflow_id":"wf-1"}`, map[string]string{
		"X-User-ID":         "user-1",
		"X-Organization-ID": "org-1",
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Contains(t, body["message"], "Call initiated successfully with run name WR-TEL-")
	assert.Len(t, f.runs.runs, 1)
}

func TestInitiateCallEndpointUnauthenticated(t *testing.T) {
	f := newTelephonyServer(t)

	resp := f.initiateCall(t, `{"workflow_id":"wf-1"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestInitiateCallEndpointNotConfigured(t *testing.T) {
	f := newTelephonyServer(t)
	f.provider.valid = false

	resp := f.initiateCall(t, `{"workflow_id":"wf-1"}`, map[string]string{
		"X-User-ID": "user-1",
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "telephony_not_configured", body["detail"])
}

func TestInitiateCallEndpointBadBody(t *testing.T) {
	f := newTelephonyServer(t)

	resp := f.initiateCall(t, `{not json`, map[string]string{"X-User-ID": "user-1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "invalid_request_body", body["detail"])
}

func TestCallControlWebhookEndpoint(t *testing.T) {
	f := newTelephonyServer(t)

	resp, err := http.Post(
		f.server.URL+"/api/v1/telephony/twiml?workflow_id=wf-1&user_id=user-1&workflow_run_id=run-1&organization_id=org-1",
		"application/x-www-form-urlencoded", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/xml", resp.Header.Get("Content-Type"))

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "wf-1/user-1/run-1")
}

func postStatusCallback(t *testing.T, f *telephonyFixture, runID string, form url.Values) call.CallbackResult {
	t.Helper()
	resp, err := http.Post(
		f.server.URL+"/api/v1/telephony/status-callback/"+runID,
		"application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var result call.CallbackResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

func TestStatusCallbackEndpointUnknownRun(t *testing.T) {
	f := newTelephonyServer(t)

	form := url.Values{}
	form.Set("CallStatus", "completed")
	result := postStatusCallback(t, f, "run-unknown", form)

	assert.Equal(t, call.CallbackStatusIgnored, result.Status)
	assert.Equal(t, "workflow_run_not_found", result.Reason)
}

func TestStatusCallbackEndpointCompletesRun(t *testing.T) {
	f := newTelephonyServer(t)
	f.runs.runs["run-1"] = &domain.WorkflowRun{ID: "run-1", WorkflowID: "wf-1", UserID: "user-1"}

	form := url.Values{}
	form.Set("CallSid", "CA1")
	form.Set("CallStatus", "completed")
	form.Set("CallDuration", "21")
	result := postStatusCallback(t, f, "run-1", form)

	assert.Equal(t, call.CallbackStatusSuccess, result.Status)
	assert.True(t, f.runs.runs["run-1"].IsCompleted)
}
