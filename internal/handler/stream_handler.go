package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/jperram92/dograh/internal/pipeline"
	"github.com/jperram92/dograh/pkg/logger"
	"go.uber.org/zap"
)

// Websocket close codes for the media stream endpoint.
const (
	// CloseBadHandshake is sent when the carrier's start message is missing
	// the stream or call identifiers.
	CloseBadHandshake = 4400
)

// streamMessage is the carrier's media stream frame envelope. Only the
// handshake fields are decoded here; media frames belong to the pipeline.
type streamMessage struct {
	Event string       `json:"event"`
	Start *streamStart `json:"start,omitempty"`
}

type streamStart struct {
	StreamSID string `json:"streamSid"`
	CallSID   string `json:"callSid"`
}

// StreamHandler accepts the carrier's bidirectional media stream socket,
// performs the two-message handshake and hands the live connection to the
// voice pipeline.
type StreamHandler struct {
	upgrader websocket.Upgrader
	runner   pipeline.Runner
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(runner pipeline.Runner) *StreamHandler {
	return &StreamHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The carrier connects server-to-server without an Origin header.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		runner: runner,
	}
}

// SetupStreamRoutes registers the media stream websocket route.
func (h *StreamHandler) SetupStreamRoutes(router *mux.Router) {
	router.HandleFunc("/telephony/ws/{workflow_id}/{user_id}/{workflow_run_id}", h.HandleMediaStream)

	logger.Base().Info("media stream route registered")
}

// HandleMediaStream upgrades the connection and runs the handshake. Nothing
// thrown past this point may crash the listener: every failure path ends in
// a close frame on the socket.
func (h *StreamHandler) HandleMediaStream(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	workflowID := vars["workflow_id"]
	userID := vars["user_id"]
	workflowRunID := vars["workflow_run_id"]

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Base().Error("websocket upgrade failed",
			zap.String("workflow_run_id", workflowRunID), zap.Error(err))
		return
	}

	session := pipeline.Session{
		WorkflowID:    workflowID,
		UserID:        userID,
		WorkflowRunID: workflowRunID,
	}

	if err := h.bridge(r.Context(), conn, session); err != nil {
		logger.Base().Error("media stream connection failed",
			zap.String("workflow_run_id", workflowRunID), zap.Error(err))
		h.closeWith(conn, websocket.CloseInternalServerErr, "Internal server error")
	}
}

// bridge runs the handshake state machine and hands the socket to the
// pipeline. It returns nil when the connection was already closed with a
// specific code (bad handshake) and the generic close must not be sent.
func (h *StreamHandler) bridge(ctx context.Context, conn *websocket.Conn, session pipeline.Session) error {
	// First message must announce the connection.
	msg, err := h.readMessage(conn)
	if err != nil {
		return fmt.Errorf("reading connected message: %w", err)
	}
	if msg.Event != "connected" {
		return fmt.Errorf("expected connected message first, got %q", msg.Event)
	}

	// Second message carries the stream metadata.
	msg, err = h.readMessage(conn)
	if err != nil {
		return fmt.Errorf("reading start message: %w", err)
	}
	if msg.Event != "start" {
		return fmt.Errorf("expected start message second, got %q", msg.Event)
	}
	if msg.Start == nil || msg.Start.StreamSID == "" || msg.Start.CallSID == "" {
		logger.Base().Error("missing callSid or streamSid in start message, closing connection",
			zap.String("workflow_run_id", session.WorkflowRunID))
		h.closeWith(conn, CloseBadHandshake, "Missing or bad start message")
		return nil
	}

	session.StreamSID = msg.Start.StreamSID
	session.CallSID = msg.Start.CallSID

	logger.Base().Info("media stream handshake complete",
		zap.String("workflow_run_id", session.WorkflowRunID),
		zap.String("stream_sid", session.StreamSID),
		zap.String("call_sid", session.CallSID),
	)

	// Bind the run into the context so pipeline-side work stays associated
	// with this call without any process-global state.
	ctx = pipeline.WithRunID(ctx, session.WorkflowRunID)

	// The pipeline owns the socket from here until the call ends.
	return h.runner.Run(ctx, conn, session)
}

func (h *StreamHandler) readMessage(conn *websocket.Conn) (*streamMessage, error) {
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var msg streamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("malformed stream message: %w", err)
	}
	return &msg, nil
}

func (h *StreamHandler) closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}
