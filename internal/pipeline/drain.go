package pipeline

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"
	"github.com/jperram92/dograh/pkg/logger"
	"go.uber.org/zap"
)

// DrainRunner is the default Runner used when no voice engine is wired in.
// It keeps the media stream open and discards frames until the carrier
// closes it, so call-control, status callbacks and campaign accounting can
// be exercised without the realtime pipeline deployed.
type DrainRunner struct{}

// NewDrainRunner creates a drain runner.
func NewDrainRunner() *DrainRunner {
	return &DrainRunner{}
}

// Run consumes frames until the connection closes.
func (d *DrainRunner) Run(ctx context.Context, conn *websocket.Conn, session Session) error {
	defer conn.Close()

	logger.Base().Warn("no voice engine configured, draining media stream",
		zap.String("workflow_run_id", session.WorkflowRunID),
		zap.String("stream_sid", session.StreamSID),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		var frame struct {
			Event string `json:"event"`
		}
		if json.Unmarshal(raw, &frame) == nil && frame.Event == "stop" {
			logger.Base().Info("media stream stopped",
				zap.String("workflow_run_id", session.WorkflowRunID))
			return nil
		}
	}
}
