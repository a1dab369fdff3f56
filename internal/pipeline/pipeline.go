// Package pipeline defines the contract between the telephony layer and the
// realtime voice pipeline that owns a call's media stream after handshake.
// The pipeline implementation lives outside this layer.
package pipeline

import (
	"context"

	"github.com/gorilla/websocket"
)

// Session identifies one live media stream bound to a workflow run.
type Session struct {
	StreamSID     string
	CallSID       string
	WorkflowID    string
	WorkflowRunID string
	UserID        string
}

// Runner consumes a handshaken media stream socket for the remainder of the
// call. Run blocks until the call ends and owns the connection from the
// moment it is invoked.
type Runner interface {
	Run(ctx context.Context, conn *websocket.Conn, session Session) error
}

type runIDKey struct{}

// WithRunID binds a workflow run ID into the context so downstream work can
// associate logs and side effects with the call without ambient globals.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFrom returns the workflow run ID bound to the context, if any.
func RunIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok
}
