package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunIDContext(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-1")

	runID, ok := RunIDFrom(ctx)
	assert.True(t, ok)
	assert.Equal(t, "run-1", runID)

	_, ok = RunIDFrom(context.Background())
	assert.False(t, ok)
}
