package logging_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/propsync/pkg/logging"
)

func TestFromContextDefaults(t *testing.T) {
	//nolint:staticcheck // nil context is handled explicitly
	assert.Equal(t, logging.Default(), logging.FromContext(nil))
	assert.Equal(t, logging.Default(), logging.FromContext(context.Background()))
}

func TestWithRun(t *testing.T) {
	testLogger := logging.NewTestLogger(t)
	ctx := logging.WithLogger(context.Background(), testLogger.Logger)

	ctx, id := logging.WithRun(ctx)
	require.NotEmpty(t, id)

	logging.FromContext(ctx).Info().Msg("tagged")
	testLogger.AssertContains(t, id)

	_, other := logging.WithRun(ctx)
	assert.NotEqual(t, id, other)
}
