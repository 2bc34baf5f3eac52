package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), "", "alacard", "test", false)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	_, span := Tracer("alacard/test").Start(context.Background(), "op")
	assert.False(t, span.SpanContext().IsSampled())
	span.End()

	counter, err := Meter("alacard/test").Int64Counter("alacard.test.count")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)
}

func TestInitWithEndpoint(t *testing.T) {
	// Exporters connect lazily, so an unreachable endpoint still initializes.
	shutdown, err := Init(context.Background(), "127.0.0.1:4318", "alacard", "test", true)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
