package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "netgym"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	counter, err := Meter("test").Int64Counter("steps")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	_, span := Tracer("test").Start(context.Background(), "step")
	span.End()
}
