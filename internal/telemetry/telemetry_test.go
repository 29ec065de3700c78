package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/telemetry"
)

func TestDisabledTelemetryIsNoop(t *testing.T) {
	tel, err := telemetry.New(telemetry.Config{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestEnabledTelemetryShutdown(t *testing.T) {
	tel, err := telemetry.New(telemetry.Config{Enabled: true, ServiceName: "ragd-test"})
	require.NoError(t, err)
	assert.NoError(t, tel.Shutdown(context.Background()))
}
