package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/config"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

func TestNewDisabledIsNoop(t *testing.T) {
	tel, err := New(context.Background(), config.TelemetryConfig{Enabled: false})
	require.NoError(t, err)

	_, ok := tel.(*noopTelemetry)
	assert.True(t, ok)

	tel.RecordScan(types.ThreatLevelSafe, 0.5, false)
	tel.RecordDegraded("whois")
	tel.RecordRulesTriggered([]string{"ip_host"})
	assert.NoError(t, tel.Close())
}

func TestNewUnsupportedExporter(t *testing.T) {
	_, err := New(context.Background(), config.TelemetryConfig{
		Enabled:      true,
		ServiceName:  "safelink-test",
		ExporterType: "zipkin",
		SampleRate:   1,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported exporter type")
}
