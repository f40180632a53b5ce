package commands

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	noopmetric "go.opentelemetry.io/otel/metric/noop"

	"github.com/dbsunset/dbsunset/internal/config"
)

func TestDecommissionRun_UnknownMode(t *testing.T) {
	t.Parallel()

	dc := &DecommissionCommand{
		database: "legacy_orders",
		repos:    []string{"https://github.com/octo/orders"},
		mode:     "interactive",
		out:      &bytes.Buffer{},
	}

	err := dc.Run(context.Background())
	require.ErrorIs(t, err, ErrUnknownMode)
}

func TestDecommissionRun_StreamlitGuidance(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	dc := &DecommissionCommand{
		database: "legacy_orders",
		repos:    []string{"https://github.com/octo/orders"},
		mode:     modeStreamlit,
		out:      &buf,
	}

	require.NoError(t, dc.Run(context.Background()))
	assert.Contains(t, buf.String(), "dbsunset serve")
}

func TestStartDiagnostics_ServesHealthForTheRun(t *testing.T) {
	t.Parallel()

	dc := &DecommissionCommand{diagAddr: "127.0.0.1:0"}

	diag, err := dc.startDiagnostics(noopmetric.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	require.NotNil(t, diag)

	t.Cleanup(func() {
		_ = diag.Close()
	})

	resp, err := http.Get("http://" + diag.Addr() + "/healthz")
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStartDiagnostics_OffWithoutAddr(t *testing.T) {
	t.Parallel()

	dc := &DecommissionCommand{}

	diag, err := dc.startDiagnostics(noopmetric.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	assert.Nil(t, diag)
}

func TestPrintPlan_WavesInDependencyOrder(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	dc := &DecommissionCommand{
		database: "legacy_orders",
		repos:    []string{"https://github.com/octo/orders"},
		mode:     ModeWorkflow,
		out:      &buf,
	}

	cfg := &config.Config{}
	cfg.Pipeline.MaxParallelSteps = config.DefaultMaxParallelSteps

	require.NoError(t, dc.printPlan(cfg))

	output := buf.String()

	assert.Contains(t, output, "wave 1: validate_environment")
	assert.Contains(t, output, "wave 6: workflow_summary")

	validateAt := bytes.Index([]byte(output), []byte("validate_environment"))
	summaryAt := bytes.Index([]byte(output), []byte("workflow_summary"))
	assert.Less(t, validateAt, summaryAt)
}
