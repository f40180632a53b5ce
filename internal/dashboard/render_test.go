package dashboard_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsunset/dbsunset/internal/dashboard"
	"github.com/dbsunset/dbsunset/internal/worklog"
)

func populatedLog(t *testing.T) *worklog.Log {
	t.Helper()

	log := worklog.NewLog("wf-render")
	log.Appendf("scan started for %s", "legacy_orders")
	log.AppendText("low-confidence match skipped", worklog.LevelWarning, nil)

	_, err := log.AppendTable([]string{"File", "Matches"},
		[][]any{{"etl/sync.py", 3}, {"config/database.yml", 1}},
		"References in octo/orders", nil)
	require.NoError(t, err)

	_, err = log.AppendSunburst(
		[]string{"octo/orders", "python", "etl/sync.py"},
		[]string{"", "octo/orders", "python"},
		[]float64{0, 0, 3},
		"Files by type", nil)
	require.NoError(t, err)

	return log
}

func TestRenderWorkflow(t *testing.T) {
	t.Parallel()

	log := populatedLog(t)

	var buf bytes.Buffer

	err := dashboard.RenderWorkflow(&buf, "wf-render", log.Entries(""))
	require.NoError(t, err)

	html := buf.String()

	assert.Contains(t, html, "Workflow wf-render")
	assert.Contains(t, html, "4 log entries")

	// Table content.
	assert.Contains(t, html, "References in octo/orders")
	assert.Contains(t, html, "<td>etl/sync.py</td>")
	assert.Contains(t, html, "<td>3</td>")

	// Text entries end up in the progress list with their levels.
	assert.Contains(t, html, "scan started for legacy_orders")
	assert.Contains(t, html, `class="warning"`)

	// Charts are embedded as fragments, not nested documents.
	assert.Contains(t, html, "Files by type")
	assert.Equal(t, 1, strings.Count(html, "<!DOCTYPE"))
	assert.Contains(t, html, "echarts.init")
}

func TestBuildPage_Empty(t *testing.T) {
	t.Parallel()

	page, err := dashboard.BuildPage("wf-empty", nil)
	require.NoError(t, err)

	assert.Empty(t, page.Sections)

	var buf bytes.Buffer
	require.NoError(t, page.Render(&buf))
	assert.Contains(t, buf.String(), "0 log entries")
}
