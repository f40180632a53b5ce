package agentic_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/dbsunset/dbsunset/internal/agentic"
	"github.com/dbsunset/dbsunset/internal/classify"
	"github.com/dbsunset/dbsunset/internal/rules"
)

// scriptedModel answers GenerateContent from a reply function and records
// every prompt it saw.
type scriptedModel struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) (string, error)
}

func (m *scriptedModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	prompt := promptText(messages)

	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	out, err := m.reply(prompt)
	if err != nil {
		return nil, err
	}

	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: out}}}, nil
}

func (m *scriptedModel) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", errors.New("scripted model supports GenerateContent only")
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.prompts)
}

func (m *scriptedModel) sawPrompt(fragment string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, prompt := range m.prompts {
		if strings.Contains(prompt, fragment) {
			return true
		}
	}

	return false
}

func promptText(messages []llms.MessageContent) string {
	var sb strings.Builder

	for _, message := range messages {
		for _, part := range message.Parts {
			if text, ok := part.(llms.TextContent); ok {
				sb.WriteString(text.Text)
				sb.WriteString("\n")
			}
		}
	}

	return sb.String()
}

func newProcessor(t *testing.T, model llms.Model, opts agentic.Options) *agentic.Processor {
	t.Helper()

	engine, err := rules.NewEngine()
	require.NoError(t, err)

	processor, err := agentic.NewProcessor(model, engine, nil, opts)
	require.NoError(t, err)

	return processor
}

func rewriteReply(t *testing.T, rewrites map[string]string) string {
	t.Helper()

	payload := make(map[string]map[string]string, len(rewrites))
	for path, content := range rewrites {
		payload[path] = map[string]string{"modified_content": content}
	}

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	return string(raw)
}

func pythonFile(path, content string, matches int) agentic.File {
	return agentic.File{
		Path:           path,
		Content:        content,
		Classification: classify.Result{SourceType: classify.TypePython, Confidence: 0.9},
		MatchCount:     matches,
	}
}

func sqlFile(path, content string) agentic.File {
	return agentic.File{
		Path:           path,
		Content:        content,
		Classification: classify.Result{SourceType: classify.TypeSQL, Confidence: 0.9},
		MatchCount:     1,
	}
}

func TestProcessor_DeterministicFilesBypassModel(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{reply: func(string) (string, error) {
		return "{}", nil
	}}
	processor := newProcessor(t, model, agentic.Options{})

	files := []agentic.File{
		sqlFile("migrations/001_init.sql", "CREATE DATABASE legacy;\nCREATE TABLE t (id int);\n"),
		pythonFile("app/db.py", "conn = psycopg2.connect(dbname='legacy')\n", 1),
	}

	results, err := processor.Process(context.Background(), "legacy", files)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Zero(t, model.calls())

	require.True(t, results[0].Success)
	assert.Contains(t, results[0].ModifiedContent, "-- CREATE DATABASE legacy;")

	// A single-hit Python file stays on the deterministic path too.
	require.True(t, results[1].Success)
	assert.Contains(t, results[1].ModifiedContent, "DEPRECATED:")
}

func TestProcessor_RewritesCandidateBatch(t *testing.T) {
	t.Parallel()

	const (
		original  = "import legacy_db\n\ndef load():\n    return legacy_db.connect('legacy')\n"
		rewritten = "def load():\n    raise RuntimeError('legacy database decommissioned')\n"
		untouched = "import os\n\nDB = os.environ.get('DB', 'legacy')\nURL = 'postgres://h/legacy'\n"
	)

	model := &scriptedModel{}
	model.reply = func(string) (string, error) {
		return rewriteReply(t, map[string]string{
			"app/loader.py": rewritten,
			"app/env.py":    untouched,
		}), nil
	}

	processor := newProcessor(t, model, agentic.Options{})

	files := []agentic.File{
		pythonFile("app/loader.py", original, 2),
		pythonFile("app/env.py", untouched, 3),
	}

	results, err := processor.Process(context.Background(), "legacy", files)
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.Equal(t, 1, model.calls())

	require.True(t, results[0].Success)
	assert.Equal(t, rewritten, results[0].ModifiedContent)
	assert.Positive(t, results[0].TotalChanges)
	require.Len(t, results[0].RulesApplied, 1)
	assert.Equal(t, "agentic_rewrite", results[0].RulesApplied[0].RuleID)

	require.True(t, results[1].Success)
	assert.Zero(t, results[1].TotalChanges)
	assert.Empty(t, results[1].ModifiedContent)
}

func TestProcessor_PromptCarriesRulesAndContents(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{reply: func(string) (string, error) {
		return "{}", nil
	}}
	processor := newProcessor(t, model, agentic.Options{})

	files := []agentic.File{
		pythonFile("app/loader.py", "legacy_db.connect('legacy')\nlegacy_db.ping()\n", 2),
	}

	_, err := processor.Process(context.Background(), "legacy", files)
	require.NoError(t, err)
	require.Equal(t, 1, model.calls())

	assert.True(t, model.sawPrompt(`"legacy"`))
	assert.True(t, model.sawPrompt("=== FILE: app/loader.py ==="))
	assert.True(t, model.sawPrompt("legacy_db.connect"))
	assert.True(t, model.sawPrompt("=== END FILE ==="))
	assert.True(t, model.sawPrompt("python_connection_notice"))
	assert.True(t, model.sawPrompt("single JSON object"))
}

func TestProcessor_MalformedBatchPoisonsOnlyItsFiles(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{}
	model.reply = func(prompt string) (string, error) {
		if strings.Contains(prompt, "jobs/nightly.sh") {
			return "here you go: not json", nil
		}

		return rewriteReply(t, map[string]string{
			"app/loader.py": "pass\n",
		}), nil
	}

	processor := newProcessor(t, model, agentic.Options{BatchSize: 1})

	files := []agentic.File{
		{
			Path:           "jobs/nightly.sh",
			Content:        "pg_dump legacy > /backups/legacy.sql\npsql legacy -c 'vacuum'\n",
			Classification: classify.Result{SourceType: classify.TypeShell, Confidence: 0.9},
			MatchCount:     2,
		},
		pythonFile("app/loader.py", "legacy_db.connect('legacy')\nlegacy_db.ping()\n", 2),
	}

	results, err := processor.Process(context.Background(), "legacy", files)
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "malformed model response")
	assert.Empty(t, results[0].ModifiedContent)
	assert.Zero(t, results[0].TotalChanges)

	require.True(t, results[1].Success)
	assert.Equal(t, "pass\n", results[1].ModifiedContent)
}

func TestProcessor_TransportFailurePoisonsBatch(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{reply: func(string) (string, error) {
		return "", errors.New("connection reset by peer")
	}}
	processor := newProcessor(t, model, agentic.Options{})

	files := []agentic.File{
		pythonFile("a.py", "legacy_db.connect('legacy')\nlegacy_db.ping()\n", 2),
		pythonFile("b.py", "legacy_db.connect('legacy')\nlegacy_db.close()\n", 2),
	}

	results, err := processor.Process(context.Background(), "legacy", files)
	require.NoError(t, err)

	for _, result := range results {
		require.False(t, result.Success)
		assert.Contains(t, result.Error, "connection reset by peer")
	}
}

func TestProcessor_MissingPathMeansNoChanges(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{reply: func(string) (string, error) {
		return "{}", nil
	}}
	processor := newProcessor(t, model, agentic.Options{})

	files := []agentic.File{
		pythonFile("a.py", "legacy_db.connect('legacy')\nlegacy_db.ping()\n", 2),
	}

	results, err := processor.Process(context.Background(), "legacy", files)
	require.NoError(t, err)

	require.True(t, results[0].Success)
	assert.Zero(t, results[0].TotalChanges)
	assert.Empty(t, results[0].ModifiedContent)
}

func TestProcessor_CountsChangedLines(t *testing.T) {
	t.Parallel()

	const original = "keep\nDB = 'legacy'\nkeep too\n"

	// One line replaced: one removed plus one added.
	const rewritten = "keep\nDB = None  # decommissioned\nkeep too\n"

	model := &scriptedModel{}
	model.reply = func(string) (string, error) {
		return rewriteReply(t, map[string]string{"a.py": rewritten}), nil
	}

	processor := newProcessor(t, model, agentic.Options{})

	results, err := processor.Process(context.Background(), "legacy", []agentic.File{
		pythonFile("a.py", original, 2),
	})
	require.NoError(t, err)

	require.True(t, results[0].Success)
	assert.Equal(t, 2, results[0].TotalChanges)
}

func TestProcessor_FrameworkGapGoesAgentic(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{reply: func(string) (string, error) {
		return "{}", nil
	}}
	processor := newProcessor(t, model, agentic.Options{})

	files := []agentic.File{
		{
			Path:    "playbooks/db.yml",
			Content: "- name: provision legacy\n  community.postgresql.postgresql_db:\n    name: legacy\n",
			Classification: classify.Result{
				SourceType:         classify.TypeInfrastructure,
				Confidence:         0.85,
				DetectedFrameworks: []string{"ansible"},
			},
			MatchCount: 1,
		},
		{
			Path:    "main.tf",
			Content: "resource \"aws_db_instance\" \"legacy\" {}\n",
			Classification: classify.Result{
				SourceType:         classify.TypeInfrastructure,
				Confidence:         0.9,
				DetectedFrameworks: []string{"terraform"},
			},
			MatchCount: 1,
		},
	}

	results, err := processor.Process(context.Background(), "legacy", files)
	require.NoError(t, err)

	// Only the ansible file lacks deterministic coverage.
	assert.Equal(t, 1, model.calls())
	assert.True(t, model.sawPrompt("playbooks/db.yml"))
	assert.False(t, model.sawPrompt("=== FILE: main.tf ==="))

	require.True(t, results[1].Success)
}

func TestProcessor_ResultsPreserveInputOrder(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{reply: func(string) (string, error) {
		return "{}", nil
	}}
	processor := newProcessor(t, model, agentic.Options{BatchSize: 2, Workers: 4})

	files := []agentic.File{
		pythonFile("z.py", "legacy_db.a()\nlegacy_db.b()\n", 2),
		sqlFile("m.sql", "CREATE DATABASE legacy;\n"),
		pythonFile("a.py", "legacy_db.c()\nlegacy_db.d()\n", 2),
		{
			Path:           "run.sh",
			Content:        "psql legacy -c 'select 1'\npg_dump legacy\n",
			Classification: classify.Result{SourceType: classify.TypeShell, Confidence: 0.8},
			MatchCount:     2,
		},
		pythonFile("k.py", "legacy_db.e()\nlegacy_db.f()\n", 2),
	}

	results, err := processor.Process(context.Background(), "legacy", files)
	require.NoError(t, err)
	require.Len(t, results, len(files))

	for i, file := range files {
		assert.Equal(t, file.Path, results[i].FilePath)
		assert.Equal(t, file.Classification.SourceType, results[i].SourceType)
	}
}

func TestProcessor_BoundsBatchParallelism(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int64

	model := &scriptedModel{}
	model.reply = func(string) (string, error) {
		current := inFlight.Add(1)

		for {
			observed := peak.Load()
			if current <= observed || peak.CompareAndSwap(observed, current) {
				break
			}
		}

		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)

		return "{}", nil
	}

	processor := newProcessor(t, model, agentic.Options{BatchSize: 1, Workers: 2})

	var files []agentic.File
	for _, path := range []string{"a.py", "b.py", "c.py", "d.py", "e.py", "f.py"} {
		files = append(files, pythonFile(path, "legacy_db.x()\nlegacy_db.y()\n", 2))
	}

	_, err := processor.Process(context.Background(), "legacy", files)
	require.NoError(t, err)

	assert.Equal(t, 6, model.calls())
	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestProcessor_CancelledContextSkipsModelCalls(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{reply: func(string) (string, error) {
		return "{}", nil
	}}
	processor := newProcessor(t, model, agentic.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	files := []agentic.File{
		sqlFile("m.sql", "CREATE DATABASE legacy;\n"),
		pythonFile("a.py", "legacy_db.connect('legacy')\nlegacy_db.ping()\n", 2),
	}

	results, err := processor.Process(ctx, "legacy", files)
	require.ErrorIs(t, err, context.Canceled)

	assert.Zero(t, model.calls())

	// Pure rule application does not suspend and still completes.
	require.True(t, results[0].Success)

	require.False(t, results[1].Success)
	assert.Contains(t, results[1].Error, "context canceled")
}
