package decommission_test

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dbsunset/dbsunset/internal/decommission"
	"github.com/dbsunset/dbsunset/internal/mcpclient"
	"github.com/dbsunset/dbsunset/internal/pipeline"
	"github.com/dbsunset/dbsunset/internal/worklog"
)

type repoArgs struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

type repoReply struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	DefaultBranch string `json:"default_branch"`
	Fork          bool   `json:"fork"`
	HTMLURL       string `json:"html_url"`
}

type fileArgs struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
	Path  string `json:"path"`
}

type fileReply struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	SHA     string `json:"sha"`
}

type branchArgs struct {
	Owner      string `json:"owner"`
	Name       string `json:"name"`
	Branch     string `json:"branch"`
	FromBranch string `json:"from_branch"`
}

type commitArgs struct {
	Owner   string `json:"owner"`
	Name    string `json:"name"`
	Path    string `json:"path"`
	Content string `json:"content"`
	Message string `json:"message"`
	Branch  string `json:"branch"`
}

type prArgs struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
	Title string `json:"title"`
	Head  string `json:"head"`
	Base  string `json:"base"`
	Body  string `json:"body"`
}

type prReply struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
	Title   string `json:"title"`
}

type okReply struct {
	OK bool `json:"ok"`
}

// fakeForge is an in-memory GitHub standing in for the source-control
// capability: it serves upstream file contents and records every branch,
// commit and pull request the workflow creates.
type fakeForge struct {
	mu       sync.Mutex
	files    map[string]string
	branches []branchArgs
	commits  []commitArgs
	prs      []prArgs
}

func (f *fakeForge) server() *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "fake-github", Version: "0.0.1"}, nil)

	ok := &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "ok"}}}

	mcpsdk.AddTool(server, &mcpsdk.Tool{Name: "get_repository", Description: "Repository metadata."},
		func(_ context.Context, _ *mcpsdk.CallToolRequest, args repoArgs) (*mcpsdk.CallToolResult, repoReply, error) {
			return ok, repoReply{
				Owner: args.Owner, Name: args.Name, DefaultBranch: "main",
				HTMLURL: "https://github.com/" + args.Owner + "/" + args.Name,
			}, nil
		})

	mcpsdk.AddTool(server, &mcpsdk.Tool{Name: "get_file_contents", Description: "File contents."},
		func(_ context.Context, _ *mcpsdk.CallToolRequest, args fileArgs) (*mcpsdk.CallToolResult, fileReply, error) {
			f.mu.Lock()
			content, found := f.files[args.Path]
			f.mu.Unlock()

			if !found {
				return nil, fileReply{}, errors.New("not found: " + args.Path)
			}

			return ok, fileReply{Path: args.Path, Content: content, SHA: "abc123"}, nil
		})

	mcpsdk.AddTool(server, &mcpsdk.Tool{Name: "fork_repository", Description: "Fork upstream."},
		func(_ context.Context, _ *mcpsdk.CallToolRequest, args repoArgs) (*mcpsdk.CallToolResult, repoReply, error) {
			return ok, repoReply{
				Owner: "decommission-bot", Name: args.Name, DefaultBranch: "main", Fork: true,
				HTMLURL: "https://github.com/decommission-bot/" + args.Name,
			}, nil
		})

	mcpsdk.AddTool(server, &mcpsdk.Tool{Name: "create_branch", Description: "Create branch."},
		func(_ context.Context, _ *mcpsdk.CallToolRequest, args branchArgs) (*mcpsdk.CallToolResult, okReply, error) {
			f.mu.Lock()
			f.branches = append(f.branches, args)
			f.mu.Unlock()

			return ok, okReply{OK: true}, nil
		})

	mcpsdk.AddTool(server, &mcpsdk.Tool{Name: "create_or_update_file", Description: "Commit file."},
		func(_ context.Context, _ *mcpsdk.CallToolRequest, args commitArgs) (*mcpsdk.CallToolResult, okReply, error) {
			f.mu.Lock()
			f.commits = append(f.commits, args)
			f.mu.Unlock()

			return ok, okReply{OK: true}, nil
		})

	mcpsdk.AddTool(server, &mcpsdk.Tool{Name: "create_pull_request", Description: "Open PR."},
		func(_ context.Context, _ *mcpsdk.CallToolRequest, args prArgs) (*mcpsdk.CallToolResult, prReply, error) {
			f.mu.Lock()
			f.prs = append(f.prs, args)
			number := len(f.prs)
			f.mu.Unlock()

			return ok, prReply{
				Number:  number,
				HTMLURL: "https://github.com/" + args.Owner + "/" + args.Name + "/pull/1",
				Title:   args.Title,
			}, nil
		})

	return server
}

type packArgs struct {
	URL             string   `json:"url"`
	IncludePatterns []string `json:"include_patterns,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
}

type packReply struct {
	OutputID  string `json:"output_id"`
	TotalSize int64  `json:"total_size"`
}

type grepArgs struct {
	OutputID     string `json:"output_id"`
	Pattern      string `json:"pattern"`
	ContextLines int    `json:"context_lines"`
	IgnoreCase   bool   `json:"ignore_case"`
}

type grepMatch struct {
	File       string `json:"file"`
	LineNumber int    `json:"line_number"`
	Context    string `json:"context"`
}

type grepReply struct {
	Matches []grepMatch `json:"matches"`
}

// fakePack serves pack/grep over the same in-memory tree the forge holds,
// grepping for real so discovery behaves as it would against the service.
type fakePack struct {
	files map[string]string
}

func (f *fakePack) server() *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "fake-repopack", Version: "0.0.1"}, nil)

	ok := &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "ok"}}}

	mcpsdk.AddTool(server, &mcpsdk.Tool{Name: "pack_remote_repository", Description: "Pack."},
		func(_ context.Context, _ *mcpsdk.CallToolRequest, _ packArgs) (*mcpsdk.CallToolResult, packReply, error) {
			var total int64
			for _, content := range f.files {
				total += int64(len(content))
			}

			return ok, packReply{OutputID: "pack-e2e", TotalSize: total}, nil
		})

	mcpsdk.AddTool(server, &mcpsdk.Tool{Name: "grep_packed", Description: "Grep."},
		func(_ context.Context, _ *mcpsdk.CallToolRequest, args grepArgs) (*mcpsdk.CallToolResult, grepReply, error) {
			compiled, err := regexp.Compile("(?i)" + args.Pattern)
			if err != nil {
				return nil, grepReply{}, err
			}

			var matches []grepMatch

			for path, content := range f.files {
				for i, line := range strings.Split(content, "\n") {
					if compiled.MatchString(line) {
						matches = append(matches, grepMatch{File: path, LineNumber: i + 1, Context: line})
					}
				}
			}

			sort.Slice(matches, func(i, j int) bool {
				if matches[i].File != matches[j].File {
					return matches[i].File < matches[j].File
				}

				return matches[i].LineNumber < matches[j].LineNumber
			})

			return ok, grepReply{Matches: matches}, nil
		})

	return server
}

type postArgs struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

type fakeSlack struct {
	mu    sync.Mutex
	posts []postArgs
}

func (f *fakeSlack) server() *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "fake-slack", Version: "0.0.1"}, nil)

	ok := &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "ok"}}}

	mcpsdk.AddTool(server, &mcpsdk.Tool{Name: "post_message", Description: "Post."},
		func(_ context.Context, _ *mcpsdk.CallToolRequest, args postArgs) (*mcpsdk.CallToolResult, okReply, error) {
			f.mu.Lock()
			f.posts = append(f.posts, args)
			f.mu.Unlock()

			return ok, okReply{OK: true}, nil
		})

	return server
}

func startClient(ctx context.Context, t *testing.T, name string, server *mcpsdk.Server) *mcpclient.Client {
	t.Helper()

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	done := make(chan error, 1)

	go func() {
		done <- server.Run(ctx, serverTransport)
	}()

	t.Cleanup(func() {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Logf("fake %s server did not stop", name)
		}
	})

	client := mcpclient.NewClientWithTransport(name, func(_ context.Context) (mcpsdk.Transport, error) {
		return clientTransport, nil
	})

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

// workflowModel rewrites the one candidate file the fixtures contain.
type workflowModel struct {
	mu       sync.Mutex
	calls    int
	rewrites map[string]string
}

func (m *workflowModel) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	payload := map[string]map[string]string{}
	for path, content := range m.rewrites {
		payload[path] = map[string]string{"modified_content": content}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: string(raw)}}}, nil
}

func (m *workflowModel) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", errors.New("GenerateContent only")
}

const rewrittenSync = "def load():\n    raise RuntimeError('legacy_orders database decommissioned')\n"

func ordersTree() map[string]string {
	return map[string]string{
		"migrations/001_init.sql": "CREATE DATABASE legacy_orders;\nCREATE TABLE orders (id int);\n",
		"config/database.yml":     "production:\n  database: legacy_orders\n  pool: 5\n",
		"etl/sync.py":             "import psycopg2\n\nconn = psycopg2.connect(dbname='legacy_orders')\nrows = conn.execute('SELECT * FROM legacy_orders.orders')\n",
	}
}

func runWorkflow(ctx context.Context, t *testing.T, files map[string]string, opts decommission.Options) (*pipeline.Result, *fakeForge, *fakeSlack, *worklog.Log) {
	t.Helper()

	forge := &fakeForge{files: files}
	pack := &fakePack{files: files}
	slack := &fakeSlack{}

	deps := decommission.Deps{
		SourceControl: mcpclient.NewSourceControl(startClient(ctx, t, "github", forge.server()), 0),
		PackGrep:      mcpclient.NewPackGrep(startClient(ctx, t, "repopack", pack.server()), 0),
		Chat:          mcpclient.NewChat(startClient(ctx, t, "slack", slack.server()), 0),
		Model:         &workflowModel{rewrites: map[string]string{"etl/sync.py": rewrittenSync}},
		Log:           worklog.NewLog("wf-e2e"),
	}

	workflow, err := decommission.New(deps, opts)
	require.NoError(t, err)

	plan, err := workflow.Plan()
	require.NoError(t, err)

	engine := pipeline.NewEngine(pipeline.Options{Log: deps.Log})
	result := engine.Execute(ctx, plan, pipeline.NewContext(nil))

	return result, forge, slack, deps.Log
}

func TestWorkflow_EndToEnd(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	result, forge, slack, log := runWorkflow(ctx, t, ordersTree(), decommission.Options{
		Database:     "legacy_orders",
		Repos:        []string{"https://github.com/octo/orders", "git://bad/url"},
		SlackChannel: "C042",
		Verify:       true,
	})

	require.Equal(t, pipeline.StatusCompleted, result.Status)
	assert.Equal(t, 6, result.Completed)
	assert.InDelta(t, 100.0, result.SuccessRate, 0.01)

	// The malformed URL was skipped, the real repository scanned.
	scans, found := result.StepResults[decommission.StepProcess]
	require.True(t, found)

	discoveryRecord, typed := scans.Output.(decommission.DiscoveryRecord)
	require.True(t, typed)
	require.Len(t, discoveryRecord.Repos, 1)
	require.Len(t, discoveryRecord.Skipped, 1)
	assert.Equal(t, "git://bad/url", discoveryRecord.Skipped[0].URL)
	assert.GreaterOrEqual(t, discoveryRecord.TotalFiles(), 3)

	// The agentic rewrite landed on the fork branch.
	forge.mu.Lock()
	defer forge.mu.Unlock()

	require.Len(t, forge.branches, 1)
	branch := forge.branches[0]
	assert.Equal(t, "decommission-bot", branch.Owner)
	assert.True(t, strings.HasPrefix(branch.Branch, "decommission-legacy_orders-"), branch.Branch)
	assert.Equal(t, "main", branch.FromBranch)

	committed := map[string]commitArgs{}
	for _, commit := range forge.commits {
		committed[commit.Path] = commit
		assert.Equal(t, branch.Branch, commit.Branch)
		assert.Contains(t, commit.Message, "remove legacy_orders references from "+commit.Path)
	}

	require.Contains(t, committed, "etl/sync.py")
	assert.Equal(t, rewrittenSync, committed["etl/sync.py"].Content)

	require.Len(t, forge.prs, 1)
	pr := forge.prs[0]
	assert.Equal(t, "octo", pr.Owner)
	assert.Equal(t, "decommission-bot:"+branch.Branch, pr.Head)
	assert.Equal(t, "main", pr.Base)
	assert.Contains(t, pr.Body, "## Summary")
	assert.Contains(t, pr.Body, "etl/sync.py")

	// Summary record reflects the run.
	summaryResult, found := result.StepResults[decommission.StepSummary]
	require.True(t, found)

	summary, typed := summaryResult.Output.(decommission.SummaryRecord)
	require.True(t, typed)
	assert.Equal(t, 2, summary.ReposRequested)
	assert.Equal(t, 1, summary.ReposScanned)
	assert.Equal(t, 1, summary.ReposSkipped)
	assert.Equal(t, 1, summary.PullRequests)
	assert.GreaterOrEqual(t, summary.FilesModified, 1)
	assert.Equal(t, summary.FilesMatched, summary.FilesProcessed)
	assert.InDelta(t, 100.0, summary.SuccessRate, 0.01)

	// Slack heard about the scan, the pull request and the wrap-up.
	slack.mu.Lock()
	posts := len(slack.posts)
	channel := slack.posts[0].Channel
	slack.mu.Unlock()

	assert.GreaterOrEqual(t, posts, 3)
	assert.Equal(t, "C042", channel)

	// Verify mode appended the rescan table.
	titles := make([]string, 0)
	for _, entry := range log.Entries(worklog.KindTable) {
		titles = append(titles, entry.Table.Title)
	}

	assert.Contains(t, titles, "Verification rescan")
}

func TestWorkflow_NoReferences(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	files := map[string]string{
		"README.md":   "# Orders service\nNothing to see here.\n",
		"app/main.py": "print('hello')\n",
	}

	result, forge, _, log := runWorkflow(ctx, t, files, decommission.Options{
		Database: "legacy_orders",
		Repos:    []string{"https://github.com/octo/orders"},
	})

	// Every step still completes; the findings live in the records.
	require.Equal(t, pipeline.StatusCompleted, result.Status)

	prsResult, found := result.StepResults[decommission.StepPullRequest]
	require.True(t, found)

	prs, typed := prsResult.Output.([]decommission.PullRequestRecord)
	require.True(t, typed)
	assert.Empty(t, prs)

	forge.mu.Lock()
	assert.Empty(t, forge.branches)
	assert.Empty(t, forge.commits)
	assert.Empty(t, forge.prs)
	forge.mu.Unlock()

	qaResult, found := result.StepResults[decommission.StepQuality]
	require.True(t, found)

	qa, typed := qaResult.Output.(decommission.QARecord)
	require.True(t, typed)
	assert.False(t, qa.Passed())

	summary, typed := result.StepResults[decommission.StepSummary].Output.(decommission.SummaryRecord)
	require.True(t, typed)
	assert.Zero(t, summary.FilesMatched)
	assert.Zero(t, summary.PullRequests)
	assert.Less(t, summary.SuccessRate, 100.0)

	noChanges := false
	for _, entry := range log.Entries(worklog.KindText) {
		if entry.Text != nil && entry.Text.Body == "No changes to commit" {
			noChanges = true
		}
	}

	assert.True(t, noChanges, "expected a 'No changes to commit' entry")
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	deps := decommission.Deps{
		SourceControl: mcpclient.NewSourceControl(nil, 0),
		PackGrep:      mcpclient.NewPackGrep(nil, 0),
		Model:         &workflowModel{},
	}

	_, err := decommission.New(deps, decommission.Options{Repos: []string{"https://github.com/a/b"}})
	var validation *decommission.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "database", validation.Field)

	_, err = decommission.New(deps, decommission.Options{Database: "legacy_orders"})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "repos", validation.Field)

	_, err = decommission.New(decommission.Deps{}, decommission.Options{
		Database: "legacy_orders",
		Repos:    []string{"https://github.com/a/b"},
	})
	require.Error(t, err)
}
