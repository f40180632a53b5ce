package mcpclient_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dbsunset/dbsunset/internal/mcpclient"
)

type repoArgs struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

type repoReply struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	DefaultBranch string `json:"default_branch"`
}

// fakeServer is an in-memory MCP server with a happy tool, a failing tool
// and per-tool invocation counters.
type fakeServer struct {
	server   *mcpsdk.Server
	repoHits atomic.Int64
	failHits atomic.Int64
}

func newFakeServer() *fakeServer {
	fake := &fakeServer{
		server: mcpsdk.NewServer(&mcpsdk.Implementation{
			Name:    "fake-forge",
			Version: "0.0.1",
		}, nil),
	}

	mcpsdk.AddTool(fake.server, &mcpsdk.Tool{
		Name:        "get_repository",
		Description: "Fetch repository metadata.",
	}, func(_ context.Context, _ *mcpsdk.CallToolRequest, args repoArgs) (*mcpsdk.CallToolResult, repoReply, error) {
		fake.repoHits.Add(1)

		reply := repoReply{
			Owner:         args.Owner,
			Name:          args.Name,
			DefaultBranch: "main",
		}

		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{
				&mcpsdk.TextContent{Text: "ok"},
			},
		}, reply, nil
	})

	mcpsdk.AddTool(fake.server, &mcpsdk.Tool{
		Name:        "always_fails",
		Description: "Reports a structured tool failure.",
	}, func(_ context.Context, _ *mcpsdk.CallToolRequest, _ repoArgs) (*mcpsdk.CallToolResult, repoReply, error) {
		fake.failHits.Add(1)

		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{
				&mcpsdk.TextContent{Text: "repository is archived"},
			},
			IsError: true,
		}, repoReply{}, nil
	})

	return fake
}

// start runs the fake server over an in-memory pair and returns the
// client-side transport.
func (f *fakeServer) start(ctx context.Context, t *testing.T) mcpsdk.Transport {
	t.Helper()

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	done := make(chan error, 1)

	go func() {
		done <- f.server.Run(ctx, serverTransport)
	}()

	t.Cleanup(func() {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Log("fake server did not stop")
		}
	})

	return clientTransport
}

func newConnectedClient(ctx context.Context, t *testing.T, fake *fakeServer) *mcpclient.Client {
	t.Helper()

	transport := fake.start(ctx, t)

	client := mcpclient.NewClientWithTransport("fake-forge", func(_ context.Context) (mcpsdk.Transport, error) {
		return transport, nil
	})

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

func TestClient_Invoke_DecodesStructuredContent(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := newConnectedClient(ctx, t, newFakeServer())

	result, err := client.Invoke(ctx, "get_repository", map[string]any{
		"owner": "octo",
		"name":  "periodic",
	})
	require.NoError(t, err)

	assert.Equal(t, "octo", result["owner"])
	assert.Equal(t, "periodic", result["name"])
	assert.Equal(t, "main", result["default_branch"])
}

func TestClient_Invoke_ToolFailureIsToolError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := newConnectedClient(ctx, t, newFakeServer())

	_, err := client.Invoke(ctx, "always_fails", map[string]any{"owner": "octo", "name": "periodic"})
	require.Error(t, err)
	assert.True(t, mcpclient.IsToolError(err))
	assert.False(t, mcpclient.IsTransportError(err))

	var toolErr *mcpclient.ToolError

	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "fake-forge", toolErr.Server)
	assert.Equal(t, "always_fails", toolErr.Tool)
	assert.Contains(t, toolErr.Message, "archived")
}

func TestClient_InvokeWithRetry_RecoversFromTransportFailure(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	fake := newFakeServer()
	transport := fake.start(ctx, t)

	var attempts atomic.Int64

	client := mcpclient.NewClientWithTransport("flaky", func(_ context.Context) (mcpsdk.Transport, error) {
		if attempts.Add(1) == 1 {
			return nil, errors.New("spawn failed")
		}

		return transport, nil
	})

	t.Cleanup(func() {
		_ = client.Close()
	})

	result, err := client.InvokeWithRetry(ctx, "get_repository", map[string]any{
		"owner": "octo",
		"name":  "periodic",
	}, 2)
	require.NoError(t, err)

	assert.Equal(t, "main", result["default_branch"])
	assert.Equal(t, int64(2), attempts.Load())
}

func TestClient_InvokeWithRetry_DoesNotRetryToolErrors(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fake := newFakeServer()
	client := newConnectedClient(ctx, t, fake)

	_, err := client.InvokeWithRetry(ctx, "always_fails", map[string]any{"owner": "octo", "name": "periodic"}, 3)
	require.Error(t, err)
	assert.True(t, mcpclient.IsToolError(err))

	// A single server-side invocation: tool failures are terminal.
	assert.Equal(t, int64(1), fake.failHits.Load())
}

func TestClient_Close_IsIdempotent(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := newConnectedClient(ctx, t, newFakeServer())

	_, err := client.Invoke(ctx, "get_repository", map[string]any{"owner": "o", "name": "n"})
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err = client.Invoke(ctx, "get_repository", map[string]any{"owner": "o", "name": "n"})
	require.ErrorIs(t, err, mcpclient.ErrClientClosed)
}

func TestClient_TransportFailureIsRetryableCategory(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := mcpclient.NewClientWithTransport("down", func(_ context.Context) (mcpsdk.Transport, error) {
		return nil, errors.New("no such binary")
	})

	_, err := client.Invoke(ctx, "anything", map[string]any{})
	require.Error(t, err)
	assert.True(t, mcpclient.IsTransportError(err))

	var transportErr *mcpclient.TransportError

	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "down", transportErr.Server)
	assert.Equal(t, "spawn", transportErr.Op)
}
