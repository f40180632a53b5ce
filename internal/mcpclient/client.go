package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sethvargo/go-retry"
)

const (
	// clientName identifies this client implementation to MCP servers.
	clientName = "dbsunset"
	// clientVersion is the MCP client implementation version.
	clientVersion = "1.0.0"
)

// Backoff shape for retried invocations: delays double from the base,
// individual delays are capped, and a small jitter decorrelates workers.
const (
	retryBaseDelay = 1 * time.Second
	retryCapDelay  = 30 * time.Second
	retryJitter    = 50 * time.Millisecond
)

// TransportFactory produces the transport a client connects over. The
// production factory spawns the manifest's server command; tests substitute
// in-memory transports.
type TransportFactory func(ctx context.Context) (mcpsdk.Transport, error)

// Client is a lazily connected handle to one MCP server. The first Invoke
// spawns and connects the transport; Close releases it. All methods are safe
// for concurrent use.
type Client struct {
	name    string
	factory TransportFactory

	mu      sync.Mutex
	session *mcpsdk.ClientSession
	closed  bool
}

// NewClient creates a client that spawns the server process described by spec
// on first use.
func NewClient(name string, spec ServerSpec) *Client {
	return NewClientWithTransport(name, commandTransportFactory(spec))
}

// NewClientWithTransport creates a client over a caller-supplied transport
// factory.
func NewClientWithTransport(name string, factory TransportFactory) *Client {
	return &Client{
		name:    name,
		factory: factory,
	}
}

// commandTransportFactory builds the subprocess transport for a server spec.
// The child environment is the parent's plus the spec's entries.
func commandTransportFactory(spec ServerSpec) TransportFactory {
	return func(_ context.Context) (mcpsdk.Transport, error) {
		cmd := exec.Command(spec.Command, spec.Args...)
		cmd.Env = os.Environ()

		for key, value := range spec.Env {
			cmd.Env = append(cmd.Env, key+"="+value)
		}

		return &mcpsdk.CommandTransport{Command: cmd}, nil
	}
}

// Name returns the manifest name of the server this client reaches.
func (c *Client) Name() string {
	return c.name
}

// ensureSession connects on first use. Concurrent first invokes serialize;
// the winner dials, the rest reuse its session.
func (c *Client) ensureSession(ctx context.Context) (*mcpsdk.ClientSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}

	if c.session != nil {
		return c.session, nil
	}

	transport, err := c.factory(ctx)
	if err != nil {
		return nil, &TransportError{Server: c.name, Op: "spawn", Err: err}
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, &TransportError{Server: c.name, Op: "connect", Err: err}
	}

	c.session = session

	return session, nil
}

// Invoke calls a tool and decodes its result into a map. Failures are either
// a *TransportError (connection or wire fault, retryable) or a *ToolError
// (structured server-side failure, terminal).
func (c *Client) Invoke(ctx context.Context, tool string, args map[string]any) (map[string]any, error) {
	session, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      tool,
		Arguments: args,
	})
	if err != nil {
		return nil, &TransportError{Server: c.name, Op: tool, Err: err}
	}

	if result.IsError {
		return nil, &ToolError{
			Server:  c.name,
			Tool:    tool,
			Message: textOf(result),
		}
	}

	return c.decodeResult(tool, result)
}

// InvokeWithRetry retries Invoke on transport failures only, up to
// retryCount additional attempts with capped exponential backoff. Tool
// errors surface immediately.
func (c *Client) InvokeWithRetry(ctx context.Context, tool string, args map[string]any, retryCount int) (map[string]any, error) {
	if retryCount <= 0 {
		return c.Invoke(ctx, tool, args)
	}

	exponential := retry.NewExponential(retryBaseDelay)
	exponential = retry.WithCappedDuration(retryCapDelay, exponential)
	backoff := retry.WithMaxRetries(uint64(retryCount), retry.WithJitter(retryJitter, exponential))

	var result map[string]any

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var callErr error

		result, callErr = c.Invoke(ctx, tool, args)
		if callErr == nil {
			return nil
		}

		if IsTransportError(callErr) {
			return retry.RetryableError(callErr)
		}

		return callErr
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// decodeResult normalizes a tool result into a map. Structured content wins;
// otherwise the first text block is parsed as JSON, falling back to a plain
// {"text": …} wrapper for non-JSON output.
func (c *Client) decodeResult(tool string, result *mcpsdk.CallToolResult) (map[string]any, error) {
	if result.StructuredContent != nil {
		raw, err := json.Marshal(result.StructuredContent)
		if err != nil {
			return nil, &TransportError{Server: c.name, Op: tool + " decode", Err: err}
		}

		var decoded map[string]any

		err = json.Unmarshal(raw, &decoded)
		if err == nil {
			return decoded, nil
		}
	}

	text := textOf(result)
	if text == "" {
		return map[string]any{}, nil
	}

	var decoded map[string]any

	err := json.Unmarshal([]byte(text), &decoded)
	if err == nil {
		return decoded, nil
	}

	return map[string]any{"text": text}, nil
}

// textOf concatenates the text content blocks of a result.
func textOf(result *mcpsdk.CallToolResult) string {
	var parts []string

	for _, content := range result.Content {
		if text, ok := content.(*mcpsdk.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}

	return strings.Join(parts, "\n")
}

// Close terminates the session and marks the client unusable. It is
// idempotent; only the first call can return an error.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true

	if c.session == nil {
		return nil
	}

	session := c.session
	c.session = nil

	err := session.Close()
	if err != nil {
		return fmt.Errorf("close %s: %w", c.name, err)
	}

	return nil
}
