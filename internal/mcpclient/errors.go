// Package mcpclient provides the typed capability surface over Model Context
// Protocol servers: manifest loading, lazily connected clients with
// retry-aware invocation, and the source-control, pack/grep, chat and
// filesystem capabilities the decommissioning workflow consumes.
package mcpclient

import (
	"errors"
	"fmt"
)

var (
	// ErrClientClosed is returned by Invoke after Close.
	ErrClientClosed = errors.New("mcpclient: client is closed")

	// ErrUnresolvedEnv is returned when a manifest references an environment
	// variable that is not set.
	ErrUnresolvedEnv = errors.New("mcpclient: unresolved environment variable")

	// ErrServerNotConfigured is returned by the registry for unknown server names.
	ErrServerNotConfigured = errors.New("mcpclient: server not configured")
)

// TransportError reports a connection, spawn or wire failure while reaching
// an MCP server. Transport failures are the only retryable error category.
type TransportError struct {
	Server string
	Op     string
	Err    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("mcp transport %s/%s: %v", e.Server, e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ToolError reports a structured failure returned by an MCP server for a
// specific tool call. Tool errors are never retried.
type ToolError struct {
	Server  string
	Tool    string
	Message string
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	return fmt.Sprintf("mcp tool %s/%s: %s", e.Server, e.Tool, e.Message)
}

// IsTransportError reports whether err is (or wraps) a TransportError.
func IsTransportError(err error) bool {
	var transportErr *TransportError

	return errors.As(err, &transportErr)
}

// IsToolError reports whether err is (or wraps) a ToolError.
func IsToolError(err error) bool {
	var toolErr *ToolError

	return errors.As(err, &toolErr)
}
