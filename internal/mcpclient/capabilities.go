package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
)

// Canonical manifest names for the capabilities the workflow consumes.
const (
	ServerSourceControl = "github"
	ServerPackGrep      = "repopack"
	ServerChat          = "slack"
	ServerFilesystem    = "filesystem"
)

// Source-control tool names.
const (
	toolGetRepository      = "get_repository"
	toolGetFileContents    = "get_file_contents"
	toolForkRepository     = "fork_repository"
	toolCreateBranch       = "create_branch"
	toolCreateOrUpdateFile = "create_or_update_file"
	toolCreatePullRequest  = "create_pull_request"
	toolSearchCode         = "search_code"
)

// Pack/grep tool names.
const (
	toolPackRemoteRepository = "pack_remote_repository"
	toolReadPacked           = "read_packed"
	toolGrepPacked           = "grep_packed"
)

// Chat and filesystem tool names.
const (
	toolPostMessage   = "post_message"
	toolReadFile      = "read_file"
	toolWriteFile     = "write_file"
	toolListDirectory = "list_directory"
)

// decodeInto converts a decoded tool result into a typed struct.
func decodeInto(result map[string]any, target any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode tool result: %w", err)
	}

	err = json.Unmarshal(raw, target)
	if err != nil {
		return fmt.Errorf("decode tool result: %w", err)
	}

	return nil
}

// Repository describes a source-control repository.
type Repository struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	DefaultBranch string `json:"default_branch"`
	Fork          bool   `json:"fork"`
	HTMLURL       string `json:"html_url"`
}

// FileContents is the decoded payload of get_file_contents.
type FileContents struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	SHA     string `json:"sha"`
}

// PullRequest is the decoded payload of create_pull_request.
type PullRequest struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
	Title   string `json:"title"`
}

// CodeSearchItem is one hit of search_code.
type CodeSearchItem struct {
	Path       string `json:"path"`
	Repository string `json:"repository"`
}

// CodeSearch is the decoded payload of search_code.
type CodeSearch struct {
	TotalCount int              `json:"total_count"`
	Items      []CodeSearchItem `json:"items"`
}

// SourceControl is the fork/branch/commit/PR capability.
type SourceControl struct {
	client  *Client
	retries int
}

// NewSourceControl wraps a client with the source-control tool surface.
func NewSourceControl(client *Client, retries int) *SourceControl {
	return &SourceControl{client: client, retries: retries}
}

// GetRepository fetches repository metadata.
func (s *SourceControl) GetRepository(ctx context.Context, owner, name string) (*Repository, error) {
	result, err := s.client.InvokeWithRetry(ctx, toolGetRepository, map[string]any{
		"owner": owner,
		"name":  name,
	}, s.retries)
	if err != nil {
		return nil, err
	}

	var repo Repository

	err = decodeInto(result, &repo)
	if err != nil {
		return nil, err
	}

	return &repo, nil
}

// GetFileContents fetches one file from the default branch.
func (s *SourceControl) GetFileContents(ctx context.Context, owner, name, path string) (*FileContents, error) {
	result, err := s.client.InvokeWithRetry(ctx, toolGetFileContents, map[string]any{
		"owner": owner,
		"name":  name,
		"path":  path,
	}, s.retries)
	if err != nil {
		return nil, err
	}

	var contents FileContents

	err = decodeInto(result, &contents)
	if err != nil {
		return nil, err
	}

	return &contents, nil
}

// ForkRepository forks upstream into the authenticated account. Forking an
// already forked repository returns the existing fork.
func (s *SourceControl) ForkRepository(ctx context.Context, owner, name string) (*Repository, error) {
	result, err := s.client.InvokeWithRetry(ctx, toolForkRepository, map[string]any{
		"owner": owner,
		"name":  name,
	}, s.retries)
	if err != nil {
		return nil, err
	}

	var fork Repository

	err = decodeInto(result, &fork)
	if err != nil {
		return nil, err
	}

	return &fork, nil
}

// CreateBranch creates branch from fromBranch in the given repository.
func (s *SourceControl) CreateBranch(ctx context.Context, owner, name, branch, fromBranch string) error {
	_, err := s.client.InvokeWithRetry(ctx, toolCreateBranch, map[string]any{
		"owner":       owner,
		"name":        name,
		"branch":      branch,
		"from_branch": fromBranch,
	}, s.retries)

	return err
}

// CreateOrUpdateFile commits content to path on branch with the given message.
func (s *SourceControl) CreateOrUpdateFile(ctx context.Context, owner, name, path, content, message, branch string) error {
	_, err := s.client.InvokeWithRetry(ctx, toolCreateOrUpdateFile, map[string]any{
		"owner":   owner,
		"name":    name,
		"path":    path,
		"content": content,
		"message": message,
		"branch":  branch,
	}, s.retries)

	return err
}

// CreatePullRequest opens a PR from head into base.
func (s *SourceControl) CreatePullRequest(ctx context.Context, owner, name, title, head, base, body string) (*PullRequest, error) {
	result, err := s.client.InvokeWithRetry(ctx, toolCreatePullRequest, map[string]any{
		"owner": owner,
		"name":  name,
		"title": title,
		"head":  head,
		"base":  base,
		"body":  body,
	}, s.retries)
	if err != nil {
		return nil, err
	}

	var pr PullRequest

	err = decodeInto(result, &pr)
	if err != nil {
		return nil, err
	}

	return &pr, nil
}

// SearchCode searches code across the forge.
func (s *SourceControl) SearchCode(ctx context.Context, query string) (*CodeSearch, error) {
	result, err := s.client.InvokeWithRetry(ctx, toolSearchCode, map[string]any{
		"query": query,
	}, s.retries)
	if err != nil {
		return nil, err
	}

	var search CodeSearch

	err = decodeInto(result, &search)
	if err != nil {
		return nil, err
	}

	return &search, nil
}

// PackResult is the decoded payload of pack_remote_repository.
type PackResult struct {
	OutputID  string `json:"output_id"`
	TotalSize int64  `json:"total_size"`
}

// GrepMatch is one grep hit inside a packed repository.
type GrepMatch struct {
	File       string `json:"file"`
	LineNumber int    `json:"line_number"`
	Context    string `json:"context"`
}

// GrepResult is the decoded payload of grep_packed.
type GrepResult struct {
	Matches []GrepMatch `json:"matches"`
}

// PackGrep is the repository pack-and-search capability.
type PackGrep struct {
	client  *Client
	retries int
}

// NewPackGrep wraps a client with the pack/grep tool surface.
func NewPackGrep(client *Client, retries int) *PackGrep {
	return &PackGrep{client: client, retries: retries}
}

// PackRemoteRepository bundles a remote repository into a searchable
// artifact and returns its id and total size.
func (p *PackGrep) PackRemoteRepository(ctx context.Context, url string, includePatterns, excludePatterns []string) (*PackResult, error) {
	args := map[string]any{"url": url}

	if len(includePatterns) > 0 {
		args["include_patterns"] = includePatterns
	}

	if len(excludePatterns) > 0 {
		args["exclude_patterns"] = excludePatterns
	}

	result, err := p.client.InvokeWithRetry(ctx, toolPackRemoteRepository, args, p.retries)
	if err != nil {
		return nil, err
	}

	var pack PackResult

	err = decodeInto(result, &pack)
	if err != nil {
		return nil, err
	}

	return &pack, nil
}

// ReadPacked returns the full packed content for an output id.
func (p *PackGrep) ReadPacked(ctx context.Context, outputID string) (string, error) {
	result, err := p.client.InvokeWithRetry(ctx, toolReadPacked, map[string]any{
		"output_id": outputID,
	}, p.retries)
	if err != nil {
		return "", err
	}

	if content, ok := result["content"].(string); ok {
		return content, nil
	}

	if text, ok := result["text"].(string); ok {
		return text, nil
	}

	return "", nil
}

// GrepPacked searches a packed repository by regex.
func (p *PackGrep) GrepPacked(ctx context.Context, outputID, pattern string, contextLines int, ignoreCase bool) (*GrepResult, error) {
	result, err := p.client.InvokeWithRetry(ctx, toolGrepPacked, map[string]any{
		"output_id":     outputID,
		"pattern":       pattern,
		"context_lines": contextLines,
		"ignore_case":   ignoreCase,
	}, p.retries)
	if err != nil {
		return nil, err
	}

	var grep GrepResult

	err = decodeInto(result, &grep)
	if err != nil {
		return nil, err
	}

	return &grep, nil
}

// Chat is the notification capability.
type Chat struct {
	client  *Client
	retries int
}

// NewChat wraps a client with the chat tool surface.
func NewChat(client *Client, retries int) *Chat {
	return &Chat{client: client, retries: retries}
}

// PostMessage posts text to a channel.
func (c *Chat) PostMessage(ctx context.Context, channel, text string) error {
	_, err := c.client.InvokeWithRetry(ctx, toolPostMessage, map[string]any{
		"channel": channel,
		"text":    text,
	}, c.retries)

	return err
}

// Filesystem is the optional local-file capability used by validation.
type Filesystem struct {
	client  *Client
	retries int
}

// NewFilesystem wraps a client with the filesystem tool surface.
func NewFilesystem(client *Client, retries int) *Filesystem {
	return &Filesystem{client: client, retries: retries}
}

// ReadFile returns the content of a file.
func (f *Filesystem) ReadFile(ctx context.Context, path string) (string, error) {
	result, err := f.client.InvokeWithRetry(ctx, toolReadFile, map[string]any{
		"path": path,
	}, f.retries)
	if err != nil {
		return "", err
	}

	if content, ok := result["content"].(string); ok {
		return content, nil
	}

	if text, ok := result["text"].(string); ok {
		return text, nil
	}

	return "", nil
}

// WriteFile writes content to a file.
func (f *Filesystem) WriteFile(ctx context.Context, path, content string) error {
	_, err := f.client.InvokeWithRetry(ctx, toolWriteFile, map[string]any{
		"path":    path,
		"content": content,
	}, f.retries)

	return err
}

// ListDirectory lists the entries of a directory.
func (f *Filesystem) ListDirectory(ctx context.Context, path string) ([]string, error) {
	result, err := f.client.InvokeWithRetry(ctx, toolListDirectory, map[string]any{
		"path": path,
	}, f.retries)
	if err != nil {
		return nil, err
	}

	var listing struct {
		Entries []string `json:"entries"`
	}

	err = decodeInto(result, &listing)
	if err != nil {
		return nil, err
	}

	return listing.Entries, nil
}
