package decommission

import (
	"fmt"
	"net/url"
	"strings"
)

// RepoRef identifies one GitHub repository.
type RepoRef struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
	URL   string `json:"url"`
}

func (r RepoRef) String() string {
	return r.Owner + "/" + r.Name
}

// ParseRepoURL extracts owner and name from a canonical repository URL of
// the form https://github.com/OWNER/NAME, tolerating one trailing slash.
// Any other shape is rejected; callers skip the repository with a warning.
func ParseRepoURL(raw string) (RepoRef, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return RepoRef{}, fmt.Errorf("parse repository url %q: %w", raw, err)
	}

	if parsed.Scheme != "https" || parsed.Host != "github.com" {
		return RepoRef{}, fmt.Errorf("repository url %q: want https://github.com/OWNER/NAME", raw)
	}

	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return RepoRef{}, fmt.Errorf("repository url %q: query and fragment not allowed", raw)
	}

	path := strings.TrimPrefix(parsed.Path, "/")
	path = strings.TrimSuffix(path, "/")

	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return RepoRef{}, fmt.Errorf("repository url %q: want exactly OWNER/NAME", raw)
	}

	return RepoRef{Owner: parts[0], Name: parts[1], URL: raw}, nil
}
