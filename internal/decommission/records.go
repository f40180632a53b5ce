package decommission

import (
	"github.com/dbsunset/dbsunset/internal/discovery"
	"github.com/dbsunset/dbsunset/internal/rules"
)

// ReadinessRecord is the output of validate_environment.
type ReadinessRecord struct {
	Database   string   `json:"database"`
	Components []string `json:"components"`
	RuleCount  int      `json:"rule_count"`
}

// SkippedRepo names a repository dropped before discovery with the reason.
type SkippedRepo struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// RepoDiscovery pairs one repository with its scan result.
type RepoDiscovery struct {
	Repo   RepoRef           `json:"repo"`
	Result *discovery.Result `json:"result"`
}

// DiscoveryRecord is the output of process_repositories. Repos preserves
// the input order of the target list.
type DiscoveryRecord struct {
	Repos   []RepoDiscovery `json:"repos"`
	Skipped []SkippedRepo   `json:"skipped,omitempty"`
}

// TotalFiles counts matched files across all scanned repositories.
func (r DiscoveryRecord) TotalFiles() int {
	total := 0
	for _, repo := range r.Repos {
		total += len(repo.Result.Files)
	}

	return total
}

// RepoRefactoring holds the per-file results for one repository, in the
// discovery order of its files.
type RepoRefactoring struct {
	Repo    RepoRef                      `json:"repo"`
	Results []rules.FileProcessingResult `json:"results"`
}

// RefactoringRecord is the output of apply_refactoring.
type RefactoringRecord struct {
	FilesProcessed int               `json:"files_processed"`
	FilesModified  int               `json:"files_modified"`
	Repos          []RepoRefactoring `json:"repos"`
}

// PullRequestRecord is one opened pull request, output of create_github_pr.
type PullRequestRecord struct {
	Repo           RepoRef `json:"repo"`
	PRNumber       int     `json:"pr_number"`
	PRURL          string  `json:"pr_url"`
	Branch         string  `json:"branch_name"`
	FilesCommitted int     `json:"files_committed"`
}

// Quality check statuses.
const (
	CheckPass = "pass"
	CheckWarn = "warn"
	CheckFail = "fail"
)

// QACheck is one scored quality gate.
type QACheck struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// QARecord is the output of quality_assurance.
type QARecord struct {
	Checks          []QACheck `json:"checks"`
	Recommendations []string  `json:"recommendations,omitempty"`
}

// Passed reports whether no check failed.
func (r QARecord) Passed() bool {
	for _, check := range r.Checks {
		if check.Status == CheckFail {
			return false
		}
	}

	return true
}

// SummaryRecord is the output of workflow_summary and the workflow's final
// result.
type SummaryRecord struct {
	Database       string  `json:"database"`
	ReposRequested int     `json:"repos_requested"`
	ReposScanned   int     `json:"repos_scanned"`
	ReposSkipped   int     `json:"repos_skipped"`
	FilesMatched   int     `json:"files_matched"`
	FilesProcessed int     `json:"files_processed"`
	FilesModified  int     `json:"files_modified"`
	PullRequests   int     `json:"pull_requests"`
	ChecksPassed   int     `json:"checks_passed"`
	ChecksTotal    int     `json:"checks_total"`
	SuccessRate    float64 `json:"success_rate"`
}
