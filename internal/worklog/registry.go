package worklog

import (
	"sort"
	"sync"
)

// Registry owns the logs of every workflow in the process. One Registry is
// created at entry and threaded explicitly through the pipeline; there is no
// package-global instance.
type Registry struct {
	mu   sync.Mutex
	logs map[string]*Log
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{logs: map[string]*Log{}}
}

// Get returns the log for a workflow id, creating it on first use.
func (r *Registry) Get(workflowID string) *Log {
	r.mu.Lock()
	defer r.mu.Unlock()

	log, ok := r.logs[workflowID]
	if !ok {
		log = NewLog(workflowID)
		r.logs[workflowID] = log
	}

	return log
}

// Lookup returns the log for a workflow id without creating one.
func (r *Registry) Lookup(workflowID string) (*Log, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	log, ok := r.logs[workflowID]

	return log, ok
}

// WorkflowIDs returns the known workflow ids, sorted.
func (r *Registry) WorkflowIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.logs))
	for id := range r.logs {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// AppendText appends a text entry to the workflow's log.
func (r *Registry) AppendText(workflowID, body string, level Level, metadata map[string]any) int64 {
	return r.Get(workflowID).AppendText(body, level, metadata)
}

// AppendTable appends a table entry to the workflow's log.
func (r *Registry) AppendTable(workflowID string, headers []string, rows [][]any, title string, metadata map[string]any) (int64, error) {
	return r.Get(workflowID).AppendTable(headers, rows, title, metadata)
}

// AppendSunburst appends a sunburst entry to the workflow's log.
func (r *Registry) AppendSunburst(workflowID string, labels, parents []string, values []float64, title string, metadata map[string]any) (int64, error) {
	return r.Get(workflowID).AppendSunburst(labels, parents, values, title, metadata)
}

// Entries returns a snapshot of the workflow's log, optionally filtered.
func (r *Registry) Entries(workflowID string, kindFilter Kind) []Entry {
	return r.Get(workflowID).Entries(kindFilter)
}

// Summary returns the workflow log's summary.
func (r *Registry) Summary(workflowID string) Summary {
	return r.Get(workflowID).Summary()
}
