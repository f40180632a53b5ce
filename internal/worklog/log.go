package worklog

import (
	"fmt"
	"sync"
	"time"
)

// watchBuffer is the channel depth granted to each subscriber. A subscriber
// that falls further behind misses entries rather than blocking appends.
const watchBuffer = 64

// Log is the append-only entry stream of one workflow. All methods are safe
// for concurrent use; appends serialize under an internal mutex so entry ids
// are strictly increasing in append order.
type Log struct {
	workflowID string

	mu       sync.Mutex
	nextID   int64
	entries  []Entry
	created  time.Time
	updated  time.Time
	watchers map[int]chan Entry
	watchSeq int
}

// NewLog creates an empty log for the given workflow id.
func NewLog(workflowID string) *Log {
	return &Log{
		workflowID: workflowID,
		nextID:     1,
		watchers:   map[int]chan Entry{},
	}
}

// WorkflowID returns the id this log belongs to.
func (l *Log) WorkflowID() string {
	return l.workflowID
}

// AppendText appends a leveled text entry and returns its id.
func (l *Log) AppendText(body string, level Level, metadata map[string]any) int64 {
	entry := Entry{
		Kind:     KindText,
		Text:     &Text{Body: body, Level: level},
		Metadata: metadata,
	}

	return l.append(entry)
}

// Appendf appends an info-level formatted text entry.
func (l *Log) Appendf(format string, args ...any) int64 {
	return l.AppendText(fmt.Sprintf(format, args...), LevelInfo, nil)
}

// AppendTable appends a table entry. Cells are stringified with fmt.Sprint.
// Returns ErrRowWidth when any row disagrees with the header count.
func (l *Log) AppendTable(headers []string, rows [][]any, title string, metadata map[string]any) (int64, error) {
	stringified := make([][]string, len(rows))

	for i, row := range rows {
		if len(row) != len(headers) {
			return 0, fmt.Errorf("%w: row %d has %d cells, want %d",
				ErrRowWidth, i, len(row), len(headers))
		}

		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = fmt.Sprint(cell)
		}

		stringified[i] = cells
	}

	entry := Entry{
		Kind: KindTable,
		Table: &Table{
			Headers: append([]string(nil), headers...),
			Rows:    stringified,
			Title:   title,
		},
		Metadata: metadata,
	}

	return l.append(entry), nil
}

// AppendSunburst appends a sunburst chart entry. Returns ErrSunburstShape
// when the parallel arrays disagree in length.
func (l *Log) AppendSunburst(labels, parents []string, values []float64, title string, metadata map[string]any) (int64, error) {
	if len(labels) != len(parents) || len(labels) != len(values) {
		return 0, fmt.Errorf("%w: %d labels, %d parents, %d values",
			ErrSunburstShape, len(labels), len(parents), len(values))
	}

	entry := Entry{
		Kind: KindSunburst,
		Sunburst: &Sunburst{
			Labels:  append([]string(nil), labels...),
			Parents: append([]string(nil), parents...),
			Values:  append([]float64(nil), values...),
			Title:   title,
		},
		Metadata: metadata,
	}

	return l.append(entry), nil
}

func (l *Log) append(entry Entry) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()

	entry.ID = l.nextID
	entry.Timestamp = now
	l.nextID++

	if len(l.entries) == 0 {
		l.created = now
	}

	l.updated = now
	l.entries = append(l.entries, entry)

	for _, watcher := range l.watchers {
		select {
		case watcher <- entry:
		default:
		}
	}

	return entry.ID
}

// Entries returns a snapshot of the log in append order. A non-empty kind
// filters to that entry kind.
func (l *Log) Entries(kindFilter Kind) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := make([]Entry, 0, len(l.entries))

	for _, entry := range l.entries {
		if kindFilter != "" && entry.Kind != kindFilter {
			continue
		}

		snapshot = append(snapshot, entry)
	}

	return snapshot
}

// Summary describes a log without exposing its entries.
type Summary struct {
	Total        int          `json:"total"`
	CountsByKind map[Kind]int `json:"counts_by_kind"`
	CreatedAt    time.Time    `json:"created_at"`
	LastUpdated  time.Time    `json:"last_updated"`
}

// Summary returns entry counts and timestamps for the log.
func (l *Log) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	counts := map[Kind]int{}
	for _, entry := range l.entries {
		counts[entry.Kind]++
	}

	return Summary{
		Total:        len(l.entries),
		CountsByKind: counts,
		CreatedAt:    l.created,
		LastUpdated:  l.updated,
	}
}

// Watch subscribes to entries appended after the call. The returned cancel
// function releases the subscription; the channel is closed on cancel. Slow
// consumers miss entries instead of stalling the log.
func (l *Log) Watch() (<-chan Entry, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.watchSeq
	l.watchSeq++

	ch := make(chan Entry, watchBuffer)
	l.watchers[id] = ch

	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()

		if watcher, ok := l.watchers[id]; ok {
			delete(l.watchers, id)
			close(watcher)
		}
	}

	return ch, cancel
}
