// Package worklog implements the append-only structured log that every
// decommissioning workflow streams progress into. A log holds three entry
// kinds: leveled text, tables, and sunburst charts. Entries are immutable
// and totally ordered per workflow by a strictly increasing entry id.
package worklog

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Kind discriminates the payload carried by an Entry.
type Kind string

const (
	// KindText is a leveled, Markdown-permitted progress message.
	KindText Kind = "text"

	// KindTable is an ordered-header table with stringified cells.
	KindTable Kind = "table"

	// KindSunburst is hierarchical chart data in parallel arrays.
	KindSunburst Kind = "sunburst"
)

// Level tags text entries.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelDebug   Level = "debug"
)

var (
	// ErrRowWidth is returned when a table row length differs from the headers.
	ErrRowWidth = errors.New("worklog: row width differs from header count")

	// ErrSunburstShape is returned when the parallel arrays disagree in length.
	ErrSunburstShape = errors.New("worklog: labels, parents and values must be parallel")

	// ErrUnknownKind is returned when deserializing an unrecognized entry kind.
	ErrUnknownKind = errors.New("worklog: unknown entry kind")
)

// Text is the payload of a KindText entry.
type Text struct {
	Body  string `json:"text"`
	Level Level  `json:"level"`
}

// Table is the payload of a KindTable entry. Rows are pre-stringified and
// every row has exactly len(Headers) cells.
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
	Title   string     `json:"title,omitempty"`
}

// Markdown renders the table as a Markdown table, title above when present.
func (t *Table) Markdown() string {
	tbl := table.NewWriter()

	header := make(table.Row, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = h
	}

	tbl.AppendHeader(header)

	for _, row := range t.Rows {
		cells := make(table.Row, len(row))
		for i, cell := range row {
			cells[i] = cell
		}

		tbl.AppendRow(cells)
	}

	rendered := tbl.RenderMarkdown()

	if t.Title != "" {
		return fmt.Sprintf("**%s**\n\n%s", t.Title, rendered)
	}

	return rendered
}

// Sunburst is the payload of a KindSunburst entry. The arrays are parallel;
// an empty Parents entry marks a root node.
type Sunburst struct {
	Labels  []string  `json:"labels"`
	Parents []string  `json:"parents"`
	Values  []float64 `json:"values"`
	Title   string    `json:"title,omitempty"`
	Colors  []string  `json:"colors,omitempty"`
}

// Figure returns the chart as a Plotly-compatible figure object. The shape
// is stable so any charting consumer can render a snapshot without knowing
// this package.
func (s *Sunburst) Figure() map[string]any {
	trace := map[string]any{
		"type":    "sunburst",
		"labels":  s.Labels,
		"parents": s.Parents,
		"values":  s.Values,
	}

	if len(s.Colors) > 0 {
		trace["marker"] = map[string]any{"colors": s.Colors}
	}

	layout := map[string]any{
		"margin": map[string]any{"t": 40, "l": 0, "r": 0, "b": 0},
	}

	if s.Title != "" {
		layout["title"] = map[string]any{"text": s.Title}
	}

	return map[string]any{
		"data":   []any{trace},
		"layout": layout,
	}
}

// Entry is one immutable element of a workflow log. Exactly one of Text,
// Table, Sunburst is non-nil, matching Kind.
type Entry struct {
	ID        int64
	Timestamp time.Time
	Kind      Kind
	Text      *Text
	Table     *Table
	Sunburst  *Sunburst
	Metadata  map[string]any
}

// entryEnvelope is the wire form of an Entry. Sunburst content serializes as
// the full Plotly figure; table content as {headers, rows, title}.
type entryEnvelope struct {
	EntryID   int64           `json:"entry_id"`
	Timestamp string          `json:"timestamp"`
	Kind      Kind            `json:"kind"`
	Content   json.RawMessage `json:"content"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e Entry) MarshalJSON() ([]byte, error) {
	var (
		content any
		err     error
	)

	switch e.Kind {
	case KindText:
		content = e.Text
	case KindTable:
		content = e.Table
	case KindSunburst:
		content = e.Sunburst.Figure()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}

	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("marshal %s content: %w", e.Kind, err)
	}

	return json.Marshal(entryEnvelope{
		EntryID:   e.ID,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		Kind:      e.Kind,
		Content:   raw,
		Metadata:  e.Metadata,
	})
}

// UnmarshalJSON implements json.Unmarshaler, inverting MarshalJSON.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var envelope entryEnvelope

	err := json.Unmarshal(data, &envelope)
	if err != nil {
		return fmt.Errorf("unmarshal entry envelope: %w", err)
	}

	timestamp, err := time.Parse(time.RFC3339Nano, envelope.Timestamp)
	if err != nil {
		return fmt.Errorf("parse entry timestamp: %w", err)
	}

	*e = Entry{
		ID:        envelope.EntryID,
		Timestamp: timestamp,
		Kind:      envelope.Kind,
		Metadata:  envelope.Metadata,
	}

	switch envelope.Kind {
	case KindText:
		e.Text = &Text{}

		return json.Unmarshal(envelope.Content, e.Text)
	case KindTable:
		e.Table = &Table{}

		return json.Unmarshal(envelope.Content, e.Table)
	case KindSunburst:
		sunburst, err := sunburstFromFigure(envelope.Content)
		if err != nil {
			return err
		}

		e.Sunburst = sunburst

		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, envelope.Kind)
	}
}

// plotlyFigure mirrors the subset of the figure shape Figure emits.
type plotlyFigure struct {
	Data []struct {
		Labels  []string  `json:"labels"`
		Parents []string  `json:"parents"`
		Values  []float64 `json:"values"`
		Marker  struct {
			Colors []string `json:"colors"`
		} `json:"marker"`
	} `json:"data"`
	Layout struct {
		Title struct {
			Text string `json:"text"`
		} `json:"title"`
	} `json:"layout"`
}

func sunburstFromFigure(raw json.RawMessage) (*Sunburst, error) {
	var figure plotlyFigure

	err := json.Unmarshal(raw, &figure)
	if err != nil {
		return nil, fmt.Errorf("unmarshal sunburst figure: %w", err)
	}

	if len(figure.Data) == 0 {
		return nil, fmt.Errorf("%w: sunburst figure has no traces", ErrSunburstShape)
	}

	trace := figure.Data[0]

	return &Sunburst{
		Labels:  trace.Labels,
		Parents: trace.Parents,
		Values:  trace.Values,
		Colors:  trace.Marker.Colors,
		Title:   figure.Layout.Title.Text,
	}, nil
}
