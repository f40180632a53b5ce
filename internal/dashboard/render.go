package dashboard

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/dbsunset/dbsunset/internal/worklog"
)

const (
	chartWidth  = "100%"
	chartHeight = "500px"
)

// RenderWorkflow writes one workflow's log as a standalone HTML dashboard:
// the text entries as a list, every table as an HTML table, every sunburst
// as an echarts chart and a bar chart of entry counts per kind.
func RenderWorkflow(w io.Writer, workflowID string, entries []worklog.Entry) error {
	page, err := BuildPage(workflowID, entries)
	if err != nil {
		return err
	}

	return page.Render(w)
}

// BuildPage assembles the page without rendering it.
func BuildPage(workflowID string, entries []worklog.Entry) (*Page, error) {
	page := &Page{
		Title:    "Workflow " + workflowID,
		Subtitle: fmt.Sprintf("%d log entries", len(entries)),
	}

	var texts []ListItem

	counts := map[worklog.Kind]int{}

	for _, entry := range entries {
		counts[entry.Kind]++

		switch entry.Kind {
		case worklog.KindText:
			texts = append(texts, ListItem{Level: string(entry.Text.Level), Body: entry.Text.Body})

		case worklog.KindTable:
			page.Sections = append(page.Sections, Section{
				Title: tableTitle(entry.Table),
				Table: &TableData{Headers: entry.Table.Headers, Rows: entry.Table.Rows},
			})

		case worklog.KindSunburst:
			snippet, err := chartSnippet(sunburstChart(entry.Sunburst))
			if err != nil {
				return nil, err
			}

			page.Sections = append(page.Sections, Section{
				Title: sunburstTitle(entry.Sunburst),
				Chart: snippet,
			})
		}
	}

	if len(texts) > 0 {
		page.Sections = append(page.Sections, Section{Title: "Progress", List: texts})
	}

	if len(entries) > 0 {
		snippet, err := chartSnippet(entryCountsChart(counts))
		if err != nil {
			return nil, err
		}

		page.Sections = append(page.Sections, Section{Title: "Entries by kind", Chart: snippet})
	}

	return page, nil
}

func tableTitle(t *worklog.Table) string {
	if t.Title != "" {
		return t.Title
	}

	return "Table"
}

func sunburstTitle(s *worklog.Sunburst) string {
	if s.Title != "" {
		return s.Title
	}

	return "Breakdown"
}

// sunburstChart rebuilds the entry's parallel label/parent/value arrays into
// the nested tree echarts wants. Nodes with an unknown parent are treated as
// roots rather than dropped.
func sunburstChart(s *worklog.Sunburst) *charts.Sunburst {
	nodes := make(map[string]*opts.SunBurstData, len(s.Labels))

	for i, label := range s.Labels {
		node := &opts.SunBurstData{Name: label}
		if i < len(s.Values) {
			node.Value = s.Values[i]
		}

		nodes[label] = node
	}

	var roots []*opts.SunBurstData

	for i, label := range s.Labels {
		parent := ""
		if i < len(s.Parents) {
			parent = s.Parents[i]
		}

		if parentNode, found := nodes[parent]; found && parent != label {
			parentNode.Children = append(parentNode.Children, nodes[label])

			continue
		}

		roots = append(roots, nodes[label])
	}

	// Dereference after the tree is fully linked.
	series := make([]opts.SunBurstData, 0, len(roots))
	for _, root := range roots {
		series = append(series, *root)
	}

	chart := charts.NewSunburst()
	chart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: s.Title}),
	)
	chart.AddSeries("files", series)

	return chart
}

func entryCountsChart(counts map[worklog.Kind]int) *charts.Bar {
	kinds := []worklog.Kind{worklog.KindText, worklog.KindTable, worklog.KindSunburst}

	labels := make([]string, 0, len(kinds))
	data := make([]opts.BarData, 0, len(kinds))

	for _, kind := range kinds {
		labels = append(labels, string(kind))
		data = append(data, opts.BarData{Value: counts[kind]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Entries by kind"}),
	)
	bar.SetXAxis(labels)
	bar.AddSeries("entries", data)

	return bar
}
