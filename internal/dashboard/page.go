// Package dashboard renders workflow logs as HTML pages and serves them,
// together with raw snapshots and live entry streams, over HTTP.
package dashboard

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"
)

// Section is one block of a rendered page: a chart fragment, a table or a
// text list. Exactly one of Chart, Table, List is set.
type Section struct {
	Title string
	Chart template.HTML
	Table *TableData
	List  []ListItem
}

// TableData is a pre-stringified table.
type TableData struct {
	Headers []string
	Rows    [][]string
}

// ListItem is one text entry with its severity level.
type ListItem struct {
	Level string
	Body  string
}

// Page is a complete dashboard page for one workflow.
type Page struct {
	Title    string
	Subtitle string
	Sections []Section
}

// Renderable matches the render surface of go-echarts charts.
type Renderable interface {
	Render(w io.Writer) error
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<script src="https://go-echarts.github.io/go-echarts-assets/assets/echarts.min.js"></script>
<style>
body { font-family: -apple-system, "Segoe UI", sans-serif; margin: 0; background: #f6f8fa; color: #24292f; }
header { background: #24292f; color: #fff; padding: 16px 32px; }
header h1 { margin: 0; font-size: 20px; }
header p { margin: 4px 0 0; color: #8b949e; font-size: 13px; }
main { max-width: 1080px; margin: 0 auto; padding: 24px 32px; }
section { background: #fff; border: 1px solid #d0d7de; border-radius: 6px; margin-bottom: 24px; padding: 16px 24px; }
section h2 { font-size: 16px; margin-top: 0; }
table { border-collapse: collapse; width: 100%; font-size: 13px; }
th, td { border: 1px solid #d0d7de; padding: 6px 10px; text-align: left; }
th { background: #f6f8fa; }
ul.entries { list-style: none; padding: 0; font-size: 13px; }
ul.entries li { padding: 4px 0; border-bottom: 1px solid #eaeef2; }
li.warning { color: #9a6700; }
li.error { color: #cf222e; }
</style>
</head>
<body>
<header><h1>{{.Title}}</h1><p>{{.Subtitle}}</p></header>
<main>
{{range .Sections}}<section>
<h2>{{.Title}}</h2>
{{if .Chart}}{{.Chart}}{{end}}
{{if .Table}}<table><thead><tr>{{range .Table.Headers}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>{{range .Table.Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>{{end}}</tbody></table>{{end}}
{{if .List}}<ul class="entries">{{range .List}}<li class="{{.Level}}">{{.Body}}</li>{{end}}</ul>{{end}}
</section>
{{end}}</main>
</body>
</html>
`

var pageTmpl = template.Must(template.New("page").Parse(pageTemplate))

// Render writes the page as a standalone HTML document.
func (p *Page) Render(w io.Writer) error {
	err := pageTmpl.Execute(w, p)
	if err != nil {
		return fmt.Errorf("render page: %w", err)
	}

	return nil
}

// chartSnippet renders an echarts chart and strips it down to the embeddable
// div-and-script fragment. Echarts emits a full standalone page; everything
// around the chart container is the page chrome this dashboard replaces.
func chartSnippet(chart Renderable) (template.HTML, error) {
	var buf bytes.Buffer

	err := chart.Render(&buf)
	if err != nil {
		return "", fmt.Errorf("render chart: %w", err)
	}

	return template.HTML(extractChartContent(buf.String())), nil
}

func extractChartContent(html string) string {
	trimmed := strings.TrimSpace(html)
	if !strings.HasPrefix(trimmed, "<!DOCTYPE") && !strings.HasPrefix(trimmed, "<html") {
		return html
	}

	start := strings.Index(html, `<div class="container">`)
	if start == -1 {
		return html
	}

	end := strings.Index(html, `</body>`)
	if end == -1 {
		return html
	}

	content := html[start:end]
	content = strings.ReplaceAll(content, `class="container"`, `class="echart-box"`)

	return removeStyleTags(content)
}

func removeStyleTags(content string) string {
	const closeTag = "</style>"

	for {
		i := strings.Index(content, "<style>")
		if i == -1 {
			return content
		}

		j := strings.Index(content[i:], closeTag)
		if j == -1 {
			return content
		}

		content = content[:i] + content[i+j+len(closeTag):]
	}
}
