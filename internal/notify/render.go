package notify

import (
	"bytes"
	"fmt"
	"html/template"

	sprig "github.com/go-task/slim-sprig/v3"

	"github.com/nadmax/reportd/internal/task"
)

// NoData replaces the table when a report returns nothing.
const NoData = "No Data Returned"

const titleTemplate = `<h3>{{ .Title | trim }}</h3>`

const tableTemplate = `{{ if .Empty }}` + NoData + `
{{ else }}<table>
<tr class="table-header">{{ range .Columns }}<td>{{ . }}</td>{{ end }}</tr>
{{ range $i, $row := .Rows }}<tr class="{{ if eq (mod $i 2) 0 }}table-row{{ else }}table-alternate-row{{ end }}">{{ range $row }}<td>{{ . }}</td>{{ end }}</tr>
{{ end }}</table>
{{ end }}`

const documentTemplate = `<!DOCTYPE HTML PUBLIC "-//W3C//DTD HTML 4.01//EN" "http://www.w3.org/TR/html4/strict.dtd">
<html>
<head>
<style type="text/css" media="all">
body { font: {{ .FontSizeBody }}px Verdana, Arial, Helvetica, sans-serif; margin: 20px; }
h3 { font: {{ .FontSizeHeader }}px Verdana, Arial, Helvetica, sans-serif; }
table { margin: 4px; border-style: ridge; border-width: 2px; }
.table-header { color: white; background-color: #8080FF; }
.table-row { background-color: #D8D8FF; vertical-align:top;}
.table-alternate-row { background-color: #C0C0FF; vertical-align:top;}
</style>
</head>
<body>
{{ .Title }}
{{ .Table }}
</body>
</html>
`

// Renderer turns results into the HTML used for both console and e-mail output.
type Renderer struct {
	title    *template.Template
	table    *template.Template
	document *template.Template
}

func NewRenderer() *Renderer {
	funcs := sprig.HtmlFuncMap()
	return &Renderer{
		title:    template.Must(template.New("title").Funcs(funcs).Parse(titleTemplate)),
		table:    template.Must(template.New("table").Funcs(funcs).Parse(tableTemplate)),
		document: template.Must(template.New("document").Funcs(funcs).Parse(documentTemplate)),
	}
}

func (r *Renderer) Title(title string) (template.HTML, error) {
	return execute(r.title, struct{ Title string }{title})
}

// Table renders results as an HTML table, or NoData when there is nothing
// to show. Values are escaped.
func (r *Renderer) Table(results *task.Results) (template.HTML, error) {
	if results == nil {
		results = task.NewResults("")
	}
	return execute(r.table, results)
}

// Document wraps a rendered title and table in a complete HTML page styled
// with the configured font sizes.
func (r *Renderer) Document(title, table template.HTML, settings Settings) (string, error) {
	html, err := execute(r.document, struct {
		Title          template.HTML
		Table          template.HTML
		FontSizeHeader int
		FontSizeBody   int
	}{title, table, settings.FontSizeHeader, settings.FontSizeBody})
	return string(html), err
}

func execute(tmpl *template.Template, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", tmpl.Name(), err)
	}
	return template.HTML(buf.String()), nil
}
