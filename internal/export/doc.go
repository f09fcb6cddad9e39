package export

import (
	"html/template"
	"io"
)

// DocContentType is what Word expects for an HTML document saved as .doc.
const DocContentType = "application/msword"

var docTemplate = template.Must(template.New("doc").Parse(`<html xmlns:o="urn:schemas-microsoft-com:office:office" xmlns:w="urn:schemas-microsoft-com:office:word">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{- range .Days}}
<h2>{{.Date}}</h2>
{{- range .Meals}}
<h3>{{.Meal}}</h3>
<ul>
{{- range .Entries}}
<li>{{.Item}}{{if .Quantity}} ({{.Quantity}}){{end}}</li>
{{- end}}
</ul>
{{- end}}
{{- else}}
<p>No food logged.</p>
{{- end}}
</body>
</html>
`))

// WriteDoc renders entries grouped by date and meal as a Word-readable HTML
// document.
func WriteDoc(w io.Writer, title string, entries []Entry) error {
	return docTemplate.Execute(w, struct {
		Title string
		Days  []DayGroup
	}{
		Title: title,
		Days:  Group(entries),
	})
}
