package report

import (
	_ "embed"
	"html/template"
	"io"
	"strconv"
)

// FileName is the report artifact written next to df_clean.
const FileName = "report.html"

//go:embed report.html.tmpl
var pageSrc string

var page = template.Must(template.New("report").Funcs(template.FuncMap{
	"num": func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) },
}).Parse(pageSrc))

func Render(w io.Writer, s Summary) error {
	return page.Execute(w, s)
}
