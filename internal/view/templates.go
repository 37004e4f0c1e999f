package view

import (
	"embed"
	"fmt"
	"text/template"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("view").Funcs(template.FuncMap{
	"points":   func(n int) string { return count(n, "point") },
	"comments": func(n int) string { return count(n, "comment") },
	"rank":     func(i int) string { return fmt.Sprintf("%2d.", i+1) },
}).ParseFS(templateFS, "templates/*.tmpl"))

// count renders "1 point", "12 points", "1,024 comments".
func count(n int, word string) string {
	return humanize.Comma(int64(n)) + " " + english.PluralWord(n, word, "")
}
