package httpcontroller

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tphakala/pneumodetect/internal/classifier"
	"github.com/tphakala/pneumodetect/internal/errors"
)

//go:embed views/*.html
var ViewsFs embed.FS

// TemplateRenderer is a custom HTML template renderer for Echo framework.
type TemplateRenderer struct {
	templates *template.Template
}

// NewTemplateRenderer parses the embedded page templates.
func NewTemplateRenderer() (*TemplateRenderer, error) {
	tmpl, err := template.New("").Funcs(templateFuncs()).ParseFS(ViewsFs, "views/*.html")
	if err != nil {
		return nil, errors.New(err).
			Component("httpcontroller").
			Category(errors.CategoryConfiguration).
			Context("operation", "parse_templates").
			Build()
	}
	return &TemplateRenderer{templates: tmpl}, nil
}

// Render renders a template document with the given data. Output is
// buffered so a failing template never sends a partial page.
func (t *TemplateRenderer) Render(w io.Writer, name string, data any, c echo.Context) error {
	var buf bytes.Buffer
	if err := t.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return errors.New(err).
			Component("httpcontroller").
			Category(errors.CategoryHTTP).
			Context("template", name).
			Build()
	}
	_, err := buf.WriteTo(w)
	return err
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"title":       titleWords,
		"percent":     formatPercent,
		"confidence":  formatConfidence,
		"datetime":    formatDateTime,
		"isPneumonia": isPneumonia,
		"join":        strings.Join,
	}
}

// titleWords capitalises each word. Templates render concurrently and a
// Caser is stateful, so one is built per call.
func titleWords(s string) string {
	return cases.Title(language.English).String(s)
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64) + "%"
}

func formatConfidence(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return formatPercent(*v)
}

func formatDateTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

func isPneumonia(label any) bool {
	switch l := label.(type) {
	case classifier.Label:
		return l == classifier.LabelPneumonia
	case string:
		return l == string(classifier.LabelPneumonia)
	}
	return false
}
