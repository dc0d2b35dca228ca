package output

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/fatih/color"
)

// TextFormatter formats data as human-readable text with color
type TextFormatter struct {
	accountTemplate *template.Template
	statusTemplate  *template.Template
	listTemplate    *template.Template
}

// NewTextFormatter creates a new text formatter with color support
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{
		accountTemplate: template.Must(template.New("account").Funcs(templateFuncs()).Parse(accountTemplate)),
		statusTemplate:  template.Must(template.New("status").Funcs(templateFuncs()).Parse(statusTemplate)),
		listTemplate:    template.Must(template.New("list").Funcs(templateFuncs()).Parse(accountListTemplate)),
	}
}

// templateFuncs returns template functions for formatting
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"bold":   color.New(color.Bold).Sprint,
		"cyan":   color.CyanString,
		"green":  color.GreenString,
		"yellow": color.YellowString,
		"red":    color.RedString,
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return "never"
			}
			return t.Format("2006-01-02 15:04:05")
		},
		"lockIcon": func(locked bool) string {
			if locked {
				return color.RedString("locked")
			}
			return color.GreenString("unlocked")
		},
		"activeIcon": func(active bool) string {
			if active {
				return color.CyanString("*")
			}
			return " "
		},
	}
}

const accountTemplate = `{{bold .Email}}{{if .Name}} ({{.Name}}){{end}}
  ID:             {{cyan .ID}}
  State:          {{lockIcon .Locked}}{{if .Active}} {{cyan "[active]"}}{{end}}
  Timeout:        {{.Timeout}} ({{.TimeoutAction}})
  PIN unlock:     {{if .HasPIN}}{{green "enabled"}}{{else}}disabled{{end}}
  Last active:    {{formatTime .LastActiveAt}}
`

const statusTemplate = `{{bold "Vault status"}}
  Active account: {{if .ActiveAccount}}{{cyan .ActiveAccount}}{{else}}{{yellow "none"}}{{end}}
  State:          {{lockIcon .Locked}}
  Accounts:       {{.Accounts}}
{{- if .FailedUnlocks}}
  Failed unlocks: {{red (printf "%d" .FailedUnlocks)}}
{{- end}}
`

const accountListTemplate = `{{range .}}{{activeIcon .Active}} {{bold .Email}}  {{lockIcon .Locked}}  {{cyan .ID}}
{{end}}`

// Format formats a single view as text
func (f *TextFormatter) Format(data interface{}) (string, error) {
	switch v := data.(type) {
	case *AccountView:
		return f.formatTemplate(f.accountTemplate, v)
	case *StatusView:
		return f.formatTemplate(f.statusTemplate, v)
	default:
		return fmt.Sprintf("%+v\n", data), nil
	}
}

// FormatList formats a list of accounts as text
func (f *TextFormatter) FormatList(data interface{}) (string, error) {
	switch v := data.(type) {
	case []AccountView:
		if len(v) == 0 {
			return "No accounts registered.\n", nil
		}
		return f.formatTemplate(f.listTemplate, v)
	case []*AccountView:
		views := make([]AccountView, len(v))
		for i, item := range v {
			views[i] = *item
		}
		return f.FormatList(views)
	default:
		return fmt.Sprintf("%+v\n", data), nil
	}
}

// formatTemplate applies a template to data
func (f *TextFormatter) formatTemplate(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}
