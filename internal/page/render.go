package page

import (
	"html/template"
	"io"
)

// RenderOptions controls the surrounding document.
type RenderOptions struct {
	// RefreshSeconds, when positive, asks the browser to re-fetch the page.
	RefreshSeconds int
}

var pageTemplate = template.Must(template.New("page").Funcs(template.FuncMap{
	"indicatorClass": indicatorClass,
}).Parse(pageHTML))

// Render writes the page as an HTML document.
func (p *Page) Render(w io.Writer, opts RenderOptions) error {
	data := struct {
		View
		RefreshSeconds int
	}{
		View:           p.View(),
		RefreshSeconds: opts.RefreshSeconds,
	}
	return pageTemplate.Execute(w, data)
}

// indicatorClass maps an indicator to its icon classes.
func indicatorClass(i Indicator) string {
	switch i {
	case IndicatorSuccess:
		return "fa-check-circle success"
	case IndicatorWarning:
		return "fa-question-circle warning"
	case IndicatorFailure:
		return "fa-times-circle failure"
	default:
		return ""
	}
}

const pageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
{{- if gt .RefreshSeconds 0}}
<meta http-equiv="refresh" content="{{.RefreshSeconds}}">
{{- end}}
<title>ContaMiner job {{.JobID}}</title>
</head>
<body data-revision="{{.Revision}}">
<div id="messages_placeholder">
{{- range .Notices}}
<div class="alert alert-info fade in" id="message_{{.Key}}"><a href="#" class="close" data-dismiss="alert" aria-label="close">&times;</a><strong>Info! </strong>{{.Text}}</div>
{{- end}}
</div>
<ul class="tasks">
{{- range .Tasks}}
<li id="li_{{.Key}}"{{if not .Settled}} class="running"{{end}}>
<a href="#" data-toggle="popover" data-html="true" data-content="{{.Popover}}">{{.Key}}</a>
{{- if .Progress}}
<i class="fa fa-spinner fa-spin fa_progress"></i>
{{- end}}
<i class="fa fa_result {{indicatorClass .Indicator}}"></i>
</li>
{{- end}}
</ul>
</body>
</html>
`
