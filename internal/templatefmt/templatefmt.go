package templatefmt

import (
	"encoding/json"
	"html"
	"text/template"
	"time"
)

// TimeLayout is the default layout used by fmtTime.
const TimeLayout = "2006-01-02 15:04:05"

// FuncMap returns shared announcement template helpers.
// Params: none.
// Returns: deterministic helper map used by config validation and runtime rendering.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"fmtTime": FormatTime,
		"html":    html.EscapeString,
		"json":    MarshalJSON,
	}
}

// ParseAnnouncementTemplate parses one announcement template with shared helpers.
// Params: template name and body.
// Returns: compiled template or parse error.
func ParseAnnouncementTemplate(name, body string) (*template.Template, error) {
	return template.New(name).Funcs(FuncMap()).Option("missingkey=error").Parse(body)
}

// FormatTime renders timestamp in UTC with TimeLayout.
// Params: template value expected as time.Time or *time.Time.
// Returns: formatted timestamp or empty string for zero/unsupported values.
func FormatTime(value any) string {
	var ts time.Time
	switch typed := value.(type) {
	case time.Time:
		ts = typed
	case *time.Time:
		if typed == nil {
			return ""
		}
		ts = *typed
	default:
		return ""
	}
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(TimeLayout)
}

// MarshalJSON renders value into JSON string for template embedding.
// Params: template value of any type.
// Returns: marshaled JSON string or "null" on marshal failure.
func MarshalJSON(value any) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "null"
	}
	return string(encoded)
}
