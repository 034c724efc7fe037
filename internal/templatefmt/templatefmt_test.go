package templatefmt

import (
	"bytes"
	"testing"
	"time"
)

func TestParseAnnouncementTemplateHelpers(t *testing.T) {
	t.Parallel()

	tmpl, err := ParseAnnouncementTemplate("t", `<b>{{ html .Title }}</b> at {{ fmtTime .At }} {{ json .Tags }}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var out bytes.Buffer
	err = tmpl.Execute(&out, map[string]any{
		"Title": "Fire <Sensor>",
		"At":    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		"Tags":  []string{"kitchen"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	want := `<b>Fire &lt;Sensor&gt;</b> at 2026-01-02 03:04:05 ["kitchen"]`
	if out.String() != want {
		t.Fatalf("unexpected render:\n got %q\nwant %q", out.String(), want)
	}
}

func TestParseAnnouncementTemplateMissingKey(t *testing.T) {
	t.Parallel()

	tmpl, err := ParseAnnouncementTemplate("t", `{{ .Missing }}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := tmpl.Execute(&bytes.Buffer{}, map[string]any{}); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestFormatTimeUnsupported(t *testing.T) {
	t.Parallel()

	if FormatTime("nope") != "" || FormatTime(time.Time{}) != "" || FormatTime((*time.Time)(nil)) != "" {
		t.Fatalf("expected empty output for unsupported values")
	}
}
