package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	pushSection = `[push]
enabled = true
url = "http://192.168.1.6:5000"`
	telemetrySection = `[telemetry]
enabled = true
broker = "tcp://192.168.1.6:1883"
client_id = "dashboard-1"
qos = 1`
	kitchenCameraSection = `[camera.kitchen]
title = "Kitchen"
url = "http://192.168.1.6:5000/fire_video_feed"`
	frontCameraSection = `[camera.front_door]
title = "Front Door"
url = "http://192.168.1.6:5000/cctv_video_feed"`
)

func TestLoadSnapshotDefaults(t *testing.T) {
	t.Parallel()

	cfg := mustLoadSnapshot(t, `[service]
name = "home"`)

	if cfg.Service.Name != "home" || cfg.Service.InitialMode != "passive" {
		t.Fatalf("unexpected service section: %+v", cfg.Service)
	}
	if cfg.EventLog.Capacity != 500 {
		t.Fatalf("unexpected capacity %d", cfg.EventLog.Capacity)
	}
	if cfg.Thresholds.LPG.WarningPPM != 300 || cfg.Thresholds.LPG.DangerPPM != 700 {
		t.Fatalf("unexpected lpg thresholds: %+v", cfg.Thresholds.LPG)
	}
	if cfg.Thresholds.Smoke.WarningPPM != 200 || cfg.Thresholds.Smoke.DangerPPM != 500 {
		t.Fatalf("unexpected smoke thresholds: %+v", cfg.Thresholds.Smoke)
	}
	if cfg.Telemetry.ButtonResetMS != 100 {
		t.Fatalf("unexpected button reset %d", cfg.Telemetry.ButtonResetMS)
	}
	if cfg.Journal.Backend != JournalBackendNone || cfg.Journal.Redis.MaxLen != 500 {
		t.Fatalf("unexpected journal defaults: %+v", cfg.Journal)
	}
	if !cfg.Log.Console.Enabled {
		t.Fatalf("expected console log enabled by default")
	}
	if cfg.Announce.Telegram.Retry.Backoff != "exponential" || cfg.Announce.HTTP.Method != "POST" {
		t.Fatalf("unexpected announce defaults: %+v", cfg.Announce)
	}
}

func TestDefaultTelemetryTopics(t *testing.T) {
	t.Parallel()

	topics := Default().Telemetry.Topics
	want := map[string]string{
		"door":   "home/sensor/door",
		"lpg":    "home/sensor/mq6/lpg",
		"smoke":  "home/sensor/mq2/smoke",
		"button": "home/sensor/button",
		"buzzer": "home/control/buzzer",
	}
	got := map[string]string{
		"door":   topics.Door,
		"lpg":    topics.LPG,
		"smoke":  topics.Smoke,
		"button": topics.Button,
		"buzzer": topics.Buzzer,
	}
	for name, topic := range want {
		if got[name] != topic {
			t.Fatalf("default %s topic: got %q want %q", name, got[name], topic)
		}
	}
}

func TestLoadSnapshotChannelsAndCameras(t *testing.T) {
	t.Parallel()

	cfg := mustLoadSnapshot(t, joinSections(
		`[service]
initial_mode = "Stand by"`,
		pushSection,
		telemetrySection,
		frontCameraSection,
		kitchenCameraSection,
	))

	if cfg.Service.InitialMode != "Stand by" {
		t.Fatalf("unexpected initial mode %q", cfg.Service.InitialMode)
	}
	if !cfg.Push.Enabled || cfg.Push.Path != "/socket.io/" || cfg.Push.Reconnect.FailureThreshold != 5 ||
		cfg.Push.Reconnect.FailureDecaySec != 30 || cfg.Push.Reconnect.BackoffMS != 15000 {
		t.Fatalf("unexpected push config: %+v", cfg.Push)
	}
	if cfg.Telemetry.QoS != 1 || cfg.Telemetry.ClientID != "dashboard-1" {
		t.Fatalf("unexpected telemetry config: %+v", cfg.Telemetry)
	}
	if len(cfg.Camera) != 2 {
		t.Fatalf("expected 2 cameras, got %d", len(cfg.Camera))
	}
	if cfg.Camera[0].Name != "front_door" || cfg.Camera[1].Name != "kitchen" {
		t.Fatalf("cameras must be sorted by name: %+v", cfg.Camera)
	}
}

func TestLoadSnapshotFromDirOverlaysFragments(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	writeConfigFile(t, filepath.Join(tmpDir, "10-base.toml"), joinSections(
		pushSection,
		`[eventlog]
capacity = 50`,
	))
	writeConfigFile(t, filepath.Join(tmpDir, "20-override.toml"), joinSections(
		`[push]
enabled = false`,
		kitchenCameraSection,
	))
	writeConfigFile(t, filepath.Join(tmpDir, "notes.txt"), "ignored")

	cfg, err := LoadSnapshot(ConfigSource{Dir: tmpDir})
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if cfg.Push.Enabled {
		t.Fatalf("expected later fragment to disable push")
	}
	if cfg.Push.URL != "http://192.168.1.6:5000" {
		t.Fatalf("expected earlier push url to survive, got %q", cfg.Push.URL)
	}
	if cfg.EventLog.Capacity != 50 {
		t.Fatalf("expected capacity from first fragment, got %d", cfg.EventLog.Capacity)
	}
	if len(cfg.Camera) != 1 || cfg.Camera[0].Name != "kitchen" {
		t.Fatalf("unexpected cameras: %+v", cfg.Camera)
	}
}

func TestLoadSnapshotFromEmptyDirFails(t *testing.T) {
	t.Parallel()

	_, err := LoadSnapshot(ConfigSource{Dir: t.TempDir()})
	if err == nil || !strings.Contains(err.Error(), "no .toml files") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadSnapshotValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "bad mode",
			content: "[service]\ninitial_mode = \"armed\"",
			want:    "service.initial_mode",
		},
		{
			name:    "negative capacity",
			content: "[eventlog]\ncapacity = -1",
			want:    "eventlog.capacity",
		},
		{
			name:    "inverted thresholds",
			content: "[thresholds.lpg]\nwarning_ppm = 800\ndanger_ppm = 700",
			want:    "thresholds.lpg.warning_ppm",
		},
		{
			name:    "push url scheme",
			content: "[push]\nenabled = true\nurl = \"tcp://backend:5000\"",
			want:    "push.url scheme",
		},
		{
			name:    "relative push path",
			content: "[push]\npath = \"socket.io\"",
			want:    "push.path",
		},
		{
			name:    "bad allowed origin",
			content: "[api]\nallowed_origins = [\"dashboard.local\"]",
			want:    "api.allowed_origins",
		},
		{
			name:    "qos out of range",
			content: "[telemetry]\nqos = 3",
			want:    "telemetry.qos",
		},
		{
			name:    "camera without url",
			content: "[camera.kitchen]\ntitle = \"Kitchen\"",
			want:    "camera.kitchen.url",
		},
		{
			name:    "camera explicit name",
			content: "[camera.kitchen]\nname = \"other\"\nurl = \"http://x\"",
			want:    "camera.kitchen.name is not supported",
		},
		{
			name:    "unknown journal",
			content: "[journal]\nbackend = \"kafka\"",
			want:    "journal.backend",
		},
		{
			name:    "telegram without token",
			content: "[announce.telegram]\nenabled = true\nchat_id = \"1\"",
			want:    "announce.telegram.bot_token",
		},
		{
			name:    "broken template",
			content: "[announce.http]\ntemplate = \"{{ .Title \"",
			want:    "announce.http.template is invalid",
		},
		{
			name:    "file log without path",
			content: "[log.file]\nenabled = true",
			want:    "log.file.path",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := loadSnapshotErr(t, tc.content)
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestFromCLI(t *testing.T) {
	t.Parallel()

	if _, err := FromCLI("", ""); err == nil {
		t.Fatalf("expected error without sources")
	}
	if _, err := FromCLI("a.toml", "dir"); err == nil {
		t.Fatalf("expected error with both sources")
	}
	src, err := FromCLI(" a.toml ", "")
	if err != nil || src.File != "a.toml" {
		t.Fatalf("unexpected source %+v err=%v", src, err)
	}
}

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	if err := validateConfig(Default()); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func mustLoadSnapshot(t *testing.T, content string) Config {
	t.Helper()
	cfg, err := loadSnapshotFromContent(t, content)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	return cfg
}

func loadSnapshotErr(t *testing.T, content string) error {
	t.Helper()
	_, err := loadSnapshotFromContent(t, content)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	return err
}

func loadSnapshotFromContent(t *testing.T, content string) (Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfigFile(t, path, content)
	return LoadSnapshot(ConfigSource{File: path})
}

func joinSections(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		nonEmpty = append(nonEmpty, trimmed)
	}
	return strings.Join(nonEmpty, "\n\n") + "\n"
}

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}
