package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"homeguard/internal/domain"
	"homeguard/internal/templatefmt"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultServiceName       = "homeguard"
	defaultHTTPListen        = ":8080"
	defaultHealthPath        = "/healthz"
	defaultReadyPath         = "/readyz"
	defaultWSPath            = "/ws"
	defaultMaxBodyBytes      = 1 << 20
	defaultEventLogCapacity  = 500
	defaultLPGWarningPPM     = 300
	defaultLPGDangerPPM      = 700
	defaultSmokeWarningPPM   = 200
	defaultSmokeDangerPPM    = 500
	defaultPushURL           = "http://127.0.0.1:5000"
	defaultPushPath          = "/socket.io/"
	defaultHandshakeSec      = 10
	defaultFailureThreshold  = 5
	defaultFailureDecaySec   = 30
	defaultFailureBackoffMS  = 15000
	defaultWriteTimeoutSec   = 5
	defaultTelemetryBroker   = "tcp://127.0.0.1:1883"
	defaultTelemetryClientID = "homeguard"
	defaultConnectTimeoutSec = 10
	defaultButtonResetMS     = 100
	defaultDoorTopic         = "home/sensor/door"
	defaultLPGTopic          = "home/sensor/mq6/lpg"
	defaultSmokeTopic        = "home/sensor/mq2/smoke"
	defaultButtonTopic       = "home/sensor/button"
	defaultBuzzerTopic       = "home/control/buzzer"
	defaultQueueSize         = 256
	defaultNATSURL           = "nats://127.0.0.1:4222"
	defaultJournalSubject    = "homeguard.notifications"
	defaultJournalStream     = "HOMEGUARD_NOTIFICATIONS"
	defaultRedisAddr         = "127.0.0.1:6379"
	defaultRedisKey          = "homeguard:notifications"
	defaultTelegramTemplate  = "<b>{{ html .Title }}</b>\n{{ html .Description }}\n<i>{{ fmtTime .Timestamp }}</i>"
	defaultHTTPTemplate      = "{{ .Title }}: {{ .Description }}"

	// JournalBackendNone disables notification journaling.
	JournalBackendNone = "none"
	// JournalBackendNATS mirrors records to a JetStream subject.
	JournalBackendNATS = "nats"
	// JournalBackendRedis mirrors records to a capped Redis list.
	JournalBackendRedis = "redis"

	// AnnounceChannelTelegram identifies Telegram transport.
	AnnounceChannelTelegram = "telegram"
	// AnnounceChannelHTTP identifies generic HTTP webhook transport.
	AnnounceChannelHTTP = "http"
)

// Config holds service runtime settings.
// Params: TOML sections from file or merged directory snapshot.
// Returns: validated runtime configuration.
type Config struct {
	Service    ServiceConfig    `toml:"service"`
	Log        LogConfig        `toml:"log"`
	API        APIConfig        `toml:"api"`
	EventLog   EventLogConfig   `toml:"eventlog"`
	Thresholds ThresholdsConfig `toml:"thresholds"`
	Push       PushConfig       `toml:"push"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
	Camera     []CameraConfig   `toml:"-"`
	Journal    JournalConfig    `toml:"journal"`
	Announce   AnnounceConfig   `toml:"announce"`
}

// rawConfig mirrors TOML model before runtime normalization.
// Params: decoded sections from TOML fragments.
// Returns: camera map keyed by camera name.
type rawConfig struct {
	Service    ServiceConfig              `toml:"service"`
	Log        LogConfig                  `toml:"log"`
	API        APIConfig                  `toml:"api"`
	EventLog   EventLogConfig             `toml:"eventlog"`
	Thresholds ThresholdsConfig           `toml:"thresholds"`
	Push       PushConfig                 `toml:"push"`
	Telemetry  TelemetryConfig            `toml:"telemetry"`
	Camera     map[string]rawCameraConfig `toml:"camera"`
	Journal    JournalConfig              `toml:"journal"`
	Announce   AnnounceConfig             `toml:"announce"`
}

// rawCameraConfig stores one camera body from `[camera.<name>]` table.
type rawCameraConfig struct {
	Name  string `toml:"name"`
	Title string `toml:"title"`
	URL   string `toml:"url"`
}

// ServiceConfig contains process-level settings.
// Params: service name and initial arming mode.
// Returns: service behavior defaults.
type ServiceConfig struct {
	Name        string `toml:"name"`
	InitialMode string `toml:"initial_mode"`
}

// LogConfig configures console and file logging sinks.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink enable flag, level, format, and path.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// APIConfig defines HTTP surface served to dashboards.
// Params: listen address, health paths, websocket path and request body limit.
// Returns: HTTP server options.
type APIConfig struct {
	Listen       string `toml:"listen"`
	HealthPath   string `toml:"health_path"`
	ReadyPath    string `toml:"ready_path"`
	WSPath         string   `toml:"ws_path"`
	MaxBodyBytes   int64    `toml:"max_body_bytes"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// EventLogConfig bounds the notification log.
type EventLogConfig struct {
	Capacity int `toml:"capacity"`
}

// GasThresholdConfig holds warning/danger ppm bounds for one gas sensor.
type GasThresholdConfig struct {
	WarningPPM float64 `toml:"warning_ppm"`
	DangerPPM  float64 `toml:"danger_ppm"`
}

// ThresholdsConfig groups per-sensor gas thresholds.
type ThresholdsConfig struct {
	LPG   GasThresholdConfig `toml:"lpg"`
	Smoke GasThresholdConfig `toml:"smoke"`
}

// PushConfig defines backend push channel (Socket.IO over WebSocket) settings.
// Params: backend URL, Socket.IO path, handshake/write timeouts and supervisor restart policy.
// Returns: push client options.
type PushConfig struct {
	Enabled             bool                `toml:"enabled"`
	URL                 string              `toml:"url"`
	Path                string              `toml:"path"`
	Headers             map[string]string   `toml:"headers"`
	HandshakeTimeoutSec int                 `toml:"handshake_timeout_sec"`
	WriteTimeoutSec     int                 `toml:"write_timeout_sec"`
	Reconnect           PushReconnectConfig `toml:"reconnect"`
}

// PushReconnectConfig maps onto the session supervisor restart policy.
// Params: failure count before backoff, failure decay and backoff length.
// Returns: suture.Spec failure settings.
type PushReconnectConfig struct {
	FailureThreshold float64 `toml:"failure_threshold"`
	FailureDecaySec  float64 `toml:"failure_decay_sec"`
	BackoffMS        int     `toml:"backoff_ms"`
}

// TelemetryConfig defines MQTT broker settings.
// Params: broker address, credentials, qos, topic set and button pulse length.
// Returns: telemetry adapter options.
type TelemetryConfig struct {
	Enabled           bool            `toml:"enabled"`
	Broker            string          `toml:"broker"`
	ClientID          string          `toml:"client_id"`
	Username          string          `toml:"username"`
	Password          string          `toml:"password"`
	QoS               int             `toml:"qos"`
	ConnectTimeoutSec int             `toml:"connect_timeout_sec"`
	ButtonResetMS     int             `toml:"button_reset_ms"`
	Topics            TelemetryTopics `toml:"topics"`
}

// TelemetryTopics names inbound sensor topics and the outbound buzzer topic.
type TelemetryTopics struct {
	Door   string `toml:"door"`
	LPG    string `toml:"lpg"`
	Smoke  string `toml:"smoke"`
	Button string `toml:"button"`
	Buzzer string `toml:"buzzer"`
}

// CameraConfig is one video feed exposed as pass-through URL.
type CameraConfig struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// JournalConfig selects external mirror for notification records.
// Params: backend name, local queue size and backend-specific blocks.
// Returns: journal runtime options.
type JournalConfig struct {
	Backend   string             `toml:"backend"`
	QueueSize int                `toml:"queue_size"`
	NATS      JournalNATSConfig  `toml:"nats"`
	Redis     JournalRedisConfig `toml:"redis"`
}

// JournalNATSConfig configures JetStream journal target.
type JournalNATSConfig struct {
	URL     []string `toml:"url"`
	Subject string   `toml:"subject"`
	Stream  string   `toml:"stream"`
}

// JournalRedisConfig configures Redis journal target.
type JournalRedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Key      string `toml:"key"`
	MaxLen   int    `toml:"max_len"`
}

// AnnounceConfig configures outbound delivery of announced records.
// Params: queue size and per-channel settings.
// Returns: announcer runtime options.
type AnnounceConfig struct {
	QueueSize int              `toml:"queue_size"`
	Telegram  TelegramAnnounce `toml:"telegram"`
	HTTP      HTTPAnnounce     `toml:"http"`
}

// AnnounceRetry configures outbound delivery retries.
// Params: retry toggle, backoff, attempt limits, and logging.
// Returns: retry policy for announcements.
type AnnounceRetry struct {
	Enabled        bool   `toml:"enabled"`
	Backoff        string `toml:"backoff"`
	InitialMS      int    `toml:"initial_ms"`
	MaxMS          int    `toml:"max_ms"`
	MaxAttempts    int    `toml:"max_attempts"`
	LogEachAttempt bool   `toml:"log_each_attempt"`
}

// TelegramAnnounce defines Telegram channel settings.
// Params: enabled flag, bot token, chat ID, API base URL, template and retry policy.
// Returns: Telegram sender configuration.
type TelegramAnnounce struct {
	Enabled  bool          `toml:"enabled"`
	BotToken string        `toml:"bot_token"`
	ChatID   string        `toml:"chat_id"`
	APIBase  string        `toml:"api_base"`
	Template string        `toml:"template"`
	Retry    AnnounceRetry `toml:"retry"`
}

// HTTPAnnounce defines generic outbound HTTP webhook.
// Params: URL, method, timeout, static headers, template and retry policy.
// Returns: HTTP sender configuration.
type HTTPAnnounce struct {
	Enabled    bool              `toml:"enabled"`
	URL        string            `toml:"url"`
	Method     string            `toml:"method"`
	TimeoutSec int               `toml:"timeout_sec"`
	Headers    map[string]string `toml:"headers"`
	Template   string            `toml:"template"`
	Retry      AnnounceRetry     `toml:"retry"`
}

// ConfigSource describes where config snapshot is loaded from.
// Params: exactly one of file path or directory path.
// Returns: source descriptor for LoadSnapshot.
type ConfigSource struct {
	File string
	Dir  string
}

// FromCLI builds normalized source configuration from input paths.
// Params: optional file and directory arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath string) (ConfigSource, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)

	if filePath == "" && dirPath == "" {
		return ConfigSource{}, errors.New("either --config-file or --config-dir must be provided")
	}
	if filePath != "" && dirPath != "" {
		return ConfigSource{}, errors.New("config source must be either file or dir")
	}

	if filePath != "" {
		return ConfigSource{File: filePath}, nil
	}
	return ConfigSource{Dir: dirPath}, nil
}

// LoadSnapshot loads and validates configuration from one source.
// Params: source selects file or directory mode.
// Returns: validated config or load/validation error.
func LoadSnapshot(src ConfigSource) (Config, error) {
	var raw rawConfig
	var err error
	if src.File != "" {
		err = decodeFile(src.File, &raw)
	} else {
		err = decodeDir(src.Dir, &raw)
	}
	if err != nil {
		return Config{}, err
	}
	cfg, err := normalizeRawConfig(raw)
	if err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns a validated config with every default applied.
// Params: none.
// Returns: config equivalent to an empty TOML file.
func Default() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// decodeFile decodes one TOML file on top of already decoded values.
// Params: file path and destination raw config.
// Returns: read/decode error.
func decodeFile(path string, raw *rawConfig) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := toml.Unmarshal(body, raw); err != nil {
		return fmt.Errorf("decode config file %q: %w", path, err)
	}
	return nil
}

// decodeDir overlays every *.toml file of one directory in lexical order.
// Params: directory containing config fragments and destination raw config.
// Returns: read/decode error.
func decodeDir(dir string, raw *rawConfig) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read config dir %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(entry.Name())) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	if len(files) == 0 {
		return fmt.Errorf("no .toml files found in %q", dir)
	}
	sort.Strings(files)

	for _, file := range files {
		if err := decodeFile(file, raw); err != nil {
			return err
		}
	}
	return nil
}

// normalizeRawConfig converts raw TOML model to runtime config.
// Params: decoded raw config.
// Returns: normalized config with cameras sorted by name.
func normalizeRawConfig(raw rawConfig) (Config, error) {
	cfg := Config{
		Service:    raw.Service,
		Log:        raw.Log,
		API:        raw.API,
		EventLog:   raw.EventLog,
		Thresholds: raw.Thresholds,
		Push:       raw.Push,
		Telemetry:  raw.Telemetry,
		Journal:    raw.Journal,
		Announce:   raw.Announce,
	}
	if len(raw.Camera) == 0 {
		return cfg, nil
	}

	names := make([]string, 0, len(raw.Camera))
	for name := range raw.Camera {
		names = append(names, name)
	}
	sort.Strings(names)
	cfg.Camera = make([]CameraConfig, 0, len(names))
	for _, name := range names {
		body := raw.Camera[name]
		if strings.TrimSpace(body.Name) != "" {
			return Config{}, fmt.Errorf("camera.%s.name is not supported; use [camera.%s] key as camera name", name, name)
		}
		cfg.Camera = append(cfg.Camera, CameraConfig{
			Name:  name,
			Title: body.Title,
			URL:   body.URL,
		})
	}
	return cfg, nil
}

// applyDefaults fills zero values with service defaults.
// Params: config pointer.
// Returns: defaults applied in place.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = defaultServiceName
	}
	if strings.TrimSpace(cfg.Service.InitialMode) == "" {
		cfg.Service.InitialMode = string(domain.ModePassive)
	}

	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}

	if strings.TrimSpace(cfg.API.Listen) == "" {
		cfg.API.Listen = defaultHTTPListen
	}
	if strings.TrimSpace(cfg.API.HealthPath) == "" {
		cfg.API.HealthPath = defaultHealthPath
	}
	if strings.TrimSpace(cfg.API.ReadyPath) == "" {
		cfg.API.ReadyPath = defaultReadyPath
	}
	if strings.TrimSpace(cfg.API.WSPath) == "" {
		cfg.API.WSPath = defaultWSPath
	}
	if cfg.API.MaxBodyBytes <= 0 {
		cfg.API.MaxBodyBytes = defaultMaxBodyBytes
	}

	if cfg.EventLog.Capacity == 0 {
		cfg.EventLog.Capacity = defaultEventLogCapacity
	}

	if cfg.Thresholds.LPG == (GasThresholdConfig{}) {
		cfg.Thresholds.LPG = GasThresholdConfig{WarningPPM: defaultLPGWarningPPM, DangerPPM: defaultLPGDangerPPM}
	}
	if cfg.Thresholds.Smoke == (GasThresholdConfig{}) {
		cfg.Thresholds.Smoke = GasThresholdConfig{WarningPPM: defaultSmokeWarningPPM, DangerPPM: defaultSmokeDangerPPM}
	}

	if strings.TrimSpace(cfg.Push.URL) == "" {
		cfg.Push.URL = defaultPushURL
	}
	if cfg.Push.HandshakeTimeoutSec <= 0 {
		cfg.Push.HandshakeTimeoutSec = defaultHandshakeSec
	}
	if cfg.Push.WriteTimeoutSec <= 0 {
		cfg.Push.WriteTimeoutSec = defaultWriteTimeoutSec
	}
	if strings.TrimSpace(cfg.Push.Path) == "" {
		cfg.Push.Path = defaultPushPath
	}
	if cfg.Push.Reconnect.FailureThreshold <= 0 {
		cfg.Push.Reconnect.FailureThreshold = defaultFailureThreshold
	}
	if cfg.Push.Reconnect.FailureDecaySec <= 0 {
		cfg.Push.Reconnect.FailureDecaySec = defaultFailureDecaySec
	}
	if cfg.Push.Reconnect.BackoffMS <= 0 {
		cfg.Push.Reconnect.BackoffMS = defaultFailureBackoffMS
	}

	if strings.TrimSpace(cfg.Telemetry.Broker) == "" {
		cfg.Telemetry.Broker = defaultTelemetryBroker
	}
	if strings.TrimSpace(cfg.Telemetry.ClientID) == "" {
		cfg.Telemetry.ClientID = defaultTelemetryClientID
	}
	if cfg.Telemetry.ConnectTimeoutSec <= 0 {
		cfg.Telemetry.ConnectTimeoutSec = defaultConnectTimeoutSec
	}
	if cfg.Telemetry.ButtonResetMS <= 0 {
		cfg.Telemetry.ButtonResetMS = defaultButtonResetMS
	}
	fillTopicDefault(&cfg.Telemetry.Topics.Door, defaultDoorTopic)
	fillTopicDefault(&cfg.Telemetry.Topics.LPG, defaultLPGTopic)
	fillTopicDefault(&cfg.Telemetry.Topics.Smoke, defaultSmokeTopic)
	fillTopicDefault(&cfg.Telemetry.Topics.Button, defaultButtonTopic)
	fillTopicDefault(&cfg.Telemetry.Topics.Buzzer, defaultBuzzerTopic)

	cfg.Journal.Backend = NormalizeJournalBackend(cfg.Journal.Backend)
	if cfg.Journal.QueueSize <= 0 {
		cfg.Journal.QueueSize = defaultQueueSize
	}
	cfg.Journal.NATS.URL = normalizeNATSURLs(cfg.Journal.NATS.URL)
	if len(cfg.Journal.NATS.URL) == 0 {
		cfg.Journal.NATS.URL = []string{defaultNATSURL}
	}
	if strings.TrimSpace(cfg.Journal.NATS.Subject) == "" {
		cfg.Journal.NATS.Subject = defaultJournalSubject
	}
	if strings.TrimSpace(cfg.Journal.NATS.Stream) == "" {
		cfg.Journal.NATS.Stream = defaultJournalStream
	}
	if strings.TrimSpace(cfg.Journal.Redis.Addr) == "" {
		cfg.Journal.Redis.Addr = defaultRedisAddr
	}
	if strings.TrimSpace(cfg.Journal.Redis.Key) == "" {
		cfg.Journal.Redis.Key = defaultRedisKey
	}
	if cfg.Journal.Redis.MaxLen <= 0 {
		cfg.Journal.Redis.MaxLen = cfg.EventLog.Capacity
	}

	if cfg.Announce.QueueSize <= 0 {
		cfg.Announce.QueueSize = defaultQueueSize
	}
	if cfg.Announce.Telegram.APIBase == "" {
		cfg.Announce.Telegram.APIBase = "https://api.telegram.org"
	}
	if strings.TrimSpace(cfg.Announce.Telegram.Template) == "" {
		cfg.Announce.Telegram.Template = defaultTelegramTemplate
	}
	fillRetryDefaults(&cfg.Announce.Telegram.Retry)
	if cfg.Announce.HTTP.Method == "" {
		cfg.Announce.HTTP.Method = "POST"
	}
	if cfg.Announce.HTTP.TimeoutSec <= 0 {
		cfg.Announce.HTTP.TimeoutSec = 10
	}
	if strings.TrimSpace(cfg.Announce.HTTP.Template) == "" {
		cfg.Announce.HTTP.Template = defaultHTTPTemplate
	}
	fillRetryDefaults(&cfg.Announce.HTTP.Retry)
}

func fillTopicDefault(topic *string, fallback string) {
	if strings.TrimSpace(*topic) == "" {
		*topic = fallback
	}
}

// fillRetryDefaults normalizes retry policy fields for one channel.
// Params: retry policy pointer.
// Returns: policy defaults applied in place.
func fillRetryDefaults(retry *AnnounceRetry) {
	if retry == nil {
		return
	}
	if retry.Backoff == "" {
		retry.Backoff = "exponential"
	}
	if retry.InitialMS <= 0 {
		retry.InitialMS = 500
	}
	if retry.MaxMS <= 0 {
		retry.MaxMS = 60000
	}
}

// validateConfig validates full runtime configuration.
// Params: cfg snapshot to validate.
// Returns: first failing check as error.
func validateConfig(cfg Config) error {
	if _, ok := domain.ParseMode(cfg.Service.InitialMode); !ok {
		return fmt.Errorf("service.initial_mode has unsupported value %q", cfg.Service.InitialMode)
	}
	if err := validateLogSink("log.console", cfg.Log.Console, false); err != nil {
		return err
	}
	if err := validateLogSink("log.file", cfg.Log.File, true); err != nil {
		return err
	}

	for name, path := range map[string]string{
		"api.health_path": cfg.API.HealthPath,
		"api.ready_path":  cfg.API.ReadyPath,
		"api.ws_path":     cfg.API.WSPath,
	} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("%s must start with /", name)
		}
	}

	if cfg.EventLog.Capacity <= 0 {
		return errors.New("eventlog.capacity must be >0")
	}
	if err := validateGasThresholds("thresholds.lpg", cfg.Thresholds.LPG); err != nil {
		return err
	}
	if err := validateGasThresholds("thresholds.smoke", cfg.Thresholds.Smoke); err != nil {
		return err
	}

	if cfg.Push.Enabled {
		parsed, err := url.Parse(cfg.Push.URL)
		if err != nil || parsed.Host == "" {
			return fmt.Errorf("push.url must be an absolute URL, got %q", cfg.Push.URL)
		}
		switch parsed.Scheme {
		case "http", "https", "ws", "wss":
		default:
			return fmt.Errorf("push.url scheme must be http, https, ws or wss, got %q", cfg.Push.URL)
		}
	}
	if !strings.HasPrefix(cfg.Push.Path, "/") {
		return errors.New("push.path must start with /")
	}
	for _, origin := range cfg.API.AllowedOrigins {
		if origin == "*" {
			continue
		}
		parsed, err := url.Parse(origin)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("api.allowed_origins entry %q must be scheme://host[:port] or *", origin)
		}
	}

	if cfg.Telemetry.QoS < 0 || cfg.Telemetry.QoS > 2 {
		return fmt.Errorf("telemetry.qos must be 0, 1 or 2, got %d", cfg.Telemetry.QoS)
	}
	if cfg.Telemetry.Enabled {
		if _, err := url.Parse(cfg.Telemetry.Broker); err != nil {
			return fmt.Errorf("telemetry.broker is invalid: %w", err)
		}
	}

	for _, camera := range cfg.Camera {
		if strings.TrimSpace(camera.URL) == "" {
			return fmt.Errorf("camera.%s.url is required", camera.Name)
		}
	}

	switch cfg.Journal.Backend {
	case JournalBackendNone, JournalBackendNATS:
	case JournalBackendRedis:
		if cfg.Journal.Redis.DB < 0 {
			return errors.New("journal.redis.db must be >=0")
		}
	default:
		return fmt.Errorf("journal.backend has unsupported value %q", cfg.Journal.Backend)
	}

	if cfg.Announce.Telegram.Enabled {
		if strings.TrimSpace(cfg.Announce.Telegram.BotToken) == "" {
			return errors.New("announce.telegram.bot_token is required")
		}
		if strings.TrimSpace(cfg.Announce.Telegram.ChatID) == "" {
			return errors.New("announce.telegram.chat_id is required")
		}
	}
	if err := validateMessageTemplate("announce.telegram.template", cfg.Announce.Telegram.Template); err != nil {
		return err
	}
	if err := validateRetry("announce.telegram.retry", cfg.Announce.Telegram.Retry); err != nil {
		return err
	}
	if cfg.Announce.HTTP.Enabled && strings.TrimSpace(cfg.Announce.HTTP.URL) == "" {
		return errors.New("announce.http.url is required")
	}
	if err := validateMessageTemplate("announce.http.template", cfg.Announce.HTTP.Template); err != nil {
		return err
	}
	if err := validateRetry("announce.http.retry", cfg.Announce.HTTP.Retry); err != nil {
		return err
	}
	return nil
}

func validateGasThresholds(path string, thresholds GasThresholdConfig) error {
	if thresholds.WarningPPM < 0 || thresholds.DangerPPM < 0 {
		return fmt.Errorf("%s values must be >=0", path)
	}
	if thresholds.WarningPPM >= thresholds.DangerPPM {
		return fmt.Errorf("%s.warning_ppm must be < danger_ppm", path)
	}
	return nil
}

func validateRetry(path string, retry AnnounceRetry) error {
	switch retry.Backoff {
	case "fixed", "exponential":
	default:
		return fmt.Errorf("%s.backoff has unsupported value %q", path, retry.Backoff)
	}
	if retry.MaxAttempts < 0 {
		return fmt.Errorf("%s.max_attempts must be >=0", path)
	}
	if retry.MaxMS < retry.InitialMS {
		return fmt.Errorf("%s.max_ms must be >= initial_ms", path)
	}
	return nil
}

// NormalizeJournalBackend lowercases backend name with none as default.
func NormalizeJournalBackend(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return JournalBackendNone
	}
	return normalized
}

func normalizeNATSURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

// validateMessageTemplate validates one announcement template body.
// Params: field path and template body.
// Returns: parse/empty error.
func validateMessageTemplate(path, body string) error {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return fmt.Errorf("%s is required", path)
	}
	if _, err := templatefmt.ParseAnnouncementTemplate(path, trimmed); err != nil {
		return fmt.Errorf("%s is invalid: %w", path, err)
	}
	return nil
}

// validateLogSink validates one log sink configuration.
// Params: sink name, sink values, and whether path is required.
// Returns: sink validation error.
func validateLogSink(name string, sink LogSinkConfig, requirePath bool) error {
	if !sink.Enabled {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(sink.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%s.level has unsupported value %q", name, sink.Level)
	}

	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "line", "json":
	default:
		return fmt.Errorf("%s.format has unsupported value %q", name, sink.Format)
	}

	if requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required", name)
	}

	return nil
}
