package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type TelemetryConfig struct {
	LogLevel      string `yaml:"log_level"`
	TraceExporter string `yaml:"trace_exporter"` // none, stdout, otlp
	OTLPEndpoint  string `yaml:"otlp_endpoint"`
	OTLPInsecure  bool   `yaml:"otlp_insecure"`
	MetricsPath   string `yaml:"metrics_path"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string `yaml:"runtime_name"`
	Environment string `yaml:"environment"`
	// Debug follows the environment profile and is not read from the file.
	Debug      bool             `yaml:"-"`
	HTTP       HTTPConfig       `yaml:"http"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Bus        BusConfig        `yaml:"bus"`
	EventStore EventStoreConfig `yaml:"event_store"`
	TTS        TTSConfig        `yaml:"tts"`
	Stitch     StitchConfig     `yaml:"stitch"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"` // ephemeral, persistent
	RetentionDays int    `yaml:"retention_days"`
	MaxJobs       int    `yaml:"max_jobs"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type TTSConfig struct {
	Mode       string `yaml:"mode"` // mock, exec
	Command    string `yaml:"command"`
	Voice      string `yaml:"voice"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	// MockRuneMS is the length of mock audio produced per character.
	MockRuneMS int `yaml:"mock_rune_ms"`
}

type StitchConfig struct {
	TempDir          string `yaml:"temp_dir"`
	SilenceGapMS     int    `yaml:"silence_gap_ms"`
	DownloadName     string `yaml:"download_name"`
	MaxBodyBytes     int64  `yaml:"max_body_bytes"`
	MaxTexts         int    `yaml:"max_texts"`
	RequestTimeoutMS int    `yaml:"request_timeout_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-tts",
		Environment: EnvDevelopment,
		Debug:       true,
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 39685,
		},
		Telemetry: TelemetryConfig{
			LogLevel:      "info",
			TraceExporter: "none",
			OTLPInsecure:  true,
			MetricsPath:   "/metrics",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/loqa-tts.db",
			RetentionMode: "ephemeral",
			RetentionDays: 30,
			MaxJobs:       10000,
		},
		TTS: TTSConfig{
			Mode:       "mock",
			SampleRate: 22050,
			Channels:   1,
			MockRuneMS: 60,
		},
		Stitch: StitchConfig{
			TempDir:      "temp_wavs",
			SilenceGapMS: 0,
			DownloadName: "combined_output.wav",
			MaxBodyBytes: 1 << 20,
		},
	}
}

// Load reads the optional YAML file at path, applies a local .env file and
// LOQA_* environment overrides, and derives the profile flags.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := loadDotenv(".env"); err != nil {
		return cfg, err
	}
	applyEnvOverrides(&cfg)
	applyProfile(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadDotenv never overrides variables already present in the process
// environment.
func loadDotenv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// applyProfile maps the environment label onto its profile. Unknown labels
// are left for validate to reject.
func applyProfile(cfg *Config) {
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	switch cfg.Environment {
	case EnvDevelopment:
		cfg.Debug = true
	case EnvProduction:
		cfg.Debug = false
	}
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.Environment, "LOQA_ENV")
	overrideString(&cfg.HTTP.Bind, "LOQA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.TraceExporter, "LOQA_TELEMETRY_TRACE_EXPORTER")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.MetricsPath, "LOQA_TELEMETRY_METRICS_PATH")
	overrideBool(&cfg.Bus.Enabled, "LOQA_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "LOQA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "LOQA_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOQA_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOQA_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxJobs, "LOQA_EVENT_STORE_MAX_JOBS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOQA_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.TTS.Mode, "LOQA_TTS_MODE")
	overrideString(&cfg.TTS.Command, "LOQA_TTS_COMMAND")
	overrideString(&cfg.TTS.Voice, "LOQA_TTS_VOICE")
	overrideInt(&cfg.TTS.SampleRate, "LOQA_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "LOQA_TTS_CHANNELS")
	overrideInt(&cfg.TTS.MockRuneMS, "LOQA_TTS_MOCK_RUNE_MS")
	overrideString(&cfg.Stitch.TempDir, "LOQA_STITCH_TEMP_DIR")
	overrideInt(&cfg.Stitch.SilenceGapMS, "LOQA_STITCH_SILENCE_GAP_MS")
	overrideString(&cfg.Stitch.DownloadName, "LOQA_STITCH_DOWNLOAD_NAME")
	overrideInt64(&cfg.Stitch.MaxBodyBytes, "LOQA_STITCH_MAX_BODY_BYTES")
	overrideInt(&cfg.Stitch.MaxTexts, "LOQA_STITCH_MAX_TEXTS")
	overrideInt(&cfg.Stitch.RequestTimeoutMS, "LOQA_STITCH_REQUEST_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideInt64(target *int64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	switch cfg.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		return errors.New("environment must be one of development|production")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch cfg.Telemetry.TraceExporter {
	case "none", "stdout":
	case "otlp":
		if strings.TrimSpace(cfg.Telemetry.OTLPEndpoint) == "" {
			return errors.New("telemetry.otlp_endpoint must be set when trace_exporter=otlp")
		}
	default:
		return errors.New("telemetry.trace_exporter must be one of none|stdout|otlp")
	}
	if cfg.Telemetry.MetricsPath != "" && !strings.HasPrefix(cfg.Telemetry.MetricsPath, "/") {
		return errors.New("telemetry.metrics_path must start with /")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port != -1 && (cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535) {
				return errors.New("bus.port must be -1 or between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral":
	case "persistent":
		if cfg.EventStore.Path == "" {
			return errors.New("event_store.path must not be empty when retention_mode=persistent")
		}
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	switch cfg.TTS.Mode {
	case "mock", "exec":
	default:
		return errors.New("tts.mode must be one of mock|exec")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.Channels <= 0 {
		return errors.New("tts.channels must be positive")
	}
	if cfg.Stitch.TempDir == "" {
		return errors.New("stitch.temp_dir must not be empty")
	}
	if cfg.Stitch.SilenceGapMS < 0 {
		return errors.New("stitch.silence_gap_ms must be >= 0")
	}
	if cfg.Stitch.DownloadName == "" {
		return errors.New("stitch.download_name must not be empty")
	}
	if cfg.Stitch.MaxBodyBytes <= 0 {
		return errors.New("stitch.max_body_bytes must be positive")
	}
	if cfg.Stitch.MaxTexts < 0 {
		return errors.New("stitch.max_texts must be >= 0")
	}
	if cfg.Stitch.RequestTimeoutMS < 0 {
		return errors.New("stitch.request_timeout_ms must be >= 0")
	}
	return nil
}
