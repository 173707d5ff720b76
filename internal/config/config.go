package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed thresholds.yaml
var thresholdsYAML []byte

type Config struct {
	ModelServer ModelServerConfig
	Gallery     GalleryConfig
	Database    DatabaseConfig
	Roster      RosterConfig
	Notify      NotifyConfig
	Web         WebConfig
	Pipeline    PipelineConfig
}

type ModelServerConfig struct {
	URL string // defaults to http://localhost:8000
}

type GalleryConfig struct {
	IndexPath string // path to the persisted HNSW gallery index (empty: use the database resolver)
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type RosterConfig struct {
	SISDSN string // MariaDB DSN of the student information system (optional roster source)
}

type NotifyConfig struct {
	BaseURL string // base URL of the attendance API receiving pings and flushes
}

type WebConfig struct {
	AllowedOrigins []string // non-localhost origins allowed to call the API
}

// PipelineConfig carries the numeric tuning of the recognition pipeline.
// Defaults come from the embedded thresholds.yaml.
type PipelineConfig struct {
	Detection struct {
		MinConfidence float64 `yaml:"min_confidence"`
		Downscale     float64 `yaml:"downscale"`
	} `yaml:"detection"`
	Liveness struct {
		CropScale float64 `yaml:"crop_scale"`
		PatchSize int     `yaml:"patch_size"`
	} `yaml:"liveness"`
	Embedding struct {
		InputSize int `yaml:"input_size"`
		Dim       int `yaml:"dim"`
	} `yaml:"embedding"`
	Match struct {
		MinSimilarity float64 `yaml:"min_similarity"`
	} `yaml:"match"`
	Vote struct {
		Window int `yaml:"window"`
	} `yaml:"vote"`
	Attendance struct {
		DebounceSeconds int `yaml:"debounce_seconds"`
	} `yaml:"attendance"`
	Frames struct {
		QueueSize     int `yaml:"queue_size"`
		PollTimeoutMs int `yaml:"poll_timeout_ms"`
	} `yaml:"frames"`
}

// Debounce returns the attendance debounce window as a duration.
func (p *PipelineConfig) Debounce() time.Duration {
	return time.Duration(p.Attendance.DebounceSeconds) * time.Second
}

// PollTimeout returns the frame wait timeout as a duration.
func (p *PipelineConfig) PollTimeout() time.Duration {
	return time.Duration(p.Frames.PollTimeoutMs) * time.Millisecond
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func envList(key string) []string {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func Load() *Config {
	var pipeline PipelineConfig
	if err := yaml.Unmarshal(thresholdsYAML, &pipeline); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded thresholds.yaml: " + err.Error())
	}
	pipeline.Attendance.DebounceSeconds = envInt("ATTENDANCE_DEBOUNCE_SECONDS", pipeline.Attendance.DebounceSeconds)
	pipeline.Frames.QueueSize = envInt("FRAME_QUEUE_SIZE", pipeline.Frames.QueueSize)
	pipeline.Frames.PollTimeoutMs = envInt("FRAME_POLL_TIMEOUT_MS", pipeline.Frames.PollTimeoutMs)

	return &Config{
		ModelServer: ModelServerConfig{
			URL: os.Getenv("MODEL_SERVER_URL"),
		},
		Gallery: GalleryConfig{
			IndexPath: os.Getenv("GALLERY_INDEX_PATH"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Roster: RosterConfig{
			SISDSN: os.Getenv("SIS_DATABASE_DSN"),
		},
		Notify: NotifyConfig{
			BaseURL: os.Getenv("ATTENDANCE_API_BASE"),
		},
		Web: WebConfig{
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Pipeline: pipeline,
	}
}
