package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Vision   VisionConfig   `yaml:"vision"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port        int      `yaml:"port"`
	MetricsPort int      `yaml:"metrics_port"`
	APIKey      string   `yaml:"api_key"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL        string        `yaml:"url"`
	AckWait    time.Duration `yaml:"ack_wait"`
	MaxDeliver int           `yaml:"max_deliver"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// VisionConfig selects and tunes the model backends.
type VisionConfig struct {
	// Backend is "onnx" or "disabled".
	Backend            string  `yaml:"backend"`
	ModelsDir          string  `yaml:"models_dir"`
	ORTLibraryPath     string  `yaml:"ort_library_path"`
	FaceModel          string  `yaml:"face_model"`
	EmbeddingModel     string  `yaml:"embedding_model"`
	ObjectModel        string  `yaml:"object_model"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	ObjectThreshold    float64 `yaml:"object_threshold"`
	IntraOpThreads     int     `yaml:"intra_op_threads"`
	WorkerCount        int     `yaml:"worker_count"`
}

type PipelineConfig struct {
	ThumbnailSize     int           `yaml:"thumbnail_size"`
	ThumbnailQuality  int           `yaml:"thumbnail_quality"`
	GroupingThreshold int           `yaml:"grouping_threshold"`
	ClusterThreshold  float64       `yaml:"cluster_threshold"`
	MaxPersonSamples  int           `yaml:"max_person_samples"`
	MaxOriginalBytes  int64         `yaml:"max_original_bytes"`
	FFmpegPath        string        `yaml:"ffmpeg_path"`
	KeyframeTimeout   time.Duration `yaml:"keyframe_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Vision.Backend {
	case "onnx", "disabled":
	default:
		return fmt.Errorf("invalid vision backend %q", c.Vision.Backend)
	}
	if c.Pipeline.ThumbnailQuality < 1 || c.Pipeline.ThumbnailQuality > 100 {
		return fmt.Errorf("thumbnail quality %d out of range 1-100", c.Pipeline.ThumbnailQuality)
	}
	if c.Pipeline.GroupingThreshold < 0 || c.Pipeline.GroupingThreshold > 64 {
		return fmt.Errorf("grouping threshold %d out of range 0-64", c.Pipeline.GroupingThreshold)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 8082
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.NATS.AckWait == 0 {
		cfg.NATS.AckWait = 2 * time.Minute
	}
	if cfg.NATS.MaxDeliver == 0 {
		cfg.NATS.MaxDeliver = 5
	}
	if cfg.Vision.Backend == "" {
		cfg.Vision.Backend = "onnx"
	}
	if cfg.Vision.FaceModel == "" {
		cfg.Vision.FaceModel = "det_10g.onnx"
	}
	if cfg.Vision.EmbeddingModel == "" {
		cfg.Vision.EmbeddingModel = "w600k_r50.onnx"
	}
	if cfg.Vision.ObjectModel == "" {
		cfg.Vision.ObjectModel = "yolov8n.onnx"
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.ObjectThreshold == 0 {
		cfg.Vision.ObjectThreshold = 0.25
	}
	if cfg.Vision.WorkerCount == 0 {
		cfg.Vision.WorkerCount = 4
	}
	if cfg.Pipeline.ThumbnailSize == 0 {
		cfg.Pipeline.ThumbnailSize = 400
	}
	if cfg.Pipeline.ThumbnailQuality == 0 {
		cfg.Pipeline.ThumbnailQuality = 80
	}
	if cfg.Pipeline.GroupingThreshold == 0 {
		cfg.Pipeline.GroupingThreshold = 10
	}
	if cfg.Pipeline.ClusterThreshold == 0 {
		cfg.Pipeline.ClusterThreshold = 0.6
	}
	if cfg.Pipeline.MaxPersonSamples == 0 {
		cfg.Pipeline.MaxPersonSamples = 50
	}
	if cfg.Pipeline.MaxOriginalBytes == 0 {
		cfg.Pipeline.MaxOriginalBytes = 200 << 20
	}
	if cfg.Pipeline.FFmpegPath == "" {
		cfg.Pipeline.FFmpegPath = "ffmpeg"
	}
	if cfg.Pipeline.KeyframeTimeout == 0 {
		cfg.Pipeline.KeyframeTimeout = 30 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PM_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PM_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = port
		}
	}
	if v := os.Getenv("PM_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("PM_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("PM_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("PM_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("PM_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("PM_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("PM_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("PM_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("PM_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("PM_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("PM_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("PM_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("PM_VISION_BACKEND"); v != "" {
		cfg.Vision.Backend = v
	}
	if v := os.Getenv("PM_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("PM_ORT_LIBRARY_PATH"); v != "" {
		cfg.Vision.ORTLibraryPath = v
	}
	if v := os.Getenv("PM_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Vision.WorkerCount = n
		}
	}
	if v := os.Getenv("PM_CLUSTER_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Pipeline.ClusterThreshold = f
		}
	}
	if v := os.Getenv("PM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
