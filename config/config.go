package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/feichai0017/docformat/internal/models"
	"github.com/feichai0017/docformat/pkg/logger"
)

// EnvPrefix namespaces environment overrides: DOCFMT_FORMAT_FILE_TIMEOUT=30s.
const EnvPrefix = "DOCFMT"

var (
	loadOnce sync.Once
	loaded   *Config
	loadErr  error
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Format    FormatConfig    `mapstructure:"format"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	History   HistoryConfig   `mapstructure:"history"`
	Log       logger.Config   `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowOrigins    []string      `mapstructure:"allow_origins"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	DB          int           `mapstructure:"db"`
	Concurrency int           `mapstructure:"concurrency"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	StatusTTL   time.Duration `mapstructure:"status_ttl"`
}

// StorageConfig selects the object store for staged inputs and outputs.
type StorageConfig struct {
	Type  string      `mapstructure:"type"`
	S3    S3Config    `mapstructure:"s3"`
	Minio MinioConfig `mapstructure:"minio"`
}

type S3Config struct {
	BucketName string `mapstructure:"bucket"`
	Region     string `mapstructure:"region"`
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
}

type MinioConfig struct {
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	Endpoint   string `mapstructure:"endpoint"`
	UseSSL     bool   `mapstructure:"use_ssl"`
	Region     string `mapstructure:"region"`
	BucketName string `mapstructure:"bucket"`
}

// FormatConfig 排版流水线配置
type FormatConfig struct {
	MaxFileSize  int64                `mapstructure:"max_file_size"`
	MaxFiles     int                  `mapstructure:"max_files"`
	FileTimeout  time.Duration        `mapstructure:"file_timeout"`
	IndentMode   string               `mapstructure:"indent_mode"`
	ImageLayout  string               `mapstructure:"image_layout"`
	PresetsPath  string               `mapstructure:"presets_path"`
	Profile      models.FormatProfile `mapstructure:"profile"`
	SyncMaxFiles int                  `mapstructure:"sync_max_files"`
	RetainFor    time.Duration        `mapstructure:"retain_for"`

	// NormalizeImages re-encodes BMP/TIFF and oversized pictures; off keeps bytes verbatim.
	NormalizeImages bool `mapstructure:"normalize_images"`
}

// Modes parses the configured indent mode and image layout.
func (c FormatConfig) Modes() (models.IndentMode, models.ImageLayout, error) {
	indent, err := models.ParseIndentMode(c.IndentMode)
	if err != nil {
		return "", "", err
	}
	layout, err := models.ParseImageLayout(c.ImageLayout)
	if err != nil {
		return "", "", err
	}
	return indent, layout, nil
}

type AssistantConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	TopP        float64       `mapstructure:"top_p"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Fallback    string        `mapstructure:"fallback"`
}

type HistoryConfig struct {
	Path string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.allow_origins", []string{"*"})

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.concurrency", 5)
	v.SetDefault("redis.task_timeout", 30*time.Minute)
	v.SetDefault("redis.status_ttl", 24*time.Hour)

	v.SetDefault("storage.type", "minio")
	v.SetDefault("storage.minio.use_ssl", false)

	def := models.DefaultProfile()
	v.SetDefault("format.max_file_size", int64(20<<20))
	v.SetDefault("format.max_files", 50)
	v.SetDefault("format.sync_max_files", 10)
	v.SetDefault("format.file_timeout", 2*time.Minute)
	v.SetDefault("format.indent_mode", string(models.IndentConfigurable))
	v.SetDefault("format.image_layout", string(models.ImageLayoutFixed))
	v.SetDefault("format.presets_path", "")
	v.SetDefault("format.retain_for", 24*time.Hour)
	v.SetDefault("format.normalize_images", false)
	v.SetDefault("format.profile.font", def.Font)
	v.SetDefault("format.profile.font_size", def.FontSizeHalfPoints)
	v.SetDefault("format.profile.line_spacing", def.LineSpacingMultiplier)
	v.SetDefault("format.profile.paragraph_spacing", def.ParagraphSpacingPoints)
	v.SetDefault("format.profile.first_line_indent", def.FirstLineIndentChars)

	v.SetDefault("assistant.endpoint", "https://api.siliconflow.cn/v1/chat/completions")
	v.SetDefault("assistant.model", "Qwen/Qwen2-7B-Instruct")
	v.SetDefault("assistant.max_tokens", 512)
	v.SetDefault("assistant.temperature", 0.7)
	v.SetDefault("assistant.top_p", 0.7)
	v.SetDefault("assistant.timeout", 60*time.Second)
	v.SetDefault("assistant.fallback", "抱歉，我现在无法回答。请稍后再试。")

	v.SetDefault("history.path", "data/history.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.output_paths", []string{"stdout", "logs/app.log"})
}

// legacyEnv keeps the variable names of earlier deployments working.
var legacyEnv = map[string]string{
	"storage.s3.bucket":        "AWS_S3_BUCKET_NAME",
	"storage.s3.region":        "AWS_REGION",
	"storage.s3.endpoint":      "AWS_ENDPOINT",
	"storage.s3.access_key":    "AWS_ACCESS_KEY",
	"storage.s3.secret_key":    "AWS_SECRET_KEY",
	"storage.minio.access_key": "MINIO_ACCESS_KEY",
	"storage.minio.secret_key": "MINIO_SECRET_KEY",
	"storage.minio.endpoint":   "MINIO_ENDPOINT",
	"storage.minio.region":     "MINIO_REGION",
	"storage.minio.bucket":     "MINIO_BUCKET_NAME",
	"assistant.api_key":        "SILICONFLOW_API_KEY",
}

// Load reads .env, then config.yaml (if any), then DOCFMT_* variables.
// configFile may be empty to search ./config.yaml and ./config/config.yaml.
func Load(configFile string) (*Config, error) {
	loadDotEnv()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Get loads the process-wide configuration once.
func Get() (*Config, error) {
	loadOnce.Do(func() {
		loaded, loadErr = Load(os.Getenv(EnvPrefix + "_CONFIG"))
	})
	return loaded, loadErr
}

func (c *Config) validate() error {
	if _, _, err := c.Format.Modes(); err != nil {
		return fmt.Errorf("invalid format config: %w", err)
	}
	if err := c.Format.Profile.Validate(); err != nil {
		return fmt.Errorf("invalid default profile: %w", err)
	}
	if c.Format.FileTimeout <= 0 {
		return fmt.Errorf("invalid format config: file_timeout must be positive")
	}
	switch c.Storage.Type {
	case "s3", "minio", "memory":
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	return nil
}

func loadDotEnv() {
	// 获取当前文件的目录, 构建到项目根目录的路径
	_, filename, _, _ := runtime.Caller(0)
	rootEnv := filepath.Join(filepath.Dir(filepath.Dir(filename)), ".env")

	for _, p := range []string{".env", rootEnv} {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			log.Printf("Warning: failed to load %s: %v", p, err)
		}
		return
	}
}
