package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig 表示配置不可用，扫描无法开始。
var ErrInvalidConfig = errors.New("invalid configuration")

type ScannerConfig struct {
	RootDir          string        `mapstructure:"rootDir" yaml:"rootDir" json:"rootDir"`
	CacheDir         string        `mapstructure:"cacheDir" yaml:"cacheDir" json:"cacheDir"`
	ImageExtensions  []string      `mapstructure:"imageExtensions" yaml:"imageExtensions" json:"imageExtensions"`
	VideoExtensions  []string      `mapstructure:"videoExtensions" yaml:"videoExtensions" json:"videoExtensions"`
	ThumbnailHeight  int           `mapstructure:"thumbnailHeight" yaml:"thumbnailHeight" json:"thumbnailHeight"`
	ThumbnailQuality int           `mapstructure:"thumbnailQuality" yaml:"thumbnailQuality" json:"thumbnailQuality"`
	BlurMaxSize      int           `mapstructure:"blurMaxSize" yaml:"blurMaxSize" json:"blurMaxSize"`
	BlurXComponents  int           `mapstructure:"blurXComponents" yaml:"blurXComponents" json:"blurXComponents"`
	BlurYComponents  int           `mapstructure:"blurYComponents" yaml:"blurYComponents" json:"blurYComponents"`
	WorkerCount      int           `mapstructure:"workerCount" yaml:"workerCount" json:"workerCount"`
	TagCacheTTL      time.Duration `mapstructure:"tagCacheTTL" yaml:"tagCacheTTL" json:"tagCacheTTL"`
}

// ThumbnailDir 缩略图统一存放在缓存目录下，按内容哈希命名。
func (s ScannerConfig) ThumbnailDir() string {
	return filepath.Join(s.CacheDir, "thumbnails")
}

// Validate 检查扫描配置是否可用
func (s ScannerConfig) Validate() error {
	switch {
	case strings.TrimSpace(s.RootDir) == "":
		return fmt.Errorf("%w: scanner.rootDir 不能为空", ErrInvalidConfig)
	case strings.TrimSpace(s.CacheDir) == "":
		return fmt.Errorf("%w: scanner.cacheDir 不能为空", ErrInvalidConfig)
	case len(s.ImageExtensions)+len(s.VideoExtensions) == 0:
		return fmt.Errorf("%w: 至少需要配置一种扩展名", ErrInvalidConfig)
	case s.ThumbnailHeight <= 0:
		return fmt.Errorf("%w: scanner.thumbnailHeight 必须为正数", ErrInvalidConfig)
	case s.ThumbnailQuality < 1 || s.ThumbnailQuality > 100:
		return fmt.Errorf("%w: scanner.thumbnailQuality 必须在 1-100 之间", ErrInvalidConfig)
	case s.BlurMaxSize <= 0:
		return fmt.Errorf("%w: scanner.blurMaxSize 必须为正数", ErrInvalidConfig)
	case s.BlurXComponents < 1 || s.BlurXComponents > 9 || s.BlurYComponents < 1 || s.BlurYComponents > 9:
		return fmt.Errorf("%w: blurhash 分量必须在 1-9 之间", ErrInvalidConfig)
	}
	return nil
}

type DatabaseConfig struct {
	// Driver 取值 mongo 或 sqlite
	Driver       string `mapstructure:"driver" yaml:"driver" json:"driver"`
	URI          string `mapstructure:"uri" yaml:"uri" json:"uri"`
	Name         string `mapstructure:"name" yaml:"name" json:"name"`
	Path         string `mapstructure:"path" yaml:"path" json:"path"`
	Transactions bool   `mapstructure:"transactions" yaml:"transactions" json:"transactions"`
}

type Config struct {
	Server struct {
		Port           string        `mapstructure:"port" yaml:"port" json:"port"`
		Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
		AllowedOrigins []string      `mapstructure:"allowedOrigins" yaml:"allowedOrigins" json:"allowedOrigins"`
	} `mapstructure:"server" yaml:"server" json:"server"`

	Database DatabaseConfig `mapstructure:"database" yaml:"database" json:"database"`

	Logger struct {
		Level  string `mapstructure:"level" yaml:"level" json:"level"`
		Format string `mapstructure:"format" yaml:"format" json:"format"`
		Path   string `mapstructure:"path" yaml:"path" json:"path"`
	} `mapstructure:"logger" yaml:"logger" json:"logger"`

	Scanner ScannerConfig `mapstructure:"scanner" yaml:"scanner" json:"scanner"`
}

var current atomic.Pointer[Config]

// Get 返回当前生效的配置。返回值只读，修改配置需要构造新值后调用 Set。
func Get() *Config {
	return current.Load()
}

// Set 原子替换当前配置，正在处理的请求继续使用旧值。
func Set(cfg *Config) {
	current.Store(cfg)
}

// redactedPassword 与 url.URL.Redacted 使用的占位符一致
const redactedPassword = "xxxxx"

// RedactURI 隐藏连接串中的密码。无法解析的连接串整体替换为占位符。
func RedactURI(uri string) string {
	if uri == "" {
		return ""
	}
	u, err := url.Parse(uri)
	if err != nil {
		return redactedPassword
	}
	return u.Redacted()
}

// Redacted 返回隐藏了数据库凭据的副本，用于对外展示。
func (c *Config) Redacted() *Config {
	out := *c
	out.Database.URI = RedactURI(c.Database.URI)
	return &out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.timeout", 30*time.Second)
	v.SetDefault("server.allowedOrigins", []string{"http://localhost:3000"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "gallery")
	v.SetDefault("database.path", "gallery.db")
	v.SetDefault("database.transactions", false)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
	v.SetDefault("logger.path", "logs")

	v.SetDefault("scanner.rootDir", "gallery")
	v.SetDefault("scanner.cacheDir", "cache")
	v.SetDefault("scanner.imageExtensions", []string{".jpg", ".jpeg", ".png", ".webp", ".avif", ".gif", ".bmp"})
	v.SetDefault("scanner.videoExtensions", []string{".mp4", ".mkv", ".webm", ".mov", ".avi"})
	v.SetDefault("scanner.thumbnailHeight", 400)
	v.SetDefault("scanner.thumbnailQuality", 85)
	v.SetDefault("scanner.blurMaxSize", 100)
	v.SetDefault("scanner.blurXComponents", 4)
	v.SetDefault("scanner.blurYComponents", 3)
	v.SetDefault("scanner.workerCount", 0)
	v.SetDefault("scanner.tagCacheTTL", 5*time.Minute)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("GALLERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default 返回只包含默认值的配置，主要给测试和没有 config.yaml 的场景使用。
func Default() *Config {
	var cfg Config
	if err := newViper().Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}

// Load 从 path 目录读取 config.yaml；文件不存在时退回默认值。
func Load(path string) (*Config, error) {
	v := newViper()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Scanner.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig 读取配置并设为当前配置
func LoadConfig(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	Set(cfg)
	return nil
}

// Save 将配置以 YAML 写回文件
func Save(file string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("序列化配置为YAML失败: %w", err)
	}
	return os.WriteFile(file, data, 0644)
}
