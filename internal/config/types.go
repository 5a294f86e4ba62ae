package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// GlobalConfig 描述日志与本地缓存的全局参数。
type GlobalConfig struct {
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`

	// CacheRoot 是平台 caches 目录，为空时使用 os.UserCacheDir()。
	CacheRoot         string   `mapstructure:"CacheRoot"`
	CacheDirName      string   `mapstructure:"CacheDirName"`
	MetadataCapacity  int      `mapstructure:"MetadataCapacity"`
	BlobIndexCapacity int      `mapstructure:"BlobIndexCapacity"`
	DedupeDownloads   bool     `mapstructure:"DedupeDownloads"`
	FetchTimeout      Duration `mapstructure:"FetchTimeout"`
}

// ObjectStoreConfig 描述远端对象存储的访问方式。
type ObjectStoreConfig struct {
	Endpoint string `mapstructure:"Endpoint"`
	Bucket   string `mapstructure:"Bucket"`
	Token    string `mapstructure:"Token"`
}

// DevServerConfig 控制本地开发用对象存储服务。
type DevServerConfig struct {
	ListenPort  int      `mapstructure:"ListenPort"`
	StoragePath string   `mapstructure:"StoragePath"`
	URLTTL      Duration `mapstructure:"URLTTL"`
	// PublicURL 是签名 URL 使用的外部地址，为空时使用请求的 BaseURL。
	PublicURL string `mapstructure:"PublicURL"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global      GlobalConfig      `mapstructure:",squash"`
	ObjectStore ObjectStoreConfig `mapstructure:"ObjectStore"`
	DevServer   DevServerConfig   `mapstructure:"DevServer"`
}

// HasObjectStore 表示是否配置了远端对象存储。
func (c *Config) HasObjectStore() bool {
	return strings.TrimSpace(c.ObjectStore.Endpoint) != ""
}

// AuthMode 输出 `token` 或 `anonymous`，供日志字段使用。
func (o ObjectStoreConfig) AuthMode() string {
	if o.Token != "" {
		return "token"
	}
	return "anonymous"
}
