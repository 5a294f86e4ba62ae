package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// 默认值与 setDefaults 保持一致。
const (
	DefaultCacheDirName      = "exhibition-images"
	DefaultMetadataCapacity  = 100
	DefaultBlobIndexCapacity = 512
	DefaultFetchTimeout      = 30 * time.Second
	DefaultDevListenPort     = 5080
	DefaultURLTTL            = 15 * time.Minute
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyDevServerDefaults(&cfg.DevServer)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(cfg.Global.CacheRoot)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.CacheRoot = absRoot

	if cfg.DevServer.StoragePath != "" {
		absStorage, err := filepath.Abs(cfg.DevServer.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("无法解析对象存储目录: %w", err)
		}
		cfg.DevServer.StoragePath = absStorage
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("CacheRoot", "")
	v.SetDefault("CacheDirName", DefaultCacheDirName)
	v.SetDefault("MetadataCapacity", DefaultMetadataCapacity)
	v.SetDefault("BlobIndexCapacity", DefaultBlobIndexCapacity)
	v.SetDefault("DedupeDownloads", true)
	v.SetDefault("FetchTimeout", "30s")
	v.SetDefault("ObjectStore.Bucket", "exhibitions")
	v.SetDefault("DevServer.ListenPort", DefaultDevListenPort)
	v.SetDefault("DevServer.StoragePath", "./objects")
	v.SetDefault("DevServer.URLTTL", "15m")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.CacheRoot == "" {
		g.CacheRoot = defaultCacheRoot()
	}
	if g.CacheDirName == "" {
		g.CacheDirName = DefaultCacheDirName
	}
	if g.MetadataCapacity == 0 {
		g.MetadataCapacity = DefaultMetadataCapacity
	}
	if g.BlobIndexCapacity == 0 {
		g.BlobIndexCapacity = DefaultBlobIndexCapacity
	}
	if g.FetchTimeout.DurationValue() == 0 {
		g.FetchTimeout = Duration(DefaultFetchTimeout)
	}
}

func applyDevServerDefaults(d *DevServerConfig) {
	if d.ListenPort == 0 {
		d.ListenPort = DefaultDevListenPort
	}
	if d.URLTTL.DurationValue() == 0 {
		d.URLTTL = Duration(DefaultURLTTL)
	}
}

// defaultCacheRoot 返回平台 caches 目录，无法获取时退回 ./cache。
func defaultCacheRoot() string {
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, "photocache")
	}
	return "./cache"
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
