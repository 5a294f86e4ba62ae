package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError("Global.LogLevel", fmt.Sprintf("无法解析: %s", g.LogLevel))
	}
	if strings.TrimSpace(g.CacheRoot) == "" {
		return newFieldError("Global.CacheRoot", "不能为空")
	}
	if err := validateDirName(g.CacheDirName); err != nil {
		return newFieldError("Global.CacheDirName", err.Error())
	}
	if g.MetadataCapacity <= 0 {
		return newFieldError("Global.MetadataCapacity", "必须大于 0")
	}
	if g.BlobIndexCapacity <= 0 {
		return newFieldError("Global.BlobIndexCapacity", "必须大于 0")
	}
	if g.FetchTimeout.DurationValue() <= 0 {
		return newFieldError("Global.FetchTimeout", "必须大于 0")
	}

	if c.HasObjectStore() {
		if err := validateEndpoint(c.ObjectStore.Endpoint); err != nil {
			return fmt.Errorf("%s: %w", sectionField("ObjectStore", "Endpoint"), err)
		}
		if strings.TrimSpace(c.ObjectStore.Bucket) == "" {
			return newFieldError(sectionField("ObjectStore", "Bucket"), "不能为空")
		}
	}

	d := c.DevServer
	if d.ListenPort <= 0 || d.ListenPort > 65535 {
		return newFieldError(sectionField("DevServer", "ListenPort"), "必须在 1-65535")
	}
	if d.URLTTL.DurationValue() <= 0 {
		return newFieldError(sectionField("DevServer", "URLTTL"), "必须大于 0")
	}
	if d.PublicURL != "" {
		if err := validateEndpoint(d.PublicURL); err != nil {
			return fmt.Errorf("%s: %w", sectionField("DevServer", "PublicURL"), err)
		}
	}

	return nil
}

func validateDirName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return errors.New("不能为空")
	}
	if trimmed == "." || trimmed == ".." || strings.ContainsAny(trimmed, `/\`) {
		return errors.New("必须是单层目录名")
	}
	return nil
}

func validateEndpoint(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("无法解析: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("仅支持 http/https")
	}
	if parsed.Host == "" {
		return errors.New("缺少主机名")
	}
	return nil
}
