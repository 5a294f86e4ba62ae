package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// BlobFields 提供 blob 解析日志的公共字段：远端 key 与命中来源（memory/disk/remote）。
func BlobFields(action, key, source string) logrus.Fields {
	return logrus.Fields{
		"action": action,
		"key":    key,
		"source": source,
	}
}

// Discard 返回丢弃所有输出的 logger，供未注入日志的组件使用。
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
