package main

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/exhibit/photocache/internal/blobcache"
	"github.com/exhibit/photocache/internal/config"
	"github.com/exhibit/photocache/internal/logging"
	"github.com/exhibit/photocache/internal/metacache"
	"github.com/exhibit/photocache/internal/metrics"
	"github.com/exhibit/photocache/internal/model"
	"github.com/exhibit/photocache/internal/remote"
)

// services 汇总进程内共享的缓存实例。
type services struct {
	Blobs    *blobcache.Cache
	Profiles *metacache.Cache[model.UserProfile]
	Members  *metacache.Cache[model.Member]
	Metrics  *metrics.Metrics
	// Gatherer 读取 Metrics 注册到的指标，供嵌入方导出。
	Gatherer prometheus.Gatherer
}

// newServices 按“配置 → 指标 → 对象存储客户端 → blob 缓存 → 元数据缓存”顺序装配。
// reg 为空时使用独立的 Registry，避免重复注册到全局 Registerer。
func newServices(cfg *config.Config, logger *logrus.Logger, reg *prometheus.Registry) (*services, error) {
	if !cfg.HasObjectStore() {
		return nil, errors.New("未配置 ObjectStore.Endpoint")
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}

	client := remote.NewHTTPClient(cfg.Global.FetchTimeout.DurationValue())
	objects, err := remote.NewHTTPStore(remote.HTTPStoreOptions{
		Endpoint: cfg.ObjectStore.Endpoint,
		Bucket:   cfg.ObjectStore.Bucket,
		Token:    cfg.ObjectStore.Token,
		Client:   client,
	})
	if err != nil {
		return nil, err
	}

	blobs, err := blobcache.New(blobcache.Options{
		Root:          cfg.Global.CacheRoot,
		DirName:       cfg.Global.CacheDirName,
		Remote:        objects,
		Downloader:    remote.NewHTTPDownloader(client),
		Logger:        logging.Component(logger, "blobcache"),
		Metrics:       m,
		IndexCapacity: cfg.Global.BlobIndexCapacity,
		DisableDedupe: !cfg.Global.DedupeDownloads,
	})
	if err != nil {
		return nil, err
	}

	capacity := cfg.Global.MetadataCapacity
	return &services{
		Blobs: blobs,
		Profiles: metacache.New[model.UserProfile](capacity,
			metacache.WithName("profiles"),
			metacache.WithLogger(logging.Component(logger, "metacache")),
			metacache.WithMetrics(m),
		),
		Members: metacache.New[model.Member](capacity,
			metacache.WithName("members"),
			metacache.WithLogger(logging.Component(logger, "metacache")),
			metacache.WithMetrics(m),
		),
		Metrics:  m,
		Gatherer: reg,
	}, nil
}
