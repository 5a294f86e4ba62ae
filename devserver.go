package main

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/exhibit/photocache/internal/cache"
	"github.com/exhibit/photocache/internal/config"
	"github.com/exhibit/photocache/internal/metrics"
	"github.com/exhibit/photocache/internal/server"
	"github.com/exhibit/photocache/internal/version"
)

// startDevServer 启动开发用对象存储，ctx 取消时优雅退出。
func startDevServer(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	store, err := cache.NewStore(cfg.DevServer.StoragePath)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m, err := metrics.New(registry)
	if err != nil {
		return err
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:    logger,
		Store:     store,
		Token:     cfg.ObjectStore.Token,
		URLTTL:    cfg.DevServer.URLTTL.DurationValue(),
		PublicURL: cfg.DevServer.PublicURL,
		Gatherer:  registry,
		Metrics:   m,
	})
	if err != nil {
		return err
	}

	port := cfg.DevServer.ListenPort
	logger.WithFields(logrus.Fields{
		"action":  "listen",
		"port":    port,
		"storage": cfg.DevServer.StoragePath,
		"auth":    cfg.ObjectStore.AuthMode(),
		"version": version.Full(),
	}).Info("对象存储服务启动")

	go func() {
		<-ctx.Done()
		_ = app.Shutdown()
	}()
	return app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
}
