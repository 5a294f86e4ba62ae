package server

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/exhibit/photocache/internal/cache"
	"github.com/exhibit/photocache/internal/metrics"
)

// DefaultURLTTL 是签名下载地址的默认有效期。
const DefaultURLTTL = 15 * time.Minute

// AppOptions controls how the development object store behaves.
type AppOptions struct {
	Logger *logrus.Logger
	// Store 保存对象正文，命名空间即 bucket。
	Store cache.Store
	// Token 非空时 /v1 接口要求 "Authorization: Bearer <Token>"。
	Token string
	// URLTTL 控制签名下载地址的有效期。
	URLTTL time.Duration
	// PublicURL 是签名地址使用的外部前缀，为空时使用请求的 BaseURL。
	PublicURL string
	// Gatherer 非空时通过 /-/metrics 暴露指标。
	Gatherer prometheus.Gatherer
	Metrics  *metrics.Metrics
	// Now 用于测试注入时钟。
	Now func() time.Time
}

const contextKeyRequestID = "_photocache_request_id"

// NewApp builds a Fiber application serving the object store API:
//
//	GET    /v1/urls/:bucket/*     issue a short-lived fetch URL
//	POST   /v1/objects/:bucket/*  upload an object
//	DELETE /v1/objects/:bucket/*  delete an object
//	GET    /blobs/:bucket/*       download via a signed URL
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Store == nil {
		return nil, errors.New("object storage is required")
	}
	if opts.URLTTL <= 0 {
		opts.URLTTL = DefaultURLTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		UnescapePath:  true,
		BodyLimit:     64 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	app.Get("/-/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if opts.Gatherer != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	h := &objectHandler{
		logger:    opts.Logger,
		store:     opts.Store,
		tokens:    newTokenRegistry(opts.Now),
		ttl:       opts.URLTTL,
		publicURL: opts.PublicURL,
		metrics:   opts.Metrics,
	}

	v1 := app.Group("/v1", bearerAuth(opts.Token, opts.Logger))
	v1.Get("/urls/:bucket/*", h.issueURL)
	v1.Post("/objects/:bucket/*", h.putObject)
	v1.Delete("/objects/:bucket/*", h.deleteObject)
	app.Get("/blobs/:bucket/*", h.serveBlob)

	return app, nil
}

// requestIDMiddleware 为每个请求生成请求 ID 并回写 X-Request-ID。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// bearerAuth 校验 /v1 接口的 Bearer Token；token 为空时不做校验。
func bearerAuth(token string, logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}
		if c.Get(fiber.HeaderAuthorization) == "Bearer "+token {
			return c.Next()
		}
		logger.WithFields(logrus.Fields{
			"action":     "auth",
			"path":       c.Path(),
			"request_id": RequestID(c),
		}).Warn("unauthorized")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
}

// RequestID returns the request identifier stored by the middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
