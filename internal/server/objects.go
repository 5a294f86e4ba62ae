package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/exhibit/photocache/internal/cache"
	"github.com/exhibit/photocache/internal/metrics"
)

// objectHandler 实现对象的上传、删除、签名地址签发与下载。
type objectHandler struct {
	logger    *logrus.Logger
	store     cache.Store
	tokens    *tokenRegistry
	ttl       time.Duration
	publicURL string
	metrics   *metrics.Metrics
}

type urlResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type uploadResponse struct {
	urlResponse
	Size int64 `json:"size"`
}

func (h *objectHandler) issueURL(c fiber.Ctx) error {
	locator, err := objectLocator(c)
	if err != nil {
		return h.badRequest(c, "fetch_url", err)
	}
	if _, err := h.store.Stat(requestContext(c), storageLocator(locator)); err != nil {
		return h.storeFailure(c, "fetch_url", locator, err)
	}

	signed, err := h.sign(c, locator)
	if err != nil {
		return h.badRequest(c, "fetch_url", err)
	}
	h.observe("fetch_url", "ok")
	return c.JSON(signed)
}

// sign 签发指向 locator 的短期下载地址。
func (h *objectHandler) sign(c fiber.Ctx, locator cache.Locator) (urlResponse, error) {
	token, expiresAt := h.tokens.issue(locator.Namespace, locator.Key, h.ttl)
	signed, err := url.JoinPath(h.baseURL(c), "blobs", locator.Namespace, locator.Key)
	if err != nil {
		return urlResponse{}, err
	}
	return urlResponse{
		URL:       signed + "?token=" + url.QueryEscape(token),
		ExpiresAt: expiresAt.UTC(),
	}, nil
}

func (h *objectHandler) putObject(c fiber.Ctx) error {
	locator, err := objectLocator(c)
	if err != nil {
		return h.badRequest(c, "upload", err)
	}
	ctx := requestContext(c)
	if _, err := h.store.EnsureNamespace(locator.Namespace); err != nil {
		return h.badRequest(c, "upload", err)
	}
	entry, err := h.store.Put(ctx, storageLocator(locator), bytes.NewReader(c.Body()), cache.PutOptions{})
	if err != nil {
		return h.storeFailure(c, "upload", locator, err)
	}

	h.logger.WithFields(h.fields(c, "upload", locator)).
		WithField("size_bytes", entry.SizeBytes).
		Info("object_stored")
	signed, err := h.sign(c, locator)
	if err != nil {
		return h.badRequest(c, "upload", err)
	}
	h.observe("upload", "ok")
	return c.Status(fiber.StatusCreated).JSON(uploadResponse{urlResponse: signed, Size: entry.SizeBytes})
}

func (h *objectHandler) deleteObject(c fiber.Ctx) error {
	locator, err := objectLocator(c)
	if err != nil {
		return h.badRequest(c, "delete", err)
	}
	ctx := requestContext(c)
	if _, err := h.store.Stat(ctx, storageLocator(locator)); err != nil {
		return h.storeFailure(c, "delete", locator, err)
	}
	if err := h.store.Remove(ctx, storageLocator(locator)); err != nil {
		return h.storeFailure(c, "delete", locator, err)
	}
	h.tokens.revoke(locator.Namespace, locator.Key)

	h.logger.WithFields(h.fields(c, "delete", locator)).Info("object_deleted")
	h.observe("delete", "ok")
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *objectHandler) serveBlob(c fiber.Ctx) error {
	locator, err := objectLocator(c)
	if err != nil {
		return h.badRequest(c, "download", err)
	}
	if !h.tokens.valid(c.Query("token"), locator.Namespace, locator.Key) {
		h.observe("download", "forbidden")
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "invalid_or_expired_token"})
	}

	result, err := h.store.Get(requestContext(c), storageLocator(locator))
	if err != nil {
		return h.storeFailure(c, "download", locator, err)
	}
	defer result.Reader.Close()

	c.Set(fiber.HeaderContentType, "application/octet-stream")
	c.Set(fiber.HeaderContentLength, strconv.FormatInt(result.Entry.SizeBytes, 10))
	c.Status(fiber.StatusOK)
	if _, err := io.Copy(c.Response().BodyWriter(), result.Reader); err != nil {
		return err
	}
	h.observe("download", "ok")
	return nil
}

func (h *objectHandler) badRequest(c fiber.Ctx, action string, err error) error {
	h.observe(action, "bad_request")
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
}

func (h *objectHandler) storeFailure(c fiber.Ctx, action string, locator cache.Locator, err error) error {
	if errors.Is(err, cache.ErrNotFound) {
		h.observe(action, "not_found")
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "object_not_found"})
	}
	if errors.Is(err, cache.ErrInvalidKey) {
		return h.badRequest(c, action, err)
	}
	h.logger.WithFields(h.fields(c, action, locator)).WithError(err).Error("object_store_failed")
	h.observe(action, "error")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "storage_failure"})
}

func (h *objectHandler) fields(c fiber.Ctx, action string, locator cache.Locator) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"bucket":     locator.Namespace,
		"key":        locator.Key,
		"request_id": RequestID(c),
	}
}

func (h *objectHandler) observe(operation, status string) {
	h.metrics.ObserveOperation(metrics.CacheObjects, operation, status)
}

func (h *objectHandler) baseURL(c fiber.Ctx) string {
	if h.publicURL != "" {
		return strings.TrimRight(h.publicURL, "/")
	}
	return c.BaseURL()
}

// objectLocator 从路由参数解析 bucket 与对象 key。
func objectLocator(c fiber.Ctx) (cache.Locator, error) {
	bucket := c.Params("bucket")
	key := strings.TrimLeft(c.Params("*"), "/")
	if bucket == "" || key == "" {
		return cache.Locator{}, errors.New("bucket and key are required")
	}
	if _, err := cache.SanitizeKey(key); err != nil {
		return cache.Locator{}, err
	}
	return cache.Locator{Namespace: bucket, Key: key}, nil
}

// storageLocator 把对象 key 做路径转义后作为文件名，"a/b" 与 "a_b" 落在不同文件。
func storageLocator(locator cache.Locator) cache.Locator {
	return cache.Locator{Namespace: locator.Namespace, Key: url.PathEscape(locator.Key)}
}

func requestContext(c fiber.Ctx) context.Context {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
