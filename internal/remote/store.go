package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// ObjectStore 是远端对象存储的最小接口。key 为稳定的对象路径，FetchURL 返回短期有效的下载地址。
type ObjectStore interface {
	FetchURL(ctx context.Context, key string) (*url.URL, error)
	Upload(ctx context.Context, localFile string, key string) (*url.URL, error)
	Delete(ctx context.Context, key string) error
}

// HTTPStoreOptions 描述 HTTPStore 的连接参数。
type HTTPStoreOptions struct {
	Endpoint string
	Bucket   string
	Token    string
	Client   *http.Client
}

// HTTPStore 通过 HTTP API 访问对象存储：
//
//	GET    /v1/urls/<bucket>/<key>     -> {"url": "..."}
//	POST   /v1/objects/<bucket>/<key>  -> {"url": "..."}
//	DELETE /v1/objects/<bucket>/<key>
type HTTPStore struct {
	endpoint *url.URL
	bucket   string
	token    string
	client   *http.Client
}

var _ ObjectStore = (*HTTPStore)(nil)

type urlPayload struct {
	URL string `json:"url"`
}

// NewHTTPStore 校验 endpoint 并构建客户端，Client 为空时使用 NewHTTPClient 的默认配置。
func NewHTTPStore(opts HTTPStoreOptions) (*HTTPStore, error) {
	if strings.TrimSpace(opts.Endpoint) == "" {
		return nil, errors.New("object store endpoint required")
	}
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("object store bucket required")
	}
	endpoint, err := url.Parse(opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse object store endpoint: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("unsupported endpoint scheme %q", endpoint.Scheme)
	}
	client := opts.Client
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &HTTPStore{
		endpoint: endpoint,
		bucket:   opts.Bucket,
		token:    opts.Token,
		client:   client,
	}, nil
}

func (s *HTTPStore) FetchURL(ctx context.Context, key string) (*url.URL, error) {
	req, err := s.newRequest(ctx, "fetch_url", http.MethodGet, "urls", key, nil)
	if err != nil {
		return nil, err
	}
	return s.doURL(req, "fetch_url", key, http.StatusOK)
}

func (s *HTTPStore) Upload(ctx context.Context, localFile string, key string) (*url.URL, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	f, err := os.Open(localFile)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrLocalSource, localFile, err)
	}
	defer f.Close()

	req, err := s.newRequest(ctx, "upload", http.MethodPost, "objects", key, f)
	if err != nil {
		return nil, err
	}
	if info, statErr := f.Stat(); statErr == nil {
		req.ContentLength = info.Size()
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	return s.doURL(req, "upload", key, http.StatusCreated)
}

func (s *HTTPStore) Delete(ctx context.Context, key string) error {
	req, err := s.newRequest(ctx, "delete", http.MethodDelete, "objects", key, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return &TransportError{Op: "delete", Key: key, Err: err}
	}
	defer drainAndClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("delete %s: %w", key, ErrNotFound)
	default:
		return &TransportError{Op: "delete", Key: key, StatusCode: resp.StatusCode}
	}
}

func (s *HTTPStore) doURL(req *http.Request, op, key string, okStatus int) (*url.URL, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Key: key, Err: err}
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s %s: %w", op, key, ErrNotFound)
	}
	if resp.StatusCode != okStatus {
		return nil, &TransportError{Op: op, Key: key, StatusCode: resp.StatusCode}
	}

	var payload urlPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &TransportError{Op: op, Key: key, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	target, err := url.Parse(payload.URL)
	if err != nil || payload.URL == "" {
		return nil, &TransportError{Op: op, Key: key, StatusCode: resp.StatusCode, Err: fmt.Errorf("invalid url %q", payload.URL)}
	}
	return s.endpoint.ResolveReference(target), nil
}

// newRequest 构造 /v1/<resource>/<bucket>/<key> 请求；key 非法时返回 ErrInvalidKey，
// 其余构造失败以 TransportError 返回。
func (s *HTTPStore) newRequest(ctx context.Context, op, method, resource, key string, body io.Reader) (*http.Request, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	target := s.endpoint.JoinPath("v1", resource, s.bucket)
	target = target.JoinPath(strings.Split(key, "/")...)

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, &TransportError{Op: op, Key: key, Err: err}
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	return req, nil
}

// validateKey 拒绝空段与 "."、".." 段，JoinPath 会把它们折叠成另一个对象路径。
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64*1024))
	body.Close()
}
