package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Downloader 拉取签名 URL 背后的完整内容。调用方负责关闭返回的 ReadCloser。
type Downloader interface {
	Download(ctx context.Context, key string, target *url.URL) (io.ReadCloser, error)
}

// HTTPDownloader 使用共享 http.Client 执行 GET 下载。
type HTTPDownloader struct {
	Client *http.Client
}

var _ Downloader = HTTPDownloader{}

// NewHTTPDownloader 返回基于 client 的下载器，client 为空时使用默认配置。
func NewHTTPDownloader(client *http.Client) HTTPDownloader {
	if client == nil {
		client = NewHTTPClient(0)
	}
	return HTTPDownloader{Client: client}
}

func (d HTTPDownloader) Download(ctx context.Context, key string, target *url.URL) (io.ReadCloser, error) {
	if target == nil {
		return nil, &TransportError{Op: "download", Key: key, Err: fmt.Errorf("nil fetch url")}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, &TransportError{Op: "download", Key: key, Err: err}
	}

	client := d.Client
	if client == nil {
		client = NewHTTPClient(0)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "download", Key: key, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		drainAndClose(resp.Body)
		return nil, fmt.Errorf("download %s: %w", key, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		drainAndClose(resp.Body)
		return nil, &TransportError{Op: "download", Key: key, StatusCode: resp.StatusCode}
	}
	return &transportBody{ReadCloser: resp.Body, key: key}, nil
}

// transportBody 把读取过程中的网络错误包装为 TransportError。
type transportBody struct {
	io.ReadCloser
	key string
}

func (b *transportBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err != nil && err != io.EOF {
		return n, &TransportError{Op: "download", Key: b.key, Err: err}
	}
	return n, err
}
