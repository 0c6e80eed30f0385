// Package storage はオブジェクトストレージHTTP APIのクライアントを提供する。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// defaultTimeout はHTTPクライアント未指定時のタイムアウト。
const defaultTimeout = 30 * time.Second

// Client はバケット単位でオブジェクトをアップロード・削除するクライアント。
// アップロードは同一パスを上書きする。
type Client struct {
	baseURL    string
	bucket     string
	serviceKey string
	httpClient *http.Client

	maxAttempts int
	retryBase   time.Duration
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientがnilの場合はタイムアウト付きのデフォルトクライアントを使用する。
func NewClient(baseURL, bucket, serviceKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		bucket:     bucket,
		serviceKey: serviceKey,
		httpClient: httpClient,

		maxAttempts: defaultMaxAttempts,
		retryBase:   defaultRetryBase,
	}
}

// Upload はdataをobjectPathに保存し、公開URLを返す。
// contentTypeが空の場合は内容から推定する。
func (c *Client) Upload(ctx context.Context, objectPath string, data []byte, contentType string) (string, error) {
	objectPath = strings.Trim(objectPath, "/")
	if objectPath == "" {
		return "", fmt.Errorf("object path is empty")
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	uploadURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, c.bucket, escapePath(objectPath))
	err := withRetry(ctx, c.maxAttempts, c.retryBase, func() error {
		return c.upload(ctx, uploadURL, data, contentType)
	})
	if err != nil {
		return "", fmt.Errorf("upload object: %w", err)
	}
	return c.PublicURL(objectPath), nil
}

// upload はアップロード要求を1回送る。429/5xxは再試行できる。
func (c *Client) upload(ctx context.Context, uploadURL string, data []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("x-upsert", "true")
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkStatus(resp)
}

// Delete はobjectPathのオブジェクトを削除する。存在しない場合はnilを返す。
func (c *Client) Delete(ctx context.Context, objectPath string) error {
	objectPath = strings.Trim(objectPath, "/")
	deleteURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, c.bucket, escapePath(objectPath))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, deleteURL, nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// PublicURL はobjectPathの公開URLを返す。
func (c *Client) PublicURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s",
		c.baseURL, c.bucket, escapePath(strings.Trim(objectPath, "/")))
}

// ObjectPath はPublicURLが返したURLからオブジェクトパスを取り出す。
// このバケットの公開URLでない場合はfalseを返す。
func (c *Client) ObjectPath(publicURL string) (string, bool) {
	prefix := fmt.Sprintf("%s/storage/v1/object/public/%s/", c.baseURL, c.bucket)
	escaped, ok := strings.CutPrefix(publicURL, prefix)
	if !ok || escaped == "" {
		return "", false
	}
	objectPath, err := url.PathUnescape(escaped)
	if err != nil {
		return "", false
	}
	return objectPath, true
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("apikey", c.serviceKey)
}

func checkStatus(resp *http.Response) error {
	if classifyStatus(resp.StatusCode) == statusOK {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// escapePath はパスの各セグメントをURLエスケープする。
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
