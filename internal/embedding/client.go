package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Client 外部特征提取服务（DINOv2 sidecar）的 HTTP 客户端
//
// 服务契约:
//
//	POST {base}/extract        multipart file  -> {"embedding":[...],"elapsed_ms":...}
//	POST {base}/extract/batch  multipart files -> {"embeddings":[[...]],"elapsed_ms":...}
//	POST {base}/reclaim        释放模型侧缓存
//	GET  {base}/info           设备与模型信息
type Client struct {
	baseURL string
	httpc   *http.Client
}

type extractRespond struct {
	Embedding []float32 `json:"embedding"`
	ElapsedMs float64   `json:"elapsed_ms"`
}

type extractBatchRespond struct {
	Embeddings [][]float32 `json:"embeddings"`
	ElapsedMs  float64     `json:"elapsed_ms"`
}

func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("embedding baseURL is empty")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
	}, nil
}

// Ping 启动时探活，服务不可达属于致命错误
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ModelInfo(ctx)
	if err != nil {
		return fmt.Errorf("embedding service unreachable: %w", err)
	}
	return nil
}

// ExtractFile 提取单张本地图片的特征向量，返回向量和服务端耗时（毫秒）
func (c *Client) ExtractFile(ctx context.Context, path string) ([]float32, float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	return c.ExtractBytes(ctx, filepath.Base(path), data)
}

// ExtractBytes 提取内存中图片的特征向量
func (c *Client) ExtractBytes(ctx context.Context, name string, data []byte) ([]float32, float64, error) {
	body, contentType, err := buildMultipart([]filePart{{name: nameOrDefault(name), data: data}})
	if err != nil {
		return nil, 0, err
	}

	var out extractRespond
	if err := c.post(ctx, "/extract", body, contentType, &out); err != nil {
		return nil, 0, err
	}
	if len(out.Embedding) == 0 {
		return nil, 0, errors.New("empty embedding in extractor response")
	}
	return out.Embedding, out.ElapsedMs, nil
}

// ExtractBatch 批量提取，整批失败时由调用方降级为逐张提取
//
// 返回的向量与 paths 逐位对应，依赖服务端按请求中的文件顺序返回。
func (c *Client) ExtractBatch(ctx context.Context, paths []string) ([][]float32, float64, error) {
	parts := make([]filePart, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, 0, err
		}
		parts = append(parts, filePart{name: filepath.Base(p), data: data})
	}

	body, contentType, err := buildMultipart(parts)
	if err != nil {
		return nil, 0, err
	}

	var out extractBatchRespond
	if err := c.post(ctx, "/extract/batch", body, contentType, &out); err != nil {
		return nil, 0, err
	}
	if len(out.Embeddings) != len(paths) {
		return nil, 0, fmt.Errorf("extractor returned %d embeddings for %d images", len(out.Embeddings), len(paths))
	}
	return out.Embeddings, out.ElapsedMs, nil
}

// Reclaim 请求服务端释放显存缓存，长时间导入时定期调用
func (c *Client) Reclaim(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/reclaim", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("extractor reclaim: %s", resp.Status)
	}
	return nil
}

// ModelInfo 获取模型与设备信息，用于 stats 接口
func (c *Client) ModelInfo(ctx context.Context) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/info", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extractor info: %s", resp.Status)
	}

	var info map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	return info, nil
}

func (c *Client) post(ctx context.Context, path string, body *bytes.Buffer, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("extractor %s: %s: %s", path, resp.Status, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// filePart multipart 请求中的一个文件分片
type filePart struct {
	name string
	data []byte
}

// buildMultipart 按分片给定顺序组装请求体，分片顺序即服务端回传向量的顺序
func buildMultipart(parts []filePart) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for _, p := range parts {
		fw, err := w.CreateFormFile("file", p.name)
		if err != nil {
			return nil, "", err
		}
		if _, err := fw.Write(p.data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return body, w.FormDataContentType(), nil
}

func nameOrDefault(name string) string {
	if strings.TrimSpace(name) == "" {
		return "image"
	}
	return name
}
