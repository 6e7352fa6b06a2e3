// Package backend 封装外部 eDNA 分析服务的 HTTP 接口：
// 上传/预测提交、微调与健康探测。流式进度见 internal/stream。
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

// UploadResponse 上传提交的应答，file_id 用于订阅进度流
type UploadResponse struct {
	FileID  string `json:"file_id"`
	Message string `json:"message"`
}

type Client struct {
	baseURL       string
	httpClient    *http.Client
	healthTimeout time.Duration
}

func NewClient(baseURL string, requestTimeout, healthTimeout time.Duration) *Client {
	return &Client{
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: requestTimeout},
		healthTimeout: healthTimeout,
	}
}

// Upload POST /upload，multipart 携带文件与类型判别字段。
// 非 2xx 视为提交失败：调用方中止，不开流。
func (c *Client) Upload(ctx context.Context, fileName string, file io.Reader, fileType string) (*UploadResponse, error) {
	body, contentType, err := encodeMultipart(func(w *multipart.Writer) error {
		part, err := w.CreateFormFile("file", fileName)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, file); err != nil {
			return err
		}
		return w.WriteField("type", fileType)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode upload: %w", err)
	}

	var result UploadResponse
	if err := c.post(ctx, "/upload", contentType, body, &result); err != nil {
		return nil, err
	}
	if result.FileID == "" {
		return nil, fmt.Errorf("upload response missing file_id")
	}
	return &result, nil
}

// PredictFasta POST /predict/fasta，返回后端的预测 payload 原文
func (c *Client) PredictFasta(ctx context.Context, fileName string, file io.Reader) (json.RawMessage, error) {
	body, contentType, err := encodeMultipart(func(w *multipart.Writer) error {
		part, err := w.CreateFormFile("file", fileName)
		if err != nil {
			return err
		}
		_, err = io.Copy(part, file)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode fasta upload: %w", err)
	}

	var result json.RawMessage
	if err := c.post(ctx, "/predict/fasta", contentType, body, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// PredictSequence POST /predict/sequence，裸序列文本走表单字段
func (c *Client) PredictSequence(ctx context.Context, sequence string) (json.RawMessage, error) {
	body, contentType, err := encodeMultipart(func(w *multipart.Writer) error {
		return w.WriteField("sequence", sequence)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode sequence: %w", err)
	}

	var result json.RawMessage
	if err := c.post(ctx, "/predict/sequence", contentType, body, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Finetune POST /finetune，CSV 训练数据加轮数
func (c *Client) Finetune(ctx context.Context, fileName string, file io.Reader, epochs int) (json.RawMessage, error) {
	if epochs <= 0 {
		epochs = 1
	}
	body, contentType, err := encodeMultipart(func(w *multipart.Writer) error {
		part, err := w.CreateFormFile("csv_file", fileName)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, file); err != nil {
			return err
		}
		return w.WriteField("epochs", strconv.Itoa(epochs))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode finetune upload: %w", err)
	}

	var result json.RawMessage
	if err := c.post(ctx, "/finetune", contentType, body, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Health GET /health。有界等待：超时算离线，不会无限悬着。
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path, contentType string, body *bytes.Buffer, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

func encodeMultipart(fill func(*multipart.Writer) error) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := fill(writer); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}
