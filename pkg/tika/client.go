// Package tika 提供了一个与 Apache Tika 服务器交互的客户端，用于从上传文件中提取纯文本。
package tika

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"doc-insight-go/internal/config"
)

// ErrUnsupportedFormat 表示文件类型不在支持范围内。
var ErrUnsupportedFormat = errors.New("unsupported file format")

// 支持提取文本的文件扩展名。
var supportedExtensions = map[string]bool{
	".pdf": true, ".docx": true, ".doc": true, ".txt": true,
	".md": true, ".html": true, ".csv": true, ".xlsx": true, ".pptx": true,
}

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL string
}

// NewClient 创建一个新的 Tika 客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	return &Client{serverURL: cfg.ServerURL}
}

// ExtractText 自动根据文件后缀推断 MIME 类型，并调用 Tika 提取文本。
func (c *Client) ExtractText(fileReader io.Reader, fileName string) (string, error) {
	ext := filepath.Ext(fileName)
	if !supportedExtensions[ext] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	contentType := detectMimeType(fileName)

	req, err := http.NewRequest("PUT", c.serverURL+"/tika", fileReader)
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Content-Type", contentType)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	textBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取 Tika 响应失败: %w", err)
	}
	return string(textBytes), nil
}

// detectMimeType 根据文件扩展名推断 MIME 类型，未知时回退为二进制流。
func detectMimeType(fileName string) string {
	contentType := mime.TypeByExtension(filepath.Ext(fileName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return contentType
}

// IsSupported 判断文件扩展名是否受支持。
func IsSupported(fileName string) bool {
	return supportedExtensions[filepath.Ext(fileName)]
}
