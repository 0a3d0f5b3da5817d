package util

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateUUID 生成一个标准的 UUID (v4)
func GenerateUUID() string {
	return uuid.New().String()
}

// GenerateShortUUID 生成一个不带中划线的短 UUID
func GenerateShortUUID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// TruncateString 安全截断字符串，按字节截断以满足存储端长度上限
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// FormatDuration 格式化耗时显示
func FormatDuration(d time.Duration) string {
	seconds := d.Seconds()
	if seconds < 60 {
		return fmt.Sprintf("%.1fs", seconds)
	}
	if seconds < 3600 {
		return fmt.Sprintf("%.1fmin", seconds/60)
	}
	return fmt.Sprintf("%.1fh", seconds/3600)
}

var contentTypes = map[string]string{
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// ContentTypeByExt 根据文件扩展名获取 content-type
func ContentTypeByExt(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

// IsSupportedImage 判断是否为支持的图片格式
func IsSupportedImage(path string) bool {
	_, ok := contentTypes[strings.ToLower(filepath.Ext(path))]
	return ok
}
