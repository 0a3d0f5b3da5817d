package http

import (
	"bytes"
	"image"
	"image/jpeg"
	"path"

	_ "image/gif"
	_ "image/png"

	"PatentLens/internal/store"
	"PatentLens/pkg/back"
	"PatentLens/pkg/xerr"
	"PatentLens/pkg/zlog"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	thumbnailMaxSize = 300
	thumbnailQuality = 85
	fullImageQuality = 95
	jpegContentType  = "image/jpeg"
)

// ImageHandler 专利图片访问 Handler，原图多为 TIF，统一转为浏览器可显示的 JPEG
type ImageHandler struct {
	objects *store.MinioStore
	prefix  string
}

func NewImageHandler(objects *store.MinioStore, prefix string) *ImageHandler {
	return &ImageHandler{objects: objects, prefix: prefix}
}

// GetImage 返回专利图片
//
// 路由: GET /api/design/image/:patent_id/:file_name?thumbnail=true
func (h *ImageHandler) GetImage(c *gin.Context) {
	patentID := c.Param("patent_id")
	fileName := c.Param("file_name")
	thumbnail := c.Query("thumbnail") == "true" || c.Query("thumbnail") == "1"

	key := path.Join(h.prefix, patentID, fileName)
	data, err := h.objects.Download(c.Request.Context(), key)
	if err != nil {
		zlog.Warn("图片下载失败", zap.String("key", key), zap.Error(err))
		back.Error(c, xerr.NotFound, "Image not found: "+key)
		return
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		zlog.Error("图片解码失败", zap.String("key", key), zap.Error(err))
		back.Error(c, xerr.InternalServerError, "Failed to decode image")
		return
	}

	quality := fullImageQuality
	if thumbnail {
		img = scaleDown(img, thumbnailMaxSize)
		quality = thumbnailQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		zlog.Error("图片编码失败", zap.String("key", key), zap.Error(err))
		back.Error(c, xerr.InternalServerError, "Failed to encode image")
		return
	}

	c.Data(200, jpegContentType, buf.Bytes())
}

// scaleDown 等比缩放到不超过 maxSize×maxSize，小图不放大
func scaleDown(img image.Image, maxSize int) image.Image {
	b := img.Bounds()
	w, ht := b.Dx(), b.Dy()
	if w <= maxSize && ht <= maxSize {
		return img
	}

	nw, nh := maxSize, maxSize
	if w > ht {
		nh = ht * maxSize / w
	} else {
		nw = w * maxSize / ht
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
