package http

import (
	"io"
	"strconv"
	"strings"

	"PatentLens/internal/search"
	"PatentLens/pkg/back"
	"PatentLens/pkg/xerr"
	"PatentLens/pkg/zlog"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SearchHandler 以图搜图 HTTP Handler
type SearchHandler struct {
	svc *search.Service
}

func NewSearchHandler(svc *search.Service) *SearchHandler {
	return &SearchHandler{svc: svc}
}

// Search 处理图像检索请求
//
// 路由: POST /api/design/search
// 表单: file (必填), top_k, min_score, keyword, loc_class, applicant
func (h *SearchHandler) Search(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		back.Error(c, xerr.BadRequest, "缺少查询图片")
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		zlog.Error("读取上传文件失败", zap.Error(err))
		back.Error(c, xerr.BadRequest, "读取上传文件失败")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		back.Error(c, xerr.BadRequest, "读取上传文件失败")
		return
	}

	topK, _ := strconv.Atoi(c.DefaultPostForm("top_k", "0"))

	// min_score 未传和显式传 0 含义不同：前者用默认值，后者关闭阈值过滤
	var minScore *float32
	if v, ok := c.GetPostForm("min_score"); ok {
		parsed, err := strconv.ParseFloat(v, 32)
		if err != nil {
			back.Error(c, xerr.BadRequest, "min_score 参数错误")
			return
		}
		f := float32(parsed)
		minScore = &f
	}

	req := search.SearchRequest{
		ImageData: data,
		FileName:  fileHeader.Filename,
		TopK:      topK,
		MinScore:  minScore,
		Keyword:   strings.TrimSpace(c.PostForm("keyword")),
		LocClass:  strings.TrimSpace(c.PostForm("loc_class")),
		Applicant: strings.TrimSpace(c.PostForm("applicant")),
	}

	data2, err := h.svc.Search(c.Request.Context(), req)
	if err != nil {
		zlog.Error("检索失败", zap.Error(err))
	}
	back.Result(c, data2, err)
}

// PatentDetail 获取专利详情（所有图片）
//
// 路由: GET /api/design/patent/:patent_id
func (h *SearchHandler) PatentDetail(c *gin.Context) {
	data, err := h.svc.PatentDetail(c.Request.Context(), c.Param("patent_id"))
	back.Result(c, data, err)
}

// Stats 获取集合统计与模型信息
//
// 路由: GET /api/design/stats
func (h *SearchHandler) Stats(c *gin.Context) {
	data, err := h.svc.Stats(c.Request.Context())
	back.Result(c, data, err)
}
