package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"PatentLens/pkg/util"
	"PatentLens/pkg/xerr"
	"PatentLens/pkg/zlog"

	"go.uber.org/zap"
)

// SearchRequest 一次图像检索请求
//
// MinScore 为 nil 表示调用方未给出阈值，使用服务默认值；显式传 0 表示不过滤。
type SearchRequest struct {
	ImageData []byte
	FileName  string
	TopK      int
	MinScore  *float32
	Keyword   string
	LocClass  string
	Applicant string
}

// TimingInfo 各阶段耗时（毫秒）
type TimingInfo struct {
	FeatureExtractionMs float64 `json:"feature_extraction_ms"`
	MilvusSearchMs      float64 `json:"milvus_search_ms"`
	PostProcessMs       float64 `json:"post_process_ms"`
	TotalMs             float64 `json:"total_ms"`
}

// QueryInfo 回显的查询参数
type QueryInfo struct {
	TopK         int     `json:"top_k"`
	MinScore     float32 `json:"min_score"`
	Keyword      string  `json:"keyword,omitempty"`
	LocClass     string  `json:"loc_class,omitempty"`
	Applicant    string  `json:"applicant,omitempty"`
	TotalMatched int     `json:"total_matched"`
}

// SearchRespond 检索响应
type SearchRespond struct {
	Results   []GroupedResult `json:"results"`
	Timing    TimingInfo      `json:"timing"`
	QueryInfo QueryInfo       `json:"query_info"`
}

// PatentDetailRespond 专利详情响应
type PatentDetailRespond struct {
	PatentID string                 `json:"patent_id"`
	Images   []SearchHit            `json:"images"`
	Metadata map[string]interface{} `json:"metadata"`
}

// StatsRespond 统计响应
type StatsRespond struct {
	Collection CollectionStats        `json:"collection"`
	Model      map[string]interface{} `json:"model"`
}

// Service 以图搜图查询服务，无状态，请求间可并发复用
type Service struct {
	store     Store
	extractor Extractor

	defaultTopK     int
	defaultMinScore float32
}

func NewService(store Store, extractor Extractor, defaultTopK int, defaultMinScore float32) *Service {
	if defaultTopK <= 0 {
		defaultTopK = 10
	}
	if defaultMinScore <= 0 {
		defaultMinScore = 0.5
	}
	return &Service{
		store:           store,
		extractor:       extractor,
		defaultTopK:     defaultTopK,
		defaultMinScore: defaultMinScore,
	}
}

// Search 执行图像相似检索并按专利归组
//
// 向存储端请求 2×top_k 条原始候选，min_score 过滤（score >= min_score）在取回
// 后、归组前执行，保证有足够合格候选时仍能给满 top_k。
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchRespond, error) {
	if len(req.ImageData) == 0 {
		return nil, xerr.New(xerr.BadRequest, "缺少查询图片")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.defaultTopK
	}
	minScore := s.defaultMinScore
	if req.MinScore != nil {
		minScore = *req.MinScore
	}

	queryID := util.GenerateShortUUID()
	totalStart := time.Now()

	vec, featureMs, err := s.extractor.ExtractBytes(ctx, req.FileName, req.ImageData)
	if err != nil {
		zlog.Error("特征提取失败", zap.String("query_id", queryID), zap.Error(err))
		return nil, fmt.Errorf("feature extraction: %w", err)
	}

	expr := BuildFilterExpr(req.Keyword, req.LocClass, req.Applicant)

	searchStart := time.Now()
	raw, err := s.store.SearchVectors(ctx, vec, topK*2, expr)
	if err != nil {
		zlog.Error("向量检索失败", zap.String("query_id", queryID), zap.Error(err))
		return nil, fmt.Errorf("vector search: %w", err)
	}
	searchMs := float64(time.Since(searchStart).Microseconds()) / 1000

	postStart := time.Now()
	filtered := make([]SearchHit, 0, len(raw))
	for _, h := range raw {
		if h.Score >= minScore {
			filtered = append(filtered, h)
		}
	}
	if len(filtered) > topK {
		filtered = filtered[:topK]
	}
	grouped := GroupByPatent(filtered)
	postMs := float64(time.Since(postStart).Microseconds()) / 1000
	totalMs := float64(time.Since(totalStart).Microseconds()) / 1000

	zlog.Info("检索完成",
		zap.String("query_id", queryID),
		zap.Int("raw_hits", len(raw)),
		zap.Int("matched", len(filtered)),
		zap.Int("groups", len(grouped)),
		zap.Float64("total_ms", totalMs))

	return &SearchRespond{
		Results: grouped,
		Timing: TimingInfo{
			FeatureExtractionMs: featureMs,
			MilvusSearchMs:      searchMs,
			PostProcessMs:       postMs,
			TotalMs:             totalMs,
		},
		QueryInfo: QueryInfo{
			TopK:         topK,
			MinScore:     minScore,
			Keyword:      req.Keyword,
			LocClass:     req.LocClass,
			Applicant:    req.Applicant,
			TotalMatched: len(filtered),
		},
	}, nil
}

// PatentDetail 查询某专利的全部图片及元数据
func (s *Service) PatentDetail(ctx context.Context, patentID string) (*PatentDetailRespond, error) {
	patentID = strings.TrimSpace(patentID)
	if patentID == "" {
		return nil, xerr.ErrParam
	}

	hits, err := s.store.PatentImages(ctx, patentID)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, xerr.New(xerr.NotFound, "Patent not found")
	}

	first := hits[0]
	return &PatentDetailRespond{
		PatentID: patentID,
		Images:   hits,
		Metadata: map[string]interface{}{
			"title":             first.Title,
			"loc_class":         first.LocClass,
			"pub_date":          first.PubDate,
			"filing_date":       first.FilingDate,
			"applicant_name":    first.ApplicantName,
			"applicant_country": first.ApplicantCountry,
			"inventor_names":    first.InventorNames,
			"claim_text":        first.ClaimText,
			"image_count":       first.ImageCount,
		},
	}, nil
}

// Stats 集合统计 + 模型侧信息
func (s *Service) Stats(ctx context.Context) (*StatsRespond, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	model, err := s.extractor.ModelInfo(ctx)
	if err != nil {
		// 模型信息不可用不阻断统计
		zlog.Warn("获取模型信息失败", zap.Error(err))
		model = map[string]interface{}{"available": false}
	}
	return &StatsRespond{Collection: stats, Model: model}, nil
}

// BuildFilterExpr 组合可选过滤条件，多个条件之间为 AND；全部缺省返回空串（无约束）
func BuildFilterExpr(keyword, locClass, applicant string) string {
	var filters []string
	if kw := strings.TrimSpace(keyword); kw != "" {
		filters = append(filters, fmt.Sprintf(`title like "%%%s%%"`, escapeExpr(kw)))
	}
	if lc := strings.TrimSpace(locClass); lc != "" {
		filters = append(filters, fmt.Sprintf(`loc_class == "%s"`, escapeExpr(lc)))
	}
	if ap := strings.TrimSpace(applicant); ap != "" {
		filters = append(filters, fmt.Sprintf(`applicant_name like "%%%s%%"`, escapeExpr(ap)))
	}
	return strings.Join(filters, " and ")
}

func escapeExpr(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
