package search

import "context"

// SearchHit 向量库返回的单张图片命中
type SearchHit struct {
	ID         int64   `json:"id"`
	Score      float32 `json:"score"`
	PatentID   string  `json:"patent_id"`
	ImageIndex int     `json:"image_index"`
	FileName   string  `json:"file_name"`
	FilePath   string  `json:"file_path"`

	Title            string `json:"title"`
	LocClass         string `json:"loc_class"`
	PubDate          int64  `json:"pub_date"`
	FilingDate       int64  `json:"filing_date"`
	ApplicantName    string `json:"applicant_name"`
	ApplicantCountry string `json:"applicant_country"`
	InventorNames    string `json:"inventor_names"`
	ClaimText        string `json:"claim_text"`
	ImageCount       int    `json:"image_count"`
}

// PageHit 归组结果中的单页
type PageHit struct {
	ID         int64   `json:"id"`
	ImageIndex int     `json:"image_index"`
	FileName   string  `json:"file_name"`
	FilePath   string  `json:"file_path"`
	Score      float32 `json:"score"`
}

// GroupedResult 专利级归组结果，页按 image_index 升序，元数据取该专利首个命中
type GroupedResult struct {
	PatentID string    `json:"patent_id"`
	Pages    []PageHit `json:"pages"`
	MaxScore float32   `json:"max_score"`

	Title            string `json:"title"`
	LocClass         string `json:"loc_class"`
	PubDate          int64  `json:"pub_date"`
	FilingDate       int64  `json:"filing_date"`
	ApplicantName    string `json:"applicant_name"`
	ApplicantCountry string `json:"applicant_country"`
	InventorNames    string `json:"inventor_names"`
	ClaimText        string `json:"claim_text"`
	ImageCount       int    `json:"image_count"`
}

// CollectionStats 向量库集合统计
type CollectionStats struct {
	Name        string `json:"name"`
	NumEntities int64  `json:"num_entities"`
	HasIndex    bool   `json:"has_index"`
	Connected   bool   `json:"connected"`
}

// Store 查询侧依赖的向量库能力
type Store interface {
	// SearchVectors 按向量检索，expr 为可选过滤表达式，空串表示无约束
	SearchVectors(ctx context.Context, vector []float32, limit int, expr string) ([]SearchHit, error)
	// PatentImages 点查某专利的全部图片记录
	PatentImages(ctx context.Context, patentID string) ([]SearchHit, error)
	// Stats 集合统计
	Stats(ctx context.Context) (CollectionStats, error)
}

// Extractor 查询侧依赖的特征提取能力
type Extractor interface {
	ExtractBytes(ctx context.Context, name string, data []byte) ([]float32, float64, error)
	ModelInfo(ctx context.Context) (map[string]interface{}, error)
}
