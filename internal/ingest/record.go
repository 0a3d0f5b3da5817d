package ingest

// 目标 schema 各 VARCHAR 字段的最大长度，插入前按此截断
const (
	MaxVarcharLen       = 4096
	MaxPatentIDLen      = 256
	MaxFileNameLen      = 1024
	MaxFilePathLen      = 2048
	MaxLocClassLen      = 256
	MaxLocEditionLen    = 256
	MaxApplicantCtryLen = 256
)

// ImageRecord 一张待入库图片的完整行数据，由流水线构造、批量写入器独占持有，
// 落库或记入失败清单后即丢弃
type ImageRecord struct {
	PatentID   string
	ImageIndex int16 // 在专利图片列表中的序号，从 0 开始
	FileName   string
	FilePath   string // 对象存储 URL
	Embedding  []float32

	Title            string
	LocClass         string
	LocEdition       string
	PubDate          int64
	FilingDate       int64
	GrantTerm        int16
	ApplicantName    string
	ApplicantCountry string
	InventorNames    string
	AssigneeName     string
	ClaimText        string
	ImageCount       int16

	CreatedAt int64 // Unix 秒
}

// DedupKey 返回该行的去重键
func (r *ImageRecord) DedupKey() string {
	return r.PatentID + "_" + r.FileName
}
