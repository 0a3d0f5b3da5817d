package corpus

// PatentRecord 一条外观专利的完整元数据，扫描阶段构造后不再修改
type PatentRecord struct {
	PatentID string // 专利号，如 D1107392
	Kind     string // 文献类型，如 S1

	Title      string
	LocClass   string // LOC 分类号
	LocEdition string // LOC 版本
	PubDate    int64  // 公开日期 YYYYMMDD，0 表示未知
	FilingDate int64  // 申请日期 YYYYMMDD，0 表示未知
	GrantTerm  int    // 授权期限（年）

	ApplicantName    string
	ApplicantCountry string
	InventorNames    string // 逗号分隔
	AssigneeName     string

	ClaimText string

	Images     []string // 图片文件名，顺序即页序
	ImageCount int

	XMLPath string
	DataDir string
}

// DedupKey 返回某页图片的去重键
func (p *PatentRecord) DedupKey(fileName string) string {
	return p.PatentID + "_" + fileName
}
