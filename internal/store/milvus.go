package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"PatentLens/internal/config"
	"PatentLens/internal/ingest"
	"PatentLens/internal/search"
	"PatentLens/pkg/zlog"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"
)

const (
	vectorField = "embedding"
	ivfNList    = 128
	ivfNProbe   = 32
)

// 搜索/点查时取回的标量字段
var outputFields = []string{
	"patent_id", "image_index", "file_name", "file_path",
	"title", "loc_class", "pub_date", "filing_date",
	"applicant_name", "applicant_country", "inventor_names",
	"claim_text", "image_count",
}

// NewMilvusClient 创建 Milvus 客户端，必要时先在 default 库中创建目标数据库
func NewMilvusClient(ctx context.Context, conf config.MilvusConfig) (mclient.Client, error) {
	addr := strings.TrimSpace(conf.Address)
	if addr == "" {
		return nil, errors.New("milvus address is empty")
	}
	dbName := strings.TrimSpace(conf.DBName)
	if dbName == "" || dbName == "default" {
		return mclient.NewClient(ctx, mclient.Config{
			Address:  addr,
			Username: strings.TrimSpace(conf.Username),
			Password: strings.TrimSpace(conf.Password),
			DBName:   "default",
		})
	}

	defaultCli, err := mclient.NewClient(ctx, mclient.Config{
		Address:  addr,
		Username: strings.TrimSpace(conf.Username),
		Password: strings.TrimSpace(conf.Password),
		DBName:   "default",
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = defaultCli.Close() }()

	dbs, err := defaultCli.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	exists := false
	for _, db := range dbs {
		if db.Name == dbName {
			exists = true
			break
		}
	}
	if !exists {
		if err := defaultCli.CreateDatabase(ctx, dbName); err != nil {
			return nil, err
		}
	}

	return mclient.NewClient(ctx, mclient.Config{
		Address:  addr,
		Username: strings.TrimSpace(conf.Username),
		Password: strings.TrimSpace(conf.Password),
		DBName:   dbName,
	})
}

// MilvusStore 外观专利图片向量集合的封装
//
// 同时服务导入侧（批量写入、去重分页扫描）与查询侧（向量检索、点查、统计）。
// 查询路径只读且无状态，多请求可共享同一实例。
type MilvusStore struct {
	cli        mclient.Client
	collection string
	vectorDim  int
	metricType entity.MetricType
}

var _ ingest.ImageInserter = (*MilvusStore)(nil)
var _ ingest.KeyPager = (*MilvusStore)(nil)
var _ search.Store = (*MilvusStore)(nil)

func NewMilvusStore(cli mclient.Client, conf config.MilvusConfig) (*MilvusStore, error) {
	if cli == nil {
		return nil, errors.New("milvus client is nil")
	}
	collection := strings.TrimSpace(conf.CollectionName)
	if collection == "" {
		return nil, errors.New("collection is empty")
	}
	dim := conf.VectorDim
	if dim <= 0 {
		return nil, fmt.Errorf("invalid vectorDim: %d", dim)
	}
	metric := entity.MetricType(strings.ToUpper(strings.TrimSpace(conf.MetricType)))
	if metric == "" {
		metric = entity.COSINE
	}
	return &MilvusStore{cli: cli, collection: collection, vectorDim: dim, metricType: metric}, nil
}

func (s *MilvusStore) Collection() string {
	return s.collection
}

// EnsureCollection 确保集合存在并已加载
//
// recreate 为真时删除重建（重建模式必须由配置显式选择）。集合无法创建或定位
// 属于致命错误，由调用方终止整个运行。
func (s *MilvusStore) EnsureCollection(ctx context.Context, recreate bool) error {
	has, err := s.cli.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}

	if has && recreate {
		zlog.Warn("集合已存在，将删除重建", zap.String("collection", s.collection))
		if err := s.cli.DropCollection(ctx, s.collection); err != nil {
			return fmt.Errorf("drop collection: %w", err)
		}
		has = false
	}

	if !has {
		zlog.Info("创建集合", zap.String("collection", s.collection), zap.Int("dim", s.vectorDim))
		if err := s.cli.CreateCollection(ctx, s.schema(), entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
		idx, err := entity.NewIndexIvfFlat(s.metricType, ivfNList)
		if err != nil {
			return fmt.Errorf("build index params: %w", err)
		}
		if err := s.cli.CreateIndex(ctx, s.collection, vectorField, idx, false); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	if err := s.cli.LoadCollection(ctx, s.collection, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

func (s *MilvusStore) schema() *entity.Schema {
	dim := strconv.Itoa(s.vectorDim)
	return &entity.Schema{
		CollectionName: s.collection,
		Description:    "Design patents with full metadata",
		Fields: []*entity.Field{
			{Name: "id", DataType: entity.FieldTypeInt64, PrimaryKey: true, AutoID: true},
			{Name: "patent_id", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": strconv.Itoa(ingest.MaxPatentIDLen)}},
			{Name: "image_index", DataType: entity.FieldTypeInt16},
			{Name: "file_name", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": strconv.Itoa(ingest.MaxFileNameLen)}},
			{Name: "file_path", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": strconv.Itoa(ingest.MaxFilePathLen)}},
			{Name: vectorField, DataType: entity.FieldTypeFloatVector, TypeParams: map[string]string{entity.TypeParamDim: dim}},
			{Name: "title", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": strconv.Itoa(ingest.MaxVarcharLen)}},
			{Name: "loc_class", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": strconv.Itoa(ingest.MaxLocClassLen)}},
			{Name: "loc_edition", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": strconv.Itoa(ingest.MaxLocEditionLen)}},
			{Name: "pub_date", DataType: entity.FieldTypeInt64},
			{Name: "filing_date", DataType: entity.FieldTypeInt64},
			{Name: "grant_term", DataType: entity.FieldTypeInt16},
			{Name: "applicant_name", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": strconv.Itoa(ingest.MaxVarcharLen)}},
			{Name: "applicant_country", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": strconv.Itoa(ingest.MaxApplicantCtryLen)}},
			{Name: "inventor_names", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": strconv.Itoa(ingest.MaxVarcharLen)}},
			{Name: "assignee_name", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": strconv.Itoa(ingest.MaxVarcharLen)}},
			{Name: "claim_text", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": strconv.Itoa(ingest.MaxVarcharLen)}},
			{Name: "image_count", DataType: entity.FieldTypeInt16},
			{Name: "created_at", DataType: entity.FieldTypeInt64},
		},
	}
}

// InsertImages 列式批量插入
func (s *MilvusStore) InsertImages(ctx context.Context, recs []ingest.ImageRecord) error {
	if len(recs) == 0 {
		return nil
	}

	n := len(recs)
	patentIDs := make([]string, 0, n)
	imageIndexes := make([]int16, 0, n)
	fileNames := make([]string, 0, n)
	filePaths := make([]string, 0, n)
	vectors := make([][]float32, 0, n)
	titles := make([]string, 0, n)
	locClasses := make([]string, 0, n)
	locEditions := make([]string, 0, n)
	pubDates := make([]int64, 0, n)
	filingDates := make([]int64, 0, n)
	grantTerms := make([]int16, 0, n)
	applicantNames := make([]string, 0, n)
	applicantCountries := make([]string, 0, n)
	inventorNames := make([]string, 0, n)
	assigneeNames := make([]string, 0, n)
	claimTexts := make([]string, 0, n)
	imageCounts := make([]int16, 0, n)
	createdAts := make([]int64, 0, n)

	for _, r := range recs {
		if len(r.Embedding) != s.vectorDim {
			return fmt.Errorf("vector dim mismatch for %s_%s, got=%d want=%d",
				r.PatentID, r.FileName, len(r.Embedding), s.vectorDim)
		}
		patentIDs = append(patentIDs, r.PatentID)
		imageIndexes = append(imageIndexes, r.ImageIndex)
		fileNames = append(fileNames, r.FileName)
		filePaths = append(filePaths, r.FilePath)
		vectors = append(vectors, r.Embedding)
		titles = append(titles, r.Title)
		locClasses = append(locClasses, r.LocClass)
		locEditions = append(locEditions, r.LocEdition)
		pubDates = append(pubDates, r.PubDate)
		filingDates = append(filingDates, r.FilingDate)
		grantTerms = append(grantTerms, r.GrantTerm)
		applicantNames = append(applicantNames, r.ApplicantName)
		applicantCountries = append(applicantCountries, r.ApplicantCountry)
		inventorNames = append(inventorNames, r.InventorNames)
		assigneeNames = append(assigneeNames, r.AssigneeName)
		claimTexts = append(claimTexts, r.ClaimText)
		imageCounts = append(imageCounts, r.ImageCount)
		createdAts = append(createdAts, r.CreatedAt)
	}

	_, err := s.cli.Insert(
		ctx,
		s.collection,
		"",
		entity.NewColumnVarChar("patent_id", patentIDs),
		entity.NewColumnInt16("image_index", imageIndexes),
		entity.NewColumnVarChar("file_name", fileNames),
		entity.NewColumnVarChar("file_path", filePaths),
		entity.NewColumnFloatVector(vectorField, s.vectorDim, vectors),
		entity.NewColumnVarChar("title", titles),
		entity.NewColumnVarChar("loc_class", locClasses),
		entity.NewColumnVarChar("loc_edition", locEditions),
		entity.NewColumnInt64("pub_date", pubDates),
		entity.NewColumnInt64("filing_date", filingDates),
		entity.NewColumnInt16("grant_term", grantTerms),
		entity.NewColumnVarChar("applicant_name", applicantNames),
		entity.NewColumnVarChar("applicant_country", applicantCountries),
		entity.NewColumnVarChar("inventor_names", inventorNames),
		entity.NewColumnVarChar("assignee_name", assigneeNames),
		entity.NewColumnVarChar("claim_text", claimTexts),
		entity.NewColumnInt16("image_count", imageCounts),
		entity.NewColumnInt64("created_at", createdAts),
	)
	return err
}

// InsertImage 单条插入，批量失败后的降级路径
func (s *MilvusStore) InsertImage(ctx context.Context, rec ingest.ImageRecord) error {
	return s.InsertImages(ctx, []ingest.ImageRecord{rec})
}

// QueryKeysAfter 按主键升序分页读取 (id, patent_id, file_name)
func (s *MilvusStore) QueryKeysAfter(ctx context.Context, lastID int64, limit int) ([]ingest.KeyRow, error) {
	rs, err := s.cli.Query(
		ctx,
		s.collection,
		nil,
		fmt.Sprintf("id > %d", lastID),
		[]string{"id", "patent_id", "file_name"},
		mclient.WithLimit(int64(limit)),
	)
	if err != nil {
		return nil, err
	}

	idCol := getColumn(rs, "id")
	patentCol := getColumn(rs, "patent_id")
	fileCol := getColumn(rs, "file_name")
	if idCol == nil || patentCol == nil || fileCol == nil {
		return nil, errors.New("query result missing expected columns")
	}

	rows := make([]ingest.KeyRow, 0, idCol.Len())
	for i := 0; i < idCol.Len(); i++ {
		id, _ := idCol.GetAsInt64(i)
		pid, _ := patentCol.GetAsString(i)
		fn, _ := fileCol.GetAsString(i)
		rows = append(rows, ingest.KeyRow{ID: id, PatentID: pid, FileName: fn})
	}
	return rows, nil
}

// SearchVectors 向量相似检索，expr 为空表示无过滤
func (s *MilvusStore) SearchVectors(ctx context.Context, vector []float32, limit int, expr string) ([]search.SearchHit, error) {
	if len(vector) != s.vectorDim {
		return nil, fmt.Errorf("query vector dim mismatch, got=%d want=%d", len(vector), s.vectorDim)
	}

	sp, err := entity.NewIndexIvfFlatSearchParam(ivfNProbe)
	if err != nil {
		return nil, err
	}

	res, err := s.cli.Search(
		ctx,
		s.collection,
		nil,
		expr,
		outputFields,
		[]entity.Vector{entity.FloatVector(vector)},
		vectorField,
		s.metricType,
		limit,
		sp,
	)
	if err != nil {
		return nil, err
	}

	hits := make([]search.SearchHit, 0)
	if len(res) == 0 {
		return hits, nil
	}
	sr := res[0]
	if sr.Err != nil {
		return nil, sr.Err
	}

	getCol := func(name string) entity.Column {
		for _, c := range sr.Fields {
			if c.Name() == name {
				return c
			}
		}
		return nil
	}

	for i := 0; i < sr.ResultCount; i++ {
		hit := search.SearchHit{Score: sr.Scores[i]}
		if sr.IDs != nil {
			hit.ID, _ = sr.IDs.GetAsInt64(i)
		}
		fillHit(&hit, i, getCol)
		hits = append(hits, hit)
	}
	return hits, nil
}

// PatentImages 点查某专利的全部图片，按 image_index 升序返回
func (s *MilvusStore) PatentImages(ctx context.Context, patentID string) ([]search.SearchHit, error) {
	expr := fmt.Sprintf(`patent_id == "%s"`, strings.ReplaceAll(patentID, `"`, `\"`))
	fields := append([]string{"id"}, outputFields...)

	rs, err := s.cli.Query(ctx, s.collection, nil, expr, fields)
	if err != nil {
		return nil, err
	}

	getCol := func(name string) entity.Column { return getColumn(rs, name) }
	idCol := getColumn(rs, "id")
	if idCol == nil {
		return []search.SearchHit{}, nil
	}

	hits := make([]search.SearchHit, 0, idCol.Len())
	for i := 0; i < idCol.Len(); i++ {
		var hit search.SearchHit
		hit.ID, _ = idCol.GetAsInt64(i)
		fillHit(&hit, i, getCol)
		hits = append(hits, hit)
	}

	// 点查结果无序，按页序排列
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].ImageIndex < hits[j].ImageIndex
	})
	return hits, nil
}

// Stats 集合统计
func (s *MilvusStore) Stats(ctx context.Context) (search.CollectionStats, error) {
	stats := search.CollectionStats{Name: s.collection}

	if err := s.cli.Flush(ctx, s.collection, false); err != nil {
		return stats, err
	}
	m, err := s.cli.GetCollectionStatistics(ctx, s.collection)
	if err != nil {
		return stats, err
	}
	if rc, ok := m["row_count"]; ok {
		stats.NumEntities, _ = strconv.ParseInt(rc, 10, 64)
	}

	if idx, err := s.cli.DescribeIndex(ctx, s.collection, vectorField); err == nil && len(idx) > 0 {
		stats.HasIndex = true
	}
	stats.Connected = true
	return stats, nil
}

func fillHit(hit *search.SearchHit, i int, getCol func(string) entity.Column) {
	if c := getCol("patent_id"); c != nil {
		hit.PatentID, _ = c.GetAsString(i)
	}
	if c := getCol("image_index"); c != nil {
		v, _ := c.GetAsInt64(i)
		hit.ImageIndex = int(v)
	}
	if c := getCol("file_name"); c != nil {
		hit.FileName, _ = c.GetAsString(i)
	}
	if c := getCol("file_path"); c != nil {
		hit.FilePath, _ = c.GetAsString(i)
	}
	if c := getCol("title"); c != nil {
		hit.Title, _ = c.GetAsString(i)
	}
	if c := getCol("loc_class"); c != nil {
		hit.LocClass, _ = c.GetAsString(i)
	}
	if c := getCol("pub_date"); c != nil {
		hit.PubDate, _ = c.GetAsInt64(i)
	}
	if c := getCol("filing_date"); c != nil {
		hit.FilingDate, _ = c.GetAsInt64(i)
	}
	if c := getCol("applicant_name"); c != nil {
		hit.ApplicantName, _ = c.GetAsString(i)
	}
	if c := getCol("applicant_country"); c != nil {
		hit.ApplicantCountry, _ = c.GetAsString(i)
	}
	if c := getCol("inventor_names"); c != nil {
		hit.InventorNames, _ = c.GetAsString(i)
	}
	if c := getCol("claim_text"); c != nil {
		hit.ClaimText, _ = c.GetAsString(i)
	}
	if c := getCol("image_count"); c != nil {
		v, _ := c.GetAsInt64(i)
		hit.ImageCount = int(v)
	}
}

func getColumn(rs mclient.ResultSet, name string) entity.Column {
	for _, c := range rs {
		if c.Name() == name {
			return c
		}
	}
	return nil
}
