package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PatentLens/internal/corpus"
)

const grantTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<us-patent-grant>
  <us-bibliographic-data-grant>
    <publication-reference>
      <document-id><doc-number>%s</doc-number><kind>S1</kind><date>20240116</date></document-id>
    </publication-reference>
    <application-reference>
      <document-id><doc-number>29123456</doc-number><date>20220301</date></document-id>
    </application-reference>
    <invention-title>Chair</invention-title>
    <classification-locarno><edition>14</edition><main-classification>06-01</main-classification></classification-locarno>
    <us-term-of-grant><length-of-grant>15</length-of-grant></us-term-of-grant>
    <us-parties>
      <us-applicants>
        <us-applicant><addressbook><orgname>Acme</orgname><address><country>US</country></address></addressbook></us-applicant>
      </us-applicants>
      <inventors>
        <inventor><addressbook><first-name>Jane</first-name><last-name>Doe</last-name></addressbook></inventor>
      </inventors>
    </us-parties>
  </us-bibliographic-data-grant>
  <drawings>
%s  </drawings>
  <claims>
    <claim><claim-text>The ornamental design for a chair, as shown.</claim-text></claim>
  </claims>
</us-patent-grant>`

// buildPipelineCorpus 构造 n 个专利、每个 images 张图片的语料目录
func buildPipelineCorpus(t *testing.T, n, images int) string {
	t.Helper()
	root := t.TempDir()

	for i := 0; i < n; i++ {
		patentID := fmt.Sprintf("D%07d", 1000001+i)
		dir := filepath.Join(root, "US"+patentID)
		require.NoError(t, os.MkdirAll(dir, 0o755))

		var figs strings.Builder
		for j := 0; j < images; j++ {
			name := fmt.Sprintf("%s-D%05d.TIF", patentID, j+1)
			figs.WriteString(fmt.Sprintf("    <figure><img file=\"%s\"/></figure>\n", name))
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("tif"), 0o644))
		}

		xmlContent := fmt.Sprintf(grantTemplate, patentID, figs.String())
		require.NoError(t, os.WriteFile(filepath.Join(dir, "US"+patentID+".xml"), []byte(xmlContent), 0o644))
	}
	return root
}

// fakeObjects 内存对象存储
type fakeObjects struct {
	stored  map[string]bool
	uploads int
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{stored: make(map[string]bool)}
}

func (f *fakeObjects) Exists(ctx context.Context, key string) bool {
	return f.stored[key]
}

func (f *fakeObjects) UploadFile(ctx context.Context, localPath, key string) (string, error) {
	f.uploads++
	f.stored[key] = true
	return f.URL(key), nil
}

func (f *fakeObjects) URL(key string) string {
	return "http://minio.local/test/" + key
}

// fakeExtractor 返回固定维度的假向量
type fakeExtractor struct {
	calls    int
	failPath string
}

func (f *fakeExtractor) ExtractFile(ctx context.Context, path string) ([]float32, float64, error) {
	f.calls++
	if f.failPath != "" && strings.HasSuffix(path, f.failPath) {
		return nil, 0, fmt.Errorf("extract failed: %s", path)
	}
	return make([]float32, 8), 1.5, nil
}

func newTestPipeline(root string, ins ImageInserter, objects ObjectStore, ext Extractor, dedup *DedupIndex, opts PipelineOptions) (*Pipeline, *FailureLedger) {
	ledger := NewFailureLedger()
	writer := NewBatchWriter(ins, ledger, WriterOptions{Capacity: 16})
	return NewPipeline(corpus.NewScanner(root), objects, ext, writer, dedup, ledger, opts), ledger
}

func TestPipeline_FreshImport(t *testing.T) {
	root := buildPipelineCorpus(t, 2, 2)
	ins := &fakeInserter{}
	objects := newFakeObjects()
	ext := &fakeExtractor{}

	p, _ := newTestPipeline(root, ins, objects, ext, nil, PipelineOptions{ObjectPrefix: "design_patents"})
	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Patents)
	assert.Equal(t, 4, stats.Processed)
	assert.Equal(t, 4, stats.Succeeded)
	assert.Zero(t, stats.Skipped)
	assert.Zero(t, stats.Failed)

	assert.Equal(t, 4, objects.uploads)
	assert.Equal(t, 4, ext.calls)
	require.Len(t, ins.inserted, 4)

	rec := ins.inserted[0]
	assert.Equal(t, "D1000001", rec.PatentID)
	assert.Equal(t, int16(0), rec.ImageIndex)
	assert.Equal(t, "Chair", rec.Title)
	assert.Equal(t, "06-01", rec.LocClass)
	assert.Equal(t, int16(2), rec.ImageCount)
	assert.True(t, strings.HasPrefix(rec.FilePath, "http://minio.local/test/design_patents/D1000001/"))
	assert.NotZero(t, rec.CreatedAt)
}

func TestPipeline_RerunSkipsViaDedup(t *testing.T) {
	root := buildPipelineCorpus(t, 2, 2)
	objects := newFakeObjects()

	first := &fakeInserter{}
	p1, _ := newTestPipeline(root, first, objects, &fakeExtractor{}, nil, PipelineOptions{ObjectPrefix: "dp"})
	_, err := p1.Run(context.Background())
	require.NoError(t, err)

	// 用第一轮入库结果构建去重索引，模拟追加模式重跑
	dedup := NewDedupIndex()
	for _, rec := range first.inserted {
		dedup.Add(rec.DedupKey())
	}

	second := &fakeInserter{}
	ext := &fakeExtractor{}
	p2, _ := newTestPipeline(root, second, objects, ext, dedup, PipelineOptions{ObjectPrefix: "dp"})
	stats, err := p2.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Skipped)
	assert.Zero(t, stats.Succeeded)
	assert.Zero(t, stats.Failed)
	assert.Zero(t, ext.calls)
	assert.Empty(t, second.inserted)
}

func TestPipeline_UploadIdempotent(t *testing.T) {
	root := buildPipelineCorpus(t, 1, 2)
	objects := newFakeObjects()

	// 预置已存在的对象，不应重复上传
	objects.stored["dp/D1000001/D1000001-D00001.TIF"] = true

	ins := &fakeInserter{}
	p, _ := newTestPipeline(root, ins, objects, &fakeExtractor{}, nil, PipelineOptions{ObjectPrefix: "dp"})
	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, 1, objects.uploads)
	require.Len(t, ins.inserted, 2)
	assert.Equal(t, "http://minio.local/test/dp/D1000001/D1000001-D00001.TIF", ins.inserted[0].FilePath)
}

func TestPipeline_ExtractFailureRecorded(t *testing.T) {
	root := buildPipelineCorpus(t, 1, 3)
	ext := &fakeExtractor{failPath: "D1000001-D00002.TIF"}

	ins := &fakeInserter{}
	ledgerPath := filepath.Join(t.TempDir(), "failed.csv")
	p, ledger := newTestPipeline(root, ins, newFakeObjects(), ext, nil, PipelineOptions{
		ObjectPrefix: "dp",
		LedgerPath:   ledgerPath,
	})
	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	require.Equal(t, 1, ledger.Len())
	assert.Equal(t, "D1000001-D00002.TIF", ledger.Entries()[0].FileName)

	data, err := os.ReadFile(ledgerPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "patent_id,file_name,error", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "D1000001,D1000001-D00002.TIF,"))
}

func TestPipeline_MissingImageRecorded(t *testing.T) {
	root := buildPipelineCorpus(t, 1, 2)
	require.NoError(t, os.Remove(filepath.Join(root, "USD1000001", "D1000001-D00002.TIF")))

	ins := &fakeInserter{}
	p, ledger := newTestPipeline(root, ins, newFakeObjects(), &fakeExtractor{}, nil, PipelineOptions{ObjectPrefix: "dp"})
	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, ledger.Len())
}

func TestPipeline_FlushesOnCancel(t *testing.T) {
	root := buildPipelineCorpus(t, 3, 2)
	ins := &fakeInserter{}
	ledger := NewFailureLedger()
	writer := NewBatchWriter(ins, ledger, WriterOptions{Capacity: 16})

	ctx, cancel := context.WithCancel(context.Background())
	ext := &cancellingExtractor{cancel: cancel, after: 3}
	p := NewPipeline(corpus.NewScanner(root), newFakeObjects(), ext, writer, nil, ledger, PipelineOptions{ObjectPrefix: "dp"})

	stats, err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// 取消前已提取的记录仍然落库
	assert.Equal(t, 3, stats.Succeeded)
	assert.Len(t, ins.inserted, 3)
}

// cancellingExtractor 在第 after 次提取后触发取消
type cancellingExtractor struct {
	cancel context.CancelFunc
	after  int
	calls  int
}

func (c *cancellingExtractor) ExtractFile(ctx context.Context, path string) ([]float32, float64, error) {
	c.calls++
	if c.calls == c.after {
		c.cancel()
	}
	return make([]float32, 8), 1.0, nil
}
