package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PatentLens/internal/search"
	"PatentLens/pkg/back"
	"PatentLens/pkg/xerr"
)

type stubStore struct {
	hits     []search.SearchHit
	lastExpr string
}

func (s *stubStore) SearchVectors(ctx context.Context, vector []float32, limit int, expr string) ([]search.SearchHit, error) {
	s.lastExpr = expr
	return s.hits, nil
}

func (s *stubStore) PatentImages(ctx context.Context, patentID string) ([]search.SearchHit, error) {
	var out []search.SearchHit
	for _, h := range s.hits {
		if h.PatentID == patentID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *stubStore) Stats(ctx context.Context) (search.CollectionStats, error) {
	return search.CollectionStats{Name: "design_patents_full", NumEntities: 42, HasIndex: true, Connected: true}, nil
}

type stubExtractor struct{}

func (stubExtractor) ExtractBytes(ctx context.Context, name string, data []byte) ([]float32, float64, error) {
	return make([]float32, 8), 3.2, nil
}

func (stubExtractor) ModelInfo(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{"model": "vit-base"}, nil
}

func newTestRouter(store *stubStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := search.NewService(store, stubExtractor{}, 10, 0.5)
	h := NewSearchHandler(svc)

	engine := gin.New()
	design := engine.Group("/api/design")
	design.POST("/search", h.Search)
	design.GET("/patent/:patent_id", h.PatentDetail)
	design.GET("/stats", h.Stats)
	return engine
}

func multipartImage(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", "query.jpg")
	require.NoError(t, err)
	_, err = fw.Write([]byte("fake-image-bytes"))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func doRequest(router *gin.Engine, req *http.Request) (*httptest.ResponseRecorder, back.Response) {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var resp back.Response
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestSearchEndpoint(t *testing.T) {
	store := &stubStore{hits: []search.SearchHit{
		{ID: 1, PatentID: "D1000001", ImageIndex: 0, Score: 0.92, Title: "Chair"},
		{ID: 2, PatentID: "D1000001", ImageIndex: 1, Score: 0.88},
	}}
	router := newTestRouter(store)

	body, contentType := multipartImage(t, map[string]string{
		"top_k":     "5",
		"min_score": "0.8",
		"keyword":   "chair",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/design/search", body)
	req.Header.Set("Content-Type", contentType)

	rec, resp := doRequest(router, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xerr.OK, resp.Code)
	assert.Equal(t, `title like "%chair%"`, store.lastExpr)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	results, ok := data["results"].([]interface{})
	require.True(t, ok)
	require.Len(t, results, 1)
	group := results[0].(map[string]interface{})
	assert.Equal(t, "D1000001", group["patent_id"])
	assert.Len(t, group["pages"], 2)
}

func TestSearchEndpoint_ExplicitZeroMinScore(t *testing.T) {
	store := &stubStore{hits: []search.SearchHit{
		{ID: 1, PatentID: "D1000001", ImageIndex: 0, Score: 0.3},
		{ID: 2, PatentID: "D1000002", ImageIndex: 0, Score: 0.1},
	}}
	router := newTestRouter(store)

	body, contentType := multipartImage(t, map[string]string{"min_score": "0"})
	req := httptest.NewRequest(http.MethodPost, "/api/design/search", body)
	req.Header.Set("Content-Type", contentType)

	rec, resp := doRequest(router, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xerr.OK, resp.Code)

	// 显式 0 关闭阈值过滤，低分命中不丢
	data := resp.Data.(map[string]interface{})
	qi := data["query_info"].(map[string]interface{})
	assert.Equal(t, float64(0), qi["min_score"])
	assert.Equal(t, float64(2), qi["total_matched"])
}

func TestSearchEndpoint_BadMinScore(t *testing.T) {
	router := newTestRouter(&stubStore{})

	body, contentType := multipartImage(t, map[string]string{"min_score": "high"})
	req := httptest.NewRequest(http.MethodPost, "/api/design/search", body)
	req.Header.Set("Content-Type", contentType)

	rec, resp := doRequest(router, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xerr.BadRequest, resp.Code)
}

func TestSearchEndpoint_MissingFile(t *testing.T) {
	router := newTestRouter(&stubStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/design/search", nil)
	rec, resp := doRequest(router, req)

	// HTTP 层始终 200，业务码表达错误
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xerr.BadRequest, resp.Code)
}

func TestPatentDetailEndpoint(t *testing.T) {
	store := &stubStore{hits: []search.SearchHit{
		{ID: 1, PatentID: "D1000001", ImageIndex: 0, Title: "Chair"},
	}}
	router := newTestRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/api/design/patent/D1000001", nil)
	rec, resp := doRequest(router, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xerr.OK, resp.Code)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "D1000001", data["patent_id"])
}

func TestPatentDetailEndpoint_NotFound(t *testing.T) {
	router := newTestRouter(&stubStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/design/patent/D9999999", nil)
	rec, resp := doRequest(router, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xerr.NotFound, resp.Code)
}

func TestStatsEndpoint(t *testing.T) {
	router := newTestRouter(&stubStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/design/stats", nil)
	rec, resp := doRequest(router, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xerr.OK, resp.Code)

	data := resp.Data.(map[string]interface{})
	coll := data["collection"].(map[string]interface{})
	assert.Equal(t, float64(42), coll["num_entities"])
}
