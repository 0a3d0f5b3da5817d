package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hit(id int64, patentID string, imageIndex int, score float32) SearchHit {
	return SearchHit{
		ID:         id,
		PatentID:   patentID,
		ImageIndex: imageIndex,
		FileName:   "f.TIF",
		Score:      score,
		Title:      "title-" + patentID,
	}
}

func TestGroupByPatent_Empty(t *testing.T) {
	groups := GroupByPatent(nil)
	assert.NotNil(t, groups)
	assert.Empty(t, groups)
}

func TestGroupByPatent_GroupsAndOrders(t *testing.T) {
	hits := []SearchHit{
		hit(1, "D1000001", 3, 0.80),
		hit(2, "D1000002", 0, 0.95),
		hit(3, "D1000001", 0, 0.90),
		hit(4, "D1000002", 2, 0.70),
		hit(5, "D1000003", 1, 0.85),
	}

	groups := GroupByPatent(hits)
	require.Len(t, groups, 3)

	// 桶间按最高分降序
	assert.Equal(t, "D1000002", groups[0].PatentID)
	assert.Equal(t, float32(0.95), groups[0].MaxScore)
	assert.Equal(t, "D1000001", groups[1].PatentID)
	assert.Equal(t, float32(0.90), groups[1].MaxScore)
	assert.Equal(t, "D1000003", groups[2].PatentID)

	// 桶内页按 image_index 升序，与命中顺序无关
	require.Len(t, groups[1].Pages, 2)
	assert.Equal(t, 0, groups[1].Pages[0].ImageIndex)
	assert.Equal(t, 3, groups[1].Pages[1].ImageIndex)
}

func TestGroupByPatent_MetadataFromFirstHit(t *testing.T) {
	first := hit(1, "D1000001", 2, 0.9)
	first.Title = "first title"
	first.ApplicantName = "Acme"
	second := hit(2, "D1000001", 0, 0.8)
	second.Title = "should not overwrite"
	second.ApplicantName = "Other"

	groups := GroupByPatent([]SearchHit{first, second})
	require.Len(t, groups, 1)

	// 元数据取首个命中，后续命中不覆盖
	assert.Equal(t, "first title", groups[0].Title)
	assert.Equal(t, "Acme", groups[0].ApplicantName)
	// 页顺序仍按 image_index
	assert.Equal(t, 0, groups[0].Pages[0].ImageIndex)
	assert.Equal(t, 2, groups[0].Pages[1].ImageIndex)
}

func TestGroupByPatent_TieKeepsFirstSeenOrder(t *testing.T) {
	hits := []SearchHit{
		hit(1, "D1000001", 0, 0.88),
		hit(2, "D1000002", 0, 0.88),
		hit(3, "D1000003", 0, 0.88),
	}

	groups := GroupByPatent(hits)
	require.Len(t, groups, 3)
	assert.Equal(t, "D1000001", groups[0].PatentID)
	assert.Equal(t, "D1000002", groups[1].PatentID)
	assert.Equal(t, "D1000003", groups[2].PatentID)
}

func TestGroupByPatent_SingleHit(t *testing.T) {
	groups := GroupByPatent([]SearchHit{hit(9, "D1000009", 5, 0.42)})
	require.Len(t, groups, 1)
	assert.Equal(t, float32(0.42), groups[0].MaxScore)
	require.Len(t, groups[0].Pages, 1)
	assert.Equal(t, int64(9), groups[0].Pages[0].ID)
}
