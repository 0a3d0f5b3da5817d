package search

import "sort"

// GroupByPatent 将图片级命中按专利号归组
//
// 单趟遍历，按首次出现顺序建桶；专利级元数据只在首次命中时捕获，后续命中
// 不覆盖（同一专利的元数据不变）。桶内页按 image_index 升序，桶间按最高分
// 降序；同分时稳定排序保持首次出现顺序。纯函数，无副作用。
func GroupByPatent(hits []SearchHit) []GroupedResult {
	groups := make([]GroupedResult, 0)
	index := make(map[string]int)

	for _, h := range hits {
		gi, ok := index[h.PatentID]
		if !ok {
			gi = len(groups)
			index[h.PatentID] = gi
			groups = append(groups, GroupedResult{
				PatentID:         h.PatentID,
				Title:            h.Title,
				LocClass:         h.LocClass,
				PubDate:          h.PubDate,
				FilingDate:       h.FilingDate,
				ApplicantName:    h.ApplicantName,
				ApplicantCountry: h.ApplicantCountry,
				InventorNames:    h.InventorNames,
				ClaimText:        h.ClaimText,
				ImageCount:       h.ImageCount,
			})
		}
		groups[gi].Pages = append(groups[gi].Pages, PageHit{
			ID:         h.ID,
			ImageIndex: h.ImageIndex,
			FileName:   h.FileName,
			FilePath:   h.FilePath,
			Score:      h.Score,
		})
	}

	for gi := range groups {
		g := &groups[gi]
		sort.SliceStable(g.Pages, func(i, j int) bool {
			return g.Pages[i].ImageIndex < g.Pages[j].ImageIndex
		})
		maxScore := g.Pages[0].Score
		for _, p := range g.Pages[1:] {
			if p.Score > maxScore {
				maxScore = p.Score
			}
		}
		g.MaxScore = maxScore
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].MaxScore > groups[j].MaxScore
	})
	return groups
}
