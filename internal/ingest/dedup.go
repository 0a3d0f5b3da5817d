package ingest

import (
	"context"
	"fmt"

	"PatentLens/pkg/zlog"

	"go.uber.org/zap"
)

// KeyRow 去重索引构建时从存储端取回的一行
type KeyRow struct {
	ID       int64
	PatentID string
	FileName string
}

// KeyPager 按主键升序分页读取已存在的记录
type KeyPager interface {
	QueryKeysAfter(ctx context.Context, lastID int64, limit int) ([]KeyRow, error)
}

// DedupIndex 已入库 (patent_id, file_name) 组合的集合。
// 追加模式下每次导入开始时构建一次，之后只在本进程内读写，无需加锁。
type DedupIndex struct {
	keys map[string]struct{}
}

func NewDedupIndex() *DedupIndex {
	return &DedupIndex{keys: make(map[string]struct{})}
}

// BuildDedupIndex 游标分页扫描存量记录，构建完整去重索引
//
// 以 id > lastID 为游标条件逐页拉取，页大小有界，内存占用与页大小成正比。
func BuildDedupIndex(ctx context.Context, pager KeyPager, pageSize int) (*DedupIndex, error) {
	if pageSize <= 0 {
		pageSize = 500
	}
	idx := NewDedupIndex()
	lastID := int64(-1)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := pager.QueryKeysAfter(ctx, lastID, pageSize)
		if err != nil {
			return nil, fmt.Errorf("query existing keys after id=%d: %w", lastID, err)
		}
		if len(rows) == 0 {
			break
		}
		for _, r := range rows {
			idx.keys[r.PatentID+"_"+r.FileName] = struct{}{}
			if r.ID > lastID {
				lastID = r.ID
			}
		}
	}

	zlog.Info("去重索引构建完成", zap.Int("existing", idx.Len()))
	return idx, nil
}

func (d *DedupIndex) Contains(key string) bool {
	_, ok := d.keys[key]
	return ok
}

func (d *DedupIndex) Add(key string) {
	d.keys[key] = struct{}{}
}

func (d *DedupIndex) Len() int {
	return len(d.keys)
}
