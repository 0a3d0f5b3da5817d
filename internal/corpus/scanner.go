package corpus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"PatentLens/pkg/zlog"

	"go.uber.org/zap"
)

// ErrStopScan 由回调返回，表示提前正常结束扫描
var ErrStopScan = errors.New("corpus: stop scan")

// Scanner 按目录顺序惰性产出 PatentRecord，可重复扫描且无副作用。
// 任意时刻只有一条记录存活，语料规模不影响内存占用。
type Scanner struct {
	Root string
}

func NewScanner(root string) *Scanner {
	return &Scanner{Root: root}
}

// Scan 遍历语料根目录下的 USD* 子目录，逐条回调
//
// 每个子目录必须恰好有一个 XML 描述文件，不满足或解析失败则记录日志并跳过该条目，
// 不会中断整个扫描。回调返回 ErrStopScan 提前结束；返回其他错误原样上抛。
// 根目录不可读是致命错误。
func (s *Scanner) Scan(ctx context.Context, fn func(*PatentRecord) error) error {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return fmt.Errorf("read corpus root %s: %w", s.Root, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "USD") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}

		dir := filepath.Join(s.Root, name)
		xmlPath, ok := findDescriptionFile(dir)
		if !ok {
			continue
		}

		rec, err := ParseGrantXML(xmlPath)
		if err != nil {
			zlog.Warn("解析专利 XML 失败，跳过", zap.String("xml", xmlPath), zap.Error(err))
			continue
		}
		if rec.PatentID == "" {
			zlog.Warn("专利号缺失，跳过", zap.String("xml", xmlPath))
			continue
		}

		// 声明的图片数量与实际解析结果不一致时以图片列表为准
		if rec.ImageCount != len(rec.Images) {
			zlog.Warn("image_count 与图片列表不一致",
				zap.String("patent_id", rec.PatentID),
				zap.Int("declared", rec.ImageCount),
				zap.Int("parsed", len(rec.Images)))
			rec.ImageCount = len(rec.Images)
		}

		if err := fn(rec); err != nil {
			if errors.Is(err, ErrStopScan) {
				return nil
			}
			return err
		}
	}
	return nil
}

// findDescriptionFile 在专利子目录中查找唯一的 XML 描述文件
func findDescriptionFile(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		zlog.Warn("读取专利目录失败，跳过", zap.String("dir", dir), zap.Error(err))
		return "", false
	}

	var candidates []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".xml") {
			candidates = append(candidates, e.Name())
		}
	}
	sort.Strings(candidates)

	if len(candidates) == 0 {
		zlog.Warn("专利目录缺少 XML 描述文件，跳过", zap.String("dir", dir))
		return "", false
	}
	if len(candidates) > 1 {
		zlog.Warn("专利目录存在多个 XML 描述文件，跳过",
			zap.String("dir", dir), zap.Int("count", len(candidates)))
		return "", false
	}
	return filepath.Join(dir, candidates[0]), true
}
