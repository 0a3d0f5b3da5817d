package ingest

import (
	"context"
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"PatentLens/pkg/util"
	"PatentLens/pkg/zlog"

	"go.uber.org/zap"
)

// FlatStats 平铺目录上传的累计计数
type FlatStats struct {
	Total    int
	Uploaded int
	Skipped  int
	Failed   int
	Elapsed  time.Duration
}

// flatProgress 平铺目录的断点续传状态，落盘为小型 JSON 文件
type flatProgress struct {
	Uploaded   []string `json:"uploaded"`
	LastUpdate string   `json:"last_update"`
}

// FlatUploader 平铺图片目录上传器
//
// 与结构化语料不同，平铺目录没有可供反查的元数据库，已上传集合持久化在
// 进度文件里，启动时加载、定期保存，避免每次运行都全量探测对象存储。
type FlatUploader struct {
	Dir       string
	Prefix    string
	StateFile string
	Objects   ObjectStore
	// SaveEvery 每上传多少个文件保存一次进度，0 取默认 50
	SaveEvery int
}

// Run 扫描目录并上传所有支持格式的图片，可重复执行
func (u *FlatUploader) Run(ctx context.Context) (*FlatStats, error) {
	start := time.Now()
	stats := &FlatStats{}

	saveEvery := u.SaveEvery
	if saveEvery <= 0 {
		saveEvery = 50
	}

	uploaded := u.loadProgress()
	zlog.Info("平铺目录上传开始",
		zap.String("dir", u.Dir),
		zap.String("prefix", u.Prefix),
		zap.Int("already_uploaded", len(uploaded)))

	entries, err := os.ReadDir(u.Dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && util.IsSupportedImage(e.Name()) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	stats.Total = len(files)

	sinceSave := 0
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			u.saveProgress(uploaded)
			stats.Elapsed = time.Since(start)
			return stats, err
		}

		if _, ok := uploaded[name]; ok {
			stats.Skipped++
			continue
		}

		key := path.Join(u.Prefix, name)
		url, err := u.Objects.UploadFile(ctx, filepath.Join(u.Dir, name), key)
		if err != nil || url == "" {
			zlog.Error("上传失败", zap.String("file", name), zap.Error(err))
			stats.Failed++
			continue
		}

		uploaded[name] = struct{}{}
		stats.Uploaded++
		sinceSave++
		if sinceSave >= saveEvery {
			u.saveProgress(uploaded)
			sinceSave = 0
		}
	}

	u.saveProgress(uploaded)
	stats.Elapsed = time.Since(start)
	zlog.Info("平铺目录上传完成",
		zap.Int("total", stats.Total),
		zap.Int("uploaded", stats.Uploaded),
		zap.Int("skip", stats.Skipped),
		zap.Int("fail", stats.Failed),
		zap.String("elapsed", util.FormatDuration(stats.Elapsed)))
	return stats, nil
}

func (u *FlatUploader) loadProgress() map[string]struct{} {
	set := make(map[string]struct{})
	if u.StateFile == "" {
		return set
	}
	data, err := os.ReadFile(u.StateFile)
	if err != nil {
		return set
	}
	var p flatProgress
	if err := json.Unmarshal(data, &p); err != nil {
		zlog.Warn("进度文件解析失败，忽略", zap.String("path", u.StateFile), zap.Error(err))
		return set
	}
	for _, name := range p.Uploaded {
		set[name] = struct{}{}
	}
	return set
}

func (u *FlatUploader) saveProgress(uploaded map[string]struct{}) {
	if u.StateFile == "" {
		return
	}
	names := make([]string, 0, len(uploaded))
	for name := range uploaded {
		names = append(names, name)
	}
	sort.Strings(names)

	data, err := json.MarshalIndent(flatProgress{
		Uploaded:   names,
		LastUpdate: time.Now().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(u.StateFile, data, 0o644); err != nil {
		zlog.Warn("进度文件保存失败", zap.String("path", u.StateFile), zap.Error(err))
	}
}
