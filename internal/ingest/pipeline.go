package ingest

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"time"

	"PatentLens/internal/corpus"
	"PatentLens/pkg/util"
	"PatentLens/pkg/zlog"

	"go.uber.org/zap"
)

// ObjectStore 对象存储，上传需幂等
type ObjectStore interface {
	Exists(ctx context.Context, key string) bool
	UploadFile(ctx context.Context, localPath, key string) (string, error)
	URL(key string) string
}

// Extractor 外部特征提取服务
type Extractor interface {
	ExtractFile(ctx context.Context, path string) ([]float32, float64, error)
}

// RunStats 单次导入的累计计数
type RunStats struct {
	Patents   int
	Processed int
	Succeeded int
	Skipped   int
	Failed    int
	Elapsed   time.Duration
}

type PipelineOptions struct {
	// ObjectPrefix 对象存储键前缀，键形如 <prefix>/<patent_id>/<file_name>
	ObjectPrefix string
	// ProgressEvery 每处理多少张图片输出一次进度，0 取默认 50
	ProgressEvery int
	// StoreTimeout 单次存储调用超时，超时按瞬时错误处理
	StoreTimeout time.Duration
	// LedgerPath 失败清单落盘路径，空则不落盘
	LedgerPath string
}

// Pipeline 结构化语料导入流水线
//
// 扫描、上传、向量化、批量写入按语料顺序单流执行，去重判断和计数无需同步。
// 取消只在图片边界生效，退出前落库已累积批次。
type Pipeline struct {
	scanner   *corpus.Scanner
	objects   ObjectStore
	extractor Extractor
	writer    *BatchWriter
	dedup     *DedupIndex
	ledger    *FailureLedger
	opts      PipelineOptions
}

func NewPipeline(
	scanner *corpus.Scanner,
	objects ObjectStore,
	extractor Extractor,
	writer *BatchWriter,
	dedup *DedupIndex,
	ledger *FailureLedger,
	opts PipelineOptions,
) *Pipeline {
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 50
	}
	if dedup == nil {
		dedup = NewDedupIndex()
	}
	return &Pipeline{
		scanner:   scanner,
		objects:   objects,
		extractor: extractor,
		writer:    writer,
		dedup:     dedup,
		ledger:    ledger,
		opts:      opts,
	}
}

// Run 执行导入，返回累计计数。语料根目录不可读为致命错误。
func (p *Pipeline) Run(ctx context.Context) (*RunStats, error) {
	start := time.Now()
	stats := &RunStats{}

	// 最近若干张图片的耗时，用于进度日志里的滑动平均
	recent := make([]time.Duration, 0, 100)

	scanErr := p.scanner.Scan(ctx, func(patent *corpus.PatentRecord) error {
		stats.Patents++
		zlog.Info("处理专利",
			zap.Int("seq", stats.Patents),
			zap.String("patent_id", patent.PatentID),
			zap.String("title", util.TruncateString(patent.Title, 60)))

		for idx, fileName := range patent.Images {
			// 取消只在图片边界观察
			if err := ctx.Err(); err != nil {
				return err
			}

			imgStart := time.Now()
			stats.Processed++

			key := patent.DedupKey(fileName)
			if p.dedup.Contains(key) {
				stats.Skipped++
				continue
			}

			localPath := filepath.Join(patent.DataDir, fileName)
			if _, err := os.Stat(localPath); err != nil {
				zlog.Warn("图片不存在", zap.String("file", fileName))
				stats.Failed++
				p.ledger.Append(patent.PatentID, fileName, "图片不存在")
				continue
			}

			url, err := p.uploadIdempotent(ctx, localPath, patent.PatentID, fileName)
			if err != nil || url == "" {
				zlog.Error("对象存储上传失败", zap.String("file", fileName), zap.Error(err))
				stats.Failed++
				p.ledger.Append(patent.PatentID, fileName, "对象存储上传失败")
				continue
			}

			vec, _, err := p.extractor.ExtractFile(ctx, localPath)
			if err != nil {
				zlog.Error("特征提取失败", zap.String("file", fileName), zap.Error(err))
				stats.Failed++
				p.ledger.Append(patent.PatentID, fileName, err.Error())
				continue
			}

			rec := buildImageRecord(patent, idx, fileName, url, vec)
			flushFailed := p.writer.Add(ctx, rec)
			stats.Succeeded += 1 - flushFailed
			stats.Failed += flushFailed
			p.dedup.Add(key)

			recent = append(recent, time.Since(imgStart))
			if len(recent) > 100 {
				recent = recent[1:]
			}
			if stats.Processed%p.opts.ProgressEvery == 0 {
				p.logProgress(stats, start, recent)
			}
		}
		return nil
	})

	// 退出前无条件落库剩余批次，避免静默丢数据
	flushCtx := context.WithoutCancel(ctx)
	flushFailed := p.writer.Close(flushCtx)
	stats.Succeeded -= flushFailed
	stats.Failed += flushFailed

	if p.opts.LedgerPath != "" && p.ledger.Len() > 0 {
		if err := p.ledger.WriteCSV(p.opts.LedgerPath); err != nil {
			zlog.Error("失败清单写入失败", zap.String("path", p.opts.LedgerPath), zap.Error(err))
		} else {
			zlog.Info("失败清单已保存", zap.String("path", p.opts.LedgerPath), zap.Int("count", p.ledger.Len()))
		}
	}

	stats.Elapsed = time.Since(start)
	zlog.Info("导入完成",
		zap.Int("patents", stats.Patents),
		zap.Int("success", stats.Succeeded),
		zap.Int("skip", stats.Skipped),
		zap.Int("fail", stats.Failed),
		zap.String("elapsed", util.FormatDuration(stats.Elapsed)))

	return stats, scanErr
}

// uploadIdempotent 上传前先探测，已存在的键直接复用 URL
func (p *Pipeline) uploadIdempotent(ctx context.Context, localPath, patentID, fileName string) (string, error) {
	key := path.Join(p.opts.ObjectPrefix, patentID, fileName)

	uctx, cancel := p.callCtx(ctx)
	defer cancel()

	if p.objects.Exists(uctx, key) {
		return p.objects.URL(key), nil
	}
	return p.objects.UploadFile(uctx, localPath, key)
}

func (p *Pipeline) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.StoreTimeout > 0 {
		return context.WithTimeout(ctx, p.opts.StoreTimeout)
	}
	return ctx, func() {}
}

func (p *Pipeline) logProgress(stats *RunStats, start time.Time, recent []time.Duration) {
	var sum time.Duration
	for _, d := range recent {
		sum += d
	}
	avg := time.Duration(0)
	if len(recent) > 0 {
		avg = sum / time.Duration(len(recent))
	}
	zlog.Info("导入进度",
		zap.Int("processed", stats.Processed),
		zap.Int("success", stats.Succeeded),
		zap.Int("skip", stats.Skipped),
		zap.Int("fail", stats.Failed),
		zap.String("elapsed", util.FormatDuration(time.Since(start))),
		zap.String("avg_per_image", avg.Round(time.Millisecond).String()))
}

func buildImageRecord(patent *corpus.PatentRecord, idx int, fileName, url string, vec []float32) ImageRecord {
	return ImageRecord{
		PatentID:         patent.PatentID,
		ImageIndex:       int16(idx),
		FileName:         fileName,
		FilePath:         url,
		Embedding:        vec,
		Title:            patent.Title,
		LocClass:         patent.LocClass,
		LocEdition:       patent.LocEdition,
		PubDate:          patent.PubDate,
		FilingDate:       patent.FilingDate,
		GrantTerm:        int16(patent.GrantTerm),
		ApplicantName:    patent.ApplicantName,
		ApplicantCountry: patent.ApplicantCountry,
		InventorNames:    patent.InventorNames,
		AssigneeName:     patent.AssigneeName,
		ClaimText:        patent.ClaimText,
		ImageCount:       int16(patent.ImageCount),
		CreatedAt:        time.Now().Unix(),
	}
}
