package ingest

import (
	"context"
	"runtime"
	"time"

	"PatentLens/pkg/util"
	"PatentLens/pkg/zlog"

	"go.uber.org/zap"
)

// ImageInserter 向量库批量/单条写入
type ImageInserter interface {
	InsertImages(ctx context.Context, recs []ImageRecord) error
	InsertImage(ctx context.Context, rec ImageRecord) error
}

// Reclaimer 释放外部模型侧资源（如特征服务的显存缓存）
type Reclaimer interface {
	Reclaim(ctx context.Context) error
}

type WriterOptions struct {
	// Capacity 批量写入大小，0 取默认 16
	Capacity int
	// ReclaimEvery 每处理多少张图片触发一次资源回收，0 取默认 100
	ReclaimEvery int
	// StoreTimeout 单次写入调用的超时时间，0 表示不限
	StoreTimeout time.Duration
	// Reclaimer 可选
	Reclaimer Reclaimer
}

// BatchWriter 累积 ImageRecord 并按固定批量写入向量库。
// 批量写失败时降级为逐条写入，单条失败记入失败清单，绝不中断整个导入。
type BatchWriter struct {
	inserter ImageInserter
	ledger   *FailureLedger
	opts     WriterOptions

	pending   []ImageRecord
	processed int
}

func NewBatchWriter(inserter ImageInserter, ledger *FailureLedger, opts WriterOptions) *BatchWriter {
	if opts.Capacity <= 0 {
		opts.Capacity = 16
	}
	if opts.ReclaimEvery <= 0 {
		opts.ReclaimEvery = 100
	}
	return &BatchWriter{
		inserter: inserter,
		ledger:   ledger,
		opts:     opts,
		pending:  make([]ImageRecord, 0, opts.Capacity),
	}
}

// Add 截断超长字段后加入当前批次，批次满时落库
//
// 返回本次触发的落库中逐条失败的条数（0 表示没有触发落库或全部成功）。
func (w *BatchWriter) Add(ctx context.Context, rec ImageRecord) int {
	truncateRecord(&rec)
	w.pending = append(w.pending, rec)
	w.processed++

	failed := 0
	if len(w.pending) >= w.opts.Capacity {
		failed = w.Flush(ctx)
	}

	if w.processed%w.opts.ReclaimEvery == 0 {
		w.reclaim(ctx)
	}
	return failed
}

// Flush 将当前批次落库，返回逐条失败的条数
func (w *BatchWriter) Flush(ctx context.Context) int {
	if len(w.pending) == 0 {
		return 0
	}
	batch := w.pending
	w.pending = w.pending[:0]

	ictx, cancel := w.callCtx(ctx)
	err := w.inserter.InsertImages(ictx, batch)
	cancel()
	if err == nil {
		zlog.Info("批量插入成功", zap.Int("count", len(batch)))
		return 0
	}

	// 批量失败，降级为逐条插入，隔离坏记录
	zlog.Error("批量插入失败，降级为逐条插入", zap.Int("count", len(batch)), zap.Error(err))
	failed := 0
	for _, rec := range batch {
		ictx, cancel := w.callCtx(ctx)
		insErr := w.inserter.InsertImage(ictx, rec)
		cancel()
		if insErr != nil {
			zlog.Error("单条插入失败",
				zap.String("patent_id", rec.PatentID),
				zap.String("file_name", rec.FileName),
				zap.Error(insErr))
			w.ledger.Append(rec.PatentID, rec.FileName, insErr.Error())
			failed++
		}
	}
	zlog.Info("逐条插入完成", zap.Int("ok", len(batch)-failed), zap.Int("failed", failed))
	return failed
}

// Close 落库剩余的不满批次
func (w *BatchWriter) Close(ctx context.Context) int {
	return w.Flush(ctx)
}

// Pending 当前累积未落库的条数
func (w *BatchWriter) Pending() int {
	return len(w.pending)
}

func (w *BatchWriter) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.opts.StoreTimeout > 0 {
		return context.WithTimeout(ctx, w.opts.StoreTimeout)
	}
	return ctx, func() {}
}

// reclaim 定期资源回收。长时间导入大语料时显式触发，不依赖运行时自动回收。
func (w *BatchWriter) reclaim(ctx context.Context) {
	if w.opts.Reclaimer != nil {
		if err := w.opts.Reclaimer.Reclaim(ctx); err != nil {
			zlog.Warn("模型资源回收失败", zap.Error(err))
		}
	}
	runtime.GC()
	zlog.Debug("资源回收完成", zap.Int("processed", w.processed))
}

func truncateRecord(rec *ImageRecord) {
	rec.PatentID = util.TruncateString(rec.PatentID, MaxPatentIDLen)
	rec.FileName = util.TruncateString(rec.FileName, MaxFileNameLen)
	rec.FilePath = util.TruncateString(rec.FilePath, MaxFilePathLen)
	rec.Title = util.TruncateString(rec.Title, MaxVarcharLen)
	rec.LocClass = util.TruncateString(rec.LocClass, MaxLocClassLen)
	rec.LocEdition = util.TruncateString(rec.LocEdition, MaxLocEditionLen)
	rec.ApplicantName = util.TruncateString(rec.ApplicantName, MaxVarcharLen)
	rec.ApplicantCountry = util.TruncateString(rec.ApplicantCountry, MaxApplicantCtryLen)
	rec.InventorNames = util.TruncateString(rec.InventorNames, MaxVarcharLen)
	rec.AssigneeName = util.TruncateString(rec.AssigneeName, MaxVarcharLen)
	rec.ClaimText = util.TruncateString(rec.ClaimText, MaxVarcharLen)
}
