package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"PatentLens/internal/config"
	"PatentLens/internal/corpus"
	"PatentLens/internal/embedding"
	"PatentLens/internal/ingest"
	"PatentLens/internal/store"
	"PatentLens/pkg/util"
	"PatentLens/pkg/zlog"
)

var (
	designDataDir string
	designAppend  bool
)

var designCmd = &cobra.Command{
	Use:   "design",
	Short: "Import a structured design patent corpus",
	Long: `Scans a grant corpus directory, uploads patent images to MinIO,
extracts embeddings and writes them to Milvus in batches.

By default the collection is dropped and recreated. With --append the
collection is kept and records already present are skipped.`,
	RunE: runDesign,
}

func init() {
	designCmd.Flags().StringVar(&designDataDir, "data-dir", "", "corpus root directory (required)")
	designCmd.Flags().BoolVar(&designAppend, "append", false, "keep the collection and skip existing records")
	_ = designCmd.MarkFlagRequired("data-dir")
	rootCmd.AddCommand(designCmd)
}

func runDesign(cmd *cobra.Command, args []string) error {
	conf := config.GetConfig()

	info, err := os.Stat(designDataDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("data-dir 不是有效目录: %s", designDataDir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cli, err := store.NewMilvusClient(initCtx, conf.MilvusConfig)
	if err != nil {
		return fmt.Errorf("milvus 连接失败: %w", err)
	}
	defer cli.Close()

	milvusStore, err := store.NewMilvusStore(cli, conf.MilvusConfig)
	if err != nil {
		return err
	}
	if err := milvusStore.EnsureCollection(initCtx, !designAppend); err != nil {
		return fmt.Errorf("集合初始化失败: %w", err)
	}

	minioStore, err := store.NewMinioStore(initCtx, conf.MinioConfig)
	if err != nil {
		return fmt.Errorf("minio 初始化失败: %w", err)
	}

	extractor, err := embedding.NewClient(
		conf.EmbeddingConfig.BaseURL,
		time.Duration(conf.EmbeddingConfig.TimeoutSeconds)*time.Second,
	)
	if err != nil {
		return err
	}
	if err := extractor.Ping(initCtx); err != nil {
		return fmt.Errorf("特征提取服务不可达: %w", err)
	}

	// 追加模式先构建去重索引，重建模式从空索引开始
	dedup := ingest.NewDedupIndex()
	if designAppend {
		dedup, err = ingest.BuildDedupIndex(ctx, milvusStore, conf.IngestConfig.DedupPageSize)
		if err != nil {
			return fmt.Errorf("去重索引构建失败: %w", err)
		}
	}

	storeTimeout := time.Duration(conf.IngestConfig.StoreTimeoutSeconds) * time.Second
	ledger := ingest.NewFailureLedger()
	writer := ingest.NewBatchWriter(milvusStore, ledger, ingest.WriterOptions{
		Capacity:     conf.IngestConfig.BatchSize,
		ReclaimEvery: conf.IngestConfig.ReclaimInterval,
		StoreTimeout: storeTimeout,
		Reclaimer:    extractor,
	})

	ledgerPath := ""
	if conf.IngestConfig.LedgerDir != "" {
		if err := os.MkdirAll(conf.IngestConfig.LedgerDir, 0o755); err == nil {
			ledgerPath = filepath.Join(conf.IngestConfig.LedgerDir,
				fmt.Sprintf("failed_%s.csv", time.Now().Format("20060102_150405")))
		}
	}

	pipeline := ingest.NewPipeline(
		corpus.NewScanner(designDataDir),
		minioStore,
		extractor,
		writer,
		dedup,
		ledger,
		ingest.PipelineOptions{
			ObjectPrefix:  conf.MinioConfig.Prefix,
			ProgressEvery: conf.IngestConfig.ProgressInterval,
			StoreTimeout:  storeTimeout,
			LedgerPath:    ledgerPath,
		},
	)

	stats, err := pipeline.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		zlog.Warn("导入被中断，已累积批次已落库")
	}

	cmd.Printf("专利: %d  成功: %d  跳过: %d  失败: %d  耗时: %s\n",
		stats.Patents, stats.Succeeded, stats.Skipped, stats.Failed,
		util.FormatDuration(stats.Elapsed))
	if stats.Failed > 0 && ledgerPath != "" {
		cmd.Printf("失败清单: %s\n", ledgerPath)
	}

	zlog.Info("导入命令结束", zap.Int("success", stats.Succeeded), zap.Int("fail", stats.Failed))
	return nil
}
