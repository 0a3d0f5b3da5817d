package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"PatentLens/internal/config"
	"PatentLens/internal/ingest"
	"PatentLens/internal/store"
	"PatentLens/pkg/util"
)

var (
	flatDir       string
	flatPrefix    string
	flatStateFile string
)

var flatCmd = &cobra.Command{
	Use:   "flat",
	Short: "Upload a flat image directory to MinIO",
	Long: `Uploads every supported image in a flat directory to MinIO.

Progress is persisted to a JSON state file so an interrupted run can be
resumed without re-uploading.`,
	RunE: runFlat,
}

func init() {
	flatCmd.Flags().StringVar(&flatDir, "dir", "", "image directory (required)")
	flatCmd.Flags().StringVar(&flatPrefix, "prefix", "", "object key prefix (default from config)")
	flatCmd.Flags().StringVar(&flatStateFile, "state-file", "upload_progress.json", "resume state file")
	_ = flatCmd.MarkFlagRequired("dir")
	rootCmd.AddCommand(flatCmd)
}

func runFlat(cmd *cobra.Command, args []string) error {
	conf := config.GetConfig()

	info, err := os.Stat(flatDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("dir 不是有效目录: %s", flatDir)
	}

	prefix := flatPrefix
	if prefix == "" {
		prefix = conf.MinioConfig.FlatPrefix
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	minioStore, err := store.NewMinioStore(initCtx, conf.MinioConfig)
	if err != nil {
		return fmt.Errorf("minio 初始化失败: %w", err)
	}

	uploader := &ingest.FlatUploader{
		Dir:       flatDir,
		Prefix:    prefix,
		StateFile: flatStateFile,
		Objects:   minioStore,
	}

	stats, err := uploader.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if stats != nil {
		cmd.Printf("总数: %d  上传: %d  跳过: %d  失败: %d  耗时: %s\n",
			stats.Total, stats.Uploaded, stats.Skipped, stats.Failed,
			util.FormatDuration(stats.Elapsed))
	}
	if errors.Is(err, context.Canceled) {
		cmd.Println("已中断，进度已保存，可重新执行续传")
	}
	return nil
}
