package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"PatentLens/internal/config"
	"PatentLens/internal/ingest"
	"PatentLens/pkg/util"
	"PatentLens/pkg/zlog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinioStore 对象存储封装，上传前探测、重复上传等价于 no-op
type MinioStore struct {
	cli      *minio.Client
	bucket   string
	endpoint string
	useSSL   bool
}

var _ ingest.ObjectStore = (*MinioStore)(nil)

// NewMinioStore 连接 MinIO 并确保 bucket 存在
func NewMinioStore(ctx context.Context, conf config.MinioConfig) (*MinioStore, error) {
	endpoint := strings.TrimSpace(conf.Endpoint)
	if endpoint == "" {
		return nil, errors.New("minio endpoint is empty")
	}

	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.AccessKey, conf.SecretKey, ""),
		Secure: conf.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := cli.BucketExists(ctx, conf.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		zlog.Info("bucket 不存在，创建", zap.String("bucket", conf.Bucket))
		if err := cli.MakeBucket(ctx, conf.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("make bucket: %w", err)
		}
	}

	return &MinioStore{cli: cli, bucket: conf.Bucket, endpoint: endpoint, useSSL: conf.UseSSL}, nil
}

// Exists 检查对象是否存在
func (s *MinioStore) Exists(ctx context.Context, key string) bool {
	_, err := s.cli.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	return err == nil
}

// UploadFile 上传本地文件，成功返回可访问 URL
func (s *MinioStore) UploadFile(ctx context.Context, localPath, key string) (string, error) {
	_, err := s.cli.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: util.ContentTypeByExt(localPath),
	})
	if err != nil {
		return "", err
	}
	return s.URL(key), nil
}

// Download 下载对象内容
func (s *MinioStore) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.cli.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// URL 返回对象的 HTTP 访问地址
func (s *MinioStore) URL(key string) string {
	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.endpoint, s.bucket, key)
}
