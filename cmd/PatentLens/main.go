package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "PatentLens/api/http"
	"PatentLens/internal/config"
	"PatentLens/internal/embedding"
	"PatentLens/internal/search"
	"PatentLens/internal/store"
	"PatentLens/pkg/zlog"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	conf := config.GetConfig()
	host := conf.MainConfig.Host
	port := conf.MainConfig.Port

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 2. 初始化 Milvus
	cli, err := store.NewMilvusClient(ctx, conf.MilvusConfig)
	if err != nil {
		zlog.Fatal("Milvus 连接失败: " + err.Error())
	}
	defer cli.Close()

	milvusStore, err := store.NewMilvusStore(cli, conf.MilvusConfig)
	if err != nil {
		zlog.Fatal("Milvus store 初始化失败: " + err.Error())
	}
	if err := milvusStore.EnsureCollection(ctx, false); err != nil {
		zlog.Fatal("集合初始化失败: " + err.Error())
	}

	// 3. 初始化 MinIO
	minioStore, err := store.NewMinioStore(ctx, conf.MinioConfig)
	if err != nil {
		zlog.Fatal("MinIO 初始化失败: " + err.Error())
	}

	// 4. 初始化特征提取服务客户端
	extractor, err := embedding.NewClient(
		conf.EmbeddingConfig.BaseURL,
		time.Duration(conf.EmbeddingConfig.TimeoutSeconds)*time.Second,
	)
	if err != nil {
		zlog.Fatal("特征提取客户端初始化失败: " + err.Error())
	}
	if err := extractor.Ping(ctx); err != nil {
		// 提取服务暂不可达不阻止启动，搜索时会报错
		zlog.Warn("特征提取服务不可达", zap.Error(err))
	}

	searchSvc := search.NewService(
		milvusStore,
		extractor,
		conf.SearchConfig.DefaultTopK,
		float32(conf.SearchConfig.DefaultMinScore),
	)

	// 5. 启动 HTTP 服务
	engine := api.NewEngine(conf, &api.Deps{
		SearchSvc:    searchSvc,
		Objects:      minioStore,
		ObjectPrefix: conf.MinioConfig.Prefix,
	})

	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		zlog.Info(fmt.Sprintf("服务器正在启动，监听地址: %s", addr))
		if err := engine.Run(addr); err != nil {
			zlog.Fatal("服务器启动失败: " + err.Error())
		}
	}()

	// 6. 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit

	zlog.Info("正在关闭服务器...")
	zlog.Info("服务器已关闭")
	zlog.Sync()
}
