package zlog

import (
	"os"
	"path/filepath"
	"sync"

	"PatentLens/internal/config"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	once   sync.Once
)

// getLogger 懒加载全局 logger，控制台 + 文件双输出
func getLogger() *zap.Logger {
	once.Do(func() {
		conf := config.GetConfig()

		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

		consoleCore := zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.AddSync(os.Stdout),
			zapcore.InfoLevel,
		)

		cores := []zapcore.Core{consoleCore}

		logPath := conf.LogConfig.LogPath
		if logPath != "" {
			if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err == nil {
				fileWriter := &lumberjack.Logger{
					Filename:   logPath,
					MaxSize:    100, // MB
					MaxBackups: 7,
					MaxAge:     30, // days
					Compress:   true,
				}
				fileCore := zapcore.NewCore(
					zapcore.NewJSONEncoder(encoderConfig),
					zapcore.AddSync(fileWriter),
					zapcore.InfoLevel,
				)
				cores = append(cores, fileCore)
			}
		}

		logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	})
	return logger
}

func Debug(msg string, fields ...zap.Field) {
	getLogger().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	getLogger().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	getLogger().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	getLogger().Error(msg, fields...)
}

// Fatal 记录日志后退出进程
func Fatal(msg string, fields ...zap.Field) {
	getLogger().Fatal(msg, fields...)
}

// Sync 刷新缓冲日志，进程退出前调用
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
