package config

import (
	"log"
	"os"

	"github.com/BurntSushi/toml"
)

type MainConfig struct {
	AppName     string `toml:"appName"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	TLSRedirect bool   `toml:"tlsRedirect"`
}

type LogConfig struct {
	LogPath string `toml:"logPath"`
}

type MilvusConfig struct {
	Address        string `toml:"address"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	DBName         string `toml:"dbName"`
	CollectionName string `toml:"collectionName"`
	VectorDim      int    `toml:"vectorDim"`
	MetricType     string `toml:"metricType"`
}

type MinioConfig struct {
	Endpoint   string `toml:"endpoint"`
	AccessKey  string `toml:"accessKey"`
	SecretKey  string `toml:"secretKey"`
	Bucket     string `toml:"bucket"`
	UseSSL     bool   `toml:"useSSL"`
	Prefix     string `toml:"prefix"`
	FlatPrefix string `toml:"flatPrefix"`
}

type EmbeddingConfig struct {
	BaseURL        string `toml:"baseURL"`
	TimeoutSeconds int    `toml:"timeoutSeconds"`
}

type IngestConfig struct {
	BatchSize           int    `toml:"batchSize"`
	ReclaimInterval     int    `toml:"reclaimInterval"`
	ProgressInterval    int    `toml:"progressInterval"`
	DedupPageSize       int    `toml:"dedupPageSize"`
	StoreTimeoutSeconds int    `toml:"storeTimeoutSeconds"`
	LedgerDir           string `toml:"ledgerDir"`
}

type SearchConfig struct {
	DefaultTopK     int     `toml:"defaultTopK"`
	DefaultMinScore float64 `toml:"defaultMinScore"`
}

type Config struct {
	MainConfig      `toml:"mainConfig"`
	LogConfig       `toml:"logConfig"`
	MilvusConfig    `toml:"milvusConfig"`
	MinioConfig     `toml:"minioConfig"`
	EmbeddingConfig `toml:"embeddingConfig"`
	IngestConfig    `toml:"ingestConfig"`
	SearchConfig    `toml:"searchConfig"`
}

var config *Config

// LoadConfig 加载配置文件，路径可用 PATENTLENS_CONFIG 覆盖
func LoadConfig() error {
	configPath := os.Getenv("PATENTLENS_CONFIG")
	if configPath == "" {
		configPath = "configs/config.toml"
	}
	if _, err := toml.DecodeFile(configPath, config); err != nil {
		log.Printf("加载配置文件失败: %v, 尝试使用默认设置", err)
		return err
	}
	return nil
}

func GetConfig() *Config {
	if config == nil {
		config = new(Config)
		_ = LoadConfig()
		config.applyDefaults()
	}
	return config
}

func (c *Config) applyDefaults() {
	if c.MilvusConfig.CollectionName == "" {
		c.MilvusConfig.CollectionName = "design_patents_full"
	}
	if c.MilvusConfig.VectorDim <= 0 {
		c.MilvusConfig.VectorDim = 768
	}
	if c.MilvusConfig.MetricType == "" {
		c.MilvusConfig.MetricType = "COSINE"
	}
	if c.MinioConfig.Bucket == "" {
		c.MinioConfig.Bucket = "patent-images"
	}
	if c.MinioConfig.Prefix == "" {
		c.MinioConfig.Prefix = "design_patents"
	}
	if c.MinioConfig.FlatPrefix == "" {
		c.MinioConfig.FlatPrefix = "ruiguan"
	}
	if c.EmbeddingConfig.TimeoutSeconds <= 0 {
		c.EmbeddingConfig.TimeoutSeconds = 60
	}
	if c.IngestConfig.BatchSize <= 0 {
		c.IngestConfig.BatchSize = 16
	}
	if c.IngestConfig.ReclaimInterval <= 0 {
		c.IngestConfig.ReclaimInterval = 100
	}
	if c.IngestConfig.ProgressInterval <= 0 {
		c.IngestConfig.ProgressInterval = 50
	}
	if c.IngestConfig.DedupPageSize <= 0 {
		c.IngestConfig.DedupPageSize = 500
	}
	if c.IngestConfig.StoreTimeoutSeconds <= 0 {
		c.IngestConfig.StoreTimeoutSeconds = 30
	}
	if c.SearchConfig.DefaultTopK <= 0 {
		c.SearchConfig.DefaultTopK = 10
	}
	if c.SearchConfig.DefaultMinScore <= 0 {
		c.SearchConfig.DefaultMinScore = 0.5
	}
}
