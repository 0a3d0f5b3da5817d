package http

import (
	"PatentLens/internal/config"
	"PatentLens/internal/search"
	"PatentLens/internal/store"
	"PatentLens/pkg/ssl"

	cors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Deps HTTP 层依赖，由 main 构造后注入，不使用包级单例
type Deps struct {
	SearchSvc    *search.Service
	Objects      *store.MinioStore
	ObjectPrefix string
}

// NewEngine 组装 gin 引擎与路由
func NewEngine(conf *config.Config, deps *Deps) *gin.Engine {
	engine := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	engine.Use(cors.New(corsConfig))

	if conf.MainConfig.TLSRedirect {
		engine.Use(ssl.TlsHandler(conf.MainConfig.Host, conf.MainConfig.Port))
	}

	searchH := NewSearchHandler(deps.SearchSvc)
	imageH := NewImageHandler(deps.Objects, deps.ObjectPrefix)

	design := engine.Group("/api/design")
	design.POST("/search", searchH.Search)
	design.GET("/patent/:patent_id", searchH.PatentDetail)
	design.GET("/stats", searchH.Stats)
	design.GET("/image/:patent_id/:file_name", imageH.GetImage)

	return engine
}
