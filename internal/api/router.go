package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/pixelmind/internal/api/handlers"
	"github.com/your-org/pixelmind/internal/api/ws"
	"github.com/your-org/pixelmind/internal/auth"
)

type RouterConfig struct {
	APIKey      string
	CORSOrigins []string
	Assets      handlers.AssetStore
	People      handlers.PersonStore
	Blobs       handlers.BlobStore
	Producer    handlers.TaskPublisher
	Hub         *ws.Hub
	Checks      map[string]handlers.Check
	// GroupingThreshold is the default pHash distance for /v1/duplicates.
	GroupingThreshold int
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(corsMiddleware(cfg.CORSOrigins))

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	assetH := handlers.NewAssetHandler(cfg.Assets, cfg.Blobs, cfg.Producer)
	v1.POST("/assets", assetH.Register)
	v1.GET("/assets", assetH.List)
	v1.GET("/assets/:id", assetH.Get)
	v1.POST("/assets/:id/process", assetH.Process)
	v1.GET("/assets/:id/thumbnail", assetH.Thumbnail)
	v1.GET("/assets/:id/compare/:otherId", assetH.Compare)

	dupH := handlers.NewDuplicateHandler(cfg.Assets, cfg.GroupingThreshold)
	v1.GET("/duplicates", dupH.List)

	personH := handlers.NewPersonHandler(cfg.People)
	v1.GET("/people", personH.List)
	v1.GET("/people/:id", personH.Get)

	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return cors.Default()
	}
	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = origins
	cfg.AddAllowHeaders("X-API-Key")
	return cors.New(cfg)
}
